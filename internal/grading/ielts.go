package grading

// ieltsBands maps minimum raw score to band, highest first
var ieltsBands = []struct {
	minRaw float64
	band   float64
}{
	{39, 9.0},
	{37, 8.5},
	{35, 8.0},
	{33, 7.5},
	{30, 7.0},
	{27, 6.5},
	{23, 6.0},
	{19, 5.5},
	{15, 5.0},
	{13, 4.5},
}

const ieltsFloorBand = 4.0

// IELTSStrategy converts the raw mark total into a band score
type IELTSStrategy struct{}

func (IELTSStrategy) Name() string {
	return "ielts"
}

func (IELTSStrategy) Templates() Templates {
	return Templates{
		TakeTest: "mocktests/exams/ielts/take_test.html",
		Result:   "mocktests/exams/ielts/result.html",
	}
}

func (s IELTSStrategy) Grade(sheet Sheet) ScoreResult {
	graded, issues := evaluateSheet(sheet)
	raw, _ := rawScore(graded)
	band := IELTSBand(raw)

	return ScoreResult{
		Score:  band,
		Passed: passed(band, sheet.Test),
		Breakdown: map[string]float64{
			"raw":  raw,
			"band": band,
		},
		Marks:  marksFor(graded, awardMarks),
		Issues: issues,
	}
}

// IELTSBand returns the band for a raw score
func IELTSBand(raw float64) float64 {
	for _, b := range ieltsBands {
		if raw >= b.minRaw {
			return b.band
		}
	}
	return ieltsFloorBand
}
