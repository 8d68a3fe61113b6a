package grading

// GeneralStrategy sums the marks of correctly answered questions
type GeneralStrategy struct{}

func (GeneralStrategy) Name() string {
	return "general"
}

func (GeneralStrategy) Templates() Templates {
	return Templates{
		TakeTest: "mocktests/take_test_general.html",
		Result:   "mocktests/result_general.html",
	}
}

func (s GeneralStrategy) Grade(sheet Sheet) ScoreResult {
	graded, issues := evaluateSheet(sheet)
	score, correct := rawScore(graded)

	return ScoreResult{
		Score:  score,
		Passed: passed(score, sheet.Test),
		Breakdown: map[string]float64{
			"correct": float64(correct),
		},
		Marks:  marksFor(graded, awardMarks),
		Issues: issues,
	}
}

func rawScore(graded []gradedQuestion) (float64, int) {
	var (
		score   float64
		correct int
	)
	for _, item := range graded {
		if item.isCorrect() {
			score += float64(item.Question.Marks)
			correct++
		}
	}
	return score, correct
}

func awardMarks(item gradedQuestion) float64 {
	if item.isCorrect() {
		return float64(item.Question.Marks)
	}
	return 0
}
