package grading

// JEEStrategy awards marks for correct answers and, when the test enables it,
// deducts a fraction of the marks for answered but wrong ones. Skipped questions score 0.
type JEEStrategy struct{}

func (JEEStrategy) Name() string {
	return "jee"
}

func (JEEStrategy) Templates() Templates {
	return GeneralStrategy{}.Templates()
}

func (s JEEStrategy) Grade(sheet Sheet) ScoreResult {
	graded, issues := evaluateSheet(sheet)

	penalty := 0.0
	if sheet.Test.HasNegativeMarking {
		penalty = sheet.Test.NegativeMarkingPercentage
	}

	award := func(item gradedQuestion) float64 {
		switch {
		case item.isCorrect():
			return float64(item.Question.Marks)
		case item.isWrong():
			return -float64(item.Question.Marks) * penalty
		default:
			return 0
		}
	}

	var score float64
	breakdown := make(map[string]float64)
	for _, item := range graded {
		points := award(item)
		score += points
		breakdown[item.Section.Title] += points
	}
	for title, v := range breakdown {
		breakdown[title] = round2(v)
	}
	score = round2(score)

	return ScoreResult{
		Score:     score,
		Passed:    passed(score, sheet.Test),
		Breakdown: breakdown,
		Marks:     marksFor(graded, func(item gradedQuestion) float64 { return round2(award(item)) }),
		Issues:    issues,
	}
}
