package grading

import "strings"

const (
	satSectionBase = 200
	satSectionMax  = 800
	satPerCorrect  = 10
)

// SATStrategy scales each of the Math and Reading sections to 200-800 and sums them.
// Sections are recognised by title; anything else does not count.
type SATStrategy struct{}

func (SATStrategy) Name() string {
	return "sat"
}

func (SATStrategy) Templates() Templates {
	return Templates{
		TakeTest: "mocktests/exams/sat/take_test.html",
		Result:   "mocktests/exams/sat/result.html",
	}
}

func (s SATStrategy) Grade(sheet Sheet) ScoreResult {
	graded, issues := evaluateSheet(sheet)

	var mathCorrect, readingCorrect int
	for _, item := range graded {
		if !item.isCorrect() {
			continue
		}
		switch {
		case strings.Contains(item.Section.Title, "Math"):
			mathCorrect++
		case strings.Contains(item.Section.Title, "Reading"):
			readingCorrect++
		}
	}

	math := scaleSATSection(mathCorrect)
	reading := scaleSATSection(readingCorrect)
	score := math + reading

	return ScoreResult{
		Score:  score,
		Passed: passed(score, sheet.Test),
		Breakdown: map[string]float64{
			"math":            math,
			"reading_writing": reading,
		},
		Marks:  marksFor(graded, awardMarks),
		Issues: issues,
	}
}

func scaleSATSection(correct int) float64 {
	scaled := satSectionBase + correct*satPerCorrect
	if scaled > satSectionMax {
		scaled = satSectionMax
	}
	return float64(scaled)
}
