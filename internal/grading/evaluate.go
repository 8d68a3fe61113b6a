package grading

import (
	"strings"

	"github.com/SAP-F-2025/mocktest-service/internal/models"
)

// gradedQuestion is the per-question verdict shared by all strategies
type gradedQuestion struct {
	Section  *models.Section
	Question *models.Question
	Answer   *models.Answer // nil when skipped

	// Correct is nil for ungraded types (essay, audio) and skipped questions
	Correct  *bool
	Answered bool

	// Ungradeable marks a question whose key is broken; it is never penalized
	Ungradeable bool
}

func (g gradedQuestion) isCorrect() bool {
	return g.Correct != nil && *g.Correct
}

// isWrong reports an answered question graded incorrect
func (g gradedQuestion) isWrong() bool {
	return g.Answered && !g.Ungradeable && g.Correct != nil && !*g.Correct
}

// evaluateSheet walks the test in section then question order and judges every question.
// It never fails: malformed questions are recorded as issues and judged incorrect.
func evaluateSheet(sheet Sheet) ([]gradedQuestion, []Issue) {
	answers := make(map[uint]*models.Answer, len(sheet.Answers))
	for i := range sheet.Answers {
		answers[sheet.Answers[i].QuestionID] = &sheet.Answers[i]
	}

	var (
		graded []gradedQuestion
		issues []Issue
	)
	for si := range sheet.Test.Sections {
		section := &sheet.Test.Sections[si]
		for qi := range section.Questions {
			question := &section.Questions[qi]
			answer := answers[question.ID]
			delete(answers, question.ID)

			item := gradedQuestion{Section: section, Question: question, Answer: answer}
			if answer != nil && answer.HasResponse() {
				item.Answered = true
			}

			correct, issue := evaluate(question, answer)
			if issue != "" {
				issues = append(issues, Issue{QuestionID: question.ID, Reason: issue})
				item.Ungradeable = true
			}
			item.Correct = correct
			graded = append(graded, item)
		}
	}

	// Answers pointing outside the test are ignored
	for questionID := range answers {
		issues = append(issues, Issue{QuestionID: questionID, Reason: "answer for question outside test"})
	}

	return graded, issues
}

// evaluate judges one question. A non-empty reason marks the question as ungradeable.
func evaluate(question *models.Question, answer *models.Answer) (*bool, string) {
	switch question.Type {
	case models.QuestionMCQ:
		if question.CorrectOptionCount() == 0 {
			return boolPtr(false), "multiple choice question has no correct option"
		}
		if answer == nil || answer.SelectedOptionID == nil {
			return boolPtr(false), ""
		}
		option := question.FindOption(*answer.SelectedOptionID)
		if option == nil {
			return boolPtr(false), ""
		}
		return boolPtr(option.IsCorrect), ""

	case models.QuestionNumeric:
		expected, ok := question.NormalizedCorrectValue()
		if !ok {
			return boolPtr(false), "numeric question has no correct answer value"
		}
		if answer == nil || answer.TextAnswer == nil {
			return boolPtr(false), ""
		}
		// Exact string match, "5" and "5.0" differ
		given := strings.ToLower(strings.TrimSpace(*answer.TextAnswer))
		return boolPtr(given == expected), ""

	case models.QuestionEssay:
		return nil, ""

	default:
		return boolPtr(false), "unsupported question type " + string(question.Type)
	}
}

// marksFor builds answer marks for the answer rows that exist, using award to price each one
func marksFor(graded []gradedQuestion, award func(gradedQuestion) float64) []AnswerMark {
	var marks []AnswerMark
	for _, item := range graded {
		if item.Answer == nil {
			continue
		}
		marks = append(marks, AnswerMark{
			QuestionID:   item.Question.ID,
			IsCorrect:    item.Correct,
			ScoreAwarded: award(item),
		})
	}
	return marks
}

func boolPtr(v bool) *bool {
	return &v
}
