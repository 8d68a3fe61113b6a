package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/mocktest-service/internal/grading"
	"github.com/SAP-F-2025/mocktest-service/internal/models"
	"github.com/SAP-F-2025/mocktest-service/internal/repositories"
)

// ===== TAKE-TEST VIEW =====

func buildTakeTestView(attempt *models.Attempt, test *models.Test, answers []models.Answer, template string) *TakeTestView {
	view := &TakeTestView{
		AttemptID: attempt.ID,
		StartedAt: attempt.StartedAt,
		Template:  template,
		Test: TestView{
			ID:              test.ID,
			Title:           test.Title,
			ExamType:        test.ExamType,
			Level:           test.Level,
			DurationMinutes: test.DurationMinutes,
			Instructions:    test.Instructions,
			Sections:        make([]SectionView, 0, len(test.Sections)),
		},
		Answers: make(map[uint]AnswerState, len(answers)),
	}

	for _, section := range test.Sections {
		sectionView := SectionView{
			ID:              section.ID,
			Title:           section.Title,
			SortOrder:       section.SortOrder,
			DurationMinutes: section.DurationMinutes,
			IsMandatory:     section.IsMandatory,
			Questions:       make([]QuestionView, 0, len(section.Questions)),
		}
		for _, question := range section.Questions {
			sectionView.Questions = append(sectionView.Questions, toQuestionView(question))
		}
		view.Test.Sections = append(view.Test.Sections, sectionView)
	}

	for _, answer := range answers {
		view.Answers[answer.QuestionID] = AnswerState{
			SelectedOptionID:  answer.SelectedOptionID,
			TextAnswer:        answer.TextAnswer,
			HasAudio:          len(answer.AudioAnswer) > 0,
			IsMarkedForReview: answer.IsMarkedForReview,
		}
	}

	return view
}

// toQuestionView strips correctness keys
func toQuestionView(question models.Question) QuestionView {
	view := QuestionView{
		ID:         question.ID,
		Type:       question.Type,
		Difficulty: question.Difficulty,
		Text:       question.Text,
		Marks:      question.Marks,
		SortOrder:  question.SortOrder,
	}
	for _, opt := range question.Options {
		view.Options = append(view.Options, OptionView{ID: opt.ID, Text: opt.Text})
	}
	return view
}

// ===== RESULT VIEW =====

func buildResultView(attempt *models.Attempt, test *models.Test, answers []models.Answer, template string) *ResultView {
	byQuestion := make(map[uint]*models.Answer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	view := &ResultView{
		AttemptID: attempt.ID,
		TestID:    test.ID,
		TestTitle: test.Title,
		ExamType:  test.ExamType,
		Score:     attempt.ScoreValue(),
		Passed:    attempt.IsPassed,
		TimeTaken: formatTimeTaken(attempt.StartedAt, attempt.CompletedAt),
		Template:  template,
	}

	for _, section := range test.Sections {
		for _, question := range section.Questions {
			analysis := QuestionAnalysis{
				QuestionID:         question.ID,
				SectionTitle:       section.Title,
				Type:               question.Type,
				Text:               question.Text,
				Explanation:        question.Explanation,
				Status:             StatusSkipped,
				CorrectAnswerValue: question.CorrectAnswerValue,
				Options:            question.Options,
			}
			for _, opt := range question.Options {
				if opt.IsCorrect {
					analysis.CorrectOptionIDs = append(analysis.CorrectOptionIDs, opt.ID)
				}
			}

			if answer, ok := byQuestion[question.ID]; ok {
				analysis.SelectedOptionID = answer.SelectedOptionID
				analysis.TextAnswer = answer.TextAnswer
				analysis.ScoreAwarded = answer.ScoreAwarded
				analysis.Status = questionStatus(answer)
			}

			switch analysis.Status {
			case StatusCorrect:
				view.CorrectAnswers++
			case StatusWrong:
				view.IncorrectAnswers++
			}

			view.Questions = append(view.Questions, analysis)
		}
	}

	view.TotalQuestions = len(view.Questions)
	view.SkippedAnswers = view.TotalQuestions - view.CorrectAnswers - view.IncorrectAnswers
	if view.TotalQuestions > 0 {
		accuracy := float64(view.CorrectAnswers) / float64(view.TotalQuestions) * 100
		view.Accuracy = math.Round(accuracy*10) / 10
	}

	return view
}

// questionStatus: correct when graded so, wrong when something was answered, otherwise skipped.
// Answered essays are never auto-graded and count as wrong.
func questionStatus(answer *models.Answer) QuestionStatus {
	if answer.IsCorrect != nil && *answer.IsCorrect {
		return StatusCorrect
	}
	if answer.SelectedOptionID != nil || len(answer.AudioAnswer) > 0 {
		return StatusWrong
	}
	if answer.TextAnswer != nil && strings.TrimSpace(*answer.TextAnswer) != "" {
		return StatusWrong
	}
	return StatusSkipped
}

// formatTimeTaken renders HH:MM:SS, or N/A when the attempt is not complete
func formatTimeTaken(startedAt time.Time, completedAt *time.Time) string {
	if completedAt == nil || startedAt.IsZero() {
		return "N/A"
	}

	total := int(completedAt.Sub(startedAt).Seconds())
	if total < 0 {
		total = 0
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// ===== CONVERSIONS =====

func toAnswerGrades(marks []grading.AnswerMark) []repositories.AnswerGrade {
	grades := make([]repositories.AnswerGrade, 0, len(marks))
	for _, mark := range marks {
		grades = append(grades, repositories.AnswerGrade{
			QuestionID:   mark.QuestionID,
			IsCorrect:    mark.IsCorrect,
			ScoreAwarded: mark.ScoreAwarded,
		})
	}
	return grades
}

func decodeBreakdown(raw datatypes.JSON) (map[string]float64, error) {
	breakdown := map[string]float64{}
	if len(raw) == 0 {
		return breakdown, nil
	}
	if err := json.Unmarshal(raw, &breakdown); err != nil {
		return map[string]float64{}, err
	}
	return breakdown, nil
}

// normalizeText stores blank answers as no answer
func normalizeText(text *string) *string {
	if text == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*text)
	if trimmed == "" {
		return nil
	}
	return text
}
