package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SAP-F-2025/mocktest-service/internal/models"
	"github.com/SAP-F-2025/mocktest-service/internal/repositories"
	"github.com/SAP-F-2025/mocktest-service/internal/validator"
)

type reportService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
}

func NewReportService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator) ReportService {
	return &reportService{
		repo:      repo,
		logger:    logger,
		validator: validator,
	}
}

func (s *reportService) ReportQuestion(ctx context.Context, questionID uint, req *ReportQuestionRequest, userID string) (*models.QuestionReport, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if _, err := s.repo.Test().GetQuestion(ctx, questionID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	report := &models.QuestionReport{
		UserID:     userID,
		QuestionID: questionID,
		ReportText: strings.TrimSpace(req.Reason),
	}
	if err := s.repo.Report().Create(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	s.logger.Info("Question reported",
		"report_id", report.ID,
		"question_id", questionID,
		"user_id", userID)

	return report, nil
}
