package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/mocktest-service/internal/events"
	"github.com/SAP-F-2025/mocktest-service/internal/grading"
	"github.com/SAP-F-2025/mocktest-service/internal/models"
	"github.com/SAP-F-2025/mocktest-service/internal/repositories"
	"github.com/SAP-F-2025/mocktest-service/internal/timer"
	"github.com/SAP-F-2025/mocktest-service/internal/validator"
)

const reviewForwardTimeout = 10 * time.Second

// errSubmitRaced means the status CAS failed under the row lock; the stored result wins
var errSubmitRaced = errors.New("attempt left IN_PROGRESS during submission")

type AttemptDependencies struct {
	Repo        repositories.Repository
	Registry    *grading.Registry
	Timer       *timer.Authority
	Entitlement EntitlementChecker
	Publisher   events.EventPublisher
	Ranks       events.RankRecalculator
	Reviews     ReviewSink
	Logger      *slog.Logger
	Validator   *validator.Validator
}

type attemptService struct {
	repo        repositories.Repository
	registry    *grading.Registry
	timer       *timer.Authority
	entitlement EntitlementChecker
	publisher   events.EventPublisher
	ranks       events.RankRecalculator
	reviews     ReviewSink
	logger      *slog.Logger
	validator   *validator.Validator
}

func NewAttemptService(deps AttemptDependencies) AttemptService {
	s := &attemptService{
		repo:        deps.Repo,
		registry:    deps.Registry,
		timer:       deps.Timer,
		entitlement: deps.Entitlement,
		publisher:   deps.Publisher,
		ranks:       deps.Ranks,
		reviews:     deps.Reviews,
		logger:      deps.Logger,
		validator:   deps.Validator,
	}

	if s.registry == nil {
		s.registry = grading.NewRegistry()
	}
	if s.timer == nil {
		s.timer = timer.NewAuthority(timer.SystemClock(), timer.DefaultGracePeriod)
	}
	if s.entitlement == nil {
		s.entitlement = NewEnrollmentEntitlementChecker(deps.Repo)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.validator == nil {
		s.validator = validator.New()
	}

	return s
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) StartOrResume(ctx context.Context, testID uint, userID string) (*AttemptResponse, error) {
	s.logger.Info("Starting or resuming attempt", "test_id", testID, "user_id", userID)

	test, err := s.repo.Test().GetByID(ctx, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	entitled, err := s.entitlement.IsEntitled(ctx, userID, testID)
	if err != nil {
		return nil, err
	}
	if !entitled {
		s.logger.Info("User not entitled to test", "test_id", testID, "user_id", userID)
		return nil, ErrNotEntitled
	}

	existing, err := s.findInProgress(ctx, userID, testID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.resume(ctx, existing, test)
	}

	now := s.timer.Now()
	opened, closed := test.IsOpenAt(now)
	if !opened {
		return nil, ErrTestNotOpen
	}
	if closed {
		return nil, ErrTestClosed
	}

	attempt := &models.Attempt{
		UserID:    userID,
		TestID:    testID,
		Status:    models.AttemptInProgress,
		StartedAt: now,
	}

	if err := s.repo.Attempt().Create(ctx, attempt); err != nil {
		if !repositories.IsDuplicateError(err) {
			return nil, fmt.Errorf("failed to create attempt: %w", err)
		}

		// A concurrent first open won the partial unique index; resume its attempt
		existing, lookupErr := s.findInProgress(ctx, userID, testID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing == nil {
			return nil, fmt.Errorf("in-progress attempt conflict for test %d: %w", testID, err)
		}
		return s.resume(ctx, existing, test)
	}

	s.logger.Info("Attempt started",
		"attempt_id", attempt.ID,
		"test_id", testID,
		"user_id", userID)

	return &AttemptResponse{
		Attempt:          attempt,
		RemainingSeconds: s.timer.RemainingSeconds(attempt.StartedAt, test.Duration()),
	}, nil
}

func (s *attemptService) SaveAnswer(ctx context.Context, attemptID, questionID uint, req *SaveAnswerRequest, userID string) (*AnswerResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	answer := &models.Answer{
		AttemptID:         attemptID,
		QuestionID:        questionID,
		SelectedOptionID:  req.SelectedOptionID,
		TextAnswer:        normalizeText(req.TextAnswer),
		IsMarkedForReview: req.IsMarkedForReview,
	}

	err := s.writeAnswer(ctx, attemptID, questionID, userID, func(tx repositories.Repository, question *models.Question) error {
		if answer.SelectedOptionID != nil && question.FindOption(*answer.SelectedOptionID) == nil {
			return ErrInvalidOption
		}
		return tx.Answer().UpsertResponse(ctx, answer)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Answer saved", "attempt_id", attemptID, "question_id", questionID)

	return &AnswerResponse{
		AnswerID:          answer.ID,
		QuestionID:        questionID,
		IsMarkedForReview: answer.IsMarkedForReview,
		SelectedOptionID:  answer.SelectedOptionID,
	}, nil
}

func (s *attemptService) SaveAudioAnswer(ctx context.Context, attemptID, questionID uint, req *SaveAudioAnswerRequest, userID string) (*AnswerResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	contentType := req.ContentType
	answer := &models.Answer{
		AttemptID:        attemptID,
		QuestionID:       questionID,
		AudioAnswer:      req.Data,
		AudioContentType: &contentType,
	}

	err := s.writeAnswer(ctx, attemptID, questionID, userID, func(tx repositories.Repository, _ *models.Question) error {
		return tx.Answer().UpsertAudio(ctx, answer)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Audio answer saved",
		"attempt_id", attemptID,
		"question_id", questionID,
		"bytes", len(req.Data))

	return &AnswerResponse{AnswerID: answer.ID, QuestionID: questionID}, nil
}

func (s *attemptService) Submit(ctx context.Context, attemptID uint, req *SubmitRequest, userID string) (*SubmitResult, error) {
	var review *ReviewRequest
	if req != nil && req.Review != nil {
		if err := s.validator.Validate(req.Review); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}
		review = req.Review
	}

	result, graded, err := s.submit(ctx, attemptID, userID, models.SubmitManual)
	if err != nil {
		return nil, err
	}

	if graded && review != nil {
		s.forwardReview(ctx, Review{
			AttemptID: result.AttemptID,
			UserID:    userID,
			TestID:    result.TestID,
			Rating:    review.Rating,
			Text:      review.Text,
		})
	}

	return result, nil
}

func (s *attemptService) AutoSubmit(ctx context.Context, attemptID uint) (*SubmitResult, error) {
	result, _, err := s.submit(ctx, attemptID, "", models.SubmitAuto)
	return result, err
}

// ===== TIME MANAGEMENT =====

func (s *attemptService) GetRemainingSeconds(ctx context.Context, attemptID uint) (int, error) {
	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return 0, err
	}
	if attempt.IsSubmitted() {
		return 0, nil
	}

	test, err := s.getTest(ctx, attempt.TestID)
	if err != nil {
		return 0, err
	}

	return s.timer.RemainingSeconds(attempt.StartedAt, test.Duration()), nil
}

func (s *attemptService) Heartbeat(ctx context.Context, attemptID uint, userID string) (*HeartbeatResponse, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID, "poll")
	if err != nil {
		return nil, err
	}
	if attempt.IsSubmitted() {
		return &HeartbeatResponse{Submitted: true}, nil
	}

	test, err := s.getTest(ctx, attempt.TestID)
	if err != nil {
		return nil, err
	}

	remaining := s.timer.RemainingSeconds(attempt.StartedAt, test.Duration())
	if remaining > 0 {
		return &HeartbeatResponse{RemainingSeconds: remaining}, nil
	}

	if _, _, err := s.submit(ctx, attemptID, userID, models.SubmitAuto); err != nil {
		return nil, err
	}
	return &HeartbeatResponse{Submitted: true}, nil
}

// ===== VIEWS =====

func (s *attemptService) TakeTest(ctx context.Context, attemptID uint, userID string) (*TakeTestView, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID, "take")
	if err != nil {
		return nil, err
	}
	if attempt.IsSubmitted() {
		return nil, ErrAttemptAlreadySubmitted
	}

	test, err := s.getTestWithQuestions(ctx, attempt.TestID)
	if err != nil {
		return nil, err
	}

	// Time is recomputed on every load; nothing is rendered once it runs out
	if s.timer.IsExpired(attempt.StartedAt, test.Duration()) {
		s.logger.Info("Attempt time is up, auto-submitting", "attempt_id", attemptID)
		if _, _, err := s.submit(ctx, attemptID, userID, models.SubmitAuto); err != nil {
			return nil, err
		}
		return nil, ErrAttemptAlreadySubmitted
	}

	answers, err := s.repo.Answer().ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}

	strategy := s.strategyFor(test)
	view := buildTakeTestView(attempt, test, answers, strategy.Templates().TakeTest)
	view.RemainingSeconds = s.timer.RemainingSeconds(attempt.StartedAt, test.Duration())

	return view, nil
}

func (s *attemptService) GetResult(ctx context.Context, attemptID uint, userID string) (*ResultView, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID, "view result of")
	if err != nil {
		return nil, err
	}
	if !attempt.IsSubmitted() {
		return nil, ErrAttemptNotSubmitted
	}

	test, err := s.getTestWithQuestions(ctx, attempt.TestID)
	if err != nil {
		return nil, err
	}

	answers, err := s.repo.Answer().ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}

	strategy := s.strategyFor(test)
	view := buildResultView(attempt, test, answers, strategy.Templates().Result)
	view.Breakdown = s.decodeBreakdown(attempt)

	return view, nil
}

// ===== SUBMISSION =====

// submit grades and closes the attempt exactly once. graded is true only for the
// caller that performed the IN_PROGRESS -> SUBMITTED transition. An empty userID
// skips the ownership check (timer path).
func (s *attemptService) submit(ctx context.Context, attemptID uint, userID string, trigger models.SubmitTrigger) (*SubmitResult, bool, error) {
	var (
		result  *SubmitResult
		graded  bool
		ownerID string
	)

	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		attempt, err := tx.Attempt().GetForUpdate(ctx, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return err
		}
		if userID != "" && !attempt.IsOwnedBy(userID) {
			s.logger.Warn("Attempt access denied", "attempt_id", attemptID, "user_id", userID, "action", "submit")
			return NewPermissionError(userID, attemptID, "attempt", "submit", "not owned by user")
		}

		if attempt.IsSubmitted() {
			result = s.storedResult(attempt)
			return nil
		}

		test, err := tx.Test().GetWithQuestions(ctx, attempt.TestID)
		if err != nil {
			return fmt.Errorf("failed to load test for grading: %w", err)
		}
		answers, err := tx.Answer().ListByAttempt(ctx, attempt.ID)
		if err != nil {
			return fmt.Errorf("failed to list answers: %w", err)
		}

		strategy := s.strategyFor(test)
		score := strategy.Grade(grading.Sheet{Test: test, Answers: answers})
		for _, issue := range score.Issues {
			s.logger.Error("Question could not be graded, scored as zero",
				"attempt_id", attempt.ID,
				"question_id", issue.QuestionID,
				"reason", issue.Reason)
		}

		if err := tx.Answer().ApplyGrades(ctx, attempt.ID, toAnswerGrades(score.Marks)); err != nil {
			return err
		}

		completedAt := s.timer.Now()
		ok, err := tx.Attempt().MarkSubmitted(ctx, attempt.ID, repositories.SubmissionUpdate{
			Score:       score.Score,
			Passed:      score.Passed,
			Breakdown:   score.Breakdown,
			CompletedAt: completedAt,
			Trigger:     trigger,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errSubmitRaced
		}

		result = &SubmitResult{
			AttemptID:   attempt.ID,
			TestID:      attempt.TestID,
			Score:       score.Score,
			Passed:      score.Passed,
			Breakdown:   score.Breakdown,
			CompletedAt: &completedAt,
			Trigger:     trigger,
		}
		ownerID = attempt.UserID
		graded = true
		return nil
	})

	if errors.Is(err, errSubmitRaced) {
		attempt, getErr := s.getAttempt(ctx, attemptID)
		if getErr != nil {
			return nil, false, getErr
		}
		return s.storedResult(attempt), false, nil
	}
	if err != nil {
		if errors.Is(err, ErrAttemptNotFound) || IsPermissionError(err) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("failed to submit attempt: %w", err)
	}

	if graded {
		s.logger.Info("Attempt submitted",
			"attempt_id", result.AttemptID,
			"user_id", ownerID,
			"score", result.Score,
			"passed", result.Passed,
			"trigger", trigger)
		s.announceSubmission(ctx, ownerID, result)
	}

	return result, graded, nil
}

// announceSubmission hands rank recomputation to the event bus. If the bus is
// unavailable the rank is recomputed in-process; the score is already committed either way.
func (s *attemptService) announceSubmission(ctx context.Context, userID string, result *SubmitResult) {
	ctx = context.WithoutCancel(ctx)

	var err error
	if s.publisher != nil {
		var event *events.Event
		event, err = events.NewEvent(events.TopicAttemptSubmitted, events.AttemptSubmittedData{
			AttemptID: result.AttemptID,
			UserID:    userID,
			TestID:    result.TestID,
			Score:     result.Score,
			Trigger:   string(result.Trigger),
		})
		if err == nil {
			err = s.publisher.Publish(ctx, events.TopicAttemptSubmitted, event)
		}
		if err == nil {
			return
		}
		s.logger.Error("Failed to publish submission event, recalculating rank in-process",
			"attempt_id", result.AttemptID,
			"error", err)
	}

	if s.ranks == nil {
		return
	}
	if err := s.ranks.Recalculate(ctx, userID); err != nil {
		s.logger.Error("Rank recalculation failed", "user_id", userID, "error", err)
	}
}

func (s *attemptService) forwardReview(ctx context.Context, review Review) {
	if s.reviews == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reviewForwardTimeout)
		defer cancel()

		if err := s.reviews.SubmitReview(ctx, review); err != nil {
			s.logger.Error("Failed to forward review",
				"attempt_id", review.AttemptID,
				"user_id", review.UserID,
				"error", err)
		}
	}()
}

// ===== HELPERS =====

// writeAnswer runs the save-answer gates and write under a shared lock on the attempt row
func (s *attemptService) writeAnswer(ctx context.Context, attemptID, questionID uint, userID string, write func(repositories.Repository, *models.Question) error) error {
	return s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		attempt, err := tx.Attempt().GetForShare(ctx, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return err
		}
		if !attempt.IsOwnedBy(userID) {
			s.logger.Warn("Attempt access denied", "attempt_id", attemptID, "user_id", userID, "action", "save answer")
			return NewPermissionError(userID, attemptID, "attempt", "save answer to", "not owned by user")
		}
		if attempt.IsSubmitted() {
			return ErrAttemptAlreadySubmitted
		}

		test, err := tx.Test().GetWithQuestions(ctx, attempt.TestID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrTestNotFound
			}
			return err
		}

		if !s.timer.AcceptsAnswers(attempt.StartedAt, test.Duration()) {
			s.logger.Info("Answer rejected after grace period",
				"attempt_id", attemptID,
				"question_id", questionID,
				"elapsed", s.timer.Elapsed(attempt.StartedAt))
			return ErrAttemptTimeExpired
		}

		question := test.FindQuestion(questionID)
		if question == nil {
			return ErrQuestionNotInTest
		}

		return write(tx, question)
	})
}

func (s *attemptService) resume(ctx context.Context, attempt *models.Attempt, test *models.Test) (*AttemptResponse, error) {
	answers, err := s.repo.Answer().ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	attempt.Answers = answers

	s.logger.Info("Resuming attempt", "attempt_id", attempt.ID, "answers", len(answers))

	return &AttemptResponse{
		Attempt:          attempt,
		RemainingSeconds: s.timer.RemainingSeconds(attempt.StartedAt, test.Duration()),
		Resumed:          true,
	}, nil
}

func (s *attemptService) findInProgress(ctx context.Context, userID string, testID uint) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt().GetInProgress(ctx, userID, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up in-progress attempt: %w", err)
	}
	return attempt, nil
}

func (s *attemptService) getAttempt(ctx context.Context, attemptID uint) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return attempt, nil
}

func (s *attemptService) getOwnedAttempt(ctx context.Context, attemptID uint, userID, action string) (*models.Attempt, error) {
	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !attempt.IsOwnedBy(userID) {
		s.logger.Warn("Attempt access denied", "attempt_id", attemptID, "user_id", userID, "action", action)
		return nil, NewPermissionError(userID, attemptID, "attempt", action, "not owned by user")
	}
	return attempt, nil
}

func (s *attemptService) getTest(ctx context.Context, testID uint) (*models.Test, error) {
	test, err := s.repo.Test().GetByID(ctx, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return test, nil
}

func (s *attemptService) getTestWithQuestions(ctx context.Context, testID uint) (*models.Test, error) {
	test, err := s.repo.Test().GetWithQuestions(ctx, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test questions: %w", err)
	}
	return test, nil
}

func (s *attemptService) strategyFor(test *models.Test) grading.Strategy {
	strategy, err := s.registry.Lookup(test.ExamType)
	if err != nil {
		s.logger.Warn("Unknown exam type, grading as general", "test_id", test.ID, "exam_type", test.ExamType)
		return s.registry.LookupOrDefault(test.ExamType)
	}
	return strategy
}

func (s *attemptService) storedResult(attempt *models.Attempt) *SubmitResult {
	result := &SubmitResult{
		AttemptID:        attempt.ID,
		TestID:           attempt.TestID,
		Score:            attempt.ScoreValue(),
		Passed:           attempt.IsPassed,
		Breakdown:        s.decodeBreakdown(attempt),
		CompletedAt:      attempt.CompletedAt,
		AlreadySubmitted: true,
	}
	if attempt.SubmitTrigger != nil {
		result.Trigger = *attempt.SubmitTrigger
	}
	return result
}

func (s *attemptService) decodeBreakdown(attempt *models.Attempt) map[string]float64 {
	breakdown, err := decodeBreakdown(attempt.Breakdown)
	if err != nil {
		s.logger.Warn("Stored score breakdown is unreadable", "attempt_id", attempt.ID, "error", err)
	}
	return breakdown
}
