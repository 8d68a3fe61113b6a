package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/mocktest-service/internal/models"
	"github.com/SAP-F-2025/mocktest-service/internal/repositories"
)

// fakeStore is an in-memory stand-in for the Postgres repository.
// Transactions are serialized, which matches the row lock taken by submit.
type fakeStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	tests       map[uint]*models.Test
	attempts    map[uint]*models.Attempt
	answers     map[uint]map[uint]*models.Answer
	ranks       map[string]*models.RankMetric
	reports     []*models.QuestionReport
	enrollments map[string]bool
	users       map[string]*models.User

	nextID       uint
	gradeCalls   int
	rankUpserts  int
	failRankList error

	inTx                   bool
	leaderboardFlushes     int
	leaderboardFlushesInTx int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tests:       make(map[uint]*models.Test),
		attempts:    make(map[uint]*models.Attempt),
		answers:     make(map[uint]map[uint]*models.Answer),
		ranks:       make(map[string]*models.RankMetric),
		enrollments: make(map[string]bool),
		users:       make(map[string]*models.User),
		nextID:      1000,
	}
}

func (s *fakeStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) addTest(test *models.Test) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tests[test.ID] = test
}

func (s *fakeStore) enroll(userID string, testID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[enrollmentKey(userID, testID)] = true
}

func (s *fakeStore) attempt(id uint) models.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.attempts[id]
}

func (s *fakeStore) answerFor(attemptID, questionID uint) *models.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	answer, ok := s.answers[attemptID][questionID]
	if !ok {
		return nil
	}
	copied := *answer
	return &copied
}

func enrollmentKey(userID string, testID uint) string {
	return fmt.Sprintf("%s:%d", userID, testID)
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, gorm.ErrRecordNotFound)
}

// ===== Repository =====

type fakeRepo struct {
	store *fakeStore
}

func newFakeRepo() (*fakeRepo, *fakeStore) {
	store := newFakeStore()
	return &fakeRepo{store: store}, store
}

func (r *fakeRepo) Test() repositories.TestRepository             { return fakeTests{r.store} }
func (r *fakeRepo) Attempt() repositories.AttemptRepository       { return fakeAttempts{r.store} }
func (r *fakeRepo) Answer() repositories.AnswerRepository         { return fakeAnswers{r.store} }
func (r *fakeRepo) Rank() repositories.RankRepository             { return fakeRanks{r.store} }
func (r *fakeRepo) Report() repositories.ReportRepository         { return fakeReports{r.store} }
func (r *fakeRepo) Enrollment() repositories.EnrollmentRepository { return fakeEnrollments{r.store} }
func (r *fakeRepo) User() repositories.UserRepository             { return fakeUsers{r.store} }
func (r *fakeRepo) Ping(ctx context.Context) error                { return nil }
func (r *fakeRepo) Close() error                                  { return nil }

func (r *fakeRepo) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	r.store.txMu.Lock()
	defer r.store.txMu.Unlock()

	r.store.setInTx(true)
	defer r.store.setInTx(false)
	return fn(r)
}

func (s *fakeStore) setInTx(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inTx = v
}

// ===== Tests =====

type fakeTests struct{ s *fakeStore }

func (f fakeTests) GetByID(ctx context.Context, id uint) (*models.Test, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	test, ok := f.s.tests[id]
	if !ok {
		return nil, notFound("test")
	}
	shallow := *test
	shallow.Sections = nil
	return &shallow, nil
}

func (f fakeTests) GetWithQuestions(ctx context.Context, id uint) (*models.Test, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	test, ok := f.s.tests[id]
	if !ok {
		return nil, notFound("test")
	}
	copied := *test
	return &copied, nil
}

func (f fakeTests) GetQuestion(ctx context.Context, questionID uint) (*models.Question, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, test := range f.s.tests {
		if q := test.FindQuestion(questionID); q != nil {
			copied := *q
			return &copied, nil
		}
	}
	return nil, notFound("question")
}

// ===== Attempts =====

type fakeAttempts struct{ s *fakeStore }

func (f fakeAttempts) Create(ctx context.Context, attempt *models.Attempt) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, existing := range f.s.attempts {
		if existing.UserID == attempt.UserID && existing.TestID == attempt.TestID && existing.Status == models.AttemptInProgress {
			return fmt.Errorf("failed to create attempt: %w", gorm.ErrDuplicatedKey)
		}
	}
	attempt.ID = f.s.id()
	attempt.CreatedAt = attempt.StartedAt
	stored := *attempt
	f.s.attempts[attempt.ID] = &stored
	return nil
}

func (f fakeAttempts) GetByID(ctx context.Context, id uint) (*models.Attempt, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	attempt, ok := f.s.attempts[id]
	if !ok {
		return nil, notFound("attempt")
	}
	copied := *attempt
	return &copied, nil
}

func (f fakeAttempts) GetForUpdate(ctx context.Context, id uint) (*models.Attempt, error) {
	return f.GetByID(ctx, id)
}

func (f fakeAttempts) GetForShare(ctx context.Context, id uint) (*models.Attempt, error) {
	return f.GetByID(ctx, id)
}

func (f fakeAttempts) GetInProgress(ctx context.Context, userID string, testID uint) (*models.Attempt, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, attempt := range f.s.attempts {
		if attempt.UserID == userID && attempt.TestID == testID && attempt.Status == models.AttemptInProgress {
			copied := *attempt
			return &copied, nil
		}
	}
	return nil, notFound("attempt")
}

func (f fakeAttempts) MarkSubmitted(ctx context.Context, id uint, update repositories.SubmissionUpdate) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	attempt, ok := f.s.attempts[id]
	if !ok || attempt.Status != models.AttemptInProgress {
		return false, nil
	}

	breakdown, err := json.Marshal(update.Breakdown)
	if err != nil {
		return false, err
	}
	score := update.Score
	completedAt := update.CompletedAt
	trigger := update.Trigger

	attempt.Status = models.AttemptSubmitted
	attempt.Score = &score
	attempt.IsPassed = update.Passed
	attempt.Breakdown = datatypes.JSON(breakdown)
	attempt.CompletedAt = &completedAt
	attempt.SubmitTrigger = &trigger
	return true, nil
}

func (f fakeAttempts) ListSubmittedByUser(ctx context.Context, userID string) ([]repositories.SubmittedAttempt, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []repositories.SubmittedAttempt
	for _, attempt := range f.s.attempts {
		if attempt.UserID != userID || attempt.Status != models.AttemptSubmitted {
			continue
		}
		weight := 1.0
		if test, ok := f.s.tests[attempt.TestID]; ok {
			weight = test.RankingWeight
		}
		out = append(out, repositories.SubmittedAttempt{
			AttemptID:     attempt.ID,
			TestID:        attempt.TestID,
			Score:         attempt.ScoreValue(),
			RankingWeight: weight,
			CreatedAt:     attempt.CreatedAt,
		})
	}
	return out, nil
}

func (f fakeAttempts) ListExpiredInProgress(ctx context.Context, now time.Time, limit int) ([]models.Attempt, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.Attempt
	for _, attempt := range f.s.attempts {
		test, ok := f.s.tests[attempt.TestID]
		if !ok || attempt.Status != models.AttemptInProgress {
			continue
		}
		if !attempt.StartedAt.Add(test.Duration()).After(now) {
			out = append(out, *attempt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f fakeAttempts) ListUserIDs(ctx context.Context) ([]string, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, attempt := range f.s.attempts {
		if !seen[attempt.UserID] {
			seen[attempt.UserID] = true
			out = append(out, attempt.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ===== Answers =====

type fakeAnswers struct{ s *fakeStore }

func (f fakeAnswers) row(answer *models.Answer) *models.Answer {
	byQuestion, ok := f.s.answers[answer.AttemptID]
	if !ok {
		byQuestion = make(map[uint]*models.Answer)
		f.s.answers[answer.AttemptID] = byQuestion
	}
	row, ok := byQuestion[answer.QuestionID]
	if !ok {
		row = &models.Answer{ID: f.s.id(), AttemptID: answer.AttemptID, QuestionID: answer.QuestionID}
		byQuestion[answer.QuestionID] = row
	}
	return row
}

func (f fakeAnswers) UpsertResponse(ctx context.Context, answer *models.Answer) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	row := f.row(answer)
	row.SelectedOptionID = answer.SelectedOptionID
	row.TextAnswer = answer.TextAnswer
	row.IsMarkedForReview = answer.IsMarkedForReview
	answer.ID = row.ID
	return nil
}

func (f fakeAnswers) UpsertAudio(ctx context.Context, answer *models.Answer) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	row := f.row(answer)
	row.AudioAnswer = answer.AudioAnswer
	row.AudioContentType = answer.AudioContentType
	answer.ID = row.ID
	return nil
}

func (f fakeAnswers) ListByAttempt(ctx context.Context, attemptID uint) ([]models.Answer, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.Answer
	for _, answer := range f.s.answers[attemptID] {
		out = append(out, *answer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (f fakeAnswers) ApplyGrades(ctx context.Context, attemptID uint, grades []repositories.AnswerGrade) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.gradeCalls++
	for _, grade := range grades {
		if row, ok := f.s.answers[attemptID][grade.QuestionID]; ok {
			row.IsCorrect = grade.IsCorrect
			row.ScoreAwarded = grade.ScoreAwarded
		}
	}
	return nil
}

// ===== Ranks =====

type fakeRanks struct{ s *fakeStore }

func (f fakeRanks) LockUser(ctx context.Context, userID string) error { return nil }

func (f fakeRanks) Upsert(ctx context.Context, metric *models.RankMetric) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	copied := *metric
	f.s.ranks[metric.UserID] = &copied
	f.s.rankUpserts++
	return nil
}

func (f fakeRanks) InvalidateLeaderboard(ctx context.Context) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.leaderboardFlushes++
	if f.s.inTx {
		f.s.leaderboardFlushesInTx++
	}
}

func (f fakeRanks) GetByUser(ctx context.Context, userID string) (*models.RankMetric, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	metric, ok := f.s.ranks[userID]
	if !ok {
		return nil, notFound("rank metric")
	}
	copied := *metric
	return &copied, nil
}

func (f fakeRanks) sorted() []models.RankMetric {
	out := make([]models.RankMetric, 0, len(f.s.ranks))
	for _, metric := range f.s.ranks {
		out = append(out, *metric)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalXP == out[j].TotalXP {
			return out[i].UserID < out[j].UserID
		}
		return out[i].TotalXP > out[j].TotalXP
	})
	return out
}

func (f fakeRanks) List(ctx context.Context, limit, offset int) ([]models.RankMetric, int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failRankList != nil {
		return nil, 0, f.s.failRankList
	}
	all := f.sorted()
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (f fakeRanks) Position(ctx context.Context, userID string) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i, metric := range f.sorted() {
		if metric.UserID == userID {
			return i + 1, nil
		}
	}
	return 0, notFound("rank metric")
}

// ===== Reports, enrollments, users =====

type fakeReports struct{ s *fakeStore }

func (f fakeReports) Create(ctx context.Context, report *models.QuestionReport) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	report.ID = f.s.id()
	f.s.reports = append(f.s.reports, report)
	return nil
}

type fakeEnrollments struct{ s *fakeStore }

func (f fakeEnrollments) Exists(ctx context.Context, userID string, testID uint) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.enrollments[enrollmentKey(userID, testID)], nil
}

type fakeUsers struct{ s *fakeStore }

func (f fakeUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	user, ok := f.s.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return user, nil
}

func (f fakeUsers) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*models.User
	for _, id := range ids {
		if user, ok := f.s.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

// ===== Fixtures =====

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func uintPtr(v uint) *uint { return &v }

// tenQuestionTest builds a GENERAL test: one section, ten MCQs worth 2 marks each.
// For question i (1..10) the options are 10i+1 .. 10i+4 and 10i+3 is correct.
func tenQuestionTest(id uint) *models.Test {
	section := models.Section{ID: id*100 + 1, TestID: id, Title: "General", IsMandatory: true}
	for i := uint(1); i <= 10; i++ {
		qid := id*100 + i*10
		section.Questions = append(section.Questions, models.Question{
			ID:        qid,
			SectionID: section.ID,
			Type:      models.QuestionMCQ,
			Text:      fmt.Sprintf("What is %d + 2?", i),
			Marks:     2,
			SortOrder: int(i),
			Options: []models.Option{
				{ID: qid + 1, QuestionID: qid, Text: "3"},
				{ID: qid + 2, QuestionID: qid, Text: "4"},
				{ID: qid + 3, QuestionID: qid, Text: "5", IsCorrect: true},
				{ID: qid + 4, QuestionID: qid, Text: "6"},
			},
		})
	}
	return &models.Test{
		ID:              id,
		Title:           "Arithmetic",
		ExamType:        models.ExamGeneral,
		DurationMinutes: 30,
		PassPercentage:  6,
		RankingWeight:   1,
		Sections:        []models.Section{section},
	}
}

func questionID(testID, i uint) uint      { return testID*100 + i*10 }
func correctOption(testID, i uint) uint   { return questionID(testID, i) + 3 }
func incorrectOption(testID, i uint) uint { return questionID(testID, i) + 1 }
