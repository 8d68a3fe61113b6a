package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/mocktest-service/internal/grading"
	"github.com/SAP-F-2025/mocktest-service/internal/models"
	"github.com/SAP-F-2025/mocktest-service/internal/services"
	"github.com/SAP-F-2025/mocktest-service/internal/utils"
	"github.com/SAP-F-2025/mocktest-service/internal/validator"
)

// ===== FAKES =====

type fakeVerifier struct {
	users map[string]*models.User
}

func (f *fakeVerifier) Verify(token string) (*models.User, error) {
	if user, ok := f.users[token]; ok {
		return user, nil
	}
	return nil, errors.New("signature mismatch")
}

type fakeAttemptService struct {
	services.AttemptService

	startFn  func(testID uint, userID string) (*services.AttemptResponse, error)
	saveFn   func(attemptID, questionID uint, req *services.SaveAnswerRequest) (*services.AnswerResponse, error)
	audioFn  func(req *services.SaveAudioAnswerRequest) (*services.AnswerResponse, error)
	submitFn func(attemptID uint, req *services.SubmitRequest, userID string) (*services.SubmitResult, error)
}

func (f *fakeAttemptService) StartOrResume(ctx context.Context, testID uint, userID string) (*services.AttemptResponse, error) {
	return f.startFn(testID, userID)
}

func (f *fakeAttemptService) SaveAnswer(ctx context.Context, attemptID, questionID uint, req *services.SaveAnswerRequest, userID string) (*services.AnswerResponse, error) {
	return f.saveFn(attemptID, questionID, req)
}

func (f *fakeAttemptService) SaveAudioAnswer(ctx context.Context, attemptID, questionID uint, req *services.SaveAudioAnswerRequest, userID string) (*services.AnswerResponse, error) {
	return f.audioFn(req)
}

func (f *fakeAttemptService) Submit(ctx context.Context, attemptID uint, req *services.SubmitRequest, userID string) (*services.SubmitResult, error) {
	return f.submitFn(attemptID, req, userID)
}

type fakeRankService struct {
	services.RankService

	exported    bool
	recalcCount int
	recalcErr   error
}

func (f *fakeRankService) Leaderboard(ctx context.Context, limit, offset int) (*services.LeaderboardResponse, error) {
	return &services.LeaderboardResponse{Limit: limit, Offset: offset}, nil
}

func (f *fakeRankService) ExportLeaderboard(ctx context.Context) ([]byte, error) {
	f.exported = true
	return []byte("PK"), nil
}

func (f *fakeRankService) RecalculateAll(ctx context.Context) (int, error) {
	return f.recalcCount, f.recalcErr
}

type fakeReportService struct {
	err error
}

func (f *fakeReportService) ReportQuestion(ctx context.Context, questionID uint, req *services.ReportQuestionRequest, userID string) (*models.QuestionReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.QuestionReport{ID: 1, QuestionID: questionID, UserID: userID, ReportText: req.Reason}, nil
}

type fakeServiceManager struct {
	attempts  *fakeAttemptService
	ranks     *fakeRankService
	reports   *fakeReportService
	healthErr error
}

func (f *fakeServiceManager) Attempt() services.AttemptService      { return f.attempts }
func (f *fakeServiceManager) Rank() services.RankService            { return f.ranks }
func (f *fakeServiceManager) Report() services.ReportService        { return f.reports }
func (f *fakeServiceManager) Grading() *grading.Registry            { return grading.NewRegistry() }
func (f *fakeServiceManager) Initialize(ctx context.Context) error  { return nil }
func (f *fakeServiceManager) HealthCheck(ctx context.Context) error { return f.healthErr }
func (f *fakeServiceManager) Shutdown(ctx context.Context) error    { return nil }

// ===== HARNESS =====

const (
	studentToken = "student-token"
	adminToken   = "admin-token"
)

type harness struct {
	router   *gin.Engine
	manager  *fakeServiceManager
	attempts *fakeAttemptService
	ranks    *fakeRankService
	reports  *fakeReportService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		attempts: &fakeAttemptService{},
		ranks:    &fakeRankService{},
		reports:  &fakeReportService{},
	}
	h.manager = &fakeServiceManager{attempts: h.attempts, ranks: h.ranks, reports: h.reports}

	verifier := &fakeVerifier{users: map[string]*models.User{
		studentToken: {ID: "student-1", Role: models.RoleStudent},
		adminToken:   {ID: "admin-1", Role: models.RoleAdmin},
	}}

	logger := utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.router = gin.New()
	SetupMiddleware(h.router, logger)
	NewHandlerManager(h.manager, verifier, logger).SetupRoutes(h.router)
	return h
}

func (h *harness) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) doJSON(method, path, token string, payload any) *httptest.ResponseRecorder {
	var body io.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	}
	return h.do(method, path, token, body, "application/json")
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error body %q: %v", w.Body.String(), err)
	}
	return resp
}

// ===== TESTS =====

func TestAuthMiddleware(t *testing.T) {
	h := newHarness(t)
	h.attempts.startFn = func(testID uint, userID string) (*services.AttemptResponse, error) {
		return &services.AttemptResponse{Attempt: &models.Attempt{ID: 1, UserID: userID}}, nil
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer forged", want: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer " + studentToken, want: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/tests/1/attempts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestStartAttempt(t *testing.T) {
	tests := []struct {
		name       string
		resp       *services.AttemptResponse
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "new attempt",
			resp:       &services.AttemptResponse{Attempt: &models.Attempt{ID: 3}},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "resumed attempt",
			resp:       &services.AttemptResponse{Attempt: &models.Attempt{ID: 3}, Resumed: true},
			wantStatus: http.StatusOK,
		},
		{
			name:       "not entitled",
			err:        services.ErrNotEntitled,
			wantStatus: http.StatusPaymentRequired,
			wantError:  "not_entitled",
		},
		{
			name:       "unknown test",
			err:        fmt.Errorf("lookup: %w", services.ErrTestNotFound),
			wantStatus: http.StatusNotFound,
			wantError:  "not_found",
		},
		{
			name:       "closed test",
			err:        services.ErrTestClosed,
			wantStatus: http.StatusForbidden,
			wantError:  "forbidden",
		},
		{
			name:       "unexpected failure",
			err:        errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal_error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			var gotTest uint
			var gotUser string
			h.attempts.startFn = func(testID uint, userID string) (*services.AttemptResponse, error) {
				gotTest, gotUser = testID, userID
				return tt.resp, tt.err
			}

			w := h.do(http.MethodPost, "/api/v1/tests/42/attempts", studentToken, nil, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if gotTest != 42 || gotUser != "student-1" {
				t.Errorf("service called with test %d user %q", gotTest, gotUser)
			}
			if tt.wantError != "" {
				if resp := decodeError(t, w); resp.Error != tt.wantError {
					t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
				}
			}
		})
	}
}

func TestSaveAnswer(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		body          string
		err           error
		wantStatus    int
		wantResultURL string
	}{
		{
			name:       "saved",
			path:       "/api/v1/attempts/5/answers/7",
			body:       `{"selected_option_id": 9}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "bad attempt id",
			path:       "/api/v1/attempts/abc/answers/7",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			path:       "/api/v1/attempts/5/answers/7",
			body:       `{"selected_option_id": "nine"`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:          "already submitted",
			path:          "/api/v1/attempts/5/answers/7",
			body:          `{}`,
			err:           services.ErrAttemptAlreadySubmitted,
			wantStatus:    http.StatusConflict,
			wantResultURL: "/api/v1/attempts/5/result",
		},
		{
			name:       "time expired",
			path:       "/api/v1/attempts/5/answers/7",
			body:       `{}`,
			err:        services.ErrAttemptTimeExpired,
			wantStatus: http.StatusGone,
		},
		{
			name:       "question outside test",
			path:       "/api/v1/attempts/5/answers/7",
			body:       `{}`,
			err:        services.ErrQuestionNotInTest,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "validation failure",
			path:       "/api/v1/attempts/5/answers/7",
			body:       `{}`,
			err:        validator.NewFieldError("text_answer", "max", "must be at most 10000"),
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.attempts.saveFn = func(attemptID, questionID uint, req *services.SaveAnswerRequest) (*services.AnswerResponse, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return &services.AnswerResponse{AnswerID: 1, QuestionID: questionID, SelectedOptionID: req.SelectedOptionID}, nil
			}

			w := h.do(http.MethodPut, tt.path, studentToken, strings.NewReader(tt.body), "application/json")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantResultURL != "" {
				if resp := decodeError(t, w); resp.ResultURL != tt.wantResultURL {
					t.Errorf("result_url = %q, want %q", resp.ResultURL, tt.wantResultURL)
				}
			}
		})
	}
}

func TestPermissionErrorIsGeneric(t *testing.T) {
	h := newHarness(t)
	h.attempts.saveFn = func(attemptID, questionID uint, req *services.SaveAnswerRequest) (*services.AnswerResponse, error) {
		return nil, services.NewPermissionError("student-1", attemptID, "attempt", "answer", "owned by student-2")
	}

	w := h.doJSON(http.MethodPut, "/api/v1/attempts/5/answers/7", studentToken, map[string]any{})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if strings.Contains(w.Body.String(), "student-2") {
		t.Errorf("response leaks ownership details: %s", w.Body.String())
	}
}

func TestSaveAudioAnswer(t *testing.T) {
	h := newHarness(t)
	var got *services.SaveAudioAnswerRequest
	h.attempts.audioFn = func(req *services.SaveAudioAnswerRequest) (*services.AnswerResponse, error) {
		got = req
		return &services.AnswerResponse{AnswerID: 1}, nil
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="audio"; filename="answer.webm"`)
	header.Set("Content-Type", "audio/webm")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("recording"))
	writer.Close()

	w := h.do(http.MethodPost, "/api/v1/attempts/5/answers/7/audio", studentToken, &body, writer.FormDataContentType())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	if got == nil || string(got.Data) != "recording" || got.ContentType != "audio/webm" {
		t.Errorf("service received %+v", got)
	}

	t.Run("missing file", func(t *testing.T) {
		w := h.do(http.MethodPost, "/api/v1/attempts/5/answers/7/audio", studentToken, strings.NewReader("x"), "text/plain")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestSubmitAttempt(t *testing.T) {
	h := newHarness(t)
	var gotReq *services.SubmitRequest
	h.attempts.submitFn = func(attemptID uint, req *services.SubmitRequest, userID string) (*services.SubmitResult, error) {
		gotReq = req
		return &services.SubmitResult{AttemptID: attemptID, Score: 8, AlreadySubmitted: attemptID == 6}, nil
	}

	t.Run("without body", func(t *testing.T) {
		w := h.do(http.MethodPost, "/api/v1/attempts/5/submit", studentToken, nil, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
		}
		var resp struct {
			AttemptID uint    `json:"attempt_id"`
			Score     float64 `json:"score"`
			ResultURL string  `json:"result_url"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.AttemptID != 5 || resp.Score != 8 || resp.ResultURL != "/api/v1/attempts/5/result" {
			t.Errorf("unexpected response %+v", resp)
		}
		if gotReq == nil || gotReq.Review != nil {
			t.Errorf("expected empty submit request, got %+v", gotReq)
		}
	})

	t.Run("with review", func(t *testing.T) {
		w := h.doJSON(http.MethodPost, "/api/v1/attempts/5/submit", studentToken, map[string]any{
			"review": map[string]any{"rating": 5, "text": "great"},
		})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if gotReq.Review == nil || gotReq.Review.Rating != 5 {
			t.Errorf("review not passed through: %+v", gotReq.Review)
		}
	})

	t.Run("repeat submit returns stored result", func(t *testing.T) {
		w := h.do(http.MethodPost, "/api/v1/attempts/6/submit", studentToken, nil, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if !strings.Contains(w.Body.String(), `"already_submitted":true`) {
			t.Errorf("body = %s", w.Body.String())
		}
	})
}

func TestLeaderboardAdminRoutes(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/api/v1/leaderboard/export", studentToken, nil, "")
	if w.Code != http.StatusForbidden {
		t.Errorf("student export status = %d, want 403", w.Code)
	}
	if h.ranks.exported {
		t.Error("export ran for a student")
	}

	w = h.do(http.MethodGet, "/api/v1/leaderboard/export", adminToken, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("admin export status = %d, want 200", w.Code)
	}
	if w.Header().Get("Content-Type") != xlsxContentType {
		t.Errorf("content type = %q", w.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment;") {
		t.Errorf("content disposition = %q", w.Header().Get("Content-Disposition"))
	}

	h.ranks.recalcCount = 12
	w = h.do(http.MethodPost, "/api/v1/leaderboard/recalculate", adminToken, nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("recalculate status = %d, want 200", w.Code)
	}

	h.ranks.recalcErr = errors.New("rank recalculation failed for 1 of 13 users")
	w = h.do(http.MethodPost, "/api/v1/leaderboard/recalculate", adminToken, nil, "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("failed recalculate status = %d, want 500", w.Code)
	}
}

func TestListLeaderboardPassesPaging(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/api/v1/leaderboard?limit=20&offset=40", studentToken, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp services.LeaderboardResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Limit != 20 || resp.Offset != 40 {
		t.Errorf("paging = %d/%d, want 20/40", resp.Limit, resp.Offset)
	}
}

func TestReportQuestion(t *testing.T) {
	h := newHarness(t)

	w := h.doJSON(http.MethodPost, "/api/v1/questions/12/reports", studentToken, map[string]string{"reason": "two correct options"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}

	h.reports.err = services.ErrQuestionNotFound
	w = h.doJSON(http.MethodPost, "/api/v1/questions/12/reports", studentToken, map[string]string{"reason": "typo"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/health", "", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("healthy status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}

	h.manager.healthErr = errors.New("database unreachable")
	w = h.do(http.MethodGet, "/health", "", nil, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want 503", w.Code)
	}
}
