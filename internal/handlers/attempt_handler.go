package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/mocktest-service/internal/services"
	"github.com/SAP-F-2025/mocktest-service/internal/utils"
)

const (
	audioFormField = "audio"
	// multipart overhead on top of the 10 MiB audio limit
	maxAudioUploadBytes = 11 << 20
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
}

func NewAttemptHandler(attemptService services.AttemptService, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
	}
}

type submitResponse struct {
	*services.SubmitResult
	ResultURL string `json:"result_url"`
}

// StartAttempt opens a new attempt or resumes the caller's running one
// @Router /tests/{test_id}/attempts [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	testID, ok := h.parseIDParam(c, "test_id")
	if !ok {
		return
	}
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Starting attempt", "test_id", testID)

	attempt, err := h.attemptService.StartOrResume(c.Request.Context(), testID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if attempt.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, attempt)
}

// TakeTest returns the test content for a running attempt, without answer keys
// @Router /attempts/{id} [get]
func (h *AttemptHandler) TakeTest(c *gin.Context) {
	attemptID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	view, err := h.attemptService.TakeTest(c.Request.Context(), attemptID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// SaveAnswer upserts the answer to one question
// @Router /attempts/{id}/answers/{question_id} [put]
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	attemptID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := h.parseIDParam(c, "question_id")
	if !ok {
		return
	}
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	var req services.SaveAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request payload", err)
		return
	}

	answer, err := h.attemptService.SaveAnswer(c.Request.Context(), attemptID, questionID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, answer)
}

// SaveAudioAnswer stores a speaking recording sent as multipart field "audio"
// @Router /attempts/{id}/answers/{question_id}/audio [post]
func (h *AttemptHandler) SaveAudioAnswer(c *gin.Context) {
	attemptID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := h.parseIDParam(c, "question_id")
	if !ok {
		return
	}
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAudioUploadBytes)

	fileHeader, err := c.FormFile(audioFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
				Error:   "payload_too_large",
				Message: "Audio upload is too large",
			})
			return
		}
		h.badRequest(c, "Missing audio file", err)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.badRequest(c, "Unreadable audio file", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.badRequest(c, "Unreadable audio file", err)
		return
	}

	req := &services.SaveAudioAnswerRequest{
		Data:        data,
		ContentType: fileHeader.Header.Get("Content-Type"),
	}

	answer, err := h.attemptService.SaveAudioAnswer(c.Request.Context(), attemptID, questionID, req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, answer)
}

// SubmitAttempt grades the attempt. Repeated calls return the stored result.
// @Router /attempts/{id}/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	attemptID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	// body is optional
	var req services.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(c, "Invalid request payload", err)
		return
	}

	h.LogRequest(c, "Submitting attempt", "attempt_id", attemptID)

	result, err := h.attemptService.Submit(c.Request.Context(), attemptID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submitResponse{
		SubmitResult: result,
		ResultURL:    resultURL(result.AttemptID),
	})
}

// Heartbeat reports the remaining time and closes the attempt once it runs out
// @Router /attempts/{id}/remaining [get]
func (h *AttemptHandler) Heartbeat(c *gin.Context) {
	attemptID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	resp, err := h.attemptService.Heartbeat(c.Request.Context(), attemptID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetResult returns the per-question analysis of a submitted attempt
// @Router /attempts/{id}/result [get]
func (h *AttemptHandler) GetResult(c *gin.Context) {
	attemptID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	result, err := h.attemptService.GetResult(c.Request.Context(), attemptID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
