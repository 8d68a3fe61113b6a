package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/mocktest-service/internal/services"
	"github.com/SAP-F-2025/mocktest-service/internal/utils"
	"github.com/SAP-F-2025/mocktest-service/internal/validator"
)

type ErrorResponse struct {
	Error     string      `json:"error"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	ResultURL string      `json:"result_url,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// BaseHandler carries what every handler shares: logging, parameter parsing and error mapping
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.GetLogger(c, h.logger).Debug(msg, append(args, "user_id", c.GetString("user_id"))...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	utils.GetLogger(c, h.logger).Error(msg, append(args, "error", err)...)
	_ = c.Error(err)
}

// getUserID writes a 401 and returns false when the request carries no user
func (h *BaseHandler) getUserID(c *gin.Context) (string, bool) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "User not authenticated",
		})
		return "", false
	}
	return userID, true
}

func (h *BaseHandler) parseIDParam(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "bad_request",
			Message: "Invalid " + param,
		})
		return 0, false
	}
	return uint(id), true
}

func (h *BaseHandler) parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	value, err := strconv.Atoi(c.Query(param))
	if err != nil {
		return defaultValue
	}
	return value
}

func (h *BaseHandler) badRequest(c *gin.Context, message string, err error) {
	resp := ErrorResponse{Error: "bad_request", Message: message}
	if err != nil {
		resp.Details = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		utils.GetLogger(c, h.logger).Warn("Permission denied",
			"resource", permissionError.Resource,
			"resource_id", permissionError.ResourceID,
			"action", permissionError.Action,
			"reason", permissionError.Reason,
		)
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "Access denied",
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrNotEntitled):
		c.JSON(http.StatusPaymentRequired, ErrorResponse{
			Error:   "not_entitled",
			Message: "An active enrollment is required for this test",
		})
	case errors.Is(err, services.ErrAttemptAlreadySubmitted):
		resp := ErrorResponse{
			Error:   "already_submitted",
			Message: "Attempt already submitted",
		}
		if id := c.Param("id"); id != "" {
			resp.ResultURL = resultURL(id)
		}
		c.JSON(http.StatusConflict, resp)
	case errors.Is(err, services.ErrAttemptTimeExpired):
		c.JSON(http.StatusGone, ErrorResponse{
			Error:   "time_expired",
			Message: "Attempt time has expired",
		})
	case errors.Is(err, services.ErrTestNotOpen), errors.Is(err, services.ErrTestClosed):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrAttemptNotSubmitted):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "not_submitted",
			Message: "Attempt has not been submitted yet",
		})
	case errors.Is(err, services.ErrQuestionNotInTest), errors.Is(err, services.ErrInvalidOption):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "bad_request",
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrAttemptNotFound),
		errors.Is(err, services.ErrTestNotFound),
		errors.Is(err, services.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Internal server error",
		})
	}
}

func resultURL(attemptID any) string {
	return fmt.Sprintf("/api/v1/attempts/%v/result", attemptID)
}
