package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/mocktest-service/internal/services"
	"github.com/SAP-F-2025/mocktest-service/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type LeaderboardHandler struct {
	BaseHandler
	rankService services.RankService
}

func NewLeaderboardHandler(rankService services.RankService, logger utils.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		BaseHandler: NewBaseHandler(logger),
		rankService: rankService,
	}
}

// ListLeaderboard pages through ranked users
// @Router /leaderboard [get]
func (h *LeaderboardHandler) ListLeaderboard(c *gin.Context) {
	limit := h.parseIntQuery(c, "limit", 0)
	offset := h.parseIntQuery(c, "offset", 0)

	resp, err := h.rankService.Leaderboard(c.Request.Context(), limit, offset)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetMyRank returns the caller's metric and position
// @Router /leaderboard/me [get]
func (h *LeaderboardHandler) GetMyRank(c *gin.Context) {
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	resp, err := h.rankService.GetUserRank(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ExportLeaderboard downloads the full leaderboard as a spreadsheet
// @Router /leaderboard/export [get]
func (h *LeaderboardHandler) ExportLeaderboard(c *gin.Context) {
	h.LogRequest(c, "Exporting leaderboard")

	data, err := h.rankService.ExportLeaderboard(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("leaderboard-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// RecalculateAll rebuilds every user's metric from their submitted attempts
// @Router /leaderboard/recalculate [post]
func (h *LeaderboardHandler) RecalculateAll(c *gin.Context) {
	h.LogRequest(c, "Recalculating all ranks")

	processed, err := h.rankService.RecalculateAll(c.Request.Context())
	if err != nil {
		h.LogError(c, err, "Rank recalculation incomplete", "processed", processed)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "recalculation_incomplete",
			Message: "Rank recalculation did not finish for every user",
			Details: gin.H{"processed": processed},
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Ranks recalculated",
		Data:    gin.H{"processed": processed},
	})
}
