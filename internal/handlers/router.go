package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/mocktest-service/internal/models"
	"github.com/SAP-F-2025/mocktest-service/internal/services"
	"github.com/SAP-F-2025/mocktest-service/internal/utils"
)

type HandlerManager struct {
	attemptHandler     *AttemptHandler
	leaderboardHandler *LeaderboardHandler
	reportHandler      *ReportHandler
	authMiddleware     *CasdoorAuthMiddleware
	serviceManager     services.ServiceManager
}

func NewHandlerManager(serviceManager services.ServiceManager, verifier TokenVerifier, logger utils.Logger) *HandlerManager {
	return &HandlerManager{
		attemptHandler:     NewAttemptHandler(serviceManager.Attempt(), logger),
		leaderboardHandler: NewLeaderboardHandler(serviceManager.Rank(), logger),
		reportHandler:      NewReportHandler(serviceManager.Report(), logger),
		authMiddleware:     NewCasdoorAuthMiddleware(verifier),
		serviceManager:     serviceManager,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.health)

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		v1.POST("/tests/:test_id/attempts", hm.attemptHandler.StartAttempt)

		attempts := v1.Group("/attempts")
		{
			attempts.GET("/:id", hm.attemptHandler.TakeTest)
			attempts.PUT("/:id/answers/:question_id", hm.attemptHandler.SaveAnswer)
			attempts.POST("/:id/answers/:question_id/audio", hm.attemptHandler.SaveAudioAnswer)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.GET("/:id/remaining", hm.attemptHandler.Heartbeat)
			attempts.GET("/:id/result", hm.attemptHandler.GetResult)
		}

		v1.POST("/questions/:id/reports", hm.reportHandler.ReportQuestion)

		leaderboard := v1.Group("/leaderboard")
		{
			leaderboard.GET("", hm.leaderboardHandler.ListLeaderboard)
			leaderboard.GET("/me", hm.leaderboardHandler.GetMyRank)

			// Admin only
			leaderboard.GET("/export", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.leaderboardHandler.ExportLeaderboard)
			leaderboard.POST("/recalculate", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.leaderboardHandler.RecalculateAll)
		}
	}
}

func (hm *HandlerManager) health(c *gin.Context) {
	if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "mocktest-service",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "mocktest-service",
	})
}
