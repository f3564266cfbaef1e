package routes

import (
	"context"
	"errors"
	"net/http"

	"llm-gateway-platform/internal/config"
	"llm-gateway-platform/internal/telemetry"
	"llm-gateway-platform/internal/waitroom"
	"llm-gateway-platform/middleware"
	"llm-gateway-platform/utils"

	"github.com/gin-gonic/gin"
)

// SetupQueueRoutes exposes the waiting room. Users join the queue, poll
// their status, and confirm a draft slot to receive a session token that
// admits them to the gateway for the session lifetime.
func SetupQueueRoutes(router *gin.Engine, cfg *config.Config, room *waitroom.Room, authMiddleware *middleware.AuthMiddleware, metrics *telemetry.Metrics) {
	if metrics != nil {
		room.OnPromote = func(userID string) {
			metrics.QueuePromotions.Add(context.Background(), 1)
		}
	}

	group := router.Group("/queue")

	group.POST("/join", authMiddleware.RequireAuth(), func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		status, position := room.Join(userID)

		c.JSON(http.StatusOK, gin.H{
			"user_id":  userID,
			"status":   status,
			"position": position,
		})
	})

	group.GET("/status/:user_id", func(c *gin.Context) {
		userID := c.Param("user_id")
		status, position, err := room.Status(userID)
		if err != nil {
			utils.RespondWithNotFound(c, "User is not in the queue")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user_id":  userID,
			"status":   status,
			"position": position,
		})
	})

	group.POST("/confirm", authMiddleware.RequireAuth(), func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		duration, err := room.Confirm(userID)
		if err != nil {
			if errors.Is(err, waitroom.ErrNotFound) {
				utils.RespondWithNotFound(c, "User is not in the queue")
				return
			}
			utils.RespondWithError(c, http.StatusConflict, "not_draft",
				"No draft slot to confirm; wait for promotion", nil)
			return
		}

		token, err := utils.GenerateJWT(userID, "session", cfg.JWTSecret, duration)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue session token", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user_id":          userID,
			"status":           waitroom.StatusConnected,
			"session_token":    token,
			"session_duration": int(duration.Seconds()),
		})
	})

	group.POST("/leave", authMiddleware.RequireAuth(), func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		room.Leave(userID)

		c.JSON(http.StatusOK, gin.H{"user_id": userID, "left": true})
	})

	group.POST("/idle", authMiddleware.RequireAuth(), authMiddleware.RequireAdmin(), func(c *gin.Context) {
		removed := room.Idle()
		c.JSON(http.StatusOK, gin.H{"expired": removed})
	})

	group.GET("/metrics", func(c *gin.Context) {
		m := room.Metrics()
		c.JSON(http.StatusOK, gin.H{
			"waiting":                m.Waiting,
			"draft":                  m.Draft,
			"connected":              m.Connected,
			"max_connected":          m.MaxConnected,
			"estimated_wait_seconds": int(m.EstimatedWait.Seconds()),
		})
	})
}
