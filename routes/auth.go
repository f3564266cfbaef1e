package routes

import (
	"context"
	"net/http"
	"time"

	"llm-gateway-platform/internal/config"
	"llm-gateway-platform/models"
	"llm-gateway-platform/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const tokenLifetime = 24 * time.Hour

func SetupAuthRoutes(router *gin.Engine, cfg *config.Config, mongoClient *mongo.Client) {
	users := mongoClient.Database(cfg.DBName).Collection("users")

	auth := router.Group("/auth")

	auth.POST("/register", func(c *gin.Context) {
		var req models.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid registration request", gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		count, err := users.CountDocuments(ctx, bson.M{"username": req.Username})
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to check username", nil)
			return
		}
		if count > 0 {
			utils.RespondWithError(c, http.StatusConflict, "username_taken", "Username is already taken", nil)
			return
		}

		hash, err := utils.HashPassword(req.Password, cfg.BcryptCost)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to hash password", nil)
			return
		}

		// The first registered user becomes the admin.
		role := "user"
		total, err := users.EstimatedDocumentCount(ctx)
		if err == nil && total == 0 {
			role = "admin"
		}

		now := time.Now()
		user := models.User{
			Username:     req.Username,
			Name:         req.Name,
			Email:        req.Email,
			PasswordHash: hash,
			Role:         role,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		result, err := users.InsertOne(ctx, user)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create user", nil)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":       result.InsertedID,
			"username": user.Username,
			"role":     user.Role,
		})
	})

	auth.POST("/login", func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid login request", gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		var user models.User
		if err := users.FindOne(ctx, bson.M{"username": req.Username}).Decode(&user); err != nil {
			utils.RespondWithUnauthorized(c, "Invalid username or password")
			return
		}
		if !utils.CheckPassword(req.Password, user.PasswordHash) {
			utils.RespondWithUnauthorized(c, "Invalid username or password")
			return
		}

		token, err := utils.GenerateJWT(user.ID.Hex(), user.Role, cfg.JWTSecret, tokenLifetime)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue token", nil)
			return
		}

		c.JSON(http.StatusOK, models.LoginResponse{
			Token:     token,
			ExpiresAt: time.Now().Add(tokenLifetime),
			User: models.UserInfo{
				ID:       user.ID.Hex(),
				Username: user.Username,
				Name:     user.Name,
				Email:    user.Email,
				Role:     user.Role,
			},
		})
	})

	auth.POST("/refresh", func(c *gin.Context) {
		tokenString := utils.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if tokenString == "" {
			utils.RespondWithUnauthorized(c, "Authentication token is required")
			return
		}

		token, err := utils.RefreshJWT(tokenString, cfg.JWTSecret, tokenLifetime)
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid or expired token")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_at": time.Now().Add(tokenLifetime),
		})
	})
}
