package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"llm-gateway-platform/internal/config"
	"llm-gateway-platform/internal/telemetry"
	"llm-gateway-platform/middleware"
	"llm-gateway-platform/models"
	"llm-gateway-platform/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Chat history is stored as compressed JSON to keep large conversations
// small in Mongo.
func encodeHistory(messages []models.ChatMessage) ([]byte, string, error) {
	raw, err := json.Marshal(messages)
	if err != nil {
		return nil, "", err
	}
	compressed, algorithm, err := utils.CompressText(string(raw))
	if err != nil {
		return nil, "", err
	}
	return compressed, string(algorithm), nil
}

func decodeHistory(chat *models.Chat) ([]models.ChatMessage, error) {
	if len(chat.History) == 0 {
		return []models.ChatMessage{}, nil
	}

	raw, err := utils.DecompressText(chat.History, utils.CompressionAlgorithm(chat.Compression))
	if err != nil {
		return nil, err
	}

	var messages []models.ChatMessage
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func SetupChatRoutes(router *gin.Engine, cfg *config.Config, mongoClient *mongo.Client, authMiddleware *middleware.AuthMiddleware, metrics *telemetry.Metrics) {
	chats := mongoClient.Database(cfg.DBName).Collection("chats")

	recordOp := func(operation string, err error) {
		if metrics != nil {
			metrics.RecordDatabaseOperation(operation, "chats", err == nil)
		}
	}

	group := router.Group("/chats")
	group.Use(authMiddleware.RequireAuth())

	group.GET("/", func(c *gin.Context) {
		userID, err := primitive.ObjectIDFromHex(middleware.GetUserID(c))
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid user identity")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		opts := options.Find().
			SetSort(bson.D{{Key: "updated_at", Value: -1}}).
			SetProjection(bson.M{"history": 0})
		cursor, err := chats.Find(ctx, bson.M{"user_id": userID}, opts)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list chats", nil)
			return
		}
		defer cursor.Close(ctx)

		summaries := []models.ChatSummary{}
		for cursor.Next(ctx) {
			var chat models.Chat
			if err := cursor.Decode(&chat); err != nil {
				continue
			}
			summaries = append(summaries, models.ChatSummary{
				ID:        chat.ID.Hex(),
				Title:     chat.Title,
				UpdatedAt: chat.UpdatedAt,
			})
		}

		c.JSON(http.StatusOK, summaries)
	})

	group.POST("/", func(c *gin.Context) {
		userID, err := primitive.ObjectIDFromHex(middleware.GetUserID(c))
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid user identity")
			return
		}

		var req models.ChatCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid chat", gin.H{"error": err.Error()})
			return
		}

		history, compression, err := encodeHistory(req.Messages)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to encode chat history", nil)
			return
		}

		now := time.Now()
		chat := models.Chat{
			UserID:      userID,
			Title:       req.Title,
			History:     history,
			Compression: compression,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		result, err := chats.InsertOne(ctx, chat)
		recordOp("insert", err)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create chat", nil)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"id": result.InsertedID, "title": chat.Title})
	})

	group.GET("/:id", func(c *gin.Context) {
		chat, ok := loadOwnedChat(c, chats)
		if !ok {
			return
		}

		messages, err := decodeHistory(chat)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to decode chat history", nil)
			return
		}

		c.JSON(http.StatusOK, models.ChatResponse{
			ID:        chat.ID.Hex(),
			Title:     chat.Title,
			Messages:  messages,
			CreatedAt: chat.CreatedAt,
			UpdatedAt: chat.UpdatedAt,
		})
	})

	group.PUT("/:id", func(c *gin.Context) {
		chat, ok := loadOwnedChat(c, chats)
		if !ok {
			return
		}

		var req models.ChatUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid chat update", gin.H{"error": err.Error()})
			return
		}

		update := bson.M{"updated_at": time.Now()}
		if req.Title != "" {
			update["title"] = req.Title
		}
		if req.Messages != nil {
			history, compression, err := encodeHistory(req.Messages)
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to encode chat history", nil)
				return
			}
			update["history"] = history
			update["compression"] = compression
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		_, err := chats.UpdateOne(ctx, bson.M{"_id": chat.ID}, bson.M{"$set": update})
		recordOp("update", err)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to update chat", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"id": chat.ID.Hex(), "updated": true})
	})

	group.DELETE("/:id", func(c *gin.Context) {
		chat, ok := loadOwnedChat(c, chats)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		_, err := chats.DeleteOne(ctx, bson.M{"_id": chat.ID})
		recordOp("delete", err)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to delete chat", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"id": chat.ID.Hex(), "deleted": true})
	})
}

// loadOwnedChat fetches the chat in the :id parameter and verifies it
// belongs to the authenticated user. On failure it writes the error
// response and returns ok=false.
func loadOwnedChat(c *gin.Context, chats *mongo.Collection) (*models.Chat, bool) {
	userID, err := primitive.ObjectIDFromHex(middleware.GetUserID(c))
	if err != nil {
		utils.RespondWithUnauthorized(c, "Invalid user identity")
		return nil, false
	}

	chatID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.RespondWithBadRequest(c, "Invalid chat id", nil)
		return nil, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	var chat models.Chat
	if err := chats.FindOne(ctx, bson.M{"_id": chatID, "user_id": userID}).Decode(&chat); err != nil {
		utils.RespondWithNotFound(c, "Chat not found")
		return nil, false
	}
	return &chat, true
}
