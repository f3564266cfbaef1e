package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chat stores one conversation. History is the full message list encoded
// as compressed JSON; the Compression field names the codec used.
type Chat struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      primitive.ObjectID `bson:"user_id" json:"user_id"`
	Title       string             `bson:"title" json:"title"`
	History     []byte             `bson:"history" json:"-"`
	Compression string             `bson:"compression" json:"-"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// ChatMessage is one turn of a conversation as stored inside History.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ChatCreateRequest struct {
	Title    string        `json:"title" binding:"required,min=1,max=200"`
	Messages []ChatMessage `json:"messages"`
}

type ChatUpdateRequest struct {
	Title    string        `json:"title" binding:"omitempty,min=1,max=200"`
	Messages []ChatMessage `json:"messages"`
}

type ChatResponse struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type ChatSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}
