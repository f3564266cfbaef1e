package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// File processing statuses.
const (
	FileStatusPending    = "pending"
	FileStatusProcessing = "processing"
	FileStatusCompleted  = "completed"
	FileStatusFailed     = "failed"
)

// File tracks one uploaded document and the vector collection its chunks
// were ingested into. Hash is the sha256 of the raw content and backs the
// duplicate-ingest check.
type File struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         primitive.ObjectID `bson:"user_id" json:"user_id"`
	Filename       string             `bson:"filename" json:"filename"`
	Path           string             `bson:"path" json:"-"`
	Size           int64              `bson:"size" json:"size"`
	Hash           string             `bson:"hash" json:"hash"`
	CollectionName string             `bson:"collection_name" json:"collection_name"`
	Status         string             `bson:"status" json:"status"`
	Error          string             `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}
