// Package queue defines the async document processing tasks and their
// handlers. Large uploads are ingested through here instead of blocking
// the upload request.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"llm-gateway-platform/internal/logger"
	"llm-gateway-platform/models"
	"llm-gateway-platform/services"
	"llm-gateway-platform/utils"
)

const (
	TaskProcessDocument = "document:process"
)

type DocumentProcessPayload struct {
	FileID string `json:"file_id"`
}

// NewDocumentProcessTask enqueues ingestion of an uploaded file.
func NewDocumentProcessTask(fileID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentProcessPayload{FileID: fileID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskProcessDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("default"),
	), nil
}

// TaskProcessor holds the dependencies task handlers need.
type TaskProcessor struct {
	ingest *services.IngestService
	files  *mongo.Collection
}

func NewTaskProcessor(ingest *services.IngestService, files *mongo.Collection) *TaskProcessor {
	return &TaskProcessor{
		ingest: ingest,
		files:  files,
	}
}

// ProcessDocument loads the uploaded file from disk, runs the ingest
// pipeline, and records the outcome on the file record. Duplicate and
// empty content are terminal outcomes, not retryable failures.
func (p *TaskProcessor) ProcessDocument(ctx context.Context, t *asynq.Task) error {
	var payload DocumentProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to decode task payload: %v: %w", err, asynq.SkipRetry)
	}

	fileID, err := primitive.ObjectIDFromHex(payload.FileID)
	if err != nil {
		return fmt.Errorf("invalid file id %s: %w", payload.FileID, asynq.SkipRetry)
	}

	var file models.File
	if err := p.files.FindOne(ctx, bson.M{"_id": fileID}).Decode(&file); err != nil {
		return fmt.Errorf("failed to load file record: %w", err)
	}

	p.updateStatus(ctx, fileID, models.FileStatusProcessing, "")

	docs, err := services.LoadFile(file.Path, file.Filename)
	if err != nil {
		p.updateStatus(ctx, fileID, models.FileStatusFailed, err.Error())
		return fmt.Errorf("failed to load document: %v: %w", err, asynq.SkipRetry)
	}

	err = p.ingest.SaveDocs(ctx, docs, services.IngestOptions{
		CollectionName: file.CollectionName,
		Metadata: map[string]interface{}{
			"file_id":    file.ID.Hex(),
			"name":       file.Filename,
			"hash":       file.Hash,
			"created_by": file.UserID.Hex(),
		},
		Split: true,
		Add:   true,
	})
	if err != nil {
		p.updateStatus(ctx, fileID, models.FileStatusFailed, err.Error())
		if errors.Is(err, utils.ErrDuplicateContent) || errors.Is(err, utils.ErrEmptyContent) {
			return fmt.Errorf("ingest rejected document: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to ingest document: %w", err)
	}

	p.updateStatus(ctx, fileID, models.FileStatusCompleted, "")
	logger.Info("Processed document", "file_id", payload.FileID, "collection", file.CollectionName)
	return nil
}

func (p *TaskProcessor) updateStatus(ctx context.Context, fileID primitive.ObjectID, status, errMessage string) {
	update := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	if errMessage != "" {
		update["error"] = errMessage
	}

	if _, err := p.files.UpdateOne(ctx, bson.M{"_id": fileID}, bson.M{"$set": update}); err != nil {
		logger.Error("Failed to update file status", "file_id", fileID.Hex(), "status", status, "error", err)
	}
}
