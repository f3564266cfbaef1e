package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"llm-gateway-platform/internal/embed"
	"llm-gateway-platform/internal/logger"
	"llm-gateway-platform/internal/vector"
	"llm-gateway-platform/utils"
)

// IngestService writes documents into the vector store: it deduplicates
// by content hash, splits, stamps metadata, embeds in one batched call,
// and inserts the chunks.
type IngestService struct {
	store    vector.Store
	embedder embed.Embedder
	splitter Splitter
}

func NewIngestService(store vector.Store, embedder embed.Embedder, splitter Splitter) *IngestService {
	return &IngestService{
		store:    store,
		embedder: embedder,
		splitter: splitter,
	}
}

// IngestOptions controls one SaveDocs call.
type IngestOptions struct {
	CollectionName string
	// Metadata is stamped onto every chunk. A "hash" key enables the
	// duplicate-content check.
	Metadata map[string]interface{}
	// Overwrite deletes an existing collection before inserting.
	Overwrite bool
	// Split disables chunking when false; documents are stored whole.
	Split bool
	// Add appends to an existing collection. Without Add or Overwrite an
	// existing collection short-circuits the ingest.
	Add bool
}

// SaveDocs runs the full ingest pipeline for one document set. It returns
// utils.ErrDuplicateContent when the content hash is already stored and
// utils.ErrEmptyContent when splitting produced nothing.
func (s *IngestService) SaveDocs(ctx context.Context, docs []Document, opts IngestOptions) error {
	// Same content in the same collection is rejected before any work.
	if hash, ok := opts.Metadata["hash"].(string); ok && hash != "" {
		exists, err := s.store.HasCollection(ctx, opts.CollectionName)
		if err != nil {
			return fmt.Errorf("failed to check collection: %w", err)
		}
		if exists {
			found, err := s.store.Query(ctx, opts.CollectionName, map[string]interface{}{"hash": hash}, 1)
			if err != nil {
				return fmt.Errorf("failed to query for duplicates: %w", err)
			}
			if len(found.IDs) > 0 {
				return utils.ErrDuplicateContent
			}
		}
	}

	if opts.Split {
		split, err := s.splitter.SplitDocuments(docs)
		if err != nil {
			return err
		}
		docs = split
	}
	if len(docs) == 0 {
		return utils.ErrEmptyContent
	}

	embeddingConfig, err := json.Marshal(map[string]string{
		"engine": s.embedder.Engine(),
		"model":  s.embedder.Model(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode embedding config: %w", err)
	}

	for i := range docs {
		metadata := make(map[string]interface{}, len(docs[i].Metadata)+len(opts.Metadata)+1)
		for k, v := range docs[i].Metadata {
			metadata[k] = v
		}
		for k, v := range opts.Metadata {
			metadata[k] = v
		}
		metadata["embedding_config"] = string(embeddingConfig)

		// Vector store metadata values must be scalar.
		for k, v := range metadata {
			if ts, ok := v.(time.Time); ok {
				metadata[k] = ts.Format(time.RFC3339)
			}
		}
		docs[i].Metadata = metadata
	}

	exists, err := s.store.HasCollection(ctx, opts.CollectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		if opts.Overwrite {
			if err := s.store.DeleteCollection(ctx, opts.CollectionName); err != nil {
				return fmt.Errorf("failed to overwrite collection: %w", err)
			}
			logger.Info("Overwriting existing collection", "collection", opts.CollectionName)
		} else if !opts.Add {
			logger.Info("Collection already exists, skipping ingest", "collection", opts.CollectionName)
			return nil
		}
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = strings.ReplaceAll(doc.PageContent, "\n", " ")
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(docs))
	}

	items := make([]vector.Item, len(docs))
	for i := range docs {
		items[i] = vector.Item{
			ID:       uuid.New().String(),
			Text:     texts[i],
			Vector:   vectors[i],
			Metadata: docs[i].Metadata,
		}
	}

	if err := s.store.Insert(ctx, opts.CollectionName, items); err != nil {
		return fmt.Errorf("failed to insert into vector store: %w", err)
	}

	logger.Info("Saved documents to vector store",
		"collection", opts.CollectionName,
		"chunks", len(items))
	return nil
}
