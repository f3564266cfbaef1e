package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"llm-gateway-platform/internal/config"
	"llm-gateway-platform/internal/embed"
	"llm-gateway-platform/internal/logger"
	"llm-gateway-platform/internal/queue"
	"llm-gateway-platform/internal/retrieval"
	"llm-gateway-platform/internal/telemetry"
	"llm-gateway-platform/internal/vector"
	"llm-gateway-platform/middleware"
	"llm-gateway-platform/models"
	"llm-gateway-platform/services"
	"llm-gateway-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// RetrievalState holds the runtime-mutable retrieval configuration. The
// update endpoints swap pieces of it under the lock; request handlers
// take a consistent snapshot before doing work.
type RetrievalState struct {
	mu sync.RWMutex

	embedder *embed.Client
	reranker retrieval.Reranker

	embeddingEngine string
	embeddingModel  string
	embeddingURL    string
	embeddingKey    string
	batchSize       int

	splitterName string
	chunkSize    int
	chunkOverlap int

	topK               int
	relevanceThreshold float64
	hybrid             bool
}

// NewRetrievalState builds the initial state from configuration.
func NewRetrievalState(cfg *config.Config) (*RetrievalState, error) {
	s := &RetrievalState{
		embeddingEngine:    cfg.EmbeddingEngine,
		embeddingModel:     cfg.EmbeddingModel,
		batchSize:          cfg.EmbeddingBatchSize,
		splitterName:       cfg.TextSplitter,
		chunkSize:          cfg.ChunkSize,
		chunkOverlap:       cfg.ChunkOverlap,
		topK:               cfg.TopK,
		relevanceThreshold: cfg.RelevanceThreshold,
		hybrid:             cfg.HybridSearch,
	}

	url, key := embeddingEndpoint(cfg, cfg.EmbeddingEngine)
	s.embeddingURL = url
	s.embeddingKey = key

	embedder, err := embed.New(cfg.EmbeddingEngine, cfg.EmbeddingModel, url, key, cfg.EmbeddingBatchSize)
	if err != nil {
		return nil, err
	}
	s.embedder = embedder

	if cfg.RerankingURL != "" {
		s.reranker = retrieval.NewHTTPReranker(cfg.RerankingURL, cfg.RerankingModel)
	} else {
		s.reranker = retrieval.NewCosineReranker(embedder)
	}
	return s, nil
}

func embeddingEndpoint(cfg *config.Config, engine string) (string, string) {
	switch engine {
	case "ollama":
		return cfg.OllamaBaseURL, cfg.OllamaAPIKey
	case "openai":
		return cfg.OpenAIBaseURL, cfg.OpenAIAPIKey
	default:
		return cfg.EmbeddingServerURL, ""
	}
}

// Embedder returns the current embedding client.
func (s *RetrievalState) Embedder() *embed.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embedder
}

// Reranker returns the current reranker.
func (s *RetrievalState) Reranker() retrieval.Reranker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reranker
}

// QuerySettings returns the current defaults for k, r, and hybrid mode.
func (s *RetrievalState) QuerySettings() (int, float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topK, s.relevanceThreshold, s.hybrid
}

// Splitter builds a splitter from the current chunking configuration.
func (s *RetrievalState) Splitter(tiktokenEncoding string) (services.Splitter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return services.NewSplitter(s.splitterName, s.chunkSize, s.chunkOverlap, tiktokenEncoding)
}

// Ingest builds an ingest service bound to the current embedder and
// splitter.
func (s *RetrievalState) Ingest(store vector.Store, tiktokenEncoding string) (*services.IngestService, error) {
	splitter, err := s.Splitter(tiktokenEncoding)
	if err != nil {
		return nil, err
	}
	return services.NewIngestService(store, s.Embedder(), splitter), nil
}

func SetupRetrievalRoutes(
	router *gin.Engine,
	cfg *config.Config,
	mongoClient *mongo.Client,
	store vector.Store,
	state *RetrievalState,
	asynqClient *asynq.Client,
	authMiddleware *middleware.AuthMiddleware,
	metrics *telemetry.Metrics,
) {
	files := mongoClient.Database(cfg.DBName).Collection("files")

	group := router.Group("/retrieval")

	group.GET("/", func(c *gin.Context) {
		state.mu.RLock()
		defer state.mu.RUnlock()

		c.JSON(http.StatusOK, gin.H{
			"status":        true,
			"chunk_size":    state.chunkSize,
			"chunk_overlap": state.chunkOverlap,
			"text_splitter": state.splitterName,
		})
	})

	group.GET("/embedding", authMiddleware.RequireAuth(), func(c *gin.Context) {
		state.mu.RLock()
		defer state.mu.RUnlock()

		c.JSON(http.StatusOK, gin.H{
			"status":               true,
			"embedding_engine":     state.embeddingEngine,
			"embedding_model":      state.embeddingModel,
			"embedding_batch_size": state.batchSize,
		})
	})

	group.POST("/embedding/update", authMiddleware.RequireAuth(), authMiddleware.RequireAdmin(), func(c *gin.Context) {
		var form models.EmbeddingConfigForm
		if err := c.ShouldBindJSON(&form); err != nil {
			utils.RespondWithBadRequest(c, "Invalid embedding config", gin.H{"error": err.Error()})
			return
		}

		url, key := form.URL, form.Key
		if url == "" {
			url, key = embeddingEndpoint(cfg, form.Engine)
		}
		batchSize := form.BatchSize
		if batchSize <= 0 {
			batchSize = cfg.EmbeddingBatchSize
		}

		embedder, err := embed.New(form.Engine, form.Model, url, key, batchSize)
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid embedding engine", gin.H{"error": err.Error()})
			return
		}

		state.mu.Lock()
		state.embedder = embedder
		state.embeddingEngine = form.Engine
		state.embeddingModel = form.Model
		state.embeddingURL = url
		state.embeddingKey = key
		state.batchSize = batchSize
		if cfg.RerankingURL == "" {
			state.reranker = retrieval.NewCosineReranker(embedder)
		}
		state.mu.Unlock()

		logger.Info("Updated embedding config", "engine", form.Engine, "model", form.Model)
		c.JSON(http.StatusOK, gin.H{
			"status":               true,
			"embedding_engine":     form.Engine,
			"embedding_model":      form.Model,
			"embedding_batch_size": batchSize,
		})
	})

	group.GET("/config", authMiddleware.RequireAuth(), func(c *gin.Context) {
		state.mu.RLock()
		defer state.mu.RUnlock()

		c.JSON(http.StatusOK, gin.H{
			"status":        true,
			"chunk_size":    state.chunkSize,
			"chunk_overlap": state.chunkOverlap,
			"text_splitter": state.splitterName,
		})
	})

	group.POST("/config/update", authMiddleware.RequireAuth(), authMiddleware.RequireAdmin(), func(c *gin.Context) {
		var form models.ConfigUpdateForm
		if err := c.ShouldBindJSON(&form); err != nil {
			utils.RespondWithBadRequest(c, "Invalid config", gin.H{"error": err.Error()})
			return
		}

		state.mu.Lock()
		if form.ChunkSize != nil {
			state.chunkSize = *form.ChunkSize
		}
		if form.ChunkOverlap != nil {
			state.chunkOverlap = *form.ChunkOverlap
		}
		if form.TextSplitter != nil {
			state.splitterName = *form.TextSplitter
		}
		chunkSize, chunkOverlap, splitterName := state.chunkSize, state.chunkOverlap, state.splitterName
		state.mu.Unlock()

		// Reject configurations the splitter cannot honor.
		if _, err := services.NewSplitter(splitterName, chunkSize, chunkOverlap, cfg.TiktokenEncoding); err != nil {
			utils.RespondWithBadRequest(c, "Invalid chunking config", gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":        true,
			"chunk_size":    chunkSize,
			"chunk_overlap": chunkOverlap,
			"text_splitter": splitterName,
		})
	})

	group.GET("/query/settings", authMiddleware.RequireAuth(), func(c *gin.Context) {
		k, r, hybrid := state.QuerySettings()
		c.JSON(http.StatusOK, gin.H{"status": true, "k": k, "r": r, "hybrid": hybrid})
	})

	group.POST("/query/settings/update", authMiddleware.RequireAuth(), authMiddleware.RequireAdmin(), func(c *gin.Context) {
		var form models.QuerySettingsForm
		if err := c.ShouldBindJSON(&form); err != nil {
			utils.RespondWithBadRequest(c, "Invalid query settings", gin.H{"error": err.Error()})
			return
		}

		state.mu.Lock()
		if form.K != nil {
			state.topK = *form.K
		}
		if form.R != nil {
			state.relevanceThreshold = *form.R
		}
		if form.Hybrid != nil {
			state.hybrid = *form.Hybrid
		}
		state.mu.Unlock()

		k, r, hybrid := state.QuerySettings()
		c.JSON(http.StatusOK, gin.H{"status": true, "k": k, "r": r, "hybrid": hybrid})
	})

	group.POST("/process/file", authMiddleware.RequireAuth(), func(c *gin.Context) {
		userID, err := primitive.ObjectIDFromHex(middleware.GetUserID(c))
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid user identity")
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "Missing file", nil)
			return
		}
		if fileHeader.Size > cfg.MaxFileSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large",
				"File exceeds the maximum allowed size", gin.H{"max_size": cfg.MaxFileSize})
			return
		}

		src, err := fileHeader.Open()
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read upload", nil)
			return
		}
		content, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read upload", nil)
			return
		}

		hash := utils.SHA256String(string(content))
		collectionName := c.PostForm("collection_name")
		if collectionName == "" {
			collectionName = "file-" + hash[:32]
		}

		if err := os.MkdirAll(cfg.FileStorageDir, 0o755); err != nil {
			utils.RespondWithInternalError(c, "Failed to prepare storage", nil)
			return
		}
		path := filepath.Join(cfg.FileStorageDir, uuid.New().String()+filepath.Ext(fileHeader.Filename))
		if err := os.WriteFile(path, content, 0o644); err != nil {
			utils.RespondWithInternalError(c, "Failed to store upload", nil)
			return
		}

		now := time.Now()
		file := models.File{
			UserID:         userID,
			Filename:       fileHeader.Filename,
			Path:           path,
			Size:           fileHeader.Size,
			Hash:           hash,
			CollectionName: collectionName,
			Status:         models.FileStatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		result, insertErr := files.InsertOne(ctx, file)
		cancel()
		if metrics != nil {
			metrics.RecordDatabaseOperation("insert", "files", insertErr == nil)
		}
		if insertErr != nil {
			utils.RespondWithInternalError(c, "Failed to record file", nil)
			return
		}
		fileID := result.InsertedID.(primitive.ObjectID)

		// Large uploads are processed by the worker; small ones inline.
		if fileHeader.Size > cfg.SyncProcessingLimit && asynqClient != nil {
			task, err := queue.NewDocumentProcessTask(fileID.Hex())
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to enqueue processing", nil)
				return
			}
			if _, err := asynqClient.Enqueue(task); err != nil {
				utils.RespondWithInternalError(c, "Failed to enqueue processing", nil)
				return
			}

			c.JSON(http.StatusAccepted, gin.H{
				"status":          true,
				"file_id":         fileID.Hex(),
				"collection_name": collectionName,
				"filename":        fileHeader.Filename,
				"processing":      "async",
			})
			return
		}

		started := time.Now()
		ingestErr := processFileInline(c.Request.Context(), store, state, cfg, &file, fileID, files)
		if metrics != nil {
			status := "completed"
			if ingestErr != nil {
				status = "failed"
			}
			metrics.RecordIngest(time.Since(started).Seconds(), status)
		}
		if ingestErr != nil {
			utils.RespondWithIngestError(c, ingestErr)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":          true,
			"file_id":         fileID.Hex(),
			"collection_name": collectionName,
			"filename":        fileHeader.Filename,
		})
	})

	group.POST("/process/text", authMiddleware.RequireAuth(), func(c *gin.Context) {
		var form models.ProcessTextForm
		if err := c.ShouldBindJSON(&form); err != nil {
			utils.RespondWithBadRequest(c, "Invalid text", gin.H{"error": err.Error()})
			return
		}

		hash := utils.SHA256String(form.Content)
		collectionName := form.CollectionName
		if collectionName == "" {
			collectionName = "text-" + hash[:32]
		}

		ingest, err := state.Ingest(store, cfg.TiktokenEncoding)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to build ingest pipeline", gin.H{"error": err.Error()})
			return
		}

		docs := []services.Document{{
			PageContent: form.Content,
			Metadata:    map[string]interface{}{"name": form.Name, "source": form.Name},
		}}
		err = ingest.SaveDocs(c.Request.Context(), docs, services.IngestOptions{
			CollectionName: collectionName,
			Metadata: map[string]interface{}{
				"name":       form.Name,
				"hash":       hash,
				"created_by": middleware.GetUserID(c),
			},
			Split: true,
			Add:   true,
		})
		if err != nil {
			utils.RespondWithIngestError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":          true,
			"collection_name": collectionName,
			"name":            form.Name,
		})
	})

	group.POST("/process/web", authMiddleware.RequireAuth(), func(c *gin.Context) {
		var form models.ProcessWebForm
		if err := c.ShouldBindJSON(&form); err != nil {
			utils.RespondWithBadRequest(c, "Invalid URL", gin.H{"error": err.Error()})
			return
		}

		docs, err := services.LoadWeb(form.URL)
		if err != nil {
			utils.RespondWithBadRequest(c, "Failed to fetch URL", gin.H{"error": err.Error()})
			return
		}

		hash := utils.SHA256String(form.URL)
		collectionName := form.CollectionName
		if collectionName == "" {
			collectionName = "web-" + hash[:32]
		}

		ingest, err := state.Ingest(store, cfg.TiktokenEncoding)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to build ingest pipeline", gin.H{"error": err.Error()})
			return
		}

		err = ingest.SaveDocs(c.Request.Context(), docs, services.IngestOptions{
			CollectionName: collectionName,
			Metadata: map[string]interface{}{
				"name":       form.URL,
				"hash":       hash,
				"created_by": middleware.GetUserID(c),
			},
			Overwrite: true,
			Split:     true,
		})
		if err != nil {
			utils.RespondWithIngestError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":          true,
			"collection_name": collectionName,
			"url":             form.URL,
		})
	})

	group.POST("/query/doc", authMiddleware.RequireAuth(), func(c *gin.Context) {
		var form models.QueryDocForm
		if err := c.ShouldBindJSON(&form); err != nil {
			utils.RespondWithBadRequest(c, "Invalid query", gin.H{"error": err.Error()})
			return
		}

		k, r, hybrid := resolveQuerySettings(state, form.K, form.R, form.Hybrid)
		embedder := state.Embedder()
		ctx := c.Request.Context()

		if hybrid {
			result, err := retrieval.QueryDocHybrid(ctx, store, form.CollectionName, form.Query, embedder, k, state.Reranker(), r)
			if err == nil {
				recordQuery(metrics, "hybrid", 1)
				c.JSON(http.StatusOK, nestedResult(result))
				return
			}
			logger.Error("Hybrid search failed, falling back to vector search", "collection", form.CollectionName, "error", err)
		}

		embedStart := time.Now()
		queryVector, err := embedder.EmbedQuery(ctx, form.Query)
		if metrics != nil {
			metrics.RecordEmbedding(embedder.Engine(), embedder.Model(), time.Since(embedStart).Seconds())
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to embed query", gin.H{"error": err.Error()})
			return
		}
		result, err := retrieval.QueryDoc(ctx, store, form.CollectionName, queryVector, k)
		if err != nil {
			utils.RespondWithBadRequest(c, "Failed to query collection", gin.H{"error": err.Error()})
			return
		}

		recordQuery(metrics, "vector", 1)
		c.JSON(http.StatusOK, nestedResult(result))
	})

	group.POST("/query/collection", authMiddleware.RequireAuth(), func(c *gin.Context) {
		var form models.QueryCollectionForm
		if err := c.ShouldBindJSON(&form); err != nil {
			utils.RespondWithBadRequest(c, "Invalid query", gin.H{"error": err.Error()})
			return
		}

		k, r, hybrid := resolveQuerySettings(state, form.K, form.R, form.Hybrid)
		embedder := state.Embedder()
		ctx := c.Request.Context()

		if hybrid {
			result, err := retrieval.QueryCollectionHybrid(ctx, store, cfg.VectorDB, form.CollectionNames, form.Query, embedder, k, state.Reranker(), r)
			if err == nil {
				recordQuery(metrics, "hybrid", len(form.CollectionNames))
				c.JSON(http.StatusOK, nestedResult(result))
				return
			}
			logger.Error("Hybrid search failed, falling back to vector search", "error", err)
		}

		queryVector, err := embedder.EmbedQuery(ctx, form.Query)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to embed query", gin.H{"error": err.Error()})
			return
		}
		result := retrieval.QueryCollection(ctx, store, cfg.VectorDB, form.CollectionNames, queryVector, k)

		recordQuery(metrics, "vector", len(form.CollectionNames))
		c.JSON(http.StatusOK, nestedResult(result))
	})

	group.POST("/delete", authMiddleware.RequireAuth(), func(c *gin.Context) {
		var form models.DeleteEntriesForm
		if err := c.ShouldBindJSON(&form); err != nil {
			utils.RespondWithBadRequest(c, "Invalid delete request", gin.H{"error": err.Error()})
			return
		}

		fileID, err := primitive.ObjectIDFromHex(form.FileID)
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid file id", nil)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		var file models.File
		if err := files.FindOne(ctx, bson.M{"_id": fileID}).Decode(&file); err != nil {
			utils.RespondWithNotFound(c, "File not found")
			return
		}

		err = store.Delete(ctx, form.CollectionName, nil, map[string]interface{}{"hash": file.Hash})
		if metrics != nil {
			metrics.RecordVectorStoreOp(cfg.VectorDB, "delete", err == nil)
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to delete entries", gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": true, "collection_name": form.CollectionName, "file_id": form.FileID})
	})

	group.POST("/reset/db", authMiddleware.RequireAuth(), authMiddleware.RequireAdmin(), func(c *gin.Context) {
		err := store.Reset(c.Request.Context())
		if metrics != nil {
			metrics.RecordVectorStoreOp(cfg.VectorDB, "reset", err == nil)
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to reset vector store", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": true})
	})
}

func resolveQuerySettings(state *RetrievalState, k *int, r *float64, hybrid *bool) (int, float64, bool) {
	defaultK, defaultR, defaultHybrid := state.QuerySettings()
	if k != nil {
		defaultK = *k
	}
	if r != nil {
		defaultR = *r
	}
	if hybrid != nil {
		defaultHybrid = *hybrid
	}
	return defaultK, defaultR, defaultHybrid
}

func recordQuery(metrics *telemetry.Metrics, mode string, collections int) {
	if metrics != nil {
		metrics.RecordRetrievalQuery(mode, collections)
	}
}

// nestedResult wraps the flat result arrays into per-query nested arrays,
// the wire shape clients consume.
func nestedResult(result *retrieval.Result) gin.H {
	return gin.H{
		"distances": [][]float64{result.Distances},
		"documents": [][]string{result.Documents},
		"metadatas": [][]map[string]interface{}{result.Metadatas},
	}
}

func processFileInline(
	ctx context.Context,
	store vector.Store,
	state *RetrievalState,
	cfg *config.Config,
	file *models.File,
	fileID primitive.ObjectID,
	files *mongo.Collection,
) error {
	ingest, err := state.Ingest(store, cfg.TiktokenEncoding)
	if err != nil {
		return err
	}

	docs, err := services.LoadFile(file.Path, file.Filename)
	if err != nil {
		markFile(ctx, files, fileID, models.FileStatusFailed, err.Error())
		return fmt.Errorf("failed to load document: %w", err)
	}

	err = ingest.SaveDocs(ctx, docs, services.IngestOptions{
		CollectionName: file.CollectionName,
		Metadata: map[string]interface{}{
			"file_id":    fileID.Hex(),
			"name":       file.Filename,
			"hash":       file.Hash,
			"created_by": file.UserID.Hex(),
		},
		Split: true,
		Add:   true,
	})
	if err != nil {
		markFile(ctx, files, fileID, models.FileStatusFailed, err.Error())
		return err
	}

	markFile(ctx, files, fileID, models.FileStatusCompleted, "")
	return nil
}

func markFile(ctx context.Context, files *mongo.Collection, fileID primitive.ObjectID, status, errMessage string) {
	update := bson.M{"status": status, "updated_at": time.Now()}
	if errMessage != "" {
		update["error"] = errMessage
	}
	if _, err := files.UpdateOne(ctx, bson.M{"_id": fileID}, bson.M{"$set": update}); err != nil {
		logger.Error("Failed to update file status", "file_id", fileID.Hex(), "error", err)
	}
}
