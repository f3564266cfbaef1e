package main

import (
	"context"
	"log"
	"time"

	"llm-gateway-platform/internal/config"
	"llm-gateway-platform/internal/embed"
	"llm-gateway-platform/internal/logger"
	"llm-gateway-platform/internal/queue"
	"llm-gateway-platform/internal/vector"
	"llm-gateway-platform/services"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	// Vector store and ingest pipeline
	store, err := vector.New(cfg)
	if err != nil {
		log.Fatal("Failed to initialize vector store:", err)
	}

	embedderURL := cfg.EmbeddingServerURL
	embedderKey := ""
	switch cfg.EmbeddingEngine {
	case "ollama":
		embedderURL, embedderKey = cfg.OllamaBaseURL, cfg.OllamaAPIKey
	case "openai":
		embedderURL, embedderKey = cfg.OpenAIBaseURL, cfg.OpenAIAPIKey
	}
	embedder, err := embed.New(cfg.EmbeddingEngine, cfg.EmbeddingModel, embedderURL, embedderKey, cfg.EmbeddingBatchSize)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}

	splitter, err := services.NewSplitter(cfg.TextSplitter, cfg.ChunkSize, cfg.ChunkOverlap, cfg.TiktokenEncoding)
	if err != nil {
		log.Fatal("Failed to initialize splitter:", err)
	}

	ingest := services.NewIngestService(store, embedder, splitter)
	files := mongoClient.Database(cfg.DBName).Collection("files")

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task failed: %s, error: %v", task.Type(), err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(ingest, files)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskProcessDocument, processor.ProcessDocument)

	log.Println("🚀 Starting document processing worker...")
	log.Printf("   Redis: %s", redisOpt.Addr)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
