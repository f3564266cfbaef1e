package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llm-gateway-platform/internal/config"
	"llm-gateway-platform/internal/logger"
	"llm-gateway-platform/internal/telemetry"
	"llm-gateway-platform/internal/vector"
	"llm-gateway-platform/internal/waitroom"
	"llm-gateway-platform/middleware"
	"llm-gateway-platform/routes"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Tracing
	shutdownTracer, err := telemetry.InitTracer("llm-gateway-platform")
	if err != nil {
		log.Printf("Tracing disabled: %v", err)
	} else {
		defer shutdownTracer()
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

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

	// Redis backs rate limiting and the task queue
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Vector store
	store, err := vector.New(cfg)
	if err != nil {
		log.Fatal("Failed to initialize vector store:", err)
	}

	// Runtime-mutable retrieval configuration
	retrievalState, err := routes.NewRetrievalState(cfg)
	if err != nil {
		log.Fatal("Failed to initialize retrieval state:", err)
	}

	// Async task client for large document uploads
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()

	// Waiting room with a periodic idle sweep
	room := waitroom.New(
		cfg.QueueMaxConnected,
		time.Duration(cfg.QueueDraftTime)*time.Second,
		time.Duration(cfg.QueueSessionTime)*time.Second,
	)
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.Every(30).Seconds().Do(func() {
		if removed := room.Idle(); removed > 0 {
			logger.Info("Waiting room sweep removed expired entries", "removed", removed)
		}
	})
	scheduler.StartAsync()
	defer scheduler.Stop()

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("llm-gateway-platform"))
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	authMiddleware := middleware.NewAuthMiddleware(cfg)

	// Setup routes
	routes.SetupAuthRoutes(router, cfg, mongoClient)
	routes.SetupChatRoutes(router, cfg, mongoClient, authMiddleware, metrics)
	routes.SetupRetrievalRoutes(router, cfg, mongoClient, store, retrievalState, asynqClient, authMiddleware, metrics)
	routes.SetupOpenAIRoutes(router, cfg, authMiddleware, metrics)
	routes.SetupOllamaRoutes(router, cfg, authMiddleware, metrics)
	routes.SetupQueueRoutes(router, cfg, room, authMiddleware, metrics)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("🚀 Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
