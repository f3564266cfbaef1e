package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI     string
	DBName       string
	JWTSecret    string
	JWTExpiresIn string
	Port         string
	GinMode      string
	CORSOrigins  []string
	BcryptCost   int

	RateLimitReqs   int
	RateLimitWindow int

	MaxFileSize         int64
	FileStorageDir      string
	SyncProcessingLimit int64

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Vector store
	VectorDB     string // "chroma" (default), "qdrant", "milvus", "memory"
	ChromaURL    string
	QdrantURL    string
	QdrantAPIKey string
	MilvusURI    string
	VectorDim    int

	// Embeddings
	EmbeddingEngine    string // "" (local embedding server), "ollama", "openai"
	EmbeddingModel     string
	EmbeddingBatchSize int
	EmbeddingServerURL string // local TEI-style embedding server
	OllamaBaseURL      string
	OllamaAPIKey       string
	OpenAIBaseURL      string
	OpenAIAPIKey       string

	// Upstream chat providers (comma-separated base URL lists)
	OpenAIBaseURLs []string
	OpenAIAPIKeys  []string
	OllamaBaseURLs []string

	// Reranking
	RerankingURL   string
	RerankingModel string

	// Chunking
	TextSplitter     string // "character" (default) or "token"
	ChunkSize        int
	ChunkOverlap     int
	TiktokenEncoding string

	// Query defaults
	TopK               int
	RelevanceThreshold float64
	HybridSearch       bool

	// Waiting room
	QueueMaxConnected int
	QueueDraftTime    int // seconds
	QueueSessionTime  int // seconds
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017/llm_gateway"),
		DBName:       getEnv("DB_NAME", "llm_gateway"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		JWTExpiresIn: getEnv("JWT_EXPIRES_IN", "24h"),
		Port:         getEnv("PORT", "8080"),
		GinMode:      getEnv("GIN_MODE", "debug"),
		CORSOrigins:  strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		BcryptCost:   getEnvInt("BCRYPT_COST", 12),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		MaxFileSize:         getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB
		FileStorageDir:      getEnv("FILE_STORAGE_DIR", "./storage"),
		SyncProcessingLimit: getEnvInt64("SYNC_PROCESSING_LIMIT", 20971520), // 20MB processed inline, larger files queued

		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		// Vector store
		VectorDB:     getEnv("VECTOR_DB", "chroma"),
		ChromaURL:    getEnv("CHROMA_URL", "http://localhost:8000"),
		QdrantURL:    getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey: getEnv("QDRANT_API_KEY", ""),
		MilvusURI:    getEnv("MILVUS_URI", "localhost:19530"),
		VectorDim:    getEnvInt("VECTOR_DIM", 384),

		// Embeddings
		EmbeddingEngine:    getEnv("EMBEDDING_ENGINE", ""),
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "all-MiniLM-L6-v2"),
		EmbeddingBatchSize: getEnvInt("EMBEDDING_BATCH_SIZE", 100),
		EmbeddingServerURL: getEnv("EMBEDDING_SERVER_URL", "http://localhost:8081"),
		OllamaBaseURL:      getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaAPIKey:       getEnv("OLLAMA_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),

		OpenAIBaseURLs: splitNonEmpty(getEnv("OPENAI_API_BASE_URLS", "https://api.openai.com/v1")),
		OpenAIAPIKeys:  splitNonEmpty(getEnv("OPENAI_API_KEYS", "")),
		OllamaBaseURLs: splitNonEmpty(getEnv("OLLAMA_BASE_URLS", "http://localhost:11434")),

		// Reranking
		RerankingURL:   getEnv("RERANKING_URL", ""),
		RerankingModel: getEnv("RERANKING_MODEL", ""),

		// Chunking
		TextSplitter:     getEnv("TEXT_SPLITTER", "character"),
		ChunkSize:        getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", 100),
		TiktokenEncoding: getEnv("TIKTOKEN_ENCODING_NAME", "cl100k_base"),

		// Query defaults
		TopK:               getEnvInt("TOP_K", 4),
		RelevanceThreshold: getEnvFloat64("RELEVANCE_THRESHOLD", 0.0),
		HybridSearch:       getEnvBool("ENABLE_HYBRID_SEARCH", false),

		// Waiting room
		QueueMaxConnected: getEnvInt("QUEUE_MAX_CONNECTED", 50),
		QueueDraftTime:    getEnvInt("QUEUE_DRAFT_TIME", 300),
		QueueSessionTime:  getEnvInt("QUEUE_SESSION_TIME", 1200),
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required - set it in .env file")
	}

	switch cfg.VectorDB {
	case "chroma", "qdrant", "milvus", "memory":
	default:
		return nil, fmt.Errorf("unsupported VECTOR_DB %q (must be chroma, qdrant, milvus or memory)", cfg.VectorDB)
	}

	switch cfg.EmbeddingEngine {
	case "", "ollama", "openai":
	default:
		return nil, fmt.Errorf("unsupported EMBEDDING_ENGINE %q (must be empty, ollama or openai)", cfg.EmbeddingEngine)
	}

	return cfg, nil
}

func splitNonEmpty(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
