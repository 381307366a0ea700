package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/docchat-core/internal/adapters/driven/ai"
	"github.com/custodia-labs/docchat-core/internal/adapters/driven/chroma"
	"github.com/custodia-labs/docchat-core/internal/adapters/driven/memorychat"
	"github.com/custodia-labs/docchat-core/internal/adapters/driven/memoryindex"
	"github.com/custodia-labs/docchat-core/internal/adapters/driven/postgres"
	postgresqueue "github.com/custodia-labs/docchat-core/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/custodia-labs/docchat-core/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/docchat-core/internal/adapters/driven/redis"
	"github.com/custodia-labs/docchat-core/internal/adapters/driven/storage"
	"github.com/custodia-labs/docchat-core/internal/adapters/driving/http"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driving"
	"github.com/custodia-labs/docchat-core/internal/core/services"
	"github.com/custodia-labs/docchat-core/internal/extractors"
	"github.com/custodia-labs/docchat-core/internal/worker"
)

var version = "dev"

func main() {
	// Load .env if present (development convenience)
	_ = godotenv.Load()

	// Get run mode from environment (RUN_MODE) or command line arg
	mode := getEnv("RUN_MODE", "all")
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	log.Printf("docchat-core %s starting in %s mode", version, mode)

	// Configuration from environment
	port := getEnvInt("PORT", 8080)
	redisURL := getEnv("REDIS_URL", "")
	databaseURL := getEnv("DATABASE_URL", "")
	chromaURL := getEnv("CHROMA_URL", "")
	embeddingURL := getEnv("EMBEDDING_URL", "http://localhost:8001/embed")
	geminiAPIKey := getEnv("GEMINI_API_KEY", "")
	uploadDir := getEnv("UPLOAD_DIR", "./uploads")

	models := splitList(getEnv("GEMINI_MODELS",
		"gemini-3-flash-preview,gemini-2.5-flash,gemini-2.5-flash-lite"))

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutdown signal received, stopping...")
		cancel()
	}()

	// ===== Initialize Redis (optional) =====
	var redisClient *redis.Client
	if redisURL != "" {
		log.Println("Connecting to Redis...")
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Println("Redis connected")
	}

	// ===== Job Queue (Redis if available, otherwise PostgreSQL) =====
	var jobQueue driven.JobQueue
	if redisClient != nil {
		var err error
		jobQueue, err = redisqueue.NewQueue(redisClient, fmt.Sprintf("worker-%d", os.Getpid()))
		if err != nil {
			log.Fatalf("Failed to create job queue: %v", err)
		}
		log.Println("Using Redis job queue")
	} else {
		if databaseURL == "" {
			log.Fatal("Either REDIS_URL or DATABASE_URL must be set for the job queue")
		}
		log.Println("Connecting to PostgreSQL...")
		db, err := postgres.Connect(ctx, postgres.Config{
			URL:             databaseURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300)) * time.Second,
			ConnMaxIdleTime: time.Duration(getEnvInt("DB_CONN_MAX_IDLE_SEC", 60)) * time.Second,
		})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		// Initialize schema (idempotent)
		if err := db.InitSchema(ctx); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		jobQueue = postgresqueue.NewQueue(db.DB)
		log.Println("Using PostgreSQL job queue")
	}

	// ===== Chat Store (Redis if available, otherwise in-memory) =====
	chatKey := getEnv("CHAT_KEY", redisadapter.DefaultChatKey)
	chatMax := getEnvInt("CHAT_MAX_MESSAGES", redisadapter.DefaultMaxMessages)
	chatTTL := time.Duration(getEnvInt("CHAT_TTL_SEC", int(redisadapter.DefaultChatTTL/time.Second))) * time.Second

	var chatStore driven.ChatStore
	if redisClient != nil {
		chatStore = redisadapter.NewChatStore(redisClient, chatKey, chatMax, chatTTL)
		log.Println("Using Redis chat store")
	} else {
		chatStore = memorychat.NewStore(chatMax, chatTTL)
		log.Println("Using in-memory chat store (transcript lost on restart)")
	}

	// ===== Embedding Service =====
	embedder, err := ai.NewE5Embedding(ai.E5Config{
		Endpoint:   embeddingURL,
		Model:      getEnv("EMBEDDING_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 384),
		BatchSize:  getEnvInt("EMBEDDING_BATCH_SIZE", 32),
		Prefixed:   getEnvBool("EMBEDDING_PREFIXED", false),
	})
	if err != nil {
		log.Fatalf("Failed to create embedding service: %v", err)
	}
	defer embedder.Close()

	// ===== Vector Index (Chroma if configured, otherwise in-memory) =====
	var index driven.VectorIndex
	if chromaURL != "" {
		index, err = chroma.NewIndex(chroma.Config{
			URL:        chromaURL,
			Collection: getEnv("CHROMA_COLLECTION", "documents"),
			Dimensions: embedder.Dimensions(),
		})
		if err != nil {
			log.Fatalf("Failed to create vector index: %v", err)
		}
		log.Println("Using Chroma vector index")
	} else {
		index, err = memoryindex.NewIndex(embedder.Dimensions())
		if err != nil {
			log.Fatalf("Failed to create vector index: %v", err)
		}
		log.Println("Using in-memory vector index (contents lost on restart)")
	}

	// Fail fast on a model/collection dimension mismatch
	if err := index.EnsureReady(ctx); err != nil {
		log.Fatalf("Vector index not ready: %v", err)
	}

	// ===== Generator =====
	if geminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY must be set")
	}
	generator, err := ai.NewGeminiGenerator(ai.GeminiConfig{
		BaseURL: getEnv("GEMINI_BASE_URL", ""),
		APIKey:  geminiAPIKey,
	})
	if err != nil {
		log.Fatalf("Failed to create generator: %v", err)
	}
	defer generator.Close()

	// ===== File Store =====
	fileStore, err := storage.NewLocalStore(uploadDir)
	if err != nil {
		log.Fatalf("Failed to create file store: %v", err)
	}

	// ===== Services (core business logic) =====
	logger := slog.Default()

	chunker, err := services.NewChunker(
		getEnvInt("CHUNK_SIZE", services.DefaultChunkSize),
		getEnvInt("CHUNK_OVERLAP", services.DefaultChunkOverlap),
		getEnvInt("CHUNK_MIN_LENGTH", services.DefaultMinChunkLen),
	)
	if err != nil {
		log.Fatalf("Invalid chunking configuration: %v", err)
	}

	retrieval := services.NewRetrievalService(embedder, index, logger)
	fallback, err := services.NewFallbackGenerator(generator, models, logger)
	if err != nil {
		log.Fatalf("Invalid model configuration: %v", err)
	}

	chatService := services.NewChatService(chatStore, retrieval, fallback, getEnvInt("RETRIEVAL_TOP_K", 0), logger)
	documentService := services.NewDocumentService(fileStore, jobQueue, index, logger)

	orchestrator := services.NewIngestOrchestrator(services.IngestConfig{
		Files:      fileStore,
		Extractors: extractors.DefaultRegistry(),
		Chunker:    chunker,
		Embedder:   embedder,
		Index:      index,
		Logger:     logger,
	})

	switch mode {
	case "api":
		runAPI(port, chatService, documentService, jobQueue, index)

	case "worker":
		runWorkerMode(ctx, jobQueue, orchestrator)

	case "all":
		// Start worker in background, API in foreground (blocks)
		go runWorkerMode(ctx, jobQueue, orchestrator)
		runAPI(port, chatService, documentService, jobQueue, index)

	default:
		log.Fatalf("Unknown mode: %s (use: api, worker, or all)", mode)
	}
}

func runAPI(
	port int,
	chatService driving.ChatService,
	documentService driving.DocumentService,
	jobQueue driven.JobQueue,
	index driven.VectorIndex,
) {
	cfg := http.Config{
		Host:           "0.0.0.0",
		Port:           port,
		Version:        version,
		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	server := http.NewServer(cfg, chatService, documentService, jobQueue, index)

	log.Printf("API server starting on :%d", port)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// runWorkerMode starts the ingestion worker and blocks until shutdown.
func runWorkerMode(ctx context.Context, jobQueue driven.JobQueue, orchestrator *services.IngestOrchestrator) {
	log.Println("Starting worker mode...")

	w := worker.NewWorker(worker.WorkerConfig{
		JobQueue:       jobQueue,
		Orchestrator:   orchestrator,
		Logger:         slog.Default(),
		Concurrency:    getEnvInt("WORKER_CONCURRENCY", 2),
		DequeueTimeout: getEnvInt("WORKER_DEQUEUE_TIMEOUT", 5),
	})

	if err := w.Start(ctx); err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}

	log.Println("Worker started, processing ingestion jobs...")

	// Wait for context cancellation
	<-ctx.Done()

	// Graceful shutdown
	log.Println("Stopping worker...")
	w.Stop()
	log.Println("Worker stopped")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
