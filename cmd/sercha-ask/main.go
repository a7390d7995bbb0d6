package main

// @title           Sercha Ask API
// @version         1.0
// @description     Document question answering. Upload files, then ask questions answered from their content with citations.

// @contact.name   Sercha OSS
// @contact.url    https://github.com/custodia-labs/sercha-ask/issues

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Format: "Bearer {token}"

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-ask/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-ask/internal/adapters/driven/auth"
	"github.com/custodia-labs/sercha-ask/internal/adapters/driven/memory"
	"github.com/custodia-labs/sercha-ask/internal/adapters/driven/postgres"
	postgresqueue "github.com/custodia-labs/sercha-ask/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/custodia-labs/sercha-ask/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/sercha-ask/internal/adapters/driven/redis"
	"github.com/custodia-labs/sercha-ask/internal/adapters/driving/http"
	"github.com/custodia-labs/sercha-ask/internal/chunker"
	"github.com/custodia-labs/sercha-ask/internal/config"
	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ask/internal/core/services"
	"github.com/custodia-labs/sercha-ask/internal/extractors"
	"github.com/custodia-labs/sercha-ask/internal/runtime"
	"github.com/custodia-labs/sercha-ask/internal/tracing"
	"github.com/custodia-labs/sercha-ask/internal/worker"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	// A positional argument overrides RUN_MODE
	if len(os.Args) > 1 {
		cfg.RunMode = os.Args[1]
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	log.Printf("sercha-ask %s starting in %s mode", version, cfg.RunMode)
	if cfg.UsesDefaultSecret() {
		log.Println("Warning: JWT_SECRET is the development default; set it before exposing the API")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutdown signal received, stopping...")
		cancel()
	}()

	shutdownTracing, err := tracing.Init(ctx, tracing.Options{
		Enabled:        cfg.OTelEnabled,
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    "sercha-ask",
		ServiceVersion: version,
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("Failed to initialise tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			log.Printf("Tracing shutdown: %v", err)
		}
	}()

	// ===== PostgreSQL =====
	log.Println("Connecting to PostgreSQL...")
	dbConfig := postgres.DefaultConfig(cfg.DatabaseURL)
	dbConfig.MaxOpenConns = cfg.DBMaxConns
	dbConfig.MaxIdleConns = min(dbConfig.MaxIdleConns, cfg.DBMaxConns)
	db, err := postgres.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}
	log.Println("PostgreSQL connected and schema initialized")

	// ===== Redis (optional) =====
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		log.Println("Connecting to Redis...")
		opts, err := redis.ParseURL(cfg.RedisURL)
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

	// ===== Sessions, queue and lock (Redis if available, otherwise PostgreSQL) =====
	var (
		sessionStore driven.SessionStore
		taskQueue    driven.TaskQueue
		lock         driven.DistributedLock
		backend      = "postgres"
	)
	if redisClient != nil {
		backend = "redis"
		sessionStore = redisadapter.NewSessionStore(redisClient)
		lock = redisadapter.NewLock(redisClient)
		queue, err := redisqueue.NewQueue(ctx, redisClient, redisqueue.Config{
			ConsumerName: fmt.Sprintf("worker-%d", os.Getpid()),
			ClaimTimeout: cfg.TaskTimeout,
			Logger:       logger,
		})
		if err != nil {
			log.Fatalf("Failed to create task queue: %v", err)
		}
		taskQueue = queue
	} else {
		sessionStore = postgres.NewSessionStore(db)
		lock = postgres.NewAdvisoryLock(db)
		taskQueue = postgresqueue.NewQueue(db.DB, postgresqueue.Config{
			ClaimTimeout: cfg.TaskTimeout,
			Logger:       logger,
		})
	}
	defer taskQueue.Close()
	log.Printf("Using %s sessions, task queue and locks", backend)

	// ===== AI providers =====
	aiFactory := ai.NewFactory(ai.FactoryOptions{
		EmbedTimeout:      cfg.EmbedTimeout,
		GenerationTimeout: cfg.GenerationTimeout,
	})
	embedding, llm := createAIServices(aiFactory, cfg)

	// Unconfigured providers are replaced by stand-ins that fail as unavailable
	embedder := embedding
	if embedder == nil {
		log.Println("Warning: no embedding provider configured; ingestion and questions will fail")
		dims := cfg.Embedding.Dimensions
		if dims == 0 && cfg.VectorIndex == config.VectorIndexPostgres {
			// Open an existing index at its own size
			stored, err := postgres.StoredDimensions(ctx, db)
			if err != nil {
				log.Fatalf("Failed to inspect vector index: %v", err)
			}
			dims = stored
		}
		embedder = ai.NewUnavailableEmbedding(dims)
	}
	generator := llm
	if generator == nil {
		log.Println("Warning: no LLM provider configured; answers will be apologies")
		generator = ai.NewUnavailableLLM()
	}

	// ===== Vector index =====
	var index driven.VectorIndex
	switch cfg.VectorIndex {
	case config.VectorIndexMemory:
		index = memory.NewVectorIndex(embedder.Dimensions())
		log.Println("Warning: using the in-memory vector index; embeddings are lost on restart")
	default:
		pgIndex := postgres.NewVectorIndex(db, embedder.Dimensions())
		if err := pgIndex.Init(ctx); err != nil {
			log.Fatalf("Failed to initialize vector index: %v", err)
		}
		index = pgIndex
	}
	if err := services.VerifyDimensions(embedder, index); err != nil {
		log.Fatalf("Vector index mismatch: %v", err)
	}

	runtimeConfig := domain.NewRuntimeConfig(backend, backend, cfg.VectorIndex)
	runtimeServices := runtime.NewServices(runtimeConfig, embedding, llm)
	defer func() {
		if err := runtimeServices.Close(); err != nil {
			log.Printf("Closing AI services: %v", err)
		}
	}()
	log.Printf("Runtime config: queue=%s, vector_index=%s, embedding=%t, llm=%t",
		runtimeConfig.QueueBackend,
		runtimeConfig.VectorBackend,
		runtimeConfig.EmbeddingAvailable(),
		runtimeConfig.LLMAvailable())

	// ===== Extraction =====
	registry, ocrEngine := extractors.DefaultRegistry(extractors.Config{
		OCREnabled:   cfg.OCREnabled,
		OCRLanguage:  cfg.OCRLanguage,
		TesseractBin: cfg.TesseractPath,
		PdfToTextBin: cfg.PdfToTextPath,
		PdfInfoBin:   cfg.PdfInfoPath,
		PdfToPpmBin:  cfg.PdfToPpmPath,
		Logger:       logger,
	})
	if cfg.OCREnabled && !ocrEngine.Available() {
		log.Println("Warning: tesseract not found; images and scanned PDFs will fail to ingest")
	}

	// ===== Services =====
	documentStore := postgres.NewDocumentStore(db)

	authService := services.NewAuthService(
		postgres.NewUserStore(db),
		sessionStore,
		auth.NewAdapter(cfg.JWTSecret),
	)
	ingestionService := services.NewIngestionService(services.IngestionConfig{
		Documents:      documentStore,
		Blobs:          postgres.NewBlobStore(db),
		Extractor:      registry,
		Chunker:        chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		Embedder:       embedder,
		Index:          index,
		Queue:          taskQueue,
		Lock:           lock,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	})
	retrievalService := services.NewRetrievalService(services.RetrievalConfig{
		Embedder:  embedder,
		Index:     index,
		Documents: documentStore,
		Logger:    logger,
		TopK:      cfg.RetrievalTopK,
		MinScore:  domain.ScoreThreshold(cfg.RetrievalMinScore),
	})
	answerService := services.NewAnswerService(services.AnswerConfig{
		LLM:          generator,
		Logger:       logger,
		HistoryTurns: cfg.HistoryTurns,
		CallTimeout:  cfg.GenerationTimeout,
		Budget:       cfg.GenerationBudget,
	})
	chatService := services.NewChatService(services.ChatConfig{
		Chats:        postgres.NewChatStore(db),
		Retrieval:    retrievalService,
		Answers:      answerService,
		Logger:       logger,
		TopK:         cfg.RetrievalTopK,
		HistoryTurns: cfg.HistoryTurns,
	})

	var wg sync.WaitGroup

	scheduler := services.NewScheduler(services.SchedulerConfig{
		Store:     postgres.NewSchedulerStore(db),
		TaskQueue: taskQueue,
		Lock:      lock,
		Logger:    logger,
	})
	if err := scheduler.EnsureDefaults(ctx); err != nil {
		log.Fatalf("Failed to register maintenance schedules: %v", err)
	}

	if cfg.RunsWorker() {
		w := worker.NewWorker(worker.WorkerConfig{
			TaskQueue:   taskQueue,
			Ingestion:   ingestionService,
			Scheduler:   scheduler,
			Logger:      logger,
			Concurrency: cfg.WorkerConcurrency,
			TaskTimeout: cfg.TaskTimeout,
		})
		if err := w.Start(ctx); err != nil {
			log.Fatalf("Failed to start worker: %v", err)
		}
		log.Printf("Worker started with %d goroutines", cfg.WorkerConcurrency)

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			log.Println("Stopping worker...")
			w.Stop()
			log.Println("Worker stopped")
		}()
	}

	if cfg.RunsAPI() {
		deps := http.Dependencies{
			Auth:      authService,
			Ingestion: ingestionService,
			Chat:      chatService,
			Schedules: scheduler,
			TaskQueue: taskQueue,
			Runtime:   runtimeServices,
			DB:        db,
		}
		if redisClient != nil {
			deps.Redis = redisPinger{redisClient}
		}

		server := http.NewServer(http.Config{
			Host:           "0.0.0.0",
			Port:           cfg.Port,
			Version:        version,
			CORSOrigins:    cfg.CORSOrigins,
			MaxUploadBytes: cfg.MaxUploadBytes(),
			Logger:         logger,
		}, deps)

		log.Printf("API server starting on :%d", cfg.Port)
		if err := server.Start(ctx); err != nil {
			log.Printf("Server error: %v", err)
			cancel()
		}
	} else {
		<-ctx.Done()
	}

	wg.Wait()
	log.Println("Shutdown complete")
}

// createAIServices builds the configured providers. A nil result means not configured.
// Typed nils never escape into the interfaces.
func createAIServices(factory driven.AIServiceFactory, cfg *config.Config) (driven.EmbeddingService, driven.LLMService) {
	var (
		embedding driven.EmbeddingService
		llm       driven.LLMService
	)

	svc, err := factory.CreateEmbeddingService(&cfg.Embedding)
	switch {
	case err != nil:
		log.Fatalf("Failed to create embedding service: %v", err)
	case svc != nil:
		embedding = svc
		log.Printf("Embedding provider %s (%s, %d dimensions)", cfg.Embedding.Provider, svc.Model(), svc.Dimensions())
	}

	gen, err := factory.CreateLLMService(&cfg.LLM)
	switch {
	case err != nil:
		log.Fatalf("Failed to create LLM service: %v", err)
	case gen != nil:
		llm = gen
		log.Printf("LLM provider %s (%s)", cfg.LLM.Provider, gen.Model())
	}

	return embedding, llm
}

// redisPinger adapts the client to the readiness check
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
