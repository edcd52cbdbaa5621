package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"multimodal-chat-be/internal/config"
	"multimodal-chat-be/internal/controller"
	"multimodal-chat-be/internal/pkg/logger"
	"multimodal-chat-be/internal/service"
	"multimodal-chat-be/pkg/asr"
	"multimodal-chat-be/pkg/embedding"
	"multimodal-chat-be/pkg/embedding/clip"
	"multimodal-chat-be/pkg/embedding/sparse"
	"multimodal-chat-be/pkg/events"
	"multimodal-chat-be/pkg/llm/factory"
	pktNats "multimodal-chat-be/pkg/nats"
	"multimodal-chat-be/pkg/ocr"
	"multimodal-chat-be/pkg/rag/normalize"
	"multimodal-chat-be/pkg/rag/rerank"
	"multimodal-chat-be/pkg/rag/response"
	"multimodal-chat-be/pkg/rag/retriever"
	"multimodal-chat-be/pkg/rag/router"
	"multimodal-chat-be/pkg/rag/session"
	"multimodal-chat-be/pkg/storage"
	"multimodal-chat-be/pkg/vectorindex"
)

type Container struct {
	// Controllers
	ChatController   controller.IChatController
	AdminController  controller.IAdminController
	SearchController controller.ISearchController

	// Background Services (Exposed for main.go to run)
	CleanupService service.ICleanupService
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		// Telemetry audit trail. External consumers attach their own durables.
		natsSub, subErr := pktNats.NewSubscriber(cfg.App.NatsURL)
		if subErr != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", subErr)
		} else if subErr = natsSub.Subscribe("chat.>", "chat-telemetry", func(ctx context.Context, event events.Event) error {
			sysLogger.Info("telemetry", "Chat event received", event.Payload())
			return nil
		}); subErr != nil {
			log.Printf("[WARN] Failed to subscribe to chat events: %v", subErr)
		}
	}

	// 3. Vector Index
	var index vectorindex.Index
	if cfg.Vector.Backend == "pgvector" {
		if db == nil {
			log.Fatalf("[FATAL] pgvector backend selected but no database connection configured")
		}
		if err := db.AutoMigrate(&vectorindex.IndexPoint{}); err != nil {
			log.Fatalf("[FATAL] Failed to migrate index_points table: %v", err)
		}
		index = vectorindex.NewPgvectorIndex(db)
		log.Printf("[INFO] Using Vector Backend: PGVECTOR")
	} else {
		qdrantIndex, err := vectorindex.NewQdrantIndex(
			cfg.Vector.QdrantHost,
			cfg.Vector.QdrantPort,
			cfg.Vector.QdrantAPIKey,
			cfg.Vector.QdrantUseTLS,
		)
		if err != nil {
			log.Fatalf("[FATAL] Failed to connect to Qdrant: %v", err)
		}
		index = qdrantIndex
		log.Printf("[INFO] Using Vector Backend: QDRANT (%s:%d)", cfg.Vector.QdrantHost, cfg.Vector.QdrantPort)
	}

	// 4. Extraction + Embedding Capabilities
	embedder := embedding.NewOllamaProvider(
		cfg.Ai.OllamaBaseURL,
		cfg.Ai.EmbeddingModel,
		cfg.Ai.EmbeddingDimension,
	)
	log.Printf("[INFO] Using Embedding Model: %s (%d dims)", cfg.Ai.EmbeddingModel, cfg.Ai.EmbeddingDimension)

	sparseEncoder := sparse.NewTfidfEncoder(cfg.Services.SparseVocab)
	if sparseEncoder.IsFitted() {
		log.Printf("[INFO] Sparse encoder loaded from %s", cfg.Services.SparseVocab)
	} else {
		log.Printf("[INFO] Sparse encoder not fitted yet, text search runs dense-only")
	}

	extractor := ocr.NewVisionExtractor(cfg.Services.OCRBaseURL, cfg.Services.OCRAPIKey)
	clipEncoder := clip.NewEncoder(cfg.Services.ClipBaseURL, extractor, embedder)
	transcriber := asr.NewWhisperTranscriber(cfg.Services.ASRBaseURL, cfg.Services.ASRAPIKey, cfg.Services.ASRModel)

	// 5. LLM Provider
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
		cfg.Ai.GroqAPIKey,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 6. Object Storage
	objectStore, err := storage.NewS3Store(
		context.Background(),
		cfg.Storage.S3Bucket,
		cfg.Storage.S3Region,
		cfg.Storage.S3Endpoint,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize object storage: %v", err)
	}

	// 7. Session Store
	var sessions session.Store
	if cfg.Session.Backend == "redis" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		sessions = session.NewRedisStore(rdb, time.Duration(cfg.Session.TTLHours)*time.Hour)
		log.Printf("[INFO] Using Session Backend: REDIS (TTL %dh)", cfg.Session.TTLHours)
	} else {
		sessions = session.NewMemoryStore()
		log.Printf("[INFO] Using Session Backend: MEMORY")
	}

	// 8. Retrieval Pipeline
	reranker := rerank.NewReranker(embedder)
	ret := retriever.NewRetriever(index, embedder, sparseEncoder, clipEncoder, reranker)
	modalityRouter := router.NewRouter(ret, sysLogger)
	normalizer := normalize.NewNormalizer(objectStore, clipEncoder, transcriber, sysLogger)
	generator := response.NewGenerator(llmProvider)

	// 9. Services
	chatService := service.NewChatService(
		sessions,
		normalizer,
		modalityRouter,
		generator,
		pubSub,
		cfg.Topics.Cleanup,
		natsPub,
		sysLogger,
	)
	cleanupService := service.NewCleanupService(pubSub, cfg.Topics.Cleanup, objectStore, sysLogger)
	sparseAdminService := service.NewSparseAdminService(index, sparseEncoder, sysLogger)
	searchService := service.NewSearchService(ret)

	// 10. Controllers
	return &Container{
		ChatController:   controller.NewChatController(chatService),
		AdminController:  controller.NewAdminController(sparseAdminService),
		SearchController: controller.NewSearchController(searchService),

		CleanupService: cleanupService,
	}
}
