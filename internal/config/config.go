package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Vector   VectorConfig
	Storage  StorageConfig
	Services ServiceConfig
	Ai       AIConfig
	Session  SessionConfig
	Topics   TopicConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type VectorConfig struct {
	Backend      string // "qdrant" or "pgvector"
	QdrantHost   string
	QdrantPort   int
	QdrantAPIKey string
	QdrantUseTLS bool
}

type StorageConfig struct {
	S3Bucket   string
	S3Region   string
	S3Endpoint string
}

type ServiceConfig struct {
	ClipBaseURL string
	OCRBaseURL  string
	OCRAPIKey   string
	ASRBaseURL  string
	ASRAPIKey   string
	ASRModel    string
	SparseVocab string
}

type AIConfig struct {
	OllamaBaseURL      string
	EmbeddingModel     string
	EmbeddingDimension int
	LLMProvider        string // "groq" or "ollama"
	LLMModel           string
	GroqAPIKey         string
}

type SessionConfig struct {
	Backend  string // "memory" or "redis"
	TTLHours int
}

type TopicConfig struct {
	Cleanup string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log.csv"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Vector: VectorConfig{
			Backend:      getEnv("VECTOR_BACKEND", "qdrant"),
			QdrantHost:   getEnv("QDRANT_HOST", "localhost"),
			QdrantPort:   getEnvAsInt("QDRANT_PORT", 6334),
			QdrantAPIKey: getEnv("QDRANT_API_KEY", ""),
			QdrantUseTLS: getEnvAsBool("QDRANT_USE_TLS", false),
		},
		Storage: StorageConfig{
			S3Bucket:   getEnv("S3_BUCKET", "chat-temp-assets"),
			S3Region:   getEnv("S3_REGION", "us-east-1"),
			S3Endpoint: getEnv("S3_ENDPOINT", ""),
		},
		Services: ServiceConfig{
			ClipBaseURL: getEnv("CLIP_BASE_URL", "http://localhost:8090"),
			OCRBaseURL:  getEnv("OCR_BASE_URL", "http://localhost:8091"),
			OCRAPIKey:   getEnv("OCR_API_KEY", ""),
			ASRBaseURL:  getEnv("ASR_BASE_URL", "http://localhost:8092"),
			ASRAPIKey:   getEnv("ASR_API_KEY", ""),
			ASRModel:    getEnv("ASR_MODEL", "whisper-large-v3"),
			SparseVocab: getEnv("SPARSE_VOCAB_PATH", "tfidf_vocab.json"),
		},
		Ai: AIConfig{
			OllamaBaseURL:      getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			EmbeddingModel:     getEnv("EMBEDDING_MODEL", "bge-m3"),
			EmbeddingDimension: getEnvAsInt("EMBEDDING_DIMENSION", 1024),
			LLMProvider:        getEnv("LLM_PROVIDER", "groq"),
			LLMModel:           getEnv("LLM_MODEL", "llama-3.1-8b-instant"),
			GroqAPIKey:         getEnv("GROQ_API_KEY", ""),
		},
		Session: SessionConfig{
			Backend:  getEnv("SESSION_BACKEND", "memory"),
			TTLHours: getEnvAsInt("SESSION_TTL_HOURS", 24),
		},
		Topics: TopicConfig{
			Cleanup: getEnv("SESSION_CLEANUP_TOPIC_NAME", "SESSION_CLEANUP"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}
