package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Index backends.
const (
	BackendQdrant = "qdrant"
	BackendBolt   = "bolt"
)

// Image store backends.
const (
	ImageStoreFS    = "fs"
	ImageStoreMinIO = "minio"
)

// Retrieval policies used when a query carries both text and an image.
const (
	PolicyFusion = "fusion"
	PolicyImage  = "image"
)

// Config holds all configuration for the application.
type Config struct {
	IndexBackend        string
	QdrantURL           string
	QdrantAPIKey        string
	QdrantRequireAPIKey bool
	QdrantCollection    string
	VectorSize          int
	BoltPath            string

	EncoderBaseURL        string
	EncoderModel          string
	EncoderAPIKey         string
	EncoderMaxConcurrency int
	EncoderImageSize      int
	EncoderMaxTokens      int

	LLMEnabled   bool
	LLMBaseURL   string
	LLMModelName string
	LLMAPIKey    string

	DBPath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	ImageStore     string
	ImageDir       string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	EmbeddingsPath    string
	BuildWorkers      int
	ImageFetchRetries int
	ImageFetchTimeout time.Duration
	UpsertBatchSize   int

	RetrievalTopK     int
	RetrievalPolicy   string
	FusionTextWeight  float64
	FusionImageWeight float64
	RequestTimeout    time.Duration
	MaxImageBytes     int64

	EvalSampleSize int
	EvalSeed       int64

	APIPort   string
	LogLevel  slog.Level
	LogFormat string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or a parent directory, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := &Config{
		IndexBackend:     strings.ToLower(getEnv("INDEX_BACKEND", BackendQdrant)),
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "multimodal"),
		BoltPath:         getEnv("BOLT_PATH", "./data/index.db"),

		EncoderBaseURL: getEnv("ENCODER_BASE_URL", "http://localhost:8082"),
		EncoderModel:   getEnv("ENCODER_MODEL", "openai/clip-vit-base-patch32"),
		EncoderAPIKey:  getEnv("ENCODER_API_KEY", "dummy-key"),

		LLMBaseURL:   getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMModelName: getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		LLMAPIKey:    getEnv("LLM_API_KEY", "dummy-key"),

		DBPath: getEnv("DB_PATH", "./data/productsearch.db"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		ImageStore:     strings.ToLower(getEnv("IMAGE_STORE", ImageStoreFS)),
		ImageDir:       getEnv("IMAGE_DIR", "./data/images"),
		MinIOEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:    getEnv("MINIO_BUCKET", "product-images"),

		EmbeddingsPath:  getEnv("EMBEDDINGS_PATH", "./data/product_embeddings.json"),
		RetrievalPolicy: strings.ToLower(getEnv("RETRIEVAL_POLICY", PolicyFusion)),

		APIPort:   getEnv("API_PORT", "9000"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	var err error
	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"VECTOR_SIZE", 512, &cfg.VectorSize},
		{"ENCODER_MAX_CONCURRENCY", 4, &cfg.EncoderMaxConcurrency},
		{"ENCODER_IMAGE_SIZE", 224, &cfg.EncoderImageSize},
		{"ENCODER_MAX_TOKENS", 77, &cfg.EncoderMaxTokens},
		{"REDIS_DB", 0, &cfg.RedisDB},
		{"BUILD_WORKERS", 4, &cfg.BuildWorkers},
		{"IMAGE_FETCH_RETRIES", 3, &cfg.ImageFetchRetries},
		{"UPSERT_BATCH_SIZE", 100, &cfg.UpsertBatchSize},
		{"RETRIEVAL_TOP_K", 5, &cfg.RetrievalTopK},
		{"EVAL_SAMPLE_SIZE", 100, &cfg.EvalSampleSize},
	}
	for _, v := range ints {
		if *v.dst, err = getEnvInt(v.key, v.def); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"CACHE_TTL", 10 * time.Minute, &cfg.CacheTTL},
		{"IMAGE_FETCH_TIMEOUT", 10 * time.Second, &cfg.ImageFetchTimeout},
		{"REQUEST_TIMEOUT", 30 * time.Second, &cfg.RequestTimeout},
	}
	for _, v := range durations {
		if *v.dst, err = getEnvDuration(v.key, v.def); err != nil {
			return nil, err
		}
	}

	if cfg.FusionTextWeight, err = getEnvFloat("FUSION_TEXT_WEIGHT", 0.5); err != nil {
		return nil, err
	}
	if cfg.FusionImageWeight, err = getEnvFloat("FUSION_IMAGE_WEIGHT", 0.5); err != nil {
		return nil, err
	}
	if cfg.QdrantRequireAPIKey, err = getEnvBool("QDRANT_REQUIRE_API_KEY", false); err != nil {
		return nil, err
	}
	if cfg.LLMEnabled, err = getEnvBool("LLM_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.MinIOUseSSL, err = getEnvBool("MINIO_USE_SSL", false); err != nil {
		return nil, err
	}
	maxImageBytes, err := getEnvInt("MAX_IMAGE_BYTES", 10<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxImageBytes = int64(maxImageBytes)
	seed, err := getEnvInt("EVAL_SEED", 42)
	if err != nil {
		return nil, err
	}
	cfg.EvalSeed = int64(seed)

	level, err := ParseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Create the data directory for the sqlite file if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints. It is also called after a file overlay is applied.
func (c *Config) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("VECTOR_SIZE must be greater than 0")
	}

	switch c.IndexBackend {
	case BackendQdrant:
		if c.QdrantURL == "" {
			return fmt.Errorf("QDRANT_URL is required")
		}
		// A plain-http Qdrant is assumed to be a local, unauthenticated instance.
		if c.QdrantAPIKey == "" && (c.QdrantRequireAPIKey || isHTTPS(c.QdrantURL)) {
			return fmt.Errorf("QDRANT_API_KEY is required")
		}
	case BackendBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("BOLT_PATH is required for the bolt backend")
		}
	default:
		return fmt.Errorf("INDEX_BACKEND must be %q or %q, got %q", BackendQdrant, BackendBolt, c.IndexBackend)
	}

	switch c.ImageStore {
	case ImageStoreFS:
	case ImageStoreMinIO:
		if c.MinIOAccessKey == "" || c.MinIOSecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio image store")
		}
	default:
		return fmt.Errorf("IMAGE_STORE must be %q or %q, got %q", ImageStoreFS, ImageStoreMinIO, c.ImageStore)
	}

	if c.RetrievalPolicy != PolicyFusion && c.RetrievalPolicy != PolicyImage {
		return fmt.Errorf("RETRIEVAL_POLICY must be %q or %q, got %q", PolicyFusion, PolicyImage, c.RetrievalPolicy)
	}
	if c.FusionTextWeight < 0 || c.FusionImageWeight < 0 || c.FusionTextWeight+c.FusionImageWeight == 0 {
		return fmt.Errorf("fusion weights must be non-negative and not both zero")
	}
	if c.BuildWorkers <= 0 {
		return fmt.Errorf("BUILD_WORKERS must be greater than 0")
	}
	if c.ImageFetchRetries <= 0 {
		return fmt.Errorf("IMAGE_FETCH_RETRIES must be greater than 0")
	}
	if c.UpsertBatchSize <= 0 {
		return fmt.Errorf("UPSERT_BATCH_SIZE must be greater than 0")
	}
	if c.RetrievalTopK <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be greater than 0")
	}
	if c.EncoderMaxConcurrency <= 0 {
		return fmt.Errorf("ENCODER_MAX_CONCURRENCY must be greater than 0")
	}
	return nil
}

// loadDotEnv loads .env from the working directory, then from the nearest parent that has one.
func loadDotEnv() {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func isHTTPS(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "https"
}

// ParseLogLevel maps a level name to its slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", s)
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	return v, nil
}
