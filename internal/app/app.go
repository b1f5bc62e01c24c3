// Package app builds the shared collaborators used by both the API server and the batch CLI
// from a loaded configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"productsearch/internal/cache"
	"productsearch/internal/config"
	"productsearch/internal/encoder"
	"productsearch/internal/imagestore"
	"productsearch/internal/index"
	"productsearch/internal/llm"
	"productsearch/internal/rag"
	"productsearch/internal/storage"
	"productsearch/internal/vectorstore"
)

// IndexStore is a vector store backend that holds a connection or file handle.
type IndexStore interface {
	vectorstore.VectorStore
	io.Closer
}

// NewLogger builds the process logger from the configured level and format.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// OpenDatabase opens the sqlite catalog database and runs migrations.
func OpenDatabase(cfg *config.Config) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := storage.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// OpenVectorStore opens the configured index backend.
func OpenVectorStore(cfg *config.Config) (IndexStore, error) {
	switch cfg.IndexBackend {
	case config.BackendBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.BoltPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		return vectorstore.NewBoltStore(cfg.BoltPath)
	case config.BackendQdrant:
		return vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantAPIKey)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
	}
}

// OpenIndex ensures the configured collection and returns a manager bound to store.
// leaser may be nil.
func OpenIndex(ctx context.Context, cfg *config.Config, store vectorstore.VectorStore, leaser index.Leaser) (*index.Manager, index.Handle, error) {
	opts := []index.Option{index.WithBatchSize(cfg.UpsertBatchSize)}
	if leaser != nil {
		opts = append(opts, index.WithLeaser(leaser))
	}
	manager := index.NewManager(store, opts...)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	handle, err := manager.EnsureIndex(ctx, cfg.QdrantCollection, cfg.VectorSize, index.MetricCosine)
	if err != nil {
		return nil, index.Handle{}, err
	}
	return manager, handle, nil
}

// OpenImageStore opens the configured image content store, creating the MinIO bucket if needed.
func OpenImageStore(ctx context.Context, cfg *config.Config) (imagestore.Store, error) {
	switch cfg.ImageStore {
	case config.ImageStoreFS:
		return imagestore.NewFSStore(cfg.ImageDir)
	case config.ImageStoreMinIO:
		mc, err := imagestore.NewMinIOClient(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOUseSSL)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := imagestore.EnsureBucket(ctx, mc, cfg.MinIOBucket); err != nil {
			return nil, err
		}
		return imagestore.NewMinIOStore(mc, cfg.MinIOBucket), nil
	default:
		return nil, fmt.Errorf("unknown image store %q", cfg.ImageStore)
	}
}

// NewEncoder creates the CLIP encoder client.
func NewEncoder(cfg *config.Config) *encoder.ClipEncoder {
	return encoder.NewClipEncoder(cfg.EncoderBaseURL, cfg.EncoderAPIKey, cfg.EncoderModel, cfg.VectorSize, encoder.Options{
		MaxConcurrency: cfg.EncoderMaxConcurrency,
		MaxTokens:      cfg.EncoderMaxTokens,
		ImageSize:      cfg.EncoderImageSize,
		Timeout:        cfg.RequestTimeout,
	})
}

// ProductLookup is the product metadata source for retrieval, with its optional cache.
type ProductLookup struct {
	rag.ProductLookup
	// Cache is nil when no Redis address is configured.
	Cache *cache.RedisProductCache
	close func() error
}

// Close releases the cache connection, if any.
func (l *ProductLookup) Close() error {
	if l.close == nil {
		return nil
	}
	return l.close()
}

// NewProductLookup reads products from repo, through Redis when REDIS_ADDR is set.
// Redis must answer a ping at startup. Later outages degrade to direct repo reads.
func NewProductLookup(ctx context.Context, cfg *config.Config, repo *storage.ProductRepo) (*ProductLookup, error) {
	if cfg.RedisAddr == "" {
		return &ProductLookup{ProductLookup: repo}, nil
	}

	client := cache.NewRedisClient(cache.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	productCache := cache.NewRedisProductCache(client, cfg.CacheTTL)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := productCache.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &ProductLookup{
		ProductLookup: cache.NewCachedLookup(productCache, repo),
		Cache:         productCache,
		close:         client.Close,
	}, nil
}

// NewGenerator returns the LLM answer generator, or the template generator when the LLM is disabled.
func NewGenerator(cfg *config.Config) rag.AnswerGenerator {
	if !cfg.LLMEnabled || cfg.LLMBaseURL == "" {
		return rag.TemplateGenerator{}
	}
	return rag.NewLLMGenerator(llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName))
}

// NewEngine wires the retrieval engine with the configured knobs.
func NewEngine(cfg *config.Config, enc encoder.Encoder, manager *index.Manager, handle index.Handle, products rag.ProductLookup, generator rag.AnswerGenerator) rag.Engine {
	return rag.NewEngine(rag.Config{
		Encoder:     enc,
		Index:       manager,
		Handle:      handle,
		Products:    products,
		Generator:   generator,
		TopK:        cfg.RetrievalTopK,
		Policy:      cfg.RetrievalPolicy,
		TextWeight:  cfg.FusionTextWeight,
		ImageWeight: cfg.FusionImageWeight,
	})
}
