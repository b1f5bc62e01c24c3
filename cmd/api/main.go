package main

import (
	"context"
	_ "embed"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"productsearch/internal/app"
	"productsearch/internal/config"
	"productsearch/internal/encoder"
	"productsearch/internal/handlers"
	"productsearch/internal/http"
	"productsearch/internal/service"
	"productsearch/internal/storage"
)

//go:embed web/index.html
var indexHTML string

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API answers product questions from a text query, a product photo, or both,
// by retrieving matching catalog products from a multimodal vector index.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: Product Search API
//   description: |
//     Multimodal product search over a CLIP embedding index. The search endpoint accepts
//     JSON with an optional base64 image or a multipart form upload.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
//   - multipart/form-data
// produces:
//   - application/json

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx := context.Background()

	// Initialize database
	db, err := app.OpenDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()
	productRepo := storage.NewProductRepo(db)
	productCount, err := productRepo.Count(ctx)
	if err != nil {
		log.Fatalf("Failed to read catalog: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath, "products", productCount)

	// Open the vector index and make sure the collection exists with the right dimension
	vectorStore, err := app.OpenVectorStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open vector store: %v", err)
	}
	defer func() {
		_ = vectorStore.Close()
	}()

	indexManager, handle, err := app.OpenIndex(ctx, cfg, vectorStore, storage.NewLockRepo(db))
	if err != nil {
		log.Fatalf("Failed to ensure vector index: %v", err)
	}
	stats, err := indexManager.Stats(ctx, handle)
	if err != nil {
		log.Fatalf("Failed to describe vector index: %v", err)
	}
	slog.Info("Vector index ready",
		"backend", cfg.IndexBackend,
		"collection", handle.Name,
		"dimension", handle.Dimension,
		"entries", stats.TotalVectorCount,
	)
	if stats.TotalVectorCount == 0 {
		slog.Warn("Vector index is empty, run the indexer load command before searching", "collection", handle.Name)
	}

	// Validate encoder vector size (fail-fast)
	enc := app.NewEncoder(cfg)
	probeCtx, probeCancel := context.WithTimeout(ctx, 30*time.Second)
	err = encoder.Probe(probeCtx, enc)
	probeCancel()
	if err != nil {
		log.Fatalf("Failed to validate encoder: %v", err)
	}
	slog.Info("Encoder validated", "model", cfg.EncoderModel, "vector_size", cfg.VectorSize)

	// Product lookup, through Redis when configured
	lookup, err := app.NewProductLookup(ctx, cfg, productRepo)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer func() {
		_ = lookup.Close()
	}()
	var cachePinger handlers.Pinger
	if lookup.Cache != nil {
		cachePinger = handlers.PingFunc(lookup.Cache.Ping)
		slog.Info("Product cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
	}

	// Create RAG engine
	generator := app.NewGenerator(cfg)
	ragEngine := app.NewEngine(cfg, enc, indexManager, handle, lookup, generator)
	slog.Info("RAG engine initialized",
		"top_k", cfg.RetrievalTopK,
		"policy", cfg.RetrievalPolicy,
		"llm_enabled", cfg.LLMEnabled,
	)

	searchService := service.NewSearchService(ragEngine, cfg.MaxImageBytes, cfg.RequestTimeout)

	// Create router with dependencies
	deps := &http.Deps{
		SearchService:  searchService,
		MaxImageBytes:  cfg.MaxImageBytes,
		Index:          indexManager,
		Handle:         handle,
		VectorStore:    vectorStore,
		CollectionName: handle.Name,
		Database:       db,
		Cache:          cachePinger,
		IndexHTML:      indexHTML,
	}
	router := http.NewRouter(deps)

	// Start API server
	addr := ":" + cfg.APIPort
	srv := &nethttp.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", "addr", addr)
		slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("API server failed to start: %v", err)
	case <-shutdown:
		slog.Info("Received shutdown signal, stopping gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("API server shutdown error", "error", err)
	} else {
		slog.Info("API server stopped")
	}
}
