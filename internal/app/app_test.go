package app

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"productsearch/internal/config"
	"productsearch/internal/rag"
	"productsearch/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		IndexBackend:          config.BackendBolt,
		BoltPath:              filepath.Join(dir, "index", "index.db"),
		QdrantCollection:      "products",
		VectorSize:            4,
		DBPath:                filepath.Join(dir, "db", "catalog.db"),
		ImageStore:            config.ImageStoreFS,
		ImageDir:              filepath.Join(dir, "images"),
		UpsertBatchSize:       10,
		EncoderMaxConcurrency: 2,
		RetrievalPolicy:       config.PolicyFusion,
		LogFormat:             "text",
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{format: "json", want: `"msg":"hello"`},
		{format: "text", want: "msg=hello"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.LogFormat = tt.format

			var buf bytes.Buffer
			NewLogger(cfg, &buf).Info("hello")
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("log output = %q, want to contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestOpenDatabase(t *testing.T) {
	cfg := testConfig(t)
	db, err := OpenDatabase(cfg)
	if err != nil {
		t.Fatalf("OpenDatabase() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	n, err := storage.NewProductRepo(db).Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}

func TestOpenVectorStoreAndIndex(t *testing.T) {
	cfg := testConfig(t)
	store, err := OpenVectorStore(cfg)
	if err != nil {
		t.Fatalf("OpenVectorStore() error = %v", err)
	}
	defer func() { _ = store.Close() }()

	manager, handle, err := OpenIndex(context.Background(), cfg, store, nil)
	if err != nil {
		t.Fatalf("OpenIndex() error = %v", err)
	}
	if handle.Name != "products" || handle.Dimension != 4 {
		t.Errorf("handle = %+v", handle)
	}
	stats, err := manager.Stats(context.Background(), handle)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalVectorCount != 0 {
		t.Errorf("TotalVectorCount = %d, want 0", stats.TotalVectorCount)
	}
}

func TestOpenVectorStore_UnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.IndexBackend = "faiss"
	if _, err := OpenVectorStore(cfg); err == nil {
		t.Error("OpenVectorStore() error = nil, want error")
	}
}

func TestOpenImageStore(t *testing.T) {
	cfg := testConfig(t)
	images, err := OpenImageStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenImageStore() error = %v", err)
	}

	ctx := context.Background()
	ref, err := images.Put(ctx, "P1", []byte("\x89PNG"), "image/png")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, err := images.Exists(ctx, "P1"); err != nil || !ok {
		t.Errorf("Exists() = %v, %v after Put returned %s", ok, err, ref)
	}

	cfg.ImageStore = "gcs"
	if _, err := OpenImageStore(ctx, cfg); err == nil {
		t.Error("OpenImageStore() error = nil for unknown store")
	}
}

func TestNewProductLookup_WithoutRedis(t *testing.T) {
	cfg := testConfig(t)
	db, err := OpenDatabase(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	lookup, err := NewProductLookup(context.Background(), cfg, storage.NewProductRepo(db))
	if err != nil {
		t.Fatalf("NewProductLookup() error = %v", err)
	}
	if lookup.Cache != nil {
		t.Error("Cache should be nil without REDIS_ADDR")
	}
	if err := lookup.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	got, err := lookup.GetByIDs(context.Background(), []string{"missing"})
	if err != nil || len(got) != 0 {
		t.Errorf("GetByIDs() = %v, %v", got, err)
	}
}

func TestNewGenerator(t *testing.T) {
	cfg := testConfig(t)
	if _, ok := NewGenerator(cfg).(rag.TemplateGenerator); !ok {
		t.Error("expected TemplateGenerator with the LLM disabled")
	}

	cfg.LLMEnabled = true
	cfg.LLMBaseURL = "http://localhost:8080"
	if _, ok := NewGenerator(cfg).(*rag.LLMGenerator); !ok {
		t.Error("expected LLMGenerator with an LLM base URL")
	}
}
