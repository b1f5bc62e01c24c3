package cli

import (
	"bytes"
	"encoding/json"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"productsearch/internal/catalog"
	"productsearch/internal/encoder"
)

const testVectorSize = 8

// hashVector derives a stable pseudo-random vector from data.
func hashVector(data []byte) []float64 {
	h := fnv.New64a()
	_, _ = h.Write(data)
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	vec := make([]float64, testVectorSize)
	for i := range vec {
		vec[i] = rng.Float64()*2 - 1
	}
	return vec
}

func productPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{G: 180, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// newBackend serves the CLIP embeddings endpoints and one product image.
func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	photo := productPNG(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/img/P1.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(photo)
		case r.Method == http.MethodPost && (r.URL.Path == "/v1/embeddings" || r.URL.Path == "/v1/embeddings/image"):
			body, _ := io.ReadAll(r.Body)
			resp := encoder.EmbeddingsResponse{Data: []encoder.EmbeddingData{{Embedding: hashVector(body)}}}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// setupEnv points every path at a temp dir and the encoder at server.
func setupEnv(t *testing.T, server *httptest.Server) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("INDEX_BACKEND", "bolt")
	t.Setenv("BOLT_PATH", filepath.Join(dir, "index.db"))
	t.Setenv("DB_PATH", filepath.Join(dir, "catalog.db"))
	t.Setenv("IMAGE_STORE", "fs")
	t.Setenv("IMAGE_DIR", filepath.Join(dir, "images"))
	t.Setenv("EMBEDDINGS_PATH", filepath.Join(dir, "embeddings.json"))
	t.Setenv("VECTOR_SIZE", "8")
	t.Setenv("QDRANT_COLLECTION", "products")
	t.Setenv("UPSERT_BATCH_SIZE", "2")
	t.Setenv("IMAGE_FETCH_RETRIES", "1")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LOG_LEVEL", "error")
	if server != nil {
		t.Setenv("ENCODER_BASE_URL", server.URL)
	}
	return dir
}

func writeCatalogCSV(t *testing.T, dir, imageBase string) string {
	t.Helper()
	rows := []string{
		"Uniq Id,Product Name,Category,Selling Price,About Product,Product Specification,Image",
		"P1,Stand Mixer,Home & Kitchen,$199.99,Tilt-head mixer,5 quart bowl," + imageBase + "/img/P1.png",
		"P2,Samsung 55-Inch TV,Electronics,$499.99,4K UHD,HDR10," + imageBase + "/images/transparent-pixel.jpg",
		"P3,Yoga Mat,Sports,$24.99,Non-slip,6mm,",
		"P4,Desk Lamp,Home,$39.99,LED,Dimmable,",
		",Orphan row,Misc,$1,,,",
	}
	path := filepath.Join(dir, "products.csv")
	if err := os.WriteFile(path, []byte(strings.Join(rows, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPipeline(t *testing.T) {
	server := newBackend(t)
	dir := setupEnv(t, server)
	csvPath := writeCatalogCSV(t, dir, server.URL)

	out, err := runCLI(t, "import", "--csv", csvPath)
	if err != nil {
		t.Fatalf("import error = %v", err)
	}
	for _, want := range []string{"Rows imported:  4", "Rows skipped:   1"} {
		if !strings.Contains(out, want) {
			t.Errorf("import output missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, "build")
	if err != nil {
		t.Fatalf("build error = %v", err)
	}
	for _, want := range []string{"Records written:     4", "Images embedded:     1 (0 reused)", "placeholder:"} {
		if !strings.Contains(out, want) {
			t.Errorf("build output missing %q:\n%s", want, out)
		}
	}

	records, err := catalog.LoadEmbeddingsFile(filepath.Join(dir, "embeddings.json"), testVectorSize)
	if err != nil {
		t.Fatalf("LoadEmbeddingsFile() error = %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("records = %d, want 4", len(records))
	}
	if len(records[0].ImageEmbeddings) != 1 || len(records[0].ImagePaths) != 1 {
		t.Errorf("P1 images = %d embeddings, %d paths, want 1/1", len(records[0].ImageEmbeddings), len(records[0].ImagePaths))
	}

	out, err = runCLI(t, "build")
	if err != nil {
		t.Fatalf("second build error = %v", err)
	}
	if !strings.Contains(out, "(1 reused)") {
		t.Errorf("second build should reuse the stored image:\n%s", out)
	}

	out, err = runCLI(t, "load")
	if err != nil {
		t.Fatalf("load error = %v", err)
	}
	if !strings.Contains(out, "Entries:  5") || !strings.Contains(out, "Batches:  3") {
		t.Errorf("load output:\n%s", out)
	}

	out, err = runCLI(t, "load")
	if err != nil {
		t.Fatalf("second load error = %v", err)
	}
	if !strings.Contains(out, "already holds 5 entries") {
		t.Errorf("second load should be skipped:\n%s", out)
	}

	out, err = runCLI(t, "evaluate", "--sample", "5", "--seed", "3")
	if err != nil {
		t.Fatalf("evaluate error = %v", err)
	}
	for _, want := range []string{"RECALL@1", "100.00%", "sample 5, seed 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("evaluate output missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, "evaluate", "--sample", "50")
	if err != nil {
		t.Fatalf("evaluate error = %v", err)
	}
	if !strings.Contains(out, "evaluation skipped") {
		t.Errorf("oversized sample should skip:\n%s", out)
	}
}

func TestImport_UnreachableCacheDoesNotFail(t *testing.T) {
	dir := setupEnv(t, nil)
	t.Setenv("REDIS_ADDR", "127.0.0.1:1")
	csvPath := writeCatalogCSV(t, dir, "http://images.invalid")

	out, err := runCLI(t, "import", "--csv", csvPath)
	if err != nil {
		t.Fatalf("import error = %v", err)
	}
	if !strings.Contains(out, "Rows imported:  4") || !strings.Contains(out, "Cache evicted:  skipped") {
		t.Errorf("import output:\n%s", out)
	}
}

func TestImport_RequiresCSV(t *testing.T) {
	setupEnv(t, nil)
	if _, err := runCLI(t, "import"); err == nil {
		t.Error("import without --csv should fail")
	}
}

func TestBuild_EmptyCatalog(t *testing.T) {
	server := newBackend(t)
	setupEnv(t, server)

	_, err := runCLI(t, "build")
	if err == nil || !strings.Contains(err.Error(), "catalog is empty") {
		t.Errorf("build error = %v, want empty catalog error", err)
	}
}

func TestLoad_MissingEmbeddings(t *testing.T) {
	setupEnv(t, nil)
	if _, err := runCLI(t, "load"); err == nil {
		t.Error("load without an embeddings file should fail")
	}
}

func TestRoot_Flags(t *testing.T) {
	server := newBackend(t)
	dir := setupEnv(t, server)
	csvPath := writeCatalogCSV(t, dir, server.URL)

	overlay := filepath.Join(dir, "indexer.yaml")
	yaml := "embeddings_path: " + filepath.Join(dir, "alt.json") + "\nbuild:\n  workers: 2\n  fetch_timeout: 3s\neval:\n  sample_size: 7\n  seed: 11\n"
	if err := os.WriteFile(overlay, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T)
	}{
		{
			name: "config overlay",
			args: []string{"import", "--csv", csvPath, "--config", overlay},
			check: func(t *testing.T) {
				cfg := GetConfig()
				if cfg.BuildWorkers != 2 || cfg.EvalSampleSize != 7 || cfg.EvalSeed != 11 {
					t.Errorf("overlay not applied: workers=%d sample=%d seed=%d", cfg.BuildWorkers, cfg.EvalSampleSize, cfg.EvalSeed)
				}
				if cfg.ImageFetchTimeout != 3*time.Second {
					t.Errorf("ImageFetchTimeout = %v", cfg.ImageFetchTimeout)
				}
				if cfg.EmbeddingsPath != filepath.Join(dir, "alt.json") {
					t.Errorf("EmbeddingsPath = %s", cfg.EmbeddingsPath)
				}
			},
		},
		{
			name: "log level",
			args: []string{"import", "--csv", csvPath, "--log-level", "debug"},
			check: func(t *testing.T) {
				if GetConfig().LogLevel.String() != "DEBUG" {
					t.Errorf("LogLevel = %v", GetConfig().LogLevel)
				}
			},
		},
		{
			name:    "bad log level",
			args:    []string{"import", "--csv", csvPath, "--log-level", "loud"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{d: 1400 * time.Millisecond, want: "1s"},
		{d: 95 * time.Second, want: "1m35s"},
		{d: 2*time.Hour + 5*time.Minute, want: "2h5m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
