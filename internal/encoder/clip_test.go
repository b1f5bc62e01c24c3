package encoder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"
)

func embeddingResponse(w http.ResponseWriter, size int) {
	resp := EmbeddingsResponse{Data: []EmbeddingData{{Embedding: make([]float64, size)}}}
	resp.Data[0].Embedding[0] = 1
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestNewClipEncoder(t *testing.T) {
	enc := NewClipEncoder("http://localhost:8082/", "", "clip", 512, Options{})
	if enc.BaseURL != "http://localhost:8082" {
		t.Errorf("BaseURL = %v, want trailing slash trimmed", enc.BaseURL)
	}
	if enc.Dimension() != 512 {
		t.Errorf("Dimension() = %d, want 512", enc.Dimension())
	}
	if enc.MaxTokens != DefaultMaxTokens || enc.ImageSize != DefaultImageSize {
		t.Errorf("defaults not applied: %+v", enc)
	}
}

func TestClipEncoder_EncodeText(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		serverResp func(t *testing.T, w http.ResponseWriter, r *http.Request)
		wantErr    bool
	}{
		{
			name: "successful embedding",
			text: "samsung galaxy phone",
			serverResp: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST, got %s", r.Method)
				}
				if r.URL.Path != "/v1/embeddings" {
					t.Errorf("expected /v1/embeddings, got %s", r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer key" {
					t.Errorf("Authorization = %q", got)
				}
				var req TextRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				if req.Model != "clip" || len(req.Input) != 1 || req.Input[0] != "samsung galaxy phone" {
					t.Errorf("unexpected request %+v", req)
				}
				embeddingResponse(w, 8)
			},
		},
		{
			name: "long text is truncated before sending",
			text: strings.Repeat("word ", 1000),
			serverResp: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				var req TextRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				if n := utf8.RuneCountInString(req.Input[0]); n != DefaultMaxTokens*RunesPerToken {
					t.Errorf("sent %d runes, want %d", n, DefaultMaxTokens*RunesPerToken)
				}
				embeddingResponse(w, 8)
			},
		},
		{
			name: "wrong dimension",
			text: "x",
			serverResp: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				embeddingResponse(w, 4)
			},
			wantErr: true,
		},
		{
			name: "server error",
			text: "x",
			serverResp: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("model not loaded"))
			},
			wantErr: true,
		},
		{
			name: "empty data",
			text: "x",
			serverResp: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(EmbeddingsResponse{})
			},
			wantErr: true,
		},
		{
			name: "invalid json",
			text: "x",
			serverResp: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tt.serverResp(t, w, r)
			}))
			defer server.Close()

			enc := NewClipEncoder(server.URL, "key", "clip", 8, Options{})
			vec, err := enc.EncodeText(context.Background(), tt.text)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EncodeText() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(vec) != 8 {
				t.Errorf("EncodeText() returned %d dims, want 8", len(vec))
			}
		})
	}
}

func TestClipEncoder_EncodeImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings/image" {
			t.Errorf("expected /v1/embeddings/image, got %s", r.URL.Path)
		}
		var req ImageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		raw, err := base64.StdEncoding.DecodeString(req.Images[0])
		if err != nil {
			t.Errorf("image not base64: %v", err)
			return
		}
		img, err := png.Decode(bytes.NewReader(raw))
		if err != nil {
			t.Errorf("image not png: %v", err)
			return
		}
		if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 32 {
			t.Errorf("image bounds = %v, want 32x32", b)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("Authorization header sent without api key")
		}
		embeddingResponse(w, 8)
	}))
	defer server.Close()

	enc := NewClipEncoder(server.URL, "", "clip", 8, Options{ImageSize: 32})

	vec, err := enc.EncodeImage(context.Background(), testPNG(t, 100, 60))
	if err != nil {
		t.Fatalf("EncodeImage() error = %v", err)
	}
	if len(vec) != 8 {
		t.Errorf("EncodeImage() returned %d dims", len(vec))
	}

	if _, err := enc.EncodeImage(context.Background(), []byte("not an image")); err == nil {
		t.Error("EncodeImage() expected error for invalid payload")
	}
}

func TestClipEncoder_ConcurrencyBound(t *testing.T) {
	var inFlight, peak int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		embeddingResponse(w, 4)
	}))
	defer server.Close()

	enc := NewClipEncoder(server.URL, "", "clip", 4, Options{MaxConcurrency: 2})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := enc.EncodeText(context.Background(), "q"); err != nil {
				t.Errorf("EncodeText() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("peak in-flight = %d, want <= 2", peak)
	}
}

func TestClipEncoder_ContextCancelledWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		embeddingResponse(w, 4)
	}))
	defer server.Close()
	defer close(release)

	enc := NewClipEncoder(server.URL, "", "clip", 4, Options{MaxConcurrency: 1})
	go func() { _, _ = enc.EncodeText(context.Background(), "holder") }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := enc.EncodeText(ctx, "waiter"); err == nil {
		t.Error("EncodeText() expected context error while waiting for a slot")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		maxTokens int
		wantRunes int
	}{
		{name: "short text unchanged", text: "hello", maxTokens: 77, wantRunes: 5},
		{name: "long text cut", text: strings.Repeat("a", 500), maxTokens: 10, wantRunes: 40},
		{name: "multibyte runes kept whole", text: strings.Repeat("é", 50), maxTokens: 2, wantRunes: 8},
		{name: "zero limit disables", text: "abc", maxTokens: 0, wantRunes: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.text, tt.maxTokens)
			if n := utf8.RuneCountInString(got); n != tt.wantRunes {
				t.Errorf("Truncate() = %d runes, want %d", n, tt.wantRunes)
			}
			if !utf8.ValidString(got) {
				t.Error("Truncate() produced invalid UTF-8")
			}
		})
	}
}
