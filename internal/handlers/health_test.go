package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/mock/gomock"

	"productsearch/internal/index"
	"productsearch/internal/vectorstore/mocks"
)

func okPing(context.Context) error { return nil }

func failPing(context.Context) error { return errors.New("connection refused") }

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name       string
		exists     bool
		existsErr  error
		database   Pinger
		cache      Pinger
		wantStatus int
		wantState  string
		wantChecks map[string]string
	}{
		{
			name:       "healthy without cache",
			exists:     true,
			database:   PingFunc(okPing),
			wantStatus: http.StatusOK,
			wantState:  "healthy",
			wantChecks: map[string]string{"vector_store": "ok", "database": "ok"},
		},
		{
			name:       "cache down is degraded",
			exists:     true,
			database:   PingFunc(okPing),
			cache:      PingFunc(failPing),
			wantStatus: http.StatusOK,
			wantState:  "degraded",
			wantChecks: map[string]string{"vector_store": "ok", "database": "ok", "cache": "error"},
		},
		{
			name:       "vector store unreachable",
			existsErr:  errors.New("dial tcp: connection refused"),
			database:   PingFunc(okPing),
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
			wantChecks: map[string]string{"vector_store": "error", "database": "ok"},
		},
		{
			name:       "collection missing",
			exists:     false,
			database:   PingFunc(okPing),
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
		{
			name:       "database down",
			exists:     true,
			database:   PingFunc(failPing),
			cache:      PingFunc(okPing),
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
			wantChecks: map[string]string{"vector_store": "ok", "database": "error", "cache": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := mocks.NewMockVectorStore(ctrl)
			store.EXPECT().CollectionExists(gomock.Any(), "multimodal").Return(tt.exists, tt.existsErr)

			handler := NewHealthHandler(store, "multimodal", tt.database, tt.cache)
			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantState {
				t.Errorf("Status = %q, want %q", resp.Status, tt.wantState)
			}
			for k, v := range tt.wantChecks {
				if resp.Checks[k] != v {
					t.Errorf("Checks[%s] = %q, want %q", k, resp.Checks[k], v)
				}
			}
			if tt.wantState != "healthy" && len(resp.Issues) == 0 {
				t.Error("Issues empty for non-healthy status")
			}
		})
	}
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	handler := NewHealthHandler(nil, "multimodal", nil, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

type fakeStatser struct {
	stats index.Stats
	err   error
}

func (f fakeStatser) Stats(context.Context, index.Handle) (index.Stats, error) {
	return f.stats, f.err
}

func TestStatsHandler_ServeHTTP(t *testing.T) {
	handle := index.Handle{Name: "multimodal", Dimension: 512}

	t.Run("ok", func(t *testing.T) {
		handler := NewStatsHandler(fakeStatser{stats: index.Stats{TotalVectorCount: 42, Dimension: 512, Status: "green"}}, handle)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/index/stats", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var resp StatsResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Collection != "multimodal" || resp.TotalVectorCount != 42 || resp.Dimension != 512 || resp.Status != "green" {
			t.Errorf("response = %+v", resp)
		}
	})

	t.Run("backend error", func(t *testing.T) {
		handler := NewStatsHandler(fakeStatser{err: errors.New("unavailable")}, handle)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/index/stats", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})
}

func TestSamplesHandler_ServeHTTP(t *testing.T) {
	handler := NewSamplesHandler(nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/samples", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got []SampleQuestion
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != len(DefaultSampleQuestions) {
		t.Errorf("got %d samples, want %d", len(got), len(DefaultSampleQuestions))
	}
	imageSamples := 0
	for _, s := range got {
		if s.NeedsImage {
			imageSamples++
		}
	}
	if imageSamples != 2 {
		t.Errorf("image samples = %d, want 2", imageSamples)
	}
}
