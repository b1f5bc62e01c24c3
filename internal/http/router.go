package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"productsearch/internal/handlers"
	"productsearch/internal/index"
	"productsearch/internal/service"
	"productsearch/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	SearchService  service.SearchService
	MaxImageBytes  int64
	Index          handlers.IndexStatser
	Handle         index.Handle
	VectorStore    vectorstore.VectorStore
	CollectionName string
	Database       handlers.Pinger
	// Cache is nil when no cache is configured.
	Cache handlers.Pinger
	// Samples overrides the default sample questions when non-nil.
	Samples   []handlers.SampleQuestion
	IndexHTML string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Use(CORS)

	searchHandler := handlers.NewSearchHandler(deps.SearchService, deps.MaxImageBytes)
	healthHandler := handlers.NewHealthHandler(deps.VectorStore, deps.CollectionName, deps.Database, deps.Cache)
	statsHandler := handlers.NewStatsHandler(deps.Index, deps.Handle)
	samplesHandler := handlers.NewSamplesHandler(deps.Samples)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/search", searchHandler)
		r.Method(http.MethodGet, "/health", healthHandler)
		r.Method(http.MethodGet, "/index/stats", statsHandler)
		r.Method(http.MethodGet, "/samples", samplesHandler)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(deps.IndexHTML))
	})

	return r
}
