package handlers

import (
	"context"
	"net/http"

	"productsearch/internal/contextutil"
	"productsearch/internal/index"
)

// IndexStatser reports index statistics. index.Manager implements it.
type IndexStatser interface {
	Stats(ctx context.Context, h index.Handle) (index.Stats, error)
}

// StatsHandler handles HTTP requests for index statistics.
type StatsHandler struct {
	index  IndexStatser
	handle index.Handle
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(idx IndexStatser, handle index.Handle) *StatsHandler {
	return &StatsHandler{index: idx, handle: handle}
}

// StatsResponse represents the response from the stats endpoint.
//
// swagger:model StatsResponse
type StatsResponse struct {
	Collection       string `json:"collection"`
	TotalVectorCount int    `json:"total_vector_count"`
	Dimension        int    `json:"dimension"`
	Status           string `json:"status"`
}

// ServeHTTP handles HTTP requests for index statistics.
//
// swagger:route GET /api/index/stats indexStats
//
// responses:
//
//	'200':
//	  description: Index statistics
//	  schema:
//	    "$ref": "#/definitions/StatsResponse"
//	'503':
//	  description: Vector store unavailable
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := h.index.Stats(ctx, h.handle)
	if err != nil {
		logger.ErrorContext(ctx, "failed to describe index", "collection", h.handle.Name, "error", err)
		writeError(w, http.StatusServiceUnavailable, "Vector store unavailable")
		return
	}

	writeJSON(ctx, w, http.StatusOK, StatsResponse{
		Collection:       h.handle.Name,
		TotalVectorCount: stats.TotalVectorCount,
		Dimension:        stats.Dimension,
		Status:           stats.Status,
	})
}
