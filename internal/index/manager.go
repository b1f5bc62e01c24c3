// Package index manages the product vector index: creation, idempotent bulk loading,
// type-partitioned queries and stats, on top of a vectorstore backend.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"productsearch/internal/catalog"
	"productsearch/internal/contextutil"
	"productsearch/internal/retry"
	"productsearch/internal/vectorstore"
)

// Entry types stored in the type payload field.
const (
	TypeText  = "text"
	TypeImage = "image"
)

// MetricCosine is the only supported similarity metric.
const MetricCosine = "cosine"

// DefaultBatchSize is the upsert batch size used when the manager is configured with zero.
const DefaultBatchSize = 100

// defaultLeaseTTL is how long a load lease is honoured before another loader may take it over.
const defaultLeaseTTL = 30 * time.Minute

// Handle identifies an ensured index.
type Handle struct {
	Name      string
	Dimension int
}

// Filter restricts a query to one entry type and optionally one category.
type Filter struct {
	Type     string
	Category string
}

// Match is one query result.
type Match struct {
	ID        string
	ProductID string
	Type      string
	ImageIdx  int
	Score     float32
	Metadata  map[string]any
}

// LoadStats summarizes a Load call.
type LoadStats struct {
	Skipped       bool `json:"skipped"`
	ExistingCount int  `json:"existing_count"`
	Records       int  `json:"records"`
	Entries       int  `json:"entries"`
	Batches       int  `json:"batches"`
}

// Stats describes an index.
type Stats struct {
	TotalVectorCount int    `json:"total_vector_count"`
	Dimension        int    `json:"dimension"`
	Status           string `json:"status"`
}

// Leaser hands out an exclusive load lease per index. storage.LockRepo implements it.
type Leaser interface {
	Acquire(ctx context.Context, collection, owner string, staleAfter time.Duration) (bool, error)
	Release(ctx context.Context, collection, owner string) error
}

// ErrLoadInProgress is returned when another loader holds the lease on the index.
var ErrLoadInProgress = errors.New("another load is in progress for this index")

// Manager wraps a VectorStore with the product index lifecycle.
type Manager struct {
	store       vectorstore.VectorStore
	batchSize   int
	retryPolicy retry.Policy
	leaser      Leaser
	owner       string

	// loadMu serializes Load in this process so the emptiness check and inserts are not interleaved.
	loadMu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithBatchSize sets the upsert batch size.
func WithBatchSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithRetryPolicy sets the per-batch retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(m *Manager) { m.retryPolicy = p }
}

// WithLeaser enables the cross-process load lease.
func WithLeaser(l Leaser) Option {
	return func(m *Manager) { m.leaser = l }
}

// NewManager creates a new Manager.
func NewManager(store vectorstore.VectorStore, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		batchSize:   DefaultBatchSize,
		retryPolicy: retry.DefaultPolicy,
		owner:       uuid.New().String(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureIndex creates the index if absent, or checks that the existing one has dimension dim.
func (m *Manager) EnsureIndex(ctx context.Context, name string, dim int, metric string) (Handle, error) {
	if name == "" {
		return Handle{}, fmt.Errorf("index name is required")
	}
	if dim <= 0 {
		return Handle{}, fmt.Errorf("invalid dimension %d", dim)
	}
	if metric != "" && !strings.EqualFold(metric, MetricCosine) {
		return Handle{}, fmt.Errorf("unsupported metric %q: only %s is supported", metric, MetricCosine)
	}

	if err := m.store.EnsureCollection(ctx, name, dim); err != nil {
		return Handle{}, fmt.Errorf("failed to ensure index %s: %w", name, err)
	}
	return Handle{Name: name, Dimension: dim}, nil
}

// Load inserts every record into an empty index. A non-empty index is left untouched and
// reported as skipped. Upserts go in fixed-size batches, each retried on its own.
func (m *Manager) Load(ctx context.Context, h Handle, records []catalog.EmbeddingRecord) (LoadStats, error) {
	return m.LoadWithProgress(ctx, h, records, nil)
}

// LoadWithProgress is Load with a callback invoked with the number of entries written after each batch.
func (m *Manager) LoadWithProgress(ctx context.Context, h Handle, records []catalog.EmbeddingRecord, progress func(written int)) (LoadStats, error) {
	logger := contextutil.LoggerFromContext(ctx)

	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	if m.leaser != nil {
		ok, err := m.leaser.Acquire(ctx, h.Name, m.owner, defaultLeaseTTL)
		if err != nil {
			return LoadStats{}, fmt.Errorf("failed to acquire load lease: %w", err)
		}
		if !ok {
			return LoadStats{}, ErrLoadInProgress
		}
		defer func() {
			if err := m.leaser.Release(context.WithoutCancel(ctx), h.Name, m.owner); err != nil {
				logger.WarnContext(ctx, "failed to release load lease", "index", h.Name, "error", err)
			}
		}()
	}

	info, err := m.store.GetCollectionInfo(ctx, h.Name)
	if err != nil {
		return LoadStats{}, fmt.Errorf("failed to describe index %s: %w", h.Name, err)
	}
	if info.PointsCount > 0 {
		logger.InfoContext(ctx, "index already populated, skipping load", "index", h.Name, "count", info.PointsCount)
		return LoadStats{Skipped: true, ExistingCount: info.PointsCount, Records: len(records)}, nil
	}

	points, err := Flatten(records, h.Dimension)
	if err != nil {
		return LoadStats{}, err
	}

	stats := LoadStats{Records: len(records), Entries: len(points)}
	for start := 0; start < len(points); start += m.batchSize {
		end := min(start+m.batchSize, len(points))
		batch := points[start:end]
		batchNum := start/m.batchSize + 1

		err := retry.Do(ctx, m.retryPolicy, func(ctx context.Context, attempt int) error {
			if attempt > 0 {
				logger.WarnContext(ctx, "retrying batch upsert", "index", h.Name, "batch", batchNum, "attempt", attempt+1)
			}
			return m.store.Upsert(ctx, h.Name, batch)
		})
		if err != nil {
			return stats, fmt.Errorf("failed to upsert batch %d (entries %d-%d): %w", batchNum, start, end-1, err)
		}

		stats.Batches++
		if progress != nil {
			progress(end)
		}
		logger.DebugContext(ctx, "upserted batch", "index", h.Name, "batch", batchNum, "size", len(batch))
	}

	logger.InfoContext(ctx, "index load complete", "index", h.Name, "records", stats.Records, "entries", stats.Entries, "batches", stats.Batches)
	return stats, nil
}

// Query returns up to topK entries of the filter's type ordered by score descending.
func (m *Manager) Query(ctx context.Context, h Handle, vec []float32, topK int, filter Filter) ([]Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be greater than 0")
	}
	if len(vec) != h.Dimension {
		return nil, fmt.Errorf("query vector has dimension %d, expected %d", len(vec), h.Dimension)
	}
	if filter.Type != TypeText && filter.Type != TypeImage {
		return nil, fmt.Errorf("invalid entry type filter %q", filter.Type)
	}

	filters := map[string]any{vectorstore.MetaType: filter.Type}
	if filter.Category != "" {
		filters[vectorstore.MetaCategory] = filter.Category
	}

	results, err := m.store.Search(ctx, h.Name, vec, topK, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to query index %s: %w", h.Name, err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, toMatch(r))
	}
	return matches, nil
}

// Stats returns the index's total vector count, dimension and status.
func (m *Manager) Stats(ctx context.Context, h Handle) (Stats, error) {
	info, err := m.store.GetCollectionInfo(ctx, h.Name)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to describe index %s: %w", h.Name, err)
	}
	return Stats{
		TotalVectorCount: info.PointsCount,
		Dimension:        info.VectorSize,
		Status:           info.Status,
	}, nil
}

func toMatch(r vectorstore.SearchResult) Match {
	m := Match{
		ID:       r.PointID,
		Score:    r.Score,
		Metadata: r.Meta,
		ImageIdx: -1,
	}
	m.ProductID, _ = r.Meta[vectorstore.MetaProductID].(string)
	m.Type, _ = r.Meta[vectorstore.MetaType].(string)
	if idx, ok := intValue(r.Meta[vectorstore.MetaImageIdx]); ok {
		m.ImageIdx = idx
	}
	return m
}

// intValue accepts the integer shapes the backends hand back for img_idx.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
