package cache

import (
	"context"

	"productsearch/internal/catalog"
	"productsearch/internal/contextutil"
)

// ProductCache is the cache side of the lookup.
type ProductCache interface {
	GetProducts(ctx context.Context, ids []string) (map[string]catalog.Product, error)
	SetProducts(ctx context.Context, products []catalog.Product) error
}

// ProductSource is the authoritative product store.
type ProductSource interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}

// CachedLookup reads products through the cache and fills it from the source on misses.
// A failing cache degrades to direct source reads.
type CachedLookup struct {
	cache  ProductCache
	source ProductSource
}

// NewCachedLookup creates a new CachedLookup.
func NewCachedLookup(cache ProductCache, source ProductSource) *CachedLookup {
	return &CachedLookup{cache: cache, source: source}
}

// GetByIDs returns the products among ids that exist.
func (l *CachedLookup) GetByIDs(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if len(ids) == 0 {
		return map[string]catalog.Product{}, nil
	}

	result, err := l.cache.GetProducts(ctx, ids)
	if err != nil {
		logger.WarnContext(ctx, "product cache unavailable, reading from store", "error", err)
		result = make(map[string]catalog.Product, len(ids))
	}

	var missing []string
	for _, id := range ids {
		if _, ok := result[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := l.source.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}

	toCache := make([]catalog.Product, 0, len(fetched))
	for id, p := range fetched {
		result[id] = p
		toCache = append(toCache, p)
	}
	if len(toCache) > 0 {
		_ = l.cache.SetProducts(ctx, toCache)
	}

	logger.DebugContext(ctx, "product lookup", "requested", len(ids), "cache_hits", len(ids)-len(missing), "fetched", len(fetched))
	return result, nil
}
