// Package builder produces embedding records from catalog products: one text embedding per
// product and one embedding per valid product image, with images persisted to a content store.
package builder

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"productsearch/internal/catalog"
	"productsearch/internal/contextutil"
	"productsearch/internal/encoder"
	"productsearch/internal/imageproc"
	"productsearch/internal/imagestore"
)

// DefaultWorkers is the product-level concurrency when none is configured.
const DefaultWorkers = 4

// Builder turns products into embedding records.
type Builder struct {
	encoder    encoder.Encoder
	fetcher    *Fetcher
	images     imagestore.Store
	workers    int
	onProgress func(done, total int)
}

// Config holds the Builder's collaborators and knobs.
type Config struct {
	Encoder encoder.Encoder
	Fetcher *Fetcher
	Images  imagestore.Store
	Workers int
	// OnProgress, if set, is called after each product completes.
	OnProgress func(done, total int)
}

// New creates a new Builder.
func New(cfg Config) *Builder {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Builder{
		encoder:    cfg.Encoder,
		fetcher:    cfg.Fetcher,
		images:     cfg.Images,
		workers:    workers,
		onProgress: cfg.OnProgress,
	}
}

type productResult struct {
	record *catalog.EmbeddingRecord
	failed bool
}

// Build embeds every product. Records come back in input order. Products whose text embedding
// failed are left out and their ids returned in failed. Image problems never fail a product.
// The error is non-nil only when ctx ends before the build completes.
func (b *Builder) Build(ctx context.Context, products []catalog.Product) (records []catalog.EmbeddingRecord, failed []string, stats Stats, err error) {
	logger := contextutil.LoggerFromContext(ctx)
	collector := newStatsCollector()

	results := make([]productResult, len(products))
	sem := make(chan struct{}, b.workers)
	var wg sync.WaitGroup
	var doneMu sync.Mutex
	done := 0

	for i := range products {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = b.buildOne(ctx, products[i], collector)

			if b.onProgress != nil {
				doneMu.Lock()
				done++
				b.onProgress(done, len(products))
				doneMu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, collector.snapshot(), fmt.Errorf("build interrupted: %w", err)
	}

	records = make([]catalog.EmbeddingRecord, 0, len(products))
	for i, r := range results {
		switch {
		case r.failed:
			failed = append(failed, products[i].ID)
		case r.record != nil:
			records = append(records, *r.record)
		}
	}
	sort.Strings(failed)

	stats = collector.snapshot()
	logger.InfoContext(ctx, "build complete",
		"products", stats.ProductsProcessed,
		"records", len(records),
		"failed", len(failed),
		"images_embedded", stats.ImagesEmbedded,
		"images_skipped", stats.ImagesSkipped,
	)
	return records, failed, stats, nil
}

func (b *Builder) buildOne(ctx context.Context, p catalog.Product, collector *statsCollector) productResult {
	logger := contextutil.LoggerFromContext(ctx).With("product_id", p.ID)
	collector.add(func(s *Stats) { s.ProductsProcessed++ })

	textVec, err := b.encoder.EncodeText(ctx, p.EnhancedText())
	if err != nil {
		logger.WarnContext(ctx, "text embedding failed", "error", err)
		collector.add(func(s *Stats) { s.ProductsFailed++ })
		return productResult{failed: true}
	}

	urls, placeholders := p.ImageURLs()
	collector.add(func(s *Stats) { s.ImagesAttempted += len(urls) + placeholders })
	collector.skip(SkipPlaceholder, placeholders)

	rec := &catalog.EmbeddingRecord{
		ProductID:       p.ID,
		TextEmbedding:   textVec,
		ImageEmbeddings: [][]float32{},
		ImagePaths:      []string{},
		Metadata:        catalog.MetadataOf(p),
	}

	for i, url := range urls {
		key := imagestore.ImageKey(p.ID, i, len(urls))
		vec, ref, reason, err := b.embedImage(ctx, key, url, collector)
		if err != nil {
			logger.WarnContext(ctx, "skipping image", "url", url, "reason", reason, "error", err)
			collector.skip(reason, 1)
			continue
		}
		rec.ImageEmbeddings = append(rec.ImageEmbeddings, vec)
		rec.ImagePaths = append(rec.ImagePaths, ref)
	}

	collector.add(func(s *Stats) {
		s.ImagesEmbedded += len(rec.ImageEmbeddings)
		if len(rec.ImageEmbeddings) == 0 {
			s.ProductsWithoutImages++
		}
	})
	return productResult{record: rec}
}

// embedImage loads the image from the store or downloads it, then embeds it.
// On failure it returns the skip reason.
func (b *Builder) embedImage(ctx context.Context, key, url string, collector *statsCollector) ([]float32, string, string, error) {
	var data []byte
	ref, ok, err := b.images.Exists(ctx, key)
	if err == nil && ok {
		data, err = b.images.Get(ctx, key)
		if err == nil {
			collector.add(func(s *Stats) { s.ImagesReused++ })
		}
	}

	if data == nil {
		data, err = b.fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, "", SkipFetch, err
		}
		if _, _, err := imageproc.Decode(data); err != nil {
			return nil, "", SkipDecode, err
		}
		ref, err = b.images.Put(ctx, key, data, imageproc.ContentType(data))
		if err != nil {
			return nil, "", SkipStore, err
		}
	}

	vec, err := b.encoder.EncodeImage(ctx, data)
	if err != nil {
		return nil, "", SkipEncode, err
	}
	if len(vec) != b.encoder.Dimension() {
		return nil, "", SkipEncode, fmt.Errorf("image embedding has dimension %d, expected %d", len(vec), b.encoder.Dimension())
	}
	return vec, ref, "", nil
}
