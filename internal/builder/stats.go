package builder

import "sync"

// Skip reasons recorded in Stats.ImagesSkippedReasons.
const (
	SkipPlaceholder = "placeholder"
	SkipFetch       = "fetch"
	SkipDecode      = "decode"
	SkipEncode      = "encode"
	SkipStore       = "store"
)

// Stats contains statistics about a build.
type Stats struct {
	// ProductsProcessed is the total number of products seen.
	ProductsProcessed int `json:"products_processed"`
	// ProductsFailed is the number of products whose text embedding failed.
	ProductsFailed int `json:"products_failed"`
	// ProductsWithoutImages is the number of records written with no image embeddings.
	ProductsWithoutImages int `json:"products_without_images"`
	// ImagesAttempted is the number of image URLs considered, placeholders included.
	ImagesAttempted int `json:"images_attempted"`
	// ImagesEmbedded is the number of image embeddings produced.
	ImagesEmbedded int `json:"images_embedded"`
	// ImagesReused is the number of images read from the content store instead of downloaded.
	ImagesReused int `json:"images_reused"`
	// ImagesSkipped is the number of images dropped.
	ImagesSkipped int `json:"images_skipped"`
	// ImagesSkippedReasons is a breakdown of why images were dropped.
	ImagesSkippedReasons map[string]int `json:"images_skipped_reasons,omitempty"`
}

// statsCollector accumulates Stats from concurrent workers.
type statsCollector struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsCollector() *statsCollector {
	return &statsCollector{stats: Stats{ImagesSkippedReasons: make(map[string]int)}}
}

func (c *statsCollector) add(fn func(s *Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

func (c *statsCollector) skip(reason string, n int) {
	if n == 0 {
		return
	}
	c.add(func(s *Stats) {
		s.ImagesSkipped += n
		s.ImagesSkippedReasons[reason] += n
	})
}

func (c *statsCollector) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	out.ImagesSkippedReasons = make(map[string]int, len(c.stats.ImagesSkippedReasons))
	for k, v := range c.stats.ImagesSkippedReasons {
		out.ImagesSkippedReasons[k] = v
	}
	return out
}
