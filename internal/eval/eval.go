// Package eval measures index fidelity by self-retrieval: every sampled entry's own vector is
// queried against its type partition and the harness checks whether the entry comes back in the
// top 1, 5 and 10 matches. High recall means the index stores and returns what was loaded. It says
// nothing about whether the embeddings serve real product questions well.
package eval

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"text/tabwriter"

	"productsearch/internal/catalog"
	"productsearch/internal/contextutil"
	"productsearch/internal/index"
)

// QueryTopK is the depth of every evaluation query.
const QueryTopK = 10

// DefaultSampleSize is the number of entries sampled when none is configured.
const DefaultSampleSize = 100

// Querier runs a kNN query within one type partition. index.Manager implements it.
type Querier interface {
	Query(ctx context.Context, h index.Handle, vec []float32, topK int, filter index.Filter) ([]index.Match, error)
}

// TypeMetrics holds recall for one entry type.
type TypeMetrics struct {
	Queried    int     `json:"queried"`
	Errors     int     `json:"errors"`
	Hits1      int     `json:"hits_at_1"`
	Hits5      int     `json:"hits_at_5"`
	Hits10     int     `json:"hits_at_10"`
	RecallAt1  float64 `json:"recall_at_1"`
	RecallAt5  float64 `json:"recall_at_5"`
	RecallAt10 float64 `json:"recall_at_10"`
}

// Report is the outcome of one evaluation run.
type Report struct {
	Entries    int                    `json:"entries"`
	SampleSize int                    `json:"sample_size"`
	Seed       int64                  `json:"seed"`
	PerType    map[string]TypeMetrics `json:"per_type"`
	// SampledIDs lists the sampled entry ids in query order.
	SampledIDs []string `json:"sampled_ids,omitempty"`
	Skipped    bool     `json:"skipped"`
	Reason     string   `json:"reason,omitempty"`
}

// Harness runs self-retrieval evaluations.
type Harness struct {
	index      Querier
	seed       int64
	onProgress func(done, total int)
}

// Option configures a Harness.
type Option func(*Harness)

// WithSeed sets the sampling seed. The same seed over the same records samples the same entries.
func WithSeed(seed int64) Option {
	return func(h *Harness) { h.seed = seed }
}

// WithProgress registers a callback invoked after each query.
func WithProgress(fn func(done, total int)) Option {
	return func(h *Harness) { h.onProgress = fn }
}

// NewHarness creates a Harness over q.
func NewHarness(q Querier, opts ...Option) *Harness {
	h := &Harness{index: q, seed: 42}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type entry struct {
	id     string
	typ    string
	vector []float32
}

// entriesOf lists every text and image entry of records in record order, with the loader's ids.
func entriesOf(records []catalog.EmbeddingRecord) []entry {
	var out []entry
	for _, rec := range records {
		if len(rec.TextEmbedding) > 0 {
			out = append(out, entry{id: index.TextEntryID(rec.ProductID), typ: index.TypeText, vector: rec.TextEmbedding})
		}
		for i, vec := range rec.ImageEmbeddings {
			out = append(out, entry{id: index.ImageEntryID(rec.ProductID, i), typ: index.TypeImage, vector: vec})
		}
	}
	return out
}

// Evaluate samples sampleSize entries without replacement and queries each against its own type
// partition. Too few entries yields a skipped report, not an error. Query errors are logged and
// excluded from recall. The error is non-nil only when ctx ends.
func (h *Harness) Evaluate(ctx context.Context, handle index.Handle, records []catalog.EmbeddingRecord, sampleSize int) (Report, error) {
	logger := contextutil.LoggerFromContext(ctx)

	entries := entriesOf(records)
	report := Report{
		Entries:    len(entries),
		SampleSize: sampleSize,
		Seed:       h.seed,
		PerType: map[string]TypeMetrics{
			index.TypeText:  {},
			index.TypeImage: {},
		},
	}

	if sampleSize <= 0 {
		report.Skipped = true
		report.Reason = "sample size is zero"
		return report, nil
	}
	if len(entries) < sampleSize {
		report.Skipped = true
		report.Reason = fmt.Sprintf("not enough entries for evaluation: have %d, need %d", len(entries), sampleSize)
		logger.WarnContext(ctx, "skipping evaluation", "entries", len(entries), "sample_size", sampleSize)
		return report, nil
	}

	rng := rand.New(rand.NewSource(h.seed))
	sample := rng.Perm(len(entries))[:sampleSize]

	logger.InfoContext(ctx, "evaluation started", "entries", len(entries), "sample_size", sampleSize, "seed", h.seed)

	report.SampledIDs = make([]string, 0, sampleSize)
	for n, idx := range sample {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("evaluation interrupted: %w", err)
		}

		e := entries[idx]
		report.SampledIDs = append(report.SampledIDs, e.id)
		m := report.PerType[e.typ]

		matches, err := h.index.Query(ctx, handle, e.vector, QueryTopK, index.Filter{Type: e.typ})
		if err != nil {
			logger.WarnContext(ctx, "evaluation query failed", "entry_id", e.id, "error", err)
			m.Errors++
			report.PerType[e.typ] = m
			h.progress(n+1, sampleSize)
			continue
		}

		m.Queried++
		if rank := rankOf(matches, e.id); rank >= 0 {
			if rank < 1 {
				m.Hits1++
			}
			if rank < 5 {
				m.Hits5++
			}
			if rank < 10 {
				m.Hits10++
			}
		}
		report.PerType[e.typ] = m
		h.progress(n+1, sampleSize)
	}

	for typ, m := range report.PerType {
		if m.Queried > 0 {
			m.RecallAt1 = float64(m.Hits1) / float64(m.Queried)
			m.RecallAt5 = float64(m.Hits5) / float64(m.Queried)
			m.RecallAt10 = float64(m.Hits10) / float64(m.Queried)
		}
		report.PerType[typ] = m
	}

	text, img := report.PerType[index.TypeText], report.PerType[index.TypeImage]
	logger.InfoContext(ctx, "evaluation complete",
		"text_queried", text.Queried,
		"text_recall_at_1", text.RecallAt1,
		"image_queried", img.Queried,
		"image_recall_at_1", img.RecallAt1,
		"errors", text.Errors+img.Errors,
	)
	return report, nil
}

func (h *Harness) progress(done, total int) {
	if h.onProgress != nil {
		h.onProgress(done, total)
	}
}

// rankOf returns the position of id in matches, or -1.
func rankOf(matches []index.Match, id string) int {
	for i, m := range matches {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// WriteTable prints the per-type recall table.
func (r Report) WriteTable(w io.Writer) error {
	if r.Skipped {
		_, err := fmt.Fprintf(w, "evaluation skipped: %s\n", r.Reason)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tQUERIED\tERRORS\tRECALL@1\tRECALL@5\tRECALL@10")
	for _, typ := range []string{index.TypeText, index.TypeImage} {
		m := r.PerType[typ]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f%%\t%.2f%%\t%.2f%%\n",
			typ, m.Queried, m.Errors, m.RecallAt1*100, m.RecallAt5*100, m.RecallAt10*100)
	}
	return tw.Flush()
}
