package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"productsearch/internal/catalog"
	"productsearch/internal/retry"
	"productsearch/internal/vectorstore"
	"productsearch/internal/vectorstore/mocks"
)

var fastRetry = retry.Policy{Attempts: 3, Base: time.Millisecond, Max: 2 * time.Millisecond}

func newBoltManager(t *testing.T, opts ...Option) (*Manager, Handle) {
	t.Helper()
	store, err := vectorstore.NewBoltStore(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	m := NewManager(store, opts...)
	h, err := m.EnsureIndex(context.Background(), "products", 3, MetricCosine)
	if err != nil {
		t.Fatalf("EnsureIndex() error = %v", err)
	}
	return m, h
}

func record(id string, text []float32, images ...[]float32) catalog.EmbeddingRecord {
	paths := make([]string, len(images))
	for i := range images {
		paths[i] = fmt.Sprintf("images/%s_%d.png", id, i)
	}
	if images == nil {
		images = [][]float32{}
	}
	return catalog.EmbeddingRecord{
		ProductID:       id,
		TextEmbedding:   text,
		ImageEmbeddings: images,
		ImagePaths:      paths,
		Metadata:        catalog.Metadata{Name: "Name " + id, Category: "Toys", Price: "$1"},
	}
}

func TestEnsureIndex(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	m := NewManager(store)
	ctx := context.Background()

	tests := []struct {
		name    string
		index   string
		dim     int
		metric  string
		setup   func()
		wantErr bool
	}{
		{
			name:   "cosine creates collection",
			index:  "products",
			dim:    512,
			metric: "cosine",
			setup: func() {
				store.EXPECT().EnsureCollection(gomock.Any(), "products", 512).Return(nil)
			},
		},
		{
			name:   "empty metric defaults to cosine",
			index:  "products",
			dim:    512,
			metric: "",
			setup: func() {
				store.EXPECT().EnsureCollection(gomock.Any(), "products", 512).Return(nil)
			},
		},
		{name: "euclidean rejected", index: "products", dim: 512, metric: "euclidean", wantErr: true},
		{name: "zero dimension rejected", index: "products", dim: 0, metric: "cosine", wantErr: true},
		{name: "empty name rejected", index: "", dim: 512, metric: "cosine", wantErr: true},
		{
			name:   "dimension mismatch surfaces",
			index:  "products",
			dim:    256,
			metric: "cosine",
			setup: func() {
				store.EXPECT().EnsureCollection(gomock.Any(), "products", 256).Return(errors.New("collection vector size mismatch"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			h, err := m.EnsureIndex(ctx, tt.index, tt.dim, tt.metric)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EnsureIndex() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (h.Name != tt.index || h.Dimension != tt.dim) {
				t.Errorf("EnsureIndex() handle = %+v", h)
			}
		})
	}
}

func TestFlatten(t *testing.T) {
	records := []catalog.EmbeddingRecord{
		record("A", []float32{1, 0, 0}, []float32{0, 1, 0}, []float32{0, 0, 1}),
		record("B", []float32{0, 1, 0}),
	}

	points, err := Flatten(records, 3)
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}

	wantIDs := []string{"A_text", "A_img_0", "A_img_1", "B_text"}
	if len(points) != len(wantIDs) {
		t.Fatalf("Flatten() produced %d points, want %d", len(points), len(wantIDs))
	}
	for i, id := range wantIDs {
		if points[i].ID != id {
			t.Errorf("points[%d].ID = %s, want %s", i, points[i].ID, id)
		}
	}

	img := points[2].Meta
	if img[vectorstore.MetaType] != TypeImage || img[vectorstore.MetaImageIdx] != 1 || img[vectorstore.MetaProductID] != "A" {
		t.Errorf("image entry meta = %v", img)
	}
	if _, ok := points[0].Meta[vectorstore.MetaImageIdx]; ok {
		t.Error("text entry must not carry img_idx")
	}
	if points[3].Meta[vectorstore.MetaName] != "Name B" {
		t.Errorf("text entry meta = %v", points[3].Meta)
	}
}

func TestFlatten_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		records []catalog.EmbeddingRecord
	}{
		{name: "wrong dimension", records: []catalog.EmbeddingRecord{record("A", []float32{1, 0})}},
		{name: "duplicate product", records: []catalog.EmbeddingRecord{record("A", []float32{1, 0, 0}), record("A", []float32{0, 1, 0})}},
		{name: "path count mismatch", records: []catalog.EmbeddingRecord{{
			ProductID:       "A",
			TextEmbedding:   []float32{1, 0, 0},
			ImageEmbeddings: [][]float32{{1, 0, 0}},
			ImagePaths:      []string{},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Flatten(tt.records, 3); err == nil {
				t.Error("Flatten() expected error")
			}
		})
	}
}

func TestLoad_ThenQuery(t *testing.T) {
	ctx := context.Background()
	m, h := newBoltManager(t, WithBatchSize(2), WithRetryPolicy(fastRetry))

	records := []catalog.EmbeddingRecord{
		record("A", []float32{1, 0, 0}, []float32{0, 1, 0}),
		record("B", []float32{0.8, 0.2, 0}),
		record("C", []float32{0, 0, 1}, []float32{0, 0.9, 0.1}),
	}

	var progress []int
	stats, err := m.LoadWithProgress(ctx, h, records, func(n int) { progress = append(progress, n) })
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if stats.Skipped || stats.Entries != 5 || stats.Batches != 3 {
		t.Errorf("Load() stats = %+v", stats)
	}
	if len(progress) != 3 || progress[2] != 5 {
		t.Errorf("progress = %v", progress)
	}

	idxStats, err := m.Stats(ctx, h)
	if err != nil {
		t.Fatal(err)
	}
	if idxStats.TotalVectorCount != 5 || idxStats.Dimension != 3 {
		t.Errorf("Stats() = %+v", idxStats)
	}

	text, err := m.Query(ctx, h, []float32{1, 0, 0}, 10, Filter{Type: TypeText})
	if err != nil {
		t.Fatal(err)
	}
	if len(text) != 3 || text[0].ProductID != "A" || text[1].ProductID != "B" {
		t.Errorf("text query = %+v", text)
	}
	for _, match := range text {
		if match.Type != TypeText {
			t.Errorf("text query returned %s entry %s", match.Type, match.ID)
		}
	}

	images, err := m.Query(ctx, h, []float32{0, 1, 0}, 10, Filter{Type: TypeImage})
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 2 || images[0].ID != "A_img_0" || images[0].ImageIdx != 0 {
		t.Errorf("image query = %+v", images)
	}

	// Second load is a no-op.
	again, err := m.Load(ctx, h, records)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Skipped || again.ExistingCount != 5 {
		t.Errorf("second Load() stats = %+v", again)
	}
	idxStats, _ = m.Stats(ctx, h)
	if idxStats.TotalVectorCount != 5 {
		t.Errorf("count after second load = %d, want 5", idxStats.TotalVectorCount)
	}
}

func TestLoad_ConcurrentCallsInsertOnce(t *testing.T) {
	ctx := context.Background()
	m, h := newBoltManager(t, WithRetryPolicy(fastRetry))

	records := []catalog.EmbeddingRecord{
		record("A", []float32{1, 0, 0}, []float32{0, 1, 0}),
		record("B", []float32{0, 0, 1}),
	}

	var wg sync.WaitGroup
	results := make([]LoadStats, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stats, err := m.Load(ctx, h, records)
			if err != nil {
				t.Errorf("Load() error = %v", err)
			}
			results[i] = stats
		}(i)
	}
	wg.Wait()

	loaded := 0
	for _, s := range results {
		if !s.Skipped {
			loaded++
		}
	}
	if loaded != 1 {
		t.Errorf("%d loads inserted, want exactly 1", loaded)
	}
}

func TestLoad_BatchRetry(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	m := NewManager(store, WithBatchSize(100), WithRetryPolicy(fastRetry))
	h := Handle{Name: "products", Dimension: 3}

	records := []catalog.EmbeddingRecord{record("A", []float32{1, 0, 0})}

	t.Run("transient failure recovers", func(t *testing.T) {
		store.EXPECT().GetCollectionInfo(gomock.Any(), "products").Return(&vectorstore.CollectionInfo{VectorSize: 3}, nil)
		gomock.InOrder(
			store.EXPECT().Upsert(gomock.Any(), "products", gomock.Any()).Return(errors.New("timeout")),
			store.EXPECT().Upsert(gomock.Any(), "products", gomock.Any()).Return(nil),
		)
		stats, err := m.Load(ctx, h, records)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if stats.Batches != 1 {
			t.Errorf("Batches = %d, want 1", stats.Batches)
		}
	})

	t.Run("exhausted retries fail the load", func(t *testing.T) {
		store.EXPECT().GetCollectionInfo(gomock.Any(), "products").Return(&vectorstore.CollectionInfo{VectorSize: 3}, nil)
		store.EXPECT().Upsert(gomock.Any(), "products", gomock.Any()).Return(errors.New("unavailable")).Times(3)
		_, err := m.Load(ctx, h, records)
		if err == nil {
			t.Fatal("Load() expected error")
		}
	})

	t.Run("describe failure", func(t *testing.T) {
		store.EXPECT().GetCollectionInfo(gomock.Any(), "products").Return(nil, errors.New("unreachable"))
		if _, err := m.Load(ctx, h, records); err == nil {
			t.Fatal("Load() expected error")
		}
	})
}

type fakeLeaser struct {
	grant    bool
	acquired int
	released int
}

func (f *fakeLeaser) Acquire(context.Context, string, string, time.Duration) (bool, error) {
	f.acquired++
	return f.grant, nil
}

func (f *fakeLeaser) Release(context.Context, string, string) error {
	f.released++
	return nil
}

func TestLoad_Lease(t *testing.T) {
	ctx := context.Background()

	t.Run("held elsewhere", func(t *testing.T) {
		l := &fakeLeaser{grant: false}
		m, h := newBoltManager(t, WithLeaser(l))
		_, err := m.Load(ctx, h, []catalog.EmbeddingRecord{record("A", []float32{1, 0, 0})})
		if !errors.Is(err, ErrLoadInProgress) {
			t.Fatalf("Load() error = %v, want ErrLoadInProgress", err)
		}
		if l.released != 0 {
			t.Errorf("released = %d, want 0", l.released)
		}
	})

	t.Run("granted and released", func(t *testing.T) {
		l := &fakeLeaser{grant: true}
		m, h := newBoltManager(t, WithLeaser(l))
		if _, err := m.Load(ctx, h, []catalog.EmbeddingRecord{record("A", []float32{1, 0, 0})}); err != nil {
			t.Fatal(err)
		}
		if l.acquired != 1 || l.released != 1 {
			t.Errorf("acquired = %d, released = %d", l.acquired, l.released)
		}
	})
}

func TestQuery_Validation(t *testing.T) {
	ctx := context.Background()
	m, h := newBoltManager(t)

	tests := []struct {
		name   string
		vec    []float32
		topK   int
		filter Filter
	}{
		{name: "zero topK", vec: []float32{1, 0, 0}, topK: 0, filter: Filter{Type: TypeText}},
		{name: "wrong dimension", vec: []float32{1, 0}, topK: 5, filter: Filter{Type: TypeText}},
		{name: "unknown type", vec: []float32{1, 0, 0}, topK: 5, filter: Filter{Type: "video"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Query(ctx, h, tt.vec, tt.topK, tt.filter); err == nil {
				t.Error("Query() expected error")
			}
		})
	}
}

func TestQuery_CategoryFilter(t *testing.T) {
	ctx := context.Background()
	m, h := newBoltManager(t)

	other := record("B", []float32{1, 0, 0})
	other.Metadata.Category = "Books"
	if _, err := m.Load(ctx, h, []catalog.EmbeddingRecord{record("A", []float32{0.9, 0.1, 0}), other}); err != nil {
		t.Fatal(err)
	}

	matches, err := m.Query(ctx, h, []float32{1, 0, 0}, 5, Filter{Type: TypeText, Category: "Toys"})
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].ProductID != "A" {
		t.Errorf("Query() = %+v", matches)
	}
}
