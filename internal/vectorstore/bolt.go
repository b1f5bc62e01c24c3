package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"productsearch/internal/contextutil"
)

var bucketCollections = []byte("_collections")

// BoltStore implements VectorStore on an embedded bbolt file.
// Search is brute-force cosine over an in-memory copy of each collection, which is
// loaded once on open and kept in step with writes.
type BoltStore struct {
	db *bbolt.DB

	mu          sync.RWMutex
	collections map[string]*boltCollection
}

type boltCollection struct {
	vectorSize int
	entries    map[string]boltEntry
}

type boltEntry struct {
	vector []float32
	norm   float64
	meta   map[string]any
}

type storedPoint struct {
	Vector []float32      `json:"v"`
	Meta   map[string]any `json:"m,omitempty"`
}

// NewBoltStore opens (or creates) the bbolt file at path.
// bbolt holds an exclusive file lock, so a second writer process blocks until timeout.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt index: %w", err)
	}

	s := &BoltStore{
		db:          db,
		collections: make(map[string]*boltCollection),
	}
	if err := s.loadAll(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) loadAll() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketCollections)
		if err != nil {
			return fmt.Errorf("failed to create collections bucket: %w", err)
		}

		return meta.ForEach(func(name, sizeRaw []byte) error {
			size, err := strconv.Atoi(string(sizeRaw))
			if err != nil {
				return fmt.Errorf("corrupt vector size for collection %s: %w", name, err)
			}
			coll := &boltCollection{vectorSize: size, entries: make(map[string]boltEntry)}

			if b := tx.Bucket(name); b != nil {
				err := b.ForEach(func(k, v []byte) error {
					var sp storedPoint
					if err := json.Unmarshal(v, &sp); err != nil {
						return nil // skip corrupted entries
					}
					coll.entries[string(k)] = boltEntry{vector: sp.Vector, norm: norm(sp.Vector), meta: sp.Meta}
					return nil
				})
				if err != nil {
					return err
				}
			}
			s.collections[string(name)] = coll
			return nil
		})
	})
}

// EnsureCollection creates the collection bucket or validates its vector size.
func (s *BoltStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	logger := contextutil.LoggerFromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if coll, ok := s.collections[collection]; ok {
		if coll.vectorSize != vectorSize {
			return fmt.Errorf("collection vector size mismatch: expected %d, got %d", vectorSize, coll.vectorSize)
		}
		logger.InfoContext(ctx, "collection validated", "collection", collection, "vector_size", vectorSize)
		return nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(collection)); err != nil {
			return err
		}
		return tx.Bucket(bucketCollections).Put([]byte(collection), []byte(strconv.Itoa(vectorSize)))
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	s.collections[collection] = &boltCollection{vectorSize: vectorSize, entries: make(map[string]boltEntry)}
	logger.InfoContext(ctx, "collection created", "collection", collection, "vector_size", vectorSize)
	return nil
}

// CollectionExists checks if a collection exists.
func (s *BoltStore) CollectionExists(_ context.Context, collection string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collection]
	return ok, nil
}

// GetCollectionInfo returns the vector size and count of a collection.
func (s *BoltStore) GetCollectionInfo(_ context.Context, collection string) (*CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s does not exist", collection)
	}
	return &CollectionInfo{
		VectorSize:  coll.vectorSize,
		PointsCount: len(coll.entries),
		Status:      "green",
	}, nil
}

// Upsert inserts or updates points keyed by their logical ids in one transaction.
func (s *BoltStore) Upsert(ctx context.Context, collection string, points []Point) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s does not exist", collection)
	}

	encoded := make([][]byte, len(points))
	for i, point := range points {
		if point.ID == "" {
			return fmt.Errorf("point %d has empty id", i)
		}
		if len(point.Vec) != coll.vectorSize {
			return fmt.Errorf("point %s: vector dimension mismatch: expected %d, got %d", point.ID, coll.vectorSize, len(point.Vec))
		}
		data, err := json.Marshal(storedPoint{Vector: point.Vec, Meta: point.Meta})
		if err != nil {
			return fmt.Errorf("failed to encode point %s: %w", point.ID, err)
		}
		encoded[i] = data
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("bucket for collection %s not found", collection)
		}
		for i, point := range points {
			if err := b.Put([]byte(point.ID), encoded[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", collection, "count", len(points), "error", err)
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	// Round-trip metadata through JSON so searches see the same shapes a reopened store would.
	for i, point := range points {
		var sp storedPoint
		_ = json.Unmarshal(encoded[i], &sp)
		coll.entries[point.ID] = boltEntry{vector: sp.Vector, norm: norm(sp.Vector), meta: sp.Meta}
	}

	logger.DebugContext(ctx, "upserted points", "collection", collection, "count", len(points))
	return nil
}

// Search returns the k entries most similar to query by cosine similarity, ordered by score desc.
// Ties are broken by id so results are deterministic.
func (s *BoltStore) Search(ctx context.Context, collection string, query []float32, k int, filters map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s does not exist", collection)
	}
	if len(query) != coll.vectorSize {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", coll.vectorSize, len(query))
	}

	qNorm := norm(query)
	results := make([]SearchResult, 0, len(coll.entries))
	for id, entry := range coll.entries {
		if !matchesFilters(entry.meta, filters) {
			continue
		}
		results = append(results, SearchResult{
			PointID: id,
			Score:   float32(cosine(query, qNorm, entry.vector, entry.norm)),
			Meta:    copyMeta(entry.meta),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].PointID < results[j].PointID
	})
	if len(results) > k {
		results = results[:k]
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "search completed", "collection", collection, "k", k, "results", len(results))
	return results, nil
}

// matchesFilters reports whether every filter key equals the entry's payload value.
// Numbers are compared by value since JSON decoding turns ints into float64.
func matchesFilters(meta map[string]any, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := meta[key]
		if !ok || !equalValue(want, got) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func copyMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}
