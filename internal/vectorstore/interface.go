package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks productsearch/internal/vectorstore VectorStore

import "context"

// Point represents a vector point with metadata.
// ID is the logical entry id (e.g. "B07X_text"); backends that need a different key format derive it.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// SearchResult represents a search result from vector search.
// PointID is the logical entry id.
type SearchResult struct {
	PointID string
	Score   float32
	Meta    map[string]any
}

// CollectionInfo contains information about a collection.
type CollectionInfo struct {
	VectorSize  int
	PointsCount int
	Status      string
}

// VectorStore defines the interface for vector storage operations.
type VectorStore interface {
	// EnsureCollection creates the collection with cosine distance, or validates its vector size if it exists.
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error

	// CollectionExists checks if a collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// GetCollectionInfo returns vector size, point count and status.
	GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error)

	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search performs a similarity search with optional equality filters on payload fields.
	Search(ctx context.Context, collection string, query []float32, k int, filters map[string]any) ([]SearchResult, error)
}

// Payload keys written with every point.
const (
	MetaPointID   = "point_id"
	MetaProductID = "product_id"
	MetaType      = "type"
	MetaImageIdx  = "img_idx"
	MetaImagePath = "image_path"
	MetaName      = "name"
	MetaCategory  = "category"
	MetaPrice     = "price"
)
