package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EmbeddingRecord is the per-product output of the build and the input of the index load.
// Field names are the persisted file format and must not change without a migration.
type EmbeddingRecord struct {
	ProductID       string      `json:"product_id"`
	TextEmbedding   []float32   `json:"text_embedding"`
	ImageEmbeddings [][]float32 `json:"image_embeddings"`
	ImagePaths      []string    `json:"image_paths"`
	Metadata        Metadata    `json:"metadata"`
}

// Validate checks the record against the embedding dimension.
func (r *EmbeddingRecord) Validate(dim int) error {
	if r.ProductID == "" {
		return fmt.Errorf("record has empty product_id")
	}
	if len(r.TextEmbedding) != dim {
		return fmt.Errorf("record %s: text embedding has dimension %d, expected %d", r.ProductID, len(r.TextEmbedding), dim)
	}
	for i, emb := range r.ImageEmbeddings {
		if len(emb) != dim {
			return fmt.Errorf("record %s: image embedding %d has dimension %d, expected %d", r.ProductID, i, len(emb), dim)
		}
	}
	if len(r.ImageEmbeddings) != len(r.ImagePaths) {
		return fmt.Errorf("record %s: %d image embeddings but %d image paths", r.ProductID, len(r.ImageEmbeddings), len(r.ImagePaths))
	}
	return nil
}

// normalize replaces null image lists with empty ones.
func (r *EmbeddingRecord) normalize() {
	if r.ImageEmbeddings == nil {
		r.ImageEmbeddings = [][]float32{}
	}
	if r.ImagePaths == nil {
		r.ImagePaths = []string{}
	}
}

// WriteEmbeddings encodes records as a JSON array.
func WriteEmbeddings(w io.Writer, records []EmbeddingRecord) error {
	if records == nil {
		records = []EmbeddingRecord{}
	}
	for i := range records {
		records[i].normalize()
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode embeddings: %w", err)
	}
	return nil
}

// ReadEmbeddings decodes a JSON array of records. Unknown fields are ignored.
func ReadEmbeddings(r io.Reader) ([]EmbeddingRecord, error) {
	var records []EmbeddingRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode embeddings: %w", err)
	}
	for i := range records {
		records[i].normalize()
	}
	return records, nil
}

// SaveEmbeddingsFile writes records to path through a temp file and rename, so readers never see a partial file.
func SaveEmbeddingsFile(path string, records []EmbeddingRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create embeddings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".embeddings-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := WriteEmbeddings(tmp, records); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move embeddings file into place: %w", err)
	}
	return nil
}

// LoadEmbeddingsFile reads records from path and validates each against dim.
func LoadEmbeddingsFile(path string, dim int) ([]EmbeddingRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embeddings file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	records, err := ReadEmbeddings(f)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if err := records[i].Validate(dim); err != nil {
			return nil, fmt.Errorf("invalid embeddings file %s: %w", path, err)
		}
	}
	return records, nil
}
