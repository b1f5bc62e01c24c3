package index

import (
	"fmt"

	"productsearch/internal/catalog"
	"productsearch/internal/vectorstore"
)

// TextEntryID is the index id of a product's text entry.
func TextEntryID(productID string) string {
	return productID + "_text"
}

// ImageEntryID is the index id of a product's i-th image entry.
func ImageEntryID(productID string, i int) string {
	return fmt.Sprintf("%s_img_%d", productID, i)
}

// Flatten turns records into index points: one text entry plus one entry per image embedding.
func Flatten(records []catalog.EmbeddingRecord, dim int) ([]vectorstore.Point, error) {
	points := make([]vectorstore.Point, 0, len(records)*2)
	seen := make(map[string]struct{}, len(records))

	for i := range records {
		rec := &records[i]
		if err := rec.Validate(dim); err != nil {
			return nil, err
		}
		if _, dup := seen[rec.ProductID]; dup {
			return nil, fmt.Errorf("duplicate product_id %s in records", rec.ProductID)
		}
		seen[rec.ProductID] = struct{}{}

		points = append(points, vectorstore.Point{
			ID:   TextEntryID(rec.ProductID),
			Vec:  rec.TextEmbedding,
			Meta: baseMeta(rec, TypeText),
		})

		for j, emb := range rec.ImageEmbeddings {
			meta := baseMeta(rec, TypeImage)
			meta[vectorstore.MetaImageIdx] = j
			if rec.ImagePaths[j] != "" {
				meta[vectorstore.MetaImagePath] = rec.ImagePaths[j]
			}
			points = append(points, vectorstore.Point{
				ID:   ImageEntryID(rec.ProductID, j),
				Vec:  emb,
				Meta: meta,
			})
		}
	}
	return points, nil
}

func baseMeta(rec *catalog.EmbeddingRecord, entryType string) map[string]any {
	return map[string]any{
		vectorstore.MetaProductID: rec.ProductID,
		vectorstore.MetaType:      entryType,
		vectorstore.MetaName:      rec.Metadata.Name,
		vectorstore.MetaCategory:  rec.Metadata.Category,
		vectorstore.MetaPrice:     rec.Metadata.Price,
	}
}
