// Package encoder turns text and images into vectors in one shared CLIP embedding space.
package encoder

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_encoder.go -package=mocks productsearch/internal/encoder Encoder

import (
	"context"
	"fmt"
)

// Encoder produces fixed-dimension embeddings for text and images.
// Implementations must be safe for concurrent use.
type Encoder interface {
	// EncodeText embeds text. Over-long input is truncated, never rejected.
	EncodeText(ctx context.Context, text string) ([]float32, error)

	// EncodeImage embeds an encoded image (jpeg, png, gif or webp bytes).
	EncodeImage(ctx context.Context, image []byte) ([]float32, error)

	// Dimension is the length of every vector this encoder returns.
	Dimension() int
}

// Probe encodes a short string and checks the returned dimension.
func Probe(ctx context.Context, enc Encoder) error {
	vec, err := enc.EncodeText(ctx, "test")
	if err != nil {
		return fmt.Errorf("encoder probe failed: %w", err)
	}
	if len(vec) != enc.Dimension() {
		return fmt.Errorf("encoder probe returned dimension %d, expected %d", len(vec), enc.Dimension())
	}
	return nil
}
