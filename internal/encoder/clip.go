package encoder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"productsearch/internal/contextutil"
	"productsearch/internal/imageproc"
)

const (
	// DefaultMaxTokens is CLIP's text context length.
	DefaultMaxTokens = 77
	// DefaultImageSize is CLIP ViT-B/32's input resolution.
	DefaultImageSize = 224
	// RunesPerToken approximates token count from rune count.
	RunesPerToken = 4
)

// ClipEncoder is a client for an OpenAI-compatible CLIP embeddings server.
type ClipEncoder struct {
	BaseURL      string
	APIKey       string
	Model        string
	ExpectedSize int // Expected vector size for validation
	MaxTokens    int
	ImageSize    int

	client *http.Client
	sem    chan struct{}
}

// Options tunes a ClipEncoder. Zero values select the defaults.
type Options struct {
	MaxConcurrency int
	MaxTokens      int
	ImageSize      int
	Timeout        time.Duration
}

// NewClipEncoder creates a new CLIP encoder client.
// expectedSize is the index dimension; every returned vector is validated against it.
func NewClipEncoder(baseURL, apiKey, model string, expectedSize int, opts Options) *ClipEncoder {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.ImageSize <= 0 {
		opts.ImageSize = DefaultImageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &ClipEncoder{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       apiKey,
		Model:        model,
		ExpectedSize: expectedSize,
		MaxTokens:    opts.MaxTokens,
		ImageSize:    opts.ImageSize,
		client:       &http.Client{Timeout: opts.Timeout},
		sem:          make(chan struct{}, opts.MaxConcurrency),
	}
}

// TextRequest represents the request payload for text embeddings.
type TextRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ImageRequest represents the request payload for image embeddings.
// Images are base64-encoded PNGs already resized to the model input size.
type ImageRequest struct {
	Model  string   `json:"model"`
	Images []string `json:"images"`
}

// EmbeddingData represents a single embedding in the response.
type EmbeddingData struct {
	Embedding []float64 `json:"embedding"`
}

// EmbeddingsResponse represents the response from the embeddings API.
type EmbeddingsResponse struct {
	Data []EmbeddingData `json:"data"`
}

// Dimension returns the configured embedding size.
func (c *ClipEncoder) Dimension() int {
	return c.ExpectedSize
}

// EncodeText embeds text after truncating it to the model's context.
func (c *ClipEncoder) EncodeText(ctx context.Context, text string) ([]float32, error) {
	truncated := Truncate(text, c.MaxTokens)
	if truncated != text {
		contextutil.LoggerFromContext(ctx).DebugContext(ctx, "truncated text for encoder",
			"original_runes", utf8.RuneCountInString(text), "max_tokens", c.MaxTokens)
	}

	return c.embed(ctx, "/v1/embeddings", TextRequest{Model: c.Model, Input: []string{truncated}})
}

// EncodeImage normalizes the image to RGB at the model input size and embeds it.
func (c *ClipEncoder) EncodeImage(ctx context.Context, image []byte) ([]float32, error) {
	normalized, err := imageproc.Prepare(image, c.ImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	payload := ImageRequest{
		Model:  c.Model,
		Images: []string{base64.StdEncoding.EncodeToString(normalized)},
	}
	return c.embed(ctx, "/v1/embeddings/image", payload)
}

func (c *ClipEncoder) embed(ctx context.Context, path string, payload any) ([]float32, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.sem }()

	url := c.BaseURL + path

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var embeddingsResp EmbeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingsResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(embeddingsResp.Data) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(embeddingsResp.Data))
	}

	data := embeddingsResp.Data[0].Embedding
	if len(data) != c.ExpectedSize {
		return nil, fmt.Errorf("embedding has size %d, expected %d", len(data), c.ExpectedSize)
	}

	vec := make([]float32, len(data))
	for i, v := range data {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Truncate cuts text to roughly maxTokens tokens at a rune boundary.
func Truncate(text string, maxTokens int) string {
	maxRunes := maxTokens * RunesPerToken
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes])
}
