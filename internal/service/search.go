package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_search_service.go -package=mocks -mock_names=SearchService=MockSearchService productsearch/internal/service SearchService

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"productsearch/internal/contextutil"
	"productsearch/internal/imageproc"
	"productsearch/internal/rag"
)

// MaxTextRunes bounds the question length.
const MaxTextRunes = 2000

// DefaultMaxImageBytes is the upload limit used when none is configured.
const DefaultMaxImageBytes = 10 << 20

// SearchRequest represents a product search in the domain layer.
type SearchRequest struct {
	Text  string
	Image []byte
}

// SearchService provides product search.
type SearchService interface {
	// Search validates the request and runs retrieval under the request timeout.
	Search(ctx context.Context, req SearchRequest) (rag.Result, error)
}

type searchService struct {
	engine        rag.Engine
	maxImageBytes int64
	timeout       time.Duration
}

// NewSearchService creates a new SearchService. A zero timeout disables the request deadline.
func NewSearchService(engine rag.Engine, maxImageBytes int64, timeout time.Duration) SearchService {
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	return &searchService{
		engine:        engine,
		maxImageBytes: maxImageBytes,
		timeout:       timeout,
	}
}

// Search validates req and delegates to the retrieval engine.
func (s *searchService) Search(ctx context.Context, req SearchRequest) (rag.Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if n := utf8.RuneCountInString(req.Text); n > MaxTextRunes {
		logger.WarnContext(ctx, "search text too long", "runes", n)
		return rag.Result{}, &ValidationError{
			Field:   "text",
			Message: fmt.Sprintf("exceeds %d characters", MaxTextRunes),
		}
	}
	if int64(len(req.Image)) > s.maxImageBytes {
		logger.WarnContext(ctx, "search image too large", "bytes", len(req.Image), "limit", s.maxImageBytes)
		return rag.Result{}, fmt.Errorf("%w: image is %d bytes, limit is %d", ErrPayloadTooLarge, len(req.Image), s.maxImageBytes)
	}

	if len(req.Image) > 0 && !imageproc.IsAcceptedUpload(req.Image) {
		logger.WarnContext(ctx, "unsupported upload type", "content_type", imageproc.ContentType(req.Image))
		return rag.Result{
			Answer:         rag.AnswerInvalidImage,
			RetrievedItems: []rag.Item{},
			Modality:       rag.ModalityNone,
		}, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.engine.Retrieve(ctx, rag.Query{Text: req.Text, Image: req.Image})
	if err != nil {
		logger.ErrorContext(ctx, "retrieval failed", "error", err)
		return rag.Result{}, WrapError(err, "failed to retrieve products")
	}

	logger.InfoContext(ctx, "search request processed successfully",
		"modality", result.Modality,
		"items", len(result.RetrievedItems),
	)
	return result, nil
}
