// Package rag retrieves products for a text and/or image query and assembles the user-facing result.
package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_engine.go -package=mocks productsearch/internal/rag Engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"productsearch/internal/catalog"
	"productsearch/internal/contextutil"
	"productsearch/internal/encoder"
	"productsearch/internal/imageproc"
	"productsearch/internal/index"
)

// DefaultTopK is the number of products returned when none is configured.
const DefaultTopK = 5

// DefaultOversample multiplies topK for each index query. Several entries of one product
// (text plus images) may rank together, so raw matches are over-fetched before deduplication.
const DefaultOversample = 3

// Engine answers product search queries.
type Engine interface {
	// Retrieve always returns a usable Result. The error is reserved for programming errors
	// such as a missing collaborator; backend failures become an apologetic answer.
	Retrieve(ctx context.Context, q Query) (Result, error)
}

// Searcher runs a kNN query against one partition of the index. index.Manager implements it.
type Searcher interface {
	Query(ctx context.Context, h index.Handle, vec []float32, topK int, filter index.Filter) ([]index.Match, error)
}

// ProductLookup resolves product ids to catalog rows. Unknown ids are absent from the map.
type ProductLookup interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}

// AnswerGenerator turns retrieved items into the answer text.
type AnswerGenerator interface {
	Generate(ctx context.Context, in AnswerInput) (Answer, error)
}

// Config holds the engine's collaborators and retrieval knobs.
type Config struct {
	Encoder   encoder.Encoder
	Index     Searcher
	Handle    index.Handle
	Products  ProductLookup
	Generator AnswerGenerator

	TopK        int
	Oversample  int
	Policy      string
	TextWeight  float64
	ImageWeight float64
}

type ragEngine struct {
	encoder     encoder.Encoder
	index       Searcher
	handle      index.Handle
	products    ProductLookup
	generator   AnswerGenerator
	topK        int
	oversample  int
	policy      string
	textWeight  float64
	imageWeight float64
}

// NewEngine creates a new retrieval engine. Zero knobs take their defaults:
// topK 5, oversample 3, fusion policy with equal weights.
func NewEngine(cfg Config) Engine {
	e := &ragEngine{
		encoder:     cfg.Encoder,
		index:       cfg.Index,
		handle:      cfg.Handle,
		products:    cfg.Products,
		generator:   cfg.Generator,
		topK:        cfg.TopK,
		oversample:  cfg.Oversample,
		policy:      cfg.Policy,
		textWeight:  cfg.TextWeight,
		imageWeight: cfg.ImageWeight,
	}
	if e.topK <= 0 {
		e.topK = DefaultTopK
	}
	if e.oversample <= 0 {
		e.oversample = DefaultOversample
	}
	if e.policy == "" {
		e.policy = PolicyFusion
	}
	if e.textWeight == 0 && e.imageWeight == 0 {
		e.textWeight, e.imageWeight = 0.5, 0.5
	}
	if e.generator == nil {
		e.generator = TemplateGenerator{}
	}
	return e
}

// candidate is a deduplicated product with its best score per modality.
type candidate struct {
	productID string
	text      float32
	image     float32
	hasText   bool
	hasImage  bool
	score     float32
}

func (e *ragEngine) Retrieve(ctx context.Context, q Query) (Result, error) {
	if e.encoder == nil || e.index == nil || e.products == nil {
		return Result{}, errors.New("rag engine is missing a collaborator")
	}
	logger := contextutil.LoggerFromContext(ctx)

	hasText, hasImage := q.HasText(), q.HasImage()
	res := Result{RetrievedItems: []Item{}, Modality: ModalityNone}

	switch {
	case !hasText && !hasImage:
		res.Answer = AnswerNoInput
		return res, nil
	case hasText && hasImage && e.policy == PolicyImage:
		res.Modality = ModalityImage
		res.TextIgnored = true
	case hasText && hasImage:
		res.Modality = ModalityTextImage
	case hasImage:
		res.Modality = ModalityImage
	default:
		res.Modality = ModalityText
	}

	useText := hasText && !res.TextIgnored
	useImage := hasImage

	logger.InfoContext(ctx, "retrieval started",
		"modality", res.Modality,
		"text_length", len(q.Text),
		"image_bytes", len(q.Image),
		"top_k", e.topK,
	)

	if useImage {
		if _, _, err := imageproc.Check(q.Image); err != nil {
			logger.WarnContext(ctx, "rejected query image", "error", err)
			res.Answer = AnswerInvalidImage
			return res, nil
		}
	}

	var textMatches, imageMatches []index.Match
	if useText {
		matches, err := e.search(ctx, index.TypeText, func(ctx context.Context) ([]float32, error) {
			return e.encoder.EncodeText(ctx, q.Text)
		})
		if err != nil {
			logger.ErrorContext(ctx, "text retrieval failed", "error", err)
			res.Answer = AnswerUnavailable
			return res, nil
		}
		textMatches = matches
	}
	if useImage {
		matches, err := e.search(ctx, index.TypeImage, func(ctx context.Context) ([]float32, error) {
			return e.encoder.EncodeImage(ctx, q.Image)
		})
		if err != nil {
			logger.ErrorContext(ctx, "image retrieval failed", "error", err)
			res.Answer = AnswerUnavailable
			return res, nil
		}
		imageMatches = matches
	}

	logger.DebugContext(ctx, "index queries completed", "text_matches", len(textMatches), "image_matches", len(imageMatches))

	if len(textMatches) == 0 && len(imageMatches) == 0 {
		if useImage && !useText {
			res.Answer = AnswerNoImageIndex
		} else {
			res.Answer = AnswerNoResults
		}
		return res, nil
	}

	candidates := e.rank(textMatches, imageMatches, useText && useImage)

	items, err := e.resolve(ctx, candidates)
	if err != nil {
		logger.ErrorContext(ctx, "product lookup failed", "error", err)
		res.Answer = AnswerUnavailable
		return res, nil
	}
	if len(items) == 0 {
		res.Answer = AnswerNoResults
		return res, nil
	}
	res.RetrievedItems = items

	in := AnswerInput{Question: q.Text, HasImage: hasImage, TextIgnored: res.TextIgnored, Items: items}
	answer, err := e.generator.Generate(ctx, in)
	if err != nil || answer.Text == "" {
		logger.WarnContext(ctx, "answer generation failed, using template answer", "error", err)
		answer = Answer{Text: FallbackAnswer(in)}
	}
	res.Answer = answer.Text
	res.ImageURL = answer.ImageURL
	if res.ImageURL == "" {
		res.ImageURL = items[0].Image
	}

	logger.InfoContext(ctx, "retrieval completed",
		"modality", res.Modality,
		"items", len(items),
		"top_product", items[0].ProductID,
		"top_score", items[0].Score,
	)
	return res, nil
}

// search encodes the query and runs one partitioned, oversampled kNN query.
func (e *ragEngine) search(ctx context.Context, entryType string, encode func(context.Context) ([]float32, error)) ([]index.Match, error) {
	vec, err := encode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s query: %w", entryType, err)
	}
	matches, err := e.index.Query(ctx, e.handle, vec, e.topK*e.oversample, index.Filter{Type: entryType})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s entries: %w", entryType, err)
	}
	return matches, nil
}

// rank deduplicates matches by product, keeping the best score per modality, and orders the
// products by score descending. Ties keep first-seen order, text matches before image matches.
func (e *ragEngine) rank(textMatches, imageMatches []index.Match, fuse bool) []candidate {
	byProduct := make(map[string]*candidate)
	order := make([]*candidate, 0, len(textMatches)+len(imageMatches))

	get := func(pid string) *candidate {
		c, ok := byProduct[pid]
		if !ok {
			c = &candidate{productID: pid}
			byProduct[pid] = c
			order = append(order, c)
		}
		return c
	}

	for _, m := range textMatches {
		c := get(m.ProductID)
		if !c.hasText || m.Score > c.text {
			c.text, c.hasText = m.Score, true
		}
	}
	for _, m := range imageMatches {
		c := get(m.ProductID)
		if !c.hasImage || m.Score > c.image {
			c.image, c.hasImage = m.Score, true
		}
	}

	out := make([]candidate, len(order))
	for i, c := range order {
		switch {
		case fuse:
			c.score = float32(e.textWeight)*c.text + float32(e.imageWeight)*c.image
		case c.hasText:
			c.score = c.text
		default:
			c.score = c.image
		}
		out[i] = *c
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// resolve joins candidates against the product table, drops unknown products, and cuts to topK.
func (e *ragEngine) resolve(ctx context.Context, candidates []candidate) ([]Item, error) {
	logger := contextutil.LoggerFromContext(ctx)

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.productID
	}
	products, err := e.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, min(e.topK, len(candidates)))
	for _, c := range candidates {
		if len(items) == e.topK {
			break
		}
		p, ok := products[c.productID]
		if !ok {
			logger.WarnContext(ctx, "dropping match for unknown product", "product_id", c.productID)
			continue
		}
		items = append(items, Item{
			ProductID:   p.ID,
			Title:       p.Name,
			Description: p.Description(),
			Image:       p.DisplayImageURL(),
			Score:       c.score,
		})
	}
	return items, nil
}
