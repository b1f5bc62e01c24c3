package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"productsearch/internal/contextutil"
	"productsearch/internal/rag"
	"productsearch/internal/service"
)

// errImageEncoding marks an image_base64 field that is not valid base64.
var errImageEncoding = errors.New("invalid image_base64")

// formOverhead is the allowance on top of the image limit for multipart framing and the text field.
const formOverhead = 1 << 20

// SearchHandler handles HTTP requests for product search.
type SearchHandler struct {
	searchService service.SearchService
	maxImageBytes int64
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(searchService service.SearchService, maxImageBytes int64) *SearchHandler {
	if maxImageBytes <= 0 {
		maxImageBytes = service.DefaultMaxImageBytes
	}
	return &SearchHandler{
		searchService: searchService,
		maxImageBytes: maxImageBytes,
	}
}

// SearchRequest is the JSON form of a search request.
//
// swagger:model SearchRequest
type SearchRequest struct {
	// Question about a product
	Text string `json:"text"`
	// Base64-encoded JPEG or PNG product photo
	ImageBase64 string `json:"image_base64,omitempty"`
}

// ItemResponse is one retrieved product.
//
// swagger:model ItemResponse
type ItemResponse struct {
	ProductID   string  `json:"product_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
	Score       float32 `json:"score"`
}

// SearchResponse represents the HTTP response payload for product search.
//
// swagger:model SearchResponse
type SearchResponse struct {
	// Answer to show the user
	Answer string `json:"answer"`

	// Image of the identified product, empty when there is none
	ImageURL string `json:"image_url"`

	// Related products, best match first
	RetrievedItems []ItemResponse `json:"retrieved_items"`

	// Which query inputs took part in retrieval: none, text, image or text+image
	Modality string `json:"modality"`

	// Set when text and image were both given and only the image was used
	TextIgnored bool `json:"text_ignored"`
}

// ServeHTTP handles HTTP requests for product search.
//
// swagger:route POST /api/search searchProducts
//
// # Search products by question and/or photo
//
// Accepts multipart/form-data with a `text` field and an `image` file, or a JSON body
// with `text` and `image_base64`.
//
// responses:
//
//	'200':
//	  description: Search result, possibly with an explanatory answer and no items
//	  schema:
//	    "$ref": "#/definitions/SearchResponse"
//	'400':
//	  description: Body is not valid JSON or multipart
//	'413':
//	  description: Image exceeds the upload limit
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.bodyLimit())

	req, err := h.parseRequest(r)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			logger.WarnContext(ctx, "request body too large", "limit", maxBytesErr.Limit)
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		if errors.Is(err, errImageEncoding) {
			logger.WarnContext(ctx, "rejected query image", "error", err)
			writeJSON(ctx, w, http.StatusOK, toSearchResponse(rag.Result{Answer: rag.AnswerInvalidImage, Modality: rag.ModalityNone}))
			return
		}
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.searchService.Search(ctx, req)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to process search request")
		return
	}

	writeJSON(ctx, w, http.StatusOK, toSearchResponse(result))
}

// bodyLimit bounds the raw body. Base64 inflates the image by 4/3.
func (h *SearchHandler) bodyLimit() int64 {
	return h.maxImageBytes/3*4 + formOverhead
}

func (h *SearchHandler) parseRequest(r *http.Request) (service.SearchRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return h.parseMultipart(r)
	}

	var body SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return service.SearchRequest{}, err
	}

	req := service.SearchRequest{Text: body.Text}
	if body.ImageBase64 != "" {
		data, err := decodeBase64Image(body.ImageBase64)
		if err != nil {
			return service.SearchRequest{}, fmt.Errorf("%w: %v", errImageEncoding, err)
		}
		req.Image = data
	}
	return req, nil
}

func (h *SearchHandler) parseMultipart(r *http.Request) (service.SearchRequest, error) {
	if err := r.ParseMultipartForm(h.maxImageBytes + formOverhead); err != nil {
		return service.SearchRequest{}, err
	}
	req := service.SearchRequest{Text: r.FormValue("text")}

	file, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return service.SearchRequest{}, err
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		return service.SearchRequest{}, err
	}
	req.Image = data
	return req, nil
}

// decodeBase64Image accepts plain base64 and data URLs.
func decodeBase64Image(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

func toSearchResponse(result rag.Result) SearchResponse {
	items := make([]ItemResponse, len(result.RetrievedItems))
	for i, item := range result.RetrievedItems {
		items[i] = ItemResponse{
			ProductID:   item.ProductID,
			Title:       item.Title,
			Description: item.Description,
			Image:       item.Image,
			Score:       item.Score,
		}
	}
	modality := result.Modality
	if modality == "" {
		modality = rag.ModalityNone
	}
	return SearchResponse{
		Answer:         result.Answer,
		ImageURL:       result.ImageURL,
		RetrievedItems: items,
		Modality:       modality,
		TextIgnored:    result.TextIgnored,
	}
}
