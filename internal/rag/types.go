package rag

import "strings"

// Modality values reported in Result.Modality.
const (
	ModalityNone      = "none"
	ModalityText      = "text"
	ModalityImage     = "image"
	ModalityTextImage = "text+image"
)

// Policies for queries that carry both text and an image.
const (
	// PolicyFusion queries both partitions and fuses the per-product scores.
	PolicyFusion = "fusion"
	// PolicyImage retrieves by image only and reports the text as ignored.
	PolicyImage = "image"
)

// User-facing answers for the cases that never reach the answer generator.
const (
	AnswerNoInput       = "Please provide either a text question or an image to get a response."
	AnswerNoResults     = "I couldn't find any products matching your query. Try rephrasing it or adding more details."
	AnswerNoImageIndex  = "There are no product images in the index to compare your photo against. Try asking a text question instead."
	AnswerInvalidImage  = "The uploaded file could not be read as an image. Please upload a JPEG or PNG product photo."
	AnswerUnavailable   = "Sorry, product search is temporarily unavailable. Please try again in a moment."
	answerFallbackIntro = "Here are the closest matches I found:"
)

// Query is a parsed search request. At least one of Text or Image should be set.
type Query struct {
	// Text is the user's question, possibly empty.
	Text string
	// Image is the raw uploaded image, possibly nil.
	Image []byte
}

// HasText reports whether the query carries non-blank text.
func (q Query) HasText() bool {
	return strings.TrimSpace(q.Text) != ""
}

// HasImage reports whether the query carries an image payload.
func (q Query) HasImage() bool {
	return len(q.Image) > 0
}

// Item is one retrieved product.
type Item struct {
	ProductID   string  `json:"product_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	// Image is the product's display image URL, empty when the product has none.
	Image       string  `json:"image"`
	Score       float32 `json:"score"`
}

// Result is what Retrieve returns for every query, including failed ones.
type Result struct {
	Answer         string `json:"answer"`
	// ImageURL is the single image shown as the identified product, empty when there is none.
	ImageURL       string `json:"image_url"`
	RetrievedItems []Item `json:"retrieved_items"`
	Modality       string `json:"modality"`
	// TextIgnored is set when both text and image were given and the text did not take part in retrieval.
	TextIgnored    bool   `json:"text_ignored"`
}

// AnswerInput is the structured context handed to an AnswerGenerator.
type AnswerInput struct {
	Question    string
	HasImage    bool
	TextIgnored bool
	Items       []Item
}

// Answer is what an AnswerGenerator produces. ImageURL is optional.
type Answer struct {
	Text     string
	ImageURL string
}
