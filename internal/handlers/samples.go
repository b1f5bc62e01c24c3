package handlers

import "net/http"

// SampleQuestion is a suggested query shown next to the search box.
//
// swagger:model SampleQuestion
type SampleQuestion struct {
	Text string `json:"text"`
	// NeedsImage marks questions meant to be asked together with a photo.
	NeedsImage bool `json:"needs_image"`
}

// DefaultSampleQuestions are served when no custom list is configured.
var DefaultSampleQuestions = []SampleQuestion{
	{Text: "What are the features of the Samsung Galaxy S21?"},
	{Text: "Compare Amazon Echo Dot vs Google Nest Mini"},
	{Text: "What is this product used for?", NeedsImage: true},
	{Text: "Can you show me a picture of the Apple AirPods Pro?"},
	{Text: "What is the name of this product, and how do I use it?", NeedsImage: true},
}

// SamplesHandler serves the sample question list.
type SamplesHandler struct {
	samples []SampleQuestion
}

// NewSamplesHandler creates a new SamplesHandler. A nil list uses DefaultSampleQuestions.
func NewSamplesHandler(samples []SampleQuestion) *SamplesHandler {
	if samples == nil {
		samples = DefaultSampleQuestions
	}
	return &SamplesHandler{samples: samples}
}

// ServeHTTP handles HTTP requests for sample questions.
//
// swagger:route GET /api/samples sampleQuestions
func (h *SamplesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, h.samples)
}
