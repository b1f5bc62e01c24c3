package rag

import (
	"context"
	"fmt"
	"strings"

	"productsearch/internal/contextutil"
	"productsearch/internal/llm"
)

// maxFallbackItems bounds how many products the template answer lists.
const maxFallbackItems = 3

// maxDescriptionRunes bounds each product description in the LLM context.
const maxDescriptionRunes = 600

const systemPrompt = "You are a helpful shopping assistant for an online store. " +
	"Answer the customer's question using only the products listed in the context below. " +
	"When the customer sent a photo, the listed products are the closest visual matches to it; " +
	"identify the most likely product and explain what it is and how it is used. " +
	"If the context does not contain enough information, say so. Keep the answer short and refer to products by name."

// ChatClient sends a conversation to a chat completions model. llm.Client implements it.
type ChatClient interface {
	ChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams) (string, error)
}

// LLMGenerator writes answers with a chat model.
type LLMGenerator struct {
	client      ChatClient
	temperature float32
	maxTokens   int
}

// NewLLMGenerator creates an AnswerGenerator backed by client.
func NewLLMGenerator(client ChatClient) *LLMGenerator {
	return &LLMGenerator{client: client, temperature: 0.3, maxTokens: 512}
}

// Generate implements AnswerGenerator. It never suggests an image; the engine picks the top match.
func (g *LLMGenerator) Generate(ctx context.Context, in AnswerInput) (Answer, error) {
	logger := contextutil.LoggerFromContext(ctx)

	userMessage := buildUserMessage(in)
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userMessage},
	}

	logger.DebugContext(ctx, "sending request to LLM",
		"items", len(in.Items),
		"user_message_length", len(userMessage),
	)

	text, err := g.client.ChatWithMessages(ctx, messages, llm.ChatParams{
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("failed to get LLM response: %w", err)
	}

	logger.DebugContext(ctx, "received LLM response", "answer_length", len(text))
	return Answer{Text: strings.TrimSpace(text)}, nil
}

func buildUserMessage(in AnswerInput) string {
	var b strings.Builder

	question := strings.TrimSpace(in.Question)
	switch {
	case question == "" && in.HasImage:
		b.WriteString("The customer uploaded a product photo without a question. What is this product and what is it used for?")
	case in.HasImage:
		fmt.Fprintf(&b, "The customer uploaded a product photo and asked: %s", question)
	default:
		b.WriteString(question)
	}

	b.WriteString("\n\n--- Products ---\n\n")
	for i, item := range in.Items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item.Title)
		if desc := truncateRunes(item.Description, maxDescriptionRunes); desc != "" {
			fmt.Fprintf(&b, "Details: %s\n", desc)
		}
		b.WriteString("\n")
	}
	b.WriteString("--- End Products ---")
	return b.String()
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// TemplateGenerator answers without a model by listing the top matches.
type TemplateGenerator struct{}

// Generate implements AnswerGenerator.
func (TemplateGenerator) Generate(_ context.Context, in AnswerInput) (Answer, error) {
	return Answer{Text: FallbackAnswer(in)}, nil
}

// FallbackAnswer lists the top matches by name.
func FallbackAnswer(in AnswerInput) string {
	if len(in.Items) == 0 {
		return AnswerNoResults
	}

	var b strings.Builder
	if in.HasImage {
		fmt.Fprintf(&b, "This looks like **%s**.\n\n", in.Items[0].Title)
	}
	b.WriteString(answerFallbackIntro)
	for i, item := range in.Items[:min(maxFallbackItems, len(in.Items))] {
		fmt.Fprintf(&b, "\n%d. %s", i+1, item.Title)
	}
	return b.String()
}
