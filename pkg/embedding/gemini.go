package embedding

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

const (
	// DefaultGeminiModel is used when no model is configured.
	DefaultGeminiModel = "text-embedding-004"

	taskTypeDocument = "RETRIEVAL_DOCUMENT"
	taskTypeQuery    = "RETRIEVAL_QUERY"
)

// Gemini embeds text with the Gemini embedding API. Stored chunks and
// search queries use different task types.
type Gemini struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGemini creates a Gemini embedder. An empty apiKey falls back to
// GEMINI_API_KEY.
func NewGemini(ctx context.Context, apiKey, model string, dimensions int) (*Gemini, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("embedding: Gemini API key is required (provide via config or GEMINI_API_KEY environment variable)")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model, dimensions: dimensions}, nil
}

// Identity implements Identifier.
func (g *Gemini) Identity() string {
	return fmt.Sprintf("%s/%s/%d", ProviderGemini, g.model, g.dimensions)
}

// Embed implements Embedder.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, taskTypeDocument)
}

// EmbedQuery implements QueryEmbedder.
func (g *Gemini) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, taskTypeQuery)
}

func (g *Gemini) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	contents := []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}
	cfg := &genai.EmbedContentConfig{TaskType: taskType}
	if g.dimensions > 0 {
		dim := int32(g.dimensions)
		cfg.OutputDimensionality = &dim
	}

	res, err := g.client.Models.EmbedContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding: gemini request failed: %w", err)
	}
	if len(res.Embeddings) == 0 {
		return nil, fmt.Errorf("embedding: gemini returned no embeddings")
	}

	vec := append([]float32(nil), res.Embeddings[0].Values...)
	Normalize(vec)
	return vec, nil
}
