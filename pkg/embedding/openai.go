package embedding

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAI embeds text with the OpenAI embeddings endpoint or a compatible
// server.
type OpenAI struct {
	client     openai.Client
	model      string
	baseURL    string
	dimensions int
}

// OpenAIOption configures an OpenAI embedder.
type OpenAIOption func(*OpenAI)

// WithOpenAIBaseURL points the embedder at an OpenAI-compatible server.
func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(o *OpenAI) {
		o.baseURL = baseURL
	}
}

// WithOpenAIDimensions requests shortened vectors from models that support it.
func WithOpenAIDimensions(dimensions int) OpenAIOption {
	return func(o *OpenAI) {
		o.dimensions = dimensions
	}
}

// NewOpenAI creates an OpenAI embedder. An empty apiKey falls back to
// OPENAI_API_KEY.
func NewOpenAI(apiKey, model string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("embedding: OpenAI API key is required (provide via config or OPENAI_API_KEY environment variable)")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	o := &OpenAI{model: model}
	for _, opt := range opts {
		opt(o)
	}

	// No client retries: the index skips a chunk whose embedding fails.
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}
	o.client = openai.NewClient(reqOpts...)
	return o, nil
}

// Embed implements Embedder.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(o.model),
	}
	if o.dimensions > 0 {
		params.Dimensions = openai.Int(int64(o.dimensions))
	}

	res, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embedding: openai request failed: %w", err)
	}
	if len(res.Data) == 0 {
		return nil, fmt.Errorf("embedding: openai returned no embeddings")
	}

	src := res.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, v := range src {
		vec[i] = float32(v)
	}
	Normalize(vec)
	return vec, nil
}

// Identity implements Identifier.
func (o *OpenAI) Identity() string {
	return fmt.Sprintf("%s/%s/%d", ProviderOpenAI, o.model, o.dimensions)
}

// Model returns the embedding model name.
func (o *OpenAI) Model() string {
	return o.model
}
