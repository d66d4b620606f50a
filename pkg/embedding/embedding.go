// Package embedding turns text into vectors for the semantic index.
//
// Every Embedder returns L2-normalized vectors so cosine similarity reduces
// to a dot product.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/entrhq/mnemo/pkg/logging"
)

var embedLog *logging.Logger

func init() {
	var err error
	embedLog, err = logging.NewLogger("embedding")
	if err != nil {
		embedLog.Warnf("Failed to initialize embedding logger, using stderr fallback: %v", err)
	}
}

// Embedder computes the embedding of a stored text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// QueryEmbedder is implemented by embedders whose backend distinguishes
// search queries from stored documents.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Identifier is implemented by embedders that can name the vector space
// they produce. Vectors from embedders with different identities are not
// comparable.
type Identifier interface {
	Identity() string
}

// Identity names the vector space of e: provider, model and dimensions
// where known, else the embedder's type.
func Identity(e Embedder) string {
	if e == nil {
		return ""
	}
	if id, ok := e.(Identifier); ok {
		return id.Identity()
	}
	return fmt.Sprintf("%T", e)
}

// EmbedQuery embeds a search query, preferring the query mode of e.
func EmbedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	if q, ok := e.(QueryEmbedder); ok {
		return q.EmbedQuery(ctx, text)
	}
	return e.Embed(ctx, text)
}

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderHash   = "hash"
)

// Config selects and configures an embedding backend.
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int

	// CacheSize is the maximum number of cached vectors. Zero disables
	// the cache.
	CacheSize int
}

// New builds the configured Embedder, wrapped in a cache when
// cfg.CacheSize is positive.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		e, err = NewOpenAI(cfg.APIKey, cfg.Model, WithOpenAIBaseURL(cfg.BaseURL), WithOpenAIDimensions(cfg.Dimensions))
	case ProviderGemini:
		e, err = NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.Dimensions)
	case ProviderHash, "":
		e = NewHash(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		return NewCached(e, cfg.CacheSize)
	}
	return e, nil
}

// Normalize scales v to unit length in place. Zero vectors are left as is.
func Normalize(v []float32) {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sum)
	if magnitude <= 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / magnitude)
	}
}

// Cosine returns the cosine similarity of a and b. Vectors of different
// length compare as 0.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
