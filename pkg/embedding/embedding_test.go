package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	Normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{name: "identical", a: []float32{1, 2}, b: []float32{1, 2}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-2, 0}, want: -1},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 0}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-6)
		})
	}
}

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	h := NewHash(512)
	assert.Equal(t, 512, h.Dimensions())

	a1, err := h.Embed(ctx, "Quarterly review with Bob")
	require.NoError(t, err)
	a2, err := h.Embed(ctx, "quarterly REVIEW, with bob!")
	require.NoError(t, err)
	assert.Equal(t, a1, a2, "embedding ignores case and punctuation")
	assert.InDelta(t, 1.0, norm(a1), 1e-5)

	related, err := h.Embed(ctx, "Bob scheduled the Q3 review")
	require.NoError(t, err)
	unrelated, err := h.Embed(ctx, "grocery list: apples, pears")
	require.NoError(t, err)
	assert.Greater(t, Cosine(a1, related), Cosine(a1, unrelated))

	assert.Equal(t, DefaultHashDimensions, NewHash(0).Dimensions())
}

func TestHashEmbedderHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHash(8).Embed(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

type countingEmbedder struct {
	calls atomic.Int32
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}
	c, err := NewCached(inner, 100)
	require.NoError(t, err)
	defer c.Close()

	v1, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	c.Wait()

	v2, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), inner.calls.Load())

	// Queries are cached separately from documents.
	_, err = c.EmbedQuery(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())

	// Callers may mutate the returned slice without corrupting the cache.
	v2[0] = 99
	v3, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, float32(5), v3[0])
}

func TestCachedEmbedderDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{err: errors.New("rate limited")}
	c, err := NewCached(inner, 10)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Embed(ctx, "a")
	require.Error(t, err)
	c.Wait()
	_, err = c.Embed(ctx, "a")
	require.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestOpenAIEmbedder(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"data": [{"object": "embedding", "index": 0, "embedding": [3, 4]}],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer server.Close()

	e, err := NewOpenAI("test-key", "", WithOpenAIBaseURL(server.URL+"/v1"), WithOpenAIDimensions(2))
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, e.Model())

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, vec, 2)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)

	assert.Equal(t, "hello", gotBody["input"])
	assert.Equal(t, DefaultOpenAIModel, gotBody["model"])
	assert.EqualValues(t, 2, gotBody["dimensions"])
}

func TestOpenAIEmbedderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
	}))
	defer server.Close()

	e, err := NewOpenAI("test-key", "m", WithOpenAIBaseURL(server.URL+"/v1"))
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding: openai request failed")
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "hash", cfg: Config{Provider: ProviderHash, Dimensions: 16}},
		{name: "default is hash", cfg: Config{}},
		{name: "cached hash", cfg: Config{Provider: ProviderHash, CacheSize: 10}},
		{name: "openai without key", cfg: Config{Provider: ProviderOpenAI}, wantErr: "API key is required"},
		{name: "gemini without key", cfg: Config{Provider: ProviderGemini}, wantErr: "API key is required"},
		{name: "unknown", cfg: Config{Provider: "word2vec"}, wantErr: "unknown provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(ctx, tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			vec, err := e.Embed(ctx, "hello world")
			require.NoError(t, err)
			assert.InDelta(t, 1.0, norm(vec), 1e-5)
		})
	}
}

func TestIdentity(t *testing.T) {
	cached, err := NewCached(NewHash(64), 10)
	require.NoError(t, err)
	defer cached.Close()
	oa, err := NewOpenAI("test-key", "text-embedding-3-small", WithOpenAIDimensions(256))
	require.NoError(t, err)

	tests := []struct {
		name string
		e    Embedder
		want string
	}{
		{"hash", NewHash(64), "hash/64"},
		{"hash default", NewHash(0), "hash/384"},
		{"cached keeps inner identity", cached, "hash/64"},
		{"openai", oa, "openai/text-embedding-3-small/256"},
		{"unknown type", &countingEmbedder{}, "*embedding.countingEmbedder"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Identity(tt.e))
		})
	}
	assert.NotEqual(t, Identity(NewHash(384)), Identity(NewHash(1024)))
}
