package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimensions matches the size of small sentence-transformer models.
const DefaultHashDimensions = 384

// Hash is an offline Embedder. Each lower-cased word is hashed into a
// pseudo-random direction and the directions are summed, so texts that
// share words have a positive cosine similarity.
type Hash struct {
	dimensions int
}

// NewHash creates a Hash embedder. Non-positive dimensions select
// DefaultHashDimensions.
func NewHash(dimensions int) *Hash {
	if dimensions <= 0 {
		dimensions = DefaultHashDimensions
	}
	return &Hash{dimensions: dimensions}
}

// Embed implements Embedder.
func (h *Hash) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, h.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		words = []string{text}
	}
	for _, w := range words {
		addDirection(vec, w)
	}
	Normalize(vec)
	return vec, nil
}

// Dimensions returns the vector size.
func (h *Hash) Dimensions() int {
	return h.dimensions
}

// Identity implements Identifier.
func (h *Hash) Identity() string {
	return fmt.Sprintf("%s/%d", ProviderHash, h.dimensions)
}

func addDirection(vec []float32, word string) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(word))
	seed := f.Sum64()
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] += float32(int64(seed)) / float32(math.MaxInt64)
	}
}
