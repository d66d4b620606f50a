package index

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/entrhq/mnemo/pkg/llm/tokenizer"
)

// Chunk is an indexed span of a day note.
type Chunk struct {
	// ID is "<date>@<start>", stable across reindexing of unchanged text.
	ID string `json:"id"`

	Date  string `json:"date"`
	Index int    `json:"index"`

	// Start and End are byte offsets into the day note, End exclusive.
	Start int `json:"start"`
	End   int `json:"end"`

	Text      string    `json:"-"`
	Embedding []float32 `json:"-"`
}

// ChunkID returns the identifier of the chunk of date starting at start.
func ChunkID(date string, start int) string {
	return fmt.Sprintf("%s@%d", date, start)
}

type span struct {
	start, end int
}

// Chunker splits text into token-bounded spans that overlap by a fixed
// number of tokens.
type Chunker struct {
	counter   tokenizer.Counter
	maxTokens int
	overlap   int
}

// NewChunker returns a Chunker. overlap must be smaller than maxTokens.
func NewChunker(counter tokenizer.Counter, maxTokens, overlap int) (*Chunker, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("index: max tokens must be positive, got %d", maxTokens)
	}
	if overlap < 0 || overlap >= maxTokens {
		return nil, fmt.Errorf("index: overlap must be in [0, %d), got %d", maxTokens, overlap)
	}
	return &Chunker{counter: counter, maxTokens: maxTokens, overlap: overlap}, nil
}

// Split returns the chunks of text for date without embeddings.
// Whitespace-only spans are dropped; indexes stay positional.
func (c *Chunker) Split(date, text string) []Chunk {
	var chunks []Chunk
	for i, s := range c.spans(text) {
		body := text[s.start:s.end]
		if strings.TrimSpace(body) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:    ChunkID(date, s.start),
			Date:  date,
			Index: i,
			Start: s.start,
			End:   s.end,
			Text:  body,
		})
	}
	return chunks
}

func (c *Chunker) spans(text string) []span {
	offsets := c.counter.Offsets(text)
	n := len(offsets)
	if n == 0 {
		return nil
	}
	step := c.maxTokens - c.overlap

	var spans []span
	for first := 0; first < n; first += step {
		last := first + c.maxTokens
		if last > n {
			last = n
		}
		start := 0
		if first > 0 {
			start = snapBack(text, offsets[first-1])
		}
		end := snapBack(text, offsets[last-1])
		if last == n {
			end = len(text)
		}
		if end > start {
			spans = append(spans, span{start: start, end: end})
		}
		if last == n {
			break
		}
	}
	return spans
}

// snapBack moves a byte offset back to the nearest rune boundary.
func snapBack(text string, off int) int {
	for off > 0 && off < len(text) && !utf8.RuneStart(text[off]) {
		off--
	}
	return off
}
