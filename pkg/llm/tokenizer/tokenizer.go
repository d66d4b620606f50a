// Package tokenizer counts and locates model tokens in text.
package tokenizer

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/entrhq/mnemo/pkg/types"
	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used for counting and chunking.
const DefaultEncoding = "cl100k_base"

// Per-message overhead of the chat format, in tokens.
const messageOverhead = 4

// Counter counts tokens and reports where each token ends in the input.
type Counter interface {
	CountTokens(text string) int

	// Offsets returns, for every token of text, the byte offset just past
	// its last byte. The last value equals len(text).
	Offsets(text string) []int
}

// Tokenizer is a Counter backed by a tiktoken BPE encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New loads the default encoding. The first call may download the BPE
// ranks unless an offline loader has been configured.
func New() (*Tokenizer, error) {
	return NewWithEncoding(DefaultEncoding)
}

// NewWithEncoding loads the named tiktoken encoding.
func NewWithEncoding(encoding string) (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load encoding %s: %w", encoding, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Offsets implements Counter. Token byte lengths are summed, so a token
// that splits a multi-byte rune still lands on the correct byte.
func (t *Tokenizer) Offsets(text string) []int {
	if text == "" {
		return nil
	}
	toks := t.enc.Encode(text, nil, nil)
	offsets := make([]int, len(toks))
	pos := 0
	for i, tok := range toks {
		pos += len(t.enc.Decode([]int{tok}))
		if pos > len(text) {
			pos = len(text)
		}
		offsets[i] = pos
	}
	if n := len(offsets); n > 0 {
		offsets[n-1] = len(text)
	}
	return offsets
}

// Heuristic is a dependency-free Counter that treats every run of letters
// or digits, and every other non-space rune, as one token. It is used when
// the BPE ranks cannot be loaded.
type Heuristic struct{}

// CountTokens implements Counter.
func (Heuristic) CountTokens(text string) int {
	return len(Heuristic{}.Offsets(text))
}

// Offsets implements Counter. Whitespace is attached to the preceding token.
func (Heuristic) Offsets(text string) []int {
	var offsets []int
	inWord := false
	for i, r := range text {
		switch {
		case unicode.IsSpace(r):
			inWord = false
			if n := len(offsets); n > 0 {
				offsets[n-1] = i + utf8.RuneLen(r)
			}
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if inWord {
				offsets[len(offsets)-1] = i + utf8.RuneLen(r)
				continue
			}
			inWord = true
		default:
			inWord = false
		}
		offsets = append(offsets, i+utf8.RuneLen(r))
	}
	if n := len(offsets); n > 0 {
		offsets[n-1] = len(text)
	}
	return offsets
}

// CountMessages returns the approximate prompt size of messages: their
// content and tool calls plus the per-message overhead of the chat format.
func CountMessages(c Counter, messages []*types.Message) int {
	total := 0
	for _, m := range messages {
		if m == nil {
			continue
		}
		total += messageOverhead + c.CountTokens(m.Content)
		for _, call := range m.ToolCalls {
			total += c.CountTokens(call.Name) + c.CountTokens(string(call.Arguments))
		}
	}
	return total
}

// Default returns the BPE tokenizer, or Heuristic when it cannot be loaded.
func Default() Counter {
	tok, err := New()
	if err != nil {
		return Heuristic{}
	}
	return tok
}
