// Package contextbuilder assembles the memory portion of a model prompt.
//
// The assembled block holds, in order, the long-term memory, today's note
// and the chunks of past notes most similar to the query. Long-term memory
// and today's note are always included in full; when the block exceeds the
// token budget, retrieved chunks are dropped lowest-similarity first.
package contextbuilder

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/mnemo/pkg/llm/tokenizer"
	"github.com/entrhq/mnemo/pkg/logging"
	"github.com/entrhq/mnemo/pkg/memory"
	"github.com/entrhq/mnemo/pkg/memory/index"
)

var builderLog *logging.Logger

func init() {
	var err error
	builderLog, err = logging.NewLogger("contextbuilder")
	if err != nil {
		builderLog.Warnf("Failed to initialize contextbuilder logger, using stderr fallback: %v", err)
	}
}

const (
	// DefaultTopK is the number of past chunks retrieved per query.
	DefaultTopK = 5

	// DefaultBudget is the token budget of the assembled block.
	DefaultBudget = 6000
)

// Section headings of the assembled block.
const (
	LongTermHeading  = "## Long-term Memory"
	TodayHeading     = "## Today's Notes"
	RetrievedHeading = "## Relevant Past Memories"
)

// Searcher is the retrieval side of the semantic index.
type Searcher interface {
	Enabled() bool
	Search(ctx context.Context, query string, k int) []index.Result
}

// Builder assembles memory context. It is safe for concurrent use.
type Builder struct {
	store   memory.Store
	index   Searcher
	counter tokenizer.Counter
	budget  int
	topK    int
}

// Option configures a Builder.
type Option func(*Builder)

// WithIndex sets the semantic index used for retrieval. Without one, the
// retrieval section is never produced.
func WithIndex(s Searcher) Option {
	return func(b *Builder) {
		b.index = s
	}
}

// WithCounter sets the tokenizer used to measure the budget.
func WithCounter(c tokenizer.Counter) Option {
	return func(b *Builder) {
		b.counter = c
	}
}

// WithBudget sets the token budget. Zero or less disables trimming.
func WithBudget(tokens int) Option {
	return func(b *Builder) {
		b.budget = tokens
	}
}

// WithTopK sets how many chunks are retrieved per query.
func WithTopK(k int) Option {
	return func(b *Builder) {
		if k > 0 {
			b.topK = k
		}
	}
}

// New creates a Builder reading from store.
func New(store memory.Store, opts ...Option) *Builder {
	b := &Builder{
		store:  store,
		budget: DefaultBudget,
		topK:   DefaultTopK,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.counter == nil {
		b.counter = tokenizer.Default()
	}
	return b
}

// Context is an assembled memory block.
type Context struct {
	LongTerm string
	Today    string

	// Retrieved holds the chunks kept after trimming, most similar first.
	Retrieved []index.Result

	// Dropped counts retrieved chunks removed to meet the budget.
	Dropped int

	Text   string
	Tokens int
}

// Build assembles the memory block for query. The result depends only on
// the store contents, the index contents and query.
func (b *Builder) Build(ctx context.Context, query string) (*Context, error) {
	longTerm, err := b.store.ReadLongTerm(ctx)
	if err != nil {
		return nil, fmt.Errorf("contextbuilder: %w", err)
	}
	today, err := b.store.ReadToday(ctx)
	if err != nil {
		return nil, fmt.Errorf("contextbuilder: %w", err)
	}

	var retrieved []index.Result
	if b.index != nil && b.index.Enabled() && strings.TrimSpace(query) != "" {
		retrieved = b.index.Search(ctx, query, b.topK)
	}

	c := &Context{LongTerm: longTerm, Today: today}
	for {
		c.Retrieved = retrieved
		c.Text = render(longTerm, today, retrieved)
		c.Tokens = b.counter.CountTokens(c.Text)
		if b.budget <= 0 || c.Tokens <= b.budget || len(retrieved) == 0 {
			break
		}
		retrieved = retrieved[:len(retrieved)-1]
		c.Dropped++
	}

	if c.Dropped > 0 {
		builderLog.Debugf("dropped %d retrieved chunks to fit budget of %d tokens", c.Dropped, b.budget)
	}
	if b.budget > 0 && c.Tokens > b.budget {
		builderLog.Warnf("memory context of %d tokens exceeds budget of %d", c.Tokens, b.budget)
	}
	return c, nil
}

func render(longTerm, today string, retrieved []index.Result) string {
	var sections []string
	if s := strings.TrimSpace(longTerm); s != "" {
		sections = append(sections, LongTermHeading+"\n\n"+s)
	}
	if s := strings.TrimSpace(today); s != "" {
		sections = append(sections, TodayHeading+"\n\n"+s)
	}
	if len(retrieved) > 0 {
		var sb strings.Builder
		sb.WriteString(RetrievedHeading)
		for _, r := range retrieved {
			fmt.Fprintf(&sb, "\n\n### %s\n%s", r.Date, strings.TrimSpace(r.Text))
		}
		sections = append(sections, sb.String())
	}
	return strings.Join(sections, "\n\n")
}
