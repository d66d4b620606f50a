// Package index is the optional semantic index over daily notes.
//
// Day notes are split into overlapping token-bounded chunks, embedded, and
// stored per date. Search never returns chunks dated today: today's note is
// always part of the prompt in full. When the similarity backend cannot be
// opened the Index is disabled and behaves as an empty index.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/entrhq/mnemo/pkg/embedding"
	"github.com/entrhq/mnemo/pkg/llm/tokenizer"
	"github.com/entrhq/mnemo/pkg/logging"
	"github.com/entrhq/mnemo/pkg/memory"
	"golang.org/x/sync/errgroup"
)

var indexLog *logging.Logger

func init() {
	var err error
	indexLog, err = logging.NewLogger("index")
	if err != nil {
		indexLog.Warnf("Failed to initialize index logger, using stderr fallback: %v", err)
	}
}

const (
	DefaultMaxTokens        = 256
	DefaultOverlap          = 32
	DefaultEmbedConcurrency = 4
)

// Config configures the semantic index.
type Config struct {
	Enabled bool

	// Dir holds the vector and manifest stores. Empty keeps the index in
	// memory.
	Dir string

	MaxTokens int
	Overlap   int

	// EmbedConcurrency bounds parallel embedding calls while indexing a day.
	EmbedConcurrency int
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Overlap < 0 || c.Overlap >= c.MaxTokens {
		c.Overlap = DefaultOverlap
		if c.Overlap >= c.MaxTokens {
			c.Overlap = c.MaxTokens / 8
		}
	}
	if c.EmbedConcurrency <= 0 {
		c.EmbedConcurrency = DefaultEmbedConcurrency
	}
	return c
}

// Index is the semantic index. The zero value is not usable; build one
// with Open, New or Disabled.
type Index struct {
	backend  Backend
	embedder embedding.Embedder
	counter  tokenizer.Counter
	chunker  *Chunker
	notes    memory.Store
	cfg      Config
	reason   error

	mu       sync.Mutex
	dayLocks map[string]*sync.Mutex
}

// Option configures an Index.
type Option func(*Index)

// WithCounter sets the tokenizer used for chunk boundaries.
func WithCounter(c tokenizer.Counter) Option {
	return func(ix *Index) {
		ix.counter = c
	}
}

// Disabled returns an Index whose operations are no-ops.
func Disabled(reason error) *Index {
	if reason == nil {
		reason = ErrUnavailable
	}
	return &Index{reason: reason}
}

// Open detects the similarity backend and returns an enabled Index, or a
// disabled one when the index is switched off, no embedder is configured,
// or the backend cannot be opened.
func Open(ctx context.Context, cfg Config, notes memory.Store, embedder embedding.Embedder, opts ...Option) *Index {
	if !cfg.Enabled {
		indexLog.Infof("semantic index disabled by configuration")
		return Disabled(fmt.Errorf("%w: disabled by configuration", ErrUnavailable))
	}
	if embedder == nil {
		indexLog.Warnf("semantic index disabled: no embedding provider")
		return Disabled(fmt.Errorf("%w: no embedding provider", ErrUnavailable))
	}
	backend, err := OpenStore(cfg.Dir)
	if err != nil {
		indexLog.Warnf("semantic index disabled: %v", err)
		return Disabled(err)
	}
	ix, err := New(backend, notes, embedder, cfg, opts...)
	if err != nil {
		_ = backend.Close()
		indexLog.Warnf("semantic index disabled: %v", err)
		return Disabled(fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	return ix
}

// New builds an enabled Index over backend.
func New(backend Backend, notes memory.Store, embedder embedding.Embedder, cfg Config, opts ...Option) (*Index, error) {
	cfg = cfg.withDefaults()
	ix := &Index{
		backend:  backend,
		embedder: embedder,
		notes:    notes,
		cfg:      cfg,
		dayLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.counter == nil {
		ix.counter = tokenizer.Default()
	}
	chunker, err := NewChunker(ix.counter, cfg.MaxTokens, cfg.Overlap)
	if err != nil {
		return nil, err
	}
	ix.chunker = chunker
	return ix, nil
}

// Enabled reports whether the similarity backend is available.
func (ix *Index) Enabled() bool {
	return ix != nil && ix.backend != nil
}

// Reason returns why the index is disabled, or nil.
func (ix *Index) Reason() error {
	if ix.Enabled() {
		return nil
	}
	if ix == nil {
		return ErrUnavailable
	}
	return ix.reason
}

func (ix *Index) dayLock(date string) *sync.Mutex {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	l, ok := ix.dayLocks[date]
	if !ok {
		l = &sync.Mutex{}
		ix.dayLocks[date] = l
	}
	return l
}

// contentHash covers the text, the chunking parameters and the embedder
// identity, so a config or embedding model change forces a rebuild.
func (ix *Index) contentHash(text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d/%d/%s\n", ix.cfg.MaxTokens, ix.cfg.Overlap, embedding.Identity(ix.embedder))
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// IndexDay replaces the chunk set of date with the chunks of text. Chunks
// whose embedding fails are skipped and logged. Unchanged text that was
// fully indexed before is not reprocessed.
func (ix *Index) IndexDay(ctx context.Context, date, text string) error {
	if !ix.Enabled() {
		return nil
	}
	lock := ix.dayLock(date)
	lock.Lock()
	defer lock.Unlock()

	hash := ix.contentHash(text)
	if prev, ok := ix.backend.Manifest(date); ok && prev.Hash == hash && prev.Skipped == 0 {
		indexLog.Debugf("day %s unchanged, skipping reindex", date)
		return nil
	}

	chunks := ix.chunker.Split(date, text)
	embedded := make([]bool, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.EmbedConcurrency)
	for i := range chunks {
		g.Go(func() error {
			vec, err := ix.embedder.Embed(gctx, chunks[i].Text)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				indexLog.Warnf("%v", &EmbeddingError{Date: date, ChunkID: chunks[i].ID, Err: err})
				return nil
			}
			chunks[i].Embedding = vec
			embedded[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	kept := chunks[:0]
	for i, c := range chunks {
		if embedded[i] {
			kept = append(kept, c)
		}
	}
	skipped := len(chunks) - len(kept)

	if err := ix.backend.ReplaceDay(ctx, date, DayManifest{Hash: hash, Skipped: skipped}, kept); err != nil {
		return err
	}
	indexLog.Infof("indexed %s: %d chunks, %d skipped", date, len(kept), skipped)
	return nil
}

// Search returns the k chunks most similar to query, excluding today's
// date. Backend or embedding faults yield an empty result.
func (ix *Index) Search(ctx context.Context, query string, k int) []Result {
	if !ix.Enabled() || k <= 0 || strings.TrimSpace(query) == "" {
		return nil
	}
	vec, err := embedding.EmbedQuery(ctx, ix.embedder, query)
	if err != nil {
		indexLog.Warnf("query embedding failed, returning no results: %v", err)
		return nil
	}
	results, err := ix.backend.Query(ctx, vec, k, ix.notes.Today())
	if err != nil {
		indexLog.Warnf("similarity query failed, returning no results: %v", err)
		return nil
	}
	return results
}

// Chunks returns the current chunk set of date in position order.
func (ix *Index) Chunks(ctx context.Context, date string) ([]Chunk, error) {
	if !ix.Enabled() {
		return nil, nil
	}
	return ix.backend.Chunks(ctx, date)
}

// Dates returns the indexed dates, ascending.
func (ix *Index) Dates() []string {
	if !ix.Enabled() {
		return nil
	}
	return ix.backend.Dates()
}

// Empty reports whether no day has been indexed yet.
func (ix *Index) Empty() bool {
	return len(ix.Dates()) == 0
}

// ReindexDate reads date from the memory store and indexes it.
func (ix *Index) ReindexDate(ctx context.Context, date string) error {
	if !ix.Enabled() {
		return nil
	}
	text, err := ix.notes.ReadDay(ctx, date)
	if err != nil {
		return err
	}
	return ix.IndexDay(ctx, date, text)
}

// ReindexAll indexes every day note in the store. It stops at the first
// storage or backend error; per-chunk embedding failures do not stop it.
func (ix *Index) ReindexAll(ctx context.Context) (int, error) {
	if !ix.Enabled() {
		return 0, nil
	}
	days, err := ix.notes.ListDays(ctx, "", "")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, date := range days {
		if err := ix.ReindexDate(ctx, date); err != nil {
			return n, fmt.Errorf("index: reindex %s: %w", date, err)
		}
		n++
	}
	indexLog.Infof("reindexed %d days", n)
	return n, nil
}

// Bootstrap indexes all notes when the index is empty, so a fresh or
// rebuilt index can serve past days.
func (ix *Index) Bootstrap(ctx context.Context) error {
	if !ix.Enabled() || !ix.Empty() {
		return nil
	}
	_, err := ix.ReindexAll(ctx)
	return err
}

// Close releases the backend.
func (ix *Index) Close() error {
	if !ix.Enabled() {
		return nil
	}
	return ix.backend.Close()
}
