package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/philippgille/chromem-go"
)

const (
	manifestPrefix   = "day/"
	collectionPrefix = "day-"
)

// DayManifest describes the committed chunk set of one date.
type DayManifest struct {
	Generation int    `json:"generation"`
	Hash       string `json:"hash"`

	// Skipped counts chunks left out because their embedding failed.
	Skipped int     `json:"skipped"`
	Chunks  []Chunk `json:"chunks"`
}

// Result is a chunk matched by a query.
type Result struct {
	Chunk
	Similarity float32
}

// Backend is the similarity-search capability behind an Index.
type Backend interface {
	// ReplaceDay makes chunks the complete set for date. Concurrent
	// readers observe the previous set or the new one, never a mix.
	ReplaceDay(ctx context.Context, date string, manifest DayManifest, chunks []Chunk) error

	// Query returns up to k best matches over every date except exclude.
	Query(ctx context.Context, vec []float32, k int, exclude string) ([]Result, error)

	Manifest(date string) (DayManifest, bool)
	Chunks(ctx context.Context, date string) ([]Chunk, error)

	// Dates returns the indexed dates, ascending.
	Dates() []string

	Close() error
}

var errNoEmbedding = errors.New("index: chunks must be embedded before insertion")

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

type dayEntry struct {
	manifest DayManifest
	coll     *chromem.Collection
	byID     map[string]Chunk
}

type snapshot struct {
	days map[string]*dayEntry
}

// Store is a Backend keeping vectors in chromem-go, one collection per
// date and generation, with a badger manifest recording which generation
// of each date is live.
type Store struct {
	vectors  *chromem.DB
	manifest *badger.DB

	writeMu sync.Mutex
	snap    atomic.Pointer[snapshot]
}

// OpenStore opens the vector and manifest stores under dir. An empty dir
// keeps everything in memory.
func OpenStore(dir string) (*Store, error) {
	var (
		vectors *chromem.DB
		opts    badger.Options
		err     error
	)
	if dir == "" {
		vectors = chromem.NewDB()
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		vectors, err = chromem.NewPersistentDB(filepath.Join(dir, "vectors"), true)
		if err != nil {
			return nil, fmt.Errorf("%w: open vector store: %v", ErrUnavailable, err)
		}
		opts = badger.DefaultOptions(filepath.Join(dir, "manifest"))
	}

	db, err := badger.Open(opts.WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("%w: open manifest: %v", ErrUnavailable, err)
	}

	s := &Store{vectors: vectors, manifest: db}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func collectionName(date string, generation int) string {
	return fmt.Sprintf("%s%s-g%d", collectionPrefix, date, generation)
}

func manifestKey(date string) []byte {
	return []byte(manifestPrefix + date)
}

// load rebuilds the snapshot from the manifest and drops collections that
// no manifest entry references, such as leftovers of an interrupted write.
func (s *Store) load() error {
	days := make(map[string]*dayEntry)
	err := s.manifest.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(manifestPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			date := strings.TrimPrefix(string(item.Key()), manifestPrefix)
			var m DayManifest
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				indexLog.Warnf("dropping unreadable manifest for %s: %v", date, err)
				continue
			}
			coll := s.vectors.GetCollection(collectionName(date, m.Generation), noEmbedding)
			if coll == nil && len(m.Chunks) > 0 {
				indexLog.Warnf("collection for %s generation %d missing, day will be reindexed", date, m.Generation)
				continue
			}
			days[date] = newDayEntry(m, coll)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: read manifest: %v", ErrUnavailable, err)
	}

	live := make(map[string]bool, len(days))
	for date, e := range days {
		live[collectionName(date, e.manifest.Generation)] = true
	}
	for name := range s.vectors.ListCollections() {
		if strings.HasPrefix(name, collectionPrefix) && !live[name] {
			if err := s.vectors.DeleteCollection(name); err != nil {
				indexLog.Warnf("failed to delete orphan collection %s: %v", name, err)
			}
		}
	}

	s.snap.Store(&snapshot{days: days})
	indexLog.Infof("index store loaded with %d indexed days", len(days))
	return nil
}

func newDayEntry(m DayManifest, coll *chromem.Collection) *dayEntry {
	byID := make(map[string]Chunk, len(m.Chunks))
	for _, c := range m.Chunks {
		byID[c.ID] = c
	}
	return &dayEntry{manifest: m, coll: coll, byID: byID}
}

// ReplaceDay implements Backend. The new generation is written to its own
// collection, the manifest commit makes it durable, and the snapshot swap
// makes it visible.
func (s *Store) ReplaceDay(ctx context.Context, date string, m DayManifest, chunks []Chunk) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := s.snap.Load()
	old, hadOld := prev.days[date]
	m.Generation = 1
	if hadOld {
		m.Generation = old.manifest.Generation + 1
	}
	m.Chunks = make([]Chunk, len(chunks))
	for i, c := range chunks {
		m.Chunks[i] = Chunk{ID: c.ID, Date: c.Date, Index: c.Index, Start: c.Start, End: c.End}
	}

	name := collectionName(date, m.Generation)
	var coll *chromem.Collection
	if len(chunks) > 0 {
		if s.vectors.GetCollection(name, noEmbedding) != nil {
			if err := s.vectors.DeleteCollection(name); err != nil {
				return fmt.Errorf("index: clear stale collection %s: %w", name, err)
			}
		}
		var err error
		coll, err = s.vectors.CreateCollection(name, map[string]string{"date": date}, noEmbedding)
		if err != nil {
			return fmt.Errorf("index: create collection %s: %w", name, err)
		}
		docs := make([]chromem.Document, len(chunks))
		for i, c := range chunks {
			docs[i] = chromem.Document{
				ID:        c.ID,
				Content:   c.Text,
				Embedding: c.Embedding,
				Metadata: map[string]string{
					"date":  c.Date,
					"index": fmt.Sprint(c.Index),
					"start": fmt.Sprint(c.Start),
					"end":   fmt.Sprint(c.End),
				},
			}
		}
		if err := coll.AddDocuments(ctx, docs, 1); err != nil {
			s.dropCollection(name)
			return fmt.Errorf("index: add chunks for %s: %w", date, err)
		}
	}

	data, err := json.Marshal(m)
	if err != nil {
		s.dropCollection(name)
		return fmt.Errorf("index: encode manifest: %w", err)
	}
	if err := s.manifest.Update(func(txn *badger.Txn) error {
		return txn.Set(manifestKey(date), data)
	}); err != nil {
		s.dropCollection(name)
		return fmt.Errorf("index: commit manifest for %s: %w", date, err)
	}

	next := make(map[string]*dayEntry, len(prev.days)+1)
	for d, e := range prev.days {
		next[d] = e
	}
	next[date] = newDayEntry(m, coll)
	s.snap.Store(&snapshot{days: next})

	if hadOld && old.coll != nil {
		s.dropCollection(collectionName(date, old.manifest.Generation))
	}
	return nil
}

func (s *Store) dropCollection(name string) {
	if s.vectors.GetCollection(name, noEmbedding) == nil {
		return
	}
	if err := s.vectors.DeleteCollection(name); err != nil {
		indexLog.Warnf("failed to delete collection %s: %v", name, err)
	}
}

// Query implements Backend.
func (s *Store) Query(ctx context.Context, vec []float32, k int, exclude string) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	snap := s.snap.Load()

	var results []Result
	for date, e := range snap.days {
		if date == exclude || e.coll == nil {
			continue
		}
		n := e.coll.Count()
		if n == 0 {
			continue
		}
		if n > k {
			n = k
		}
		matches, err := e.coll.QueryEmbedding(ctx, vec, n, nil, nil)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			// Typically vectors of another embedding model; the day
			// stays unsearchable until it is reindexed.
			indexLog.Warnf("skipping %s in query: %v", date, err)
			continue
		}
		for _, r := range matches {
			c, ok := e.byID[r.ID]
			if !ok {
				continue
			}
			c.Text = r.Content
			results = append(results, Result{Chunk: c, Similarity: r.Similarity})
		}
	}

	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// sortResults orders by similarity, then newer date, then chunk position.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		return a.Index < b.Index
	})
}

// Manifest implements Backend.
func (s *Store) Manifest(date string) (DayManifest, bool) {
	e, ok := s.snap.Load().days[date]
	if !ok {
		return DayManifest{}, false
	}
	return e.manifest, true
}

// Chunks implements Backend. Chunks are returned in position order with
// their text and embedding.
func (s *Store) Chunks(ctx context.Context, date string) ([]Chunk, error) {
	e, ok := s.snap.Load().days[date]
	if !ok || e.coll == nil {
		return nil, nil
	}
	chunks := make([]Chunk, 0, len(e.manifest.Chunks))
	for _, c := range e.manifest.Chunks {
		doc, err := e.coll.GetByID(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("index: read chunk %s: %w", c.ID, err)
		}
		c.Text = doc.Content
		c.Embedding = doc.Embedding
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// Dates implements Backend.
func (s *Store) Dates() []string {
	days := s.snap.Load().days
	dates := make([]string, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// Close implements Backend.
func (s *Store) Close() error {
	return s.manifest.Close()
}
