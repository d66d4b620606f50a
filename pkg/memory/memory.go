// Package memory provides the durable two-tier memory of the agent: one
// append-only note per calendar day and a single long-term fact sheet.
//
// Layout on disk:
//
//	<dir>/2026-10-19.md   daily note, append-only, starts with "# 2026-10-19"
//	<dir>/MEMORY.md       long-term memory, replaced atomically
package memory

import "context"

// DateFormat is the layout of day keys and day file names.
const DateFormat = "2006-01-02"

// LongTermFile is the file name of the long-term fact sheet.
const LongTermFile = "MEMORY.md"

// Store is the read/write interface of the memory store.
type Store interface {
	// Today returns today's date key in the store's location.
	Today() string

	// AppendToday adds a timestamped entry to today's note, creating the
	// note if it does not exist yet.
	AppendToday(ctx context.Context, text string) error

	ReadToday(ctx context.Context) (string, error)
	ReadDay(ctx context.Context, date string) (string, error)

	ReadLongTerm(ctx context.Context) (string, error)

	// UpdateLongTerm replaces the long-term fact sheet. Readers observe
	// either the previous or the new content, never a mix.
	UpdateLongTerm(ctx context.Context, text string) error

	// ListDays returns the dates in [from, to] that have a non-empty note,
	// ascending. Empty bounds leave that side of the range open.
	ListDays(ctx context.Context, from, to string) ([]string, error)

	// RecentDays returns the notes of the last n calendar days, newest
	// first, separated by "---".
	RecentDays(ctx context.Context, n int) (string, error)
}
