package index

import (
	"errors"
	"fmt"
)

// ErrUnavailable reports that the similarity backend could not be opened.
// It is never returned by Index methods; a disabled Index behaves as an
// empty one.
var ErrUnavailable = errors.New("index: similarity backend unavailable")

// EmbeddingError reports a chunk that could not be embedded. The chunk is
// left out of the day's set and indexing continues.
type EmbeddingError struct {
	Date    string
	ChunkID string
	Err     error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("index: embed chunk %s: %v", e.ChunkID, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}
