package memory

import (
	"errors"
	"fmt"
)

// ErrInvalidDate is returned for day keys that are not YYYY-MM-DD.
var ErrInvalidDate = errors.New("memory: invalid date")

// StorageError reports an I/O fault in the memory store. Callers must not
// assume any part of the failed operation was applied.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("memory: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("memory: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
