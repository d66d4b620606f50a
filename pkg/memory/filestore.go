package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/mnemo/pkg/logging"
	"github.com/gobwas/glob"
)

var memoryLog *logging.Logger

func init() {
	var err error
	memoryLog, err = logging.NewLogger("memory")
	if err != nil {
		memoryLog.Warnf("Failed to initialize memory logger, using stderr fallback: %v", err)
	}
}

var timeNow = time.Now // injected for testability

var dayFilePattern = glob.MustCompile("[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9].md")

// FileStore is the file-system implementation of Store. Every successful
// write has been fsynced before it returns.
type FileStore struct {
	dir string
	loc *time.Location
	now func() time.Time

	mu       sync.Mutex
	dayLocks map[string]*sync.Mutex

	// Serializes long-term writers. Readers never take it.
	longTermMu sync.Mutex
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithLocation sets the time zone that decides which calendar day is today.
func WithLocation(loc *time.Location) Option {
	return func(fs *FileStore) {
		if loc != nil {
			fs.loc = loc
		}
	}
}

// WithClock overrides the clock used for day keys and entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(fs *FileStore) {
		if now != nil {
			fs.now = now
		}
	}
}

// NewFileStore opens (creating if needed) a memory directory.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("memory: directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, &StorageError{Op: "init directory", Path: dir, Err: err}
	}
	fs := &FileStore{
		dir:      dir,
		loc:      time.Local,
		now:      func() time.Time { return timeNow() },
		dayLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs, nil
}

// Dir returns the memory directory.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// Today returns today's date key in the store's location.
func (fs *FileStore) Today() string {
	return fs.now().In(fs.loc).Format(DateFormat)
}

// DayPath returns the file path of the note for date.
func (fs *FileStore) DayPath(date string) (string, error) {
	if err := validateDate(date); err != nil {
		return "", err
	}
	return filepath.Join(fs.dir, date+".md"), nil
}

func (fs *FileStore) longTermPath() string {
	return filepath.Join(fs.dir, LongTermFile)
}

func (fs *FileStore) dayLock(date string) *sync.Mutex {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	l, ok := fs.dayLocks[date]
	if !ok {
		l = &sync.Mutex{}
		fs.dayLocks[date] = l
	}
	return l
}

// AppendToday adds a timestamped entry to today's note.
func (fs *FileStore) AppendToday(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := fs.now().In(fs.loc)
	date := now.Format(DateFormat)
	path := filepath.Join(fs.dir, date+".md")

	lock := fs.dayLock(date)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return &StorageError{Op: "open day note", Path: path, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return &StorageError{Op: "stat day note", Path: path, Err: err}
	}
	created := info.Size() == 0

	var sb strings.Builder
	if created {
		sb.WriteString("# " + date + "\n\n")
	} else {
		sb.WriteString("\n")
	}
	sb.WriteString(formatEntry(now, text))

	if _, err := f.WriteString(sb.String()); err != nil {
		_ = f.Close()
		return &StorageError{Op: "append day note", Path: path, Err: err}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return &StorageError{Op: "sync day note", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &StorageError{Op: "close day note", Path: path, Err: err}
	}
	if created {
		if err := syncDir(fs.dir); err != nil {
			return &StorageError{Op: "sync directory", Path: fs.dir, Err: err}
		}
		memoryLog.Debugf("created day note %s", path)
	}
	return nil
}

func formatEntry(at time.Time, text string) string {
	return fmt.Sprintf("[%s] %s\n", at.Format("15:04:05"), strings.TrimRight(text, "\n"))
}

// ReadToday returns today's note, or "" when nothing was written today.
func (fs *FileStore) ReadToday(ctx context.Context) (string, error) {
	return fs.ReadDay(ctx, fs.Today())
}

// ReadDay returns the note for date, or "" when it does not exist.
func (fs *FileStore) ReadDay(ctx context.Context, date string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := fs.DayPath(date)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", &StorageError{Op: "read day note", Path: path, Err: err}
	}
	return string(b), nil
}

// ReadLongTerm returns the body of the long-term fact sheet.
func (fs *FileStore) ReadLongTerm(ctx context.Context) (string, error) {
	_, body, err := fs.readLongTerm(ctx)
	return body, err
}

// LongTermInfo returns the front-matter of the long-term fact sheet. The
// zero value is returned for a missing or hand-written file.
func (fs *FileStore) LongTermInfo(ctx context.Context) (LongTermMeta, error) {
	meta, _, err := fs.readLongTerm(ctx)
	return meta, err
}

func (fs *FileStore) readLongTerm(ctx context.Context) (LongTermMeta, string, error) {
	if err := ctx.Err(); err != nil {
		return LongTermMeta{}, "", err
	}
	path := fs.longTermPath()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return LongTermMeta{}, "", nil
	}
	if err != nil {
		return LongTermMeta{}, "", &StorageError{Op: "read long-term memory", Path: path, Err: err}
	}
	meta, body, err := parseLongTerm(b)
	if err != nil {
		memoryLog.Warnf("long-term memory front-matter unreadable, using raw text: %v", err)
		return LongTermMeta{}, string(b), nil
	}
	return meta, body, nil
}

// UpdateLongTerm replaces the long-term fact sheet via a synced temporary
// file and an atomic rename. Last writer wins.
func (fs *FileStore) UpdateLongTerm(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fs.longTermMu.Lock()
	defer fs.longTermMu.Unlock()

	prev, _, err := fs.readLongTerm(ctx)
	if err != nil {
		return err
	}
	meta := LongTermMeta{
		UpdatedAt: fs.now().In(fs.loc).Truncate(time.Second),
		Revision:  prev.Revision + 1,
	}
	b, err := serializeLongTerm(meta, text)
	if err != nil {
		return err
	}

	path := fs.longTermPath()
	if err := writeFileAtomic(path, b); err != nil {
		return &StorageError{Op: "write long-term memory", Path: path, Err: err}
	}
	memoryLog.Infof("long-term memory updated to revision %d (%d bytes)", meta.Revision, len(text))
	return nil
}

// ListDays returns the dates in [from, to] with a non-empty note, ascending.
func (fs *FileStore) ListDays(ctx context.Context, from, to string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, bound := range []string{from, to} {
		if bound == "" {
			continue
		}
		if err := validateDate(bound); err != nil {
			return nil, err
		}
	}

	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, &StorageError{Op: "list days", Path: fs.dir, Err: err}
	}
	var days []string
	for _, e := range entries {
		if e.IsDir() || !dayFilePattern.Match(e.Name()) {
			continue
		}
		date := strings.TrimSuffix(e.Name(), ".md")
		if validateDate(date) != nil {
			continue
		}
		if (from != "" && date < from) || (to != "" && date > to) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			memoryLog.Debugf("skipping unreadable day note %s: %v", e.Name(), err)
			continue
		}
		if info.Size() == 0 {
			continue
		}
		days = append(days, date)
	}
	sort.Strings(days)
	return days, nil
}

// RecentDays returns the notes of the last n calendar days including today,
// newest first.
func (fs *FileStore) RecentDays(ctx context.Context, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	today, err := time.ParseInLocation(DateFormat, fs.Today(), fs.loc)
	if err != nil {
		return "", err
	}
	var notes []string
	for i := 0; i < n; i++ {
		date := today.AddDate(0, 0, -i).Format(DateFormat)
		text, err := fs.ReadDay(ctx, date)
		if err != nil {
			return "", err
		}
		if text != "" {
			notes = append(notes, text)
		}
	}
	return strings.Join(notes, "\n\n---\n\n"), nil
}

func validateDate(date string) error {
	if _, err := time.Parse(DateFormat, date); err != nil {
		return fmt.Errorf("%w %q", ErrInvalidDate, date)
	}
	return nil
}

// writeFileAtomic writes b to path through a synced temporary file and a
// rename, then syncs the directory so the rename itself is durable.
func writeFileAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomic rename: %w", err)
	}
	return syncDir(filepath.Dir(path))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
