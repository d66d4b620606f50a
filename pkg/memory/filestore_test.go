package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newTestStore(t *testing.T, at time.Time) (*FileStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: at}
	fs, err := NewFileStore(t.TempDir(), WithLocation(time.UTC), WithClock(clock.Now))
	require.NoError(t, err)
	return fs, clock
}

func TestToday(t *testing.T) {
	at := time.Date(2026, 10, 19, 23, 30, 0, 0, time.UTC)
	fs, _ := newTestStore(t, at)
	assert.Equal(t, "2026-10-19", fs.Today())

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("tzdata not available")
	}
	fsTokyo, err := NewFileStore(t.TempDir(), WithLocation(tokyo), WithClock(func() time.Time { return at }))
	require.NoError(t, err)
	assert.Equal(t, "2026-10-20", fsTokyo.Today())
}

func TestAppendTodayCreatesHeader(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestStore(t, time.Date(2026, 10, 19, 9, 15, 0, 0, time.UTC))

	got, err := fs.ReadToday(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, fs.AppendToday(ctx, "User: hello\nAssistant: hi"))

	got, err = fs.ReadToday(ctx)
	require.NoError(t, err)
	assert.Equal(t, "# 2026-10-19\n\n[09:15:00] User: hello\nAssistant: hi\n", got)
}

func TestAppendTodayPreservesOrder(t *testing.T) {
	ctx := context.Background()
	fs, clock := newTestStore(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))

	require.NoError(t, fs.AppendToday(ctx, "first"))
	clock.Set(time.Date(2026, 10, 19, 9, 5, 0, 0, time.UTC))
	require.NoError(t, fs.AppendToday(ctx, "second\n"))

	got, err := fs.ReadToday(ctx)
	require.NoError(t, err)
	assert.Equal(t, "# 2026-10-19\n\n[09:00:00] first\n\n[09:05:00] second\n", got)

	// Rolling over midnight starts a new note.
	clock.Set(time.Date(2026, 10, 20, 0, 1, 0, 0, time.UTC))
	require.NoError(t, fs.AppendToday(ctx, "third"))

	prev, err := fs.ReadDay(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.NotContains(t, prev, "third")

	today, err := fs.ReadToday(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(today, "# 2026-10-20\n\n"))
}

func TestAppendTodayConcurrent(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestStore(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, fs.AppendToday(ctx, "entry"))
		}()
	}
	wg.Wait()

	got, err := fs.ReadToday(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, strings.Count(got, "[09:00:00] entry\n"))
	assert.Equal(t, 1, strings.Count(got, "# 2026-10-19"))
}

func TestReadDayInvalidDate(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestStore(t, time.Now())

	tests := []string{"", "2026-13-01", "yesterday", "2026-10-19.md", "../MEMORY"}
	for _, date := range tests {
		t.Run(date, func(t *testing.T) {
			_, err := fs.ReadDay(ctx, date)
			assert.ErrorIs(t, err, ErrInvalidDate)
		})
	}
}

func TestReadDayMissing(t *testing.T) {
	fs, _ := newTestStore(t, time.Now())
	got, err := fs.ReadDay(context.Background(), "2001-01-01")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpdateLongTerm(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestStore(t, time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))

	got, err := fs.ReadLongTerm(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, fs.UpdateLongTerm(ctx, "- Name: Ada\n"))
	require.NoError(t, fs.UpdateLongTerm(ctx, "- Name: Ada\n- Likes tea\n"))

	got, err = fs.ReadLongTerm(ctx)
	require.NoError(t, err)
	assert.Equal(t, "- Name: Ada\n- Likes tea\n", got)

	meta, err := fs.LongTermInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.Revision)
	assert.True(t, meta.UpdatedAt.Equal(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)))

	_, err = os.Stat(filepath.Join(fs.Dir(), LongTermFile+".tmp"))
	assert.True(t, os.IsNotExist(err), "temporary file should not remain")
}

func TestReadLongTermHandWritten(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestStore(t, time.Now())

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain markdown", raw: "# Facts\n\n- likes tea\n", want: "# Facts\n\n- likes tea\n"},
		{name: "unclosed front-matter", raw: "---\nnot closed", want: "---\nnot closed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(filepath.Join(fs.Dir(), LongTermFile), []byte(tt.raw), 0o600))
			got, err := fs.ReadLongTerm(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLongTermConcurrentReadSeesWholeVersion(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestStore(t, time.Now())

	a := strings.Repeat("A", 64*1024)
	b := strings.Repeat("B", 64*1024)
	require.NoError(t, fs.UpdateLongTerm(ctx, a))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			next := b
			if i%2 == 1 {
				next = a
			}
			assert.NoError(t, fs.UpdateLongTerm(ctx, next))
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		got, err := fs.ReadLongTerm(ctx)
		require.NoError(t, err)
		assert.True(t, got == a || got == b, "observed a torn long-term memory of %d bytes", len(got))
	}
}

func TestListDays(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestStore(t, time.Now())

	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(fs.Dir(), name), []byte(content), 0o600))
	}
	write("2026-10-17.md", "# 2026-10-17\n\nnote")
	write("2026-10-15.md", "# 2026-10-15\n\nnote")
	write("2026-10-18.md", "")
	write("2026-10-19.md", "# 2026-10-19\n\nnote")
	write("2026-99-99.md", "bogus")
	write("notes.md", "not a day")
	write(LongTermFile, "facts")

	tests := []struct {
		name     string
		from, to string
		want     []string
	}{
		{name: "open range", want: []string{"2026-10-15", "2026-10-17", "2026-10-19"}},
		{name: "inclusive bounds", from: "2026-10-15", to: "2026-10-17", want: []string{"2026-10-15", "2026-10-17"}},
		{name: "from only", from: "2026-10-16", want: []string{"2026-10-17", "2026-10-19"}},
		{name: "empty range", from: "2026-11-01", to: "2026-11-30", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fs.ListDays(ctx, tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := fs.ListDays(ctx, "last week", "")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestRecentDays(t *testing.T) {
	ctx := context.Background()
	fs, clock := newTestStore(t, time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC))

	require.NoError(t, fs.AppendToday(ctx, "day one"))
	clock.Set(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC))
	require.NoError(t, fs.AppendToday(ctx, "day three"))

	got, err := fs.RecentDays(ctx, 3)
	require.NoError(t, err)
	parts := strings.Split(got, "\n\n---\n\n")
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0], "day three")
	assert.Contains(t, parts[1], "day one")

	got, err = fs.RecentDays(ctx, 1)
	require.NoError(t, err)
	assert.NotContains(t, got, "day one")

	got, err = fs.RecentDays(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStorageErrorWrapsCause(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := NewFileStore(filepath.Join(blocker, "memory"))
	require.Error(t, err)
	assert.True(t, IsStorageError(err))

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "init directory", se.Op)
	assert.Contains(t, err.Error(), "memory: init directory")
}

func TestParseLongTerm(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	b, err := serializeLongTerm(LongTermMeta{UpdatedAt: at, Revision: 3}, "body text\n")
	require.NoError(t, err)

	meta, body, err := parseLongTerm(b)
	require.NoError(t, err)
	assert.Equal(t, 3, meta.Revision)
	assert.True(t, meta.UpdatedAt.Equal(at))
	assert.Equal(t, "body text\n", body)

	_, _, err = parseLongTerm([]byte("---\nrevision: 1\n"))
	assert.ErrorContains(t, err, "unclosed front-matter block")
}
