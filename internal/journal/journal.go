package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maruel/ksid"
	"github.com/maruel/mdblog/internal/contents"
)

// FileName is the journal file in the data directory.
const FileName = "activity.jsonl"

// DefaultMaxEntries bounds the journal size.
const DefaultMaxEntries = 1000

// Entry is one commit made through mdblog.
type Entry struct {
	ID      ksid.ID   `json:"id"`
	Time    time.Time `json:"time"`
	User    string    `json:"user"`
	Op      string    `json:"op"`
	Path    string    `json:"path"`
	Message string    `json:"message"`
	SHA     string    `json:"sha,omitempty"`
}

// Journal is the activity log.
type Journal struct {
	t   *table[Entry]
	max int
	now func() time.Time
}

// Open loads the journal at path. It keeps at most maxEntries entries; 0
// means DefaultMaxEntries.
func Open(path string, maxEntries int) (*Journal, error) {
	t, err := openTable[Entry](path)
	if err != nil {
		return nil, err
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Journal{t: t, max: maxEntries, now: time.Now}, nil
}

// Record appends e, filling ID and Time. The oldest entries are dropped once
// the journal holds twice its limit, so the file is rewritten rarely.
func (j *Journal) Record(e Entry) error {
	if e.ID.IsZero() {
		e.ID = ksid.NewID()
	}
	if e.Time.IsZero() {
		e.Time = j.now().UTC()
	}
	if err := j.t.append(e); err != nil {
		return err
	}
	if j.t.len() >= 2*j.max {
		return j.t.keepLast(j.max)
	}
	return nil
}

// Last returns up to n entries, newest first. n <= 0 returns all of them.
func (j *Journal) Last(n int) []Entry {
	rows := j.t.last(n)
	for i, k := 0, len(rows)-1; i < k; i, k = i+1, k-1 {
		rows[i], rows[k] = rows[k], rows[i]
	}
	return rows
}

// Store records every successful write made through the wrapped store.
//
// The user is the login returned by the last successful Identity call.
// Journal failures are logged and never fail the write, which is already
// committed.
type Store struct {
	contents.Store
	j *Journal

	mu   sync.Mutex
	user string
}

// Wrap returns s recording into j.
func (j *Journal) Wrap(s contents.Store) *Store {
	return &Store{Store: s, j: j}
}

// Identity implements contents.Store.
func (s *Store) Identity(ctx context.Context) (string, error) {
	user, err := s.Store.Identity(ctx)
	if err == nil {
		s.mu.Lock()
		s.user = user
		s.mu.Unlock()
	}
	return user, err
}

// Put implements contents.Store.
func (s *Store) Put(ctx context.Context, path string, content []byte, message, sha string) (string, error) {
	newSHA, err := s.Store.Put(ctx, path, content, message, sha)
	if err == nil {
		s.record(ctx, Entry{Op: "put", Path: path, Message: message, SHA: newSHA})
	}
	return newSHA, err
}

// Delete implements contents.Store.
func (s *Store) Delete(ctx context.Context, path, sha, message string) error {
	err := s.Store.Delete(ctx, path, sha, message)
	if err == nil {
		s.record(ctx, Entry{Op: "delete", Path: path, Message: message})
	}
	return err
}

func (s *Store) record(ctx context.Context, e Entry) {
	s.mu.Lock()
	e.User = s.user
	s.mu.Unlock()
	if err := s.j.Record(e); err != nil {
		slog.WarnContext(ctx, "Failed to record commit", "path", e.Path, "err", err)
	}
}
