// Package journal keeps a local, append-only record of the commits made
// through mdblog. The repository history is authoritative; the journal
// answers "what did this installation change, and as whom" without an API
// call.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// table is a JSONL file with one row per line, mirrored in memory.
type table[T any] struct {
	path string

	mu   sync.RWMutex
	rows []T
}

// openTable loads the file at path. A missing file is an empty table.
func openTable[T any](path string) (*table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	t := &table[T]{path: path}
	f, err := os.Open(path) //nolint:gosec // path is under the data directory
	if errors.Is(err, fs.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		t.rows = append(t.rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return t, nil
}

// last returns up to n rows, oldest first. n <= 0 returns every row.
func (t *table[T]) last(n int) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows := t.rows
	if n > 0 && len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	return slices.Clone(rows)
}

func (t *table[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// append persists row at the end of the file.
func (t *table[T]) append(row T) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // path is under the data directory
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", t.path, err)
	}
	_, err = f.Write(append(data, '\n'))
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", t.path, err)
	}
	t.rows = append(t.rows, row)
	return nil
}

// keepLast rewrites the file with only the newest n rows. The file is
// replaced atomically.
func (t *table[T]) keepLast(n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.rows) <= n {
		return nil
	}
	rows := slices.Clone(t.rows[len(t.rows)-n:])
	tmp, err := os.CreateTemp(filepath.Dir(t.path), filepath.Base(t.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	w := bufio.NewWriter(tmp)
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			_ = tmp.Close()
			return fmt.Errorf("failed to marshal row: %w", err)
		}
		_, _ = w.Write(data)
		_ = w.WriteByte('\n')
	}
	err = w.Flush()
	if err2 := tmp.Close(); err == nil {
		err = err2
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", t.path, err)
	}
	t.rows = rows
	return nil
}
