package contents

import (
	"context"
	"maps"
	"slices"
	"sync"

	apierrors "github.com/maruel/mdblog/internal/errors"
)

// Memory is an in-process Store with the same precondition semantics as the
// GitHub store.
type Memory struct {
	login string

	mu      sync.Mutex
	files   map[string][]byte
	commits []Commit
	fail    map[string]error
}

// Commit records one successful write to a Memory store.
type Commit struct {
	Op      string // "put" or "delete"
	Path    string
	Message string
}

// NewMemory returns an empty store whose identity is login.
func NewMemory(login string) *Memory {
	return &Memory{login: login, files: map[string][]byte{}, fail: map[string]error{}}
}

// Seed stores content at path without recording a commit and returns its
// hash.
func (m *Memory) Seed(path string, content []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = slices.Clone(content)
	return BlobSHA(content)
}

// FailNext makes the next call of op ("identity", "get", "put" or "delete")
// on path return err. An empty path matches any path.
func (m *Memory) FailNext(op, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op+" "+path] = err
}

// Commits returns the writes made so far.
func (m *Memory) Commits() []Commit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.commits)
}

// Paths returns the sorted list of stored paths.
func (m *Memory) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.files))
}

// Identity implements Store.
func (m *Memory) Identity(ctx context.Context) (string, error) {
	if m.login == "" {
		return "", apierrors.AuthInvalid("bad credentials")
	}
	m.mu.Lock()
	err := m.injected("identity", "")
	m.mu.Unlock()
	if err != nil {
		return "", err
	}
	return m.login, ctx.Err()
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, path string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, apierrors.RemoteUnavailable("get "+path, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("get", path); err != nil {
		return nil, err
	}
	data, ok := m.files[path]
	if !ok {
		return nil, apierrors.NotFound(path)
	}
	return &File{Path: path, Content: slices.Clone(data), SHA: BlobSHA(data)}, nil
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, path string, content []byte, message, sha string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apierrors.RemoteUnavailable("put "+path, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("put", path); err != nil {
		return "", err
	}
	if err := m.check(path, sha); err != nil {
		return "", err
	}
	m.files[path] = slices.Clone(content)
	m.commits = append(m.commits, Commit{Op: "put", Path: path, Message: message})
	return BlobSHA(content), nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, path, sha, message string) error {
	if err := ctx.Err(); err != nil {
		return apierrors.RemoteUnavailable("delete "+path, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("delete", path); err != nil {
		return err
	}
	if _, ok := m.files[path]; !ok {
		return apierrors.NotFound(path)
	}
	if sha == "" {
		return apierrors.Conflict("sha is required to delete " + path)
	}
	if err := m.check(path, sha); err != nil {
		return err
	}
	delete(m.files, path)
	m.commits = append(m.commits, Commit{Op: "delete", Path: path, Message: message})
	return nil
}

// check enforces the version precondition. Must be called with mu held.
func (m *Memory) check(path, sha string) error {
	cur, exists := m.files[path]
	switch {
	case sha == "" && exists:
		return apierrors.Conflict(path+" already exists").WithDetail("path", path)
	case sha != "" && !exists:
		return apierrors.NotFound(path)
	case sha != "" && BlobSHA(cur) != sha:
		return apierrors.Conflict(path+" does not match "+sha).WithDetail("path", path)
	}
	return nil
}

func (m *Memory) injected(op, path string) error {
	for _, k := range []string{op + " " + path, op + " "} {
		if err, ok := m.fail[k]; ok {
			delete(m.fail, k)
			return err
		}
	}
	return nil
}
