// Implements Store on a local repository using go-git (pure Go, no git binary
// dependency).

package contents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	apierrors "github.com/maruel/mdblog/internal/errors"
)

// GitRepo is a Store backed by a local git repository. Each Put or Delete is
// one commit on the checked out branch.
type GitRepo struct {
	dir   string
	name  string
	email string
	repo  *gogit.Repository
	mu    sync.Mutex
}

// OpenGitRepo opens the repository at dir, initializing it with a "main"
// branch when it does not exist. name and email sign the commits.
func OpenGitRepo(dir, name, email string) (*GitRepo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: repository checkout
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		// Not a repository yet, initialize it.
		repo, err = gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
			InitOptions: gogit.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
	}
	if name == "" {
		name = "mdblog"
	}
	if email == "" {
		email = "mdblog@localhost"
	}
	return &GitRepo{dir: dir, name: name, email: email, repo: repo}, nil
}

// Identity implements Store. The local backend has no credential; the commit
// author stands in for the login.
func (r *GitRepo) Identity(ctx context.Context) (string, error) {
	return r.name, ctx.Err()
}

// Get implements Store. The file is read from the HEAD commit.
func (r *GitRepo) Get(ctx context.Context, path string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, apierrors.RemoteUnavailable("get "+path, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := r.readHead(path)
	if err != nil {
		return nil, err
	}
	return &File{Path: path, Content: data, SHA: BlobSHA(data)}, nil
}

// Put implements Store.
func (r *GitRepo) Put(ctx context.Context, path string, content []byte, message, sha string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apierrors.RemoteUnavailable("put "+path, err)
	}
	local, err := localPath(path)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkVersion(path, sha); err != nil {
		return "", err
	}
	abs := filepath.Join(r.dir, local)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil { //nolint:gosec // G301: repository checkout
		return "", apierrors.InternalWithError("failed to create directory", err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil { //nolint:gosec // G306: repository checkout
		return "", apierrors.InternalWithError("failed to write "+path, err)
	}
	w, err := r.repo.Worktree()
	if err != nil {
		return "", apierrors.InternalWithError("failed to get worktree", err)
	}
	if _, err := w.Add(filepath.ToSlash(local)); err != nil {
		return "", apierrors.InternalWithError("failed to stage "+path, err)
	}
	if err := r.commit(w, message); err != nil {
		return "", err
	}
	return BlobSHA(content), nil
}

// Delete implements Store.
func (r *GitRepo) Delete(ctx context.Context, path, sha, message string) error {
	if err := ctx.Err(); err != nil {
		return apierrors.RemoteUnavailable("delete "+path, err)
	}
	local, err := localPath(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.readHead(path); err != nil {
		return err
	}
	if sha == "" {
		return apierrors.Conflict("sha is required to delete " + path)
	}
	if err := r.checkVersion(path, sha); err != nil {
		return err
	}
	w, err := r.repo.Worktree()
	if err != nil {
		return apierrors.InternalWithError("failed to get worktree", err)
	}
	if _, err := w.Remove(filepath.ToSlash(local)); err != nil {
		return apierrors.InternalWithError("failed to remove "+path, err)
	}
	return r.commit(w, message)
}

// Revision is one commit of the local repository.
type Revision struct {
	Hash    string    `json:"hash"`
	Author  string    `json:"author"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// History returns up to n commits reachable from HEAD, newest first. n <= 0
// returns all of them. A repository without commits has no history.
func (r *GitRepo) History(n int) ([]Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Revision{}
	iter, err := r.repo.Log(&gogit.LogOptions{})
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, apierrors.InternalWithError("failed to read history", err)
	}
	defer iter.Close()
	for n <= 0 || len(out) < n {
		c, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apierrors.InternalWithError("failed to read history", err)
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		out = append(out, Revision{Hash: c.Hash.String(), Author: c.Author.Name, Time: c.Author.When, Message: subject})
	}
	return out, nil
}

// commit records the staged changes. A clean worktree is not an error.
func (r *GitRepo) commit(w *gogit.Worktree, message string) error {
	status, err := w.Status()
	if err != nil {
		return apierrors.InternalWithError("failed to get worktree status", err)
	}
	if status.IsClean() {
		return nil
	}
	sig := &object.Signature{Name: r.name, Email: r.email, When: time.Now()}
	if _, err := w.Commit(message, &gogit.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return apierrors.InternalWithError("failed to commit", err)
	}
	return nil
}

// checkVersion enforces the version precondition against HEAD.
func (r *GitRepo) checkVersion(path, sha string) error {
	data, err := r.readHead(path)
	exists := err == nil
	if err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	switch {
	case sha == "" && exists:
		return apierrors.Conflict(path+" already exists").WithDetail("path", path)
	case sha != "" && !exists:
		return apierrors.NotFound(path)
	case sha != "" && BlobSHA(data) != sha:
		return apierrors.Conflict(path+" does not match "+sha).WithDetail("path", path)
	}
	return nil
}

// readHead returns the content of path in the HEAD commit.
func (r *GitRepo) readHead(path string) ([]byte, error) {
	ref, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, apierrors.NotFound(path)
		}
		return nil, apierrors.InternalWithError("failed to resolve HEAD", err)
	}
	c, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, apierrors.InternalWithError("failed to get commit", err)
	}
	f, err := c.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, apierrors.NotFound(path)
		}
		return nil, apierrors.InternalWithError("failed to get file at HEAD", err)
	}
	reader, err := f.Reader()
	if err != nil {
		return nil, apierrors.InternalWithError("failed to open file", err)
	}
	defer func() { _ = reader.Close() }()
	return io.ReadAll(reader)
}

func localPath(path string) (string, error) {
	p := filepath.FromSlash(path)
	if !filepath.IsLocal(p) {
		return "", apierrors.Validation(fmt.Sprintf("invalid repository path %q", path))
	}
	return p, nil
}
