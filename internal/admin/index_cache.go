package admin

import (
	"context"
	"log/slog"
	"sync"

	"github.com/maruel/mdblog/internal/blog"
	"github.com/maruel/mdblog/internal/contents"
	apierrors "github.com/maruel/mdblog/internal/errors"
)

// IndexCache holds the last fetched copy of the index document and its
// content hash.
//
// The cached copy only changes on a successful Fetch or Commit; a failed
// Commit leaves it untouched.
type IndexCache struct {
	store contents.Store

	mu     sync.Mutex
	doc    *blog.Index
	sha    string
	loaded bool
}

// NewIndexCache returns an empty cache reading from store.
func NewIndexCache(store contents.Store) *IndexCache {
	return &IndexCache{store: store}
}

// Fetch replaces the cached copy with the remote document.
func (c *IndexCache) Fetch(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchLocked(ctx)
}

func (c *IndexCache) fetchLocked(ctx context.Context) error {
	f, err := c.store.Get(ctx, blog.IndexPath)
	if err != nil {
		return err
	}
	doc, err := blog.Parse(f.Content)
	if err != nil {
		return apierrors.RemoteUnavailable("invalid index document", err)
	}
	c.doc, c.sha, c.loaded = doc, f.SHA, true
	slog.DebugContext(ctx, "Index fetched", "sha", f.SHA, "posts", doc.TotalPosts())
	return nil
}

// Create writes an empty index document. It fails with CONFLICT when one
// already exists.
func (c *IndexCache) Create(ctx context.Context, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc := &blog.Index{}
	data, err := blog.Marshal(doc)
	if err != nil {
		return apierrors.InternalWithError("failed to encode index", err)
	}
	sha, err := c.store.Put(ctx, blog.IndexPath, data, message, "")
	if err != nil {
		return err
	}
	c.doc, c.sha, c.loaded = doc, sha, true
	return nil
}

// Loaded reports whether a document has been fetched.
func (c *IndexCache) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Snapshot returns a deep copy of the cached document.
func (c *IndexCache) Snapshot() *blog.Index {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc == nil {
		return &blog.Index{Categories: []blog.Category{}}
	}
	return c.doc.Clone()
}

// SHA returns the content hash of the cached document.
func (c *IndexCache) SHA() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sha
}

// Commit writes doc using the cached hash as the expected previous version.
// On success doc becomes the cached copy.
func (c *IndexCache) Commit(ctx context.Context, doc *blog.Index, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commitLocked(ctx, doc, message)
}

func (c *IndexCache) commitLocked(ctx context.Context, doc *blog.Index, message string) error {
	if !c.loaded {
		return apierrors.Internal("index not loaded")
	}
	data, err := blog.Marshal(doc)
	if err != nil {
		return apierrors.InternalWithError("failed to encode index", err)
	}
	sha, err := c.store.Put(ctx, blog.IndexPath, data, message, c.sha)
	if err != nil {
		return err
	}
	c.doc, c.sha = doc.Clone(), sha
	slog.InfoContext(ctx, "Index committed", "message", message, "sha", sha)
	return nil
}

// Update applies fn to a snapshot of the cached document and commits the
// result. When the commit is rejected with CONFLICT the document is fetched
// again and the conflict is returned so the user can retry.
func (c *IndexCache) Update(ctx context.Context, message string, fn func(*blog.Index) (*blog.Index, error)) (*blog.Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return nil, apierrors.Internal("index not loaded")
	}
	doc, err := fn(c.doc.Clone())
	if err != nil {
		return nil, err
	}
	if err := c.commitLocked(ctx, doc, message); err != nil {
		if apierrors.IsConflict(err) {
			slog.WarnContext(ctx, "Index changed remotely; re-fetching", "err", err)
			if ferr := c.fetchLocked(ctx); ferr != nil {
				slog.ErrorContext(ctx, "Re-fetch failed", "err", ferr)
			}
			return nil, conflictErr(err)
		}
		return nil, err
	}
	return doc.Clone(), nil
}

// conflictErr marks a conflict as surfaced after a re-fetch.
func conflictErr(err error) error {
	return apierrors.Conflict("the index changed remotely; it was reloaded, retry the operation").WithDetail("refetched", true).Wrap(err)
}
