package admin

import (
	"context"

	"github.com/maruel/mdblog/internal/contents"
)

// PostFiles reads and writes post bodies. Paths are derived with
// blog.Locator.Path.
type PostFiles struct {
	store contents.Store
}

// NewPostFiles returns a PostFiles writing to store.
func NewPostFiles(store contents.Store) *PostFiles {
	return &PostFiles{store: store}
}

// Read returns the Markdown text at path and its content hash.
func (p *PostFiles) Read(ctx context.Context, path string) (string, string, error) {
	f, err := p.store.Get(ctx, path)
	if err != nil {
		return "", "", err
	}
	return string(f.Content), f.SHA, nil
}

// Write creates the file when sha is empty, else overwrites version sha. It
// returns the new content hash.
func (p *PostFiles) Write(ctx context.Context, path, text, message, sha string) (string, error) {
	return p.store.Put(ctx, path, []byte(text), message, sha)
}

// Remove deletes version sha of the file.
func (p *PostFiles) Remove(ctx context.Context, path, sha, message string) error {
	return p.store.Delete(ctx, path, sha, message)
}
