// Package contents implements the remote content store: a Git-backed file
// store addressed by repository path where every file version is identified
// by its blob hash.
//
// Writes carry the hash of the version they replace. An empty hash means the
// file must not exist yet. A stale or missing hash is reported as a CONFLICT
// error; see the internal/errors package.
package contents

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing"
)

// File is one version of a file in the store.
type File struct {
	Path    string
	Content []byte
	SHA     string
}

// Store is the remote content store.
type Store interface {
	// Identity returns the login of the authenticated principal.
	Identity(ctx context.Context) (string, error)
	// Get returns the current version of the file at path.
	Get(ctx context.Context, path string) (*File, error)
	// Put creates the file when sha is empty, or replaces the version sha
	// otherwise. It returns the hash of the new version.
	Put(ctx context.Context, path string, content []byte, message, sha string) (string, error)
	// Delete removes version sha of the file at path.
	Delete(ctx context.Context, path, sha, message string) error
}

// BlobSHA returns the git blob hash of content, which is the version
// identifier GitHub reports for files.
func BlobSHA(content []byte) string {
	return plumbing.ComputeHash(plumbing.BlobObject, content).String()
}
