package admin

import (
	"context"

	"github.com/maruel/mdblog/internal/blog"
	apierrors "github.com/maruel/mdblog/internal/errors"
)

// Dashboard lists posts for browsing.
type Dashboard struct {
	session *Session
}

// NewDashboard returns the dashboard of s.
func NewDashboard(s *Session) *Dashboard {
	return &Dashboard{session: s}
}

// Posts returns every post, newest first.
func (d *Dashboard) Posts() ([]blog.Entry, error) {
	index, err := d.session.Index()
	if err != nil {
		return nil, err
	}
	entries := index.Snapshot().Flatten()
	blog.SortNewestFirst(entries)
	return entries, nil
}

// Post returns the index entry and body of one post.
func (d *Dashboard) Post(ctx context.Context, loc blog.Locator) (blog.Entry, string, error) {
	index, files, err := d.session.active()
	if err != nil {
		return blog.Entry{}, "", err
	}
	for _, e := range index.Snapshot().Flatten() {
		if e.Locator() != loc {
			continue
		}
		body, _, err := files.Read(ctx, loc.Path())
		if err != nil {
			return blog.Entry{}, "", err
		}
		return e, body, nil
	}
	return blog.Entry{}, "", apierrors.NotFound("post " + loc.String())
}

// Problem is an inconsistency found by Check.
type Problem struct {
	Path    string `json:"path" yaml:"path"`
	Message string `json:"message" yaml:"message"`
}

// Check validates the index document and verifies that every entry has its
// Markdown file.
func (d *Dashboard) Check(ctx context.Context) ([]Problem, error) {
	index, files, err := d.session.active()
	if err != nil {
		return nil, err
	}
	doc := index.Snapshot()
	var out []Problem
	if err := doc.Validate(); err != nil {
		out = append(out, Problem{Path: blog.IndexPath, Message: err.Error()})
	}
	for _, e := range doc.Flatten() {
		path := e.Locator().Path()
		if _, _, err := files.Read(ctx, path); err != nil {
			if !apierrors.IsNotFound(err) {
				return out, err
			}
			out = append(out, Problem{Path: path, Message: "missing Markdown file for " + e.Title})
		}
	}
	return out, nil
}
