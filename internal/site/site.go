// Package site is the public, read-only view of the blog: it fetches the
// published index document without credentials and builds the navigation and
// listings shown to readers.
package site

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maruel/mdblog/internal/blog"
	apierrors "github.com/maruel/mdblog/internal/errors"
)

// Reader fetches published files from the site over plain HTTP.
type Reader struct {
	baseURL string
	client  *http.Client
}

// NewReader returns a Reader for the site rooted at baseURL. client may be
// nil.
func NewReader(baseURL string, client *http.Client) *Reader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Reader{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

// Index fetches and parses the published index document.
func (r *Reader) Index(ctx context.Context) (*blog.Index, error) {
	data, err := r.get(ctx, blog.IndexPath)
	if err != nil {
		return nil, err
	}
	idx, err := blog.Parse(data)
	if err != nil {
		return nil, apierrors.RemoteUnavailable("invalid index document", err)
	}
	return idx, nil
}

// Post fetches the Markdown body of a published post.
func (r *Reader) Post(ctx context.Context, loc blog.Locator) (string, error) {
	data, err := r.get(ctx, loc.Path())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *Reader) get(ctx context.Context, path string) ([]byte, error) {
	u := r.baseURL + "/" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, apierrors.InternalWithError("failed to create request", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apierrors.RemoteUnavailable("failed to fetch "+path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	slog.DebugContext(ctx, "site", "url", u, "status", resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apierrors.NotFound(path)
	case resp.StatusCode != http.StatusOK:
		return nil, apierrors.RemoteUnavailable("failed to fetch "+path, fmt.Errorf("HTTP %d", resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierrors.RemoteUnavailable("failed to read "+path, err)
	}
	return data, nil
}

// NavCategory is a category in the sidebar.
type NavCategory struct {
	Name          string           `json:"name" yaml:"name"`
	Slug          string           `json:"slug" yaml:"slug"`
	Count         int              `json:"count" yaml:"count"`
	Posts         []NavLink        `json:"posts" yaml:"posts"`
	Subcategories []NavSubcategory `json:"subcategories" yaml:"subcategories"`
}

// NavSubcategory is a subcategory in the sidebar.
type NavSubcategory struct {
	Name  string    `json:"name" yaml:"name"`
	Slug  string    `json:"slug" yaml:"slug"`
	Count int       `json:"count" yaml:"count"`
	Posts []NavLink `json:"posts" yaml:"posts"`
}

// NavLink links to one post page.
type NavLink struct {
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url" yaml:"url"`
}

// Sidebar builds the navigation tree. A category's count includes the posts
// of its subcategories.
func Sidebar(idx *blog.Index) []NavCategory {
	out := make([]NavCategory, 0, len(idx.Categories))
	for i := range idx.Categories {
		c := &idx.Categories[i]
		nc := NavCategory{
			Name:          c.Name,
			Slug:          c.Slug,
			Count:         c.PostCount(),
			Posts:         links(c.Slug, "", c.Posts),
			Subcategories: make([]NavSubcategory, 0, len(c.Subcategories)),
		}
		for j := range c.Subcategories {
			s := &c.Subcategories[j]
			nc.Subcategories = append(nc.Subcategories, NavSubcategory{
				Name:  s.Name,
				Slug:  s.Slug,
				Count: s.PostCount(),
				Posts: links(c.Slug, s.Slug, s.Posts),
			})
		}
		out = append(out, nc)
	}
	return out
}

func links(category, subcategory string, posts []blog.Post) []NavLink {
	out := make([]NavLink, 0, len(posts))
	for _, p := range posts {
		out = append(out, NavLink{Title: p.Title, URL: PostURL(blog.Locator{Category: category, Subcategory: subcategory, Slug: p.Slug})})
	}
	return out
}

// PostURL returns the relative URL of the page rendering the post.
func PostURL(loc blog.Locator) string {
	q := "category=" + url.QueryEscape(loc.Category)
	if loc.Subcategory != "" {
		q += "&subcategory=" + url.QueryEscape(loc.Subcategory)
	}
	return "post.html?" + q + "&slug=" + url.QueryEscape(loc.Slug)
}

// Home returns every post, newest first.
func Home(idx *blog.Index) []blog.Entry {
	entries := idx.Flatten()
	blog.SortNewestFirst(entries)
	return entries
}
