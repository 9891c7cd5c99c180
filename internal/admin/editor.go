package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/maruel/mdblog/internal/blog"
	apierrors "github.com/maruel/mdblog/internal/errors"
)

// DefaultAuthor seeds the author of new posts.
const DefaultAuthor = "Bean"

// EditorState is the state of the post edit workflow.
type EditorState int

// Editor states. Idle → Creating|Editing → Saving → Idle, or back to
// Creating|Editing when the save fails.
const (
	EditorIdle EditorState = iota
	EditorCreating
	EditorEditing
	EditorSaving
)

func (s EditorState) String() string {
	switch s {
	case EditorIdle:
		return "idle"
	case EditorCreating:
		return "creating"
	case EditorEditing:
		return "editing"
	case EditorSaving:
		return "saving"
	default:
		return "unknown"
	}
}

// Form is the editable content of a post.
type Form struct {
	Title       string `json:"title" yaml:"title"`
	Slug        string `json:"slug" yaml:"slug"`
	Date        string `json:"date" yaml:"date"`
	Author      string `json:"author" yaml:"author"`
	Excerpt     string `json:"excerpt" yaml:"excerpt"`
	Category    string `json:"category" yaml:"category"`
	Subcategory string `json:"subcategory,omitempty" yaml:"subcategory,omitempty"`
	Body        string `json:"body" yaml:"body"`
}

// Validate checks the required fields. The slug must already be in
// canonical form.
func (f *Form) Validate() error {
	err := validation.ValidateStruct(f,
		validation.Field(&f.Title, validation.Required),
		validation.Field(&f.Slug, validation.Required, validation.By(func(value any) error {
			if s, _ := value.(string); s != "" && !blog.IsValidSlug(s) {
				return validation.NewError("mdblog.post.slug_invalid", "must be lowercase letters, digits and single hyphens, e.g. "+blog.Slugify(s))
			}
			return nil
		})),
		validation.Field(&f.Date, validation.Required),
		validation.Field(&f.Author, validation.Required),
		validation.Field(&f.Category, validation.Required),
	)
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if errors.As(err, &errs) {
		details := make(map[string]any, len(errs))
		for k, v := range errs {
			details[k] = v.Error()
		}
		return apierrors.Validation("invalid post: " + err.Error()).WithDetails(details)
	}
	return apierrors.Validation(err.Error())
}

func (f *Form) trim() {
	for _, p := range []*string{&f.Title, &f.Slug, &f.Date, &f.Author, &f.Excerpt, &f.Category, &f.Subcategory} {
		*p = strings.TrimSpace(*p)
	}
}

func (f *Form) post() blog.Post {
	return blog.Post{Slug: f.Slug, Title: f.Title, Date: f.Date, Author: f.Author, Excerpt: f.Excerpt}
}

func (f *Form) locator() blog.Locator {
	return blog.Locator{Category: f.Category, Subcategory: f.Subcategory, Slug: f.Slug}
}

// original is the post being edited, as last read.
type original struct {
	loc  blog.Locator
	post blog.Post
	body string
	sha  string
}

// Editor drives creating, editing and deleting one post at a time.
type Editor struct {
	session       *Session
	defaultAuthor string
	now           func() time.Time

	mu    sync.Mutex
	state EditorState
	orig  *original
}

// NewEditor returns an idle editor. An empty defaultAuthor means
// DefaultAuthor.
func NewEditor(s *Session, defaultAuthor string) *Editor {
	if defaultAuthor == "" {
		defaultAuthor = DefaultAuthor
	}
	return &Editor{session: s, defaultAuthor: defaultAuthor, now: time.Now}
}

// State returns the workflow state.
func (e *Editor) State() EditorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// NewPost starts a new post and returns the form seeded with today's date and
// the default author. Any draft in progress is discarded.
func (e *Editor) NewPost() (Form, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == EditorSaving {
		return Form{}, apierrors.Busy("save")
	}
	e.state, e.orig = EditorCreating, nil
	return Form{Date: e.now().Format(blog.DateLayout), Author: e.defaultAuthor}, nil
}

// EditPost starts editing the post at loc and returns the form seeded from
// its index entry and body.
func (e *Editor) EditPost(ctx context.Context, loc blog.Locator) (Form, error) {
	e.mu.Lock()
	if e.state == EditorSaving {
		e.mu.Unlock()
		return Form{}, apierrors.Busy("save")
	}
	e.mu.Unlock()
	index, files, err := e.session.active()
	if err != nil {
		return Form{}, err
	}
	p, ok := index.Snapshot().Post(loc)
	if !ok {
		return Form{}, apierrors.NotFound("post " + loc.String())
	}
	body, sha, err := files.Read(ctx, loc.Path())
	if err != nil {
		return Form{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == EditorSaving {
		return Form{}, apierrors.Busy("save")
	}
	e.state = EditorEditing
	e.orig = &original{loc: loc, post: p, body: body, sha: sha}
	return Form{
		Title:       p.Title,
		Slug:        p.Slug,
		Date:        p.Date,
		Author:      p.Author,
		Excerpt:     p.Excerpt,
		Category:    loc.Category,
		Subcategory: loc.Subcategory,
		Body:        body,
	}, nil
}

// Cancel discards the draft.
func (e *Editor) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == EditorSaving {
		return apierrors.Busy("save")
	}
	e.state, e.orig = EditorIdle, nil
	return nil
}

// Save persists the draft.
//
// The new body is written first, then the old file is deleted when the post
// moved, and the index is committed last. When a later step fails the
// earlier ones are undone: the new file is deleted and the old content is
// restored. Compensation failures are logged and joined to the returned
// error. On failure the editor returns to its previous state with the draft
// intact.
func (e *Editor) Save(ctx context.Context, f Form) (blog.Entry, error) {
	e.mu.Lock()
	prev := e.state
	switch prev {
	case EditorSaving:
		e.mu.Unlock()
		return blog.Entry{}, apierrors.Busy("save")
	case EditorIdle:
		e.mu.Unlock()
		return blog.Entry{}, apierrors.Validation("no post is being edited")
	}
	orig := e.orig
	e.state = EditorSaving
	e.mu.Unlock()

	entry, err := e.save(ctx, f, orig)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.state = prev
		return blog.Entry{}, err
	}
	e.state, e.orig = EditorIdle, nil
	return entry, nil
}

func (e *Editor) save(ctx context.Context, f Form, orig *original) (blog.Entry, error) {
	f.trim()
	if orig == nil && f.Slug == "" {
		f.Slug = blog.Slugify(f.Title)
	}
	if err := f.Validate(); err != nil {
		return blog.Entry{}, err
	}
	index, files, err := e.session.active()
	if err != nil {
		return blog.Entry{}, err
	}

	target := f.locator()
	p := f.post()
	transform := func(idx *blog.Index) (*blog.Index, error) {
		if orig == nil {
			return idx.WithPost(target.Category, target.Subcategory, p)
		}
		return idx.ReplacePost(orig.loc, target.Category, target.Subcategory, p)
	}
	// Validate the index change before touching any file.
	staged, err := transform(index.Snapshot())
	if err != nil {
		return blog.Entry{}, err
	}

	var (
		fileMsg, indexMsg string
		moved             = orig != nil && target != orig.loc
		writeSHA          string
	)
	switch {
	case orig == nil:
		fileMsg, indexMsg = "Add post: "+p.Title, "Add to index: "+p.Title
	case moved:
		fileMsg, indexMsg = fmt.Sprintf("Move post: %s -> %s", orig.loc, target), "Update index: "+p.Title
	default:
		fileMsg, indexMsg = "Update post: "+p.Title, "Update index: "+p.Title
		writeSHA = orig.sha
	}

	newSHA, err := files.Write(ctx, target.Path(), f.Body, fileMsg, writeSHA)
	if err != nil {
		return blog.Entry{}, err
	}
	if moved {
		if err := files.Remove(ctx, orig.loc.Path(), orig.sha, fileMsg); err != nil {
			return blog.Entry{}, e.compensate(ctx, err, func() error {
				return files.Remove(ctx, target.Path(), newSHA, "Revert post: "+p.Title)
			})
		}
	}
	if _, err := index.Update(ctx, indexMsg, transform); err != nil {
		return blog.Entry{}, e.compensate(ctx, err, func() error {
			switch {
			case orig == nil:
				return files.Remove(ctx, target.Path(), newSHA, "Revert post: "+p.Title)
			case moved:
				var errs []error
				if err := files.Remove(ctx, target.Path(), newSHA, "Revert post: "+p.Title); err != nil {
					errs = append(errs, err)
				}
				if _, err := files.Write(ctx, orig.loc.Path(), orig.body, "Restore post: "+orig.post.Title, ""); err != nil {
					errs = append(errs, err)
				}
				return errors.Join(errs...)
			default:
				_, err := files.Write(ctx, orig.loc.Path(), orig.body, "Restore post: "+orig.post.Title, newSHA)
				return err
			}
		})
	}
	slog.InfoContext(ctx, "Post saved", "path", target.Path(), "moved", moved)

	entry := blog.Entry{Post: p, CategorySlug: target.Category, SubcategorySlug: target.Subcategory}
	if c, ok := staged.Category(target.Category); ok {
		entry.CategoryName = c.Name
		if s, ok := c.Subcategory(target.Subcategory); ok {
			entry.SubcategoryName = s.Name
		}
	}
	return entry, nil
}

// compensate runs undo after a failed step and returns cause, joined with the
// undo failure if any.
func (e *Editor) compensate(ctx context.Context, cause error, undo func() error) error {
	if err := undo(); err != nil {
		slog.ErrorContext(ctx, "Failed to undo partial save; files and index may disagree", "err", err, "cause", cause)
		return errors.Join(cause, fmt.Errorf("undo failed: %w", err))
	}
	slog.WarnContext(ctx, "Partial save undone", "cause", cause)
	return cause
}

// DeletePost deletes the post file and removes its index entry. When the
// index commit fails the file is restored and the index fetched again. A
// missing file only removes the index entry.
func (e *Editor) DeletePost(ctx context.Context, loc blog.Locator) error {
	e.mu.Lock()
	if e.state == EditorSaving {
		e.mu.Unlock()
		return apierrors.Busy("save")
	}
	prev := e.state
	e.state = EditorSaving
	e.mu.Unlock()
	err := e.deletePost(ctx, loc)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = prev
	if err == nil && e.orig != nil && e.orig.loc == loc {
		e.state, e.orig = EditorIdle, nil
	}
	return err
}

func (e *Editor) deletePost(ctx context.Context, loc blog.Locator) error {
	index, files, err := e.session.active()
	if err != nil {
		return err
	}
	p, ok := index.Snapshot().Post(loc)
	if !ok {
		return apierrors.NotFound("post " + loc.String())
	}
	path := loc.Path()
	body, sha, err := files.Read(ctx, path)
	switch {
	case apierrors.IsNotFound(err):
		slog.WarnContext(ctx, "Post file already missing", "path", path)
		sha = ""
	case err != nil:
		return err
	default:
		if err := files.Remove(ctx, path, sha, "Delete post: "+p.Title); err != nil {
			return err
		}
	}
	_, err = index.Update(ctx, "Remove from index: "+p.Title, func(idx *blog.Index) (*blog.Index, error) {
		return idx.WithoutPost(loc)
	})
	if err == nil {
		slog.InfoContext(ctx, "Post deleted", "path", path)
		return nil
	}
	if !apierrors.IsConflict(err) {
		if ferr := index.Fetch(ctx); ferr != nil {
			slog.ErrorContext(ctx, "Re-fetch failed", "err", ferr)
		}
	}
	if sha == "" {
		return err
	}
	return e.compensate(ctx, err, func() error {
		_, err := files.Write(ctx, path, body, "Restore post: "+p.Title, "")
		return err
	})
}
