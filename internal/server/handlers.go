package server

import (
	"context"
	"encoding/json"
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/maruel/mdblog/internal/admin"
	"github.com/maruel/mdblog/internal/blog"
	apierrors "github.com/maruel/mdblog/internal/errors"
	"github.com/maruel/mdblog/internal/journal"
	"github.com/maruel/mdblog/internal/markdown"
)

// validate maps ozzo-validation errors to VALIDATION_FAILED with per-field
// details.
func validate(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if errors.As(err, &errs) {
		details := make(map[string]any, len(errs))
		for k, v := range errs {
			details[k] = v.Error()
		}
		return apierrors.Validation(err.Error()).WithDetails(details)
	}
	return apierrors.Validation(err.Error())
}

// postRef addresses a post through the URL.
type postRef struct {
	Category    string `json:"-" path:"category"`
	Slug        string `json:"-" path:"slug"`
	Subcategory string `json:"-" query:"subcategory"`
}

func (r *postRef) locator() blog.Locator {
	return blog.Locator{Category: r.Category, Subcategory: r.Subcategory, Slug: r.Slug}
}

func (r *postRef) Validate() error {
	return validate(validation.ValidateStruct(r,
		validation.Field(&r.Category, validation.Required),
		validation.Field(&r.Slug, validation.Required),
	))
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) health(context.Context, *emptyRequest) (*HealthResponse, error) {
	return &HealthResponse{Status: "ok", Version: s.opts.Version}, nil
}

func (s *Server) schema(context.Context, *emptyRequest) (*json.RawMessage, error) {
	data, err := blog.Schema()
	if err != nil {
		return nil, apierrors.InternalWithError("schema", err)
	}
	raw := json.RawMessage(data)
	return &raw, nil
}

// PostsResponse lists posts newest first.
type PostsResponse struct {
	Posts []blog.Entry `json:"posts"`
}

func (s *Server) listPosts(_ context.Context, c *client, _ *emptyRequest) (*PostsResponse, error) {
	entries, err := admin.NewDashboard(c.session).Posts()
	if err != nil {
		return nil, err
	}
	return &PostsResponse{Posts: entries}, nil
}

// PostResponse is one post with its body.
type PostResponse struct {
	blog.Entry
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	Body        string `json:"body"`
	HTML        string `json:"html"`
}

func newPostResponse(e blog.Entry, body string) (*PostResponse, error) {
	html, err := markdown.Render([]byte(body))
	if err != nil {
		return nil, apierrors.InternalWithError("render", err)
	}
	return &PostResponse{Entry: e, Category: e.CategorySlug, Subcategory: e.SubcategorySlug, Body: body, HTML: string(html)}, nil
}

func (s *Server) getPost(ctx context.Context, c *client, in *postRef) (*PostResponse, error) {
	e, body, err := admin.NewDashboard(c.session).Post(ctx, in.locator())
	if err != nil {
		return nil, err
	}
	return newPostResponse(e, body)
}

type createPostRequest struct {
	admin.Form
}

func (r *createPostRequest) Validate() error {
	return validate(validation.ValidateStruct(&r.Form,
		validation.Field(&r.Form.Title, validation.Required),
		validation.Field(&r.Form.Category, validation.Required),
	))
}

// createPost files a new post. Date and author default like in the editor,
// and the slug is derived from the title when empty.
func (s *Server) createPost(ctx context.Context, c *client, in *createPostRequest) (*PostResponse, error) {
	ed := s.editor(c)
	seed, err := ed.NewPost()
	if err != nil {
		return nil, err
	}
	f := in.Form
	if f.Date == "" {
		f.Date = seed.Date
	}
	if f.Author == "" {
		f.Author = seed.Author
	}
	e, err := ed.Save(ctx, f)
	if err != nil {
		return nil, err
	}
	return newPostResponse(e, f.Body)
}

// updatePostRequest carries the fields to change. A field absent from the
// body keeps its current value; a field sent empty is cleared.
type updatePostRequest struct {
	postRef
	Title       *string `json:"title"`
	Slug        *string `json:"slug"`
	Date        *string `json:"date"`
	Author      *string `json:"author"`
	Excerpt     *string `json:"excerpt"`
	Category    *string `json:"category"`
	Subcategory *string `json:"subcategory"`
	Body        *string `json:"body"`
}

func (r *updatePostRequest) Validate() error {
	return r.postRef.Validate()
}

// apply overlays the fields that were sent on f.
func (r *updatePostRequest) apply(f *admin.Form) {
	for _, p := range []struct{ dst, src *string }{
		{&f.Title, r.Title},
		{&f.Slug, r.Slug},
		{&f.Date, r.Date},
		{&f.Author, r.Author},
		{&f.Excerpt, r.Excerpt},
		{&f.Category, r.Category},
		{&f.Subcategory, r.Subcategory},
		{&f.Body, r.Body},
	} {
		if p.src != nil {
			*p.dst = *p.src
		}
	}
}

// updatePost changes the post at the URL. Sending category or subcategory
// moves it; sending an empty subcategory makes it a direct post of its
// category.
func (s *Server) updatePost(ctx context.Context, c *client, in *updatePostRequest) (*PostResponse, error) {
	ed := s.editor(c)
	f, err := ed.EditPost(ctx, in.locator())
	if err != nil {
		return nil, err
	}
	in.apply(&f)
	e, err := ed.Save(ctx, f)
	if err != nil {
		return nil, err
	}
	return newPostResponse(e, f.Body)
}

func (s *Server) deletePost(ctx context.Context, c *client, in *postRef) (*okResponse, error) {
	if err := s.editor(c).DeletePost(ctx, in.locator()); err != nil {
		return nil, err
	}
	return &okResponse{OK: true}, nil
}

// editor returns a draft editor for one request. Requests of the same API
// session do not share drafts; concurrent saves still meet on the index
// hash.
func (s *Server) editor(c *client) *admin.Editor {
	return admin.NewEditor(c.session, s.opts.DefaultAuthor)
}

// CategoriesResponse lists the taxonomy with post counts.
type CategoriesResponse struct {
	Categories []admin.CategorySummary `json:"categories"`
}

func (s *Server) listCategories(_ context.Context, c *client, _ *emptyRequest) (*CategoriesResponse, error) {
	list, err := admin.NewCategories(c.session).List()
	if err != nil {
		return nil, err
	}
	return &CategoriesResponse{Categories: list}, nil
}

type nameRequest struct {
	Category string `json:"-" path:"category"`
	Name     string `json:"name"`
}

func (r *nameRequest) Validate() error {
	return validate(validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 100)),
	))
}

func (s *Server) addCategory(ctx context.Context, c *client, in *nameRequest) (*blog.Category, error) {
	cat, err := admin.NewCategories(c.session).AddCategory(ctx, in.Name)
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

func (s *Server) addSubcategory(ctx context.Context, c *client, in *nameRequest) (*blog.Subcategory, error) {
	sub, err := admin.NewCategories(c.session).AddSubcategory(ctx, in.Category, in.Name)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

type categoryRef struct {
	Category    string `json:"-" path:"category"`
	Subcategory string `json:"-" path:"subcategory"`
}

func (r *categoryRef) Validate() error {
	return validate(validation.ValidateStruct(r, validation.Field(&r.Category, validation.Required)))
}

func (s *Server) removeCategory(ctx context.Context, c *client, in *categoryRef) (*okResponse, error) {
	if err := admin.NewCategories(c.session).RemoveCategory(ctx, in.Category); err != nil {
		return nil, err
	}
	return &okResponse{OK: true}, nil
}

func (s *Server) removeSubcategory(ctx context.Context, c *client, in *categoryRef) (*okResponse, error) {
	if err := admin.NewCategories(c.session).RemoveSubcategory(ctx, in.Category, in.Subcategory); err != nil {
		return nil, err
	}
	return &okResponse{OK: true}, nil
}

// RefreshResponse reports the session after the index was fetched again.
type RefreshResponse struct {
	State string `json:"state"`
	Posts int    `json:"posts"`
}

func (s *Server) refresh(ctx context.Context, c *client, _ *emptyRequest) (*RefreshResponse, error) {
	if err := c.session.Refresh(ctx); err != nil {
		return nil, err
	}
	index, err := c.session.Index()
	if err != nil {
		return nil, err
	}
	return &RefreshResponse{State: c.session.State().String(), Posts: index.Snapshot().TotalPosts()}, nil
}

// CheckResponse lists inconsistencies between the index and the files.
type CheckResponse struct {
	Problems []admin.Problem `json:"problems"`
}

func (s *Server) check(ctx context.Context, c *client, _ *emptyRequest) (*CheckResponse, error) {
	problems, err := admin.NewDashboard(c.session).Check(ctx)
	if err != nil {
		return nil, err
	}
	if problems == nil {
		problems = []admin.Problem{}
	}
	return &CheckResponse{Problems: problems}, nil
}

type previewRequest struct {
	Markdown string `json:"markdown"`
}

func (*previewRequest) Validate() error { return nil }

// PreviewResponse is rendered HTML. Raw HTML in the source is omitted.
type PreviewResponse struct {
	HTML string `json:"html"`
}

func (s *Server) preview(_ context.Context, _ *client, in *previewRequest) (*PreviewResponse, error) {
	html, err := markdown.Render([]byte(in.Markdown))
	if err != nil {
		return nil, apierrors.InternalWithError("render", err)
	}
	return &PreviewResponse{HTML: string(html)}, nil
}

type activityRequest struct {
	Limit int `json:"-" query:"limit"`
}

func (r *activityRequest) Validate() error {
	return validate(validation.ValidateStruct(r,
		validation.Field(&r.Limit, validation.Min(0), validation.Max(journal.DefaultMaxEntries)),
	))
}

// ActivityResponse lists the commits recorded by this server, newest first.
type ActivityResponse struct {
	Entries []journal.Entry `json:"entries"`
}

func (s *Server) activity(_ context.Context, _ *client, in *activityRequest) (*ActivityResponse, error) {
	if s.opts.Activity == nil {
		return &ActivityResponse{Entries: []journal.Entry{}}, nil
	}
	limit := in.Limit
	if limit == 0 {
		limit = 50
	}
	return &ActivityResponse{Entries: s.opts.Activity.Last(limit)}, nil
}
