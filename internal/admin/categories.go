package admin

import (
	"context"
	"strings"

	"github.com/maruel/mdblog/internal/blog"
	apierrors "github.com/maruel/mdblog/internal/errors"
)

// Categories manages the taxonomy. Every change is one index commit.
type Categories struct {
	session *Session
}

// NewCategories returns the category manager of s.
func NewCategories(s *Session) *Categories {
	return &Categories{session: s}
}

// CategorySummary describes a category with its post counts.
type CategorySummary struct {
	Name          string               `json:"name" yaml:"name"`
	Slug          string               `json:"slug" yaml:"slug"`
	Posts         int                  `json:"posts" yaml:"posts"`
	Removable     bool                 `json:"removable" yaml:"removable"`
	Subcategories []SubcategorySummary `json:"subcategories" yaml:"subcategories"`
}

// SubcategorySummary describes a subcategory with its post count.
type SubcategorySummary struct {
	Name      string `json:"name" yaml:"name"`
	Slug      string `json:"slug" yaml:"slug"`
	Posts     int    `json:"posts" yaml:"posts"`
	Removable bool   `json:"removable" yaml:"removable"`
}

// List returns the categories in document order. Removable is set only when
// the post count is zero.
func (c *Categories) List() ([]CategorySummary, error) {
	index, err := c.session.Index()
	if err != nil {
		return nil, err
	}
	doc := index.Snapshot()
	out := make([]CategorySummary, 0, len(doc.Categories))
	for i := range doc.Categories {
		cat := &doc.Categories[i]
		n := cat.PostCount()
		cs := CategorySummary{Name: cat.Name, Slug: cat.Slug, Posts: n, Removable: n == 0, Subcategories: make([]SubcategorySummary, 0, len(cat.Subcategories))}
		for j := range cat.Subcategories {
			sub := &cat.Subcategories[j]
			m := sub.PostCount()
			cs.Subcategories = append(cs.Subcategories, SubcategorySummary{Name: sub.Name, Slug: sub.Slug, Posts: m, Removable: m == 0})
		}
		out = append(out, cs)
	}
	return out, nil
}

// AddCategory appends a category. Its slug is derived from name and must be
// unique among categories.
func (c *Categories) AddCategory(ctx context.Context, name string) (blog.Category, error) {
	doc, err := c.update(ctx, "Add category: "+strings.TrimSpace(name), func(idx *blog.Index) (*blog.Index, error) {
		return idx.WithCategory(name)
	})
	if err != nil {
		return blog.Category{}, err
	}
	cat := doc.Categories[len(doc.Categories)-1]
	return cat, nil
}

// RemoveCategory removes an empty category.
func (c *Categories) RemoveCategory(ctx context.Context, slug string) error {
	name := slug
	if index, err := c.session.Index(); err == nil {
		if cat, ok := index.Snapshot().Category(slug); ok {
			name = cat.Name
		}
	}
	_, err := c.update(ctx, "Remove category: "+name, func(idx *blog.Index) (*blog.Index, error) {
		return idx.WithoutCategory(slug)
	})
	return err
}

// AddSubcategory appends a subcategory to the category. Its slug must be
// unique within the category.
func (c *Categories) AddSubcategory(ctx context.Context, category, name string) (blog.Subcategory, error) {
	doc, err := c.update(ctx, "Add subcategory: "+strings.TrimSpace(name), func(idx *blog.Index) (*blog.Index, error) {
		return idx.WithSubcategory(category, name)
	})
	if err != nil {
		return blog.Subcategory{}, err
	}
	cat, ok := doc.Category(category)
	if !ok || len(cat.Subcategories) == 0 {
		return blog.Subcategory{}, apierrors.Internal("subcategory missing after commit")
	}
	return cat.Subcategories[len(cat.Subcategories)-1], nil
}

// RemoveSubcategory removes an empty subcategory.
func (c *Categories) RemoveSubcategory(ctx context.Context, category, slug string) error {
	name := slug
	if index, err := c.session.Index(); err == nil {
		if cat, ok := index.Snapshot().Category(category); ok {
			if sub, ok := cat.Subcategory(slug); ok {
				name = sub.Name
			}
		}
	}
	_, err := c.update(ctx, "Remove subcategory: "+name, func(idx *blog.Index) (*blog.Index, error) {
		return idx.WithoutSubcategory(category, slug)
	})
	return err
}

func (c *Categories) update(ctx context.Context, message string, fn func(*blog.Index) (*blog.Index, error)) (*blog.Index, error) {
	index, err := c.session.Index()
	if err != nil {
		return nil, err
	}
	return index.Update(ctx, message, fn)
}
