package blog

import (
	"fmt"
	"slices"
	"strings"

	apierrors "github.com/maruel/mdblog/internal/errors"
)

// WithCategory returns a copy of the index with a new empty category appended.
// The slug is derived from name and must be unique among categories.
func (idx *Index) WithCategory(name string) (*Index, error) {
	name = strings.TrimSpace(name)
	slug, err := newSlug(name)
	if err != nil {
		return nil, err
	}
	if _, ok := idx.Category(slug); ok {
		return nil, apierrors.Validation(fmt.Sprintf("category %q already exists", slug)).WithDetail("slug", slug)
	}
	out := idx.Clone()
	out.Categories = append(out.Categories, Category{Name: name, Slug: slug, Posts: []Post{}, Subcategories: []Subcategory{}})
	return out, nil
}

// WithoutCategory returns a copy of the index without the category. Only
// categories holding no posts, directly or in subcategories, can be removed.
func (idx *Index) WithoutCategory(slug string) (*Index, error) {
	c, ok := idx.Category(slug)
	if !ok {
		return nil, apierrors.NotFound("category " + slug)
	}
	if n := c.PostCount(); n != 0 {
		return nil, apierrors.Validation(fmt.Sprintf("category %q still has %d post(s)", slug, n)).WithDetail("posts", n)
	}
	out := idx.Clone()
	out.Categories = slices.DeleteFunc(out.Categories, func(c Category) bool { return c.Slug == slug })
	return out, nil
}

// WithSubcategory returns a copy of the index with a new empty subcategory
// appended to the category. The slug must be unique within the category.
func (idx *Index) WithSubcategory(category, name string) (*Index, error) {
	name = strings.TrimSpace(name)
	slug, err := newSlug(name)
	if err != nil {
		return nil, err
	}
	out := idx.Clone()
	c, ok := out.Category(category)
	if !ok {
		return nil, apierrors.NotFound("category " + category)
	}
	if _, ok := c.Subcategory(slug); ok {
		return nil, apierrors.Validation(fmt.Sprintf("subcategory %q already exists in %q", slug, category)).WithDetail("slug", slug)
	}
	c.Subcategories = append(c.Subcategories, Subcategory{Name: name, Slug: slug, Posts: []Post{}})
	return out, nil
}

// WithoutSubcategory returns a copy of the index without the subcategory.
// Only empty subcategories can be removed.
func (idx *Index) WithoutSubcategory(category, slug string) (*Index, error) {
	out := idx.Clone()
	c, ok := out.Category(category)
	if !ok {
		return nil, apierrors.NotFound("category " + category)
	}
	s, ok := c.Subcategory(slug)
	if !ok {
		return nil, apierrors.NotFound("subcategory " + category + "/" + slug)
	}
	if n := s.PostCount(); n != 0 {
		return nil, apierrors.Validation(fmt.Sprintf("subcategory %q still has %d post(s)", slug, n)).WithDetail("posts", n)
	}
	c.Subcategories = slices.DeleteFunc(c.Subcategories, func(s Subcategory) bool { return s.Slug == slug })
	return out, nil
}

// WithPost returns a copy of the index with p appended to the list at
// category/subcategory. p.Slug must be unique within that list.
func (idx *Index) WithPost(category, subcategory string, p Post) (*Index, error) {
	out := idx.Clone()
	if err := out.appendPost(category, subcategory, p); err != nil {
		return nil, err
	}
	return out, nil
}

// WithoutPost returns a copy of the index without the entry at loc.
func (idx *Index) WithoutPost(loc Locator) (*Index, error) {
	out := idx.Clone()
	if err := out.removePost(loc); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplacePost removes the entry at old and appends p to the list at
// category/subcategory. This is how an edit is recorded, whether or not the
// post moved.
func (idx *Index) ReplacePost(old Locator, category, subcategory string, p Post) (*Index, error) {
	out := idx.Clone()
	if err := out.removePost(old); err != nil {
		return nil, err
	}
	if err := out.appendPost(category, subcategory, p); err != nil {
		return nil, err
	}
	return out, nil
}

func (idx *Index) appendPost(category, subcategory string, p Post) error {
	if !IsValidSlug(p.Slug) {
		return apierrors.Validation(fmt.Sprintf("invalid post slug %q", p.Slug)).WithDetail("field", "slug")
	}
	list := idx.postList(category, subcategory)
	if list == nil {
		if subcategory != "" {
			return apierrors.NotFound("subcategory " + category + "/" + subcategory)
		}
		return apierrors.NotFound("category " + category)
	}
	if indexOfPost(*list, p.Slug) >= 0 {
		return apierrors.Validation(fmt.Sprintf("post %q already exists", PostPath(category, subcategory, p.Slug))).WithDetail("field", "slug")
	}
	*list = append(*list, p)
	return nil
}

func (idx *Index) removePost(loc Locator) error {
	list := idx.postList(loc.Category, loc.Subcategory)
	if list == nil {
		return apierrors.NotFound("post " + loc.String())
	}
	i := indexOfPost(*list, loc.Slug)
	if i < 0 {
		return apierrors.NotFound("post " + loc.String())
	}
	*list = slices.Delete(*list, i, i+1)
	return nil
}

func newSlug(name string) (string, error) {
	if name == "" {
		return "", apierrors.Validation("name is required").WithDetail("field", "name")
	}
	slug := Slugify(name)
	if slug == "" {
		return "", apierrors.Validation(fmt.Sprintf("name %q has no URL-safe characters", name)).WithDetail("field", "name")
	}
	return slug, nil
}

// Validate checks the structural invariants of the document: non-empty,
// canonical and sibling-unique slugs for categories, subcategories and posts.
func (idx *Index) Validate() error {
	cats := make(map[string]struct{}, len(idx.Categories))
	for _, c := range idx.Categories {
		if !IsValidSlug(c.Slug) {
			return apierrors.Validation(fmt.Sprintf("category %q has invalid slug %q", c.Name, c.Slug))
		}
		if _, dup := cats[c.Slug]; dup {
			return apierrors.Validation(fmt.Sprintf("duplicate category slug %q", c.Slug))
		}
		cats[c.Slug] = struct{}{}
		if err := validatePosts(c.Posts, c.Slug, ""); err != nil {
			return err
		}
		subs := make(map[string]struct{}, len(c.Subcategories))
		for _, s := range c.Subcategories {
			if !IsValidSlug(s.Slug) {
				return apierrors.Validation(fmt.Sprintf("subcategory %q has invalid slug %q", s.Name, s.Slug))
			}
			if _, dup := subs[s.Slug]; dup {
				return apierrors.Validation(fmt.Sprintf("duplicate subcategory slug %q in %q", s.Slug, c.Slug))
			}
			subs[s.Slug] = struct{}{}
			if err := validatePosts(s.Posts, c.Slug, s.Slug); err != nil {
				return err
			}
		}
	}
	return nil
}

func validatePosts(posts []Post, category, subcategory string) error {
	seen := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		path := PostPath(category, subcategory, p.Slug)
		if !IsValidSlug(p.Slug) {
			return apierrors.Validation(fmt.Sprintf("post %q has invalid slug", path))
		}
		if _, dup := seen[p.Slug]; dup {
			return apierrors.Validation(fmt.Sprintf("duplicate post %q", path))
		}
		seen[p.Slug] = struct{}{}
	}
	return nil
}
