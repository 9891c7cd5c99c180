package blog

import (
	"strings"
)

// IndexPath is the repository path of the index document.
const IndexPath = "posts/index.json"

// Index is the whole taxonomy: categories, their subcategories and the
// metadata of every post.
type Index struct {
	Categories []Category `json:"categories" jsonschema:"description=Top level categories in display order"`
}

// Category is a top level grouping of posts.
type Category struct {
	Name          string        `json:"name" jsonschema:"description=Human readable name"`
	Slug          string        `json:"slug" jsonschema:"description=URL-safe identifier derived from the name,pattern=^[a-z0-9]+(-[a-z0-9]+)*$"`
	Posts         []Post        `json:"posts" jsonschema:"description=Posts filed directly under the category"`
	Subcategories []Subcategory `json:"subcategories" jsonschema:"description=Nested subcategories"`
}

// Subcategory is nested one level under a Category.
type Subcategory struct {
	Name  string `json:"name" jsonschema:"description=Human readable name"`
	Slug  string `json:"slug" jsonschema:"description=URL-safe identifier derived from the name,pattern=^[a-z0-9]+(-[a-z0-9]+)*$"`
	Posts []Post `json:"posts" jsonschema:"description=Posts filed under the subcategory"`
}

// Post is the index entry of a post. The body lives in the Markdown file at
// Locator.Path().
type Post struct {
	Slug    string `json:"slug" jsonschema:"description=File name of the Markdown body without extension"`
	Title   string `json:"title"`
	Date    string `json:"date" jsonschema:"description=Publication date, e.g. January 2, 2006"`
	Author  string `json:"author"`
	Excerpt string `json:"excerpt"`
}

// Locator identifies a post by its position in the taxonomy.
//
// Subcategory is empty for posts filed directly under a category.
type Locator struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	Slug        string `json:"slug"`
}

// Path returns the repository path of the post's Markdown file.
func (l Locator) Path() string {
	return PostPath(l.Category, l.Subcategory, l.Slug)
}

// String returns "category/[subcategory/]slug".
func (l Locator) String() string {
	if l.Subcategory == "" {
		return l.Category + "/" + l.Slug
	}
	return l.Category + "/" + l.Subcategory + "/" + l.Slug
}

// PostPath derives the Markdown file path of a post. The subcategory segment
// is omitted when subcategory is empty.
func PostPath(category, subcategory, slug string) string {
	var b strings.Builder
	b.WriteString("posts/")
	b.WriteString(category)
	b.WriteByte('/')
	if subcategory != "" {
		b.WriteString(subcategory)
		b.WriteByte('/')
	}
	b.WriteString(slug)
	b.WriteString(".md")
	return b.String()
}

// ParseLocator parses "category/slug" or "category/subcategory/slug".
func ParseLocator(s string) (Locator, bool) {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	for _, p := range parts {
		if p == "" {
			return Locator{}, false
		}
	}
	switch len(parts) {
	case 2:
		return Locator{Category: parts[0], Slug: parts[1]}, true
	case 3:
		return Locator{Category: parts[0], Subcategory: parts[1], Slug: parts[2]}, true
	default:
		return Locator{}, false
	}
}

// PostCount returns the number of posts filed directly under the category
// plus those in all of its subcategories.
func (c *Category) PostCount() int {
	n := len(c.Posts)
	for i := range c.Subcategories {
		n += len(c.Subcategories[i].Posts)
	}
	return n
}

// PostCount returns the number of posts in the subcategory.
func (s *Subcategory) PostCount() int {
	return len(s.Posts)
}

// TotalPosts returns the number of posts across the whole taxonomy.
func (idx *Index) TotalPosts() int {
	n := 0
	for i := range idx.Categories {
		n += idx.Categories[i].PostCount()
	}
	return n
}

// Category returns the category with the given slug.
func (idx *Index) Category(slug string) (*Category, bool) {
	for i := range idx.Categories {
		if idx.Categories[i].Slug == slug {
			return &idx.Categories[i], true
		}
	}
	return nil, false
}

// Subcategory returns the subcategory with the given slug.
func (c *Category) Subcategory(slug string) (*Subcategory, bool) {
	for i := range c.Subcategories {
		if c.Subcategories[i].Slug == slug {
			return &c.Subcategories[i], true
		}
	}
	return nil, false
}

// Post returns the index entry at loc.
func (idx *Index) Post(loc Locator) (Post, bool) {
	list := idx.postList(loc.Category, loc.Subcategory)
	if list == nil {
		return Post{}, false
	}
	if i := indexOfPost(*list, loc.Slug); i >= 0 {
		return (*list)[i], true
	}
	return Post{}, false
}

// Clone returns a deep copy of the index.
func (idx *Index) Clone() *Index {
	if idx == nil {
		return nil
	}
	out := &Index{Categories: make([]Category, len(idx.Categories))}
	for i, c := range idx.Categories {
		nc := Category{
			Name:          c.Name,
			Slug:          c.Slug,
			Posts:         append([]Post{}, c.Posts...),
			Subcategories: make([]Subcategory, len(c.Subcategories)),
		}
		for j, s := range c.Subcategories {
			nc.Subcategories[j] = Subcategory{
				Name:  s.Name,
				Slug:  s.Slug,
				Posts: append([]Post{}, s.Posts...),
			}
		}
		out.Categories[i] = nc
	}
	return out
}

// normalize replaces nil lists with empty ones so the document always
// serializes with explicit arrays.
func (idx *Index) normalize() {
	if idx.Categories == nil {
		idx.Categories = []Category{}
	}
	for i := range idx.Categories {
		c := &idx.Categories[i]
		if c.Posts == nil {
			c.Posts = []Post{}
		}
		if c.Subcategories == nil {
			c.Subcategories = []Subcategory{}
		}
		for j := range c.Subcategories {
			if c.Subcategories[j].Posts == nil {
				c.Subcategories[j].Posts = []Post{}
			}
		}
	}
}

// postList returns a pointer to the post list addressed by category and
// optional subcategory, or nil if either does not exist.
func (idx *Index) postList(category, subcategory string) *[]Post {
	c, ok := idx.Category(category)
	if !ok {
		return nil
	}
	if subcategory == "" {
		return &c.Posts
	}
	s, ok := c.Subcategory(subcategory)
	if !ok {
		return nil
	}
	return &s.Posts
}

func indexOfPost(posts []Post, slug string) int {
	for i := range posts {
		if posts[i].Slug == slug {
			return i
		}
	}
	return -1
}
