package blog

import (
	"slices"
	"strings"
	"time"
)

// DateLayout is the format used for new posts' dates.
const DateLayout = "January 2, 2006"

// dateLayouts are tried in order by ParseDate.
var dateLayouts = []string{
	DateLayout,
	"Jan 2, 2006",
	"January 2 2006",
	"2 January 2006",
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"01/02/2006",
}

// Entry is a post annotated with its position in the taxonomy.
type Entry struct {
	Post
	CategoryName    string `json:"category_name"`
	CategorySlug    string `json:"category_slug"`
	SubcategoryName string `json:"subcategory_name,omitempty"`
	SubcategorySlug string `json:"subcategory_slug,omitempty"`
}

// Locator returns the entry's position.
func (e *Entry) Locator() Locator {
	return Locator{Category: e.CategorySlug, Subcategory: e.SubcategorySlug, Slug: e.Slug}
}

// Label returns "Category" or "Category / Subcategory".
func (e *Entry) Label() string {
	if e.SubcategoryName == "" {
		return e.CategoryName
	}
	return e.CategoryName + " / " + e.SubcategoryName
}

// Flatten lists every post of the taxonomy in document order: for each
// category, its direct posts then the posts of each subcategory.
func (idx *Index) Flatten() []Entry {
	out := make([]Entry, 0, idx.TotalPosts())
	for _, c := range idx.Categories {
		for _, p := range c.Posts {
			out = append(out, Entry{Post: p, CategoryName: c.Name, CategorySlug: c.Slug})
		}
		for _, s := range c.Subcategories {
			for _, p := range s.Posts {
				out = append(out, Entry{
					Post:            p,
					CategoryName:    c.Name,
					CategorySlug:    c.Slug,
					SubcategoryName: s.Name,
					SubcategorySlug: s.Slug,
				})
			}
		}
	}
	return out
}

// ParseDate parses a post date. It accepts the long English form used by the
// editor as well as ISO dates.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SortNewestFirst sorts entries by parsed date, newest first. The sort is
// stable; entries whose date cannot be parsed keep their relative order and
// sort after all dated entries.
func SortNewestFirst(entries []Entry) {
	type keyed struct {
		t  time.Time
		ok bool
	}
	dates := make([]keyed, len(entries))
	for i := range entries {
		t, ok := ParseDate(entries[i].Date)
		dates[i] = keyed{t, ok}
	}
	perm := make([]int, len(entries))
	for i := range perm {
		perm[i] = i
	}
	slices.SortStableFunc(perm, func(a, b int) int {
		da, db := dates[a], dates[b]
		switch {
		case da.ok && !db.ok:
			return -1
		case !da.ok && db.ok:
			return 1
		case !da.ok && !db.ok:
			return 0
		}
		return db.t.Compare(da.t)
	})
	sorted := make([]Entry, len(entries))
	for i, p := range perm {
		sorted[i] = entries[p]
	}
	copy(entries, sorted)
}
