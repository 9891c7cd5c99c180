// Package blog defines the index document that describes the blog taxonomy
// and the pure transformations applied to it.
//
// The index document (posts/index.json) is the single source of truth for
// categories, subcategories and post metadata. Post bodies live in separate
// Markdown files whose path is derived from the post's location in the
// taxonomy:
//
//	posts/<category-slug>/[<subcategory-slug>/]<post-slug>.md
//
// Every mutation in this package returns a new *Index and leaves the receiver
// untouched, so callers can stage a change, write it remotely, and only then
// replace their cached copy.
package blog
