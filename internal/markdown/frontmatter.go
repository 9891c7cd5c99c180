package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/adrg/frontmatter"

	"github.com/maruel/mdblog/internal/blog"
)

// Meta is the post metadata found in a front matter header. Posts are stored
// without front matter; the header only serves to import a file.
type Meta struct {
	Title       string `yaml:"title" toml:"title" json:"title"`
	Slug        string `yaml:"slug" toml:"slug" json:"slug"`
	Date        string `yaml:"date" toml:"date" json:"date"`
	Author      string `yaml:"author" toml:"author" json:"author"`
	Excerpt     string `yaml:"excerpt" toml:"excerpt" json:"excerpt"`
	Category    string `yaml:"category" toml:"category" json:"category"`
	Subcategory string `yaml:"subcategory" toml:"subcategory" json:"subcategory"`
}

// SplitFrontMatter separates the front matter header (YAML, TOML or JSON) from
// the Markdown body. A file without a header returns zero Meta and the whole
// input. Dates that parse are rewritten in blog.DateLayout.
func SplitFrontMatter(data []byte) (Meta, []byte, error) {
	var meta Meta
	body, err := frontmatter.Parse(bytes.NewReader(data), &meta)
	if err != nil {
		return Meta{}, nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	meta.Date = strings.TrimSpace(meta.Date)
	if t, ok := blog.ParseDate(meta.Date); ok {
		meta.Date = t.Format(blog.DateLayout)
	}
	return meta, bytes.TrimLeft(body, "\r\n"), nil
}
