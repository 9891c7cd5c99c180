package blog

import (
	"strings"
	"unicode"
)

// Slugify derives a URL-safe identifier from a human readable name.
//
// The input is lowercased and trimmed, characters other than ASCII letters,
// digits, whitespace, '_' and '-' are dropped, runs of whitespace, '_' and '-'
// become a single '-', and leading and trailing hyphens are removed.
// Slugify(Slugify(x)) == Slugify(x).
func Slugify(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(name))
	sep := false
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if sep && b.Len() > 0 {
				b.WriteByte('-')
			}
			sep = false
			b.WriteRune(r)
		case r == '-' || r == '_' || unicode.IsSpace(r):
			sep = true
		}
	}
	return b.String()
}

// IsValidSlug reports whether s is already in canonical slug form.
func IsValidSlug(s string) bool {
	return s != "" && Slugify(s) == s
}
