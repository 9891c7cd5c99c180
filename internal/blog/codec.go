package blog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Marshal serializes the index the way it is stored in the repository: UTF-8
// JSON with 4-space indentation and a trailing newline. HTML characters are
// not escaped.
func Marshal(idx *Index) ([]byte, error) {
	c := idx.Clone()
	if c == nil {
		c = &Index{}
	}
	c.normalize()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode index: %w", err)
	}
	// Encode terminates the document with exactly one newline.
	return buf.Bytes(), nil
}

// Parse decodes an index document. Missing lists are replaced with empty ones.
func Parse(data []byte) (*Index, error) {
	idx := &Index{}
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, fmt.Errorf("failed to parse index: %w", err)
	}
	idx.normalize()
	return idx, nil
}
