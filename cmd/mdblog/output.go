package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	apierrors "github.com/maruel/mdblog/internal/errors"
	"gopkg.in/yaml.v3"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// success prints a line in green with a check mark.
func success(w io.Writer, format string, a ...any) {
	_, _ = green.Fprintf(w, "✓ %s\n", fmt.Sprintf(format, a...))
}

func warning(w io.Writer, format string, a ...any) {
	_, _ = yellow.Fprintf(w, "⚠️  %s\n", fmt.Sprintf(format, a...))
}

// printError prints err with the remedy matching its code.
func printError(w io.Writer, err error) {
	code := apierrors.CodeOf(err)
	_, _ = red.Fprintf(w, "%s\n", err)
	if d := detailsOf(err); len(d) != 0 {
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "  %s: %v\n", k, d[k])
		}
	}
	switch code {
	case apierrors.ErrAuthInvalid:
		_, _ = fmt.Fprintln(w, "\nRun 'mdblog login' or pass --token.")
	case apierrors.ErrConflict:
		_, _ = fmt.Fprintln(w, "\nThe index changed remotely and was fetched again. Re-run the command to retry.")
	case apierrors.ErrRemoteUnavailable:
		_, _ = fmt.Fprintln(w, "\nThe repository could not be reached. Nothing was changed locally.")
	}
}

func detailsOf(err error) map[string]any {
	var ews apierrors.ErrorWithStatus
	if !errors.As(err, &ews) {
		return nil
	}
	return ews.Details()
}

// outputFormat is the value of --format.
type outputFormat string

const (
	formatTable outputFormat = "table"
	formatJSON  outputFormat = "json"
	formatYAML  outputFormat = "yaml"
)

func (f *outputFormat) String() string { return string(*f) }

func (f *outputFormat) Set(s string) error {
	switch v := outputFormat(strings.ToLower(s)); v {
	case formatTable, formatJSON, formatYAML:
		*f = v
		return nil
	}
	return fmt.Errorf("must be one of table, json or yaml")
}

func (f *outputFormat) Type() string { return "format" }

// encode writes v as JSON or YAML. It returns false for the table format,
// which each command renders itself.
func encode(w io.Writer, format outputFormat, v any) (bool, error) {
	switch format {
	case formatJSON:
		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		return true, e.Encode(v)
	case formatYAML:
		n, err := yamlNode(v)
		if err != nil {
			return true, err
		}
		e := yaml.NewEncoder(w)
		e.SetIndent(2)
		if err := e.Encode(n); err != nil {
			return true, err
		}
		return true, e.Close()
	}
	return false, nil
}

// yamlNode converts v through its JSON encoding so YAML output uses the same
// keys, in the same order, as the API.
func yamlNode(v any) (*yaml.Node, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var n yaml.Node
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	blockStyle(&n)
	return &n, nil
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// table prints aligned columns with a cyan header.
type table struct {
	header []string
	rows   [][]string
}

func (t *table) add(cols ...string) {
	t.rows = append(t.rows, cols)
}

func (t *table) write(w io.Writer) {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = len(h)
	}
	for _, r := range t.rows {
		for i, c := range r {
			widths[i] = max(widths[i], len([]rune(c)))
		}
	}
	line := func(c *color.Color, cols []string) {
		var b strings.Builder
		for i, col := range cols {
			if i == len(cols)-1 {
				b.WriteString(col)
				break
			}
			b.WriteString(col)
			b.WriteString(strings.Repeat(" ", widths[i]-len([]rune(col))+2))
		}
		if c != nil {
			_, _ = c.Fprintln(w, b.String())
		} else {
			_, _ = fmt.Fprintln(w, b.String())
		}
	}
	line(cyan, t.header)
	for _, r := range t.rows {
		line(nil, r)
	}
}
