package main

import (
	"fmt"
	"io"
	"os"

	"github.com/maruel/mdblog/internal/admin"
	"github.com/maruel/mdblog/internal/blog"
	apierrors "github.com/maruel/mdblog/internal/errors"
	"github.com/maruel/mdblog/internal/markdown"
	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	format := formatTable
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List every post, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := admin.NewDashboard(sess).Posts()
			if err != nil {
				return err
			}
			if done, err := encode(a.stdout, format, entries); done {
				return err
			}
			if len(entries) == 0 {
				_, _ = fmt.Fprintln(a.stdout, "No posts.")
				return nil
			}
			t := table{header: []string{"DATE", "POST", "TITLE", "AUTHOR"}}
			for i := range entries {
				e := &entries[i]
				t.add(e.Date, e.Locator().String(), e.Title, e.Author)
			}
			t.write(a.stdout)
			return nil
		},
	}
	cmd.Flags().Var(&format, "format", "output format: table, json or yaml")
	return cmd
}

// postView is a post with its Markdown body.
type postView struct {
	blog.Entry
	Body string `json:"body"`
	HTML string `json:"html,omitempty"`
}

func newShowCmd(a *app) *cobra.Command {
	format := formatTable
	var html bool
	cmd := &cobra.Command{
		Use:   "show <category>[/<subcategory>]/<slug>",
		Short: "Print a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocator(args[0])
			if err != nil {
				return err
			}
			sess, _, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			e, body, err := admin.NewDashboard(sess).Post(cmd.Context(), loc)
			if err != nil {
				return err
			}
			v := postView{Entry: e, Body: body}
			if html {
				out, err := markdown.Render([]byte(body))
				if err != nil {
					return err
				}
				v.HTML = string(out)
			}
			if done, err := encode(a.stdout, format, v); done {
				return err
			}
			_, _ = cyan.Fprintln(a.stdout, e.Title)
			_, _ = faint.Fprintf(a.stdout, "%s · %s · %s\n", e.Date, e.Author, e.Label())
			if e.Excerpt != "" {
				_, _ = fmt.Fprintf(a.stdout, "\n%s\n", e.Excerpt)
			}
			text := v.Body
			if html {
				text = v.HTML
			}
			_, _ = fmt.Fprintf(a.stdout, "\n%s", text)
			return nil
		},
	}
	cmd.Flags().Var(&format, "format", "output format: table, json or yaml")
	cmd.Flags().BoolVar(&html, "html", false, "render the body to HTML")
	return cmd
}

// postFlags are the form fields shared by new and edit.
type postFlags struct {
	form admin.Form
	file string
}

func (p *postFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&p.form.Title, "title", "", "post title")
	f.StringVar(&p.form.Slug, "slug", "", "post slug (default derived from the title for new posts)")
	f.StringVar(&p.form.Date, "date", "", "publication date, e.g. \"January 2, 2006\"")
	f.StringVar(&p.form.Author, "author", "", "author name")
	f.StringVar(&p.form.Excerpt, "excerpt", "", "short summary shown in listings")
	f.StringVar(&p.form.Category, "category", "", "category slug")
	f.StringVar(&p.form.Subcategory, "subcategory", "", "subcategory slug")
	f.StringVar(&p.file, "file", "", "Markdown body, \"-\" for stdin; a front matter header fills unset flags")
}

// apply overlays the flags set on cmd, then the front matter of --file, on
// top of base. Flags win over the front matter.
func (p *postFlags) apply(cmd *cobra.Command, stdin io.Reader, base admin.Form) (admin.Form, error) {
	out := base
	var meta markdown.Meta
	if p.file != "" {
		var data []byte
		var err error
		if p.file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(p.file)
		}
		if err != nil {
			return out, fmt.Errorf("failed to read %s: %w", p.file, err)
		}
		m, body, err := markdown.SplitFrontMatter(data)
		if err != nil {
			return out, apierrors.Validation(err.Error())
		}
		meta = m
		out.Body = string(body)
	}
	for _, x := range []struct {
		flag      string
		dst       *string
		val, meta string
	}{
		{"title", &out.Title, p.form.Title, meta.Title},
		{"slug", &out.Slug, p.form.Slug, meta.Slug},
		{"date", &out.Date, p.form.Date, meta.Date},
		{"author", &out.Author, p.form.Author, meta.Author},
		{"excerpt", &out.Excerpt, p.form.Excerpt, meta.Excerpt},
		{"category", &out.Category, p.form.Category, meta.Category},
		{"subcategory", &out.Subcategory, p.form.Subcategory, meta.Subcategory},
	} {
		switch {
		case cmd.Flags().Changed(x.flag):
			*x.dst = x.val
		case x.meta != "":
			*x.dst = x.meta
		}
	}
	return out, nil
}

func newNewCmd(a *app) *cobra.Command {
	var p postFlags
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a post",
		Long: `new writes posts/<category>/[<subcategory>/]<slug>.md and adds the post to
the index, in two commits. The date defaults to today and the author to
editor.default_author.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, cfg, err := a.session(ctx)
			if err != nil {
				return err
			}
			ed := admin.NewEditor(sess, cfg.Editor.DefaultAuthor)
			seed, err := ed.NewPost()
			if err != nil {
				return err
			}
			form, err := p.apply(cmd, a.stdin, seed)
			if err != nil {
				return err
			}
			e, err := ed.Save(ctx, form)
			if err != nil {
				return err
			}
			success(a.stdout, "Created %s", e.Locator())
			return nil
		},
	}
	p.register(cmd)
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var p postFlags
	cmd := &cobra.Command{
		Use:   "edit <category>[/<subcategory>]/<slug>",
		Short: "Change a post",
		Long: `edit updates the fields given as flags and keeps the others. Changing the
category, subcategory or slug moves the file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			loc, err := parseLocator(args[0])
			if err != nil {
				return err
			}
			sess, cfg, err := a.session(ctx)
			if err != nil {
				return err
			}
			ed := admin.NewEditor(sess, cfg.Editor.DefaultAuthor)
			cur, err := ed.EditPost(ctx, loc)
			if err != nil {
				return err
			}
			form, err := p.apply(cmd, a.stdin, cur)
			if err != nil {
				return err
			}
			if form == cur {
				warning(a.stderr, "nothing to change")
				return nil
			}
			e, err := ed.Save(ctx, form)
			if err != nil {
				return err
			}
			success(a.stdout, "Updated %s", e.Locator())
			return nil
		},
	}
	p.register(cmd)
	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <category>[/<subcategory>]/<slug>",
		Aliases: []string{"delete"},
		Short:   "Delete a post and its index entry",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			loc, err := parseLocator(args[0])
			if err != nil {
				return err
			}
			sess, cfg, err := a.session(ctx)
			if err != nil {
				return err
			}
			if err := admin.NewEditor(sess, cfg.Editor.DefaultAuthor).DeletePost(ctx, loc); err != nil {
				return err
			}
			success(a.stdout, "Deleted %s", loc)
			return nil
		},
	}
}

func parseLocator(s string) (blog.Locator, error) {
	loc, ok := blog.ParseLocator(s)
	if !ok {
		return loc, apierrors.Validation(fmt.Sprintf("invalid post %q, want category/slug or category/subcategory/slug", s))
	}
	return loc, nil
}
