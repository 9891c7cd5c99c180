package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/maruel/mdblog/internal/admin"
	"github.com/maruel/mdblog/internal/blog"
	"github.com/maruel/mdblog/internal/contents"
	apierrors "github.com/maruel/mdblog/internal/errors"
	"github.com/maruel/mdblog/internal/markdown"
	"github.com/maruel/mdblog/internal/site"
	"github.com/spf13/cobra"
)

func newCheckCmd(a *app) *cobra.Command {
	format := formatTable
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report index entries whose Markdown file is missing",
		Long: `check validates the index and reads the file of every post. It changes
nothing; fix problems with edit or rm.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			problems, err := admin.NewDashboard(sess).Check(cmd.Context())
			if err != nil {
				return err
			}
			if problems == nil {
				problems = []admin.Problem{}
			}
			if done, err := encode(a.stdout, format, problems); done {
				return err
			}
			if len(problems) == 0 {
				success(a.stdout, "The index and the files agree")
				return nil
			}
			t := table{header: []string{"PATH", "PROBLEM"}}
			for _, p := range problems {
				t.add(p.Path, p.Message)
			}
			t.write(a.stdout)
			return errors.New(strconv.Itoa(len(problems)) + " problem(s) found")
		},
	}
	cmd.Flags().Var(&format, "format", "output format: table, json or yaml")
	return cmd
}

func newSidebarCmd(a *app) *cobra.Command {
	format := formatTable
	var home bool
	var siteURL string
	cmd := &cobra.Command{
		Use:   "sidebar",
		Short: "Print the navigation of the published site",
		Long: `sidebar fetches posts/index.json from the published site, without
credentials, and prints the navigation tree readers see. --home prints the
home page listing instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if siteURL == "" {
				cfg, err := a.config()
				if err != nil {
					return err
				}
				siteURL = cfg.Site.URL
			}
			if siteURL == "" {
				return errors.New("no site URL; set site.url in config.yaml or pass --site")
			}
			idx, err := site.NewReader(siteURL, nil).Index(cmd.Context())
			if err != nil {
				return err
			}
			if home {
				return a.printHome(format, site.Home(idx))
			}
			nav := site.Sidebar(idx)
			if done, err := encode(a.stdout, format, nav); done {
				return err
			}
			for _, c := range nav {
				_, _ = cyan.Fprintf(a.stdout, "%s (%d)\n", c.Name, c.Count)
				for _, l := range c.Posts {
					_, _ = fmt.Fprintf(a.stdout, "  %s  %s\n", l.Title, faint.Sprint(l.URL))
				}
				for _, s := range c.Subcategories {
					_, _ = fmt.Fprintf(a.stdout, "  %s (%d)\n", s.Name, s.Count)
					for _, l := range s.Posts {
						_, _ = fmt.Fprintf(a.stdout, "    %s  %s\n", l.Title, faint.Sprint(l.URL))
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().Var(&format, "format", "output format: table, json or yaml")
	cmd.Flags().BoolVar(&home, "home", false, "print the home page listing, newest first")
	cmd.Flags().StringVar(&siteURL, "site", "", "site base URL (default site.url)")
	return cmd
}

func (a *app) printHome(format outputFormat, entries []blog.Entry) error {
	if done, err := encode(a.stdout, format, entries); done {
		return err
	}
	t := table{header: []string{"DATE", "TITLE", "CATEGORY", "URL"}}
	for i := range entries {
		e := &entries[i]
		t.add(e.Date, e.Title, e.Label(), site.PostURL(e.Locator()))
	}
	t.write(a.stdout)
	return nil
}

func newPreviewCmd(a *app) *cobra.Command {
	var unsafe bool
	cmd := &cobra.Command{
		Use:   "preview <file.md|->",
		Short: "Render Markdown to HTML as the editor preview does",
		Long: `preview strips a front matter header and renders the rest. Raw HTML in the
source is omitted unless --unsafe is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if args[0] == "-" {
				data, err = io.ReadAll(a.stdin)
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			_, body, err := markdown.SplitFrontMatter(data)
			if err != nil {
				return err
			}
			render := markdown.Render
			if unsafe {
				render = markdown.RenderUnsafe
			}
			out, err := render(body)
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&unsafe, "unsafe", false, "keep raw HTML from the source")
	return cmd
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of posts/index.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := blog.Schema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.stdout, "%s\n", data)
			return err
		},
	}
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(a.stdout)
		},
	}
}

func newLogCmd(a *app) *cobra.Command {
	format := formatTable
	var n int
	var history bool
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the commits made from this machine, newest first",
		Long: `log prints the activity journal kept in the data directory. It lists the
commits made by mdblog, including the API server.

--history reads the commit history of the local repository instead, which
also shows commits made by other tools.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if history {
				return a.printHistory(format, n)
			}
			j, err := a.activity()
			if err != nil {
				return err
			}
			entries := j.Last(n)
			if done, err := encode(a.stdout, format, entries); done {
				return err
			}
			if len(entries) == 0 {
				_, _ = fmt.Fprintln(a.stdout, "No activity.")
				return nil
			}
			t := table{header: []string{"TIME", "USER", "OP", "PATH", "MESSAGE"}}
			for _, e := range entries {
				t.add(e.Time.Local().Format(timeLayout), e.User, e.Op, e.Path, e.Message)
			}
			t.write(a.stdout)
			return nil
		},
	}
	cmd.Flags().Var(&format, "format", "output format: table, json or yaml")
	cmd.Flags().IntVarP(&n, "number", "n", 20, "number of entries, 0 for all")
	cmd.Flags().BoolVar(&history, "history", false, "show the local repository history (needs --local or repo.local_path)")
	return cmd
}

const timeLayout = "2006-01-02 15:04:05"

func (a *app) printHistory(format outputFormat, n int) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	dir := a.localPath(cfg)
	if dir == "" {
		return apierrors.Validation("--history needs a local repository; pass --local or set repo.local_path")
	}
	r, err := contents.OpenGitRepo(dir, cfg.Editor.DefaultAuthor, "")
	if err != nil {
		return err
	}
	revs, err := r.History(n)
	if err != nil {
		return err
	}
	if done, err := encode(a.stdout, format, revs); done {
		return err
	}
	if len(revs) == 0 {
		_, _ = fmt.Fprintln(a.stdout, "No commits.")
		return nil
	}
	t := table{header: []string{"TIME", "COMMIT", "AUTHOR", "MESSAGE"}}
	for _, rev := range revs {
		t.add(rev.Time.Local().Format(timeLayout), rev.Hash[:7], rev.Author, rev.Message)
	}
	t.write(a.stdout)
	return nil
}
