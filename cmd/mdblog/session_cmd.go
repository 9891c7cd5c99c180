package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/maruel/mdblog/internal/admin"
	"github.com/maruel/mdblog/internal/config"
	apierrors "github.com/maruel/mdblog/internal/errors"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Validate a GitHub token and save it for later commands",
		Long: `login checks the token against the GitHub API, seals it in the data
directory and fetches the index. The token is read from --token, GITHUB_TOKEN
or, when none is set, from standard input.

A rejected token deletes the saved one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			token := a.credential(cfg)
			if token == "" {
				if token, err = a.prompt("GitHub token: "); err != nil {
					return err
				}
			}
			sess := admin.NewSession(a.connector(cfg), a.keeper(cfg))
			err = sess.Login(cmd.Context(), token)
			if err != nil && sess.State() != admin.StateValidated {
				return err
			}
			success(a.stdout, "Logged in as %s (%s)", sess.User(), a.repoName(cfg))
			if err != nil {
				warning(a.stderr, "the index could not be fetched: %v", err)
			}
			return nil
		},
	}
}

// prompt reads one line from stdin. The prompt is only shown on a terminal.
func (a *app) prompt(msg string) (string, error) {
	if f, ok := a.stdin.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		_, _ = fmt.Fprint(a.stderr, msg)
	}
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		if err != nil {
			return "", apierrors.AuthInvalid("no token given").Wrap(err)
		}
		return "", apierrors.AuthInvalid("no token given")
	}
	return line, nil
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the saved token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if err := admin.NewSession(a.connector(cfg), a.keeper(cfg)).Logout(); err != nil {
				return err
			}
			success(a.stdout, "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated user and the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, cfg, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			index, err := sess.Index()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "user:  %s\n", sess.User())
			_, _ = fmt.Fprintf(a.stdout, "repo:  %s\n", a.repoName(cfg))
			_, _ = fmt.Fprintf(a.stdout, "posts: %d\n", index.Snapshot().TotalPosts())
			return nil
		},
	}
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty index in the repository",
		Long:  "init commits an empty posts/index.json. It fails when the index already exists.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.config()
			if err != nil {
				return err
			}
			credential := a.credential(cfg)
			if credential == "" {
				if credential, err = a.keeper(cfg).Load(); err != nil {
					return apierrors.AuthInvalid("stored credential is unreadable").Wrap(err)
				}
				if credential == "" {
					return apierrors.AuthInvalid("not logged in")
				}
			}
			store, err := a.connector(cfg)(ctx, credential)
			if err != nil {
				return err
			}
			if _, err := store.Identity(ctx); err != nil {
				return err
			}
			if err := admin.NewIndexCache(store).Create(ctx, "Create index"); err != nil {
				if apierrors.IsConflict(err) {
					return apierrors.Conflict("the index already exists")
				}
				return err
			}
			success(a.stdout, "Created the index in %s", a.repoName(cfg))
			return nil
		},
	}
}

// repoName describes the repository in messages.
func (a *app) repoName(cfg *config.Config) string {
	if dir := a.localPath(cfg); dir != "" {
		return dir
	}
	return cfg.RepoRef()
}
