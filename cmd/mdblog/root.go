package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maruel/mdblog/internal/config"
	"github.com/maruel/mdblog/internal/journal"
	"github.com/spf13/cobra"
)

// credentialFile is the sealed credential in the data directory.
const credentialFile = "credential"

// app is the state shared by all the subcommands.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	dataDir  string
	logLevel string
	local    string
	token    string

	env map[string]string
	cfg *config.Config
	j   *journal.Journal
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "mdblog",
		Short: "Administer a Markdown blog stored in a git repository",
		Long: `mdblog edits the posts and categories of a static blog. Posts are Markdown
files under posts/ and posts/index.json lists them; both live in a GitHub
repository, or in a local git repository with --local.

Every change is a commit. Concurrent edits are detected through the content
hash of the index and reported as a conflict; re-run the command to retry.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		// An unknown subcommand must not succeed silently.
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	f := root.PersistentFlags()
	f.StringVar(&a.dataDir, "data-dir", config.DefaultDataDir(), "directory holding config.yaml, .env and the saved credential")
	f.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error (default LOG_LEVEL or info)")
	f.StringVar(&a.local, "local", "", "use the local git repository at this path instead of GitHub")
	f.StringVar(&a.token, "token", "", "GitHub access token (default GITHUB_TOKEN, then the saved credential)")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newInitCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newNewCmd(a),
		newEditCmd(a),
		newRmCmd(a),
		newCategoryCmd(a),
		newSubcategoryCmd(a),
		newCheckCmd(a),
		newLogCmd(a),
		newSidebarCmd(a),
		newPreviewCmd(a),
		newSchemaCmd(a),
		newServeCmd(a),
		newVersionCmd(a),
	)
	return root
}

// setup reads .env and installs the logger. config.yaml is only loaded by the
// commands that need it.
func (a *app) setup() error {
	env, err := config.LoadDotEnv(a.dataDir)
	if err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	a.env = env
	lvl := a.logLevel
	if lvl == "" {
		lvl = a.getenv("LOG_LEVEL")
	}
	level, err := parseLevel(lvl)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(a.stderr, level))
	return nil
}

// config loads config.yaml once, creating it on first use.
func (a *app) config() (*config.Config, error) {
	if a.cfg == nil {
		cfg, err := config.Load(a.dataDir)
		if err != nil {
			return nil, err
		}
		a.cfg = cfg
	}
	return a.cfg, nil
}

// getenv returns the process environment variable, falling back to .env.
func (a *app) getenv(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return a.env[key]
}

// localPath returns the local repository to use instead of GitHub, if any.
func (a *app) localPath(cfg *config.Config) string {
	if a.local != "" {
		return a.local
	}
	return cfg.Repo.LocalPath
}

func (a *app) credentialPath() string {
	return filepath.Join(a.dataDir, credentialFile)
}
