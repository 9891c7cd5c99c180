package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/maruel/mdblog/internal/admin"
	"github.com/maruel/mdblog/internal/config"
	"github.com/maruel/mdblog/internal/contents"
	"github.com/maruel/mdblog/internal/journal"
	"golang.org/x/oauth2"
)

// Sentinel credentials for the stores that do not take a token.
const (
	localCredential = "local"
	appCredential   = "app"
)

// connector opens the store selected by the configuration. Every store is
// wrapped to record its commits in the activity journal.
func (a *app) connector(cfg *config.Config) admin.Connector {
	return func(ctx context.Context, credential string) (contents.Store, error) {
		j, err := a.activity()
		if err != nil {
			return nil, err
		}
		store, err := a.openStore(ctx, cfg, credential)
		if err != nil {
			return nil, err
		}
		return j.Wrap(store), nil
	}
}

// openStore returns the local repository or the GitHub store.
//
// The GitHub App and static token sources outlive the call, so they are
// bound to a context that is not canceled with ctx.
func (a *app) openStore(ctx context.Context, cfg *config.Config, credential string) (contents.Store, error) {
	if dir := a.localPath(cfg); dir != "" {
		r, err := contents.OpenGitRepo(dir, cfg.Editor.DefaultAuthor, "")
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	opts := contents.GitHubOptions{
		APIURL: cfg.Repo.APIURL,
		Owner:  cfg.Repo.Owner,
		Repo:   cfg.Repo.Name,
		Branch: cfg.Repo.Branch,
	}
	var ts oauth2.TokenSource
	if credential == appCredential && cfg.App.ID != 0 {
		key, err := contents.LoadPrivateKey(cfg.App.PrivateKeyFile)
		if err != nil {
			return nil, err
		}
		ts = contents.NewAppTokenSource(context.WithoutCancel(ctx), cfg.Repo.APIURL, cfg.App.ID, cfg.App.InstallationID, key)
		opts.AppName = fmt.Sprintf("app/%d", cfg.App.ID)
	} else {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credential, TokenType: "Bearer"})
	}
	g, err := contents.NewGitHub(ctx, ts, opts)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// activity opens the activity journal once.
func (a *app) activity() (*journal.Journal, error) {
	if a.j == nil {
		j, err := journal.Open(filepath.Join(a.dataDir, journal.FileName), 0)
		if err != nil {
			return nil, err
		}
		a.j = j
	}
	return a.j, nil
}

// credential returns the credential given explicitly: the --local sentinel,
// --token, GITHUB_TOKEN or the GitHub App. "" means the saved credential.
func (a *app) credential(cfg *config.Config) string {
	switch {
	case a.localPath(cfg) != "":
		return localCredential
	case a.token != "":
		return a.token
	}
	if t := a.getenv("GITHUB_TOKEN"); t != "" {
		return t
	}
	if cfg.App.ID != 0 {
		return appCredential
	}
	return ""
}

func (a *app) keeper(cfg *config.Config) *admin.CredentialStore {
	return admin.NewCredentialStore(a.credentialPath(), cfg.CredentialKeyBytes())
}

// session returns an active admin session. Explicit credentials are used
// as is and not saved; otherwise the saved credential is resumed.
func (a *app) session(ctx context.Context) (*admin.Session, *config.Config, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, nil, err
	}
	var sess *admin.Session
	if c := a.credential(cfg); c != "" {
		sess = admin.NewSession(a.connector(cfg), nil)
		err = sess.Login(ctx, c)
	} else {
		sess = admin.NewSession(a.connector(cfg), a.keeper(cfg))
		err = sess.Resume(ctx)
	}
	if err != nil {
		return nil, nil, err
	}
	return sess, cfg, nil
}
