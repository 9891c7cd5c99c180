package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/maruel/mdblog/internal/config"
	"github.com/maruel/mdblog/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin HTTP JSON API",
		Long: `serve exposes the admin operations under /api. Clients log in with
POST /api/session {"token": "..."} and receive a session cookie.

The server shuts down gracefully on SIGINT or SIGTERM, and when config.yaml
or the executable is modified; restart it to pick up the new version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.HTTP
			}
			ctx, stop := context.WithCancel(cmd.Context())
			defer stop()
			if watch {
				if err := watchFiles(ctx, stop, a.watchedFiles()...); err != nil {
					return fmt.Errorf("failed to watch files: %w", err)
				}
			}
			return a.serve(ctx, cfg, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "http", "", "listen address (default server.http)")
	cmd.Flags().BoolVar(&watch, "watch", true, "shut down when config.yaml or the executable changes")
	return cmd
}

func (a *app) serve(ctx context.Context, cfg *config.Config, addr string) error {
	version, _, _, _ := getBuildInfo()
	// Opened before serving; the connector runs concurrently.
	j, err := a.activity()
	if err != nil {
		return err
	}
	srv := server.New(a.connector(cfg), server.Options{
		JWTSecret:           cfg.JWTSecretBytes(),
		MaxRequestBodyBytes: cfg.Server.MaxRequestBodyBytes,
		RateLimits:          cfg.Server.RateLimits,
		DefaultAuthor:       cfg.Editor.DefaultAuthor,
		Version:             version,
		Activity:            j,
	})
	defer srv.Close()
	go srv.Sweep(ctx, time.Minute)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", ln.Addr().String(), "repo", a.repoName(cfg), "version", version)
		serverErr <- httpServer.Serve(ln)
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

// watchedFiles returns config.yaml and the running executable, when they can
// be resolved.
func (a *app) watchedFiles() []string {
	files := []string{filepath.Join(a.dataDir, config.FileName)}
	if exe, err := os.Executable(); err == nil {
		if exe, err = filepath.EvalSymlinks(exe); err == nil {
			files = append(files, exe)
		}
	}
	return files
}

// watchFiles calls stop when one of the files is modified.
func watchFiles(ctx context.Context, stop context.CancelFunc, files ...string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := w.Add(f); err != nil {
			_ = w.Close()
			return err
		}
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					slog.InfoContext(ctx, "File modified, initiating shutdown", "path", event.Name)
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching files", "err", err)
			}
		}
	}()
	return nil
}
