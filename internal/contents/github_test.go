package contents

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/oauth2"

	apierrors "github.com/maruel/mdblog/internal/errors"
)

// fakeGitHub serves the subset of the GitHub REST API used by GitHub, backed
// by a Memory store.
type fakeGitHub struct {
	t     *testing.T
	mem   *Memory
	token string
	calls atomic.Int32
}

func (f *fakeGitHub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"login": "bean"})
	})
	mux.HandleFunc("GET /repos/bean/blog", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.token {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"full_name": "bean/blog"})
	})
	mux.HandleFunc("/repos/bean/blog/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if r.Header.Get("X-GitHub-Api-Version") == "" {
			f.t.Error("missing API version header")
		}
		path := r.PathValue("path")
		switch r.Method {
		case http.MethodGet:
			if ref := r.URL.Query().Get("ref"); ref != "main" {
				f.t.Errorf("ref = %q", ref)
			}
			file, err := f.mem.Get(r.Context(), path)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			if r.Header.Get("Accept") == "application/vnd.github.raw+json" {
				_, _ = w.Write(file.Content)
				return
			}
			enc := base64.StdEncoding.EncodeToString(file.Content)
			var wrapped strings.Builder
			for len(enc) > 60 {
				wrapped.WriteString(enc[:60] + "\n")
				enc = enc[60:]
			}
			wrapped.WriteString(enc + "\n")
			encoding := "base64"
			content := wrapped.String()
			if strings.HasSuffix(path, ".big") {
				encoding, content = "none", ""
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"type": "file", "path": path, "sha": file.SHA, "size": len(file.Content),
				"encoding": encoding, "content": content,
			})
		case http.MethodPut:
			var body struct {
				Message, Content, SHA, Branch string
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				f.t.Error(err)
			}
			if body.Branch != "main" {
				f.t.Errorf("branch = %q", body.Branch)
			}
			data, err := base64.StdEncoding.DecodeString(body.Content)
			if err != nil {
				f.t.Error(err)
			}
			sha, err := f.mem.Put(r.Context(), path, data, body.Message, body.SHA)
			if err != nil {
				if body.SHA == "" && apierrors.IsConflict(err) {
					writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Invalid request.\n\n\"sha\" wasn't supplied."})
					return
				}
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"content": map[string]string{"path": path, "sha": sha}})
		case http.MethodDelete:
			var body struct {
				Message, SHA, Branch string
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				f.t.Error(err)
			}
			if err := f.mem.Delete(r.Context(), path, body.SHA, body.Message); err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"commit": map[string]string{"message": body.Message}})
		}
	})
	return mux
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case apierrors.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	case apierrors.IsConflict(err):
		writeJSON(w, http.StatusConflict, map[string]string{"message": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestGitHub(t *testing.T, token string) (*GitHub, *fakeGitHub) {
	t.Helper()
	fake := &fakeGitHub{t: t, mem: NewMemory("bean"), token: "good"}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	ctx := context.WithValue(t.Context(), oauth2.HTTPClient, server.Client())
	g, err := NewGitHub(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}), GitHubOptions{
		APIURL: server.URL,
		Owner:  "bean",
		Repo:   "blog",
		Burst:  100,
		// Keep the pacing out of the way of the test.
		RequestsPerSecond: 1000,
	})
	if err != nil {
		t.Fatal(err)
	}
	return g, fake
}

func TestGitHubStore(t *testing.T) {
	g, fake := newTestGitHub(t, "good")
	exerciseStore(t, g)
	if fake.calls.Load() == 0 {
		t.Error("no contents calls made")
	}
	commits := fake.mem.Commits()
	if len(commits) != 3 || commits[0].Message != "Add post: Hello" {
		t.Errorf("commits = %+v", commits)
	}
}

func TestGitHubIdentity(t *testing.T) {
	g, _ := newTestGitHub(t, "good")
	login, err := g.Identity(t.Context())
	if err != nil || login != "bean" {
		t.Fatalf("Identity = %q, %v", login, err)
	}
	bad, _ := newTestGitHub(t, "bad")
	if _, err := bad.Identity(t.Context()); !apierrors.Is(err, apierrors.ErrAuthInvalid) {
		t.Errorf("bad token: %v", err)
	}
}

func TestGitHubAppIdentity(t *testing.T) {
	_, fake := newTestGitHub(t, "good")
	server := httptest.NewServer(fake.handler())
	defer server.Close()
	ctx := context.WithValue(t.Context(), oauth2.HTTPClient, server.Client())
	g, err := NewGitHub(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "good"}), GitHubOptions{
		APIURL: server.URL, Owner: "bean", Repo: "blog", AppName: "mdblog[bot]",
	})
	if err != nil {
		t.Fatal(err)
	}
	if login, err := g.Identity(t.Context()); err != nil || login != "mdblog[bot]" {
		t.Fatalf("Identity = %q, %v", login, err)
	}
}

func TestGitHubLargeFile(t *testing.T) {
	g, fake := newTestGitHub(t, "good")
	content := strings.Repeat("large ", 100)
	fake.mem.Seed("posts/file.big", []byte(content))
	f, err := g.Get(t.Context(), "posts/file.big")
	if err != nil {
		t.Fatal(err)
	}
	if string(f.Content) != content {
		t.Errorf("got %d bytes", len(f.Content))
	}
}

func TestGitHubStatusMapping(t *testing.T) {
	tests := []struct {
		status  int
		header  map[string]string
		message string
		want    apierrors.ErrorCode
	}{
		{http.StatusUnauthorized, nil, "Bad credentials", apierrors.ErrAuthInvalid},
		{http.StatusForbidden, nil, "Resource not accessible by integration", apierrors.ErrAuthInvalid},
		{http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0"}, "API rate limit exceeded", apierrors.ErrRateLimited},
		{http.StatusTooManyRequests, map[string]string{"Retry-After": "5"}, "slow down", apierrors.ErrRateLimited},
		{http.StatusNotFound, nil, "Not Found", apierrors.ErrNotFound},
		{http.StatusConflict, nil, "is at abc but expected def", apierrors.ErrConflict},
		{http.StatusUnprocessableEntity, nil, "\"sha\" wasn't supplied.", apierrors.ErrConflict},
		{http.StatusUnprocessableEntity, nil, "path is invalid", apierrors.ErrValidationFailed},
		{http.StatusInternalServerError, nil, "oops", apierrors.ErrRemoteUnavailable},
		{http.StatusBadGateway, nil, "", apierrors.ErrRemoteUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				writeJSON(w, tt.status, map[string]string{"message": tt.message})
			}))
			defer server.Close()
			g, err := NewGitHub(t.Context(), nil, GitHubOptions{APIURL: server.URL, Owner: "o", Repo: "r"})
			if err != nil {
				t.Fatal(err)
			}
			_, err = g.Get(t.Context(), "posts/index.json")
			if got := apierrors.CodeOf(err); got != tt.want {
				t.Errorf("status %d: code %s, want %s (%v)", tt.status, got, tt.want, err)
			}
		})
	}
}

func TestGitHubUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	g, err := NewGitHub(t.Context(), nil, GitHubOptions{APIURL: url, Owner: "o", Repo: "r"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Identity(t.Context()); !apierrors.Is(err, apierrors.ErrRemoteUnavailable) {
		t.Errorf("got %v", err)
	}
	if _, err := NewGitHub(t.Context(), nil, GitHubOptions{}); !apierrors.Is(err, apierrors.ErrValidationFailed) {
		t.Errorf("missing repo: %v", err)
	}
}

func TestContentsURL(t *testing.T) {
	g, err := NewGitHub(t.Context(), nil, GitHubOptions{Owner: "o", Repo: "r"})
	if err != nil {
		t.Fatal(err)
	}
	got := g.contentsURL("posts/a b/c#.md")
	want := "https://api.github.com/repos/o/r/contents/posts/a%20b/c%23.md"
	if got != want {
		t.Errorf("contentsURL = %q, want %q", got, want)
	}
}
