package contents

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	apierrors "github.com/maruel/mdblog/internal/errors"
)

// DefaultAPIURL is the GitHub REST API endpoint.
const DefaultAPIURL = "https://api.github.com"

// GitHubOptions configures a GitHub store.
type GitHubOptions struct {
	APIURL string // Defaults to DefaultAPIURL.
	Owner  string
	Repo   string
	Branch string // Defaults to "main".
	// RequestsPerSecond paces outgoing requests. Zero means 10/s with a burst
	// of 5.
	RequestsPerSecond float64
	Burst             int
	// AppName, when set, makes Identity check access to the repository and
	// report AppName. GitHub App installation tokens cannot call GET /user.
	AppName string
}

// GitHub is a Store backed by the GitHub repository contents API.
type GitHub struct {
	apiURL  string
	owner   string
	repo    string
	branch  string
	appName string
	client  *http.Client
	limiter *rate.Limiter
}

// NewGitHub returns a store authenticating with ts. A nil ts issues
// unauthenticated requests.
//
// The HTTP client is derived from ctx the way oauth2.NewClient does, so a
// client stored under oauth2.HTTPClient is honored.
func NewGitHub(ctx context.Context, ts oauth2.TokenSource, opts GitHubOptions) (*GitHub, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, apierrors.Validation("repository owner and name are required")
	}
	apiURL := strings.TrimSuffix(opts.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	branch := opts.Branch
	if branch == "" {
		branch = "main"
	}
	rps, burst := opts.RequestsPerSecond, opts.Burst
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 5
	}
	base, ok := ctx.Value(oauth2.HTTPClient).(*http.Client)
	if !ok {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	client := base
	if ts != nil {
		client = oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), ts)
		client.Timeout = base.Timeout
	}
	return &GitHub{
		apiURL:  apiURL,
		owner:   opts.Owner,
		repo:    opts.Repo,
		branch:  branch,
		appName: opts.AppName,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// Identity implements Store with GET /user, or GET /repos/{owner}/{repo} for
// an app.
func (g *GitHub) Identity(ctx context.Context) (string, error) {
	if g.appName != "" {
		var repo struct {
			FullName string `json:"full_name"`
		}
		u := g.apiURL + "/repos/" + url.PathEscape(g.owner) + "/" + url.PathEscape(g.repo)
		if err := g.do(ctx, http.MethodGet, u, nil, "", &repo); err != nil {
			return "", err
		}
		return g.appName, nil
	}
	var user struct {
		Login string `json:"login"`
	}
	if err := g.do(ctx, http.MethodGet, g.apiURL+"/user", nil, "", &user); err != nil {
		return "", err
	}
	if user.Login == "" {
		return "", apierrors.AuthInvalid("bad credentials")
	}
	return user.Login, nil
}

type contentResponse struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

// Get implements Store.
func (g *GitHub) Get(ctx context.Context, path string) (*File, error) {
	u := g.contentsURL(path) + "?ref=" + url.QueryEscape(g.branch)
	var resp contentResponse
	if err := g.do(ctx, http.MethodGet, u, nil, "", &resp); err != nil {
		return nil, err
	}
	if resp.Type != "" && resp.Type != "file" {
		return nil, apierrors.NotFound(path).WithDetail("type", resp.Type)
	}
	var content []byte
	switch resp.Encoding {
	case "base64":
		// GitHub wraps the encoded content every 60 characters.
		b, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
		if err != nil {
			return nil, apierrors.RemoteUnavailable("failed to decode "+path, err)
		}
		content = b
	case "none", "":
		// Files above 1MB are not inlined; fetch the raw media type instead.
		raw, err := g.raw(ctx, u)
		if err != nil {
			return nil, err
		}
		content = raw
	default:
		return nil, apierrors.RemoteUnavailable("unsupported encoding for "+path, fmt.Errorf("encoding %q", resp.Encoding))
	}
	return &File{Path: path, Content: content, SHA: resp.SHA}, nil
}

// Put implements Store.
func (g *GitHub) Put(ctx context.Context, path string, content []byte, message, sha string) (string, error) {
	body := struct {
		Message string `json:"message"`
		Content string `json:"content"`
		SHA     string `json:"sha,omitempty"`
		Branch  string `json:"branch"`
	}{message, base64.StdEncoding.EncodeToString(content), sha, g.branch}
	var resp struct {
		Content contentResponse `json:"content"`
	}
	if err := g.do(ctx, http.MethodPut, g.contentsURL(path), body, "", &resp); err != nil {
		if sha == "" && apierrors.Is(err, apierrors.ErrValidationFailed) {
			// Creating over an existing file is reported as 422 without a
			// mention of the sha.
			return "", apierrors.Conflict(path+" already exists").WithDetail("path", path).Wrap(err)
		}
		return "", err
	}
	slog.DebugContext(ctx, "Put", "path", path, "sha", resp.Content.SHA)
	return resp.Content.SHA, nil
}

// Delete implements Store.
func (g *GitHub) Delete(ctx context.Context, path, sha, message string) error {
	if sha == "" {
		return apierrors.Conflict("sha is required to delete " + path)
	}
	body := struct {
		Message string `json:"message"`
		SHA     string `json:"sha"`
		Branch  string `json:"branch"`
	}{message, sha, g.branch}
	if err := g.do(ctx, http.MethodDelete, g.contentsURL(path), body, "", nil); err != nil {
		return err
	}
	slog.DebugContext(ctx, "Delete", "path", path)
	return nil
}

func (g *GitHub) contentsURL(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", g.apiURL, url.PathEscape(g.owner), url.PathEscape(g.repo), strings.Join(segs, "/"))
}

func (g *GitHub) raw(ctx context.Context, u string) ([]byte, error) {
	var out []byte
	err := g.do(ctx, http.MethodGet, u, nil, "application/vnd.github.raw+json", &out)
	return out, err
}

// do issues one API call and decodes the JSON response into out. When out is
// a *[]byte the raw body is stored instead.
func (g *GitHub) do(ctx context.Context, method, u string, in any, accept string, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return apierrors.RemoteUnavailable("request canceled", err)
	}
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return apierrors.InternalWithError("failed to encode request", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return apierrors.InternalWithError("failed to create request", err)
	}
	if accept == "" {
		accept = "application/vnd.github+json"
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		slog.WarnContext(ctx, "github", "method", method, "url", u, "err", err)
		return apierrors.RemoteUnavailable("GitHub request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	slog.DebugContext(ctx, "github", "method", method, "url", u, "status", resp.StatusCode, "dur", time.Since(start).Round(time.Millisecond))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return statusError(resp, u, data)
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		if *raw, err = io.ReadAll(resp.Body); err != nil {
			return apierrors.RemoteUnavailable("failed to read response", err)
		}
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apierrors.RemoteUnavailable("failed to decode response", err)
	}
	return nil
}

// statusError maps a non-success GitHub response to the error taxonomy.
func statusError(resp *http.Response, u string, data []byte) error {
	var e struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(data, &e)
	msg := e.Message
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	cause := fmt.Errorf("GitHub API error %d: %s", resp.StatusCode, msg)
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return apierrors.AuthInvalid("bad credentials").Wrap(cause)
	case http.StatusForbidden, http.StatusTooManyRequests:
		if resp.StatusCode == http.StatusTooManyRequests || resp.Header.Get("X-RateLimit-Remaining") == "0" || strings.Contains(strings.ToLower(msg), "rate limit") {
			return apierrors.RateLimited(retryAfter(resp)).Wrap(cause)
		}
		return apierrors.AuthInvalid("access denied").Wrap(cause)
	case http.StatusNotFound:
		return apierrors.NotFound(resourceOf(u)).Wrap(cause)
	case http.StatusConflict:
		return apierrors.Conflict(msg).Wrap(cause)
	case http.StatusUnprocessableEntity:
		if strings.Contains(strings.ToLower(msg), "sha") {
			return apierrors.Conflict(msg).Wrap(cause)
		}
		return apierrors.Validation(msg).Wrap(cause)
	default:
		return apierrors.RemoteUnavailable("GitHub API error", cause)
	}
}

func retryAfter(resp *http.Response) int {
	if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
		return s
	}
	if reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		if d := time.Until(time.Unix(reset, 0)); d > 0 {
			return int(d.Seconds()) + 1
		}
	}
	return 60
}

// resourceOf returns the repository path of a contents URL, or its URL path.
func resourceOf(u string) string {
	p, err := url.Parse(u)
	if err != nil {
		return u
	}
	if _, rest, ok := strings.Cut(p.Path, "/contents/"); ok {
		return rest
	}
	return p.Path
}
