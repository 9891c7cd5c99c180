// GitHub App authentication: signs app JWTs and exchanges them for
// installation tokens, cached until shortly before they expire.

package contents

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// AppTokenSource is an oauth2.TokenSource minting installation access tokens
// for a GitHub App.
type AppTokenSource struct {
	ctx            context.Context
	apiURL         string
	appID          int64
	installationID int64
	privateKey     *rsa.PrivateKey
	httpClient     *http.Client

	mu     sync.Mutex
	cached *oauth2.Token
}

// NewAppTokenSource returns a token source for the installation. ctx bounds
// every token request made by the source.
func NewAppTokenSource(ctx context.Context, apiURL string, appID, installationID int64, privateKey *rsa.PrivateKey) *AppTokenSource {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &AppTokenSource{
		ctx:            ctx,
		apiURL:         strings.TrimSuffix(apiURL, "/"),
		appID:          appID,
		installationID: installationID,
		privateKey:     privateKey,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
}

// LoadPrivateKey reads a PEM encoded RSA key as downloaded from the GitHub App
// settings page.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the configuration
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// GenerateJWT creates a signed JWT for GitHub App authentication.
// The JWT is valid for 10 minutes per GitHub's requirements.
func (a *AppTokenSource) GenerateJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)), // 60s clock drift
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(a.appID, 10),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(a.privateKey)
}

// Token implements oauth2.TokenSource.
func (a *AppTokenSource) Token() (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	// Use cached token if it expires more than 5 minutes from now.
	if a.cached != nil && time.Until(a.cached.Expiry) > 5*time.Minute {
		return a.cached, nil
	}

	jwtToken, err := a.GenerateJWT()
	if err != nil {
		return nil, fmt.Errorf("generate JWT: %w", err)
	}
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.apiURL, a.installationID)
	req, err := http.NewRequestWithContext(a.ctx, http.MethodPost, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request installation token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GitHub API error %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	a.cached = &oauth2.Token{AccessToken: result.Token, TokenType: "token", Expiry: result.ExpiresAt}
	return a.cached, nil
}
