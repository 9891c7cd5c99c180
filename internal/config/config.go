// Package config loads the mdblog configuration from config.yaml in the data
// directory, with overrides from the .env file next to it.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file in the data directory.
const FileName = "config.yaml"

// Config is the whole configuration.
type Config struct {
	Repo   Repo   `yaml:"repo"`
	Site   Site   `yaml:"site"`
	Editor Editor `yaml:"editor"`
	App    App    `yaml:"app"`
	Server Server `yaml:"server"`
}

// Repo selects the repository holding the blog.
type Repo struct {
	Owner  string `yaml:"owner"`
	Name   string `yaml:"name"`
	Branch string `yaml:"branch"`
	APIURL string `yaml:"api_url"`
	// LocalPath selects a local git checkout instead of the GitHub API.
	LocalPath string `yaml:"local_path,omitempty"`
}

// Site is the published site.
type Site struct {
	// URL is the base URL the index document is published under.
	URL string `yaml:"url"`
}

// Editor holds post defaults.
type Editor struct {
	DefaultAuthor string `yaml:"default_author"`
}

// App configures GitHub App authentication. It is used when ID is set and no
// token is supplied.
type App struct {
	ID             int64  `yaml:"id,omitempty"`
	InstallationID int64  `yaml:"installation_id,omitempty"`
	PrivateKeyFile string `yaml:"private_key_file,omitempty"`
}

// Server configures the admin HTTP API.
type Server struct {
	HTTP string `yaml:"http"`
	// JWTSecret signs session cookies. Hex encoded, auto-generated.
	JWTSecret string `yaml:"jwt_secret"`
	// CredentialKey seals the persisted credential. Hex encoded 32 bytes,
	// auto-generated.
	CredentialKey       string     `yaml:"credential_key"`
	RateLimits          RateLimits `yaml:"rate_limits"`
	MaxRequestBodyBytes int64      `yaml:"max_request_body_bytes"`
}

// RateLimits defines rate limiting configuration (requests per minute).
// 0 means unlimited.
type RateLimits struct {
	SessionRatePerMin int `yaml:"session_rate_per_min"`
	WriteRatePerMin   int `yaml:"write_rate_per_min"`
	ReadRatePerMin    int `yaml:"read_rate_per_min"`
}

// Default returns the configuration used for missing keys.
func Default() Config {
	return Config{
		Repo:   Repo{Branch: "main", APIURL: "https://api.github.com"},
		Editor: Editor{DefaultAuthor: "Bean"},
		Server: Server{
			HTTP: "localhost:8080",
			RateLimits: RateLimits{
				SessionRatePerMin: 5,
				WriteRatePerMin:   60,
				ReadRatePerMin:    6000,
			},
			MaxRequestBodyBytes: 1 << 20,
		},
	}
}

// DefaultDataDir returns ~/.config/mdblog or its platform equivalent.
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".mdblog"
	}
	return filepath.Join(dir, "mdblog")
}

// Load reads dataDir/config.yaml, creating it with defaults if missing.
// Missing secrets are generated and saved. Overrides from dataDir/.env are
// applied after saving so they are never written back.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, FileName)
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir, not user input
	missing := errors.Is(err, os.ErrNotExist)
	switch {
	case missing:
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
		}
	}
	cfg.applyDefaults()

	modified := false
	if cfg.Server.JWTSecret == "" {
		if cfg.Server.JWTSecret, err = randomHex(32); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		modified = true
	}
	if cfg.Server.CredentialKey == "" {
		if cfg.Server.CredentialKey, err = randomHex(32); err != nil {
			return nil, fmt.Errorf("failed to generate credential key: %w", err)
		}
		modified = true
	}
	if modified || missing {
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
	}

	env, err := LoadDotEnv(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.applyEnv(env)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return &cfg, nil
}

// Save writes the configuration to dataDir/config.yaml.
func (c *Config) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dataDir, err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, FileName), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}
	return nil
}

// Validate checks value ranges and the encoding of the secrets.
func (c *Config) Validate() error {
	if c.App.ID < 0 || c.App.InstallationID < 0 {
		return errors.New("app: ids must be non-negative")
	}
	if c.App.ID != 0 && (c.App.InstallationID == 0 || c.App.PrivateKeyFile == "") {
		return errors.New("app: installation_id and private_key_file are required with id")
	}
	if s, err := hex.DecodeString(c.Server.JWTSecret); err != nil || len(s) < 32 {
		return errors.New("server.jwt_secret must be at least 32 hex encoded bytes")
	}
	if k, err := hex.DecodeString(c.Server.CredentialKey); err != nil || len(k) != 32 {
		return errors.New("server.credential_key must be 32 hex encoded bytes")
	}
	r := c.Server.RateLimits
	if r.SessionRatePerMin < 0 || r.WriteRatePerMin < 0 || r.ReadRatePerMin < 0 {
		return errors.New("server.rate_limits must be non-negative")
	}
	if c.Server.MaxRequestBodyBytes < 0 {
		return errors.New("server.max_request_body_bytes must be non-negative")
	}
	return nil
}

// JWTSecretBytes returns the decoded JWT secret. Only valid after Validate.
func (c *Config) JWTSecretBytes() []byte {
	b, _ := hex.DecodeString(c.Server.JWTSecret)
	return b
}

// CredentialKeyBytes returns the decoded credential key. Only valid after
// Validate.
func (c *Config) CredentialKeyBytes() [32]byte {
	var k [32]byte
	b, _ := hex.DecodeString(c.Server.CredentialKey)
	copy(k[:], b)
	return k
}

// RepoRef returns "owner/name".
func (c *Config) RepoRef() string {
	return c.Repo.Owner + "/" + c.Repo.Name
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Repo.Branch == "" {
		c.Repo.Branch = d.Repo.Branch
	}
	if c.Repo.APIURL == "" {
		c.Repo.APIURL = d.Repo.APIURL
	}
	if c.Editor.DefaultAuthor == "" {
		c.Editor.DefaultAuthor = d.Editor.DefaultAuthor
	}
	if c.Server.HTTP == "" {
		c.Server.HTTP = d.Server.HTTP
	}
}

// applyEnv applies the MDBLOG_* overrides.
func (c *Config) applyEnv(env map[string]string) {
	for key, dst := range map[string]*string{
		"MDBLOG_OWNER":    &c.Repo.Owner,
		"MDBLOG_REPO":     &c.Repo.Name,
		"MDBLOG_BRANCH":   &c.Repo.Branch,
		"MDBLOG_API_URL":  &c.Repo.APIURL,
		"MDBLOG_SITE_URL": &c.Site.URL,
		"MDBLOG_AUTHOR":   &c.Editor.DefaultAuthor,
		"MDBLOG_HTTP":     &c.Server.HTTP,
	} {
		if v := env[key]; v != "" {
			*dst = v
		}
	}
}

// LoadDotEnv reads dataDir/.env. A missing file yields an empty map.
func LoadDotEnv(dataDir string) (map[string]string, error) {
	env := make(map[string]string)
	path := filepath.Join(dataDir, ".env")
	envContent, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir flag, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, err
	}

	for line := range strings.SplitSeq(string(envContent), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		if strings.HasPrefix(val, "'") || strings.HasSuffix(val, "'") {
			if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
				return nil, fmt.Errorf("single quotes are not supported for wrapping in .env: %s", line)
			}
			return nil, fmt.Errorf("unbalanced single quotes in .env: %s", line)
		}
		if strings.HasPrefix(val, "\"") {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return nil, fmt.Errorf("failed to unquote %s: %w", key, err)
			}
			val = unquoted
		}
		env[key] = val
	}
	return env, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
