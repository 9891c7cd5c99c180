package admin

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
)

// CredentialKeeper persists the access credential across runs.
type CredentialKeeper interface {
	Load() (string, error)
	Save(credential string) error
	Clear() error
}

// CredentialStore keeps one credential in a file sealed with NaCl secretbox.
//
// The file holds the 24 byte nonce followed by the sealed token.
type CredentialStore struct {
	path string
	key  [32]byte
}

// NewCredentialStore returns a store sealing the credential at path with key.
func NewCredentialStore(path string, key [32]byte) *CredentialStore {
	return &CredentialStore{path: path, key: key}
}

// Load returns the persisted credential, or "" when there is none.
func (c *CredentialStore) Load() (string, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	if len(data) < 24+secretbox.Overhead {
		return "", errors.New("credential file is truncated")
	}
	var nonce [24]byte
	copy(nonce[:], data[:24])
	out, ok := secretbox.Open(nil, data[24:], &nonce, &c.key)
	if !ok {
		return "", errors.New("credential file cannot be decrypted with the configured key")
	}
	return string(out), nil
}

// Save seals credential and atomically replaces the file.
func (c *CredentialStore) Save(credential string) error {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	data := secretbox.Seal(nonce[:], []byte(credential), &nonce, &c.key)
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}
	return nil
}

// Clear removes the persisted credential. A missing file is not an error.
func (c *CredentialStore) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	return nil
}
