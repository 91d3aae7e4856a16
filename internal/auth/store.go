package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// TokenStore persists the OAuth token that lets later runs skip the consent
// prompt.
type TokenStore interface {
	SaveToken(token *oauth2.Token) error
	// LoadToken returns nil, nil when no token has been stored yet.
	LoadToken() (*oauth2.Token, error)
	// DeleteToken forgets the stored token. Deleting a missing token is not
	// an error.
	DeleteToken() error
}

// FileTokenStore keeps the token as JSON in a single 0600 file.
type FileTokenStore struct {
	Path string
}

// NewFileTokenStore creates a new FileTokenStore with the given path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{Path: path}
}

// SaveToken replaces the token file atomically, creating its directory if
// needed.
func (store *FileTokenStore) SaveToken(token *oauth2.Token) error {
	if token == nil {
		return errors.New("refusing to save nil token")
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	dir := filepath.Dir(store.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	// CreateTemp already uses 0600.
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmpName, store.Path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}

	return nil
}

// LoadToken reads the token file. A missing file yields nil, nil.
func (store *FileTokenStore) LoadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(store.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token %s: %w", store.Path, err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("token file %s holds neither an access nor a refresh token", store.Path)
	}

	return &token, nil
}

// DeleteToken removes the token file.
func (store *FileTokenStore) DeleteToken() error {
	if err := os.Remove(store.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}
