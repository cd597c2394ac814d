// Package tokenstore persists portal session tokens per environment.
// Tokens are written as individual JSON files with restrictive
// permissions so a bridge restart does not force a fresh sign-in.
package tokenstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"golang.org/x/oauth2"
)

// ErrNotFound is returned when no token is stored for an environment.
var ErrNotFound = fmt.Errorf("token not found")

// Store reads and writes per-environment tokens.
type Store interface {
	Token(envID string) (*oauth2.Token, error)
	Save(envID string, tok *oauth2.Token) error
	Delete(envID string) error
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// FileStore keeps one JSON file per environment under a private directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the token directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create token directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(envID string) string {
	safe := unsafeChars.ReplaceAllString(envID, "_")
	return filepath.Join(s.dir, safe+".json")
}

func (s *FileStore) Token(envID string) (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path(envID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, envID)
	}
	if err != nil {
		return nil, fmt.Errorf("read token for %s: %w", envID, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token for %s: %w", envID, err)
	}
	return &tok, nil
}

func (s *FileStore) Save(envID string, tok *oauth2.Token) error {
	if tok == nil {
		return fmt.Errorf("save token for %s: nil token", envID)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token for %s: %w", envID, err)
	}
	path := s.path(envID)
	tmp, err := os.CreateTemp(s.dir, ".token-*.json")
	if err != nil {
		return fmt.Errorf("save token for %s: %w", envID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("save token for %s: %w", envID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("save token for %s: %w", envID, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("save token for %s: %w", envID, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("save token for %s: %w", envID, err)
	}
	return nil
}

func (s *FileStore) Delete(envID string) error {
	err := os.Remove(s.path(envID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete token for %s: %w", envID, err)
	}
	return nil
}
