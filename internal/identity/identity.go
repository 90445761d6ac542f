// Package identity manages the opaque per-installation token that scopes
// all persisted data. The token is generated once, stored in the data
// directory and reused on every subsequent run.
package identity

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const tokenFile = "identity"

// Store reads and writes the identity token under a data directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// GetOrCreate returns the stored identity token, generating and persisting
// a fresh one on first run. A storage failure degrades to an ephemeral
// token for this run instead of an empty identity; persistence calls keep
// working, they just attribute to a token that will not survive a restart.
func (s *Store) GetOrCreate() string {
	path := filepath.Join(s.dir, tokenFile)

	if data, err := os.ReadFile(path); err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			return token
		}
	}

	token := uuid.NewString()
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		s.logger.Warn("identity not persisted", "error", err)
		return token
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		s.logger.Warn("identity not persisted", "error", err)
	}
	return token
}
