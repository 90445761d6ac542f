package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const selectionFile = "persona"

// Selection persists the chosen persona id across runs. It does not
// validate the id against the registry; resolution happens where the id
// is dereferenced.
type Selection struct {
	dir string
}

// NewSelection creates a selection store rooted at dir.
func NewSelection(dir string) *Selection {
	return &Selection{dir: dir}
}

// Select stores id as the active persona.
func (s *Selection) Select(id string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(s.dir, selectionFile)
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return fmt.Errorf("store persona selection: %w", err)
	}
	return nil
}

// Current returns the selected persona id, or "" when none was ever
// selected.
func (s *Selection) Current() string {
	data, err := os.ReadFile(filepath.Join(s.dir, selectionFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
