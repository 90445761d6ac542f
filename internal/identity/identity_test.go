package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetOrCreateIsStable(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)

	first := store.GetOrCreate()
	if first == "" {
		t.Fatalf("got empty identity token")
	}
	second := store.GetOrCreate()
	if second != first {
		t.Fatalf("identity changed between calls: %q vs %q", first, second)
	}

	// A fresh store over the same directory sees the same token.
	if got := NewStore(dir, nil).GetOrCreate(); got != first {
		t.Fatalf("identity not durable across stores: %q vs %q", got, first)
	}
}

func TestGetOrCreateIgnoresEmptyFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "identity"), []byte("  \n"), 0o600); err != nil {
		t.Fatalf("seed empty file: %v", err)
	}

	token := NewStore(dir, nil).GetOrCreate()
	if token == "" {
		t.Fatalf("empty stored token was returned as-is")
	}
}

func TestGetOrCreateDegradesWhenUnwritable(t *testing.T) {
	// Point the store at a path that cannot be a directory.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("seed blocker: %v", err)
	}

	token := NewStore(filepath.Join(blocker, "nested"), nil).GetOrCreate()
	if token == "" {
		t.Fatalf("storage failure produced an empty identity")
	}
}
