//go:build !windows

package images

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/imgprompt/imgprompt/internal/errors"
)

func TestRead_RefusesSymlink(t *testing.T) {
	base := t.TempDir()
	secret := filepath.Join(t.TempDir(), "secret.png")
	if err := os.WriteFile(secret, []byte("private"), 0o600); err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(base, "images", "2026", "10")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(secret, filepath.Join(dir, "link.png")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	s := NewStore(base, fixedNow)
	data, _, err := s.Read("images/2026/10/link.png")
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Fatalf("Read(symlink) = %q, %v; want INVALID_REQUEST", data, err)
	}
}
