package vaultfs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"vbt-go/internal/vbt"
)

// DirVault reads a vault rooted at a directory on the real filesystem.
// Listed paths are slash-separated and relative to the root, so they can be
// used directly as filter inputs and archive entry names.
type DirVault struct {
	root string
}

// NewDirVault opens the vault rooted at root. The root must exist and be a
// directory.
func NewDirVault(root string) (*DirVault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving vault root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat vault root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault root is not a directory: %s", abs)
	}
	return &DirVault{root: abs}, nil
}

// Root returns the absolute vault root.
func (v *DirVault) Root() string { return v.root }

// List returns the relative paths of all regular files under the root, in
// lexical walk order. Symlinks and other special files are skipped.
func (v *DirVault) List() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(v.root, p)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking vault: %w", err)
	}
	return paths, nil
}

// Open opens one vault file for reading.
func (v *DirVault) Open(relPath string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(v.root, filepath.FromSlash(relPath)))
}

// Compile-time check that DirVault implements vbt.Vault.
var _ vbt.Vault = (*DirVault)(nil)
