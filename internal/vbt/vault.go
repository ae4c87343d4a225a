package vbt

import "io"

// Vault is a read-only view of the files to back up. Paths are
// slash-separated and relative to the vault root.
type Vault interface {
	// List returns the relative paths of all regular files in the vault,
	// in a stable order.
	List() ([]string, error)

	// Open opens one file for reading.
	Open(relPath string) (io.ReadCloser, error)
}
