package vbt

import (
	"context"
	"io"
)

// Archive is a finished backup archive ready for upload. Implementations
// spool to a temporary file; Remove releases it.
type Archive interface {
	// Open opens the archive bytes for reading.
	Open() (io.ReadCloser, error)

	// Size is the archive size in bytes.
	Size() int64

	// Remove deletes the spooled archive. Safe to call once the upload is
	// finished or abandoned.
	Remove() error
}

// Archiver builds archives from vault files.
type Archiver interface {
	// Build archives the given vault files in order. Paths must be unique;
	// a duplicate aborts the build. A failed build leaves nothing behind.
	Build(ctx context.Context, vault Vault, paths []string) (Archive, error)

	// Suffix is the file name suffix for archives this builder produces,
	// such as ".zip".
	Suffix() string

	// ContentType is the MIME type uploads of these archives are tagged
	// with.
	ContentType() string
}
