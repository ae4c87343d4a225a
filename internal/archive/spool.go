package archive

import (
	"io"
	"os"

	"vbt-go/internal/vbt"
)

// Spool is a temp-file-backed archive blob. Builders write it exactly once;
// afterwards it is read-only until removed.
type Spool struct {
	path string
	size int64
}

// Open opens the spooled bytes for reading.
func (s *Spool) Open() (io.ReadCloser, error) {
	return os.Open(s.path)
}

// Size is the spooled size in bytes.
func (s *Spool) Size() int64 { return s.size }

// Remove deletes the spool file.
func (s *Spool) Remove() error {
	return os.Remove(s.path)
}

// Compile-time check that Spool implements vbt.Archive.
var _ vbt.Archive = (*Spool)(nil)
