package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"

	"vbt-go/internal/vbt"
)

// ZipBuilder builds zip archives from vault files, spooling the result to a
// temporary file rather than memory so large vaults stay cheap to archive.
type ZipBuilder struct{}

func NewZipBuilder() *ZipBuilder { return &ZipBuilder{} }

func (b *ZipBuilder) Suffix() string { return ".zip" }

func (b *ZipBuilder) ContentType() string { return "application/zip" }

// Build streams each vault file into a zip entry named by its relative path.
// Any failure removes the partial spool before returning.
func (b *ZipBuilder) Build(ctx context.Context, vault vbt.Vault, paths []string) (vbt.Archive, error) {
	spool, err := os.CreateTemp("", "vbt-archive-*.zip")
	if err != nil {
		return nil, fmt.Errorf("creating archive spool: %w", err)
	}

	archive, err := b.build(ctx, spool, vault, paths)
	if err != nil {
		spool.Close()
		os.Remove(spool.Name())
		return nil, err
	}
	return archive, nil
}

func (b *ZipBuilder) build(ctx context.Context, spool *os.File, vault vbt.Vault, paths []string) (*Spool, error) {
	zw := zip.NewWriter(spool)
	seen := make(map[string]bool, len(paths))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if seen[path] {
			return nil, fmt.Errorf("duplicate archive entry: %s", path)
		}
		seen[path] = true

		if err := addEntry(zw, vault, path); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}
	info, err := spool.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive spool: %w", err)
	}
	if err := spool.Close(); err != nil {
		return nil, fmt.Errorf("closing archive spool: %w", err)
	}
	return &Spool{path: spool.Name(), size: info.Size()}, nil
}

func addEntry(zw *zip.Writer, vault vbt.Vault, path string) error {
	rc, err := vault.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer rc.Close()

	w, err := zw.Create(path)
	if err != nil {
		return fmt.Errorf("creating entry %s: %w", path, err)
	}
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("archiving %s: %w", path, err)
	}
	return nil
}

// Compile-time check that ZipBuilder implements vbt.Archiver.
var _ vbt.Archiver = (*ZipBuilder)(nil)
