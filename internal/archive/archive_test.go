package archive_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"filippo.io/age"

	"vbt-go/internal/archive"
	"vbt-go/internal/vaultfs"
	"vbt-go/internal/vbt"
)

// spoolDir points the builders' temp files at a per-test directory so the
// tests can assert that failed builds leave nothing behind.
func spoolDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)
	return dir
}

func readArchive(t *testing.T, a vbt.Archive) []byte {
	t.Helper()
	rc, err := a.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return data
}

func unpackZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader() error = %v", err)
	}
	entries := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("opening entry %s: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("reading entry %s: %v", f.Name, err)
		}
		entries[f.Name] = string(content)
	}
	return entries
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	return len(entries)
}

func TestZipBuilder(t *testing.T) {
	t.Run("archives the given files under their relative paths", func(t *testing.T) {
		spoolDir(t)
		vault := vaultfs.NewMemVault()
		vault.AddFile("a.md", []byte("alpha"))
		vault.AddFile("sub/b.md", []byte("beta"))

		builder := archive.NewZipBuilder()
		a, err := builder.Build(context.Background(), vault, []string{"a.md", "sub/b.md"})
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		defer a.Remove()

		data := readArchive(t, a)
		if int64(len(data)) != a.Size() {
			t.Errorf("Size() = %d, want %d", a.Size(), len(data))
		}

		entries := unpackZip(t, data)
		if len(entries) != 2 {
			t.Fatalf("archive has %d entries, want 2", len(entries))
		}
		if entries["a.md"] != "alpha" || entries["sub/b.md"] != "beta" {
			t.Errorf("entries = %v, want alpha/beta content", entries)
		}
	})

	t.Run("archives only the requested files", func(t *testing.T) {
		spoolDir(t)
		vault := vaultfs.NewMemVault()
		vault.AddFile("keep.md", []byte("k"))
		vault.AddFile(".git/HEAD", []byte("ref"))

		builder := archive.NewZipBuilder()
		a, err := builder.Build(context.Background(), vault, []string{"keep.md"})
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		defer a.Remove()

		entries := unpackZip(t, readArchive(t, a))
		if _, ok := entries[".git/HEAD"]; ok {
			t.Error("archive contains an entry that was not requested")
		}
		if len(entries) != 1 {
			t.Errorf("archive has %d entries, want 1", len(entries))
		}
	})

	t.Run("empty file set produces a valid empty archive", func(t *testing.T) {
		spoolDir(t)
		builder := archive.NewZipBuilder()
		a, err := builder.Build(context.Background(), vaultfs.NewMemVault(), nil)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		defer a.Remove()

		entries := unpackZip(t, readArchive(t, a))
		if len(entries) != 0 {
			t.Errorf("archive has %d entries, want 0", len(entries))
		}
	})

	t.Run("rejects duplicate entries", func(t *testing.T) {
		dir := spoolDir(t)
		vault := vaultfs.NewMemVault()
		vault.AddFile("a.md", []byte("x"))

		builder := archive.NewZipBuilder()
		_, err := builder.Build(context.Background(), vault, []string{"a.md", "a.md"})
		if err == nil {
			t.Fatal("Build() expected error for duplicate entry")
		}
		if n := countFiles(t, dir); n != 0 {
			t.Errorf("spool dir has %d files after failed build, want 0", n)
		}
	})

	t.Run("read failure aborts and removes the spool", func(t *testing.T) {
		dir := spoolDir(t)
		vault := vaultfs.NewMemVault()
		vault.AddFile("good.md", []byte("ok"))
		vault.AddFile("bad.md", []byte("nope"))
		vault.FailOpen("bad.md", errors.New("unreadable"))

		builder := archive.NewZipBuilder()
		_, err := builder.Build(context.Background(), vault, []string{"good.md", "bad.md"})
		if err == nil {
			t.Fatal("Build() expected error for unreadable file")
		}
		if n := countFiles(t, dir); n != 0 {
			t.Errorf("spool dir has %d files after failed build, want 0", n)
		}
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		dir := spoolDir(t)
		vault := vaultfs.NewMemVault()
		vault.AddFile("a.md", []byte("x"))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		builder := archive.NewZipBuilder()
		if _, err := builder.Build(ctx, vault, []string{"a.md"}); !errors.Is(err, context.Canceled) {
			t.Errorf("Build() error = %v, want context.Canceled", err)
		}
		if n := countFiles(t, dir); n != 0 {
			t.Errorf("spool dir has %d files after cancelled build, want 0", n)
		}
	})

	t.Run("remove deletes the spool", func(t *testing.T) {
		dir := spoolDir(t)
		builder := archive.NewZipBuilder()
		a, err := builder.Build(context.Background(), vaultfs.NewMemVault(), nil)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if err := a.Remove(); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if n := countFiles(t, dir); n != 0 {
			t.Errorf("spool dir has %d files after Remove(), want 0", n)
		}
		if _, err := a.Open(); err == nil {
			t.Error("Open() after Remove() expected error")
		}
	})
}

func TestAgeBuilder(t *testing.T) {
	t.Run("encrypted archive round-trips through the identity", func(t *testing.T) {
		dir := spoolDir(t)
		identity, err := age.GenerateX25519Identity()
		if err != nil {
			t.Fatalf("GenerateX25519Identity() error = %v", err)
		}

		vault := vaultfs.NewMemVault()
		vault.AddFile("secret.md", []byte("classified"))

		builder, err := archive.NewAgeBuilder(archive.NewZipBuilder(), identity.Recipient().String())
		if err != nil {
			t.Fatalf("NewAgeBuilder() error = %v", err)
		}
		if got := builder.Suffix(); got != ".zip.age" {
			t.Errorf("Suffix() = %q, want %q", got, ".zip.age")
		}
		if got := builder.ContentType(); got != "application/octet-stream" {
			t.Errorf("ContentType() = %q, want octet-stream", got)
		}

		a, err := builder.Build(context.Background(), vault, []string{"secret.md"})
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		defer a.Remove()

		// The plaintext spool must be gone; only the encrypted one remains.
		if n := countFiles(t, dir); n != 1 {
			t.Errorf("spool dir has %d files, want 1", n)
		}

		dec, err := age.Decrypt(bytes.NewReader(readArchive(t, a)), identity)
		if err != nil {
			t.Fatalf("age.Decrypt() error = %v", err)
		}
		plain, err := io.ReadAll(dec)
		if err != nil {
			t.Fatalf("reading decrypted archive: %v", err)
		}

		entries := unpackZip(t, plain)
		if entries["secret.md"] != "classified" {
			t.Errorf("entries = %v, want secret.md content", entries)
		}
	})

	t.Run("rejects a malformed recipient", func(t *testing.T) {
		if _, err := archive.NewAgeBuilder(archive.NewZipBuilder(), "not-a-key"); err == nil {
			t.Error("NewAgeBuilder() expected error for malformed recipient")
		}
	})
}

func TestNewBuilder(t *testing.T) {
	t.Run("no recipient yields a plain zip builder", func(t *testing.T) {
		builder, err := archive.NewBuilder("")
		if err != nil {
			t.Fatalf("NewBuilder() error = %v", err)
		}
		if got := builder.Suffix(); got != ".zip" {
			t.Errorf("Suffix() = %q, want %q", got, ".zip")
		}
		if got := builder.ContentType(); got != "application/zip" {
			t.Errorf("ContentType() = %q, want application/zip", got)
		}
	})

	t.Run("recipient yields an encrypting builder", func(t *testing.T) {
		identity, err := age.GenerateX25519Identity()
		if err != nil {
			t.Fatalf("GenerateX25519Identity() error = %v", err)
		}
		builder, err := archive.NewBuilder(identity.Recipient().String())
		if err != nil {
			t.Fatalf("NewBuilder() error = %v", err)
		}
		if got := builder.Suffix(); got != ".zip.age" {
			t.Errorf("Suffix() = %q, want %q", got, ".zip.age")
		}
	})
}
