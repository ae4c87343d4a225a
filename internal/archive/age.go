package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"

	"vbt-go/internal/vbt"
)

// AgeBuilder wraps another builder and encrypts its output to an age
// recipient. Encryption is recipient-only: backups run without any secret
// present, and only the matching identity can read them back.
type AgeBuilder struct {
	inner     vbt.Archiver
	recipient age.Recipient
}

// NewAgeBuilder parses the recipient string (an age1... public key) and
// wraps inner with encryption.
func NewAgeBuilder(inner vbt.Archiver, recipient string) (*AgeBuilder, error) {
	recipients, err := age.ParseRecipients(strings.NewReader(recipient))
	if err != nil {
		return nil, fmt.Errorf("parsing encryption recipient: %w", err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no encryption recipient found")
	}
	return &AgeBuilder{inner: inner, recipient: recipients[0]}, nil
}

func (b *AgeBuilder) Suffix() string { return b.inner.Suffix() + ".age" }

func (b *AgeBuilder) ContentType() string { return "application/octet-stream" }

// Build builds the inner archive, spools an encrypted copy, and removes the
// plaintext spool.
func (b *AgeBuilder) Build(ctx context.Context, vault vbt.Vault, paths []string) (vbt.Archive, error) {
	plain, err := b.inner.Build(ctx, vault, paths)
	if err != nil {
		return nil, err
	}
	defer plain.Remove()

	r, err := plain.Open()
	if err != nil {
		return nil, fmt.Errorf("opening plaintext archive: %w", err)
	}
	defer r.Close()

	spool, err := os.CreateTemp("", "vbt-archive-*.zip.age")
	if err != nil {
		return nil, fmt.Errorf("creating encrypted spool: %w", err)
	}

	archive, err := b.encrypt(spool, r)
	if err != nil {
		spool.Close()
		os.Remove(spool.Name())
		return nil, err
	}
	return archive, nil
}

func (b *AgeBuilder) encrypt(spool *os.File, r io.Reader) (*Spool, error) {
	w, err := age.Encrypt(spool, b.recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return nil, fmt.Errorf("encrypting archive: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}

	info, err := spool.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat encrypted spool: %w", err)
	}
	if err := spool.Close(); err != nil {
		return nil, fmt.Errorf("closing encrypted spool: %w", err)
	}
	return &Spool{path: spool.Name(), size: info.Size()}, nil
}

// Compile-time check that AgeBuilder implements vbt.Archiver.
var _ vbt.Archiver = (*AgeBuilder)(nil)
