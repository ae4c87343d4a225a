package archive

import (
	"strings"

	"vbt-go/internal/vbt"
)

// NewBuilder returns the archive builder for the given settings: a plain zip
// builder, wrapped with age encryption when a recipient is configured.
func NewBuilder(encryptRecipient string) (vbt.Archiver, error) {
	builder := NewZipBuilder()
	if strings.TrimSpace(encryptRecipient) == "" {
		return builder, nil
	}
	return NewAgeBuilder(builder, encryptRecipient)
}
