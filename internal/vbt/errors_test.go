package vbt_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"vbt-go/internal/vbt"
)

func TestErrorTaxonomy(t *testing.T) {
	t.Run("configuration error names the field", func(t *testing.T) {
		err := &vbt.ConfigurationError{Field: "bucket"}
		if !strings.Contains(err.Error(), "bucket") {
			t.Errorf("Error() = %q, want it to mention the field", err.Error())
		}
	})

	t.Run("connectivity error unwraps its cause", func(t *testing.T) {
		cause := errors.New("dial tcp: timeout")
		err := fmt.Errorf("checking storage: %w", &vbt.ConnectivityError{Op: "head bucket", Err: cause})

		var connErr *vbt.ConnectivityError
		if !errors.As(err, &connErr) {
			t.Fatal("errors.As() did not find ConnectivityError")
		}
		if !errors.Is(err, cause) {
			t.Error("errors.Is() did not reach the wrapped cause")
		}
	})

	t.Run("upload error carries the key and unwraps", func(t *testing.T) {
		cause := errors.New("http 500")
		err := &vbt.UploadError{Key: "notes/a.zip", Err: cause}
		if !strings.Contains(err.Error(), "notes/a.zip") {
			t.Errorf("Error() = %q, want it to mention the key", err.Error())
		}
		if !errors.Is(err, cause) {
			t.Error("errors.Is() did not reach the wrapped cause")
		}
	})

	t.Run("backup-in-progress is a sentinel", func(t *testing.T) {
		err := fmt.Errorf("refused: %w", vbt.ErrBackupInProgress)
		if !errors.Is(err, vbt.ErrBackupInProgress) {
			t.Error("errors.Is() did not match the sentinel")
		}
	})
}
