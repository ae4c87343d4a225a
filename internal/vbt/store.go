package vbt

import (
	"context"
	"io"
)

// ObjectStore is the storage backend archives are uploaded to.
type ObjectStore interface {
	// TestConnection verifies the configured bucket is reachable with the
	// current credentials. Missing settings surface as *ConfigurationError,
	// network or auth failures as *ConnectivityError.
	TestConnection(ctx context.Context) error

	// ListBuckets returns the names of the buckets visible to the current
	// credentials. A selected bucket is not required.
	ListBuckets(ctx context.Context) ([]string, error)

	// PutObject uploads size bytes from body under key with the given
	// content type. Failures surface as *UploadError.
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}
