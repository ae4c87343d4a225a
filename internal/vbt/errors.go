package vbt

import (
	"errors"
	"fmt"
)

// ErrBackupInProgress is returned when a backup is requested while another
// one is still running. Only one backup may run at a time; callers are
// expected to surface the refusal rather than queue.
var ErrBackupInProgress = errors.New("backup already in progress")

// ConfigurationError indicates that a setting required for the requested
// operation is missing or blank. Field names match the settings file keys.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("not configured: %s is required", e.Field)
}

// ConnectivityError indicates the storage endpoint could not be reached or
// rejected the request. It wraps the underlying transport or API error.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("storage unreachable during %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// UploadError indicates an archive upload failed after the client itself was
// built. Key is the object key the upload was addressed to.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// CsrfMismatchError indicates an authorization callback carried a state
// value that does not match the pending request. The callback is rejected
// and the exchange attempt is abandoned.
type CsrfMismatchError struct{}

func (e *CsrfMismatchError) Error() string {
	return "authorization state mismatch: callback does not belong to the pending request"
}

// NoAccountError indicates the authorized user has no accounts to issue
// storage credentials against.
type NoAccountError struct{}

func (e *NoAccountError) Error() string {
	return "no accounts available for this authorization"
}
