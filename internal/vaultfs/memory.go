package vaultfs

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"vbt-go/internal/vbt"
)

// MemVault is an in-memory implementation of the Vault interface, useful for
// testing. It is safe for concurrent use.
type MemVault struct {
	mu      sync.Mutex
	order   []string
	files   map[string][]byte
	openErr map[string]error
	listErr error
}

// NewMemVault creates an empty in-memory vault.
func NewMemVault() *MemVault {
	return &MemVault{
		files:   make(map[string][]byte),
		openErr: make(map[string]error),
	}
}

// AddFile stores content under the given relative path. Re-adding a path
// replaces its content without changing the list order.
func (v *MemVault) AddFile(relPath string, content []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.files[relPath]; !ok {
		v.order = append(v.order, relPath)
	}
	v.files[relPath] = append([]byte(nil), content...)
}

// FailOpen makes Open return err for the given path.
func (v *MemVault) FailOpen(relPath string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.openErr[relPath] = err
}

// FailList makes List return err.
func (v *MemVault) FailList(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listErr = err
}

// List returns the stored paths in insertion order.
func (v *MemVault) List() ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.listErr != nil {
		return nil, v.listErr
	}
	return append([]string(nil), v.order...), nil
}

// Open opens one stored file for reading.
func (v *MemVault) Open(relPath string) (io.ReadCloser, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.openErr[relPath]; err != nil {
		return nil, err
	}
	content, ok := v.files[relPath]
	if !ok {
		return nil, fmt.Errorf("no such vault file: %s", relPath)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

// Compile-time check that MemVault implements vbt.Vault.
var _ vbt.Vault = (*MemVault)(nil)
