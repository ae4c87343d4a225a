package vbt

import (
	"strings"
	"sync"
)

// CredentialSet is a point-in-time snapshot of everything needed to address
// the storage endpoint: the account the endpoint is scoped to, the key pair,
// and the target bucket. The bearer token rides along for key re-issuance
// but never signs storage requests itself.
type CredentialSet struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	BearerToken     string
}

// MissingEndpointField returns the name of the first blank field among those
// needed just to build a storage client (the bucket is not one of them), or
// "" when they are all present. Whitespace-only values count as blank.
func (c CredentialSet) MissingEndpointField() string {
	switch {
	case blank(c.AccountID):
		return "account_id"
	case blank(c.AccessKeyID):
		return "access_key_id"
	case blank(c.SecretAccessKey):
		return "secret_access_key"
	}
	return ""
}

// MissingField is MissingEndpointField plus the bucket requirement. A backup
// or connection test needs the full set.
func (c CredentialSet) MissingField() string {
	if field := c.MissingEndpointField(); field != "" {
		return field
	}
	if blank(c.Bucket) {
		return "bucket"
	}
	return ""
}

// Usable reports whether every field required for a backup is present.
func (c CredentialSet) Usable() bool { return c.MissingField() == "" }

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// CredentialStore holds the live credential set and hands out versioned
// snapshots. Every mutation bumps the version, which is how cached storage
// clients learn they were built against stale credentials.
type CredentialStore struct {
	mu      sync.Mutex
	set     CredentialSet
	version uint64
}

// NewCredentialStore seeds a store with the credentials loaded from settings.
func NewCredentialStore(set CredentialSet) *CredentialStore {
	return &CredentialStore{set: set, version: 1}
}

// Snapshot returns the current credential set together with its version.
func (s *CredentialStore) Snapshot() (CredentialSet, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set, s.version
}

// SetKeys replaces the access key pair.
func (s *CredentialStore) SetKeys(accessKeyID, secretAccessKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set.AccessKeyID = accessKeyID
	s.set.SecretAccessKey = secretAccessKey
	s.version++
}

// SetAccountID replaces the account the endpoint is scoped to.
func (s *CredentialStore) SetAccountID(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set.AccountID = accountID
	s.version++
}

// SetBucket replaces the target bucket.
func (s *CredentialStore) SetBucket(bucket string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set.Bucket = bucket
	s.version++
}

// SetBearerToken replaces the authorization bearer token.
func (s *CredentialStore) SetBearerToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set.BearerToken = token
	s.version++
}

// Clear wipes every field, as on disconnect.
func (s *CredentialStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = CredentialSet{}
	s.version++
}
