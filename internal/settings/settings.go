package settings

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Bounds for the automatic backup frequency, in minutes.
const (
	MinFrequencyMinutes     = 15
	MaxFrequencyMinutes     = 1440
	DefaultFrequencyMinutes = 60
)

// Settings is the persisted configuration document for vbt.
type Settings struct {
	// Storage target. An empty endpoint_domain selects the standard
	// Cloudflare R2 domain.
	AccountID        string   `toml:"account_id"`
	AccessKeyID      string   `toml:"access_key_id"`
	SecretAccessKey  string   `toml:"secret_access_key"`
	Bucket           string   `toml:"bucket"`
	EndpointDomain   string   `toml:"endpoint_domain,omitempty"`
	AvailableBuckets []string `toml:"available_buckets,omitempty"`

	// What to back up and where inside the bucket to put it.
	VaultRoot      string `toml:"vault_root"`
	BackupPath     string `toml:"backup_path"`
	ExcludeFolders string `toml:"exclude_folders"`

	// Automatic backups.
	AutoBackup             bool `toml:"auto_backup"`
	BackupFrequencyMinutes int  `toml:"backup_frequency_minutes"`

	// Authorization progress. The bearer token survives partial exchanges;
	// the pending state nonce survives restarts mid-flow.
	BearerToken      string `toml:"bearer_token,omitempty"`
	PendingAuthState string `toml:"pending_auth_state,omitempty"`

	// Local directories.
	LogDir     string `toml:"log_dir"`
	HistoryDir string `toml:"history_dir"`

	// Log verbosity: debug, info, warn or error. Empty means info.
	LogLevel string `toml:"log_level,omitempty"`

	// Optional archive encryption: an age recipient string. Empty disables
	// encryption and uploads plain zip archives.
	EncryptRecipient string `toml:"encrypt_recipient,omitempty"`

	Auth AuthSettings `toml:"auth"`
}

// AuthSettings configures the browser token-exchange flow.
type AuthSettings struct {
	ClientID     string `toml:"client_id"`
	AuthorizeURL string `toml:"authorize_url"`
	APIBaseURL   string `toml:"api_base_url"`
	// Scope is passed through to the authorization page. Empty omits it.
	Scope string `toml:"scope,omitempty"`
	// TrustedOrigin is the only web origin callbacks are accepted from.
	// Empty derives it from the authorize URL.
	TrustedOrigin string `toml:"trusted_origin,omitempty"`
	CallbackAddr  string `toml:"callback_addr"`
}

// NewSettings creates a Settings document with defaults rooted at baseDir.
func NewSettings(baseDir string) *Settings {
	return &Settings{
		BackupFrequencyMinutes: DefaultFrequencyMinutes,
		LogDir:                 filepath.Join(baseDir, "log"),
		HistoryDir:             filepath.Join(baseDir, "history"),
		Auth: AuthSettings{
			CallbackAddr: "127.0.0.1:8799",
		},
	}
}

// ClampFrequency returns minutes clamped into the allowed range.
func ClampFrequency(minutes int) int {
	if minutes < MinFrequencyMinutes {
		return MinFrequencyMinutes
	}
	if minutes > MaxFrequencyMinutes {
		return MaxFrequencyMinutes
	}
	return minutes
}

// Normalize repairs out-of-range values after decoding or mutation.
func (s *Settings) Normalize() {
	s.BackupFrequencyMinutes = ClampFrequency(s.BackupFrequencyMinutes)
}

// Frequency returns the automatic backup interval.
func (s *Settings) Frequency() time.Duration {
	return time.Duration(s.BackupFrequencyMinutes) * time.Minute
}

// Manager handles reading and writing settings.
type Manager struct{}

// Read decodes settings from r over the provided base document, so keys
// absent from the file keep their defaults. The result is normalized.
func (m *Manager) Read(r io.Reader, base *Settings) (*Settings, error) {
	s := *base
	if _, err := toml.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	s.Normalize()
	return &s, nil
}

// Write encodes settings to the provided writer.
func (m *Manager) Write(w io.Writer, s *Settings) error {
	if err := toml.NewEncoder(w).Encode(s); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return nil
}

// Load reads the settings file at path, merged over defaults rooted at
// baseDir. A missing file yields the defaults.
func Load(path, baseDir string) (*Settings, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		s := NewSettings(baseDir)
		s.Normalize()
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open settings file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	s, err := m.Read(f, NewSettings(baseDir))
	if err != nil {
		return nil, fmt.Errorf("reading settings from %s: %w", path, err)
	}
	return s, nil
}

// Save writes settings to path atomically: encode into a temp file in the
// same directory, then rename over the target. The document holds
// credentials, and the temp file's 0600 mode carries over.
func Save(path string, s *Settings) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".vbt-settings-*")
	if err != nil {
		return fmt.Errorf("failed to create settings temp file: %w", err)
	}

	m := &Manager{}
	if err := m.Write(tmp, s); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing settings to %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing settings temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing settings file: %w", err)
	}
	return nil
}

// Init creates a new settings file at path, failing if one already exists.
func Init(path string, s *Settings) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("settings file already exists at %s", path)
	}
	if err := Save(path, s); err != nil {
		return fmt.Errorf("initializing settings: %w", err)
	}
	return nil
}
