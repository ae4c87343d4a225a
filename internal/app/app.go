package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"

	"vbt-go/internal/archive"
	"vbt-go/internal/authflow"
	"vbt-go/internal/history"
	"vbt-go/internal/settings"
	"vbt-go/internal/storage"
	"vbt-go/internal/vaultfs"
	"vbt-go/internal/vbt"
)

// App is the application layer between the CLI and the backup service.
// It constructs all dependencies from settings, persists settings mutations
// back to disk, and manages resource lifecycle on Close.
type App struct {
	settingsPath string
	statusPath   string

	mu  sync.Mutex
	cfg *settings.Settings

	creds   *vbt.CredentialStore
	store   *storage.R2Store
	status  *vbt.StatusReporter
	history *history.Store
	logger  vbt.Logger
	clock   clock.Clock
	logFile *os.File

	service *vbt.BackupService // built on first use; needs a configured vault
}

// New creates a fully wired App from loaded settings. operation identifies
// the CLI command being run (e.g. "backup", "connect") and tags every log
// line of this process. The caller must call Close when done.
func New(cfg *settings.Settings, settingsPath, statusPath, operation string) (*App, error) {
	opID := operation + "-" + time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID, parseLevel(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	creds := vbt.NewCredentialStore(vbt.CredentialSet{
		AccountID:       cfg.AccountID,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Bucket:          cfg.Bucket,
		BearerToken:     cfg.BearerToken,
	})
	clk := clock.WallClock

	a := &App{
		settingsPath: settingsPath,
		statusPath:   statusPath,
		cfg:          cfg,
		creds:        creds,
		store:        storage.NewR2Store(creds, cfg.EndpointDomain, logger),
		status:       vbt.NewStatusReporter(clk, logger),
		logger:       logger,
		clock:        clk,
		logFile:      logFile,
	}

	// Run history is best-effort: a broken local database must not block
	// backups, so the store degrades to nil instead of failing construction.
	hs, err := history.Open(filepath.Join(cfg.HistoryDir, "runs.db"))
	if err != nil {
		logger.Warn("run history unavailable", "error", err)
	} else {
		a.history = hs
	}

	return a, nil
}

// backupService builds the service on first use. Construction needs a
// configured vault root, which commands like connect and test do not.
func (a *App) backupService() (*vbt.BackupService, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.service != nil {
		return a.service, nil
	}

	if strings.TrimSpace(a.cfg.VaultRoot) == "" {
		return nil, &vbt.ConfigurationError{Field: "vault_root"}
	}
	v, err := vaultfs.NewDirVault(a.cfg.VaultRoot)
	if err != nil {
		return nil, fmt.Errorf("opening vault: %w", err)
	}
	archiver, err := archive.NewBuilder(a.cfg.EncryptRecipient)
	if err != nil {
		return nil, fmt.Errorf("creating archive builder: %w", err)
	}

	a.service = vbt.NewBackupService(a.store, v, archiver, a.creds, a.recorder(), a.status, a.runParams, a.logger, a.clock, vbt.UUIDGenerator{})
	return a.service, nil
}

// recorder returns the run recorder, or a nil interface when history is
// unavailable. A typed nil *history.Store must not leak into the interface.
func (a *App) recorder() vbt.RunRecorder {
	if a.history == nil {
		return nil
	}
	return a.history
}

// runParams snapshots the per-run settings. The service calls this at the
// start of every backup.
func (a *App) runParams() vbt.RunParams {
	a.mu.Lock()
	defer a.mu.Unlock()
	return vbt.RunParams{
		BackupPath:     a.cfg.BackupPath,
		ExcludeFolders: a.cfg.ExcludeFolders,
	}
}

// mutate applies fn to the settings under lock, then persists the document.
func (a *App) mutate(fn func(*settings.Settings)) error {
	a.mu.Lock()
	fn(a.cfg)
	snapshot := *a.cfg
	a.mu.Unlock()
	return settings.Save(a.settingsPath, &snapshot)
}

// Settings returns a copy of the current settings document.
func (a *App) Settings() settings.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return *a.cfg
}

// Backup runs one backup now and returns the completed run record. A second
// backup started while one is running is refused with ErrBackupInProgress.
func (a *App) Backup(ctx context.Context) (*vbt.Run, error) {
	svc, err := a.backupService()
	if err != nil {
		return nil, err
	}
	return svc.RunBackup(ctx)
}

// TestConnection verifies the configured bucket is reachable with the
// current credentials.
func (a *App) TestConnection(ctx context.Context) error {
	return a.store.TestConnection(ctx)
}

// Buckets lists the buckets visible to the current credentials and caches
// the names in settings.
func (a *App) Buckets(ctx context.Context) ([]string, error) {
	names, err := a.store.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.mutate(func(c *settings.Settings) { c.AvailableBuckets = names }); err != nil {
		a.logger.Warn("caching bucket list", "error", err)
	}
	return names, nil
}

// Connect runs the browser authorization flow: it starts the loopback
// callback server, opens the authorization page, and blocks until the
// exchange finishes or ctx expires. notify receives the authorization URL
// so the caller can show it to the user. When resume is true and an earlier
// run left an attempt pending, that attempt's callback is awaited instead
// of opening a new page.
func (a *App) Connect(ctx context.Context, resume bool, notify func(authURL string)) error {
	cfg := a.Settings()
	if strings.TrimSpace(cfg.Auth.APIBaseURL) == "" {
		return &vbt.ConfigurationError{Field: "auth.api_base_url"}
	}
	addr := cfg.Auth.CallbackAddr
	if strings.TrimSpace(addr) == "" {
		return &vbt.ConfigurationError{Field: "auth.callback_addr"}
	}

	flow, err := authflow.NewFlow(authflow.Config{
		ClientID:      cfg.Auth.ClientID,
		AuthorizeURL:  cfg.Auth.AuthorizeURL,
		RedirectURI:   "http://" + addr + "/callback",
		Scope:         cfg.Auth.Scope,
		TrustedOrigin: cfg.Auth.TrustedOrigin,
	}, authflow.NewAPIClient(cfg.Auth.APIBaseURL), flowStore{a}, a.logger)
	if err != nil {
		return err
	}

	srv := authflow.NewCallbackServer(addr, flow, a.logger)
	if err := srv.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Stop(stopCtx); err != nil {
			a.logger.Warn("stopping callback server", "error", err)
		}
	}()

	if resume && strings.TrimSpace(cfg.PendingAuthState) != "" {
		flow.Resume(cfg.PendingAuthState)
		a.logger.Info("resuming pending authorization")
	} else {
		authURL, err := flow.Begin(ctx)
		if err != nil {
			return err
		}
		if notify != nil {
			notify(authURL)
		}
	}

	select {
	case <-flow.Done():
		return flow.Err()
	case <-ctx.Done():
		return fmt.Errorf("waiting for authorization: %w", ctx.Err())
	}
}

// Disconnect wipes the stored authorization and storage credentials.
func (a *App) Disconnect() error {
	a.creds.Clear()
	return a.mutate(func(c *settings.Settings) {
		c.AccountID = ""
		c.AccessKeyID = ""
		c.SecretAccessKey = ""
		c.Bucket = ""
		c.BearerToken = ""
		c.PendingAuthState = ""
		c.AvailableBuckets = nil
	})
}

// History returns the most recent runs, newest first.
func (a *App) History(limit int) ([]*vbt.Run, error) {
	if a.history == nil {
		return nil, fmt.Errorf("run history unavailable")
	}
	return a.history.Recent(limit)
}

// RunDaemon mirrors status changes to the status file and drives scheduled
// backups until ctx is cancelled.
func (a *App) RunDaemon(ctx context.Context) error {
	// Surface a missing vault or bad recipient at startup, not at the
	// first tick.
	if _, err := a.backupService(); err != nil {
		return err
	}
	a.status.MirrorTo(a.statusPath)

	cfg := a.Settings()
	sched := vbt.NewScheduler(a.clock, a.logger, func(ctx context.Context) error {
		_, err := a.Backup(ctx)
		return err
	})
	sched.Reconfigure(cfg.AutoBackup, cfg.Frequency())
	a.logger.Info("daemon started", "auto_backup", cfg.AutoBackup, "frequency", cfg.Frequency())

	<-ctx.Done()
	sched.Stop()
	a.logger.Info("daemon stopped")
	return nil
}

// ReadStatus returns the last status line the daemon wrote, or the idle
// line when no daemon has written one.
func ReadStatus(statusPath string) string {
	data, err := os.ReadFile(statusPath)
	if err != nil {
		return vbt.StatusIdle
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return vbt.StatusIdle
	}
	return text
}

// SetKeys stores a manually issued key pair.
func (a *App) SetKeys(accessKeyID, secretAccessKey string) error {
	a.creds.SetKeys(accessKeyID, secretAccessKey)
	return a.mutate(func(c *settings.Settings) {
		c.AccessKeyID = accessKeyID
		c.SecretAccessKey = secretAccessKey
	})
}

// SetAccountID stores the account the storage endpoint is scoped to.
func (a *App) SetAccountID(accountID string) error {
	a.creds.SetAccountID(accountID)
	return a.mutate(func(c *settings.Settings) { c.AccountID = accountID })
}

// SetBucket selects the bucket archives are uploaded to.
func (a *App) SetBucket(bucket string) error {
	a.creds.SetBucket(bucket)
	return a.mutate(func(c *settings.Settings) { c.Bucket = bucket })
}

// SetBackupPath sets the folder prefix archives are stored under.
func (a *App) SetBackupPath(path string) error {
	return a.mutate(func(c *settings.Settings) { c.BackupPath = path })
}

// SetExcludeFolders replaces the comma-separated folder exclusion list.
func (a *App) SetExcludeFolders(folders string) error {
	return a.mutate(func(c *settings.Settings) { c.ExcludeFolders = folders })
}

// SetSchedule enables or disables automatic backups. minutes is clamped
// into the allowed range.
func (a *App) SetSchedule(enabled bool, minutes int) error {
	return a.mutate(func(c *settings.Settings) {
		c.AutoBackup = enabled
		c.BackupFrequencyMinutes = settings.ClampFrequency(minutes)
	})
}

// SetVaultRoot points the tool at a vault directory, which must exist.
func (a *App) SetVaultRoot(root string) error {
	if _, err := vaultfs.NewDirVault(root); err != nil {
		return fmt.Errorf("opening vault: %w", err)
	}
	a.mu.Lock()
	a.service = nil // rebuilt against the new root on next use
	a.mu.Unlock()
	return a.mutate(func(c *settings.Settings) { c.VaultRoot = root })
}

// Close releases resources. Call once, after all operations.
func (a *App) Close() error {
	var firstErr error

	if a.history != nil {
		if err := a.history.Close(); err != nil {
			firstErr = fmt.Errorf("closing run history: %w", err)
		}
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}

	return firstErr
}

// flowStore persists authorization progress into settings and the live
// credential store as the exchange advances.
type flowStore struct {
	a *App
}

func (s flowStore) SavePendingState(nonce string) error {
	return s.a.mutate(func(c *settings.Settings) { c.PendingAuthState = nonce })
}

func (s flowStore) SaveBearerToken(token string) error {
	s.a.creds.SetBearerToken(token)
	return s.a.mutate(func(c *settings.Settings) { c.BearerToken = token })
}

func (s flowStore) SaveAccountID(id string) error {
	s.a.creds.SetAccountID(id)
	return s.a.mutate(func(c *settings.Settings) { c.AccountID = id })
}

func (s flowStore) SaveKeys(accessKeyID, secretAccessKey string) error {
	s.a.creds.SetKeys(accessKeyID, secretAccessKey)
	return s.a.mutate(func(c *settings.Settings) {
		c.AccessKeyID = accessKeyID
		c.SecretAccessKey = secretAccessKey
	})
}

var _ authflow.Store = flowStore{}
