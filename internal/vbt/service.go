package vbt

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
)

// uploadTimeout bounds a single archive upload.
const uploadTimeout = 10 * time.Minute

// RunParams are the per-run knobs read from settings at the start of each
// backup, so a running daemon picks up edits without a restart.
type RunParams struct {
	BackupPath     string
	ExcludeFolders string
}

// BackupService coordinates one full backup: enumerate the vault, drop
// excluded folders, build the archive, upload it, and record the outcome.
// At most one backup runs at a time; concurrent requests are refused with
// ErrBackupInProgress rather than queued.
type BackupService struct {
	store    ObjectStore
	vault    Vault
	archiver Archiver
	creds    *CredentialStore
	recorder RunRecorder
	status   *StatusReporter
	params   func() RunParams
	logger   Logger
	clock    clock.Clock
	idgen    IDGenerator

	running atomic.Bool
}

// NewBackupService creates a BackupService with the provided dependencies.
// recorder may be nil when run history is disabled.
func NewBackupService(store ObjectStore, vault Vault, archiver Archiver, creds *CredentialStore, recorder RunRecorder, status *StatusReporter, params func() RunParams, logger Logger, clk clock.Clock, idgen IDGenerator) *BackupService {
	return &BackupService{
		store:    store,
		vault:    vault,
		archiver: archiver,
		creds:    creds,
		recorder: recorder,
		status:   status,
		params:   params,
		logger:   logger,
		clock:    clk,
		idgen:    idgen,
	}
}

// RunBackup performs a single backup of the vault and returns the completed
// run record. On failure the record carries the failure reason alongside the
// returned error; the record is persisted either way.
func (s *BackupService) RunBackup(ctx context.Context) (*Run, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrBackupInProgress
	}
	defer s.running.Store(false)

	run := &Run{
		ID:        s.idgen.New(),
		StartedAt: s.clock.Now(),
	}
	s.status.SetBusy("backup in progress")
	s.logger.Info("backup started", "run", run.ID)

	err := s.runOnce(ctx, run)
	run.FinishedAt = s.clock.Now()
	if err != nil {
		run.Status = RunFailed
		run.Reason = err.Error()
		s.status.SetError("backup failed: " + err.Error())
		s.logger.Error("backup failed", "run", run.ID, "error", err)
	} else {
		run.Status = RunSucceeded
		s.status.SetSuccess("backup complete: " + run.Key)
		s.logger.Info("backup complete", "run", run.ID, "key", run.Key, "files", run.FileCount, "bytes", run.Bytes)
	}

	if s.recorder != nil {
		if rerr := s.recorder.Record(run); rerr != nil {
			s.logger.Warn("recording run", "run", run.ID, "error", rerr)
		}
	}
	return run, err
}

func (s *BackupService) runOnce(ctx context.Context, run *Run) error {
	snap, _ := s.creds.Snapshot()
	if field := snap.MissingField(); field != "" {
		return &ConfigurationError{Field: field}
	}
	// Prove the target is reachable before enumerating a single file.
	if err := s.store.TestConnection(ctx); err != nil {
		return err
	}

	params := s.params()
	run.Key = ObjectKey(params.BackupPath, BackupFileName(run.StartedAt, s.archiver.Suffix()))

	paths, err := s.vault.List()
	if err != nil {
		return fmt.Errorf("listing vault files: %w", err)
	}
	kept := FilterPaths(paths, ParseExcludePatterns(params.ExcludeFolders))
	run.FileCount = len(kept)
	s.logger.Debug("vault enumerated", "total", len(paths), "kept", len(kept))

	archive, err := s.archiver.Build(ctx, s.vault, kept)
	if err != nil {
		return fmt.Errorf("building archive: %w", err)
	}
	defer func() {
		if rerr := archive.Remove(); rerr != nil {
			s.logger.Warn("removing archive spool", "error", rerr)
		}
	}()
	run.Bytes = archive.Size()

	body, err := archive.Open()
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer body.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	return s.store.PutObject(ctx, run.Key, body, archive.Size(), s.archiver.ContentType())
}
