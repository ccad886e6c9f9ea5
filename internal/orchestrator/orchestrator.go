// Package orchestrator decides, on each application resume, whether the save
// files of the last played title must be backed up, and performs the backup.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tis24dev/savesync/internal/catalog"
	"github.com/tis24dev/savesync/internal/logging"
	"github.com/tis24dev/savesync/internal/types"
)

// User-facing status texts.
const (
	TextAutoBackupStart = "Auto backup started"
	TextUploading       = "Uploading %s..."
	IdleText            = ""
	NotSignedInMessage  = "Auto backup failed: no remote storage is signed in. Configure a remote to enable auto backup."
)

// Orchestrator runs auto backup attempts.
type Orchestrator struct {
	deps   Deps
	logger *logging.Logger
}

// New creates an orchestrator. Network, Remote, Files, Titles and Watermarks
// are required.
func New(deps Deps) *Orchestrator {
	deps = deps.withDefaults()
	return &Orchestrator{deps: deps, logger: deps.Logger}
}

// Strategy returns the transfer strategy for mode. Unknown modes use Simple.
func (o *Orchestrator) Strategy(mode types.BackupMode) TransferStrategy {
	if mode == types.BackupModeRotating {
		return &RotatingStrategy{
			files:      o.deps.Files,
			remote:     o.deps.Remote,
			titles:     o.deps.Titles,
			encrypter:  o.deps.Encrypter,
			newArchive: o.deps.NewArchive,
			sink:       o.deps.Sink,
			logger:     o.logger,
		}
	}
	return &SimpleStrategy{
		files:  o.deps.Files,
		remote: o.deps.Remote,
		sink:   o.deps.Sink,
		logger: o.logger,
	}
}

// Run performs one auto backup attempt for title. It clears
// state.PendingCheck, and advances the watermark only once a transfer was
// attempted. It never panics and never returns an error.
func (o *Orchestrator) Run(ctx context.Context, settings Settings, title *catalog.Title, state *RunState) (out Outcome) {
	runID := uuid.NewString()
	started := o.deps.Time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Auto backup %s: unexpected panic: %v", runID, r)
			out = Failed(ReasonInternal, fmt.Errorf("panic: %v", r))
		}
		out.RunID = runID
		out.Mode = settings.Mode
		out.StartedAt = started
		out.FinishedAt = o.deps.Time.Now()
		o.logOutcome(out)
	}()

	if !state.takePending() {
		return Skipped(ReasonNotPending)
	}
	if !settings.AutoBackupEnabled {
		return Skipped(ReasonDisabled)
	}
	if !o.deps.Network.IsAvailable() {
		return Skipped(ReasonNoNetwork)
	}
	if settings.WifiOnly && !o.deps.Network.IsWifi() {
		return Skipped(ReasonWifiRequired)
	}

	session, err := o.deps.Remote.Session(ctx)
	if err != nil || session == nil {
		if err != nil {
			o.logger.Warning("Auto backup %s: remote session unavailable: %v", runID, err)
		}
		o.deps.Messenger.ShowMessage(NotSignedInMessage)
		return Failed(ReasonNotSignedIn, err)
	}

	o.deps.Sink.SetIndeterminate(true)
	o.deps.Sink.SetText(TextAutoBackupStart)
	defer func() {
		o.deps.Sink.SetText(IdleText)
		o.deps.Sink.SetIndeterminate(false)
	}()

	if title == nil || !title.LastPlayed.After(state.LastAutoBackupAt) {
		return Skipped(ReasonNothingNew)
	}

	if state.RemoteFolderID == "" {
		folderID, err := o.deps.Remote.EnsureExportFolder(ctx)
		if err != nil {
			return Failed(ReasonFolderUnavailable, err)
		}
		state.RemoteFolderID = folderID
	}

	o.logger.Step("Auto backup %s: %s mode for %s (%s)", runID, settings.Mode, title.DisplayName, title.FileName)
	candidates := SelectCandidates(ctx, settings, title, state.LastAutoBackupAt, o.deps.Files)
	o.logger.Debug("Auto backup %s: %d candidate(s) %v", runID, len(candidates), candidates)

	strategy := o.Strategy(settings.Mode)
	out = strategy.Submit(ctx, &Transfer{
		Title:      title,
		Candidates: candidates,
		FolderID:   state.RemoteFolderID,
		Settings:   settings,
	})

	if out.Transferred() {
		o.advanceWatermark(ctx, state)
	}
	return out
}

func (o *Orchestrator) advanceWatermark(ctx context.Context, state *RunState) {
	now := o.deps.Time.Now()
	state.LastAutoBackupAt = now
	if err := o.deps.Watermarks.SaveWatermark(ctx, now); err != nil {
		o.logger.Warning("Auto backup: failed to persist watermark: %v", err)
	}
}

func (o *Orchestrator) logOutcome(out Outcome) {
	switch out.Kind {
	case KindSkipped:
		if out.Reason == ReasonNotPending {
			o.logger.Debug("Auto backup %s: nothing pending", out.RunID)
			return
		}
		o.logger.Skip("Auto backup %s: %s", out.RunID, out)
	case KindSucceeded:
		o.logger.Info("Auto backup %s: %s", out.RunID, out)
	default:
		o.logger.Warning("Auto backup %s: %s: %v", out.RunID, out, out.Err())
	}
}
