package orchestrator

import (
	"time"

	"github.com/tis24dev/savesync/internal/types"
)

// RunState is the process-wide bookkeeping of auto backups. It is owned by the
// application session and handed to Run by pointer; Run is its only writer.
type RunState struct {
	// LastAutoBackupAt is the watermark: a save file is eligible only when its
	// timestamp is strictly after it.
	LastAutoBackupAt time.Time

	// PendingCheck is set when a title was played and cleared by every attempt.
	PendingCheck bool

	// RemoteFolderID caches the export folder for the process lifetime.
	RemoteFolderID string
}

// NewRunState starts a run state from the durable watermark.
func NewRunState(watermark time.Time) *RunState {
	return &RunState{LastAutoBackupAt: watermark}
}

// MarkPending records that a play session happened.
func (s *RunState) MarkPending() {
	s.PendingCheck = true
}

// takePending reports and clears the pending flag.
func (s *RunState) takePending() bool {
	pending := s.PendingCheck
	s.PendingCheck = false
	return pending
}

// Settings is the user backup configuration, read-only to the orchestrator.
type Settings struct {
	AutoBackupEnabled bool
	WifiOnly          bool
	Mode              types.BackupMode

	IncludeManualSave    bool
	IncludeAutoSave      bool
	IncludeCartridgeSave bool

	// RotatingSlotLimit values below 1 behave as 1.
	RotatingSlotLimit int

	// AutoSaveLoad mirrors the emulator auto-save/load setting.
	AutoSaveLoad bool
}

func (s Settings) slotLimit() int {
	if s.RotatingSlotLimit < 1 {
		return 1
	}
	return s.RotatingSlotLimit
}

// NextRotationIndex advances a rotation index within [1, limit].
func NextRotationIndex(current *int, limit int) int {
	if limit < 1 {
		limit = 1
	}
	if current == nil {
		return 1
	}
	next := *current + 1
	if next > limit || next < 1 {
		return 1
	}
	return next
}
