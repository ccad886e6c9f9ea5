package orchestrator

import (
	"context"
	"time"

	"github.com/tis24dev/savesync/internal/catalog"
	"github.com/tis24dev/savesync/internal/types"
)

// Candidate is a save file selected for backup.
type Candidate struct {
	Class types.SaveClass
	Name  string
}

// SelectCandidates picks the save files of title to back up, in the fixed
// order manual, auto, cartridge. Each class is gated by its include flag.
func SelectCandidates(ctx context.Context, settings Settings, title *catalog.Title, watermark time.Time, files FileStore) []Candidate {
	if title == nil {
		return nil
	}
	var out []Candidate

	if settings.IncludeManualSave {
		if state, ok := title.LatestManualSavestate(); ok && state.SaveTime.After(watermark) {
			out = append(out, Candidate{Class: types.SaveClassManual, Name: state.FileName})
		}
	}

	// The auto slot has no timestamp gate: its presence is what matters.
	if settings.IncludeAutoSave && settings.AutoSaveLoad {
		if state, ok := title.Savestate(catalog.AutoSaveSlot); ok {
			out = append(out, Candidate{Class: types.SaveClassAuto, Name: state.FileName})
		}
	}

	if settings.IncludeCartridgeSave && files != nil {
		name := title.CartridgeSaveName()
		if files.Exists(ctx, name) {
			out = append(out, Candidate{Class: types.SaveClassCartridge, Name: name})
		}
	}
	return out
}
