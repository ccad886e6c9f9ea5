// Package catalog stores the emulator's title metadata (played titles, their
// savestates, the rotation index) and the durable backup watermark in SQLite.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tis24dev/savesync/pkg/utils"
)

// AutoSaveSlot is the savestate slot reserved for the emulator's automatic save.
const AutoSaveSlot = 9

// MaxSlot is the highest savestate slot number.
const MaxSlot = 9

// NeverSaved marks a savestate slot that was never written.
var NeverSaved time.Time

// ErrTitleNotFound is returned when no title matches the lookup.
var ErrTitleNotFound = errors.New("title not found")

// Savestate is one savestate slot of a title.
type Savestate struct {
	Slot     int
	SaveTime time.Time
	FileName string
}

// Saved reports whether the slot was ever written.
func (s Savestate) Saved() bool {
	return !s.SaveTime.Equal(NeverSaved)
}

// Title is the per-title state consulted by the auto backup.
type Title struct {
	FileName    string
	DisplayName string
	LastPlayed  time.Time
	Savestates  []Savestate

	// AutoSaveIndex is the last rotating slot used, nil before the first
	// rotating backup.
	AutoSaveIndex *int
}

// CartridgeSaveName is the battery save file name: the ROM name with its
// extension replaced by "sav".
func (t *Title) CartridgeSaveName() string {
	return utils.ReplaceExt(t.FileName, "sav")
}

// Savestate returns the entry for slot, if any.
func (t *Title) Savestate(slot int) (Savestate, bool) {
	for _, s := range t.Savestates {
		if s.Slot == slot {
			return s, true
		}
	}
	return Savestate{}, false
}

// LatestManualSavestate returns the most recently written savestate outside
// the auto slot.
func (t *Title) LatestManualSavestate() (Savestate, bool) {
	var (
		best  Savestate
		found bool
	)
	for _, s := range t.Savestates {
		if s.Slot == AutoSaveSlot || !s.Saved() {
			continue
		}
		if !found || s.SaveTime.After(best.SaveTime) {
			best, found = s, true
		}
	}
	return best, found
}

// SavestateFileName is the conventional savestate file name for a slot.
func SavestateFileName(romFileName string, slot int) string {
	stem := romFileName
	if idx := strings.LastIndex(stem, "."); idx >= 0 {
		stem = stem[:idx]
	}
	return fmt.Sprintf("%s%d.sgm", stem, slot)
}

// DisplayNameFor derives a display name from a ROM file name.
func DisplayNameFor(romFileName string) string {
	name := romFileName
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	return strings.TrimSpace(name)
}
