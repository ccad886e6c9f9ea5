package orchestrator

import (
	"errors"
	"strings"
	"testing"

	"github.com/tis24dev/savesync/internal/catalog"
	"github.com/tis24dev/savesync/internal/types"
)

func TestNextRotationIndex(t *testing.T) {
	tests := []struct {
		name    string
		current *int
		limit   int
		want    int
	}{
		{"unset starts at one", nil, 3, 1},
		{"increments", intPtr(1), 3, 2},
		{"reaches limit", intPtr(2), 3, 3},
		{"wraps past limit", intPtr(3), 3, 1},
		{"stale index above limit wraps", intPtr(7), 3, 1},
		{"negative index wraps", intPtr(-5), 3, 1},
		{"limit below one behaves as one", intPtr(1), 0, 1},
		{"single slot", intPtr(1), 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextRotationIndex(tt.current, tt.limit); got != tt.want {
				t.Fatalf("NextRotationIndex = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRunStatePending(t *testing.T) {
	s := NewRunState(watermark0)
	if s.takePending() {
		t.Fatal("new state should not be pending")
	}
	s.MarkPending()
	if !s.takePending() {
		t.Fatal("pending flag lost")
	}
	if s.PendingCheck || s.takePending() {
		t.Fatal("pending flag not cleared")
	}
}

func TestSettingsSlotLimit(t *testing.T) {
	if got := (Settings{RotatingSlotLimit: 0}).slotLimit(); got != 1 {
		t.Fatalf("slotLimit = %d", got)
	}
	if got := (Settings{RotatingSlotLimit: 5}).slotLimit(); got != 5 {
		t.Fatalf("slotLimit = %d", got)
	}
}

func TestOutcomeTransferred(t *testing.T) {
	tests := []struct {
		out  Outcome
		want bool
	}{
		{Skipped(ReasonNoNetwork), false},
		{Skipped(ReasonNoCandidates), false},
		{Succeeded(0), true},
		{PartiallyFailed(1, []error{errTransport}), true},
		{Failed(ReasonUploadFailed, errTransport), true},
		{Failed(ReasonArchiveFailed), false},
		{Failed(ReasonIndexCommitFailed), false},
		{Failed(ReasonFolderUnavailable), false},
		{Failed(ReasonNotSignedIn), false},
	}
	for _, tt := range tests {
		if got := tt.out.Transferred(); got != tt.want {
			t.Errorf("%s: Transferred = %v, want %v", tt.out, got, tt.want)
		}
	}
}

func TestOutcomeErrAndString(t *testing.T) {
	out := Failed(ReasonUploadFailed, nil, errTransport, nil)
	if len(out.Errors) != 1 || !errors.Is(out.Err(), errTransport) {
		t.Fatalf("errors = %v", out.Errors)
	}
	if Succeeded(2).Err() != nil {
		t.Fatal("success carries an error")
	}
	if got := out.String(); !strings.Contains(got, "upload_failed") {
		t.Fatalf("String = %q", got)
	}
	if got := PartiallyFailed(2, []error{errTransport}).String(); got != "partially failed (2 uploaded, 1 errors)" {
		t.Fatalf("String = %q", got)
	}
	if KindPartiallyFailed.String() != "partially_failed" {
		t.Fatal("kind name")
	}
}

func TestFileError(t *testing.T) {
	err := &FileError{Name: "zelda.sav", Class: types.SaveClassCartridge, Op: "upload", Err: errTransport}
	if !errors.Is(err, errTransport) {
		t.Fatal("FileError does not unwrap")
	}
	if got := err.Error(); got != "upload cartridge save zelda.sav: transport error" {
		t.Fatalf("Error = %q", got)
	}
}

func TestArchiveName(t *testing.T) {
	title := &catalog.Title{FileName: "Kirby Dream Land.gb", DisplayName: "Kirby"}
	if got := ArchiveName(title, 2, false); got != "Kirby2.zip" {
		t.Fatalf("ArchiveName = %q", got)
	}
	if got := ArchiveName(title, 2, true); got != "Kirby2.zip.age" {
		t.Fatalf("ArchiveName = %q", got)
	}
	title.DisplayName = " "
	if got := ArchiveName(title, 1, false); got != "Kirby Dream Land1.zip" {
		t.Fatalf("ArchiveName = %q", got)
	}
}
