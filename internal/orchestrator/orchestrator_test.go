package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tis24dev/savesync/internal/types"
)

func TestRunPreconditions(t *testing.T) {
	tests := []struct {
		name       string
		pending    bool
		settings   func(Settings) Settings
		network    fakeNetwork
		noSession  bool
		lastPlayed time.Time
		wantKind   Kind
		wantReason Reason
	}{
		{name: "not pending", pending: false, network: fakeNetwork{true, true}, lastPlayed: playedAt, wantKind: KindSkipped, wantReason: ReasonNotPending},
		{name: "disabled", pending: true, settings: func(s Settings) Settings { s.AutoBackupEnabled = false; return s }, network: fakeNetwork{true, true}, lastPlayed: playedAt, wantKind: KindSkipped, wantReason: ReasonDisabled},
		{name: "no network", pending: true, network: fakeNetwork{false, false}, lastPlayed: playedAt, wantKind: KindSkipped, wantReason: ReasonNoNetwork},
		{name: "wifi required", pending: true, network: fakeNetwork{true, false}, lastPlayed: playedAt, wantKind: KindSkipped, wantReason: ReasonWifiRequired},
		{name: "not signed in", pending: true, network: fakeNetwork{true, true}, noSession: true, lastPlayed: playedAt, wantKind: KindFailed, wantReason: ReasonNotSignedIn},
		{name: "title not newer", pending: true, network: fakeNetwork{true, true}, lastPlayed: watermark0, wantKind: KindSkipped, wantReason: ReasonNothingNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.network = &tt.network
			h.files = newFakeFiles(zeldaFiles())
			if tt.noSession {
				h.remote.session = nil
			}
			settings := simpleSettings()
			if tt.settings != nil {
				settings = tt.settings(settings)
			}
			title := zeldaTitle()
			title.LastPlayed = tt.lastPlayed
			state := NewRunState(watermark0)
			state.PendingCheck = tt.pending

			out := h.orchestrator().Run(context.Background(), settings, title, state)

			if out.Kind != tt.wantKind || out.Reason != tt.wantReason {
				t.Fatalf("outcome = %s, want %s/%s", out, tt.wantKind, tt.wantReason)
			}
			if state.PendingCheck {
				t.Error("PendingCheck not cleared")
			}
			if !state.LastAutoBackupAt.Equal(watermark0) {
				t.Errorf("watermark moved to %v", state.LastAutoBackupAt)
			}
			if len(h.watermarks.saved) != 0 {
				t.Errorf("watermark persisted: %v", h.watermarks.saved)
			}
			if len(h.remote.uploads) != 0 {
				t.Errorf("unexpected uploads: %v", h.remote.uploadNames())
			}
			if len(h.files.opened) != 0 {
				t.Errorf("unexpected file access: %v", h.files.opened)
			}
			if out.RunID == "" {
				t.Error("missing run ID")
			}
		})
	}
}

func TestRunNotSignedInShowsSingleMessage(t *testing.T) {
	h := newHarness()
	h.remote.session = nil
	h.remote.sessionErr = errors.New("rclone not installed")

	out := h.orchestrator().Run(context.Background(), simpleSettings(), zeldaTitle(), pendingState())

	if out.Reason != ReasonNotSignedIn || len(out.Errors) != 1 {
		t.Fatalf("outcome = %s errors=%v", out, out.Errors)
	}
	if len(h.messenger.messages) != 1 || h.messenger.messages[0] != NotSignedInMessage {
		t.Fatalf("messages = %v", h.messenger.messages)
	}
	if h.remote.folderCalls != 0 {
		t.Fatal("export folder resolved without a session")
	}
}

func TestRunDisabledLeavesWatermark(t *testing.T) {
	for _, mode := range []types.BackupMode{types.BackupModeSimple, types.BackupModeRotating} {
		h := newHarness()
		h.files = newFakeFiles(zeldaFiles())
		settings := rotatingSettings(3)
		settings.Mode = mode
		settings.AutoBackupEnabled = false
		state := pendingState()

		out := h.orchestrator().Run(context.Background(), settings, zeldaTitle(), state)

		if out.Reason != ReasonDisabled {
			t.Fatalf("%s: outcome = %s", mode, out)
		}
		if !state.LastAutoBackupAt.Equal(watermark0) || len(h.remote.uploads) != 0 || len(h.titles.commits) != 0 {
			t.Fatalf("%s: disabled run had side effects", mode)
		}
	}
}

func TestRunSimpleManualOnlyScenario(t *testing.T) {
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())
	settings := simpleSettings()
	settings.IncludeAutoSave = false
	settings.IncludeCartridgeSave = false
	state := pendingState()

	out := h.orchestrator().Run(context.Background(), settings, zeldaTitle(), state)

	if out.Kind != KindSucceeded || out.Uploaded != 1 {
		t.Fatalf("outcome = %s", out)
	}
	if got := h.remote.uploadNames(); !reflect.DeepEqual(got, []string{"zelda2.sgm"}) {
		t.Fatalf("uploads = %v", got)
	}
	u := h.remote.uploads[0]
	if !u.overwrite || u.folder != "remote:savesync-export" || string(u.data) != "manual" {
		t.Fatalf("upload = %+v", u)
	}
	if !state.LastAutoBackupAt.Equal(runAt) {
		t.Fatalf("watermark = %v, want %v", state.LastAutoBackupAt, runAt)
	}
	if len(h.watermarks.saved) != 1 || !h.watermarks.saved[0].Equal(runAt) {
		t.Fatalf("persisted watermark = %v", h.watermarks.saved)
	}
	if state.RemoteFolderID != "remote:savesync-export" {
		t.Fatalf("folder not cached: %q", state.RemoteFolderID)
	}
}

func TestRunSimpleIsolatesFailures(t *testing.T) {
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())
	h.remote.failNames = map[string]error{"zelda2.sgm": errTransport}
	settings := simpleSettings()
	settings.IncludeAutoSave = false
	state := pendingState()

	out := h.orchestrator().Run(context.Background(), settings, zeldaTitle(), state)

	if out.Kind != KindPartiallyFailed || out.Uploaded != 1 || len(out.Errors) != 1 {
		t.Fatalf("outcome = %s", out)
	}
	if !errors.Is(out.Errors[0], errTransport) {
		t.Fatalf("error = %v, want transport error", out.Errors[0])
	}
	var fileErr *FileError
	if !errors.As(out.Errors[0], &fileErr) || fileErr.Name != "zelda2.sgm" || fileErr.Class != types.SaveClassManual {
		t.Fatalf("error = %#v", out.Errors[0])
	}
	if string(h.remote.stored["zelda.sav"]) != "battery" {
		t.Fatal("cartridge save missing remotely")
	}
	if !state.LastAutoBackupAt.Equal(runAt) {
		t.Fatal("watermark did not advance after partial failure")
	}
}

func TestRunSimpleAllFailed(t *testing.T) {
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())
	h.files.openErr["zelda9.sgm"] = errors.New("locked")
	h.remote.failNames = map[string]error{"zelda2.sgm": errTransport, "zelda.sav": errTransport}
	state := pendingState()

	out := h.orchestrator().Run(context.Background(), simpleSettings(), zeldaTitle(), state)

	if out.Kind != KindFailed || out.Reason != ReasonUploadFailed || len(out.Errors) != 3 {
		t.Fatalf("outcome = %s errors=%v", out, out.Errors)
	}
	if !state.LastAutoBackupAt.Equal(runAt) {
		t.Fatal("watermark must advance after a handled failure")
	}
}

func TestRunSimpleStatusTexts(t *testing.T) {
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())
	settings := simpleSettings()
	settings.IncludeManualSave = false
	settings.IncludeAutoSave = false

	h.orchestrator().Run(context.Background(), settings, zeldaTitle(), pendingState())

	want := []string{TextAutoBackupStart, "Uploading zelda.sav...", IdleText, IdleText}
	if !reflect.DeepEqual(h.sink.texts, want) {
		t.Fatalf("status texts = %q, want %q", h.sink.texts, want)
	}
	if len(h.sink.busy) == 0 || !h.sink.busy[0] || h.sink.busy[len(h.sink.busy)-1] {
		t.Fatalf("indeterminate sequence = %v", h.sink.busy)
	}
}

func TestRunSimpleZeroCandidatesAdvancesWatermark(t *testing.T) {
	h := newHarness()
	settings := simpleSettings()
	settings.IncludeManualSave = false
	settings.IncludeAutoSave = false
	settings.IncludeCartridgeSave = false
	state := pendingState()

	out := h.orchestrator().Run(context.Background(), settings, zeldaTitle(), state)

	if out.Kind != KindSucceeded || out.Uploaded != 0 {
		t.Fatalf("outcome = %s", out)
	}
	if !state.LastAutoBackupAt.Equal(runAt) {
		t.Fatal("watermark not advanced")
	}
}

func TestRunIsIdempotentWithoutNewPlay(t *testing.T) {
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())
	orc := h.orchestrator()
	title := zeldaTitle()
	state := pendingState()

	first := orc.Run(context.Background(), simpleSettings(), title, state)
	if first.Kind != KindSucceeded || first.Uploaded != 3 {
		t.Fatalf("first outcome = %s", first)
	}
	uploads := len(h.remote.uploads)

	// Resume again without a new play.
	h.clock.now = runAt.Add(time.Hour)
	second := orc.Run(context.Background(), simpleSettings(), title, state)
	if second.Reason != ReasonNotPending {
		t.Fatalf("second outcome = %s", second)
	}

	// Even if the flag is raised again, the watermark prevents a transfer.
	state.MarkPending()
	third := orc.Run(context.Background(), simpleSettings(), title, state)
	if third.Reason != ReasonNothingNew {
		t.Fatalf("third outcome = %s", third)
	}
	if len(h.remote.uploads) != uploads {
		t.Fatalf("uploads after first run: %d, want %d", len(h.remote.uploads), uploads)
	}
	if h.remote.folderCalls != 1 {
		t.Fatalf("folder resolved %d times, want 1", h.remote.folderCalls)
	}
}

func TestRunFolderFailure(t *testing.T) {
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())
	h.remote.folderErr = errors.New("quota exceeded")
	state := pendingState()

	out := h.orchestrator().Run(context.Background(), simpleSettings(), zeldaTitle(), state)

	if out.Reason != ReasonFolderUnavailable {
		t.Fatalf("outcome = %s", out)
	}
	if state.RemoteFolderID != "" || !state.LastAutoBackupAt.Equal(watermark0) {
		t.Fatalf("state changed: %+v", state)
	}
	if len(h.files.opened) != 0 {
		t.Fatal("files opened after folder failure")
	}
}

func TestRunReusesCachedFolder(t *testing.T) {
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())
	state := pendingState()
	state.RemoteFolderID = "cached-folder"

	h.orchestrator().Run(context.Background(), simpleSettings(), zeldaTitle(), state)

	if h.remote.folderCalls != 0 {
		t.Fatal("cached folder not reused")
	}
	for _, u := range h.remote.uploads {
		if u.folder != "cached-folder" {
			t.Fatalf("upload into %q", u.folder)
		}
	}
}

func TestRunRotatingWrapsScenario(t *testing.T) {
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())
	settings := rotatingSettings(3)
	settings.IncludeAutoSave = false
	settings.IncludeCartridgeSave = false
	title := zeldaTitle()
	title.AutoSaveIndex = intPtr(3)
	state := pendingState()

	out := h.orchestrator().Run(context.Background(), settings, title, state)

	if out.Kind != KindSucceeded || out.Uploaded != 1 {
		t.Fatalf("outcome = %s", out)
	}
	if title.AutoSaveIndex == nil || *title.AutoSaveIndex != 1 || out.RotationIndex != 1 {
		t.Fatalf("rotation index = %v / %d, want 1", title.AutoSaveIndex, out.RotationIndex)
	}
	if got := h.remote.uploadNames(); !reflect.DeepEqual(got, []string{"Zelda1.zip"}) {
		t.Fatalf("uploads = %v", got)
	}
	if out.Archive != "Zelda1.zip" || !h.remote.uploads[0].overwrite {
		t.Fatalf("archive = %q overwrite=%v", out.Archive, h.remote.uploads[0].overwrite)
	}
	if !reflect.DeepEqual(h.titles.commits, []int{1}) {
		t.Fatalf("commits = %v", h.titles.commits)
	}
	if !state.LastAutoBackupAt.Equal(runAt) {
		t.Fatal("watermark not advanced")
	}
}

func TestRunRotatingBound(t *testing.T) {
	const limit = 4
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())
	orc := h.orchestrator()
	title := zeldaTitle()
	state := NewRunState(watermark0)

	for i := 1; i <= limit+1; i++ {
		// A new play session after each backup.
		title.LastPlayed = h.clock.now.Add(time.Minute)
		h.clock.now = title.LastPlayed.Add(time.Minute)
		state.MarkPending()

		out := orc.Run(context.Background(), rotatingSettings(limit), title, state)
		if out.Kind != KindSucceeded {
			t.Fatalf("run %d: outcome = %s", i, out)
		}
	}

	if *title.AutoSaveIndex != 1 {
		t.Fatalf("rotation index after %d runs = %d, want 1", limit+1, *title.AutoSaveIndex)
	}
	if want := []int{1, 2, 3, 4, 1}; !reflect.DeepEqual(h.titles.commits, want) {
		t.Fatalf("commits = %v, want %v", h.titles.commits, want)
	}
	want := []string{"Zelda1.zip", "Zelda2.zip", "Zelda3.zip", "Zelda4.zip", "Zelda1.zip"}
	if got := h.remote.uploadNames(); !reflect.DeepEqual(got, want) {
		t.Fatalf("uploads = %v, want %v", got, want)
	}
}

func TestRunRotatingEmptyBundle(t *testing.T) {
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())
	settings := rotatingSettings(3)
	settings.IncludeManualSave = false
	settings.IncludeAutoSave = false
	settings.IncludeCartridgeSave = false
	title := zeldaTitle()
	title.AutoSaveIndex = intPtr(2)
	state := pendingState()

	out := h.orchestrator().Run(context.Background(), settings, title, state)

	if out.Kind != KindSkipped || out.Reason != ReasonNoCandidates {
		t.Fatalf("outcome = %s", out)
	}
	if len(h.remote.uploads) != 0 || len(h.titles.commits) != 0 {
		t.Fatal("empty bundle caused a transfer or commit")
	}
	if *title.AutoSaveIndex != 2 {
		t.Fatalf("rotation index changed to %d", *title.AutoSaveIndex)
	}
	if !state.LastAutoBackupAt.Equal(watermark0) || len(h.watermarks.saved) != 0 {
		t.Fatal("watermark changed for an empty bundle")
	}
}

func TestRunRotatingUnreadableFileAbandonsAttempt(t *testing.T) {
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())
	h.files.openErr["zelda2.sgm"] = errors.New("locked")
	title := zeldaTitle()
	state := pendingState()

	out := h.orchestrator().Run(context.Background(), rotatingSettings(3), title, state)

	if out.Kind != KindFailed || out.Reason != ReasonArchiveFailed || len(out.Errors) != 1 {
		t.Fatalf("outcome = %s", out)
	}
	var fe *FileError
	if !errors.As(out.Errors[0], &fe) || fe.Name != "zelda2.sgm" || fe.Op != "open" {
		t.Fatalf("error = %v", out.Errors[0])
	}
	if out.Transferred() {
		t.Fatal("abandoned attempt reported as transferred")
	}
	if title.AutoSaveIndex != nil || len(h.titles.commits) != 0 || len(h.remote.uploads) != 0 {
		t.Fatal("bookkeeping changed for an abandoned archive")
	}
	if !state.LastAutoBackupAt.Equal(watermark0) || len(h.watermarks.saved) != 0 {
		t.Fatal("watermark moved")
	}

	// The next session retries the same files once they are readable.
	delete(h.files.openErr, "zelda2.sgm")
	state.MarkPending()
	cands := SelectCandidates(context.Background(), rotatingSettings(3), title, state.LastAutoBackupAt, h.files)
	if len(cands) == 0 || cands[0].Name != "zelda2.sgm" {
		t.Fatalf("manual save dropped from candidates: %v", cands)
	}
	out = h.orchestrator().Run(context.Background(), rotatingSettings(3), title, state)
	if out.Kind != KindSucceeded || out.Uploaded != len(cands) || out.Archive != "Zelda1.zip" {
		t.Fatalf("retry outcome = %s (%s)", out, out.Archive)
	}
}

func TestRunRotatingAllUnreadable(t *testing.T) {
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())
	for name := range zeldaFiles() {
		h.files.openErr[name] = errors.New("io error")
	}
	title := zeldaTitle()
	state := pendingState()

	out := h.orchestrator().Run(context.Background(), rotatingSettings(3), title, state)

	if out.Kind != KindFailed || out.Reason != ReasonArchiveFailed {
		t.Fatalf("outcome = %s", out)
	}
	if title.AutoSaveIndex != nil || len(h.titles.commits) != 0 || len(h.remote.uploads) != 0 {
		t.Fatal("bookkeeping changed without an archive")
	}
	if !state.LastAutoBackupAt.Equal(watermark0) {
		t.Fatal("watermark moved")
	}
}

func TestRunRotatingUploadFailureKeepsCommittedIndex(t *testing.T) {
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())
	h.remote.failNames = map[string]error{"Zelda1.zip": errTransport}
	title := zeldaTitle()
	state := pendingState()

	out := h.orchestrator().Run(context.Background(), rotatingSettings(3), title, state)

	if out.Kind != KindFailed || out.Reason != ReasonUploadFailed || !errors.Is(out.Err(), errTransport) {
		t.Fatalf("outcome = %s", out)
	}
	if *title.AutoSaveIndex != 1 || !reflect.DeepEqual(h.titles.commits, []int{1}) {
		t.Fatal("rotation index must stay committed after a failed upload")
	}
	if !state.LastAutoBackupAt.Equal(runAt) {
		t.Fatal("watermark must advance after a failed upload")
	}
}

func TestRunRotatingIndexCommitFailure(t *testing.T) {
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())
	h.titles.err = errors.New("database is locked")
	title := zeldaTitle()
	title.AutoSaveIndex = intPtr(2)
	state := pendingState()

	out := h.orchestrator().Run(context.Background(), rotatingSettings(3), title, state)

	if out.Reason != ReasonIndexCommitFailed {
		t.Fatalf("outcome = %s", out)
	}
	if *title.AutoSaveIndex != 2 {
		t.Fatalf("in-memory index not restored: %d", *title.AutoSaveIndex)
	}
	if len(h.remote.uploads) != 0 || !state.LastAutoBackupAt.Equal(watermark0) {
		t.Fatal("upload or watermark change after failed commit")
	}
}

func TestRunRotatingEncrypted(t *testing.T) {
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())
	h.encrypter = fakeEncrypter{}

	out := h.orchestrator().Run(context.Background(), rotatingSettings(3), zeldaTitle(), pendingState())

	if out.Archive != "Zelda1.zip.age" {
		t.Fatalf("archive = %q", out.Archive)
	}
	if !strings.HasPrefix(string(h.remote.uploads[0].data), "age:PK") {
		t.Fatal("uploaded data is not the encrypted zip")
	}
}

func TestRunRotatingEncryptionFailure(t *testing.T) {
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())
	h.encrypter = fakeEncrypter{err: errors.New("no recipients")}
	title := zeldaTitle()

	out := h.orchestrator().Run(context.Background(), rotatingSettings(3), title, pendingState())

	if out.Reason != ReasonArchiveFailed || title.AutoSaveIndex != nil || len(h.remote.uploads) != 0 {
		t.Fatalf("outcome = %s index=%v", out, title.AutoSaveIndex)
	}
}

func TestRunWatermarkPersistFailureIsContained(t *testing.T) {
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())
	h.watermarks.err = errors.New("disk full")
	state := pendingState()

	out := h.orchestrator().Run(context.Background(), simpleSettings(), zeldaTitle(), state)

	if out.Kind != KindSucceeded {
		t.Fatalf("outcome = %s", out)
	}
	if !state.LastAutoBackupAt.Equal(runAt) {
		t.Fatal("in-memory watermark not advanced")
	}
}

type panickingFiles struct{ fakeFiles }

func (p *panickingFiles) Exists(context.Context, string) bool { panic("sd card exploded") }

func TestRunRecoversPanics(t *testing.T) {
	h := newHarness()
	sink := h.sink
	orc := New(Deps{
		Network:    h.network,
		Remote:     h.remote,
		Files:      &panickingFiles{},
		Titles:     h.titles,
		Watermarks: h.watermarks,
		Sink:       sink,
		Time:       h.clock,
	})
	state := pendingState()

	out := orc.Run(context.Background(), simpleSettings(), zeldaTitle(), state)

	if out.Kind != KindFailed || out.Reason != ReasonInternal {
		t.Fatalf("outcome = %s", out)
	}
	if state.PendingCheck || !state.LastAutoBackupAt.Equal(watermark0) {
		t.Fatalf("state = %+v", state)
	}
	if sink.busy[len(sink.busy)-1] {
		t.Fatal("progress indicator left busy after panic")
	}
}

func TestRunOutcomeMetadata(t *testing.T) {
	h := newHarness()
	h.files = newFakeFiles(zeldaFiles())

	a := h.orchestrator().Run(context.Background(), simpleSettings(), zeldaTitle(), pendingState())
	b := h.orchestrator().Run(context.Background(), simpleSettings(), zeldaTitle(), pendingState())

	if a.RunID == "" || a.RunID == b.RunID {
		t.Fatalf("run IDs %q and %q", a.RunID, b.RunID)
	}
	if a.Mode != types.BackupModeSimple || !a.StartedAt.Equal(runAt) || !a.FinishedAt.Equal(runAt) {
		t.Fatalf("metadata = %+v", a)
	}
}
