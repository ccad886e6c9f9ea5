package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tis24dev/savesync/internal/catalog"
	"github.com/tis24dev/savesync/internal/remote"
	"github.com/tis24dev/savesync/internal/types"
)

var errTransport = errors.New("transport error")

type fakeNetwork struct {
	available bool
	wifi      bool
}

func (n *fakeNetwork) IsAvailable() bool { return n.available }
func (n *fakeNetwork) IsWifi() bool      { return n.wifi }

type upload struct {
	folder    string
	name      string
	data      []byte
	overwrite bool
}

type fakeRemote struct {
	mu          sync.Mutex
	session     *remote.Session
	sessionErr  error
	folderID    string
	folderErr   error
	folderCalls int
	failNames   map[string]error
	uploads     []upload
	stored      map[string][]byte
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		session:  &remote.Session{Backend: "fake", Account: "player"},
		folderID: "remote:savesync-export",
		stored:   make(map[string][]byte),
	}
}

func (r *fakeRemote) Session(context.Context) (*remote.Session, error) {
	return r.session, r.sessionErr
}

func (r *fakeRemote) EnsureExportFolder(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.folderCalls++
	return r.folderID, r.folderErr
}

func (r *fakeRemote) Upload(_ context.Context, folderID, name string, rd io.Reader, overwrite bool) error {
	data, err := io.ReadAll(rd)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, upload{folder: folderID, name: name, data: data, overwrite: overwrite})
	if err := r.failNames[name]; err != nil {
		return err
	}
	r.stored[name] = data
	return nil
}

func (r *fakeRemote) uploadNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.uploads))
	for _, u := range r.uploads {
		names = append(names, u.name)
	}
	return names
}

type fakeFiles struct {
	data    map[string]string
	openErr map[string]error
	opened  []string
}

func newFakeFiles(files map[string]string) *fakeFiles {
	return &fakeFiles{data: files, openErr: make(map[string]error)}
}

func (f *fakeFiles) Exists(_ context.Context, name string) bool {
	_, ok := f.data[name]
	return ok
}

func (f *fakeFiles) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f.opened = append(f.opened, name)
	if err := f.openErr[name]; err != nil {
		return nil, err
	}
	content, ok := f.data[name]
	if !ok {
		return nil, fmt.Errorf("open %s: file does not exist", name)
	}
	return io.NopCloser(bytes.NewBufferString(content)), nil
}

type fakeTitles struct {
	commits []int
	err     error
}

func (t *fakeTitles) SetAutoSaveIndex(_ context.Context, _ string, index int) error {
	if t.err != nil {
		return t.err
	}
	t.commits = append(t.commits, index)
	return nil
}

type fakeWatermarks struct {
	saved []time.Time
	err   error
}

func (w *fakeWatermarks) SaveWatermark(_ context.Context, at time.Time) error {
	if w.err != nil {
		return w.err
	}
	w.saved = append(w.saved, at)
	return nil
}

type fakeTime struct {
	now time.Time
}

func (f *fakeTime) Now() time.Time { return f.now }

type recordingSink struct {
	texts []string
	busy  []bool
}

func (s *recordingSink) SetText(text string)        { s.texts = append(s.texts, text) }
func (s *recordingSink) SetIndeterminate(busy bool) { s.busy = append(s.busy, busy) }

type recordingMessenger struct {
	messages []string
}

func (m *recordingMessenger) ShowMessage(text string) { m.messages = append(m.messages, text) }

type fakeEncrypter struct {
	err error
}

func (e fakeEncrypter) Encrypt(data []byte) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return append([]byte("age:"), data...), nil
}

var (
	watermark0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	playedAt   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runAt      = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
)

type harness struct {
	network    *fakeNetwork
	remote     *fakeRemote
	files      *fakeFiles
	titles     *fakeTitles
	watermarks *fakeWatermarks
	clock      *fakeTime
	sink       *recordingSink
	messenger  *recordingMessenger
	encrypter  Encrypter
}

func newHarness() *harness {
	return &harness{
		network:    &fakeNetwork{available: true, wifi: true},
		remote:     newFakeRemote(),
		files:      newFakeFiles(map[string]string{}),
		titles:     &fakeTitles{},
		watermarks: &fakeWatermarks{},
		clock:      &fakeTime{now: runAt},
		sink:       &recordingSink{},
		messenger:  &recordingMessenger{},
	}
}

func (h *harness) orchestrator() *Orchestrator {
	return New(Deps{
		Network:    h.network,
		Remote:     h.remote,
		Files:      h.files,
		Titles:     h.titles,
		Watermarks: h.watermarks,
		Sink:       h.sink,
		Messenger:  h.messenger,
		Encrypter:  h.encrypter,
		Time:       h.clock,
	})
}

func simpleSettings() Settings {
	return Settings{
		AutoBackupEnabled:    true,
		WifiOnly:             true,
		Mode:                 types.BackupModeSimple,
		IncludeManualSave:    true,
		IncludeAutoSave:      true,
		IncludeCartridgeSave: true,
		RotatingSlotLimit:    3,
		AutoSaveLoad:         true,
	}
}

func rotatingSettings(limit int) Settings {
	s := simpleSettings()
	s.Mode = types.BackupModeRotating
	s.RotatingSlotLimit = limit
	return s
}

// zeldaTitle has a manual save in slot 2, an auto save and a cartridge save
// named zelda.sav.
func zeldaTitle() *catalog.Title {
	return &catalog.Title{
		FileName:    "zelda.gbc",
		DisplayName: "Zelda",
		LastPlayed:  playedAt,
		Savestates: []catalog.Savestate{
			{Slot: 0, SaveTime: watermark0.Add(-time.Hour), FileName: "zelda0.sgm"},
			{Slot: 2, SaveTime: playedAt.Add(-time.Minute), FileName: "zelda2.sgm"},
			{Slot: 3, SaveTime: catalog.NeverSaved, FileName: "zelda3.sgm"},
			{Slot: catalog.AutoSaveSlot, SaveTime: playedAt, FileName: "zelda9.sgm"},
		},
	}
}

func zeldaFiles() map[string]string {
	return map[string]string{
		"zelda0.sgm": "old manual",
		"zelda2.sgm": "manual",
		"zelda9.sgm": "auto",
		"zelda.sav":  "battery",
	}
}

func pendingState() *RunState {
	s := NewRunState(watermark0)
	s.MarkPending()
	return s
}

func intPtr(v int) *int { return &v }
