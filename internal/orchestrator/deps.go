package orchestrator

import (
	"context"
	"io"
	"time"

	"github.com/tis24dev/savesync/internal/archive"
	"github.com/tis24dev/savesync/internal/logging"
	"github.com/tis24dev/savesync/internal/remote"
	"github.com/tis24dev/savesync/internal/status"
)

// Network reports link state.
type Network interface {
	IsAvailable() bool
	IsWifi() bool
}

// Remote is the storage backend. A nil session means nobody is signed in.
type Remote interface {
	Session(ctx context.Context) (*remote.Session, error)
	EnsureExportFolder(ctx context.Context) (string, error)
	Upload(ctx context.Context, folderID, fileName string, r io.Reader, overwrite bool) error
}

// FileStore is the local save-file store.
type FileStore interface {
	Exists(ctx context.Context, name string) bool
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// IndexCommitter durably stores the rotation index of a title.
type IndexCommitter interface {
	SetAutoSaveIndex(ctx context.Context, fileName string, index int) error
}

// WatermarkStore durably stores the last auto backup time.
type WatermarkStore interface {
	SaveWatermark(ctx context.Context, at time.Time) error
}

// ArchiveBuilder bundles save files in memory.
type ArchiveBuilder interface {
	AddEntry(name string, r io.Reader) error
	Len() int
	Bytes() ([]byte, error)
}

// Encrypter transforms a serialized archive before upload.
type Encrypter interface {
	Encrypt(data []byte) ([]byte, error)
}

// TimeProvider abstracts time acquisition for determinism in tests.
type TimeProvider interface {
	Now() time.Time
}

type realTime struct{}

func (realTime) Now() time.Time { return time.Now() }

type nopSink struct{}

func (nopSink) SetText(string)        {}
func (nopSink) SetIndeterminate(bool) {}

type nopMessenger struct{}

func (nopMessenger) ShowMessage(string) {}

// Deps groups the collaborators of the orchestrator. Logger, Sink, Messenger,
// Time and NewArchive are optional.
type Deps struct {
	Logger     *logging.Logger
	Network    Network
	Remote     Remote
	Files      FileStore
	Titles     IndexCommitter
	Watermarks WatermarkStore
	Sink       status.Sink
	Messenger  status.Messenger
	Encrypter  Encrypter
	Time       TimeProvider
	NewArchive func() ArchiveBuilder
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Sink == nil {
		d.Sink = nopSink{}
	}
	if d.Messenger == nil {
		d.Messenger = nopMessenger{}
	}
	if d.Time == nil {
		d.Time = realTime{}
	}
	if d.NewArchive == nil {
		d.NewArchive = func() ArchiveBuilder { return archive.NewBuilder() }
	}
	return d
}
