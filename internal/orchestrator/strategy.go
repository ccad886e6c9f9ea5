package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/tis24dev/savesync/internal/archive"
	"github.com/tis24dev/savesync/internal/catalog"
	"github.com/tis24dev/savesync/internal/logging"
	"github.com/tis24dev/savesync/internal/status"
	"github.com/tis24dev/savesync/internal/types"
)

// Transfer is the input shared by both strategies.
type Transfer struct {
	Title      *catalog.Title
	Candidates []Candidate
	FolderID   string
	Settings   Settings
}

// TransferStrategy moves the selected candidates to the remote.
type TransferStrategy interface {
	Mode() types.BackupMode
	Submit(ctx context.Context, t *Transfer) Outcome
}

// SimpleStrategy uploads each candidate on its own, overwriting the remote
// copy. A failed file does not stop the others.
type SimpleStrategy struct {
	files  FileStore
	remote Remote
	sink   status.Sink
	logger *logging.Logger
}

func (s *SimpleStrategy) Mode() types.BackupMode { return types.BackupModeSimple }

func (s *SimpleStrategy) Submit(ctx context.Context, t *Transfer) Outcome {
	uploaded := 0
	var errs []error

	for _, c := range t.Candidates {
		s.sink.SetIndeterminate(true)
		s.sink.SetText(fmt.Sprintf(TextUploading, c.Name))

		if err := s.uploadOne(ctx, t.FolderID, c); err != nil {
			s.logger.Warning("Auto backup: %v", err)
			errs = append(errs, err)
		} else {
			uploaded++
			s.logger.Info("Auto backup: uploaded %s save %s", c.Class, c.Name)
		}

		s.sink.SetText(IdleText)
		s.sink.SetIndeterminate(false)
	}

	switch {
	case len(errs) == 0:
		return Succeeded(uploaded)
	case uploaded == 0:
		return Failed(ReasonUploadFailed, errs...)
	default:
		return PartiallyFailed(uploaded, errs)
	}
}

func (s *SimpleStrategy) uploadOne(ctx context.Context, folderID string, c Candidate) error {
	rc, err := s.files.Open(ctx, c.Name)
	if err != nil {
		return &FileError{Name: c.Name, Class: c.Class, Op: "open", Err: err}
	}
	defer rc.Close()

	if err := s.remote.Upload(ctx, folderID, c.Name, rc, true); err != nil {
		return &FileError{Name: c.Name, Class: c.Class, Op: "upload", Err: err}
	}
	return nil
}

// RotatingStrategy bundles the candidates into one archive stored in a fixed
// cycle of remote names.
type RotatingStrategy struct {
	files      FileStore
	remote     Remote
	titles     IndexCommitter
	encrypter  Encrypter
	newArchive func() ArchiveBuilder
	sink       status.Sink
	logger     *logging.Logger
}

func (s *RotatingStrategy) Mode() types.BackupMode { return types.BackupModeRotating }

func (s *RotatingStrategy) Submit(ctx context.Context, t *Transfer) Outcome {
	bundle := s.newArchive()
	var errs []error

	for _, c := range t.Candidates {
		rc, err := s.files.Open(ctx, c.Name)
		if err != nil {
			errs = append(errs, &FileError{Name: c.Name, Class: c.Class, Op: "open", Err: err})
			continue
		}
		err = bundle.AddEntry(c.Name, rc)
		rc.Close()
		if err != nil {
			errs = append(errs, &FileError{Name: c.Name, Class: c.Class, Op: "archive", Err: err})
		}
	}
	if len(errs) > 0 {
		// The archive transfers whole or not at all; the files stay newer
		// than the watermark and the next attempt retries them.
		for _, err := range errs {
			s.logger.Warning("Auto backup: %v", err)
		}
		return Failed(ReasonArchiveFailed, errs...)
	}

	entries := bundle.Len()
	if entries == 0 {
		return Skipped(ReasonNoCandidates)
	}

	data, err := bundle.Bytes()
	if err != nil {
		return Failed(ReasonArchiveFailed, err)
	}
	encrypted := false
	if s.encrypter != nil {
		if data, err = s.encrypter.Encrypt(data); err != nil {
			return Failed(ReasonArchiveFailed, err)
		}
		encrypted = true
	}

	// The index is committed before the upload: a failed upload still
	// consumes the rotation slot.
	previous := t.Title.AutoSaveIndex
	index := NextRotationIndex(previous, t.Settings.slotLimit())
	t.Title.AutoSaveIndex = &index
	if err := s.titles.SetAutoSaveIndex(ctx, t.Title.FileName, index); err != nil {
		t.Title.AutoSaveIndex = previous
		return Failed(ReasonIndexCommitFailed, err)
	}

	name := ArchiveName(t.Title, index, encrypted)
	s.sink.SetText(fmt.Sprintf(TextUploading, name))
	s.logger.Debug("Auto backup: archive %s holds %d file(s), %d bytes", name, entries, len(data))

	var out Outcome
	if err := s.remote.Upload(ctx, t.FolderID, name, bytes.NewReader(data), true); err != nil {
		s.logger.Warning("Auto backup: upload of %s failed: %v", name, err)
		out = Failed(ReasonUploadFailed, err)
	} else {
		out = Succeeded(entries)
	}
	out.Archive = name
	out.RotationIndex = index
	return out
}

// ArchiveName is the remote name of a rotation slot: display name followed by
// the slot index.
func ArchiveName(title *catalog.Title, index int, encrypted bool) string {
	display := strings.TrimSpace(title.DisplayName)
	if display == "" {
		display = catalog.DisplayNameFor(title.FileName)
	}
	name := fmt.Sprintf("%s%d.zip", display, index)
	if encrypted {
		name += archive.EncryptedExt
	}
	return name
}
