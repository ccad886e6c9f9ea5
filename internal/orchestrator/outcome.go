package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/tis24dev/savesync/internal/types"
)

// Kind is the top-level result of an auto backup attempt.
type Kind int

const (
	KindSkipped Kind = iota
	KindSucceeded
	KindPartiallyFailed
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindSkipped:
		return "skipped"
	case KindSucceeded:
		return "succeeded"
	case KindPartiallyFailed:
		return "partially_failed"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reason explains a skip or a failure.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNotPending        Reason = "not_pending"
	ReasonDisabled          Reason = "disabled"
	ReasonNoNetwork         Reason = "no_network"
	ReasonWifiRequired      Reason = "wifi_required"
	ReasonNothingNew        Reason = "nothing_new"
	ReasonNoCandidates      Reason = "no_candidates"
	ReasonNotSignedIn       Reason = "not_signed_in"
	ReasonFolderUnavailable Reason = "folder_unavailable"
	ReasonUploadFailed      Reason = "upload_failed"
	ReasonArchiveFailed     Reason = "archive_failed"
	ReasonIndexCommitFailed Reason = "index_commit_failed"
	ReasonInternal          Reason = "internal_error"
)

// Outcome is the value every attempt ends with. Failures never escape as
// errors or panics; they are carried in Errors.
type Outcome struct {
	RunID  string
	Kind   Kind
	Reason Reason
	Mode   types.BackupMode

	// Uploaded counts transferred save files (archive entries in rotating mode).
	Uploaded int
	Errors   []error

	// Archive and RotationIndex are set by rotating backups that built an archive.
	Archive       string
	RotationIndex int

	StartedAt  time.Time
	FinishedAt time.Time
}

func Skipped(reason Reason) Outcome {
	return Outcome{Kind: KindSkipped, Reason: reason}
}

func Succeeded(n int) Outcome {
	return Outcome{Kind: KindSucceeded, Uploaded: n}
}

func PartiallyFailed(n int, errs []error) Outcome {
	return Outcome{Kind: KindPartiallyFailed, Uploaded: n, Errors: errs}
}

func Failed(reason Reason, errs ...error) Outcome {
	var kept []error
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}
	return Outcome{Kind: KindFailed, Reason: reason, Errors: kept}
}

// Err joins the collected errors, nil when there are none.
func (o Outcome) Err() error {
	return errors.Join(o.Errors...)
}

// Transferred reports whether the attempt reached the transfer stage, which is
// what moves the watermark.
func (o Outcome) Transferred() bool {
	switch o.Kind {
	case KindSucceeded, KindPartiallyFailed:
		return true
	case KindFailed:
		return o.Reason == ReasonUploadFailed
	default:
		return false
	}
}

func (o Outcome) String() string {
	switch o.Kind {
	case KindSkipped:
		return fmt.Sprintf("skipped (%s)", o.Reason)
	case KindSucceeded:
		return fmt.Sprintf("succeeded (%d uploaded)", o.Uploaded)
	case KindPartiallyFailed:
		return fmt.Sprintf("partially failed (%d uploaded, %d errors)", o.Uploaded, len(o.Errors))
	case KindFailed:
		return fmt.Sprintf("failed (%s, %d errors)", o.Reason, len(o.Errors))
	default:
		return "unknown"
	}
}

// FileError is a per-file failure collected during a transfer.
type FileError struct {
	Name  string
	Class types.SaveClass
	Op    string
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s save %s: %v", e.Op, e.Class, e.Name, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}
