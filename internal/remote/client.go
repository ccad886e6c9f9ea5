// Package remote uploads backup artifacts to the configured export target.
package remote

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tis24dev/savesync/internal/config"
	"github.com/tis24dev/savesync/internal/logging"
	"github.com/tis24dev/savesync/internal/types"
)

// Session identifies the signed-in account of a backend.
type Session struct {
	Backend string
	Account string
}

// Client is a remote storage backend.
type Client interface {
	Name() string
	// Session returns nil when the backend is not signed in.
	Session(ctx context.Context) (*Session, error)
	// EnsureExportFolder creates the export folder if needed and returns its ID.
	EnsureExportFolder(ctx context.Context) (string, error)
	Upload(ctx context.Context, folderID, fileName string, r io.Reader, overwrite bool) error
}

// New builds the backend selected by REMOTE_TYPE.
func New(cfg *config.Config, logger *logging.Logger) (Client, error) {
	switch cfg.RemoteType {
	case types.RemoteRclone, "":
		return NewRcloneClient(cfg.CloudRemote, cfg.ExportFolder, cfg.RcloneFlags, logger), nil
	case types.RemoteLocal:
		return NewLocalClient(cfg.LocalExportPath, cfg.ExportFolder, logger), nil
	default:
		return nil, fmt.Errorf("unsupported remote type %q", cfg.RemoteType)
	}
}

// NormalizeName returns the name used for an uploaded object: NFC form,
// path separators and control characters replaced.
func NormalizeName(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case r < 0x20 || r == 0x7f:
			return -1
		default:
			return r
		}
	}, name)
}
