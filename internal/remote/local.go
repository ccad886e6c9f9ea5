package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tis24dev/savesync/internal/logging"
	"github.com/tis24dev/savesync/pkg/utils"
)

// LocalClient exports into a directory, typically a synced folder or a mounted share.
type LocalClient struct {
	root         string
	exportFolder string
	logger       *logging.Logger
}

// NewLocalClient creates a client exporting to <root>/<exportFolder>.
func NewLocalClient(root, exportFolder string, logger *logging.Logger) *LocalClient {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LocalClient{
		root:         strings.TrimSpace(root),
		exportFolder: strings.Trim(exportFolder, "/"),
		logger:       logger,
	}
}

// Name returns the backend name.
func (c *LocalClient) Name() string {
	return "local"
}

// Session exists when the export root is configured and reachable.
func (c *LocalClient) Session(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.root == "" || !utils.DirExists(c.root) {
		c.logger.Debug("local export: root %q not available", c.root)
		return nil, nil
	}
	return &Session{Backend: c.Name(), Account: c.root}, nil
}

// EnsureExportFolder creates the export directory and returns its path.
func (c *LocalClient) EnsureExportFolder(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Join(c.root, c.exportFolder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &Error{Kind: ErrorPath, Op: "mkdir", Target: dir, Err: err}
	}
	return dir, nil
}

// Upload writes r to <folderID>/<fileName> through a temporary file and a rename.
func (c *LocalClient) Upload(ctx context.Context, folderID, fileName string, r io.Reader, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest := filepath.Join(folderID, NormalizeName(fileName))
	if !overwrite && utils.FileExists(dest) {
		return fmt.Errorf("%w: %s", ErrExists, dest)
	}

	tempFile, err := os.CreateTemp(folderID, fmt.Sprintf(".tmp-%s-", filepath.Base(dest)))
	if err != nil {
		return &Error{Kind: ErrorPath, Op: "create", Target: folderID, Err: err}
	}
	tempName := tempFile.Name()
	defer func() {
		if tempFile != nil {
			tempFile.Close()
		}
		if tempName != "" {
			os.Remove(tempName)
		}
	}()

	start := time.Now()
	written, err := io.Copy(tempFile, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		return &Error{Kind: ErrorOther, Op: "write", Target: dest, Err: err}
	}
	if err := tempFile.Sync(); err != nil {
		return &Error{Kind: ErrorOther, Op: "sync", Target: tempName, Err: err}
	}
	if err := tempFile.Close(); err != nil {
		return &Error{Kind: ErrorOther, Op: "close", Target: tempName, Err: err}
	}
	tempFile = nil

	if err := os.Rename(tempName, dest); err != nil {
		return &Error{Kind: ErrorOther, Op: "rename", Target: dest, Err: err}
	}
	tempName = ""

	c.logger.Debug("Exported %s (%s) in %s", dest, utils.FormatBytes(written), time.Since(start).Truncate(time.Millisecond))
	return nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
