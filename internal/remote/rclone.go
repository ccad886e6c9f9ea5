package remote

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/tis24dev/savesync/internal/logging"
)

// CommandFunc runs an external command with optional stdin and returns its combined output.
type CommandFunc func(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)

// RcloneClient uploads through an rclone remote. Upload failures are not retried.
type RcloneClient struct {
	remote       string // rclone remote name, without the trailing colon
	exportFolder string
	flags        []string
	logger       *logging.Logger

	execCommand CommandFunc
	lookPath    func(string) (string, error)
	folders     singleflight.Group
}

// NewRcloneClient creates a client for remote (e.g. "gdrive").
func NewRcloneClient(remote, exportFolder string, flags []string, logger *logging.Logger) *RcloneClient {
	if logger == nil {
		logger = logging.Discard()
	}
	return &RcloneClient{
		remote:       strings.TrimSuffix(strings.TrimSpace(remote), ":"),
		exportFolder: strings.Trim(exportFolder, "/"),
		flags:        flags,
		logger:       logger,
		execCommand:  defaultExecCommand,
		lookPath:     exec.LookPath,
	}
}

// Name returns the backend name.
func (c *RcloneClient) Name() string {
	return "rclone"
}

func (c *RcloneClient) remoteRoot() string {
	return c.remote + ":"
}

func (c *RcloneClient) folderRef() string {
	return fmt.Sprintf("%s:%s", c.remote, c.exportFolder)
}

func (c *RcloneClient) objectRef(folderID, name string) string {
	remoteName, rel := splitRemoteRef(folderID)
	return fmt.Sprintf("%s:%s", remoteName, path.Join(rel, name))
}

func (c *RcloneClient) buildRcloneArgs(subcommand string) []string {
	args := []string{subcommand}
	return append(args, c.flags...)
}

func splitRemoteRef(ref string) (remoteName, relPath string) {
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) < 2 {
		return ref, ""
	}
	return parts[0], parts[1]
}

func (c *RcloneClient) hasRclone() bool {
	_, err := c.lookPath("rclone")
	return err == nil
}

// Session reports the configured remote as signed in when rclone knows it.
func (c *RcloneClient) Session(ctx context.Context) (*Session, error) {
	if c.remote == "" {
		c.logger.Debug("rclone: CLOUD_REMOTE not configured")
		return nil, nil
	}
	if !c.hasRclone() {
		return nil, &Error{Kind: ErrorOther, Op: "lookup", Target: "rclone", Err: exec.ErrNotFound}
	}

	output, err := c.execCommand(ctx, nil, "rclone", c.buildRcloneArgs("listremotes")...)
	if err != nil {
		return nil, classifyRemoteError("listremotes", c.remoteRoot(), err, output)
	}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == c.remoteRoot() {
			return &Session{Backend: c.Name(), Account: c.remote}, nil
		}
	}
	c.logger.Debug("rclone: remote %s not found in rclone config", c.remoteRoot())
	return nil, nil
}

// EnsureExportFolder creates the export folder. Concurrent calls share one rclone run.
func (c *RcloneClient) EnsureExportFolder(ctx context.Context) (string, error) {
	ref := c.folderRef()
	v, err, _ := c.folders.Do(ref, func() (interface{}, error) {
		args := append(c.buildRcloneArgs("mkdir"), ref)
		c.logger.Debug("Running: rclone %s", strings.Join(args, " "))
		output, err := c.execCommand(ctx, nil, "rclone", args...)
		if err != nil {
			return "", classifyRemoteError("mkdir", ref, err, output)
		}
		return ref, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Upload streams r to <folderID>/<fileName> with rclone rcat.
func (c *RcloneClient) Upload(ctx context.Context, folderID, fileName string, r io.Reader, overwrite bool) error {
	target := c.objectRef(folderID, NormalizeName(fileName))

	if !overwrite {
		exists, err := c.exists(ctx, target)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrExists, target)
		}
	}

	args := append(c.buildRcloneArgs("rcat"), target)
	c.logger.Debug("Running: rclone %s", strings.Join(args, " "))
	output, err := c.execCommand(ctx, r, "rclone", args...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &Error{Kind: ErrorTimeout, Op: "rcat", Target: target, Err: ctx.Err()}
		}
		return classifyRemoteError("rcat", target, err, output)
	}
	return nil
}

func (c *RcloneClient) exists(ctx context.Context, target string) (bool, error) {
	args := append(c.buildRcloneArgs("lsf"), "--files-only", target)
	output, err := c.execCommand(ctx, nil, "rclone", args...)
	if err != nil {
		classified := classifyRemoteError("lsf", target, err, output)
		if classified.Kind == ErrorPath {
			return false, nil
		}
		return false, classified
	}
	return strings.TrimSpace(string(output)) != "", nil
}

func defaultExecCommand(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	return cmd.CombinedOutput()
}
