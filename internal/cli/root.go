// Package cli implements the savesync command tree.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tis24dev/savesync/internal/config"
	"github.com/tis24dev/savesync/internal/logging"
	"github.com/tis24dev/savesync/internal/types"
	"github.com/tis24dev/savesync/internal/version"
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code types.ExitCode
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func withCode(code types.ExitCode, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

// ExitCodeOf maps an error returned by Execute to an exit code.
func ExitCodeOf(err error) types.ExitCode {
	if err == nil {
		return types.ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return types.ExitGenericError
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:     "savesync",
		Short:   "Auto backup of emulator save files",
		Version: version.Full(),
		Long: `SaveSync backs up the save files of the last played title when the
emulator front-end resumes: savestates, the auto-save slot and cartridge saves
are uploaded to an rclone remote or a local export directory, either one by one
or as a rotating set of archives.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return withCode(types.ExitUsageError, err)
	})

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (default $SAVESYNC_CONFIG or ~/.savesync/savesync.env)")
	root.PersistentFlags().StringVarP(&opts.logLevel, "log-level", "l", "", "Log level (debug|info|warning|error|critical)")

	root.AddCommand(initCmd(opts))
	root.AddCommand(configCmd(opts))
	root.AddCommand(catalogCmd(opts))
	root.AddCommand(playedCmd(opts))
	root.AddCommand(watchCmd(opts))
	root.AddCommand(statusCmd(opts))
	root.AddCommand(keygenCmd(opts))
	root.AddCommand(versionCmd())

	return root
}

func (o *globalOptions) resolvedConfigPath() string {
	if p := strings.TrimSpace(o.configPath); p != "" {
		return p
	}
	return config.DefaultConfigPath()
}

func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.resolvedConfigPath())
	if err != nil {
		return nil, withCode(types.ExitConfigError, err)
	}
	return cfg, nil
}

// level returns the --log-level value when given, the configured level otherwise.
func (o *globalOptions) level(cfg *config.Config) (types.LogLevel, error) {
	if strings.TrimSpace(o.logLevel) != "" {
		level, ok := types.ParseLogLevel(o.logLevel)
		if !ok {
			return types.LogLevelInfo, withCode(types.ExitUsageError, fmt.Errorf("invalid log level %q", o.logLevel))
		}
		return level, nil
	}
	if cfg != nil {
		return cfg.DebugLevel, nil
	}
	return types.LogLevelInfo, nil
}

// newLogger returns a console logger writing to w.
func (o *globalOptions) newLogger(cfg *config.Config, w io.Writer) (*logging.Logger, error) {
	level, err := o.level(cfg)
	if err != nil {
		return nil, err
	}
	logger := logging.New(level, useColor(cfg, w))
	logger.SetOutput(w)
	return logger, nil
}

// newSessionLogger also mirrors the log into a file under LOG_PATH.
func (o *globalOptions) newSessionLogger(cfg *config.Config, flow string, w io.Writer) (*logging.Logger, func(), error) {
	level, err := o.level(cfg)
	if err != nil {
		return nil, nil, err
	}
	logger, logPath, closeLog, logErr := logging.StartSessionLogger(cfg.LogPath, flow, level, useColor(cfg, w))
	if logErr != nil {
		logger, err = o.newLogger(cfg, w)
		if err != nil {
			return nil, nil, err
		}
		logger.Warning("Session log unavailable: %v", logErr)
		return logger, func() {}, nil
	}
	logger.SetOutput(w)
	logger.Debug("Session log: %s", logPath)
	return logger, closeLog, nil
}

func useColor(cfg *config.Config, w io.Writer) bool {
	if cfg != nil && !cfg.UseColor {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "savesync %s\n", version.Full())
		},
	}
}
