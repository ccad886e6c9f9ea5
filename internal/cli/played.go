package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tis24dev/savesync/internal/catalog"
	"github.com/tis24dev/savesync/internal/orchestrator"
	"github.com/tis24dev/savesync/internal/types"
)

// ErrBackupFailed is returned by commands whose auto backup did not transfer everything.
var ErrBackupFailed = errors.New("auto backup did not complete")

func playedCmd(opts *globalOptions) *cobra.Command {
	var noResume bool
	cmd := &cobra.Command{
		Use:   "played <rom>",
		Short: "Record a play session and run the resume hook",
		Long: `Record that <rom> was just played and run the auto backup the way the
front-end does when it regains focus. Use --no-resume to only record the session.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, closeLog, err := opts.newSessionLogger(cfg, "played", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			rt, err := buildRuntime(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.session.TitlePlayed(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, catalog.ErrTitleNotFound) {
					err = fmt.Errorf("%w (register it with 'savesync catalog add %s')", err, args[0])
				}
				return withCode(types.ExitCatalogError, err)
			}
			if noResume {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Recorded play session of %s\n", args[0])
				return nil
			}

			out := rt.session.Resume(cmd.Context())
			printOutcome(cmd.OutOrStdout(), out)
			return outcomeError(out)
		},
	}
	cmd.Flags().BoolVar(&noResume, "no-resume", false, "Only record the play session")
	return cmd
}

// printOutcome writes a one-line summary followed by the collected errors.
func printOutcome(w io.Writer, out orchestrator.Outcome) {
	var mark string
	switch out.Kind {
	case orchestrator.KindSucceeded:
		mark = color.New(color.FgGreen).Sprint("✓")
	case orchestrator.KindSkipped:
		mark = color.New(color.FgCyan).Sprint("-")
	case orchestrator.KindPartiallyFailed:
		mark = color.New(color.FgYellow).Sprint("!")
	default:
		mark = color.New(color.FgRed).Sprint("✗")
	}
	fmt.Fprintf(w, "%s Auto backup %s\n", mark, out)
	if out.Archive != "" {
		fmt.Fprintf(w, "  Archive: %s (slot %d)\n", out.Archive, out.RotationIndex)
	}
	for _, err := range out.Errors {
		fmt.Fprintf(w, "  %v\n", err)
	}
}

func outcomeError(out orchestrator.Outcome) error {
	switch out.Kind {
	case orchestrator.KindFailed:
		code := types.ExitGenericError
		switch out.Reason {
		case orchestrator.ReasonNotSignedIn, orchestrator.ReasonFolderUnavailable, orchestrator.ReasonUploadFailed:
			code = types.ExitRemoteError
		case orchestrator.ReasonIndexCommitFailed:
			code = types.ExitCatalogError
		}
		return withCode(code, fmt.Errorf("%w: %s", ErrBackupFailed, out))
	case orchestrator.KindPartiallyFailed:
		return withCode(types.ExitGenericError, fmt.Errorf("%w: %s", ErrBackupFailed, out))
	default:
		return nil
	}
}
