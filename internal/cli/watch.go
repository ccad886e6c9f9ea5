package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tis24dev/savesync/internal/orchestrator"
	"github.com/tis24dev/savesync/internal/types"
	"github.com/tis24dev/savesync/pkg/utils"
)

func watchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Back up save files as they change",
		Long: `Watch the save directory and run the auto backup once it has been quiet for
WATCH_QUIET_SECONDS. Send SIGUSR1 to force an attempt. SIGINT or SIGTERM stops
the watcher.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			dir := cfg.SaveRoot()
			if !utils.DirExists(dir) {
				return withCode(types.ExitConfigError, fmt.Errorf("save directory not found: %s", dir))
			}

			logger, closeLog, err := opts.newSessionLogger(cfg, "watch", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			rt, err := buildRuntime(ctx, cfg, logger, func(o orchestrator.Outcome) {
				if o.Reason != orchestrator.ReasonNotPending {
					printOutcome(out, o)
				}
			})
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.session.Watch(ctx, dir, cfg.WatchQuiet); err != nil {
				return withCode(types.ExitGenericError, err)
			}
			logger.Info("Watcher stopped")
			return nil
		},
	}
}
