package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tis24dev/savesync/internal/catalog"
	"github.com/tis24dev/savesync/internal/config"
	"github.com/tis24dev/savesync/internal/remote"
	"github.com/tis24dev/savesync/internal/types"
)

// sessionCheckTimeout bounds the remote sign-in check.
const sessionCheckTimeout = 15 * time.Second

func statusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, connectivity and backup state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, err := opts.newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ok := color.New(color.FgGreen).SprintFunc()
			bad := color.New(color.FgRed).SprintFunc()

			fmt.Fprintf(out, "Configuration: %s\n", cfg.ConfigPath)
			printSettings(out, cfg)

			net := newNetworkStatus(cfg, logger)
			switch {
			case !net.IsAvailable():
				fmt.Fprintf(out, "Network:       %s\n", bad("offline"))
			case net.IsWifi():
				fmt.Fprintf(out, "Network:       %s\n", ok("wifi"))
			default:
				fmt.Fprintf(out, "Network:       %s\n", ok("online (not wifi)"))
			}

			client, err := remote.New(cfg, logger)
			if err != nil {
				return withCode(types.ExitRemoteError, err)
			}
			sctx, cancel := context.WithTimeout(cmd.Context(), sessionCheckTimeout)
			sess, err := client.Session(sctx)
			cancel()
			switch {
			case err != nil:
				fmt.Fprintf(out, "Remote:        %s %s\n", client.Name(), bad(fmt.Sprintf("(%v)", err)))
			case sess == nil:
				fmt.Fprintf(out, "Remote:        %s %s\n", client.Name(), bad("(not signed in)"))
			default:
				fmt.Fprintf(out, "Remote:        %s %s\n", client.Name(), ok("(signed in as "+sess.Account+")"))
			}

			store, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			return printBackupState(cmd.Context(), out, store)
		},
	}
}

func printSettings(w io.Writer, cfg *config.Config) {
	enabled := "disabled"
	if cfg.AutoBackupEnabled {
		enabled = "enabled"
	}
	fmt.Fprintf(w, "Auto backup:   %s (%s", enabled, cfg.BackupMode)
	if cfg.BackupMode == types.BackupModeRotating {
		fmt.Fprintf(w, ", %d slots", cfg.RotatingBackups)
	}
	fmt.Fprint(w, ")")
	if cfg.WifiOnly {
		fmt.Fprint(w, ", wifi only")
	}
	if cfg.EncryptArchive {
		fmt.Fprint(w, ", encrypted")
	}
	fmt.Fprintln(w)

	var classes []string
	if cfg.BackupManualSave {
		classes = append(classes, types.SaveClassManual.String())
	}
	if cfg.BackupAutoSave {
		classes = append(classes, types.SaveClassAuto.String())
	}
	if cfg.BackupIngameSave {
		classes = append(classes, types.SaveClassCartridge.String())
	}
	if len(classes) == 0 {
		classes = append(classes, "none")
	}
	fmt.Fprintf(w, "Save classes:  %s\n", strings.Join(classes, ", "))
	fmt.Fprintf(w, "Save dir:      %s\n", cfg.SaveRoot())
}

func printBackupState(ctx context.Context, w io.Writer, store *catalog.Store) error {
	watermark, err := store.LoadWatermark(ctx)
	if err != nil {
		return withCode(types.ExitCatalogError, err)
	}
	fmt.Fprintf(w, "Last backup:   %s\n", formatTime(watermark))

	title, err := store.MostRecentTitle(ctx)
	switch {
	case errors.Is(err, catalog.ErrTitleNotFound):
		fmt.Fprintln(w, "Last played:   none")
	case err != nil:
		return withCode(types.ExitCatalogError, err)
	default:
		fmt.Fprintf(w, "Last played:   %s (%s)\n", title.DisplayName, formatTime(title.LastPlayed))
		if title.LastPlayed.After(watermark) {
			fmt.Fprintln(w, "               not backed up since")
		}
	}
	return nil
}
