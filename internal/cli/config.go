package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tis24dev/savesync/internal/config"
	"github.com/tis24dev/savesync/internal/types"
)

func configCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(configUpgradeCmd(opts))
	return cmd
}

func configUpgradeCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Merge new template keys into the configuration file",
		Long: `Rewrite the configuration on top of the current template. Existing values are
kept, new keys get their defaults and unknown keys move to a custom section.
A backup of the previous file is written next to it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.resolvedConfigPath()

			var (
				result *config.UpgradeResult
				err    error
			)
			if dryRun {
				result, err = config.PlanUpgradeConfigFile(path)
			} else {
				result, err = config.UpgradeConfigFile(path)
			}
			if err != nil {
				return withCode(types.ExitConfigError, err)
			}

			out := cmd.OutOrStdout()
			if !result.Changed {
				fmt.Fprintf(out, "✓ %s is up to date\n", path)
				return nil
			}
			if len(result.MissingKeys) > 0 {
				fmt.Fprintf(out, "Added keys:   %s\n", strings.Join(result.MissingKeys, ", "))
			}
			if len(result.ExtraKeys) > 0 {
				fmt.Fprintf(out, "Custom keys:  %s\n", strings.Join(result.ExtraKeys, ", "))
			}
			fmt.Fprintf(out, "Kept values:  %d\n", result.PreservedValues)
			if dryRun {
				fmt.Fprintln(out, "Dry run: configuration not modified")
				return nil
			}
			fmt.Fprintf(out, "✓ Configuration upgraded (backup: %s)\n", result.BackupPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would change without writing")
	return cmd
}
