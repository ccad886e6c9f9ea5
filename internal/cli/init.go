package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tis24dev/savesync/internal/config"
	"github.com/tis24dev/savesync/internal/types"
)

func initCmd(opts *globalOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Long:  `Write the configuration template to the --config path (default ~/.savesync/savesync.env).`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.resolvedConfigPath()
			if err := config.WriteDefaultConfig(path, force); err != nil {
				return withCode(types.ExitConfigError, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Configuration written to %s\n", path)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintln(out, "  set CLOUD_REMOTE (or REMOTE_TYPE=local and LOCAL_EXPORT_PATH)")
			fmt.Fprintln(out, "  set AUTO_BACKUP_ENABLED=true")
			fmt.Fprintln(out, "  savesync catalog add <rom>")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	return cmd
}
