package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tis24dev/savesync/internal/catalog"
	"github.com/tis24dev/savesync/internal/types"
)

func catalogCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the title catalog",
		Long:  "Register titles and savestates in the catalog consulted by the auto backup",
	}
	cmd.AddCommand(catalogAddCmd(opts))
	cmd.AddCommand(catalogSavestateCmd(opts))
	cmd.AddCommand(catalogListCmd(opts))
	return cmd
}

// withCatalog loads the configuration and runs fn against the catalog.
func withCatalog(opts *globalOptions, fn func(store *catalog.Store) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	store, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func catalogAddCmd(opts *globalOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add <rom>",
		Short: "Register a title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(opts, func(store *catalog.Store) error {
				title, err := store.AddTitle(cmd.Context(), args[0], name)
				if err != nil {
					return withCode(types.ExitCatalogError, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Added %s (%s)\n", title.DisplayName, title.FileName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name (default: derived from the ROM file name)")
	return cmd
}

func catalogSavestateCmd(opts *globalOptions) *cobra.Command {
	var (
		file   string
		atFlag string
	)
	cmd := &cobra.Command{
		Use:   "savestate <rom> <slot>",
		Short: "Record a savestate of a title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := strconv.Atoi(args[1])
			if err != nil {
				return withCode(types.ExitUsageError, fmt.Errorf("invalid slot %q", args[1]))
			}
			at := time.Now()
			if atFlag != "" {
				at, err = time.Parse(time.RFC3339, atFlag)
				if err != nil {
					return withCode(types.ExitUsageError, fmt.Errorf("invalid --time %q: %w", atFlag, err))
				}
			}

			return withCatalog(opts, func(store *catalog.Store) error {
				if err := store.RecordSavestate(cmd.Context(), args[0], slot, file, at); err != nil {
					return withCode(types.ExitCatalogError, err)
				}
				saveFile := file
				if saveFile == "" {
					saveFile = catalog.SavestateFileName(args[0], slot)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Recorded slot %d of %s: %s\n", slot, args[0], saveFile)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Savestate file name (default: <rom>.sgm for slot 0, <rom><slot>.sgm otherwise)")
	cmd.Flags().StringVar(&atFlag, "time", "", "Save time in RFC3339 (default: now)")
	return cmd
}

func catalogListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List titles, most recently played first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(opts, func(store *catalog.Store) error {
				titles, err := store.ListTitles(cmd.Context())
				if err != nil {
					return withCode(types.ExitCatalogError, err)
				}

				out := cmd.OutOrStdout()
				if len(titles) == 0 {
					fmt.Fprintln(out, "No titles found")
					return nil
				}

				bold := color.New(color.Bold)
				fmt.Fprintf(out, "Found %d title(s):\n\n", len(titles))
				for _, title := range titles {
					fmt.Fprintf(out, "%s (%s)\n", bold.Sprint(title.DisplayName), title.FileName)
					fmt.Fprintf(out, "  Last played:   %s\n", formatTime(title.LastPlayed))
					if title.AutoSaveIndex != nil {
						fmt.Fprintf(out, "  Rotation slot: %d\n", *title.AutoSaveIndex)
					}
					for _, state := range title.Savestates {
						fmt.Fprintf(out, "  Slot %d: %-24s %s\n", state.Slot, state.FileName, formatTime(state.SaveTime))
					}
				}
				return nil
			})
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
