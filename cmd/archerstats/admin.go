package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/archerstats/internal/savedata"
	"github.com/rewired-gh/archerstats/internal/tracker"
)

func newResetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard the persisted live session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := fileStore(cfg).ResetLiveStats(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Live session cleared.")
			return nil
		},
	}
}

func newRebaselineCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rebaseline",
		Short: "Take the save file's current counters as the new snapshot",
		Long: `Use after restoring or replacing the save file: progress between the old snapshot and
the current save data is not counted as matches.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			files := fileStore(cfg)
			tr, err := tracker.New(savedata.NewFileReader(cfg.Game.SaveFile), files, files, nil, tracker.Options{Append: true})
			if err != nil {
				return err
			}
			if err := tr.Rebaseline(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot updated from %s.\n", cfg.Game.SaveFile)
			return nil
		},
	}
}

func newPathsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the files archerstats reads and writes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "save file:  %s\n", cfg.Game.SaveFile)
			fmt.Fprintf(out, "data dir:   %s\n", cfg.Game.DataDir)
			fmt.Fprintf(out, "snapshot:   %s\n", cfg.SnapshotFile())
			fmt.Fprintf(out, "live stats: %s\n", cfg.LiveStatsFile())
			if cfg.Database.Enabled {
				fmt.Fprintf(out, "database:   %s (%s)\n", cfg.Database.DSN, cfg.Database.Driver)
			}
			return nil
		},
	}
}
