package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/archerstats/internal/config"
	"github.com/rewired-gh/archerstats/internal/logger"
	"github.com/rewired-gh/archerstats/internal/state"
)

type options struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "archerstats",
		Short: "TowerFall archer statistics tracker",
		Long: `archerstats watches the TowerFall save file, turns every finished match into a
per-archer record and keeps live session stats, win streaks and rankings.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/config.yaml", "Path to configuration file")

	root.AddCommand(
		newWatchCmd(opts),
		newStatsCmd(opts),
		newRankingsCmd(opts),
		newStreaksCmd(opts),
		newHistoryCmd(opts),
		newTotalsCmd(opts),
		newResetCmd(opts),
		newRebaselineCmd(opts),
		newPathsCmd(opts),
	)
	return root
}

// load reads and validates the configuration and initialises logging.
func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func fileStore(cfg *config.Config) *state.FileStore {
	return state.NewFileStore(cfg.SnapshotFile(), cfg.LiveStatsFile())
}
