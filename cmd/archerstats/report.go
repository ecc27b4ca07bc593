package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/archerstats/internal/config"
	"github.com/rewired-gh/archerstats/internal/models"
	"github.com/rewired-gh/archerstats/internal/stats"
	"github.com/rewired-gh/archerstats/internal/storage"
)

const noSession = "No matches recorded in the current session."

// loadLive reads the persisted session. A missing file is an empty session.
func loadLive(cfg *config.Config) (models.LiveStats, error) {
	live, err := fileStore(cfg).LoadLiveStats()
	if err != nil {
		return models.LiveStats{}, err
	}
	if live == nil {
		return models.NewLiveStats("", time.Now()), nil
	}
	return *live, nil
}

func newStatsCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the current session's stats per archer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			live, err := loadLive(cfg)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), live)
			}
			return printStats(cmd.OutOrStdout(), live)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw session as JSON")
	return cmd
}

func printStats(out io.Writer, live models.LiveStats) error {
	if live.Matches == 0 {
		_, err := fmt.Fprintln(out, noSession)
		return err
	}
	fmt.Fprintf(out, "Session %s: %d matches, %d rounds\n\n", live.SessionID, live.Matches, live.Rounds)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ARCHER\tMATCHES\tWINS\tKILLS\tDEATHS\tKDR\tWIN RATE\tBEST STREAK")
	for _, a := range live.Active().Members() {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.2f\t%.2f\t%d\n",
			a.Title(), live.MatchCount[a], live.Wins[a], live.Kills[a], live.Deaths[a],
			live.KDR[a], live.WinRate[a], live.WinningStreaks[a])
	}
	return tw.Flush()
}

func newRankingsCmd(opts *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "rankings [metric]",
		Short: "Rank archers by a metric (default: every metric)",
		Long:  "Metrics: " + strings.Join(metricNames(), ", "),
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metrics := stats.Metrics
			if len(args) == 1 {
				m, err := stats.ParseMetric(args[0])
				if err != nil {
					return err
				}
				metrics = []stats.Metric{m}
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			live, err := loadLive(cfg)
			if err != nil {
				return err
			}
			among := live.Active()
			if all {
				among = models.FullRoster
			}
			return printRankings(cmd.OutOrStdout(), live, metrics, among)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include archers that have not played this session")
	return cmd
}

func metricNames() []string {
	names := make([]string, len(stats.Metrics))
	for i, m := range stats.Metrics {
		names[i] = string(m)
	}
	return names
}

func printRankings(out io.Writer, live models.LiveStats, metrics []stats.Metric, among models.ArcherSet) error {
	if among.Empty() {
		_, err := fmt.Fprintln(out, noSession)
		return err
	}
	for i, m := range metrics {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s\n", m)
		for rank, g := range stats.RankMetric(live, m, among) {
			names := make([]string, len(g.Archers))
			for j, a := range g.Archers {
				names[j] = a.Title()
			}
			fmt.Fprintf(out, "  %d. %s (%s)\n", rank+1, strings.Join(names, ", "), formatValue(m, g.Value))
		}
	}
	return nil
}

func formatValue(m stats.Metric, v float64) string {
	switch m {
	case stats.MetricKDR, stats.MetricWinRate:
		return fmt.Sprintf("%.2f", v)
	default:
		return fmt.Sprintf("%d", int(v))
	}
}

func newStreaksCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "streaks",
		Short: "Show each archer's longest win streak this session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			live, err := loadLive(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if live.Matches == 0 {
				_, err := fmt.Fprintln(out, noSession)
				return err
			}
			streaks := stats.LongestStreaks(live.MatchDetails)
			for _, a := range live.Active().Members() {
				fmt.Fprintf(out, "%-8s %d\n", a.Title(), streaks[a])
			}
			return nil
		},
	}
}

func newHistoryCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent matches from the match database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			matches, err := db.RecentMatches(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), matches)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of matches to show")
	return cmd
}

func printHistory(out io.Writer, matches []models.MatchRecord) error {
	if len(matches) == 0 {
		_, err := fmt.Fprintln(out, "No matches stored.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLAYED\tWINNER\tROUNDS\tVENUE\tARCHERS")
	for _, m := range matches {
		winner := "-"
		if a, ok := m.Winner(); ok {
			winner = a.Title()
		}
		venue := m.Venue
		if venue == "" {
			venue = "-"
		}
		parts := make([]string, 0, m.Participants.Len())
		for _, a := range m.Participants.Members() {
			parts = append(parts, fmt.Sprintf("%s %d/%d", a.Title(), m.Kills[a], m.Deaths[a]))
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			m.PlayedAt().Format("2006-01-02 15:04"), winner, m.Rounds, venue, strings.Join(parts, ", "))
	}
	return tw.Flush()
}

func newTotalsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "totals",
		Short: "Show all-time totals per archer from the match database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			totals, err := db.ArcherTotals(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ARCHER\tMATCHES\tWINS\tKILLS\tDEATHS\tKDR")
			for _, t := range totals {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.2f\n",
					t.Archer.Title(), t.Matches, t.Wins, t.Kills, t.Deaths, models.KDR(t.Kills, t.Deaths))
			}
			return tw.Flush()
		},
	}
}

func openDatabase(cmd *cobra.Command, cfg *config.Config) (*storage.Storage, error) {
	if !cfg.Database.Enabled {
		return nil, fmt.Errorf("the match database is disabled (set database.enabled)")
	}
	return storage.New(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
