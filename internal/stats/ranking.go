package stats

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/rewired-gh/archerstats/internal/models"
)

// Group is one rank: every archer sharing the same value.
type Group[T cmp.Ordered] struct {
	Value   T               `json:"value"`
	Archers []models.Archer `json:"archers"`
}

// Rank groups the archers in among by identical value, highest value first. Ties share a
// group; inside a group archers keep roster order.
func Rank[T cmp.Ordered](values models.PerArcher[T], among models.ArcherSet) []Group[T] {
	groups := make([]Group[T], 0, among.Len())
outer:
	for _, a := range among.Members() {
		v := values[a]
		for i := range groups {
			if groups[i].Value == v {
				groups[i].Archers = append(groups[i].Archers, a)
				continue outer
			}
		}
		groups = append(groups, Group[T]{Value: v, Archers: []models.Archer{a}})
	}
	slices.SortStableFunc(groups, func(x, y Group[T]) int {
		return cmp.Compare(y.Value, x.Value)
	})
	return groups
}

// Metric names a rankable per-archer stat of a live session.
type Metric string

const (
	MetricWins    Metric = "wins"
	MetricKills   Metric = "kills"
	MetricDeaths  Metric = "deaths"
	MetricKDR     Metric = "kdr"
	MetricMatches Metric = "matches"
	MetricWinRate Metric = "winRate"
	MetricStreaks Metric = "streaks"
)

// Metrics lists every rankable metric in display order.
var Metrics = []Metric{MetricWins, MetricKills, MetricDeaths, MetricKDR, MetricMatches, MetricWinRate, MetricStreaks}

// ParseMetric resolves a metric name. It accepts a few common spellings.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "wins", "win":
		return MetricWins, nil
	case "kills", "kill":
		return MetricKills, nil
	case "deaths", "death":
		return MetricDeaths, nil
	case "kdr", "kd":
		return MetricKDR, nil
	case "matches", "matchcount", "match_count":
		return MetricMatches, nil
	case "winrate", "win_rate":
		return MetricWinRate, nil
	case "streaks", "streak", "winningstreaks":
		return MetricStreaks, nil
	}
	return "", fmt.Errorf("unknown metric %q", name)
}

// Values extracts the metric from l as floats.
func (m Metric) Values(l models.LiveStats) models.PerArcher[float64] {
	var out models.PerArcher[float64]
	for _, a := range models.Archers {
		switch m {
		case MetricWins:
			out[a] = float64(l.Wins[a])
		case MetricKills:
			out[a] = float64(l.Kills[a])
		case MetricDeaths:
			out[a] = float64(l.Deaths[a])
		case MetricKDR:
			out[a] = l.KDR[a]
		case MetricMatches:
			out[a] = float64(l.MatchCount[a])
		case MetricWinRate:
			out[a] = l.WinRate[a]
		case MetricStreaks:
			out[a] = float64(l.WinningStreaks[a])
		}
	}
	return out
}

// RankMetric ranks one metric of a live session.
func RankMetric(l models.LiveStats, m Metric, among models.ArcherSet) []Group[float64] {
	return Rank(m.Values(l), among)
}

// RankAll ranks every metric.
func RankAll(l models.LiveStats, among models.ArcherSet) map[Metric][]Group[float64] {
	out := make(map[Metric][]Group[float64], len(Metrics))
	for _, m := range Metrics {
		out[m] = RankMetric(l, m, among)
	}
	return out
}
