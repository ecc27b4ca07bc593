package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/rewired-gh/archerstats/internal/models"
	"github.com/rewired-gh/archerstats/internal/stats"
)

func formatMatch(rec models.MatchRecord) string {
	var b strings.Builder
	b.WriteString("🏹 *Match finished*\n")
	if winner, ok := rec.Winner(); ok {
		fmt.Fprintf(&b, "👑 Winner: *%s*\n", escapeMarkdownV2(winner.Title()))
	}
	if rec.Venue != "" {
		fmt.Fprintf(&b, "🗼 %s\n", escapeMarkdownV2(rec.Venue))
	}
	fmt.Fprintf(&b, "🔁 %d rounds\n", rec.Rounds)
	dateStr := escapeMarkdownV2(rec.PlayedAt().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "📅 %s\n\n", dateStr)

	for _, a := range rec.Participants.Members() {
		fmt.Fprintf(&b, "%s: %d kills, %d deaths\n",
			escapeMarkdownV2(a.Title()), rec.Kills[a], rec.Deaths[a])
	}
	return b.String()
}

func formatLiveStats(l models.LiveStats) string {
	if l.Matches == 0 {
		return "No matches this session yet"
	}
	var b strings.Builder
	started := escapeMarkdownV2(time.Unix(l.StartedAt, 0).Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "📊 *Session* since %s\n", started)
	fmt.Fprintf(&b, "%d matches, %d rounds\n\n", l.Matches, l.Rounds)
	for _, a := range l.Active().Members() {
		line := fmt.Sprintf("%s: %dW %dK %dD, KDR %.2f, win rate %.2f",
			a.Title(), l.Wins[a], l.Kills[a], l.Deaths[a], l.KDR[a], l.WinRate[a])
		b.WriteString(escapeMarkdownV2(line))
		b.WriteByte('\n')
	}
	return b.String()
}

func formatRankings(metric stats.Metric, groups []stats.Group[float64]) string {
	if len(groups) == 0 {
		return "No matches this session yet"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 *Rankings by %s*\n", escapeMarkdownV2(string(metric)))
	for i, g := range groups {
		names := make([]string, len(g.Archers))
		for j, a := range g.Archers {
			names[j] = a.Title()
		}
		line := fmt.Sprintf("%d. %s (%s)", i+1, strings.Join(names, ", "), formatValue(metric, g.Value))
		b.WriteString(escapeMarkdownV2(line))
		b.WriteByte('\n')
	}
	return b.String()
}

func formatStreaks(streaks models.PerArcher[int], active models.ArcherSet) string {
	if active.Empty() {
		return "No matches this session yet"
	}
	var b strings.Builder
	b.WriteString("🔥 *Longest win streaks*\n")
	for _, a := range active.Members() {
		fmt.Fprintf(&b, "%s: %d\n", escapeMarkdownV2(a.Title()), streaks[a])
	}
	return b.String()
}

func formatValue(metric stats.Metric, v float64) string {
	switch metric {
	case stats.MetricKDR, stats.MetricWinRate:
		return fmt.Sprintf("%.2f", v)
	default:
		return fmt.Sprintf("%d", int(v))
	}
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
