package stats

import "github.com/rewired-gh/archerstats/internal/models"

// LongestStreaks scans the history in order and returns each archer's longest run of
// consecutive match wins. Archers that never won get 0. It always rescans.
func LongestStreaks(details []models.MatchRecord) models.PerArcher[int] {
	var best, run models.PerArcher[int]
	for _, m := range details {
		winner, ok := m.Winner()
		for _, a := range models.Archers {
			if !ok || a != winner {
				run[a] = 0
			}
		}
		if !ok {
			continue
		}
		run[winner]++
		best[winner] = max(best[winner], run[winner])
	}
	return best
}
