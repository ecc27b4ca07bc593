// Package savedata decodes the lifetime counters out of TowerFall's tf_saveData XML file.
package savedata

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"github.com/rewired-gh/archerstats/internal/models"
)

type saveData struct {
	XMLName xml.Name `xml:"SaveData"`
	Stats   struct {
		MatchesPlayed int          `xml:"MatchesPlayed"`
		RoundsPlayed  int          `xml:"RoundsPlayed"`
		Wins          []int        `xml:"Wins>unsignedLong"`
		Kills         archerCounts `xml:"Kills"`
		Deaths        archerCounts `xml:"Deaths"`
	} `xml:"Stats"`
}

// archerCounts mirrors the per-colour child elements (<Green>, <Blue>, ...).
type archerCounts struct {
	Green  int `xml:"Green"`
	Blue   int `xml:"Blue"`
	Pink   int `xml:"Pink"`
	Orange int `xml:"Orange"`
	White  int `xml:"White"`
	Yellow int `xml:"Yellow"`
	Cyan   int `xml:"Cyan"`
	Purple int `xml:"Purple"`
	Red    int `xml:"Red"`
}

func (c archerCounts) perArcher() models.PerArcher[int] {
	return models.PerArcher[int]{c.Green, c.Blue, c.Pink, c.Orange, c.White, c.Yellow, c.Cyan, c.Purple, c.Red}
}

// Decode reads save data from r.
func Decode(r io.Reader) (models.CumulativeStats, error) {
	var sd saveData
	if err := xml.NewDecoder(r).Decode(&sd); err != nil {
		return models.CumulativeStats{}, fmt.Errorf("failed to decode save data: %w", err)
	}

	stats := models.CumulativeStats{
		Matches: sd.Stats.MatchesPlayed,
		Rounds:  sd.Stats.RoundsPlayed,
		Kills:   sd.Stats.Kills.perArcher(),
		Deaths:  sd.Stats.Deaths.perArcher(),
	}
	for i, w := range sd.Stats.Wins {
		if i >= models.NumArchers {
			break
		}
		stats.Wins[i] = w
	}

	if err := stats.Validate(); err != nil {
		return models.CumulativeStats{}, fmt.Errorf("invalid save data: %w", err)
	}
	return stats, nil
}

// FileReader reads the counters from a save file on every call.
type FileReader struct {
	path string
}

// NewFileReader reads the save file at path.
func NewFileReader(path string) *FileReader {
	return &FileReader{path: path}
}

// Path returns the save file location.
func (r *FileReader) Path() string {
	return r.path
}

// Read opens and decodes the save file.
func (r *FileReader) Read() (models.CumulativeStats, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return models.CumulativeStats{}, fmt.Errorf("failed to open save file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
