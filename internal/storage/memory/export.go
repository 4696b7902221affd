package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mapcrafter/playermarkers/pkg/core"
)

// SessionExport is the root JSON structure of a session archive
type SessionExport struct {
	SessionID string         `json:"sessionId"`
	Source    string         `json:"source"`
	StartTime int64          `json:"startTime"` // unix millis
	EndTime   int64          `json:"endTime"`
	Maps      []core.MapInfo `json:"maps"`
	Players   []PlayerJSON   `json:"players"`
}

// PlayerJSON is one player's history.
// Joins and leaves are unix millis; positions are
// [millis, x, y, z, displayX, displayY, health, level, layer].
type PlayerJSON struct {
	Username  string  `json:"username"`
	Skin      string  `json:"skin,omitempty"`
	Joins     []int64 `json:"joins"`
	Leaves    []int64 `json:"leaves"`
	Positions [][]any `json:"positions"`
}

// exportJSON writes the session data to a (optionally gzipped) JSON file.
// Must be called with mu held.
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	timestamp := b.session.StartTime.Format("20060102_150405")
	filename := fmt.Sprintf("session_%s.json", timestamp)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	b.lastExportMeta = core.UploadMetadata{
		SessionID: b.session.ID,
		Source:    b.session.Source,
		StartTime: b.session.StartTime,
		Duration:  b.lastAt.Sub(b.session.StartTime),
		Players:   len(export.Players),
	}
	return nil
}

func (b *Backend) buildExport() SessionExport {
	export := SessionExport{
		SessionID: b.session.ID,
		Source:    b.session.Source,
		StartTime: b.session.StartTime.UnixMilli(),
		EndTime:   b.lastAt.UnixMilli(),
		Maps:      b.session.Maps,
		Players:   make([]PlayerJSON, 0, len(b.order)),
	}
	if export.Maps == nil {
		export.Maps = []core.MapInfo{}
	}

	for _, username := range b.order {
		rec := b.players[username]
		player := PlayerJSON{
			Username:  username,
			Joins:     make([]int64, 0, len(rec.Joins)),
			Leaves:    make([]int64, 0, len(rec.Leaves)),
			Positions: make([][]any, 0, len(rec.States)),
		}
		for _, j := range rec.Joins {
			player.Joins = append(player.Joins, j.Time.UnixMilli())
		}
		for _, l := range rec.Leaves {
			player.Leaves = append(player.Leaves, l.Time.UnixMilli())
		}
		for _, s := range rec.States {
			player.Positions = append(player.Positions, []any{
				s.Time.UnixMilli(),
				s.Location.X, s.Location.Y, s.Location.Z,
				s.Display.X, s.Display.Y,
				s.Health,
				s.Level,
				s.Layer,
			})
			if s.Skin != "" {
				player.Skin = s.Skin
			}
		}
		export.Players = append(export.Players, player)
	}

	return export
}

func writeJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		_ = gzWriter.Close()
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return gzWriter.Close()
}
