// Package snapshot fetches and decodes the players.json snapshot written by
// the server plugin.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mapcrafter/playermarkers/pkg/core"
)

// DefaultPath is the snapshot file name relative to the map base URL.
const DefaultPath = "players.json"

// ErrNoPayload is returned when a snapshot carries no usable players list.
var ErrNoPayload = errors.New("snapshot has no players payload")

// Source yields the latest snapshot.
type Source interface {
	Fetch(ctx context.Context) (core.Snapshot, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (core.Snapshot, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context) (core.Snapshot, error) {
	return f(ctx)
}

type envelope struct {
	Players *[]core.Player `json:"players"`
}

// Decode parses a snapshot document. A missing or null players field yields
// ErrNoPayload; an empty list is a valid snapshot with nobody online.
func Decode(r io.Reader) (core.Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return core.Snapshot{}, ErrNoPayload
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return core.Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if env.Players == nil {
		return core.Snapshot{}, ErrNoPayload
	}
	players := *env.Players
	if players == nil {
		players = []core.Player{}
	}
	return core.Snapshot{Players: players}, nil
}
