// pkg/core/session.go
package core

import "time"

// Session identifies one run of the tracker, as seen by a recorder.
type Session struct {
	ID        string
	StartTime time.Time
	Source    string
	Maps      []MapInfo
}

// MapInfo describes a configured map and the world it renders.
type MapInfo struct {
	Name  string `json:"name"`
	World string `json:"world"`
}

// PresenceKind distinguishes joins from leaves.
type PresenceKind string

const (
	PresenceJoin  PresenceKind = "join"
	PresenceLeave PresenceKind = "leave"
)

// PresenceEvent is emitted when a marker is created or destroyed.
type PresenceEvent struct {
	SessionID string
	Time      time.Time
	Kind      PresenceKind
	Username  string
	World     string
	Layer     string
}

// PlayerState is the state of one player as applied at one poll.
type PlayerState struct {
	SessionID  string
	Time       time.Time
	Username   string
	World      string
	Layer      string
	Location   Position3D
	Display    Position2D
	Health     float64
	Level      float64
	Food       int
	Saturation float64
	Skin       string
	Textures   map[string]string
}

// PollResult summarises one applied snapshot.
type PollResult struct {
	SessionID string
	Time      time.Time
	States    []PlayerState
	Active    int
	Total     int
}

// UploadMetadata describes an exported session archive.
type UploadMetadata struct {
	SessionID string
	Source    string
	StartTime time.Time
	Duration  time.Duration
	Players   int
}
