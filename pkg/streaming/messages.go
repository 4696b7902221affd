// Package streaming defines the wire messages of the session streaming
// protocol: every message is an Envelope carrying a typed JSON payload.
package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/mapcrafter/playermarkers/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeJoin         = "player_join"
	TypeLeave        = "player_leave"
	TypePosition     = "player_position"
	TypePoll         = "poll"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload announces a session. Times are unix millis.
type StartSessionPayload struct {
	SessionID string         `json:"sessionId"`
	StartTime int64          `json:"startTime"`
	Source    string         `json:"source"`
	Maps      []core.MapInfo `json:"maps"`
}

// PresencePayload carries a join or leave.
type PresencePayload struct {
	SessionID string `json:"sessionId"`
	Time      int64  `json:"time"`
	Username  string `json:"username"`
	World     string `json:"world"`
	Layer     string `json:"layer"`
}

// PositionPayload carries one applied player state.
type PositionPayload struct {
	SessionID string          `json:"sessionId"`
	Time      int64           `json:"time"`
	Username  string          `json:"username"`
	World     string          `json:"world"`
	Layer     string          `json:"layer"`
	Location  core.Position3D `json:"location"`
	Display   [2]float64      `json:"display"`
	Health    float64         `json:"health"`
	Level     float64         `json:"level"`
	Skin      string          `json:"skin,omitempty"`
}

// PollPayload summarises one applied snapshot.
type PollPayload struct {
	SessionID string            `json:"sessionId"`
	Time      int64             `json:"time"`
	Active    int               `json:"active"`
	Total     int               `json:"total"`
	Players   []PositionPayload `json:"players"`
}

// NewStartSessionPayload builds the payload for s.
func NewStartSessionPayload(s *core.Session) StartSessionPayload {
	maps := s.Maps
	if maps == nil {
		maps = []core.MapInfo{}
	}
	return StartSessionPayload{
		SessionID: s.ID,
		StartTime: s.StartTime.UnixMilli(),
		Source:    s.Source,
		Maps:      maps,
	}
}

// NewPresencePayload builds the payload for e.
func NewPresencePayload(e *core.PresenceEvent) PresencePayload {
	return PresencePayload{
		SessionID: e.SessionID,
		Time:      e.Time.UnixMilli(),
		Username:  e.Username,
		World:     e.World,
		Layer:     e.Layer,
	}
}

// NewPositionPayload builds the payload for s.
func NewPositionPayload(s *core.PlayerState) PositionPayload {
	return PositionPayload{
		SessionID: s.SessionID,
		Time:      s.Time.UnixMilli(),
		Username:  s.Username,
		World:     s.World,
		Layer:     s.Layer,
		Location:  s.Location,
		Display:   [2]float64{s.Display.X, s.Display.Y},
		Health:    s.Health,
		Level:     s.Level,
		Skin:      s.Skin,
	}
}

// NewPollPayload builds the payload for p.
func NewPollPayload(p *core.PollResult) PollPayload {
	players := make([]PositionPayload, len(p.States))
	for i := range p.States {
		players[i] = NewPositionPayload(&p.States[i])
	}
	return PollPayload{
		SessionID: p.SessionID,
		Time:      p.Time.UnixMilli(),
		Active:    p.Active,
		Total:     p.Total,
		Players:   players,
	}
}

// ForValue maps a core value to its message type and payload.
func ForValue(v any) (msgType string, payload any, err error) {
	switch v := v.(type) {
	case *core.Session:
		return TypeStartSession, NewStartSessionPayload(v), nil
	case *core.PresenceEvent:
		if v.Kind == core.PresenceLeave {
			return TypeLeave, NewPresencePayload(v), nil
		}
		return TypeJoin, NewPresencePayload(v), nil
	case *core.PlayerState:
		return TypePosition, NewPositionPayload(v), nil
	case *core.PollResult:
		return TypePoll, NewPollPayload(v), nil
	default:
		return "", nil, fmt.Errorf("no message type for %T", v)
	}
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
