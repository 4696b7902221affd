// Package convert provides functions to convert core models to GORM models
package convert

import (
	"encoding/json"

	"github.com/mapcrafter/playermarkers/internal/geo"
	"github.com/mapcrafter/playermarkers/internal/model"
	"github.com/mapcrafter/playermarkers/pkg/core"
	"gorm.io/datatypes"
)

// texturesToJSON converts a texture map to datatypes.JSON for DB storage.
func texturesToJSON(textures map[string]string) datatypes.JSON {
	if len(textures) == 0 {
		return datatypes.JSON("{}")
	}
	data, err := json.Marshal(textures)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

// CoreToSession converts a core.Session to a GORM model.Session.
// core.Session.ID maps to GORM Session.UUID; the numeric ID is assigned by the DB.
func CoreToSession(s core.Session) model.Session {
	maps := make([]model.SessionMap, 0, len(s.Maps))
	for _, m := range s.Maps {
		maps = append(maps, model.SessionMap{Name: m.Name, World: m.World})
	}
	return model.Session{
		UUID:      s.ID,
		StartTime: s.StartTime,
		Source:    s.Source,
		Maps:      maps,
	}
}

// CoreToPresenceEvent converts a core.PresenceEvent to a GORM model.PresenceEvent.
func CoreToPresenceEvent(e core.PresenceEvent) model.PresenceEvent {
	return model.PresenceEvent{
		Time:     e.Time,
		Kind:     string(e.Kind),
		Username: e.Username,
		World:    e.World,
		Layer:    e.Layer,
	}
}

// CoreToPlayerState converts a core.PlayerState to a GORM model.PlayerState.
func CoreToPlayerState(s core.PlayerState) model.PlayerState {
	return model.PlayerState{
		Time:       s.Time,
		Username:   s.Username,
		World:      s.World,
		Layer:      s.Layer,
		Position:   geo.ToPoint(s.Location),
		DisplayX:   s.Display.X,
		DisplayY:   s.Display.Y,
		Health:     float32(s.Health),
		Level:      float32(s.Level),
		Food:       s.Food,
		Saturation: float32(s.Saturation),
		Textures:   texturesToJSON(s.Textures),
	}
}
