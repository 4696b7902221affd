package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&SessionMap{},
	&PresenceEvent{},
	&PlayerState{},
}

////////////////////////
// SESSION MODELS
////////////////////////

// Session is one run of the tracker against one snapshot source
type Session struct {
	gorm.Model
	UUID      string       `json:"uuid" gorm:"size:36;uniqueIndex"`
	StartTime time.Time    `json:"startTime"`
	Source    string       `json:"source" gorm:"size:255"`
	Maps      []SessionMap `json:"maps" gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*Session) TableName() string {
	return "sessions"
}

// SessionMap is a configured map at the time the session started
type SessionMap struct {
	ID        uint   `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint   `json:"sessionId" gorm:"index:idx_sessionmap_session_id"`
	Name      string `json:"name" gorm:"size:127"`
	World     string `json:"world" gorm:"size:127"`
}

func (*SessionMap) TableName() string {
	return "session_maps"
}

////////////////////////
// RECORDING MODELS
////////////////////////

// PresenceEvent records a player appearing in or disappearing from the snapshot
type PresenceEvent struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time" gorm:"index:idx_presence_time"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_presence_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Kind      string    `json:"kind" gorm:"size:16"`
	Username  string    `json:"username" gorm:"size:64;index:idx_presence_username"`
	World     string    `json:"world" gorm:"size:127"`
	Layer     string    `json:"layer" gorm:"size:127"`
}

func (*PresenceEvent) TableName() string {
	return "presence_events"
}

// PlayerState is the state of one player as applied at one poll
type PlayerState struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time" gorm:"index:idx_playerstate_time"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_playerstate_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Username  string    `json:"username" gorm:"size:64;index:idx_playerstate_username"`
	World     string    `json:"world" gorm:"size:127"`
	Layer     string    `json:"layer" gorm:"size:127"`

	Position   geom.Point     `json:"position" gorm:"type:geometry"` // world x/z as XY, y (height) as Z
	DisplayX   float64        `json:"displayX"`
	DisplayY   float64        `json:"displayY"`
	Health     float32        `json:"health"`
	Level      float32        `json:"level"`
	Food       int            `json:"food"`
	Saturation float32        `json:"saturation"`
	Textures   datatypes.JSON `json:"textures" gorm:"default:'{}'"`
}

func (*PlayerState) TableName() string {
	return "player_states"
}
