// pkg/core/player.go
package core

// TextureSkin is the texture key carrying the player's skin URL.
const TextureSkin = "SKIN"

// Player is one record of the online players snapshot.
// Fields missing from the payload decode to their zero value.
type Player struct {
	Username   string            `json:"username"`
	Location   Position3D        `json:"location"`
	World      string            `json:"world"`
	Dimension  string            `json:"dimension,omitempty"`
	Health     float64           `json:"health"`
	Saturation float64           `json:"saturation,omitempty"`
	Food       int               `json:"food,omitempty"`
	Bed        *Position3D       `json:"bed,omitempty"`
	Level      float64           `json:"level"`
	Textures   map[string]string `json:"textures"`
}

// Skin returns the skin texture URL, or "" if the record has none.
func (p Player) Skin() string {
	return p.Textures[TextureSkin]
}

// Snapshot is the full set of online players at one poll.
// A nil Players slice means the payload carried no player list at all.
type Snapshot struct {
	Players []Player `json:"players"`
}

// Usernames returns the set of usernames present in the snapshot.
func (s *Snapshot) Usernames() map[string]struct{} {
	names := make(map[string]struct{}, len(s.Players))
	for _, p := range s.Players {
		names[p.Username] = struct{}{}
	}
	return names
}
