// Package layer partitions markers into display layers, one per world realm.
package layer

import "slices"

// Realm is the sub-realm of a world a layer displays.
type Realm int

const (
	Surface Realm = iota
	Nether
	End
)

func (r Realm) String() string {
	switch r {
	case Nether:
		return "nether"
	case End:
		return "end"
	default:
		return "surface"
	}
}

// Key suffixes appended to a world name for its sub-realms. They match the
// folder names servers give those worlds, which is what snapshot records carry.
const (
	NetherSuffix = "_nether"
	EndSuffix    = "_the_end"
)

// Layer is a group of markers shown or hidden together.
// Membership is keyed by username.
type Layer struct {
	key     string
	world   string
	realm   Realm
	members map[string]struct{}
}

func newLayer(key, world string, realm Realm) *Layer {
	return &Layer{
		key:     key,
		world:   world,
		realm:   realm,
		members: make(map[string]struct{}),
	}
}

// Key returns the layer key: the world name plus the realm suffix.
func (l *Layer) Key() string { return l.key }

// World returns the base world name.
func (l *Layer) World() string { return l.world }

// Realm returns the realm the layer displays.
func (l *Layer) Realm() Realm { return l.realm }

// Add puts username into the layer.
func (l *Layer) Add(username string) {
	l.members[username] = struct{}{}
}

// Remove takes username out of the layer.
func (l *Layer) Remove(username string) {
	delete(l.members, username)
}

// Has reports whether username is in the layer.
func (l *Layer) Has(username string) bool {
	_, ok := l.members[username]
	return ok
}

// Len returns the number of members.
func (l *Layer) Len() int {
	return len(l.members)
}

// Members returns the usernames in the layer, sorted.
func (l *Layer) Members() []string {
	names := make([]string, 0, len(l.members))
	for name := range l.members {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func realmKey(world string, realm Realm) string {
	switch realm {
	case Nether:
		return world + NetherSuffix
	case End:
		return world + EndSuffix
	default:
		return world
	}
}
