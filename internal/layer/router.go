package layer

import "strings"

// Default map name prefixes that select a sub-realm.
const (
	DefaultNetherPrefix = "nether_"
	DefaultEndPrefix    = "end_"
)

// MapConfig is one configured map and the world it renders.
type MapConfig struct {
	Name  string
	World string
}

// Option configures a Router.
type Option func(*Router)

// WithPrefixes overrides the map name prefixes. Matching is case-insensitive.
func WithPrefixes(netherPrefix, endPrefix string) Option {
	return func(r *Router) {
		r.netherPrefix = strings.ToLower(netherPrefix)
		r.endPrefix = strings.ToLower(endPrefix)
	}
}

// Router resolves map names and snapshot world names to layers.
// It is built once and never mutated afterwards.
type Router struct {
	netherPrefix string
	endPrefix    string

	byKey  map[string]*Layer
	byMap  map[string]*Layer
	layers []*Layer
	orphan *Layer
}

// NewRouter builds the routing table from the ordered map configuration.
func NewRouter(maps []MapConfig, opts ...Option) *Router {
	r := &Router{
		netherPrefix: DefaultNetherPrefix,
		endPrefix:    DefaultEndPrefix,
		byKey:        make(map[string]*Layer),
		byMap:        make(map[string]*Layer),
		orphan:       newLayer("", "", Surface),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, m := range maps {
		if _, ok := r.byKey[m.World]; !ok {
			for _, realm := range []Realm{Surface, Nether, End} {
				l := newLayer(realmKey(m.World, realm), m.World, realm)
				r.byKey[l.key] = l
				r.layers = append(r.layers, l)
			}
		}
		r.byMap[m.Name] = r.byKey[realmKey(m.World, r.classify(m.Name))]
	}

	return r
}

// classify picks the realm for a map name by its prefix.
func (r *Router) classify(mapName string) Realm {
	name := strings.ToLower(mapName)
	switch {
	case strings.HasPrefix(name, r.endPrefix):
		return End
	case strings.HasPrefix(name, r.netherPrefix):
		return Nether
	default:
		return Surface
	}
}

// ForMap returns the layer a configured map displays.
func (r *Router) ForMap(mapName string) (*Layer, bool) {
	l, ok := r.byMap[mapName]
	return l, ok
}

// ForWorld returns the layer for a snapshot world name such as "world",
// "world_nether" or "world_the_end".
func (r *Router) ForWorld(world string) (*Layer, bool) {
	l, ok := r.byKey[world]
	return l, ok
}

// Orphan is the layer for players in worlds no configured map renders.
// It is never shown.
func (r *Router) Orphan() *Layer {
	return r.orphan
}

// Layers returns every routed layer in creation order.
func (r *Router) Layers() []*Layer {
	out := make([]*Layer, len(r.layers))
	copy(out, r.layers)
	return out
}
