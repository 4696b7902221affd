package viewer

import (
	"sync"

	"github.com/mapcrafter/playermarkers/internal/layer"
	"github.com/mapcrafter/playermarkers/pkg/core"
)

// Memory is a viewer that only keeps state. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	shown   map[*layer.Layer]bool
	markers map[string]*MemoryMarker
}

// NewMemory creates an empty in-memory viewer.
func NewMemory() *Memory {
	return &Memory{
		shown:   make(map[*layer.Layer]bool),
		markers: make(map[string]*MemoryMarker),
	}
}

// ShowLayer marks l as displayed.
func (m *Memory) ShowLayer(l *layer.Layer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shown[l] = true
}

// HideLayer marks l as hidden.
func (m *Memory) HideLayer(l *layer.Layer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shown, l)
}

// Shown reports whether l is displayed.
func (m *Memory) Shown(l *layer.Layer) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shown[l]
}

// NewMarker creates a marker handle. A username's previous handle is replaced.
func (m *Memory) NewMarker(username, skinClass string) Marker {
	m.mu.Lock()
	defer m.mu.Unlock()

	mk := &MemoryMarker{viewer: m, username: username, skinClass: skinClass}
	m.markers[username] = mk
	return mk
}

// Marker returns the latest handle created for username.
func (m *Memory) Marker(username string) (*MemoryMarker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mk, ok := m.markers[username]
	return mk, ok
}

// Visible returns the unreleased markers attached to a displayed layer.
func (m *Memory) Visible() []*MemoryMarker {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*MemoryMarker
	for _, mk := range m.markers {
		if !mk.released && mk.layer != nil && m.shown[mk.layer] {
			out = append(out, mk)
		}
	}
	return out
}

// MemoryMarker records what the tracker told the viewer about one marker.
type MemoryMarker struct {
	viewer    *Memory
	username  string
	skinClass string

	layer    *layer.Layer
	position core.Position2D
	moves    int
	status   Status
	released bool
}

func (mk *MemoryMarker) Attach(l *layer.Layer) {
	mk.viewer.mu.Lock()
	defer mk.viewer.mu.Unlock()
	mk.layer = l
}

func (mk *MemoryMarker) Detach() {
	mk.viewer.mu.Lock()
	defer mk.viewer.mu.Unlock()
	mk.layer = nil
}

func (mk *MemoryMarker) SetPosition(p core.Position2D) {
	mk.viewer.mu.Lock()
	defer mk.viewer.mu.Unlock()
	mk.position = p
	mk.moves++
}

func (mk *MemoryMarker) SetStatus(s Status) {
	mk.viewer.mu.Lock()
	defer mk.viewer.mu.Unlock()
	mk.status = s
}

func (mk *MemoryMarker) Release() {
	mk.viewer.mu.Lock()
	defer mk.viewer.mu.Unlock()
	mk.released = true
	mk.layer = nil
}

// Username returns the marker's player.
func (mk *MemoryMarker) Username() string { return mk.username }

// SkinClass returns the style class the marker was created with.
func (mk *MemoryMarker) SkinClass() string { return mk.skinClass }

// Layer returns the layer the marker is attached to, or nil.
func (mk *MemoryMarker) Layer() *layer.Layer {
	mk.viewer.mu.RLock()
	defer mk.viewer.mu.RUnlock()
	return mk.layer
}

// Position returns the last position set.
func (mk *MemoryMarker) Position() core.Position2D {
	mk.viewer.mu.RLock()
	defer mk.viewer.mu.RUnlock()
	return mk.position
}

// Moves returns how many times the position was set.
func (mk *MemoryMarker) Moves() int {
	mk.viewer.mu.RLock()
	defer mk.viewer.mu.RUnlock()
	return mk.moves
}

// Status returns the last popup status set.
func (mk *MemoryMarker) Status() Status {
	mk.viewer.mu.RLock()
	defer mk.viewer.mu.RUnlock()
	return mk.status
}

// Released reports whether the handle was released.
func (mk *MemoryMarker) Released() bool {
	mk.viewer.mu.RLock()
	defer mk.viewer.mu.RUnlock()
	return mk.released
}
