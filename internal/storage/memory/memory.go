// internal/storage/memory/memory.go
package memory

import (
	"sync"
	"time"

	"github.com/mapcrafter/playermarkers/internal/config"
	"github.com/mapcrafter/playermarkers/pkg/core"
)

// PlayerRecord groups a player with all its presence and time-series data
type PlayerRecord struct {
	Username string
	Joins    []core.PresenceEvent
	Leaves   []core.PresenceEvent
	States   []core.PlayerState
}

// Backend keeps session data in memory and exports it to JSON on Close
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	players map[string]*PlayerRecord
	order   []string // usernames in first-seen order
	lastAt  time.Time

	lastExportPath string
	lastExportMeta core.UploadMetadata
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:     cfg,
		players: make(map[string]*PlayerRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports the current session, if one was started
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil
	}
	return b.exportJSON()
}

// StartSession begins recording a new session. Data of a previous session is discarded.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	session := *s
	b.session = &session
	b.players = make(map[string]*PlayerRecord)
	b.order = nil
	b.lastAt = s.StartTime
	return nil
}

// RecordJoin records a player appearing
func (b *Backend) RecordJoin(e *core.PresenceEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.record(e.Username)
	rec.Joins = append(rec.Joins, *e)
	b.touch(e.Time)
	return nil
}

// RecordLeave records a player disappearing
func (b *Backend) RecordLeave(e *core.PresenceEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.record(e.Username)
	rec.Leaves = append(rec.Leaves, *e)
	b.touch(e.Time)
	return nil
}

// RecordPosition records one applied player state
func (b *Backend) RecordPosition(s *core.PlayerState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.record(s.Username)
	rec.States = append(rec.States, *s)
	b.touch(s.Time)
	return nil
}

// Player returns a copy of the record for username.
func (b *Backend) Player(username string) (PlayerRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.players[username]
	if !ok {
		return PlayerRecord{}, false
	}
	return *rec, true
}

// ExportedFilePath returns the path of the last export, or "".
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// ExportMetadata describes the last export.
func (b *Backend) ExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportMeta
}

// record must be called with mu held.
func (b *Backend) record(username string) *PlayerRecord {
	rec, ok := b.players[username]
	if !ok {
		rec = &PlayerRecord{Username: username}
		b.players[username] = rec
		b.order = append(b.order, username)
	}
	return rec
}

func (b *Backend) touch(t time.Time) {
	if t.After(b.lastAt) {
		b.lastAt = t
	}
}
