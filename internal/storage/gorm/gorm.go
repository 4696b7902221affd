// Package gormstorage implements the storage.Backend interface on top of GORM
// with internal write queues and a background DB writer goroutine. The
// postgres and sqlite recorders embed it.
package gormstorage

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mapcrafter/playermarkers/internal/database"
	"github.com/mapcrafter/playermarkers/internal/model"
	"github.com/mapcrafter/playermarkers/internal/model/convert"
	"github.com/mapcrafter/playermarkers/internal/queue"
	"github.com/mapcrafter/playermarkers/pkg/core"

	"gorm.io/gorm"
)

const (
	defaultFlushInterval = 2 * time.Second
	// queueLimit bounds memory while the database is unreachable.
	queueLimit = 100_000
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Presence *queue.Queue[model.PresenceEvent]
	States   *queue.Queue[model.PlayerState]
}

func newQueues() *queues {
	return &queues{
		Presence: queue.New[model.PresenceEvent](queueLimit),
		States:   queue.New[model.PlayerState](queueLimit),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	queues    *queues
	sessionID atomic.Uint64
	stopChan  chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// SetDB injects the connection. Embedding recorders call it before Init.
func (b *Backend) SetDB(db *gorm.DB) {
	b.deps.DB = db
}

// DB returns the connection, or nil before one was set.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
// Without a DB the backend only queues, which is what the unit tests use.
func (b *Backend) Init() error {
	b.stopChan = make(chan struct{})

	if b.deps.DB != nil {
		if err := database.Migrate(b.deps.DB); err != nil {
			return fmt.Errorf("failed to setup DB: %w", err)
		}
		b.deps.Logger.Info("Database setup complete", "dialect", b.deps.DB.Name())
	}

	b.wg.Add(1)
	go b.writerLoop()
	return nil
}

// Close stops the writer goroutine and flushes what is left.
func (b *Backend) Close() error {
	b.stopOnce.Do(func() {
		if b.stopChan != nil {
			close(b.stopChan)
		}
	})
	b.wg.Wait()
	b.Flush()
	return nil
}

// StartSession inserts the session synchronously so rows queued afterwards
// can reference its ID.
func (b *Backend) StartSession(s *core.Session) error {
	if b.deps.DB == nil {
		return nil
	}

	gormSession := convert.CoreToSession(*s)
	if err := b.deps.DB.Create(&gormSession).Error; err != nil {
		return fmt.Errorf("failed to insert new session: %w", err)
	}

	b.sessionID.Store(uint64(gormSession.ID))
	b.deps.Logger.Info("Session started", "session", s.ID, "id", gormSession.ID)
	return nil
}

// SessionID returns the DB id of the current session (0 if none).
func (b *Backend) SessionID() uint {
	return uint(b.sessionID.Load())
}

// RecordJoin converts and queues a join event.
func (b *Backend) RecordJoin(e *core.PresenceEvent) error {
	b.queues.Presence.Push(convert.CoreToPresenceEvent(*e))
	return nil
}

// RecordLeave converts and queues a leave event.
func (b *Backend) RecordLeave(e *core.PresenceEvent) error {
	b.queues.Presence.Push(convert.CoreToPresenceEvent(*e))
	return nil
}

// RecordPosition converts and queues a player state.
func (b *Backend) RecordPosition(s *core.PlayerState) error {
	b.queues.States.Push(convert.CoreToPlayerState(*s))
	return nil
}

// Pending returns the number of queued presence events and states.
func (b *Backend) Pending() (presence, states int) {
	return b.queues.Presence.Len(), b.queues.States.Len()
}

// Flush writes all queued rows now.
func (b *Backend) Flush() {
	if b.deps.DB == nil {
		return
	}

	sessionID := b.SessionID()
	log := b.deps.Logger

	writeQueue(b.deps.DB, b.queues.Presence, "presence events", log, func(items []model.PresenceEvent) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	})
	writeQueue(b.deps.DB, b.queues.States, "player states", log, func(items []model.PlayerState) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	})
}

// writerLoop periodically drains queues into the DB.
func (b *Backend) writerLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items go back to the head of the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger, prepare func([]T)) {
	if q.Empty() {
		return
	}

	items := q.Drain()
	if prepare != nil {
		prepare(items)
	}

	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error("Error writing rows", "table", name, "count", len(items), "error", err)
		tx.Rollback()
		q.Requeue(items)
		return
	}
	if err := tx.Commit().Error; err != nil {
		log.Error("Error committing rows", "table", name, "count", len(items), "error", err)
		q.Requeue(items)
		return
	}
	log.Debug("Wrote rows", "table", name, "count", len(items))
}
