package gormstorage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mapcrafter/playermarkers/internal/database"
	"github.com/mapcrafter/playermarkers/internal/model"
	"github.com/mapcrafter/playermarkers/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBackend creates a Backend with no DB (queue-only mode for unit testing).
func newTestBackend() *Backend {
	return New(Dependencies{})
}

func newSQLiteBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.OpenSqlite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	b := New(Dependencies{DB: db, FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestInitClose(t *testing.T) {
	b := newTestBackend()

	require.NoError(t, b.Init())
	require.NotNil(t, b.queues)
	require.NotNil(t, b.stopChan)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

func TestRecord_QueuesWithoutDB(t *testing.T) {
	b := newTestBackend()
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{ID: "s"}))
	require.NoError(t, b.RecordJoin(&core.PresenceEvent{Kind: core.PresenceJoin, Username: "alice"}))
	require.NoError(t, b.RecordLeave(&core.PresenceEvent{Kind: core.PresenceLeave, Username: "alice"}))
	require.NoError(t, b.RecordPosition(&core.PlayerState{Username: "alice"}))

	presence, states := b.Pending()
	assert.Equal(t, 2, presence)
	assert.Equal(t, 1, states)
	assert.Equal(t, uint(0), b.SessionID())
}

func TestFlush_WritesRows(t *testing.T) {
	b := newSQLiteBackend(t)
	db := b.DB()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, b.StartSession(&core.Session{
		ID:        "5d0b0b44-8e51-4c1f-9d89-7b5f3b1f4b1a",
		StartTime: now,
		Maps:      []core.MapInfo{{Name: "day", World: "world"}},
	}))
	require.NotZero(t, b.SessionID())

	require.NoError(t, b.RecordJoin(&core.PresenceEvent{Time: now, Kind: core.PresenceJoin, Username: "alice", World: "world", Layer: "world"}))
	require.NoError(t, b.RecordPosition(&core.PlayerState{
		Time:     now,
		Username: "alice",
		World:    "world",
		Layer:    "world",
		Location: core.Position3D{X: 10, Y: 64, Z: -3},
		Health:   20,
		Textures: map[string]string{"SKIN": "http://skins/alice.png"},
	}))
	require.NoError(t, b.RecordLeave(&core.PresenceEvent{Time: now.Add(time.Minute), Kind: core.PresenceLeave, Username: "alice"}))

	b.Flush()

	presence, states := b.Pending()
	assert.Zero(t, presence)
	assert.Zero(t, states)

	var events []model.PresenceEvent
	require.NoError(t, db.Order("id").Find(&events).Error)
	require.Len(t, events, 2)
	assert.Equal(t, "join", events[0].Kind)
	assert.Equal(t, "leave", events[1].Kind)
	assert.Equal(t, b.SessionID(), events[0].SessionID)
	assert.True(t, events[0].Time.Equal(now), events[0].Time)
	assert.True(t, events[1].Time.Equal(now.Add(time.Minute)), events[1].Time)

	var session model.Session
	require.NoError(t, db.First(&session, b.SessionID()).Error)
	assert.True(t, session.StartTime.Equal(now), session.StartTime)

	var count int64
	require.NoError(t, db.Model(&model.PlayerState{}).Where("username = ?", "alice").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var maps []model.SessionMap
	require.NoError(t, db.Find(&maps).Error)
	require.Len(t, maps, 1)
	assert.Equal(t, "day", maps[0].Name)
}

func TestClose_FlushesRemaining(t *testing.T) {
	dir := t.TempDir()
	db, err := database.OpenSqlite(filepath.Join(dir, "close.db"))
	require.NoError(t, err)

	b := New(Dependencies{DB: db, FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	require.NoError(t, b.StartSession(&core.Session{ID: "close"}))
	require.NoError(t, b.RecordJoin(&core.PresenceEvent{Kind: core.PresenceJoin, Username: "bob"}))
	require.NoError(t, b.Close())

	var count int64
	require.NoError(t, db.Model(&model.PresenceEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
