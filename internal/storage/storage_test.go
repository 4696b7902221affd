// internal/storage/storage_test.go
package storage_test

import (
	"testing"
	"time"

	"github.com/mapcrafter/playermarkers/internal/config"
	"github.com/mapcrafter/playermarkers/internal/dispatcher"
	"github.com/mapcrafter/playermarkers/internal/storage"
	"github.com/mapcrafter/playermarkers/internal/storage/memory"
	"github.com/mapcrafter/playermarkers/internal/storage/postgres"
	sqlitestorage "github.com/mapcrafter/playermarkers/internal/storage/sqlite"
	"github.com/mapcrafter/playermarkers/internal/storage/websocket"
	"github.com/mapcrafter/playermarkers/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks
var (
	_ storage.Backend    = (*memory.Backend)(nil)
	_ storage.Exportable = (*memory.Backend)(nil)
	_ storage.Backend    = (*sqlitestorage.Backend)(nil)
	_ storage.Backend    = (*postgres.Backend)(nil)
	_ storage.Backend    = (*websocket.Backend)(nil)
)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		typ  string
		want any
	}{
		{"memory", &memory.Backend{}},
		{"sqlite", &sqlitestorage.Backend{}},
		{"postgres", &postgres.Backend{}},
		{"websocket", &websocket.Backend{}},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			b, err := storage.NewBackend(config.StorageConfig{Type: tt.typ}, config.DBConfig{}, nil)
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
		})
	}
}

func TestNewBackend_None(t *testing.T) {
	for _, typ := range []string{"", "none"} {
		b, err := storage.NewBackend(config.StorageConfig{Type: typ}, config.DBConfig{}, nil)
		require.NoError(t, err)
		assert.Nil(t, b)
	}
}

func TestNewBackend_Unknown(t *testing.T) {
	_, err := storage.NewBackend(config.StorageConfig{Type: "mongodb"}, config.DBConfig{}, nil)
	assert.ErrorContains(t, err, "unknown storage type")
}

// recordingBackend records calls in order.
type recordingBackend struct {
	calls []string
}

func (r *recordingBackend) Init() error  { return nil }
func (r *recordingBackend) Close() error { return nil }
func (r *recordingBackend) StartSession(s *core.Session) error {
	r.calls = append(r.calls, "session:"+s.ID)
	return nil
}
func (r *recordingBackend) RecordJoin(e *core.PresenceEvent) error {
	r.calls = append(r.calls, "join:"+e.Username)
	return nil
}
func (r *recordingBackend) RecordLeave(e *core.PresenceEvent) error {
	r.calls = append(r.calls, "leave:"+e.Username)
	return nil
}
func (r *recordingBackend) RecordPosition(s *core.PlayerState) error {
	r.calls = append(r.calls, "position:"+s.Username)
	return nil
}

func TestRegister_RoutesInOrder(t *testing.T) {
	d, err := dispatcher.New(noopLogger{})
	require.NoError(t, err)

	rec := &recordingBackend{}
	storage.Register(d, rec, 16)

	now := time.Now()
	events := []dispatcher.Event{
		{Kind: dispatcher.KindSession, Payload: &core.Session{ID: "s1"}},
		{Kind: dispatcher.KindJoin, Payload: &core.PresenceEvent{Kind: core.PresenceJoin, Username: "alice"}},
		{Kind: dispatcher.KindPoll, Payload: &core.PollResult{Time: now, States: []core.PlayerState{{Username: "alice"}, {Username: "bob"}}}},
		{Kind: dispatcher.KindLeave, Payload: &core.PresenceEvent{Kind: core.PresenceLeave, Username: "bob"}},
	}
	for _, e := range events {
		require.NoError(t, d.Dispatch(e))
	}
	d.Close()

	assert.Equal(t, []string{"session:s1", "join:alice", "position:alice", "position:bob", "leave:bob"}, rec.calls)
}

func TestHandler_UnexpectedPayload(t *testing.T) {
	h := storage.Handler(&recordingBackend{})
	err := h(dispatcher.Event{Kind: dispatcher.KindPoll, Payload: "nope"})
	assert.ErrorContains(t, err, "unexpected poll payload string")
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
