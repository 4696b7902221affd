package natspub

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapcrafter/playermarkers/internal/config"
	"github.com/mapcrafter/playermarkers/internal/dispatcher"
	"github.com/mapcrafter/playermarkers/pkg/core"
	"github.com/mapcrafter/playermarkers/pkg/streaming"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs    []published
	err     error
	drained bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, published{subject, data})
	return nil
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "playermarkers.player_join", Subject("playermarkers", streaming.TypeJoin))
	assert.Equal(t, "poll", Subject("", streaming.TypePoll))
}

func TestHandle_PublishesEnvelopes(t *testing.T) {
	conn := &fakeConn{}
	p := New(conn, "mc", nil)

	require.NoError(t, p.Handle(dispatcher.Event{Kind: dispatcher.KindLeave, Payload: &core.PresenceEvent{
		Kind: core.PresenceLeave, Username: "alice", Time: time.UnixMilli(5),
	}}))
	require.NoError(t, p.Handle(dispatcher.Event{Kind: dispatcher.KindPoll, Payload: &core.PollResult{Total: 1}}))

	require.Len(t, conn.msgs, 2)
	assert.Equal(t, "mc.player_leave", conn.msgs[0].subject)
	assert.Equal(t, "mc.poll", conn.msgs[1].subject)

	var env streaming.Envelope
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &env))
	assert.Equal(t, streaming.TypeLeave, env.Type)
	assert.Contains(t, string(env.Payload), `"username":"alice"`)

	require.NoError(t, p.Close())
	assert.True(t, conn.drained)
}

func TestHandle_Errors(t *testing.T) {
	p := New(&fakeConn{err: errors.New("no responders")}, "mc", nil)
	assert.ErrorContains(t, p.Handle(dispatcher.Event{Payload: &core.Session{}}), "no responders")
	assert.Error(t, p.Handle(dispatcher.Event{Payload: 42}))
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.NATSConfig{URL: "nats://127.0.0.1:1"}, nil)
	assert.Error(t, err)
}
