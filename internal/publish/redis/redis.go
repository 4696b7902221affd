// Package redispub keeps a Redis hash of the players currently online,
// field per username, value the player's last position payload.
package redispub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mapcrafter/playermarkers/internal/config"
	"github.com/mapcrafter/playermarkers/internal/dispatcher"
	"github.com/mapcrafter/playermarkers/pkg/core"
	"github.com/mapcrafter/playermarkers/pkg/streaming"
)

// Kinds are the dispatcher events the publisher follows.
var Kinds = []string{
	dispatcher.KindSession,
	dispatcher.KindLeave,
	dispatcher.KindPoll,
}

const opTimeout = 5 * time.Second

// Publisher mirrors the online player set into one Redis hash.
type Publisher struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    *slog.Logger
}

// Connect creates the client and pings the server.
func Connect(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: opTimeout,
		MaxRetries:  1,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("Connected to Redis", "addr", cfg.Addr, "key", cfg.Key)
	return &Publisher{client: client, key: cfg.Key, ttl: cfg.TTL, log: logger}, nil
}

// Fields encodes the states of poll as hash fields.
func Fields(poll *core.PollResult) (map[string]any, error) {
	out := make(map[string]any, len(poll.States))
	for i := range poll.States {
		data, err := json.Marshal(streaming.NewPositionPayload(&poll.States[i]))
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", poll.States[i].Username, err)
		}
		out[poll.States[i].Username] = string(data)
	}
	return out, nil
}

// Handle applies e to the hash.
func (p *Publisher) Handle(e dispatcher.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch v := e.Payload.(type) {
	case *core.Session:
		// previous runs may have left stale fields
		return p.client.Del(ctx, p.key).Err()
	case *core.PresenceEvent:
		return p.client.HDel(ctx, p.key, v.Username).Err()
	case *core.PollResult:
		return p.writePoll(ctx, v)
	default:
		return fmt.Errorf("redis: unexpected payload %T for %s", e.Payload, e.Kind)
	}
}

func (p *Publisher) writePoll(ctx context.Context, poll *core.PollResult) error {
	fields, err := Fields(poll)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, p.key, fields)
	if p.ttl > 0 {
		pipe.Expire(ctx, p.key, p.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write: %w", err)
	}
	return nil
}

// Online returns the stored position of every online player.
func (p *Publisher) Online(ctx context.Context) (map[string]streaming.PositionPayload, error) {
	raw, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]streaming.PositionPayload, len(raw))
	for name, data := range raw {
		var pos streaming.PositionPayload
		if err := json.Unmarshal([]byte(data), &pos); err != nil {
			p.log.Warn("Skipping malformed position", "username", name, "error", err)
			continue
		}
		out[name] = pos
	}
	return out, nil
}

// Register subscribes p to Kinds through one ordered queue.
func Register(d *dispatcher.Dispatcher, p *Publisher, bufferSize int) {
	d.RegisterMany(Kinds, p.Handle, dispatcher.Buffered(bufferSize))
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
