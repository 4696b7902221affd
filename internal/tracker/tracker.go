// Package tracker is the reconciliation engine. It polls the players
// snapshot, diffs it against the live marker set and drives marker creation,
// updates and removal. Every method except Run must be called on the loop
// goroutine.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mapcrafter/playermarkers/internal/cache"
	"github.com/mapcrafter/playermarkers/internal/dispatcher"
	"github.com/mapcrafter/playermarkers/internal/geo"
	"github.com/mapcrafter/playermarkers/internal/layer"
	"github.com/mapcrafter/playermarkers/internal/marker"
	"github.com/mapcrafter/playermarkers/internal/snapshot"
	"github.com/mapcrafter/playermarkers/internal/visibility"
	"github.com/mapcrafter/playermarkers/pkg/core"
)

// DefaultInterval matches the default animation duration so one
// interpolation spans the gap between two polls.
const DefaultInterval = marker.DefaultDuration

// Poster runs callbacks on the loop goroutine.
type Poster interface {
	Post(fn func()) bool
}

// Dependencies holds everything the engine drives.
type Dependencies struct {
	Source     snapshot.Source
	Router     *layer.Router
	Markers    *cache.MarkerCache
	Factory    *marker.Factory
	Visibility *visibility.Controller
	Loop       Poster

	// Events receives session, join, leave and poll events. Optional.
	Events    *dispatcher.Dispatcher
	SessionID string

	Interval time.Duration
	Logger   *slog.Logger
}

// Result lists the usernames touched by one applied snapshot.
type Result struct {
	Added   []string
	Updated []string
	Removed []string
}

// Engine reconciles snapshots against the live marker set.
type Engine struct {
	deps     Dependencies
	log      *slog.Logger
	metrics  *metrics
	inFlight atomic.Bool
}

// New creates an engine.
func New(deps Dependencies) (*Engine, error) {
	if deps.Source == nil || deps.Router == nil || deps.Markers == nil ||
		deps.Factory == nil || deps.Visibility == nil {
		return nil, errors.New("tracker: source, router, markers, factory and visibility are required")
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	m, err := newMetrics()
	if err != nil {
		return nil, err
	}

	return &Engine{deps: deps, log: deps.Logger, metrics: m}, nil
}

// PollOnce fetches a snapshot and applies it on the calling goroutine. A
// failed fetch leaves all state untouched and is returned to the caller.
func (e *Engine) PollOnce(ctx context.Context) (Result, error) {
	snap, err := e.deps.Source.Fetch(ctx)
	if err != nil {
		e.skip(err)
		return Result{}, err
	}
	return e.Apply(snap), nil
}

// Run polls immediately and then every interval until ctx is done. Fetches
// run off the loop; their results are posted back to it. A tick is skipped
// while the previous fetch is still outstanding.
func (e *Engine) Run(ctx context.Context) error {
	if e.deps.Loop == nil {
		return errors.New("tracker: Run needs a loop")
	}

	e.tick(ctx)

	ticker := time.NewTicker(e.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.log.Debug("Previous poll still in flight, skipping tick")
		return
	}

	go func() {
		snap, err := e.deps.Source.Fetch(ctx)
		posted := e.deps.Loop.Post(func() {
			defer e.inFlight.Store(false)
			if err != nil {
				e.skip(err)
				return
			}
			e.Apply(snap)
		})
		if !posted {
			e.inFlight.Store(false)
		}
	}()
}

func (e *Engine) skip(err error) {
	e.metrics.recordSkip()
	if errors.Is(err, snapshot.ErrNoPayload) {
		e.log.Debug("Snapshot carried no players, skipping poll")
		return
	}
	e.log.Debug("Snapshot fetch failed, skipping poll", "error", err)
}

// Apply reconciles snap against the live markers: records are applied in
// snapshot order, then markers absent from snap are destroyed, then the
// counter is recomputed. A username repeated within snap is updated once per
// record, so the last record wins.
func (e *Engine) Apply(snap core.Snapshot) Result {
	var (
		res     Result
		present = snap.Usernames()
		seen    = make(map[string]struct{}, len(present))
		states  = make([]core.PlayerState, 0, len(snap.Players))
		now     = e.deps.Factory.Clock.Now()
	)

	for _, p := range snap.Players {
		m, ok := e.deps.Markers.Get(p.Username)
		if !ok {
			m = e.deps.Factory.New(p.Username)
			e.deps.Markers.Set(m)
			res.Added = append(res.Added, p.Username)
		} else if _, dup := seen[p.Username]; !dup {
			res.Updated = append(res.Updated, p.Username)
		}
		seen[p.Username] = struct{}{}

		target := e.route(p.World)
		m.UpdatePlayer(target, p)

		if !ok {
			e.emit(dispatcher.KindJoin, &core.PresenceEvent{
				SessionID: e.deps.SessionID,
				Time:      now,
				Kind:      core.PresenceJoin,
				Username:  p.Username,
				World:     p.World,
				Layer:     target.Key(),
			})
		}
		states = append(states, e.state(now, target, m, p))
	}

	e.deps.Markers.Each(func(m *marker.Marker) {
		if _, ok := present[m.Username()]; ok {
			return
		}
		var world, key string
		if l := m.Layer(); l != nil {
			world, key = l.World(), l.Key()
		}
		m.Destroy()
		e.deps.Markers.Delete(m.Username())
		res.Removed = append(res.Removed, m.Username())

		e.emit(dispatcher.KindLeave, &core.PresenceEvent{
			SessionID: e.deps.SessionID,
			Time:      now,
			Kind:      core.PresenceLeave,
			Username:  m.Username(),
			World:     world,
			Layer:     key,
		})
	})

	counter := e.deps.Visibility.Recompute()
	e.metrics.recordApply(res, counter.Total)

	e.emit(dispatcher.KindPoll, &core.PollResult{
		SessionID: e.deps.SessionID,
		Time:      now,
		States:    states,
		Active:    counter.Active,
		Total:     counter.Total,
	})

	if len(res.Added) > 0 || len(res.Removed) > 0 {
		e.log.Info("Players changed",
			"joined", res.Added,
			"left", res.Removed,
			"online", counter.Total)
	}
	return res
}

func (e *Engine) route(world string) *layer.Layer {
	if l, ok := e.deps.Router.ForWorld(world); ok {
		return l
	}
	e.log.Debug("No map renders world, using orphan layer", "world", world)
	return e.deps.Router.Orphan()
}

func (e *Engine) state(now time.Time, l *layer.Layer, m *marker.Marker, p core.Player) core.PlayerState {
	skin := p.Skin()
	if skin == "" {
		skin = e.deps.Factory.Settings.DefaultSkin
	}
	return core.PlayerState{
		SessionID:  e.deps.SessionID,
		Time:       now,
		Username:   p.Username,
		World:      p.World,
		Layer:      l.Key(),
		Location:   p.Location,
		Display:    m.Target(),
		Health:     p.Health,
		Level:      p.Level,
		Food:       p.Food,
		Saturation: p.Saturation,
		Skin:       skin,
		Textures:   p.Textures,
	}
}

func (e *Engine) emit(kind string, payload any) {
	if e.deps.Events == nil || !e.deps.Events.HasHandler(kind) {
		return
	}
	if err := e.deps.Events.Dispatch(dispatcher.Event{Kind: kind, Payload: payload}); err != nil {
		e.log.Warn("Failed to hand event to sinks", "kind", kind, "error", err)
	}
}

// StartSession announces the session to the sinks. Call it once before the
// first poll.
func (e *Engine) StartSession(s *core.Session) error {
	if e.deps.Events == nil {
		return nil
	}
	if err := e.deps.Events.Dispatch(dispatcher.Event{Kind: dispatcher.KindSession, Payload: s}); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return nil
}

// OnMapChange is called when the viewer switches maps. The adapter picks up
// the map's rotation before markers are reset to it.
func (e *Engine) OnMapChange(mapName string, rotation int) {
	if r, ok := e.deps.Factory.Adapter.(geo.Rotator); ok {
		r.SetRotation(rotation)
	}

	l, ok := e.deps.Router.ForMap(mapName)
	if !ok {
		e.log.Warn("Unknown map, no player layer shown", "map", mapName)
		l = nil
	}
	e.deps.Visibility.SetActiveLayer(l)
}

// ZoomBegin forwards the start of a zoom transition to markers on the shown
// layer and returns where the viewer should animate each of them.
func (e *Engine) ZoomBegin() map[string]core.Position2D {
	active := e.deps.Visibility.ActiveLayer()
	if active == nil || !e.deps.Visibility.Visible() {
		return nil
	}
	out := make(map[string]core.Position2D)
	e.deps.Markers.Each(func(m *marker.Marker) {
		if m.Layer() == active {
			out[m.Username()] = m.ZoomBegin()
		}
	})
	return out
}

// ZoomEnd resumes interpolations deferred by ZoomBegin.
func (e *Engine) ZoomEnd() {
	e.deps.Markers.Each(func(m *marker.Marker) {
		m.ZoomEnd()
	})
}
