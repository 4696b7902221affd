package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mapcrafter/playermarkers/internal/config"
	"github.com/mapcrafter/playermarkers/internal/dispatcher"
	"github.com/mapcrafter/playermarkers/internal/geo"
	"github.com/mapcrafter/playermarkers/internal/layer"
	"github.com/mapcrafter/playermarkers/internal/logging"
	"github.com/mapcrafter/playermarkers/internal/monitor"
	"github.com/mapcrafter/playermarkers/internal/visibility"
	"github.com/mapcrafter/playermarkers/pkg/core"
)

// newAdapter builds the coordinate adapter named by cfg.Type.
func newAdapter(cfg config.ProjectionConfig) (geo.Adapter, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "identity":
		return geo.Identity{}, nil
	case "mapcrafter":
		p := geo.NewProjection(cfg.Scale, cfg.OriginX, cfg.OriginZ)
		p.SetRotation(cfg.Rotation)
		return p, nil
	case "webmercator":
		return geo.NewWebMercator(cfg.Longitude, cfg.Latitude, cfg.Scale), nil
	default:
		return nil, fmt.Errorf("unknown projection type: %s", cfg.Type)
	}
}

func layerMaps(maps []config.MapConfig) []layer.MapConfig {
	out := make([]layer.MapConfig, len(maps))
	for i, m := range maps {
		out[i] = layer.MapConfig{Name: m.Name, World: m.World}
	}
	return out
}

func sessionMaps(maps []config.MapConfig) []core.MapInfo {
	out := make([]core.MapInfo, len(maps))
	for i, m := range maps {
		out[i] = core.MapInfo{Name: m.Name, World: m.World}
	}
	return out
}

// initialMap is the configured map, or the first one when none is set.
func initialMap(configured string, maps []config.MapConfig) string {
	if configured != "" || len(maps) == 0 {
		return configured
	}
	return maps[0].Name
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}

// onlineCounter mirrors the latest counter for log records written off the loop.
type onlineCounter struct {
	active atomic.Int64
	total  atomic.Int64
}

func (o *onlineCounter) set(c visibility.Counter) {
	o.active.Store(int64(c.Active))
	o.total.Store(int64(c.Total))
}

func (o *onlineCounter) attrs(sessionID string) logging.ContextProvider {
	return func(context.Context) []slog.Attr {
		return []slog.Attr{
			slog.String("session", sessionID),
			slog.Int64("online", o.total.Load()),
			slog.Int64("shown", o.active.Load()),
		}
	}
}

func (o *onlineCounter) status(sessionID, title string, start time.Time, events *dispatcher.Dispatcher) func() monitor.Status {
	return func() monitor.Status {
		c := visibility.Counter{Active: int(o.active.Load()), Total: int(o.total.Load())}
		return monitor.Status{
			Time:      time.Now(),
			SessionID: sessionID,
			Title:     c.Title(title),
			Active:    c.Active,
			Total:     c.Total,
			Uptime:    time.Since(start).Round(time.Second).String(),
			Queues:    events.QueueLengths(),
		}
	}
}
