package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mapcrafter/playermarkers/internal/api"
	"github.com/mapcrafter/playermarkers/internal/config"
	"github.com/mapcrafter/playermarkers/internal/dispatcher"
	"github.com/mapcrafter/playermarkers/internal/influx"
	"github.com/mapcrafter/playermarkers/internal/logging"
	natspub "github.com/mapcrafter/playermarkers/internal/publish/nats"
	redispub "github.com/mapcrafter/playermarkers/internal/publish/redis"
	"github.com/mapcrafter/playermarkers/internal/storage"
)

const sinkBufferSize = 10000

type sinkDeps struct {
	SessionID    string
	SessionStart time.Time
	Manager      *logging.SlogManager
	Logger       *slog.Logger
}

// sinks owns the dispatcher and everything registered on it.
type sinks struct {
	events  *dispatcher.Dispatcher
	backend storage.Backend
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

func (s *sinks) add(name string, close func() error) {
	s.closers = append(s.closers, namedCloser{name, close})
}

// newSinks creates the dispatcher and registers every enabled sink. A sink
// that fails to connect is logged and left out.
func newSinks(ctx context.Context, deps sinkDeps) (*sinks, error) {
	logger := deps.Logger
	d, err := dispatcher.New(logger)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	s := &sinks{events: d}

	storageCfg := config.GetStorageConfig()
	if storageCfg.Type == "websocket" && storageCfg.WebSocket.URL == "" {
		upload := config.GetUploadConfig()
		storageCfg.WebSocket.URL = httpToWS(upload.ServerURL) + "/api"
		if storageCfg.WebSocket.Secret == "" {
			storageCfg.WebSocket.Secret = upload.APIKey
		}
	}
	backend, err := storage.NewBackend(storageCfg, config.GetDBConfig(), logger)
	if err != nil {
		return nil, err
	}
	if backend != nil {
		if err := backend.Init(); err != nil {
			logger.Error("Failed to initialize storage backend, recording disabled", "type", storageCfg.Type, "error", err)
		} else {
			s.backend = backend
			s.add("storage", backend.Close)
			storage.Register(d, backend, sinkBufferSize)
			logger.Info("Storage backend initialized", "type", storageCfg.Type)
		}
	}

	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		backupPath := filepath.Join(config.GetString("logsDir"),
			fmt.Sprintf("influx_backup_%s.log.gz", deps.SessionStart.Format("20060102_150405")))
		m := influx.NewManager(influxCfg, deps.Manager.Zerolog("influx"), backupPath)
		if err := m.Connect(ctx); err != nil {
			logger.Error("Failed to connect to InfluxDB", "error", err)
		} else {
			s.add("influx", m.Close)
			influx.Register(d, m, sinkBufferSize)
		}
	}

	if natsCfg := config.GetNATSConfig(); natsCfg.Enabled {
		p, err := natspub.Connect(natsCfg, logger)
		if err != nil {
			logger.Error("Failed to connect to NATS", "url", natsCfg.URL, "error", err)
		} else {
			s.add("nats", p.Close)
			natspub.Register(d, p, sinkBufferSize)
		}
	}

	if redisCfg := config.GetRedisConfig(); redisCfg.Enabled {
		p, err := redispub.Connect(ctx, redisCfg, logger)
		if err != nil {
			logger.Error("Failed to connect to Redis", "addr", redisCfg.Addr, "error", err)
		} else {
			s.add("redis", p.Close)
			redispub.Register(d, p, sinkBufferSize)
		}
	}

	return s, nil
}

// close drains the dispatcher queues, then closes each sink.
func (s *sinks) close(logger *slog.Logger) {
	s.events.Close()
	for _, c := range s.closers {
		if err := c.close(); err != nil {
			logger.Error("Failed to close sink", "sink", c.name, "error", err)
		}
	}
}

// upload sends the exported session archive, if any, to the web server.
func (s *sinks) upload(ctx context.Context, logger *slog.Logger) {
	exp, ok := s.backend.(storage.Exportable)
	if !ok {
		return
	}
	path := exp.ExportedFilePath()
	if path == "" {
		return
	}
	cfg := config.GetUploadConfig()
	if !cfg.Enabled {
		logger.Info("Session exported", "path", path)
		return
	}
	if err := uploadFile(ctx, api.New(cfg.ServerURL, cfg.APIKey), path, exp); err != nil {
		logger.Error("Upload failed, archive kept on disk", "path", path, "error", err)
		return
	}
	logger.Info("Session uploaded", "path", path)
}

func uploadFile(ctx context.Context, client *api.Client, path string, exp storage.Exportable) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	if err := client.Healthcheck(ctx); err != nil {
		return errors.Join(errors.New("server unhealthy"), err)
	}
	return client.Upload(ctx, path, exp.ExportMetadata())
}
