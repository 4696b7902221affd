// Command playermarkers polls the Minecraft players snapshot, keeps the
// player marker set of a Mapcrafter map in sync with it, and records or
// publishes the session to the configured sinks.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mapcrafter/playermarkers/internal/cache"
	"github.com/mapcrafter/playermarkers/internal/config"
	"github.com/mapcrafter/playermarkers/internal/layer"
	"github.com/mapcrafter/playermarkers/internal/logging"
	"github.com/mapcrafter/playermarkers/internal/loop"
	"github.com/mapcrafter/playermarkers/internal/marker"
	"github.com/mapcrafter/playermarkers/internal/monitor"
	intOtel "github.com/mapcrafter/playermarkers/internal/otel"
	"github.com/mapcrafter/playermarkers/internal/snapshot"
	"github.com/mapcrafter/playermarkers/internal/style"
	"github.com/mapcrafter/playermarkers/internal/tracker"
	"github.com/mapcrafter/playermarkers/internal/viewer"
	"github.com/mapcrafter/playermarkers/internal/visibility"
	"github.com/mapcrafter/playermarkers/pkg/core"
)

// BuildVersion and BuildDate can be set at build time via ldflags.
var (
	BuildVersion = "0.0.1"
	BuildDate    = "unknown"
)

const (
	summaryInterval = time.Minute
	shutdownTimeout = 30 * time.Second
)

type flags struct {
	configDir string
	envFile   string
	logLevel  string
	once      bool
	version   bool
}

func parseFlags(args []string) (flags, *pflag.FlagSet, error) {
	var f flags
	fs := pflag.NewFlagSet(logging.AppName, pflag.ContinueOnError)
	fs.StringVarP(&f.configDir, "config", "c", ".", "directory containing "+config.FileName)
	fs.StringVar(&f.envFile, "env-file", ".env", "file with KEY=value environment overrides")
	fs.StringVarP(&f.logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")
	fs.BoolVar(&f.once, "once", false, "apply a single snapshot and exit")
	fs.BoolVarP(&f.version, "version", "v", false, "print the version and exit")
	if err := fs.Parse(args); err != nil {
		return f, nil, err
	}
	return f, fs, nil
}

func main() {
	f, fs, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if f.version {
		fmt.Printf("%s %s (%s)\n", logging.AppName, BuildVersion, BuildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f, fs); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", logging.AppName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags, fs *pflag.FlagSet) error {
	sessionStart := time.Now()

	if err := config.LoadEnvFile(f.envFile); err != nil {
		return err
	}
	configErr := config.Load(f.configDir)
	if err := viper.BindPFlag("logLevel", fs.Lookup("log-level")); err != nil {
		return err
	}

	logFile, err := openLogFile(config.GetString("logsDir"), sessionStart)
	if err != nil {
		return err
	}
	defer logFile.Close()

	otelCfg := config.GetOTelConfig()
	provider, err := intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    logFile,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}

	sessionID := uuid.NewString()
	online := &onlineCounter{}
	slogManager := logging.NewSlogManager()
	logOpts := logging.Options{
		Level:    config.GetString("logLevel"),
		File:     logFile,
		Provider: provider.LoggerProvider(),
		Context:  online.attrs(sessionID),
	}
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.DialGraylog(gl.Address)
		if err != nil {
			fmt.Fprintf(os.Stderr, "graylog unavailable: %v\n", err)
		} else {
			defer w.Close()
			logOpts.GELF = w
		}
	}
	slogManager.Setup(logOpts)
	logger := slogManager.Logger()
	slog.SetDefault(logger)

	if configErr != nil {
		logger.Warn("Failed to load config, using defaults", "error", configErr)
	} else {
		logger.Info("Loaded config", "dir", f.configDir)
	}
	logger.Info("Starting", "version", BuildVersion, "build", BuildDate, "session", sessionID)

	maps, err := config.GetMaps()
	if err != nil {
		return err
	}

	anim := config.GetAnimationConfig()
	mk := config.GetMarkersConfig()
	ui := config.GetUIConfig()
	proj := config.GetProjectionConfig()

	l := loop.New(anim.FrameRate)
	router := layer.NewRouter(layerMaps(maps), layer.WithPrefixes(mk.NetherPrefix, mk.EndPrefix))
	view := viewer.NewMemory()
	markers := cache.NewMarkerCache()

	adapter, err := newAdapter(proj)
	if err != nil {
		return err
	}
	factory := &marker.Factory{
		Adapter: adapter,
		Views:   view,
		Styles:  style.NewRegistry(nil),
		Frames:  l,
		Clock:   l,
		Settings: marker.Settings{
			Animated:    anim.Enabled,
			Duration:    anim.Duration,
			ZoomLead:    anim.ZoomLead,
			DefaultSkin: mk.DefaultSkin,
			HealthScale: mk.HealthScale,
		},
		Logger: logger,
	}

	vis := visibility.New(view, markers, visibility.Options{
		Controls: ui.Controls,
		Title:    ui.Title,
		OnChange: func(c visibility.Counter) {
			online.set(c)
			logger.Debug("Player counter changed", "title", c.Title(ui.Title))
		},
		Logger: logger,
	})

	snapCfg := config.GetSnapshotConfig()
	source := newSource(snapCfg)

	s, err := newSinks(ctx, sinkDeps{
		SessionID:    sessionID,
		SessionStart: sessionStart,
		Manager:      slogManager,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	engine, err := tracker.New(tracker.Dependencies{
		Source:     source,
		Router:     router,
		Markers:    markers,
		Factory:    factory,
		Visibility: vis,
		Loop:       l,
		Events:     s.events,
		SessionID:  sessionID,
		Interval:   snapCfg.Interval,
		Logger:     logger,
	})
	if err != nil {
		s.close(logger)
		return err
	}

	session := &core.Session{
		ID:        sessionID,
		StartTime: sessionStart,
		Source:    sourceName(snapCfg),
		Maps:      sessionMaps(maps),
	}
	if err := engine.StartSession(session); err != nil {
		logger.Error("Failed to start session", "error", err)
	}

	engine.OnMapChange(initialMap(ui.Map, maps), proj.Rotation)

	if st := config.GetStatusConfig(); st.Enabled {
		mon := monitor.NewService(monitor.Dependencies{
			Path:     st.File,
			Interval: st.Interval,
			Collect:  online.status(sessionID, ui.Title, sessionStart, s.events),
			Logger:   logger,
		})
		if err := mon.Start(); err != nil {
			logger.Warn("Status monitor disabled", "error", err)
		} else {
			defer mon.Stop()
		}
	}

	if f.once {
		res, err := engine.PollOnce(ctx)
		if err != nil {
			logger.Error("Poll failed", "error", err)
		} else {
			logger.Info("Applied snapshot", "added", len(res.Added), "updated", len(res.Updated), "removed", len(res.Removed), "title", vis.Title())
		}
	} else {
		runLoop(ctx, l, engine, vis, ui.Title, logger)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.close(logger)
	s.upload(shutdownCtx, logger)

	if provider.Enabled() {
		if rm, err := provider.Collect(shutdownCtx); err == nil {
			logger.Info("Collected metrics", "scopes", len(rm.ScopeMetrics))
		}
	}
	logger.Info("Shut down", "uptime", time.Since(sessionStart).Round(time.Second))
	if err := slogManager.Flush(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "flush logs: %v\n", err)
	}
	return provider.Shutdown(shutdownCtx)
}

// runLoop drives the loop and the poller until ctx is done.
func runLoop(ctx context.Context, l *loop.Loop, engine *tracker.Engine, vis *visibility.Controller, title string, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Loop stopped", "error", err)
		}
	}()

	l.Every(ctx, summaryInterval, func() {
		logger.Info("Online players", "title", vis.Title())
	})

	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Poller stopped", "error", err)
	}
	<-done
}

func openLogFile(logsDir string, start time.Time) (*os.File, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	path := logging.LogFilePath(logsDir, logging.AppName, start)
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".old"); err != nil {
			return nil, fmt.Errorf("rotate log file: %w", err)
		}
	}
	file, err := os.OpenFile(filepath.Clean(path), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

func newSource(cfg config.SnapshotConfig) snapshot.Source {
	if cfg.File != "" {
		return snapshot.FileSource{Path: cfg.File}
	}
	return snapshot.NewClient(cfg.URL, cfg.Path)
}

func sourceName(cfg config.SnapshotConfig) string {
	if cfg.File != "" {
		return cfg.File
	}
	return snapshot.NewClient(cfg.URL, cfg.Path).URL()
}
