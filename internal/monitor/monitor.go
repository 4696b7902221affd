// Package monitor periodically writes the daemon's status to a JSON file so
// operators and health checks can read it without parsing logs.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultInterval is used when Dependencies.Interval is not positive.
const DefaultInterval = 10 * time.Second

// Status is one status report.
type Status struct {
	Time      time.Time      `json:"time"`
	SessionID string         `json:"sessionId"`
	Title     string         `json:"title"`
	Active    int            `json:"active"`
	Total     int            `json:"total"`
	Uptime    string         `json:"uptime"`
	Queues    map[string]int `json:"queues"`
}

// Dependencies holds all dependencies for the monitor service.
type Dependencies struct {
	Path     string
	Interval time.Duration
	// Collect builds the current status. It runs on the monitor goroutine.
	Collect func() Status
	Logger  *slog.Logger
}

// Service manages status monitoring.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service.
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// WriteOnce collects the status and replaces the status file with it.
func (s *Service) WriteOnce() error {
	status := s.deps.Collect()
	if status.Time.IsZero() {
		status.Time = time.Now()
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	// write then rename so readers never see a partial file
	tmp := s.deps.Path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return os.Rename(tmp, s.deps.Path)
}

// Start starts the status monitor goroutine.
func (s *Service) Start() error {
	if s.deps.Collect == nil || s.deps.Path == "" {
		return fmt.Errorf("monitor: path and collect are required")
	}
	if err := os.MkdirAll(filepath.Dir(s.deps.Path), 0o755); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor", "path", s.deps.Path, "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.WriteOnce(); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
