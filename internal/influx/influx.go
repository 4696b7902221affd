// Package influx writes per-poll player metrics to InfluxDB v2. When the
// server cannot be reached at Connect, points are appended as line protocol
// to a gzip backup file instead.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/mapcrafter/playermarkers/internal/config"
	"github.com/mapcrafter/playermarkers/internal/dispatcher"
	"github.com/mapcrafter/playermarkers/pkg/core"
)

// Measurement names.
const (
	MeasurementOnline = "players_online"
	MeasurementPlayer = "player_state"
)

const retention = 60 * 60 * 24 * 90 // 90 days

// Manager handles the InfluxDB connection and writes.
type Manager struct {
	cfg        config.InfluxConfig
	log        zerolog.Logger
	backupPath string

	mu     sync.Mutex
	client influxdb2.Client
	writer influxdb2_api.WriteAPI
	backup *gzip.Writer
	file   *os.File
	valid  bool
}

// NewManager creates a manager. Nothing is opened until Connect.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger, backupPath string) *Manager {
	return &Manager{cfg: cfg, log: log, backupPath: backupPath}
}

// Valid reports whether points go to the server rather than the backup file.
func (m *Manager) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valid
}

// Connect pings the server and prepares the bucket. If the ping fails the
// backup file is opened instead.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return errors.New("influx.enabled is false")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	running, err := m.client.Ping(ctx)
	if err != nil || !running {
		m.log.Warn().Err(err).Str("backupPath", m.backupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		return m.openBackup()
	}

	if err := m.ensureBucket(ctx); err != nil {
		return err
	}

	m.writer = m.client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errs <-chan error) {
		for writeErr := range errs {
			m.log.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.writer.Errors())

	m.valid = true
	m.log.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.backup != nil {
		return nil
	}
	file, err := os.OpenFile(m.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.file = file
	m.backup = gzip.NewWriter(file)
	return nil
}

func (m *Manager) ensureBucket(ctx context.Context) error {
	orgs := m.client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.log.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		if org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org); err != nil {
			return fmt.Errorf("creating organization %q: %w", m.cfg.Org, err)
		}
	}

	buckets := m.client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, m.cfg.Bucket); err == nil {
		return nil
	}
	m.log.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
	rule := domain.RetentionRuleTypeExpire
	_, err = buckets.CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: retention,
	})
	if err != nil {
		return fmt.Errorf("creating bucket %q: %w", m.cfg.Bucket, err)
	}
	return nil
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid {
		m.writer.WritePoint(point)
		return nil
	}
	if m.backup == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	// PointToLineProtocol terminates the line
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.backup.Write([]byte(line)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Points builds the points for one applied poll: a players_online point and
// a player_state point per player.
func Points(poll *core.PollResult) []*influxdb2_write.Point {
	out := make([]*influxdb2_write.Point, 0, len(poll.States)+1)
	out = append(out, influxdb2.NewPoint(MeasurementOnline,
		map[string]string{"session": poll.SessionID},
		map[string]any{"active": poll.Active, "total": poll.Total},
		poll.Time))

	for _, s := range poll.States {
		out = append(out, influxdb2.NewPoint(MeasurementPlayer,
			map[string]string{
				"session":  poll.SessionID,
				"username": s.Username,
				"world":    s.World,
			},
			map[string]any{
				"health": s.Health,
				"level":  s.Level,
				"food":   s.Food,
				"x":      s.Location.X,
				"y":      s.Location.Y,
				"z":      s.Location.Z,
			},
			poll.Time))
	}
	return out
}

// Handle is a dispatcher handler for KindPoll events.
func (m *Manager) Handle(e dispatcher.Event) error {
	poll, ok := e.Payload.(*core.PollResult)
	if !ok {
		return fmt.Errorf("influx: unexpected payload %T for %s", e.Payload, e.Kind)
	}
	var errs []error
	for _, p := range Points(poll) {
		if err := m.WritePoint(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Register subscribes m to poll events through a buffered queue.
func Register(d *dispatcher.Dispatcher, m *Manager, bufferSize int) {
	d.Register(dispatcher.KindPoll, m.Handle, dispatcher.Buffered(bufferSize))
}

// Close flushes pending writes and closes the client or the backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writer != nil {
		m.writer.Flush()
	}
	if m.client != nil {
		m.client.Close()
	}
	if m.backup != nil {
		err := m.backup.Close()
		if cerr := m.file.Close(); err == nil {
			err = cerr
		}
		m.backup, m.file = nil, nil
		return err
	}
	return nil
}
