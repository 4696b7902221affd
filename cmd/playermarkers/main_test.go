package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapcrafter/playermarkers/internal/api"
	"github.com/mapcrafter/playermarkers/internal/config"
	"github.com/mapcrafter/playermarkers/internal/dispatcher"
	"github.com/mapcrafter/playermarkers/internal/geo"
	"github.com/mapcrafter/playermarkers/internal/logging"
	"github.com/mapcrafter/playermarkers/internal/storage"
	"github.com/mapcrafter/playermarkers/internal/visibility"
	"github.com/mapcrafter/playermarkers/pkg/core"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseFlags(t *testing.T) {
	f, fs, err := parseFlags([]string{"-c", "/etc/pm", "--once", "--log-level", "debug"})
	require.NoError(t, err)
	assert.Equal(t, "/etc/pm", f.configDir)
	assert.Equal(t, ".env", f.envFile)
	assert.Equal(t, "debug", f.logLevel)
	assert.True(t, f.once)
	assert.True(t, fs.Lookup("log-level").Changed)

	_, _, err = parseFlags([]string{"--bogus"})
	assert.Error(t, err)
}

func TestNewAdapter(t *testing.T) {
	a, err := newAdapter(config.ProjectionConfig{Type: "identity"})
	require.NoError(t, err)
	assert.IsType(t, geo.Identity{}, a)

	a, err = newAdapter(config.ProjectionConfig{Type: "Mapcrafter", Scale: 1, Rotation: 1})
	require.NoError(t, err)
	p, ok := a.(*geo.Projection)
	require.True(t, ok)
	assert.Equal(t, 1, p.Rotation())

	a, err = newAdapter(config.ProjectionConfig{Type: "webmercator", Scale: 1})
	require.NoError(t, err)
	assert.IsType(t, &geo.WebMercator{}, a)

	_, err = newAdapter(config.ProjectionConfig{Type: "polar"})
	assert.Error(t, err)
}

func TestInitialMap(t *testing.T) {
	maps := []config.MapConfig{{Name: "day", World: "world"}, {Name: "night", World: "world"}}
	assert.Equal(t, "night", initialMap("night", maps))
	assert.Equal(t, "day", initialMap("", maps))
	assert.Equal(t, "", initialMap("", nil))
}

func TestMapConversions(t *testing.T) {
	maps := []config.MapConfig{{Name: "day", World: "world"}}
	assert.Equal(t, "world", layerMaps(maps)[0].World)
	assert.Equal(t, []core.MapInfo{{Name: "day", World: "world"}}, sessionMaps(maps))
}

func TestHttpToWS(t *testing.T) {
	assert.Equal(t, "ws://localhost:5000", httpToWS("http://localhost:5000/"))
	assert.Equal(t, "wss://example.com", httpToWS("https://example.com"))
}

func TestOnlineCounter(t *testing.T) {
	var o onlineCounter
	o.set(visibility.Counter{Active: 1, Total: 3})
	attrs := o.attrs("s1")(context.Background())
	require.Len(t, attrs, 3)
	assert.Equal(t, "s1", attrs[0].Value.String())
	assert.Equal(t, int64(3), attrs[1].Value.Int64())
	assert.Equal(t, int64(1), attrs[2].Value.Int64())
}

func TestNewSource(t *testing.T) {
	cfg := config.SnapshotConfig{URL: "http://mc:8080/", Path: "players.json"}
	assert.Equal(t, "http://mc:8080/players.json", sourceName(cfg))

	cfg.File = "/srv/players.json"
	assert.Equal(t, "/srv/players.json", sourceName(cfg))
	_, ok := newSource(cfg).(interface {
		Fetch(context.Context) (core.Snapshot, error)
	})
	assert.True(t, ok)
}

func TestSinks_MemoryExport(t *testing.T) {
	t.Cleanup(viper.Reset)
	_ = config.Load(t.TempDir())
	out := t.TempDir()
	viper.Set("storage.type", "memory")
	viper.Set("storage.memory.outputDir", out)
	viper.Set("storage.memory.compressOutput", false)

	start := time.Now()
	s, err := newSinks(context.Background(), sinkDeps{
		SessionID:    "s1",
		SessionStart: start,
		Manager:      logging.NewSlogManager(),
		Logger:       discard(),
	})
	require.NoError(t, err)
	require.NotNil(t, s.backend)
	require.True(t, s.events.HasHandler(dispatcher.KindPoll))

	require.NoError(t, s.events.Dispatch(dispatcher.Event{
		Kind:    dispatcher.KindSession,
		Payload: &core.Session{ID: "s1", StartTime: start},
	}))
	s.close(discard())

	exp, ok := s.backend.(storage.Exportable)
	require.True(t, ok)
	assert.Equal(t, out, filepath.Dir(exp.ExportedFilePath()))

	// upload disabled: the archive stays on disk
	s.upload(context.Background(), discard())
	assert.FileExists(t, exp.ExportedFilePath())
}

func TestSinks_NoneHasNoBackend(t *testing.T) {
	t.Cleanup(viper.Reset)
	_ = config.Load(t.TempDir())

	s, err := newSinks(context.Background(), sinkDeps{Manager: logging.NewSlogManager(), Logger: discard()})
	require.NoError(t, err)
	assert.Nil(t, s.backend)
	s.close(discard())
	s.upload(context.Background(), discard())
}

type fakeExport struct{ path string }

func (f fakeExport) ExportedFilePath() string { return f.path }
func (f fakeExport) ExportMetadata() core.UploadMetadata {
	return core.UploadMetadata{SessionID: "s1"}
}

func TestUploadFile(t *testing.T) {
	var uploaded bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == api.UploadPath {
			uploaded = true
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "s1.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	err := uploadFile(context.Background(), api.New(srv.URL, "k"), path, fakeExport{path})
	require.NoError(t, err)
	assert.True(t, uploaded)

	err = uploadFile(context.Background(), api.New(srv.URL, "k"), filepath.Join(t.TempDir(), "missing"), fakeExport{})
	assert.Error(t, err)
}

func TestOnlineCounter_Status(t *testing.T) {
	d, err := dispatcher.New(discard())
	require.NoError(t, err)
	defer d.Close()

	var o onlineCounter
	o.set(visibility.Counter{Active: 2, Total: 2})
	st := o.status("s1", "Mapcrafter", time.Now(), d)()
	assert.Equal(t, "(2/2) Mapcrafter", st.Title)
	assert.Equal(t, "s1", st.SessionID)
	assert.Empty(t, st.Queues)
}

func TestOpenLogFile_RotatesExisting(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)
	path := logging.LogFilePath(dir, logging.AppName, start)
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0o644))

	f, err := openLogFile(dir, start)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	old, err := os.ReadFile(path + ".old")
	require.NoError(t, err)
	assert.Equal(t, "previous run\n", string(old))
}

func TestOpenLogFile_RotationFailure(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)
	path := logging.LogFilePath(dir, logging.AppName, start)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	// a non-empty directory in the way makes the rename fail
	require.NoError(t, os.MkdirAll(filepath.Join(path+".old", "keep"), 0o755))

	_, err := openLogFile(dir, start)
	assert.ErrorContains(t, err, "rotate log file")
}
