package logging

import (
	"log/slog"
	"os"

	"github.com/rs/zerolog"
)

// Zerolog returns a zerolog logger for component that writes to the same text
// output and level as the slog logger.
func (m *SlogManager) Zerolog(component string) zerolog.Logger {
	w := m.text
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "2006-01-02T15:04:05Z07:00"}).
		Level(zerologLevel(m.level)).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l <= slog.LevelDebug:
		return zerolog.DebugLevel
	case l <= slog.LevelInfo:
		return zerolog.InfoLevel
	case l <= slog.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
