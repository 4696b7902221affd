// Package logging sets up the daemon's slog logger: text output to a log file
// or the console, optional Graylog and OpenTelemetry outputs, and a zerolog
// bridge for components that log through zerolog.
package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, appName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", appName, sessionStart.Format("20060102_150405")),
	)
}
