// internal/storage/storage.go
package storage

import "github.com/mapcrafter/playermarkers/pkg/core"

// Backend is the interface all session recorders must satisfy.
// Recorders are write-only: nothing reads engine state back from them.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error

	// Presence
	RecordJoin(e *core.PresenceEvent) error
	RecordLeave(e *core.PresenceEvent) error

	// State recording
	RecordPosition(s *core.PlayerState) error
}

// Exportable is an optional interface for recorders that produce a session
// archive on Close, suitable for upload.
type Exportable interface {
	ExportedFilePath() string
	ExportMetadata() core.UploadMetadata
}
