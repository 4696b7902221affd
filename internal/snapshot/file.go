package snapshot

import (
	"context"
	"fmt"
	"os"

	"github.com/mapcrafter/playermarkers/pkg/core"
)

// FileSource reads the snapshot file the server plugin writes to disk.
type FileSource struct {
	Path string
}

// Fetch reads and decodes the file.
func (s FileSource) Fetch(ctx context.Context) (core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return core.Snapshot{}, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
