package storage

import (
	"fmt"

	"github.com/mapcrafter/playermarkers/internal/dispatcher"
	"github.com/mapcrafter/playermarkers/pkg/core"
)

// Kinds are the tracker events a recorder consumes.
var Kinds = []string{
	dispatcher.KindSession,
	dispatcher.KindJoin,
	dispatcher.KindLeave,
	dispatcher.KindPoll,
}

// Register subscribes b to the tracker events on d. Writes happen on one
// dispatcher buffer goroutine, in dispatch order, so the engine never waits
// on the recorder and the session always precedes its records.
func Register(d *dispatcher.Dispatcher, b Backend, bufferSize int) {
	d.RegisterMany(Kinds, Handler(b), dispatcher.Buffered(bufferSize), dispatcher.Blocking())
}

// Handler routes a tracker event to the matching Backend method.
func Handler(b Backend) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) error {
		switch p := e.Payload.(type) {
		case *core.Session:
			return b.StartSession(p)
		case *core.PresenceEvent:
			if p.Kind == core.PresenceLeave {
				return b.RecordLeave(p)
			}
			return b.RecordJoin(p)
		case *core.PollResult:
			for i := range p.States {
				if err := b.RecordPosition(&p.States[i]); err != nil {
					return err
				}
			}
			return nil
		default:
			return fmt.Errorf("unexpected %s payload %T", e.Kind, e.Payload)
		}
	}
}
