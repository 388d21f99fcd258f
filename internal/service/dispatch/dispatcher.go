package dispatch

import (
	"github.com/rs/zerolog"

	"github.com/shourk/messaging/backend/internal/model/chat"
	"github.com/shourk/messaging/backend/internal/service/presence"
)

// Directory is the part of the presence registry the dispatcher reads.
type Directory interface {
	Lookup(participantID string) (presence.Handle, bool)
	Connections() []presence.Handle
}

// Dispatcher pushes events to live connections. Delivery is best-effort:
// an absent participant or a failed push is logged and forgotten.
type Dispatcher struct {
	dir Directory
	log zerolog.Logger
}

func New(dir Directory, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		dir: dir,
		log: log.With().Str("component", "dispatcher").Logger(),
	}
}

// Notify delivers event to participantID if that participant is connected.
func (d *Dispatcher) Notify(participantID, event string, payload any) {
	h, ok := d.dir.Lookup(participantID)
	if !ok {
		d.log.Debug().Str("participant", participantID).Str("event", event).Msg("participant offline, event skipped")
		return
	}
	if err := h.Send(event, payload); err != nil {
		d.log.Warn().Err(err).Str("participant", participantID).Str("event", event).Msg("push failed")
	}
}

// BroadcastPresence sends the present-id list to every live connection,
// anonymous ones included.
func (d *Dispatcher) BroadcastPresence(present []string) {
	if present == nil {
		present = []string{}
	}
	for _, h := range d.dir.Connections() {
		if err := h.Send(chat.EventPresenceChanged, present); err != nil {
			d.log.Warn().Err(err).Msg("presence push failed")
		}
	}
}
