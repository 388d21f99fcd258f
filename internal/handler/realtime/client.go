package realtime

import (
	"errors"
	"sync"
	"time"
)

var (
	errClientClosed = errors.New("connection closed")
	errOutboxFull   = errors.New("outbox full, frame dropped")
)

// frame is the envelope every server-to-client message travels in.
type frame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

func newFrame(event string, data any) frame {
	return frame{Type: event, Data: data, Timestamp: time.Now().UnixMilli()}
}

// outbox is a bounded per-connection queue drained by a single writer.
// Pushing never blocks: a slow consumer loses frames instead of stalling
// the sender.
type outbox struct {
	frames chan frame
	done   chan struct{}
	once   sync.Once
}

func newOutbox(size int) *outbox {
	if size <= 0 {
		size = 64
	}
	return &outbox{
		frames: make(chan frame, size),
		done:   make(chan struct{}),
	}
}

func (o *outbox) push(f frame) error {
	select {
	case <-o.done:
		return errClientClosed
	default:
	}

	select {
	case o.frames <- f:
		return nil
	case <-o.done:
		return errClientClosed
	default:
		return errOutboxFull
	}
}

// Send implements presence.Handle.
func (o *outbox) Send(event string, payload any) error {
	return o.push(newFrame(event, payload))
}

func (o *outbox) close() {
	o.once.Do(func() { close(o.done) })
}
