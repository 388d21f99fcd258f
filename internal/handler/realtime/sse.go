package realtime

import (
	"errors"
	"net/http"
	"time"

	"github.com/shourk/messaging/backend/pkg/utils"
)

const sseHeartbeat = 25 * time.Second

var errAuthRequired = errors.New("authentication required")

type sseClient struct {
	*outbox
	participantID string
}

// handleEvents 为无法使用 WebSocket 的客户端提供只读事件流
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	participantID, _, err := h.identify(r)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEEvent(w, flusher, "ready", map[string]string{"participantId": participantID}); err != nil {
		return
	}

	client := &sseClient{outbox: newOutbox(h.opts.OutboxSize), participantID: participantID}
	h.registry.Connect(participantID, client)
	h.log.Debug().Str("participant", participantID).Msg("event stream opened")
	defer func() {
		h.registry.Disconnect(client)
		client.close()
		h.log.Debug().Str("participant", participantID).Msg("event stream closed")
	}()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.done:
			return
		case f := <-client.frames:
			if err := utils.SendSSEEvent(w, flusher, f.Type, f); err != nil {
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}
