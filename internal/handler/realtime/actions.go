package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shourk/messaging/backend/internal/model/chat"
	chatService "github.com/shourk/messaging/backend/internal/service/chat"
)

// Inbound action names.
const (
	actionSend               = "message.send"
	actionEdit               = "message.edit"
	actionDelete             = "message.delete"
	actionDeleteConversation = "conversation.delete"
	actionMarkRead           = "messages.read"
)

const (
	frameAck   = "ack"
	frameError = "error"
)

// Error codes carried in error frames.
const (
	codeInvalidPayload = "INVALID_PAYLOAD"
	codeUnauthorized   = "UNAUTHORIZED"
	codeForbidden      = "FORBIDDEN"
	codeNotFound       = "NOT_FOUND"
	codeUnavailable    = "UNAVAILABLE"
	codeRateLimited    = "RATE_LIMITED"
	codeUnsupported    = "UNSUPPORTED"
)

var errUnsupportedAction = errors.New("unsupported frame type")

type inboundFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorFrame(requestID, code, message string) frame {
	f := newFrame(frameError, errorBody{Code: code, Message: message})
	f.RequestID = requestID
	return f
}

func ackFrame(requestID string, result any) frame {
	f := newFrame(frameAck, result)
	f.RequestID = requestID
	return f
}

type sendAction struct {
	ReceiverID  string      `json:"receiverId"`
	Text        string      `json:"text"`
	Attachments []string    `json:"attachments"`
	Domain      chat.Domain `json:"domain"`
}

type editAction struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

type deleteAction struct {
	MessageID string `json:"messageId"`
}

type deleteConversationAction struct {
	CounterpartID string `json:"counterpartId"`
}

type markReadAction struct {
	SenderID string      `json:"senderId"`
	Domain   chat.Domain `json:"domain"`
}

// handleAction runs one inbound action and always answers with exactly one
// ack or error frame.
func (h *Handler) handleAction(ctx context.Context, out *outbox, caller *chat.Caller, in inboundFrame) {
	if caller == nil {
		_ = out.push(errorFrame(in.RequestID, codeUnauthorized, "authentication required"))
		return
	}

	result, err := h.runAction(ctx, *caller, in)
	if err != nil {
		code, message := errorCode(err), err.Error()
		if code == codeUnavailable {
			h.log.Error().Err(err).Str("action", in.Type).Str("participant", caller.ID).Msg("action failed")
			message = "service temporarily unavailable"
		}
		if pushErr := out.push(errorFrame(in.RequestID, code, message)); pushErr != nil {
			h.log.Warn().Err(pushErr).Str("participant", caller.ID).Msg("error reply dropped")
		}
		return
	}
	if pushErr := out.push(ackFrame(in.RequestID, result)); pushErr != nil {
		h.log.Warn().Err(pushErr).Str("participant", caller.ID).Msg("ack dropped")
	}
}

func (h *Handler) runAction(ctx context.Context, caller chat.Caller, in inboundFrame) (any, error) {
	switch in.Type {
	case actionSend:
		var p sendAction
		if err := decodeAction(in.Data, &p); err != nil {
			return nil, err
		}
		if p.Domain == "" {
			p.Domain = chat.DomainUserExpert
		}
		return h.chatSvc.Send(ctx, caller, p.ReceiverID, p.Text, p.Attachments, p.Domain)

	case actionEdit:
		var p editAction
		if err := decodeAction(in.Data, &p); err != nil {
			return nil, err
		}
		return h.chatSvc.Edit(ctx, caller, p.MessageID, p.Text)

	case actionDelete:
		var p deleteAction
		if err := decodeAction(in.Data, &p); err != nil {
			return nil, err
		}
		res, err := h.chatSvc.DeleteOne(ctx, caller, p.MessageID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"messageId": p.MessageID, "deleted": res.Deleted > 0, "alreadyDeleted": res.AlreadyDeleted}, nil

	case actionDeleteConversation:
		var p deleteConversationAction
		if err := decodeAction(in.Data, &p); err != nil {
			return nil, err
		}
		res, err := h.chatSvc.DeleteConversation(ctx, caller, caller.ID, p.CounterpartID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"deletedCount": res.Deleted, "alreadyDeleted": res.AlreadyDeleted}, nil

	case actionMarkRead:
		var p markReadAction
		if err := decodeAction(in.Data, &p); err != nil {
			return nil, err
		}
		if p.Domain == "" {
			p.Domain = chat.DomainUserExpert
		}
		n, err := h.chatSvc.MarkRead(ctx, caller, p.SenderID, p.Domain)
		if err != nil {
			return nil, err
		}
		return map[string]any{"updatedCount": n}, nil

	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedAction, in.Type)
	}
}

func decodeAction(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing data", chatService.ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", chatService.ErrInvalidPayload, err)
	}
	return nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, chatService.ErrInvalidPayload):
		return codeInvalidPayload
	case errors.Is(err, chatService.ErrUnauthorized):
		return codeUnauthorized
	case errors.Is(err, chatService.ErrForbidden):
		return codeForbidden
	case errors.Is(err, chatService.ErrNotFound):
		return codeNotFound
	case errors.Is(err, errUnsupportedAction):
		return codeUnsupported
	default:
		return codeUnavailable
	}
}
