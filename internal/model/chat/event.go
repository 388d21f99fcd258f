package chat

import "time"

// Real-time event names pushed to live connections.
const (
	EventPresenceChanged     = "presence.changed"
	EventMessageCreated      = "message.created"
	EventMessageEdited       = "message.edited"
	EventMessageDeleted      = "message.deleted"
	EventConversationCleared = "conversation.cleared"
	EventMessagesRead        = "messages.read"
)

// MessageEdited is the payload of EventMessageEdited.
type MessageEdited struct {
	ID       string     `json:"id"`
	SenderID string     `json:"senderId"`
	Text     string     `json:"text"`
	IsEdited bool       `json:"isEdited"`
	EditedAt *time.Time `json:"editedAt,omitempty"`
}

// NewMessageEdited projects the fields a receiver needs to patch its copy.
func NewMessageEdited(m Message) MessageEdited {
	return MessageEdited{
		ID:       m.ID,
		SenderID: m.SenderID,
		Text:     m.Text,
		IsEdited: m.IsEdited,
		EditedAt: m.EditedAt,
	}
}

// MessageDeleted is the payload of EventMessageDeleted.
type MessageDeleted struct {
	MessageID string `json:"messageId"`
	ActorID   string `json:"actorId"`
}

// ConversationCleared is the payload of EventConversationCleared.
type ConversationCleared struct {
	ClearedBy string `json:"clearedBy"`
}

// MessagesRead is the payload of EventMessagesRead.
type MessagesRead struct {
	ReadBy    string    `json:"readBy"`
	Timestamp time.Time `json:"timestamp"`
}
