//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../../mocks/mock_message_store.go -package=mocks
package chat

import (
	"context"
	"errors"
)

// ErrStoreUnavailable wraps every failure to reach the durable store.
var ErrStoreUnavailable = errors.New("store unavailable")

// MessageStore exposes the message operations of the durable store.
// A query that matches nothing succeeds with an empty or zero result.
type MessageStore interface {
	// Insert assigns the id and creation time and persists msg.
	Insert(ctx context.Context, msg Message) (Message, error)
	// FindConversation returns every message between a and b, oldest first.
	FindConversation(ctx context.Context, a, b string) ([]Message, error)
	FindByID(ctx context.Context, id string) (Message, bool, error)
	// UpdateText reports false when the message no longer exists.
	UpdateText(ctx context.Context, id, text string) (Message, bool, error)
	DeleteOne(ctx context.Context, id string) (bool, error)
	DeletePair(ctx context.Context, a, b string) (int, error)
	// MarkReadFromSender only touches unread messages, so a second call returns 0.
	MarkReadFromSender(ctx context.Context, receiverID, senderID string) (int, error)
	// UnreadCountsFor groups the receiver's unread messages in domain by sender.
	UnreadCountsFor(ctx context.Context, receiverID string, domain Domain) (map[string]int, error)
	// ValidID reports whether id is structurally a message id for this store.
	ValidID(id string) bool
}
