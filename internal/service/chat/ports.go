//go:generate go run go.uber.org/mock/mockgen -source=ports.go -destination=../../mocks/mock_ports.go -package=mocks
package chat

// Notifier pushes a named event to one participant, best-effort.
type Notifier interface {
	Notify(participantID, event string, payload any)
}

// Presence answers whether a participant currently holds a live connection.
type Presence interface {
	IsPresent(participantID string) bool
}
