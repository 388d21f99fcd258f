//go:generate go run go.uber.org/mock/mockgen -source=session.go -destination=../../mocks/mock_session_source.go -package=mocks
package chat

import "context"

// SessionStatus is the lifecycle state of a pairing record.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionConfirmed SessionStatus = "confirmed"
	SessionCancelled SessionStatus = "cancelled"
)

// Session pairs two participants inside one domain. The pairing is
// direction-agnostic: A and B carry no meaning beyond storage order.
type Session struct {
	Domain       Domain        `json:"domain" bson:"domain"`
	ParticipantA string        `json:"participantA" bson:"participantA"`
	ParticipantB string        `json:"participantB" bson:"participantB"`
	Status       SessionStatus `json:"status" bson:"status"`
}

// Counterpart returns the other side of the session for id.
func (s Session) Counterpart(id string) (string, bool) {
	switch id {
	case s.ParticipantA:
		return s.ParticipantB, s.ParticipantB != ""
	case s.ParticipantB:
		return s.ParticipantA, s.ParticipantA != ""
	default:
		return "", false
	}
}

// SessionSource is the read side of the external session registry.
type SessionSource interface {
	// ConfirmedSessions returns the confirmed sessions naming caller inside domain.
	ConfirmedSessions(ctx context.Context, domain Domain, caller Caller) ([]Session, error)
}
