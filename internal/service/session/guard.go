package session

import (
	"context"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/shourk/messaging/backend/internal/model/chat"
)

// Set is the set of counterpart ids a caller holds confirmed sessions with.
type Set map[string]struct{}

// Has reports whether id is a member of s.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members of s in ascending order.
func (s Set) IDs() []string {
	ids := lo.Keys(s)
	slices.Sort(ids)
	return ids
}

// Guard answers "may these two participants exchange messages in this domain".
// It fails closed: an unknown role or a role/domain mismatch yields nothing.
type Guard struct {
	sessions chat.SessionSource
}

func NewGuard(sessions chat.SessionSource) *Guard {
	return &Guard{sessions: sessions}
}

// AuthorizedCounterparts returns every participant caller holds a confirmed
// session with inside domain.
func (g *Guard) AuthorizedCounterparts(ctx context.Context, caller chat.Caller, domain chat.Domain) (Set, error) {
	if !caller.Valid() || !domain.Allows(caller.Role) {
		return Set{}, nil
	}

	sessions, err := g.sessions.ConfirmedSessions(ctx, domain, caller)
	if err != nil {
		return nil, fmt.Errorf("load %s sessions for %s: %w", domain, caller.ID, err)
	}

	counterparts := lo.FilterMap(sessions, func(s chat.Session, _ int) (string, bool) {
		if s.Domain != domain || s.Status != chat.SessionConfirmed {
			return "", false
		}
		other, ok := s.Counterpart(caller.ID)
		return other, ok && other != caller.ID
	})

	set := make(Set, len(counterparts))
	for _, id := range counterparts {
		set[id] = struct{}{}
	}
	return set, nil
}

// IsAuthorized reports whether caller and otherID share a confirmed session in domain.
func (g *Guard) IsAuthorized(ctx context.Context, caller chat.Caller, otherID string, domain chat.Domain) (bool, error) {
	if otherID == "" {
		return false, nil
	}
	set, err := g.AuthorizedCounterparts(ctx, caller, domain)
	if err != nil {
		return false, err
	}
	return set.Has(otherID), nil
}
