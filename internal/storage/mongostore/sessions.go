package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/shourk/messaging/backend/internal/model/chat"
)

var _ chat.SessionSource = (*Store)(nil)

type userExpertSessionDocument struct {
	UserID   any    `bson:"userId"`
	ExpertID any    `bson:"expertId"`
	Status   string `bson:"status"`
}

type expertSessionDocument struct {
	ExpertID     any    `bson:"expertId"`
	PeerExpertID any    `bson:"peerExpertId"`
	Status       string `bson:"status"`
}

func (s *Store) ConfirmedSessions(ctx context.Context, domain chat.Domain, caller chat.Caller) ([]chat.Session, error) {
	key := participantKey(caller.ID)
	confirmed := string(chat.SessionConfirmed)

	switch domain {
	case chat.DomainUserExpert:
		field := "userId"
		if caller.Role == chat.RoleExpert {
			field = "expertId"
		}
		var docs []userExpertSessionDocument
		if err := s.findAll(ctx, s.userExpertSessions, bson.M{field: key, "status": confirmed}, &docs); err != nil {
			return nil, err
		}
		sessions := make([]chat.Session, 0, len(docs))
		for _, d := range docs {
			sessions = append(sessions, chat.Session{
				Domain:       chat.DomainUserExpert,
				ParticipantA: idString(d.UserID),
				ParticipantB: idString(d.ExpertID),
				Status:       chat.SessionStatus(d.Status),
			})
		}
		return sessions, nil

	case chat.DomainExpertExpert:
		filter := bson.M{
			"status": confirmed,
			"$or": bson.A{
				bson.M{"expertId": key},
				bson.M{"peerExpertId": key},
			},
		}
		var docs []expertSessionDocument
		if err := s.findAll(ctx, s.expertSessions, filter, &docs); err != nil {
			return nil, err
		}
		sessions := make([]chat.Session, 0, len(docs))
		for _, d := range docs {
			sessions = append(sessions, chat.Session{
				Domain:       chat.DomainExpertExpert,
				ParticipantA: idString(d.ExpertID),
				ParticipantB: idString(d.PeerExpertID),
				Status:       chat.SessionStatus(d.Status),
			})
		}
		return sessions, nil

	default:
		return nil, fmt.Errorf("unknown domain %q", domain)
	}
}

// PutSession writes a pairing in the booking backend's document shape.
// Used by operator tooling and tests; production sessions come from booking.
func (s *Store) PutSession(ctx context.Context, sess chat.Session) error {
	status := string(sess.Status)
	if status == "" {
		status = string(chat.SessionConfirmed)
	}

	var (
		coll *mongo.Collection
		doc  any
	)
	switch sess.Domain {
	case chat.DomainUserExpert:
		coll = s.userExpertSessions
		doc = userExpertSessionDocument{UserID: participantKey(sess.ParticipantA), ExpertID: participantKey(sess.ParticipantB), Status: status}
	case chat.DomainExpertExpert:
		coll = s.expertSessions
		doc = expertSessionDocument{ExpertID: participantKey(sess.ParticipantA), PeerExpertID: participantKey(sess.ParticipantB), Status: status}
	default:
		return fmt.Errorf("unknown domain %q", sess.Domain)
	}

	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return unavailable("put session", err)
	}
	return nil
}

func (s *Store) findAll(ctx context.Context, coll *mongo.Collection, filter bson.M, out any) error {
	cursor, err := coll.Find(ctx, filter)
	if err != nil {
		return unavailable("find sessions", err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return unavailable("decode sessions", err)
	}
	return nil
}
