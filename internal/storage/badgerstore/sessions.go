package badgerstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/shourk/messaging/backend/internal/model/chat"
)

var _ chat.SessionSource = (*Store)(nil)

var ErrInvalidSession = errors.New("session needs a known domain and two distinct participants")

func sessionPrefix(domain chat.Domain, self string) []byte {
	return []byte("session:" + string(domain) + ":" + segment(self) + ":")
}

func sessionKey(domain chat.Domain, self, other string) []byte {
	return []byte("session:" + string(domain) + ":" + segment(self) + ":" + segment(other))
}

// PutSession upserts a pairing. It is indexed under both participants so
// lookups do not depend on which side was stored first.
func (s *Store) PutSession(_ context.Context, sess chat.Session) error {
	if !sess.Domain.Valid() || sess.ParticipantA == "" || sess.ParticipantB == "" || sess.ParticipantA == sess.ParticipantB {
		return ErrInvalidSession
	}
	if sess.Status == "" {
		sess.Status = chat.SessionConfirmed
	}

	data, err := bson.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.update("put session", func(txn *badger.Txn) error {
		if err := txn.Set(sessionKey(sess.Domain, sess.ParticipantA, sess.ParticipantB), data); err != nil {
			return err
		}
		return txn.Set(sessionKey(sess.Domain, sess.ParticipantB, sess.ParticipantA), data)
	})
}

// Sessions lists every pairing of participantID in domain regardless of status.
func (s *Store) Sessions(ctx context.Context, domain chat.Domain, participantID string) ([]chat.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sessions := []chat.Session{}
	prefix := sessionPrefix(domain, participantID)
	err := s.view("list sessions", func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var sess chat.Session
			err := it.Item().Value(func(val []byte) error {
				return bson.Unmarshal(val, &sess)
			})
			if err != nil {
				return err
			}
			sessions = append(sessions, sess)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// ConfirmedSessions keys on participant id alone; the role is only
// meaningful to stores that keep users and experts in separate fields.
func (s *Store) ConfirmedSessions(ctx context.Context, domain chat.Domain, caller chat.Caller) ([]chat.Session, error) {
	all, err := s.Sessions(ctx, domain, caller.ID)
	if err != nil {
		return nil, err
	}

	confirmed := all[:0]
	for _, sess := range all {
		if sess.Status == chat.SessionConfirmed {
			confirmed = append(confirmed, sess)
		}
	}
	return confirmed, nil
}
