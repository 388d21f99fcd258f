package badgerstore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/shourk/messaging/backend/internal/model/chat"
)

// maxConflictRetries bounds how often a transaction is replayed after
// badger reports a write conflict.
const maxConflictRetries = 5

// Store keeps messages and session pairings in an embedded BadgerDB.
//
// Key layout:
//
//	msg:{id}                                   bson encoded message
//	conv:{lo}|{hi}:{created_nanos_padded}:{id} ordering index, value is id
//	inbox:{receiver}:{sender}:{id}             present while the message is unread
//	session:{domain}:{self}:{other}            bson encoded session, written for both sides
type Store struct {
	db  *badger.DB
	log zerolog.Logger
	now func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source used for createdAt, editedAt and readAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens (or creates) a badger database at path.
func Open(path string, log zerolog.Logger, opts ...Option) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return New(db, log, opts...), nil
}

func New(db *badger.DB, log zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		db:  db,
		log: log.With().Str("component", "badgerstore").Logger(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	return s.db.Close()
}

// timestamp is truncated to the millisecond so values survive a bson round trip.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// update runs fn in a read-write transaction, replaying it on conflict.
// fn must reset any captured state at its start.
func (s *Store) update(op string, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		s.log.Debug().Str("op", op).Int("attempt", attempt+1).Msg("transaction conflict, retrying")
	}
	if err != nil {
		return unavailable(op, err)
	}
	return nil
}

func (s *Store) view(op string, fn func(txn *badger.Txn) error) error {
	if err := s.db.View(fn); err != nil {
		return unavailable(op, err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: badger %s: %w", chat.ErrStoreUnavailable, op, err)
}

// segment encodes one participant id for use inside a key. Hex output never
// contains the ':' and '|' separators, so two different id tuples cannot
// share a prefix.
func segment(id string) string {
	return hex.EncodeToString([]byte(id))
}

func unsegment(seg string) (string, bool) {
	raw, err := hex.DecodeString(seg)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// scanKeys collects every key under prefix without fetching values.
func scanKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}
