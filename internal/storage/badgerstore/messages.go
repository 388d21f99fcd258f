package badgerstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/shourk/messaging/backend/internal/model/chat"
)

var _ chat.MessageStore = (*Store)(nil)

func msgKey(id string) []byte {
	return []byte("msg:" + id)
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return segment(a) + "|" + segment(b)
}

func convPrefix(a, b string) []byte {
	return []byte("conv:" + pairKey(a, b) + ":")
}

func convKey(m chat.Message) []byte {
	return []byte(fmt.Sprintf("conv:%s:%019d:%s", pairKey(m.SenderID, m.ReceiverID), m.CreatedAt.UnixNano(), m.ID))
}

func inboxPrefix(receiverID string) []byte {
	return []byte("inbox:" + segment(receiverID) + ":")
}

func inboxSenderPrefix(receiverID, senderID string) []byte {
	return []byte("inbox:" + segment(receiverID) + ":" + segment(senderID) + ":")
}

// inboxKey is inbox:{receiver}:{sender}:{domain}:{id}, present while unread.
func inboxKey(m chat.Message) []byte {
	return []byte("inbox:" + segment(m.ReceiverID) + ":" + segment(m.SenderID) + ":" + string(m.Domain) + ":" + m.ID)
}

func (s *Store) ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Store) Insert(_ context.Context, msg chat.Message) (chat.Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return chat.Message{}, unavailable("insert", err)
	}
	msg.ID = id.String()
	msg.CreatedAt = s.timestamp()
	msg.IsEdited, msg.EditedAt = false, nil
	msg.Read, msg.ReadAt = false, nil
	if msg.Attachments == nil {
		msg.Attachments = []string{}
	}

	data, err := bson.Marshal(msg)
	if err != nil {
		return chat.Message{}, fmt.Errorf("encode message: %w", err)
	}

	err = s.update("insert", func(txn *badger.Txn) error {
		if err := txn.Set(msgKey(msg.ID), data); err != nil {
			return err
		}
		if err := txn.Set(convKey(msg), []byte(msg.ID)); err != nil {
			return err
		}
		return txn.Set(inboxKey(msg), nil)
	})
	if err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

func (s *Store) FindConversation(ctx context.Context, a, b string) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := []chat.Message{}
	err := s.view("find conversation", func(txn *badger.Txn) error {
		prefix := convPrefix(a, b)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			msg, found, err := getMessage(txn, string(id))
			if err != nil {
				return err
			}
			if !found {
				s.log.Warn().Str("id", string(id)).Msg("dangling conversation index entry")
				continue
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (chat.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return chat.Message{}, false, err
	}

	var (
		msg   chat.Message
		found bool
	)
	err := s.view("find by id", func(txn *badger.Txn) error {
		var err error
		msg, found, err = getMessage(txn, id)
		return err
	})
	return msg, found, err
}

func (s *Store) UpdateText(_ context.Context, id, text string) (chat.Message, bool, error) {
	var (
		msg   chat.Message
		found bool
	)
	err := s.update("update text", func(txn *badger.Txn) error {
		var err error
		msg, found, err = getMessage(txn, id)
		if err != nil || !found {
			return err
		}
		editedAt := s.timestamp()
		msg.Text = text
		msg.IsEdited = true
		msg.EditedAt = &editedAt
		return putMessage(txn, msg)
	})
	if err != nil {
		return chat.Message{}, false, err
	}
	return msg, found, nil
}

func (s *Store) DeleteOne(_ context.Context, id string) (bool, error) {
	var deleted bool
	err := s.update("delete one", func(txn *badger.Txn) error {
		msg, found, err := getMessage(txn, id)
		deleted = false
		if err != nil || !found {
			return err
		}
		if err := deleteMessage(txn, msg); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *Store) DeletePair(_ context.Context, a, b string) (int, error) {
	var count int
	err := s.update("delete pair", func(txn *badger.Txn) error {
		count = 0
		for _, key := range scanKeys(txn, convPrefix(a, b)) {
			msg, found, err := getMessage(txn, idFromKey(key))
			if err != nil {
				return err
			}
			if !found {
				if err := txn.Delete(key); err != nil {
					return err
				}
				continue
			}
			if err := deleteMessage(txn, msg); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) MarkReadFromSender(_ context.Context, receiverID, senderID string) (int, error) {
	prefix := inboxSenderPrefix(receiverID, senderID)
	var count int
	err := s.update("mark read", func(txn *badger.Txn) error {
		count = 0
		readAt := s.timestamp()
		for _, key := range scanKeys(txn, prefix) {
			msg, found, err := getMessage(txn, idFromKey(key))
			if err != nil {
				return err
			}
			if found && !msg.Read {
				msg.Read = true
				msg.ReadAt = &readAt
				if err := putMessage(txn, msg); err != nil {
					return err
				}
				count++
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) UnreadCountsFor(ctx context.Context, receiverID string, domain chat.Domain) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := map[string]int{}
	prefix := inboxPrefix(receiverID)
	err := s.view("unread counts", func(txn *badger.Txn) error {
		for _, key := range scanKeys(txn, prefix) {
			parts := strings.SplitN(string(bytes.TrimPrefix(key, prefix)), ":", 3)
			if len(parts) != 3 || chat.Domain(parts[1]) != domain {
				continue
			}
			sender, ok := unsegment(parts[0])
			if !ok {
				continue
			}
			counts[sender]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// All returns every stored message ordered by id, which for v7 ids is insertion order.
func (s *Store) All(ctx context.Context) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := []chat.Message{}
	err := s.view("list messages", func(txn *badger.Txn) error {
		prefix := []byte("msg:")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg chat.Message
			err := it.Item().Value(func(val []byte) error {
				return bson.Unmarshal(val, &msg)
			})
			if err != nil {
				return err
			}
			if msg.Attachments == nil {
				msg.Attachments = []string{}
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func getMessage(txn *badger.Txn, id string) (chat.Message, bool, error) {
	item, err := txn.Get(msgKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return chat.Message{}, false, nil
	}
	if err != nil {
		return chat.Message{}, false, err
	}

	var msg chat.Message
	err = item.Value(func(val []byte) error {
		return bson.Unmarshal(val, &msg)
	})
	if err != nil {
		return chat.Message{}, false, fmt.Errorf("decode message %s: %w", id, err)
	}
	if msg.Attachments == nil {
		msg.Attachments = []string{}
	}
	return msg, true, nil
}

func putMessage(txn *badger.Txn, msg chat.Message) error {
	data, err := bson.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", msg.ID, err)
	}
	return txn.Set(msgKey(msg.ID), data)
}

func deleteMessage(txn *badger.Txn, msg chat.Message) error {
	for _, key := range [][]byte{msgKey(msg.ID), convKey(msg), inboxKey(msg)} {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// idFromKey returns the trailing id segment of an index key.
func idFromKey(key []byte) string {
	i := bytes.LastIndexByte(key, ':')
	return string(key[i+1:])
}
