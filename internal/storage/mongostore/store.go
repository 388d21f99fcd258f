package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shourk/messaging/backend/internal/model/chat"
)

const (
	messagesCollection           = "messages"
	expertMessagesCollection     = "expertMessages"
	userExpertSessionsCollection = "usertoexpertsessions"
	expertSessionsCollection     = "experttoexpertsessions"
)

// Store talks to the MongoDB database shared with the booking backend.
// Each domain keeps its messages in its own collection, the same ones the
// booking backend reads; session documents are owned by the booking flow
// and only read here.
type Store struct {
	client             *mongo.Client
	messages           *mongo.Collection
	expertMessages     *mongo.Collection
	userExpertSessions *mongo.Collection
	expertSessions     *mongo.Collection
	now                func() time.Time
}

// Connect dials uri and verifies the deployment is reachable.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := New(client.Database(database))
	s.client = client
	return s, nil
}

func New(db *mongo.Database) *Store {
	return &Store{
		messages:           db.Collection(messagesCollection),
		expertMessages:     db.Collection(expertMessagesCollection),
		userExpertSessions: db.Collection(userExpertSessionsCollection),
		expertSessions:     db.Collection(expertSessionsCollection),
		now:                time.Now,
	}
}

// EnsureIndexes creates the indexes the conversation and unread queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for _, coll := range s.messageCollections() {
		_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "senderId", Value: 1}, {Key: "receiverId", Value: 1}, {Key: "createdAt", Value: 1}}},
			{Keys: bson.D{{Key: "receiverId", Value: 1}, {Key: "read", Value: 1}}},
		})
		if err != nil {
			return unavailable("ensure indexes", err)
		}
	}
	return nil
}

// collectionFor maps a domain to its message collection. Messages without a
// domain belong to the user and expert collection.
func (s *Store) collectionFor(domain chat.Domain) *mongo.Collection {
	if domain == chat.DomainExpertExpert {
		return s.expertMessages
	}
	return s.messages
}

func (s *Store) messageCollections() []*mongo.Collection {
	return []*mongo.Collection{s.messages, s.expertMessages}
}

func domainOf(coll *mongo.Collection) chat.Domain {
	if coll.Name() == expertMessagesCollection {
		return chat.DomainExpertExpert
	}
	return chat.DomainUserExpert
}

func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: mongo %s: %w", chat.ErrStoreUnavailable, op, err)
}

// participantKey matches ids written either as ObjectId or as plain strings.
func participantKey(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func idString(v any) string {
	switch x := v.(type) {
	case primitive.ObjectID:
		return x.Hex()
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// DropDatabase removes every collection; only used against disposable test databases.
func (s *Store) DropDatabase(ctx context.Context) error {
	return s.messages.Database().Drop(ctx)
}
