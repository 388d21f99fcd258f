package mongostore

import (
	"context"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shourk/messaging/backend/internal/model/chat"
)

var _ chat.MessageStore = (*Store)(nil)

// messageDocument matches what the booking backend writes: participant ids
// are ObjectIds when they parse as one. The domain is implied by the
// collection.
type messageDocument struct {
	ID          primitive.ObjectID `bson:"_id"`
	SenderID    any                `bson:"senderId"`
	ReceiverID  any                `bson:"receiverId"`
	Text        string             `bson:"text"`
	Attachments []string           `bson:"attachments"`
	CreatedAt   time.Time          `bson:"createdAt"`
	IsEdited    bool               `bson:"isEdited"`
	EditedAt    *time.Time         `bson:"editedAt,omitempty"`
	Read        bool               `bson:"read"`
	ReadAt      *time.Time         `bson:"readAt,omitempty"`
}

func (d messageDocument) toMessage(domain chat.Domain) chat.Message {
	attachments := d.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	return chat.Message{
		ID:          d.ID.Hex(),
		Domain:      domain,
		SenderID:    idString(d.SenderID),
		ReceiverID:  idString(d.ReceiverID),
		Text:        d.Text,
		Attachments: attachments,
		CreatedAt:   d.CreatedAt.UTC(),
		IsEdited:    d.IsEdited,
		EditedAt:    utcPtr(d.EditedAt),
		Read:        d.Read,
		ReadAt:      utcPtr(d.ReadAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func pairFilter(a, b string) bson.M {
	ka, kb := participantKey(a), participantKey(b)
	return bson.M{"$or": bson.A{
		bson.M{"senderId": ka, "receiverId": kb},
		bson.M{"senderId": kb, "receiverId": ka},
	}}
}

func (s *Store) ValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

func (s *Store) Insert(ctx context.Context, msg chat.Message) (chat.Message, error) {
	doc := messageDocument{
		ID:          primitive.NewObjectID(),
		SenderID:    participantKey(msg.SenderID),
		ReceiverID:  participantKey(msg.ReceiverID),
		Text:        msg.Text,
		Attachments: msg.Attachments,
		CreatedAt:   s.timestamp(),
	}
	if doc.Attachments == nil {
		doc.Attachments = []string{}
	}
	coll := s.collectionFor(msg.Domain)
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return chat.Message{}, unavailable("insert", err)
	}
	return doc.toMessage(domainOf(coll)), nil
}

// FindConversation reads both collections; a pair normally lives in only one.
func (s *Store) FindConversation(ctx context.Context, a, b string) ([]chat.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	messages := []chat.Message{}
	for _, coll := range s.messageCollections() {
		cursor, err := coll.Find(ctx, pairFilter(a, b), opts)
		if err != nil {
			return nil, unavailable("find conversation", err)
		}
		var docs []messageDocument
		if err := cursor.All(ctx, &docs); err != nil {
			return nil, unavailable("decode conversation", err)
		}
		for _, d := range docs {
			messages = append(messages, d.toMessage(domainOf(coll)))
		}
	}
	slices.SortStableFunc(messages, func(x, y chat.Message) int {
		return x.CreatedAt.Compare(y.CreatedAt)
	})
	return messages, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (chat.Message, bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return chat.Message{}, false, nil
	}

	for _, coll := range s.messageCollections() {
		var doc messageDocument
		err = coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
		if isNoDocuments(err) {
			continue
		}
		if err != nil {
			return chat.Message{}, false, unavailable("find by id", err)
		}
		return doc.toMessage(domainOf(coll)), true, nil
	}
	return chat.Message{}, false, nil
}

func (s *Store) UpdateText(ctx context.Context, id, text string) (chat.Message, bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return chat.Message{}, false, nil
	}

	update := bson.M{"$set": bson.M{
		"text":     text,
		"isEdited": true,
		"editedAt": s.timestamp(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	for _, coll := range s.messageCollections() {
		var doc messageDocument
		err = coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc)
		if isNoDocuments(err) {
			continue
		}
		if err != nil {
			return chat.Message{}, false, unavailable("update text", err)
		}
		return doc.toMessage(domainOf(coll)), true, nil
	}
	return chat.Message{}, false, nil
}

func (s *Store) DeleteOne(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	for _, coll := range s.messageCollections() {
		res, err := coll.DeleteOne(ctx, bson.M{"_id": oid})
		if err != nil {
			return false, unavailable("delete one", err)
		}
		if res.DeletedCount > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) DeletePair(ctx context.Context, a, b string) (int, error) {
	var total int
	for _, coll := range s.messageCollections() {
		res, err := coll.DeleteMany(ctx, pairFilter(a, b))
		if err != nil {
			return 0, unavailable("delete pair", err)
		}
		total += int(res.DeletedCount)
	}
	return total, nil
}

func (s *Store) MarkReadFromSender(ctx context.Context, receiverID, senderID string) (int, error) {
	filter := bson.M{
		"receiverId": participantKey(receiverID),
		"senderId":   participantKey(senderID),
		"read":       bson.M{"$ne": true},
	}
	update := bson.M{"$set": bson.M{"read": true, "readAt": s.timestamp()}}

	var total int
	for _, coll := range s.messageCollections() {
		res, err := coll.UpdateMany(ctx, filter, update)
		if err != nil {
			return 0, unavailable("mark read", err)
		}
		total += int(res.ModifiedCount)
	}
	return total, nil
}

func (s *Store) UnreadCountsFor(ctx context.Context, receiverID string, domain chat.Domain) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "receiverId", Value: participantKey(receiverID)},
			{Key: "read", Value: bson.D{{Key: "$ne", Value: true}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$senderId"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := s.collectionFor(domain).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, unavailable("unread counts", err)
	}

	var rows []struct {
		SenderID any `bson:"_id"`
		Count    int `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, unavailable("decode unread counts", err)
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[idString(r.SenderID)] = r.Count
	}
	return counts, nil
}
