package chat

import "time"

// Message is a direct message between exactly one sender and one receiver.
// ID and CreatedAt are assigned by the store on insert.
type Message struct {
	ID          string     `json:"id" bson:"_id"`
	Domain      Domain     `json:"domain" bson:"domain"`
	SenderID    string     `json:"senderId" bson:"senderId"`
	ReceiverID  string     `json:"receiverId" bson:"receiverId"`
	Text        string     `json:"text" bson:"text"`
	Attachments []string   `json:"attachments" bson:"attachments"`
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	IsEdited    bool       `json:"isEdited" bson:"isEdited"`
	EditedAt    *time.Time `json:"editedAt,omitempty" bson:"editedAt,omitempty"`
	Read        bool       `json:"read" bson:"read"`
	ReadAt      *time.Time `json:"readAt,omitempty" bson:"readAt,omitempty"`
}

// Involves reports whether id is the sender or the receiver of m.
func (m Message) Involves(id string) bool {
	return m.SenderID == id || m.ReceiverID == id
}
