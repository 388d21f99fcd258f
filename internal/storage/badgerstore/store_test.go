package badgerstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/shourk/messaging/backend/internal/model/chat"
	"github.com/shourk/messaging/backend/internal/storage/badgerstore"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func openStore(t *testing.T) *badgerstore.Store {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := &stepClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	return badgerstore.New(db, zerolog.Nop(), badgerstore.WithClock(clock.Now))
}

func insert(t *testing.T, s *badgerstore.Store, from, to, text string) chat.Message {
	t.Helper()
	msg, err := s.Insert(context.Background(), chat.Message{
		Domain:     chat.DomainUserExpert,
		SenderID:   from,
		ReceiverID: to,
		Text:       text,
	})
	require.NoError(t, err)
	return msg
}

func Test_Insert_Assigns_Id_And_Defaults(t *testing.T) {
	req := require.New(t)
	s := openStore(t)

	msg := insert(t, s, "A", "B", "hi")

	req.True(s.ValidID(msg.ID))
	req.False(msg.CreatedAt.IsZero())
	req.False(msg.Read)
	req.False(msg.IsEdited)
	req.Equal([]string{}, msg.Attachments)

	got, found, err := s.FindByID(context.Background(), msg.ID)
	req.NoError(err)
	req.True(found)
	req.Equal(msg.ID, got.ID)
	req.Equal("hi", got.Text)
	req.True(msg.CreatedAt.Equal(got.CreatedAt))
}

func Test_FindConversation_Is_Ordered_And_Symmetric(t *testing.T) {
	req := require.New(t)
	s := openStore(t)

	m1 := insert(t, s, "A", "B", "one")
	m2 := insert(t, s, "B", "A", "two")
	insert(t, s, "A", "C", "elsewhere")
	m3 := insert(t, s, "A", "B", "three")

	ab, err := s.FindConversation(context.Background(), "A", "B")
	req.NoError(err)
	ba, err := s.FindConversation(context.Background(), "B", "A")
	req.NoError(err)

	ids := func(ms []chat.Message) []string {
		out := make([]string, 0, len(ms))
		for _, m := range ms {
			out = append(out, m.ID)
		}
		return out
	}
	req.Equal([]string{m1.ID, m2.ID, m3.ID}, ids(ab))
	req.Equal(ids(ab), ids(ba))
}

func Test_FindConversation_Empty(t *testing.T) {
	req := require.New(t)
	s := openStore(t)

	got, err := s.FindConversation(context.Background(), "A", "B")
	req.NoError(err)
	req.NotNil(got)
	req.Empty(got)
}

func Test_FindByID_Missing(t *testing.T) {
	req := require.New(t)
	s := openStore(t)

	_, found, err := s.FindByID(context.Background(), "0190a2c4-0000-7000-8000-000000000000")
	req.NoError(err)
	req.False(found)
	req.False(s.ValidID("not-an-id"))
}

func Test_UpdateText(t *testing.T) {
	req := require.New(t)
	s := openStore(t)
	msg := insert(t, s, "A", "B", "hello")

	updated, found, err := s.UpdateText(context.Background(), msg.ID, "hello there")
	req.NoError(err)
	req.True(found)
	req.Equal("hello there", updated.Text)
	req.True(updated.IsEdited)
	req.NotNil(updated.EditedAt)
	req.Equal(msg.SenderID, updated.SenderID)
	req.True(msg.CreatedAt.Equal(updated.CreatedAt))

	_, found, err = s.UpdateText(context.Background(), "0190a2c4-0000-7000-8000-000000000000", "x")
	req.NoError(err)
	req.False(found)
}

func Test_DeleteOne(t *testing.T) {
	req := require.New(t)
	s := openStore(t)
	msg := insert(t, s, "A", "B", "bye")

	deleted, err := s.DeleteOne(context.Background(), msg.ID)
	req.NoError(err)
	req.True(deleted)

	deleted, err = s.DeleteOne(context.Background(), msg.ID)
	req.NoError(err)
	req.False(deleted)

	conv, err := s.FindConversation(context.Background(), "A", "B")
	req.NoError(err)
	req.Empty(conv)

	counts, err := s.UnreadCountsFor(context.Background(), "B", chat.DomainUserExpert)
	req.NoError(err)
	req.Empty(counts)
}

func Test_DeletePair_Removes_Both_Directions_Only(t *testing.T) {
	req := require.New(t)
	s := openStore(t)
	insert(t, s, "A", "B", "1")
	insert(t, s, "B", "A", "2")
	keep := insert(t, s, "A", "C", "3")

	n, err := s.DeletePair(context.Background(), "B", "A")
	req.NoError(err)
	req.Equal(2, n)

	n, err = s.DeletePair(context.Background(), "A", "B")
	req.NoError(err)
	req.Zero(n)

	_, found, err := s.FindByID(context.Background(), keep.ID)
	req.NoError(err)
	req.True(found)
}

func Test_MarkRead_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	s := openStore(t)
	insert(t, s, "E", "U", "1")
	insert(t, s, "E", "U", "2")
	insert(t, s, "X", "U", "3")
	insert(t, s, "U", "E", "reply")

	n, err := s.MarkReadFromSender(context.Background(), "U", "E")
	req.NoError(err)
	req.Equal(2, n)

	n, err = s.MarkReadFromSender(context.Background(), "U", "E")
	req.NoError(err)
	req.Zero(n)

	conv, err := s.FindConversation(context.Background(), "U", "E")
	req.NoError(err)
	for _, m := range conv {
		if m.ReceiverID == "U" {
			req.True(m.Read)
			req.NotNil(m.ReadAt)
		} else {
			req.False(m.Read)
		}
	}
}

func Test_UnreadCounts_Groups_By_Sender(t *testing.T) {
	req := require.New(t)
	s := openStore(t)
	insert(t, s, "E1", "U", "1")
	insert(t, s, "E1", "U", "2")
	insert(t, s, "E2", "U", "3")
	insert(t, s, "U", "E1", "mine")

	counts, err := s.UnreadCountsFor(context.Background(), "U", chat.DomainUserExpert)
	req.NoError(err)
	req.Equal(map[string]int{"E1": 2, "E2": 1}, counts)

	_, err = s.MarkReadFromSender(context.Background(), "U", "E1")
	req.NoError(err)

	counts, err = s.UnreadCountsFor(context.Background(), "U", chat.DomainUserExpert)
	req.NoError(err)
	req.Equal(map[string]int{"E2": 1}, counts)
}

func Test_UnreadCounts_Are_Split_By_Domain(t *testing.T) {
	req := require.New(t)
	s := openStore(t)
	ctx := context.Background()
	insert(t, s, "U1", "E1", "from user")
	_, err := s.Insert(ctx, chat.Message{Domain: chat.DomainExpertExpert, SenderID: "E2", ReceiverID: "E1", Text: "from peer"})
	req.NoError(err)

	userSide, err := s.UnreadCountsFor(ctx, "E1", chat.DomainUserExpert)
	req.NoError(err)
	req.Equal(map[string]int{"U1": 1}, userSide)

	expertSide, err := s.UnreadCountsFor(ctx, "E1", chat.DomainExpertExpert)
	req.NoError(err)
	req.Equal(map[string]int{"E2": 1}, expertSide)
}

func Test_Separator_Characters_In_Ids_Do_Not_Collide(t *testing.T) {
	req := require.New(t)
	s := openStore(t)
	ctx := context.Background()

	// Given ids that contain the key separators
	victim := insert(t, s, "a|b", "c", "keep me")
	insert(t, s, "S", "R:x", "not for R")

	// When another tuple that would join to the same text clears its conversation
	n, err := s.DeletePair(ctx, "a", "b|c")
	req.NoError(err)
	req.Zero(n)

	// Then the unrelated conversation survives
	conv, err := s.FindConversation(ctx, "a|b", "c")
	req.NoError(err)
	req.Len(conv, 1)
	req.Equal(victim.ID, conv[0].ID)

	// And a receiver whose id is a prefix of another sees nothing of it
	counts, err := s.UnreadCountsFor(ctx, "R", chat.DomainUserExpert)
	req.NoError(err)
	req.Empty(counts)

	marked, err := s.MarkReadFromSender(ctx, "R", "x")
	req.NoError(err)
	req.Zero(marked)

	counts, err = s.UnreadCountsFor(ctx, "R:x", chat.DomainUserExpert)
	req.NoError(err)
	req.Equal(map[string]int{"S": 1}, counts)
}

func Test_Sessions_With_Separator_Ids_Stay_Distinct(t *testing.T) {
	req := require.New(t)
	s := openStore(t)
	ctx := context.Background()

	req.NoError(s.PutSession(ctx, chat.Session{Domain: chat.DomainUserExpert, ParticipantA: "auth0|u:1", ParticipantB: "E1"}))

	got, err := s.ConfirmedSessions(ctx, chat.DomainUserExpert, chat.Caller{ID: "auth0|u", Role: chat.RoleUser})
	req.NoError(err)
	req.Empty(got)

	got, err = s.ConfirmedSessions(ctx, chat.DomainUserExpert, chat.Caller{ID: "auth0|u:1", Role: chat.RoleUser})
	req.NoError(err)
	req.Len(got, 1)
}

func Test_All_Lists_In_Insert_Order(t *testing.T) {
	req := require.New(t)
	s := openStore(t)
	m1 := insert(t, s, "A", "B", "1")
	m2 := insert(t, s, "C", "D", "2")

	all, err := s.All(context.Background())
	req.NoError(err)
	req.Len(all, 2)
	req.Equal(m1.ID, all[0].ID)
	req.Equal(m2.ID, all[1].ID)
}

func Test_Sessions_Are_Direction_Agnostic(t *testing.T) {
	req := require.New(t)
	s := openStore(t)
	ctx := context.Background()

	req.NoError(s.PutSession(ctx, chat.Session{Domain: chat.DomainExpertExpert, ParticipantA: "E1", ParticipantB: "E2", Status: chat.SessionConfirmed}))
	req.NoError(s.PutSession(ctx, chat.Session{Domain: chat.DomainExpertExpert, ParticipantA: "E3", ParticipantB: "E1", Status: chat.SessionPending}))
	req.NoError(s.PutSession(ctx, chat.Session{Domain: chat.DomainUserExpert, ParticipantA: "U1", ParticipantB: "E1"}))

	fromE2, err := s.ConfirmedSessions(ctx, chat.DomainExpertExpert, chat.Caller{ID: "E2", Role: chat.RoleExpert})
	req.NoError(err)
	req.Len(fromE2, 1)
	other, ok := fromE2[0].Counterpart("E2")
	req.True(ok)
	req.Equal("E1", other)

	fromE1, err := s.ConfirmedSessions(ctx, chat.DomainExpertExpert, chat.Caller{ID: "E1", Role: chat.RoleExpert})
	req.NoError(err)
	req.Len(fromE1, 1)

	all, err := s.Sessions(ctx, chat.DomainExpertExpert, "E1")
	req.NoError(err)
	req.Len(all, 2)

	ue, err := s.ConfirmedSessions(ctx, chat.DomainUserExpert, chat.Caller{ID: "E1", Role: chat.RoleExpert})
	req.NoError(err)
	req.Len(ue, 1)
	req.Equal(chat.SessionConfirmed, ue[0].Status)
}

func Test_PutSession_Rejects_Self_Pairing(t *testing.T) {
	req := require.New(t)
	s := openStore(t)

	err := s.PutSession(context.Background(), chat.Session{Domain: chat.DomainUserExpert, ParticipantA: "A", ParticipantB: "A"})
	req.ErrorIs(err, badgerstore.ErrInvalidSession)
}
