package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/shourk/messaging/backend/internal/model/chat"
	"github.com/shourk/messaging/backend/internal/service/session"
)

var (
	ErrUnauthorized   = errors.New("no confirmed session with this participant")
	ErrForbidden      = errors.New("caller does not own this resource")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrNotFound       = errors.New("message not found")
)

// ErrStoreUnavailable is re-exported so transports can map it without
// importing the model package.
var ErrStoreUnavailable = chat.ErrStoreUnavailable

const maxTextLength = 10000

// Authorizer is the session guard as seen by the service.
type Authorizer interface {
	AuthorizedCounterparts(ctx context.Context, caller chat.Caller, domain chat.Domain) (session.Set, error)
	IsAuthorized(ctx context.Context, caller chat.Caller, otherID string, domain chat.Domain) (bool, error)
}

// DeleteResult reports the outcome of a delete. AlreadyDeleted is a
// success, not an error: the target was gone before the call.
type DeleteResult struct {
	Deleted        int
	AlreadyDeleted bool
}

// Counterpart is one entry of a caller's conversation list.
type Counterpart struct {
	ID     string `json:"id"`
	Online bool   `json:"online"`
	Unread int    `json:"unread"`
}

type sendInput struct {
	ReceiverID  string   `validate:"required,max=128"`
	Text        string   `validate:"max=10000"`
	Attachments []string `validate:"max=20,dive,required,max=2048"`
}

type participantInput struct {
	ID string `validate:"required,max=128"`
}

// Service owns the message lifecycle: authorize, mutate the store, then
// notify the counterpart.
type Service struct {
	store    chat.MessageStore
	guard    Authorizer
	notifier Notifier
	presence Presence
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

// NewService wires the lifecycle manager. presence may be nil, in which
// case every counterpart reports offline.
func NewService(store chat.MessageStore, guard Authorizer, notifier Notifier, presence Presence, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		guard:    guard,
		notifier: notifier,
		presence: presence,
		validate: validator.New(),
		log:      log.With().Str("component", "chat").Logger(),
		now:      time.Now,
	}
}

// Send stores a new message from caller to receiverID and notifies the receiver.
func (s *Service) Send(ctx context.Context, caller chat.Caller, receiverID, text string, attachments []string, domain chat.Domain) (chat.Message, error) {
	if err := s.checkCaller(caller); err != nil {
		return chat.Message{}, err
	}
	if err := s.validate.Struct(sendInput{ReceiverID: receiverID, Text: text, Attachments: attachments}); err != nil {
		return chat.Message{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return chat.Message{}, fmt.Errorf("%w: message needs text or attachments", ErrInvalidPayload)
	}

	if err := s.authorize(ctx, caller, receiverID, domain); err != nil {
		return chat.Message{}, err
	}

	stored, err := s.store.Insert(context.WithoutCancel(ctx), chat.Message{
		Domain:      domain,
		SenderID:    caller.ID,
		ReceiverID:  receiverID,
		Text:        text,
		Attachments: slices.Clone(attachments),
	})
	if err != nil {
		s.log.Error().Err(err).Str("sender", caller.ID).Str("receiver", receiverID).Msg("insert message")
		return chat.Message{}, err
	}

	s.notifier.Notify(receiverID, chat.EventMessageCreated, stored)
	return stored, nil
}

// Edit replaces the text of a message the caller sent.
func (s *Service) Edit(ctx context.Context, caller chat.Caller, messageID, newText string) (chat.Message, error) {
	if err := s.checkCaller(caller); err != nil {
		return chat.Message{}, err
	}
	if !s.store.ValidID(messageID) {
		return chat.Message{}, fmt.Errorf("%w: malformed message id", ErrInvalidPayload)
	}

	existing, found, err := s.store.FindByID(ctx, messageID)
	if err != nil {
		return chat.Message{}, err
	}
	if !found {
		return chat.Message{}, ErrNotFound
	}
	if existing.SenderID != caller.ID {
		return chat.Message{}, ErrForbidden
	}
	if len(newText) > maxTextLength {
		return chat.Message{}, fmt.Errorf("%w: text exceeds %d bytes", ErrInvalidPayload, maxTextLength)
	}
	if strings.TrimSpace(newText) == "" && len(existing.Attachments) == 0 {
		return chat.Message{}, fmt.Errorf("%w: message needs text or attachments", ErrInvalidPayload)
	}

	updated, found, err := s.store.UpdateText(context.WithoutCancel(ctx), messageID, newText)
	if err != nil {
		s.log.Error().Err(err).Str("message", messageID).Msg("update message text")
		return chat.Message{}, err
	}
	if !found {
		// removed between the ownership check and the update
		return chat.Message{}, ErrNotFound
	}

	s.notifier.Notify(updated.ReceiverID, chat.EventMessageEdited, chat.NewMessageEdited(updated))
	return updated, nil
}

// DeleteOne removes a message the caller sent. Deleting a message that no
// longer exists succeeds with AlreadyDeleted set.
func (s *Service) DeleteOne(ctx context.Context, caller chat.Caller, messageID string) (DeleteResult, error) {
	if err := s.checkCaller(caller); err != nil {
		return DeleteResult{}, err
	}
	if !s.store.ValidID(messageID) {
		return DeleteResult{}, fmt.Errorf("%w: malformed message id", ErrInvalidPayload)
	}

	existing, found, err := s.store.FindByID(ctx, messageID)
	if err != nil {
		return DeleteResult{}, err
	}
	if !found {
		return DeleteResult{AlreadyDeleted: true}, nil
	}
	if existing.SenderID != caller.ID {
		return DeleteResult{}, ErrForbidden
	}

	deleted, err := s.store.DeleteOne(context.WithoutCancel(ctx), messageID)
	if err != nil {
		s.log.Error().Err(err).Str("message", messageID).Msg("delete message")
		return DeleteResult{}, err
	}
	if !deleted {
		return DeleteResult{AlreadyDeleted: true}, nil
	}

	s.notifier.Notify(existing.ReceiverID, chat.EventMessageDeleted, chat.MessageDeleted{
		MessageID: messageID,
		ActorID:   caller.ID,
	})
	return DeleteResult{Deleted: 1}, nil
}

// DeleteConversation removes every message between actorID and
// counterpartID in both directions. actorID must be the caller.
func (s *Service) DeleteConversation(ctx context.Context, caller chat.Caller, actorID, counterpartID string) (DeleteResult, error) {
	if err := s.checkCaller(caller); err != nil {
		return DeleteResult{}, err
	}
	if actorID != caller.ID {
		return DeleteResult{}, ErrForbidden
	}
	if err := s.validate.Struct(participantInput{ID: counterpartID}); err != nil {
		return DeleteResult{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	n, err := s.store.DeletePair(context.WithoutCancel(ctx), actorID, counterpartID)
	if err != nil {
		s.log.Error().Err(err).Str("actor", actorID).Str("counterpart", counterpartID).Msg("delete conversation")
		return DeleteResult{}, err
	}
	if n == 0 {
		return DeleteResult{AlreadyDeleted: true}, nil
	}

	s.notifier.Notify(counterpartID, chat.EventConversationCleared, chat.ConversationCleared{ClearedBy: caller.ID})
	return DeleteResult{Deleted: n}, nil
}

// MarkRead flags every unread message from senderID to the caller as read
// and tells the sender. Calling it again changes nothing and returns 0.
func (s *Service) MarkRead(ctx context.Context, caller chat.Caller, senderID string, domain chat.Domain) (int, error) {
	if err := s.checkCaller(caller); err != nil {
		return 0, err
	}
	if err := s.validate.Struct(participantInput{ID: senderID}); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := s.authorize(ctx, caller, senderID, domain); err != nil {
		return 0, err
	}

	n, err := s.store.MarkReadFromSender(context.WithoutCancel(ctx), caller.ID, senderID)
	if err != nil {
		s.log.Error().Err(err).Str("receiver", caller.ID).Str("sender", senderID).Msg("mark read")
		return 0, err
	}

	s.notifier.Notify(senderID, chat.EventMessagesRead, chat.MessagesRead{
		ReadBy:    caller.ID,
		Timestamp: s.now().UTC(),
	})
	return n, nil
}

// UnreadCounts maps each sender to the number of unread messages the caller
// has from them in domain. A user asking about expert_expert gets nothing.
func (s *Service) UnreadCounts(ctx context.Context, caller chat.Caller, domain chat.Domain) (map[string]int, error) {
	if err := s.checkCaller(caller); err != nil {
		return nil, err
	}
	if !domain.Valid() {
		return nil, fmt.Errorf("%w: unknown domain %q", ErrInvalidPayload, domain)
	}
	if !domain.Allows(caller.Role) {
		return map[string]int{}, nil
	}
	return s.store.UnreadCountsFor(ctx, caller.ID, domain)
}

// Conversation returns the history between the caller and counterpartID, oldest first.
func (s *Service) Conversation(ctx context.Context, caller chat.Caller, counterpartID string, domain chat.Domain) ([]chat.Message, error) {
	if err := s.checkCaller(caller); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(participantInput{ID: counterpartID}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := s.authorize(ctx, caller, counterpartID, domain); err != nil {
		return nil, err
	}

	messages, err := s.store.FindConversation(ctx, caller.ID, counterpartID)
	if err != nil {
		return nil, err
	}
	// both domains share a store; keep only this domain's history
	return lo.Filter(messages, func(m chat.Message, _ int) bool {
		return m.Domain == domain || m.Domain == ""
	}), nil
}

// Counterparts lists everyone the caller may message in domain, with
// presence and unread counts.
func (s *Service) Counterparts(ctx context.Context, caller chat.Caller, domain chat.Domain) ([]Counterpart, error) {
	if err := s.checkCaller(caller); err != nil {
		return nil, err
	}
	if !domain.Valid() {
		return nil, fmt.Errorf("%w: unknown domain %q", ErrInvalidPayload, domain)
	}

	set, err := s.guard.AuthorizedCounterparts(ctx, caller, domain)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return []Counterpart{}, nil
	}
	unread, err := s.store.UnreadCountsFor(ctx, caller.ID, domain)
	if err != nil {
		return nil, err
	}

	return lo.Map(set.IDs(), func(id string, _ int) Counterpart {
		return Counterpart{
			ID:     id,
			Online: s.presence != nil && s.presence.IsPresent(id),
			Unread: unread[id],
		}
	}), nil
}

func (s *Service) authorize(ctx context.Context, caller chat.Caller, otherID string, domain chat.Domain) error {
	if !domain.Valid() {
		return fmt.Errorf("%w: unknown domain %q", ErrInvalidPayload, domain)
	}
	ok, err := s.guard.IsAuthorized(ctx, caller, otherID, domain)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// checkCaller rejects an identity the boundary failed to resolve.
func (s *Service) checkCaller(caller chat.Caller) error {
	if !caller.Valid() {
		return ErrUnauthorized
	}
	return nil
}
