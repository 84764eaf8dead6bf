// Package chat implements one-to-one conversations between users and the
// coach: sending, listing and read receipts.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"lifecoach/backend/internal/apperr"
	"lifecoach/backend/internal/domain"
	"lifecoach/backend/internal/events"
	"lifecoach/backend/internal/store"
)

var tracer = otel.Tracer("lifecoach/chat")

const maxSendAttempts = 3

// Realtime pushes a payload to every live connection of a user.
type Realtime interface {
	Deliver(userID string, v any)
}

// Envelope is what realtime subscribers receive.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type ReadReceipt struct {
	ConversationID string   `json:"conversationId"`
	UserID         string   `json:"userId"`
	MessageIDs     []string `json:"messageIds"`
}

type SendInput struct {
	SenderID   string
	ReceiverID string
	Content    string
	Type       domain.MessageType
}

type Service struct {
	repo store.ChatRepository
	pub  events.Publisher
	rt   Realtime
	now  func() time.Time
	log  *slog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithRealtime(rt Realtime) Option {
	return func(s *Service) { s.rt = rt }
}

func NewService(repo store.ChatRepository, pub events.Publisher, log *slog.Logger, opts ...Option) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		repo: repo,
		pub:  pub,
		now:  time.Now,
		log:  log.With(slog.String("component", "chat")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) FetchConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation("user_id is required")
	}
	convs, err := s.repo.ListConversations(ctx, userID)
	if err != nil {
		return nil, apperr.Remote("list conversations", err)
	}
	sort.SliceStable(convs, func(i, j int) bool {
		if !convs[i].LastMessageTime.Equal(convs[j].LastMessageTime) {
			return convs[i].LastMessageTime.After(convs[j].LastMessageTime)
		}
		return convs[i].ID < convs[j].ID
	})
	return convs, nil
}

// FetchMessages returns the conversation's messages oldest first. A
// non-empty viewerID must be one of the participants.
func (s *Service) FetchMessages(ctx context.Context, conversationID, viewerID string) ([]domain.Message, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, apperr.Validation("conversation_id is required")
	}
	conv, _, err := s.repo.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("conversation", conversationID)
	}
	if err != nil {
		return nil, apperr.Remote("get conversation", err)
	}
	if viewerID != "" && !conv.HasParticipant(viewerID) {
		return nil, apperr.NotFound("conversation", conversationID)
	}

	msgs, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, apperr.Remote("list messages", err)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs, nil
}

func (s *Service) SendMessage(ctx context.Context, in SendInput) (domain.Message, error) {
	in.SenderID = strings.TrimSpace(in.SenderID)
	in.ReceiverID = strings.TrimSpace(in.ReceiverID)
	if in.Type == "" {
		in.Type = domain.MessageText
	}
	switch {
	case in.SenderID == "":
		return domain.Message{}, apperr.Validation("sender_id is required")
	case in.ReceiverID == "":
		return domain.Message{}, apperr.Validation("receiver_id is required")
	case in.SenderID == in.ReceiverID:
		return domain.Message{}, apperr.Validation("cannot send a message to yourself")
	case strings.TrimSpace(in.Content) == "":
		return domain.Message{}, apperr.Validation("content is required")
	case !in.Type.Valid():
		return domain.Message{}, apperr.Validation("type must be text, image or file")
	}

	ctx, span := tracer.Start(ctx, "chat.send")
	defer span.End()
	convID := domain.ConversationID(in.SenderID, in.ReceiverID)
	span.SetAttributes(attribute.String("chat.conversation_id", convID))

	id, err := uuid.NewV7()
	if err != nil {
		return domain.Message{}, err
	}

	var msg domain.Message
	for attempt := 1; ; attempt++ {
		msg, err = s.appendOnce(ctx, convID, id.String(), in)
		if !errors.Is(err, store.ErrConflict) || attempt >= maxSendAttempts {
			break
		}
		s.log.DebugContext(ctx, "conversation changed concurrently, retrying",
			slog.String("conversation_id", convID),
			slog.Int("attempt", attempt),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		if errors.Is(err, store.ErrConflict) {
			return domain.Message{}, err
		}
		return domain.Message{}, apperr.Remote("append message", err)
	}

	if err := s.pub.Publish(ctx, events.MessageSent, events.MessageEvent{Message: msg}); err != nil {
		s.log.WarnContext(ctx, "publish message event failed",
			slog.String("message_id", msg.ID),
			slog.Any("err", err),
		)
	}
	s.deliver(Envelope{Type: events.MessageSent, Payload: msg}, msg.SenderID, msg.ReceiverID)
	return msg, nil
}

func (s *Service) appendOnce(ctx context.Context, convID, msgID string, in SendInput) (domain.Message, error) {
	conv, version, err := s.repo.GetConversation(ctx, convID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		version = 0
	case err != nil:
		return domain.Message{}, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	if version == 0 {
		ids := []string{in.SenderID, in.ReceiverID}
		sort.Strings(ids)
		conv = domain.Conversation{
			ID:           convID,
			Participants: ids,
			UnreadCount:  map[string]int{in.SenderID: 0, in.ReceiverID: 0},
			CreatedAt:    now,
		}
	}
	if !now.After(conv.LastMessageTime) {
		now = conv.LastMessageTime.Add(time.Millisecond)
	}

	msg := domain.Message{
		ID:             msgID,
		ConversationID: convID,
		SenderID:       in.SenderID,
		ReceiverID:     in.ReceiverID,
		Content:        in.Content,
		Type:           in.Type,
		Timestamp:      now,
	}

	unread := make(map[string]int, len(conv.UnreadCount)+1)
	for k, v := range conv.UnreadCount {
		unread[k] = v
	}
	unread[in.ReceiverID]++
	conv.UnreadCount = unread
	conv.LastMessage = &msg
	conv.LastMessageTime = now
	conv.UpdatedAt = now

	if err := s.repo.AppendMessage(ctx, conv, msg, version); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (s *Service) MarkAsRead(ctx context.Context, conversationID, userID string, messageIDs []string) error {
	if strings.TrimSpace(conversationID) == "" {
		return apperr.Validation("conversation_id is required")
	}
	if strings.TrimSpace(userID) == "" {
		return apperr.Validation("user_id is required")
	}

	conv, _, err := s.repo.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("conversation", conversationID)
	}
	if err != nil {
		return apperr.Remote("get conversation", err)
	}
	if !conv.HasParticipant(userID) {
		return apperr.NotFound("conversation", conversationID)
	}

	if err := s.repo.MarkRead(ctx, conversationID, userID, messageIDs); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("conversation", conversationID)
		}
		return apperr.Remote("mark read", err)
	}

	s.deliver(Envelope{
		Type:    "message.read",
		Payload: ReadReceipt{ConversationID: conversationID, UserID: userID, MessageIDs: messageIDs},
	}, conv.Participants...)
	return nil
}

func (s *Service) deliver(env Envelope, userIDs ...string) {
	if s.rt == nil {
		return
	}
	for _, uid := range userIDs {
		s.rt.Deliver(uid, env)
	}
}
