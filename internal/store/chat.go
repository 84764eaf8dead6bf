package store

import (
	"context"

	"lifecoach/backend/internal/domain"
)

// ChatRepository persists conversations and their messages.
//
// AppendMessage stores msg and replaces the conversation snapshot in one
// write. prevVersion is the version the caller read (0 for a conversation
// that does not exist yet); a mismatch returns ErrConflict.
type ChatRepository interface {
	GetConversation(ctx context.Context, id string) (domain.Conversation, int64, error)
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	AppendMessage(ctx context.Context, conv domain.Conversation, msg domain.Message, prevVersion int64) error
	MarkRead(ctx context.Context, conversationID, userID string, messageIDs []string) error
}
