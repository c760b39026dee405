package repository

import (
	"context"
	"errors"

	"bazaarchat/internal/domain/entity"
)

// ErrStreamStopped is returned by MessageStream.Next after Stop.
var ErrStreamStopped = errors.New("message stream stopped")

// MessageStream yields the most recent messages of one conversation, newest
// first, once when opened and again after every change.
type MessageStream interface {
	Next() ([]*entity.Message, error)
	Stop()
}

// MoveResult describes a completed MoveConversation.
type MoveResult struct {
	Messages int
	// TargetExisted is true when the target conversation was already present,
	// for example after a partially completed earlier run.
	TargetExisted bool
}

type ConversationRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	// GetOrCreate stores conv if no conversation with conv.ID exists and
	// returns the stored document. An existing document is never overwritten.
	GetOrCreate(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error)
	ListByMember(ctx context.Context, identity string) ([]*entity.Conversation, error)
	Exists(ctx context.Context, id string) (bool, error)

	AppendMessage(ctx context.Context, conversationID string, message *entity.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*entity.Message, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*entity.Message, error)
	WatchRecentMessages(ctx context.Context, conversationID string, limit int) (MessageStream, error)

	// MoveConversation copies fromID and all its messages under target.ID,
	// keeping message ids and fields, then deletes fromID. Re-running it after
	// a partial failure or concurrently is safe. It returns NOT_FOUND when
	// fromID does not exist.
	MoveConversation(ctx context.Context, fromID string, target *entity.Conversation) (*MoveResult, error)
}
