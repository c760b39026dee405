package repository

import (
	"context"

	"bazaarchat/internal/domain/entity"
)

type NotificationRepository interface {
	// Create writes n into recipient's inbox. Creating an id that already
	// exists is a no-op.
	Create(ctx context.Context, recipient string, n *entity.Notification) error
	ListByRecipient(ctx context.Context, recipient string, chatOnly bool) ([]*entity.Notification, error)
	MarkAsRead(ctx context.Context, recipient string, ids []string) error
}
