package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bazaarchat/internal/domain/entity"
	"bazaarchat/internal/domain/repository"
)

type memoryNotificationRepository struct {
	mu      sync.Mutex
	inboxes map[string]map[string]*entity.Notification
}

func NewMemoryNotificationRepository() repository.NotificationRepository {
	return &memoryNotificationRepository{
		inboxes: make(map[string]map[string]*entity.Notification),
	}
}

func (r *memoryNotificationRepository) Create(ctx context.Context, recipient string, n *entity.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	inbox, ok := r.inboxes[recipient]
	if !ok {
		inbox = make(map[string]*entity.Notification)
		r.inboxes[recipient] = inbox
	}
	if _, exists := inbox[n.ID]; exists {
		return nil
	}

	stored := *n
	inbox[n.ID] = &stored
	return nil
}

func (r *memoryNotificationRepository) ListByRecipient(ctx context.Context, recipient string, chatOnly bool) ([]*entity.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.Notification
	for _, n := range r.inboxes[recipient] {
		if chatOnly && n.Type != entity.NotificationTypeChat {
			continue
		}
		copied := *n
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (r *memoryNotificationRepository) MarkAsRead(ctx context.Context, recipient string, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inbox := r.inboxes[recipient]
	for _, id := range ids {
		if n, ok := inbox[id]; ok {
			n.IsRead = true
		}
	}
	return nil
}
