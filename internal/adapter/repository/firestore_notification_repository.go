package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"bazaarchat/internal/domain/entity"
	"bazaarchat/internal/domain/repository"
	"bazaarchat/pkg/errors"
	"bazaarchat/pkg/logger"
)

const (
	notificationsCollection = "notifications"
	inboxCollection         = "inbox"
)

type firestoreNotificationRepository struct {
	client *firestore.Client
}

func NewFirestoreNotificationRepository(client *firestore.Client) repository.NotificationRepository {
	return &firestoreNotificationRepository{
		client: client,
	}
}

func (r *firestoreNotificationRepository) inbox(recipient string) *firestore.CollectionRef {
	return r.client.Collection(notificationsCollection).Doc(recipient).Collection(inboxCollection)
}

func (r *firestoreNotificationRepository) Create(ctx context.Context, recipient string, n *entity.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	_, err := r.inbox(recipient).Doc(n.ID).Create(ctx, n)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return errors.Internal("Failed to create notification", err)
	}
	return nil
}

func (r *firestoreNotificationRepository) ListByRecipient(ctx context.Context, recipient string, chatOnly bool) ([]*entity.Notification, error) {
	query := r.inbox(recipient).Query
	if chatOnly {
		query = query.Where("type", "==", entity.NotificationTypeChat)
	}
	query = query.OrderBy("timestamp", firestore.Desc)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to list notifications", err)
	}

	out := make([]*entity.Notification, 0, len(docs))
	for _, doc := range docs {
		var n entity.Notification
		if err := doc.DataTo(&n); err != nil {
			logger.Warn("Skipping unreadable notification %s for %s: %v", doc.Ref.ID, recipient, err)
			continue
		}
		n.ID = doc.Ref.ID
		out = append(out, &n)
	}
	return out, nil
}

// MarkAsRead skips ids that are not in the inbox, so one stale id does not
// fail the batch for the others.
func (r *firestoreNotificationRepository) MarkAsRead(ctx context.Context, recipient string, ids []string) error {
	for start := 0; start < len(ids); start += maxWritesPerCommit {
		end := start + maxWritesPerCommit
		if end > len(ids) {
			end = len(ids)
		}

		refs := make([]*firestore.DocumentRef, 0, end-start)
		for _, id := range ids[start:end] {
			refs = append(refs, r.inbox(recipient).Doc(id))
		}
		snaps, err := r.client.GetAll(ctx, refs)
		if err != nil {
			return errors.Internal("Failed to read notifications", err)
		}

		batch := r.client.Batch()
		pending := 0
		for _, snap := range snaps {
			if !snap.Exists() {
				continue
			}
			batch.Update(snap.Ref, []firestore.Update{
				{Path: "isRead", Value: true},
			})
			pending++
		}
		if pending == 0 {
			continue
		}
		if _, err := batch.Commit(ctx); err != nil {
			// Deleted between the read and the write.
			if status.Code(err) == codes.NotFound {
				logger.Warn("Notification vanished while marking %s's inbox read: %v", recipient, err)
				continue
			}
			return errors.Internal("Failed to mark notifications as read", err)
		}
	}
	return nil
}
