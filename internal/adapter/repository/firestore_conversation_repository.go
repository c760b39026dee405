package repository

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"bazaarchat/internal/domain/entity"
	"bazaarchat/internal/domain/repository"
	"bazaarchat/pkg/errors"
	"bazaarchat/pkg/logger"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"

	// Firestore rejects transactions and batches with more writes than this.
	maxWritesPerCommit = 500
)

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) conversations() *firestore.CollectionRef {
	return r.client.Collection(conversationsCollection)
}

func (r *firestoreConversationRepository) messages(conversationID string) *firestore.CollectionRef {
	return r.conversations().Doc(conversationID).Collection(messagesCollection)
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.conversations().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}

	var conv entity.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}
	return &conv, nil
}

func (r *firestoreConversationRepository) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.conversations().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, errors.Internal("Failed to check conversation", err)
	}
	return true, nil
}

func (r *firestoreConversationRepository) GetOrCreate(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error) {
	if conv.ID == "" {
		return nil, false, errors.BadRequest("Conversation id is required", nil)
	}

	ref := r.conversations().Doc(conv.ID)
	var (
		stored  entity.Conversation
		created bool
	)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false
		snap, err := tx.Get(ref)
		if err == nil {
			return snap.DataTo(&stored)
		}
		if status.Code(err) != codes.NotFound {
			return err
		}

		stored = *conv
		now := time.Now().UTC()
		stored.CreatedAt = now
		stored.UpdatedAt = now
		created = true
		return tx.Create(ref, &stored)
	})
	if err != nil {
		return nil, false, errors.Internal("Failed to get or create conversation", err)
	}

	return &stored, created, nil
}

func (r *firestoreConversationRepository) ListByMember(ctx context.Context, identity string) ([]*entity.Conversation, error) {
	query := r.conversations().
		Where("members", "array-contains", identity).
		OrderBy("updatedAt", firestore.Desc)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to list conversations", err)
	}

	convs := make([]*entity.Conversation, 0, len(docs))
	for _, doc := range docs {
		var conv entity.Conversation
		if err := doc.DataTo(&conv); err != nil {
			logger.Warn("Skipping unreadable conversation %s: %v", doc.Ref.ID, err)
			continue
		}
		convs = append(convs, &conv)
	}
	return convs, nil
}

func (r *firestoreConversationRepository) AppendMessage(ctx context.Context, conversationID string, message *entity.Message) error {
	if strings.TrimSpace(message.Content) == "" {
		return errors.Validation("Message content cannot be empty")
	}
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	wr, err := r.messages(conversationID).Doc(message.ID).Set(ctx, message)
	if err != nil {
		return errors.Internal("Failed to append message", err)
	}
	if message.Timestamp.IsZero() {
		// serverTimestamp resolves to the commit time of the write.
		message.Timestamp = wr.UpdateTime
	}

	_, err = r.conversations().Doc(conversationID).Update(ctx, []firestore.Update{
		{Path: "updatedAt", Value: message.Timestamp},
	})
	if err != nil {
		logger.LogConversationError(conversationID, "touch_updated_at", err)
	}

	return nil
}

func decodeMessages(docs []*firestore.DocumentSnapshot) ([]*entity.Message, error) {
	messages := make([]*entity.Message, 0, len(docs))
	for _, doc := range docs {
		var m entity.Message
		if err := doc.DataTo(&m); err != nil {
			return nil, errors.Internal("Failed to parse message data", err)
		}
		m.ID = doc.Ref.ID
		messages = append(messages, &m)
	}
	return messages, nil
}

func (r *firestoreConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	docs, err := r.messages(conversationID).OrderBy("timestamp", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to list messages", err)
	}
	return decodeMessages(docs)
}

func (r *firestoreConversationRepository) recentQuery(conversationID string, limit int) firestore.Query {
	query := r.messages(conversationID).OrderBy("timestamp", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}
	return query
}

func (r *firestoreConversationRepository) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*entity.Message, error) {
	iter := r.recentQuery(conversationID, limit).Documents(ctx)
	defer iter.Stop()

	var docs []*firestore.DocumentSnapshot
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to iterate messages", err)
		}
		docs = append(docs, doc)
	}
	return decodeMessages(docs)
}

func (r *firestoreConversationRepository) WatchRecentMessages(ctx context.Context, conversationID string, limit int) (repository.MessageStream, error) {
	return &firestoreMessageStream{
		iter: r.recentQuery(conversationID, limit).Snapshots(ctx),
	}, nil
}

type firestoreMessageStream struct {
	iter *firestore.QuerySnapshotIterator
}

func (s *firestoreMessageStream) Next() ([]*entity.Message, error) {
	snap, err := s.iter.Next()
	if err != nil {
		if err == iterator.Done {
			return nil, repository.ErrStreamStopped
		}
		if status.Code(err) == codes.Canceled {
			return nil, context.Canceled
		}
		return nil, err
	}

	docs, err := snap.Documents.GetAll()
	if err != nil {
		return nil, err
	}
	return decodeMessages(docs)
}

func (s *firestoreMessageStream) Stop() {
	s.iter.Stop()
}

func (r *firestoreConversationRepository) MoveConversation(ctx context.Context, fromID string, target *entity.Conversation) (*repository.MoveResult, error) {
	if fromID == target.ID {
		return nil, errors.BadRequest("Cannot move a conversation onto itself", nil)
	}

	refs, err := r.messages(fromID).Select().Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to count messages", err)
	}

	// Target doc, every copied message, every deleted message, the source doc.
	if 2*len(refs)+2 <= maxWritesPerCommit {
		return r.moveInTransaction(ctx, fromID, target)
	}
	return r.moveInBatches(ctx, fromID, target)
}

func (r *firestoreConversationRepository) moveInTransaction(ctx context.Context, fromID string, target *entity.Conversation) (*repository.MoveResult, error) {
	oldRef := r.conversations().Doc(fromID)
	newRef := r.conversations().Doc(target.ID)

	var result repository.MoveResult
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repository.MoveResult{}

		oldSnap, err := tx.Get(oldRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Conversation", err)
			}
			return err
		}
		var old entity.Conversation
		if err := oldSnap.DataTo(&old); err != nil {
			return err
		}

		msgSnaps, err := tx.Documents(r.messages(fromID)).GetAll()
		if err != nil {
			return err
		}

		doc := *target
		doc.CreatedAt = old.CreatedAt
		doc.UpdatedAt = old.UpdatedAt

		newSnap, err := tx.Get(newRef)
		switch {
		case err == nil && newSnap.Exists():
			var existing entity.Conversation
			if err := newSnap.DataTo(&existing); err != nil {
				return err
			}
			result.TargetExisted = true
			doc.CreatedAt = existing.CreatedAt
			if existing.UpdatedAt.After(doc.UpdatedAt) {
				doc.UpdatedAt = existing.UpdatedAt
			}
		case err != nil && status.Code(err) != codes.NotFound:
			return err
		}

		if err := tx.Set(newRef, &doc); err != nil {
			return err
		}

		for _, snap := range msgSnaps {
			var m entity.Message
			if err := snap.DataTo(&m); err != nil {
				return err
			}
			m.ID = snap.Ref.ID
			if err := tx.Set(newRef.Collection(messagesCollection).Doc(m.ID), &m); err != nil {
				return err
			}
			if err := tx.Delete(snap.Ref); err != nil {
				return err
			}
			result.Messages++
		}

		return tx.Delete(oldRef)
	})
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, err
		}
		return nil, errors.Internal("Failed to move conversation", err)
	}

	return &result, nil
}

// moveInBatches is used when the history does not fit in one transaction.
// Every step is an upsert keyed by the message id, and the source is removed
// last, so a failed run can simply be repeated. The source is drained until
// it is empty both before and after its document is deleted, which picks up
// messages appended to it while the move runs.
func (r *firestoreConversationRepository) moveInBatches(ctx context.Context, fromID string, target *entity.Conversation) (*repository.MoveResult, error) {
	old, err := r.GetByID(ctx, fromID)
	if err != nil {
		return nil, err
	}

	result := &repository.MoveResult{}
	doc := *target
	doc.CreatedAt = old.CreatedAt
	doc.UpdatedAt = old.UpdatedAt

	newRef := r.conversations().Doc(target.ID)
	if existing, err := r.GetByID(ctx, target.ID); err == nil {
		result.TargetExisted = true
		doc.CreatedAt = existing.CreatedAt
		if existing.UpdatedAt.After(doc.UpdatedAt) {
			doc.UpdatedAt = existing.UpdatedAt
		}
	} else if !errors.IsNotFound(err) {
		return nil, err
	}

	if _, err := newRef.Set(ctx, &doc); err != nil {
		return nil, errors.Internal("Failed to write target conversation", err)
	}

	moved, err := r.drainMessages(ctx, fromID, newRef)
	if err != nil {
		return nil, err
	}
	result.Messages += moved

	if _, err := r.conversations().Doc(fromID).Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) != codes.NotFound {
			return nil, errors.Internal("Failed to delete source conversation", err)
		}
	}

	moved, err = r.drainMessages(ctx, fromID, newRef)
	if err != nil {
		return nil, err
	}
	result.Messages += moved

	return result, nil
}

// drainMessages copies the source messages to newRef and deletes them,
// repeating until the source subcollection is empty.
func (r *firestoreConversationRepository) drainMessages(ctx context.Context, fromID string, newRef *firestore.DocumentRef) (int, error) {
	moved := 0
	for {
		msgs, err := r.ListMessages(ctx, fromID)
		if err != nil {
			return moved, err
		}
		if len(msgs) == 0 {
			return moved, nil
		}

		for start := 0; start < len(msgs); start += maxWritesPerCommit {
			end := start + maxWritesPerCommit
			if end > len(msgs) {
				end = len(msgs)
			}

			batch := r.client.Batch()
			for _, m := range msgs[start:end] {
				batch.Set(newRef.Collection(messagesCollection).Doc(m.ID), m)
			}
			if _, err := batch.Commit(ctx); err != nil {
				return moved, errors.Internal("Failed to copy messages", err)
			}
		}

		for start := 0; start < len(msgs); start += maxWritesPerCommit {
			end := start + maxWritesPerCommit
			if end > len(msgs) {
				end = len(msgs)
			}

			batch := r.client.Batch()
			for _, m := range msgs[start:end] {
				batch.Delete(r.messages(fromID).Doc(m.ID))
			}
			if _, err := batch.Commit(ctx); err != nil {
				return moved, errors.Internal("Failed to delete source messages", err)
			}
		}
		moved += len(msgs)
	}
}
