package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bazaarchat/internal/domain/entity"
	"bazaarchat/internal/domain/repository"
	"bazaarchat/pkg/errors"
)

// memoryConversationRepository keeps conversations in process. It backs the
// "memory" store driver and the package tests.
type memoryConversationRepository struct {
	mu            sync.Mutex
	conversations map[string]*entity.Conversation
	messages      map[string]map[string]*entity.Message
	watchers      map[string]map[*memoryMessageStream]struct{}
	lastTimestamp time.Time
}

func NewMemoryConversationRepository() repository.ConversationRepository {
	return &memoryConversationRepository{
		conversations: make(map[string]*entity.Conversation),
		messages:      make(map[string]map[string]*entity.Message),
		watchers:      make(map[string]map[*memoryMessageStream]struct{}),
	}
}

func cloneConversation(c *entity.Conversation) *entity.Conversation {
	out := *c
	out.Participants.Pair = append([]string(nil), c.Participants.Pair...)
	out.Members = append([]string(nil), c.Members...)
	return &out
}

func cloneMessage(m *entity.Message) *entity.Message {
	out := *m
	return &out
}

// nextTimestamp returns a strictly increasing write time. Caller holds mu.
func (r *memoryConversationRepository) nextTimestamp() time.Time {
	now := time.Now().UTC()
	if !now.After(r.lastTimestamp) {
		now = r.lastTimestamp.Add(time.Microsecond)
	}
	r.lastTimestamp = now
	return now
}

func (r *memoryConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return cloneConversation(conv), nil
}

func (r *memoryConversationRepository) Exists(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.conversations[id]
	return ok, nil
}

func (r *memoryConversationRepository) GetOrCreate(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error) {
	if conv.ID == "" {
		return nil, false, errors.BadRequest("Conversation id is required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.conversations[conv.ID]; ok {
		return cloneConversation(existing), false, nil
	}

	stored := cloneConversation(conv)
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.conversations[conv.ID] = stored

	return cloneConversation(stored), true, nil
}

func (r *memoryConversationRepository) ListByMember(ctx context.Context, identity string) ([]*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.Conversation
	for _, conv := range r.conversations {
		for _, m := range conv.Members {
			if m == identity {
				out = append(out, cloneConversation(conv))
				break
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (r *memoryConversationRepository) AppendMessage(ctx context.Context, conversationID string, message *entity.Message) error {
	if strings.TrimSpace(message.Content) == "" {
		return errors.Validation("Message content cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = r.nextTimestamp()
	}

	log, ok := r.messages[conversationID]
	if !ok {
		log = make(map[string]*entity.Message)
		r.messages[conversationID] = log
	}
	log[message.ID] = cloneMessage(message)

	if conv, ok := r.conversations[conversationID]; ok {
		conv.UpdatedAt = message.Timestamp
	}

	r.notify(conversationID)
	return nil
}

// sortedMessages returns the conversation's messages oldest first. Caller holds mu.
func (r *memoryConversationRepository) sortedMessages(conversationID string) []*entity.Message {
	log := r.messages[conversationID]
	out := make([]*entity.Message, 0, len(log))
	for _, m := range log {
		out = append(out, cloneMessage(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func (r *memoryConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sortedMessages(conversationID), nil
}

func (r *memoryConversationRepository) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.recent(conversationID, limit), nil
}

// recent returns up to limit messages, newest first. Caller holds mu.
func (r *memoryConversationRepository) recent(conversationID string, limit int) []*entity.Message {
	asc := r.sortedMessages(conversationID)
	desc := make([]*entity.Message, 0, len(asc))
	for i := len(asc) - 1; i >= 0; i-- {
		desc = append(desc, asc[i])
		if limit > 0 && len(desc) == limit {
			break
		}
	}
	return desc
}

func (r *memoryConversationRepository) MoveConversation(ctx context.Context, fromID string, target *entity.Conversation) (*repository.MoveResult, error) {
	if fromID == target.ID {
		return nil, errors.BadRequest("Cannot move a conversation onto itself", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.conversations[fromID]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}

	result := &repository.MoveResult{}
	doc := cloneConversation(target)
	doc.CreatedAt = old.CreatedAt
	doc.UpdatedAt = old.UpdatedAt
	if existing, ok := r.conversations[target.ID]; ok {
		result.TargetExisted = true
		doc.CreatedAt = existing.CreatedAt
		if existing.UpdatedAt.After(doc.UpdatedAt) {
			doc.UpdatedAt = existing.UpdatedAt
		}
	}
	r.conversations[target.ID] = doc

	dst, ok := r.messages[target.ID]
	if !ok {
		dst = make(map[string]*entity.Message)
		r.messages[target.ID] = dst
	}
	for id, m := range r.messages[fromID] {
		dst[id] = cloneMessage(m)
		result.Messages++
	}

	delete(r.messages, fromID)
	delete(r.conversations, fromID)

	r.notify(fromID)
	r.notify(target.ID)
	return result, nil
}

func (r *memoryConversationRepository) WatchRecentMessages(ctx context.Context, conversationID string, limit int) (repository.MessageStream, error) {
	s := &memoryMessageStream{
		repo:           r,
		ctx:            ctx,
		conversationID: conversationID,
		limit:          limit,
		signal:         make(chan struct{}, 1),
		done:           make(chan struct{}),
		first:          true,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watchers[conversationID] == nil {
		r.watchers[conversationID] = make(map[*memoryMessageStream]struct{})
	}
	r.watchers[conversationID][s] = struct{}{}

	return s, nil
}

// notify wakes every stream watching conversationID. Caller holds mu.
func (r *memoryConversationRepository) notify(conversationID string) {
	for s := range r.watchers[conversationID] {
		select {
		case s.signal <- struct{}{}:
		default:
		}
	}
}

func (r *memoryConversationRepository) unwatch(s *memoryMessageStream) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.watchers[s.conversationID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(r.watchers, s.conversationID)
		}
	}
}

type memoryMessageStream struct {
	repo           *memoryConversationRepository
	ctx            context.Context
	conversationID string
	limit          int
	signal         chan struct{}
	done           chan struct{}
	once           sync.Once
	first          bool
}

func (s *memoryMessageStream) Next() ([]*entity.Message, error) {
	select {
	case <-s.done:
		return nil, repository.ErrStreamStopped
	default:
	}

	if s.first {
		s.first = false
		return s.snapshot(), nil
	}

	select {
	case <-s.signal:
		return s.snapshot(), nil
	case <-s.done:
		return nil, repository.ErrStreamStopped
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	}
}

func (s *memoryMessageStream) snapshot() []*entity.Message {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	return s.repo.recent(s.conversationID, s.limit)
}

func (s *memoryMessageStream) Stop() {
	s.once.Do(func() {
		close(s.done)
		s.repo.unwatch(s)
	})
}
