package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bazaarchat/internal/adapter/repository"
	"bazaarchat/internal/domain/entity"
	domainrepo "bazaarchat/internal/domain/repository"
	"bazaarchat/internal/infrastructure/ratelimit"
	"bazaarchat/internal/infrastructure/realtime"
	"bazaarchat/pkg/errors"
)

const (
	alice = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	carol = "0xcccccccccccccccccccccccccccccccccccccccc"
	dave  = "0xdddddddddddddddddddddddddddddddddddddddd"
)

type fakeItems struct {
	mu    sync.Mutex
	items map[string]*entity.ItemTransaction
}

func newFakeItems() *fakeItems {
	return &fakeItems{items: make(map[string]*entity.ItemTransaction)}
}

func (f *fakeItems) put(tx entity.ItemTransaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[tx.ItemID] = &tx
}

func (f *fakeItems) GetByItemID(ctx context.Context, itemID string) (*entity.ItemTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.items[itemID]
	if !ok {
		return nil, errors.NotFound("Item", nil)
	}
	out := *tx
	return &out, nil
}

type fakeProfiles map[string]*entity.Profile

func (f fakeProfiles) GetByIdentity(ctx context.Context, identity string) (*entity.Profile, error) {
	if p, ok := f[identity]; ok {
		return p, nil
	}
	return &entity.Profile{Address: identity}, nil
}

type recordingPusher struct {
	mu     sync.Mutex
	pushes map[string][]*entity.Notification
}

func (p *recordingPusher) PushNotification(recipient string, n *entity.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pushes == nil {
		p.pushes = make(map[string][]*entity.Notification)
	}
	p.pushes[recipient] = append(p.pushes[recipient], n)
}

func (p *recordingPusher) count(recipient string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes[recipient])
}

type fixture struct {
	convRepo      domainrepo.ConversationRepository
	notifRepo     domainrepo.NotificationRepository
	items         *fakeItems
	pusher        *recordingPusher
	upgrades      *ConversationUpgradeUseCase
	notifications *NotificationUseCase
	chat          *ChatUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, repository.NewMemoryConversationRepository())
}

func newFixtureWithRepo(t *testing.T, convRepo domainrepo.ConversationRepository) *fixture {
	t.Helper()
	f := &fixture{
		convRepo:  convRepo,
		notifRepo: repository.NewMemoryNotificationRepository(),
		items:     newFakeItems(),
		pusher:    &recordingPusher{},
	}
	f.upgrades = NewConversationUpgradeUseCase(convRepo)
	f.notifications = NewNotificationUseCase(f.notifRepo, f.items, f.pusher, 0)
	f.notifications.retryBase = time.Millisecond
	f.chat = NewChatUseCase(
		convRepo,
		f.items,
		fakeProfiles{alice: {Address: alice, Username: "alice"}},
		f.upgrades,
		f.notifications,
		realtime.NewChannel(convRepo, 50, time.Millisecond, 3),
		ratelimit.NewRateLimiterWithLimits(map[string]ratelimit.Limit{
			ratelimit.ActionSendMessage: {Burst: 1000, Every: time.Millisecond},
		}),
		50,
	)
	return f
}

func session(t *testing.T, identity string) Session {
	t.Helper()
	s, err := NewSession(identity, "sepolia")
	require.NoError(t, err)
	return s
}

func contents(msgs []*entity.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}
