package usecase

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaarchat/internal/adapter/repository"
	"bazaarchat/internal/domain/entity"
	domainrepo "bazaarchat/internal/domain/repository"
	"bazaarchat/pkg/errors"
)

func TestNotifyParticipantsExcludesSenderAndEmptySlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.notifications.NotifyParticipants(ctx,
		entity.RoleMap{Seller: alice, Buyer: bob, Moderator: ""},
		NotificationInput{Message: "hi", From: alice, Type: entity.NotificationTypeChat},
	)
	require.NoError(t, err)

	forBob, err := f.notifRepo.ListByRecipient(ctx, bob, false)
	require.NoError(t, err)
	assert.Len(t, forBob, 1)

	forAlice, err := f.notifRepo.ListByRecipient(ctx, alice, false)
	require.NoError(t, err)
	assert.Empty(t, forAlice)

	forNobody, err := f.notifRepo.ListByRecipient(ctx, "", false)
	require.NoError(t, err)
	assert.Empty(t, forNobody)

	assert.Equal(t, 1, f.pusher.count(bob))
}

func TestRecipients(t *testing.T) {
	tests := []struct {
		name         string
		participants entity.ParticipantSet
		from         string
		want         []string
	}{
		{"role map", entity.RoleMap{Seller: alice, Buyer: bob, Moderator: carol}, bob, []string{alice, carol}},
		{"zero address moderator", entity.RoleMap{Seller: alice, Buyer: bob, Moderator: "0x0000000000000000000000000000000000000000"}, alice, []string{bob}},
		{"list with duplicates", entity.ParticipantList{alice, bob, bob, ""}, alice, []string{bob}},
		{"sender in other case", entity.ParticipantList{"0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", bob}, alice, []string{bob}},
		{"nil set", nil, alice, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, Recipients(tt.participants, tt.from))
		})
	}
}

// flakyInbox fails every write for one recipient.
type flakyInbox struct {
	domainrepo.NotificationRepository
	broken string
}

func (r *flakyInbox) Create(ctx context.Context, recipient string, n *entity.Notification) error {
	if recipient == r.broken {
		return stderrors.New("inbox unavailable")
	}
	return r.NotificationRepository.Create(ctx, recipient, n)
}

func TestNotifyParticipantsIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	inbox := &flakyInbox{NotificationRepository: repository.NewMemoryNotificationRepository(), broken: bob}
	uc := NewNotificationUseCase(inbox, newFakeItems(), nil, 2)
	uc.retryBase = time.Millisecond

	err := uc.NotifyParticipants(ctx, entity.ParticipantList{alice, bob, carol}, NotificationInput{
		Key: "m1", From: alice, Type: entity.NotificationTypeChat,
	})
	require.Error(t, err)

	var merr *multierror.Error
	require.True(t, stderrors.As(err, &merr))
	require.Len(t, merr.Errors, 1)
	assert.True(t, errors.Is(merr.Errors[0], errors.CodeFanout))

	forCarol, err := inbox.ListByRecipient(ctx, carol, false)
	require.NoError(t, err)
	require.Len(t, forCarol, 1)
	assert.Equal(t, "m1", forCarol[0].ID)
}

func TestNotifyParticipantsWithKeyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := NotificationInput{Key: "msg-1", From: alice, Type: entity.NotificationTypeChat}

	for i := 0; i < 3; i++ {
		require.NoError(t, f.notifications.NotifyParticipants(ctx, entity.ParticipantList{alice, bob}, input))
	}

	list, err := f.notifRepo.ListByRecipient(ctx, bob, false)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUnreadCountsAreRecomputedAfterMarkAsRead(t *testing.T) {
	const total = 5
	ctx := context.Background()

	for marked := 0; marked <= total; marked++ {
		t.Run(fmt.Sprintf("marked=%d", marked), func(t *testing.T) {
			f := newFixture(t)
			ids := make([]string, 0, total)
			for i := 0; i < total; i++ {
				id := fmt.Sprintf("n%d", i)
				ids = append(ids, id)
				require.NoError(t, f.notifications.NotifyParticipants(ctx, entity.ParticipantList{alice, bob},
					NotificationInput{Key: id, From: alice, Type: entity.NotificationTypeChat}))
			}

			require.NoError(t, f.notifications.MarkAsRead(ctx, bob, ids[:marked]))

			counts, err := f.notifications.UnreadCounts(ctx, bob)
			require.NoError(t, err)
			assert.Equal(t, total-marked, counts.Chat)
			assert.Equal(t, 0, counts.Bell)

			list, err := f.notifications.ListNotifications(ctx, bob, true)
			require.NoError(t, err)
			assert.Len(t, list, total)
		})
	}
}

func TestUnreadCountsSplitBellAndChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.notifRepo.Create(ctx, bob, &entity.Notification{ID: "1", Type: entity.NotificationTypeChat}))
	require.NoError(t, f.notifRepo.Create(ctx, bob, &entity.Notification{ID: "2", Type: entity.NotificationTypeItemBought}))
	require.NoError(t, f.notifRepo.Create(ctx, bob, &entity.Notification{ID: "3", Type: entity.NotificationTypeOrderDisputed}))
	require.NoError(t, f.notifRepo.Create(ctx, bob, &entity.Notification{ID: "4", Type: entity.NotificationTypeOrderCompleted, IsRead: true}))

	counts, err := f.notifications.UnreadCounts(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, UnreadCounts{Bell: 2, Chat: 1}, *counts)
}

func TestMarkAsReadWithNothingIsANoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.notifRepo.Create(ctx, bob, &entity.Notification{ID: "1", Type: entity.NotificationTypeChat}))

	require.NoError(t, f.notifications.MarkAsRead(ctx, bob, nil))
	require.NoError(t, f.notifications.MarkAsRead(ctx, bob, []string{" ", ""}))

	counts, err := f.notifications.UnreadCounts(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Chat)
}

func TestNotifyTransactionEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.items.put(entity.ItemTransaction{ItemID: "9", Title: "Bike", Seller: alice, Buyer: bob, Moderator: carol})

	for i := 0; i < 2; i++ {
		require.NoError(t, f.notifications.NotifyTransactionEvent(ctx, session(t, bob), "9", entity.NotificationTypeOrderDisputed))
	}

	for _, recipient := range []string{alice, carol} {
		list, err := f.notifRepo.ListByRecipient(ctx, recipient, false)
		require.NoError(t, err)
		require.Len(t, list, 1, recipient)
		assert.Equal(t, entity.NotificationTypeOrderDisputed, list[0].Type)
		assert.Equal(t, "9", list[0].ItemID)
		assert.Contains(t, list[0].Message, "Bike")
	}
	forBob, err := f.notifRepo.ListByRecipient(ctx, bob, false)
	require.NoError(t, err)
	assert.Empty(t, forBob)

	counts, err := f.notifications.UnreadCounts(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, UnreadCounts{Bell: 1}, *counts)
}

func TestNotifyTransactionEventRejectsOutsidersAndUnknownTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.items.put(entity.ItemTransaction{ItemID: "9", Seller: alice, Buyer: bob})

	err := f.notifications.NotifyTransactionEvent(ctx, session(t, dave), "9", entity.NotificationTypeItemBought)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	err = f.notifications.NotifyTransactionEvent(ctx, session(t, bob), "9", "chat")
	assert.True(t, errors.Is(err, errors.CodeBadRequest))

	err = f.notifications.NotifyTransactionEvent(ctx, session(t, bob), "404", entity.NotificationTypeItemBought)
	assert.True(t, errors.IsNotFound(err))
}
