package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"bazaarchat/internal/domain/entity"
	"bazaarchat/internal/domain/repository"
	"bazaarchat/internal/domain/service"
	"bazaarchat/internal/infrastructure/metrics"
	"bazaarchat/pkg/errors"
	"bazaarchat/pkg/logger"
)

const defaultFanoutRetryBase = 100 * time.Millisecond

// NotificationPusher forwards a freshly stored notification to the
// recipient's open connections.
type NotificationPusher interface {
	PushNotification(recipient string, n *entity.Notification)
}

// NotificationInput describes one event to fan out. A non-empty Key becomes
// the notification id in every inbox, which makes repeated fan-outs of the
// same event harmless.
type NotificationInput struct {
	Key       string
	Message   string
	From      string
	ItemID    string
	ActionURL string
	Type      string
}

// UnreadCounts backs the bell and chat badges.
type UnreadCounts struct {
	Bell int `json:"bell"`
	Chat int `json:"chat"`
}

type NotificationUseCase struct {
	notificationRepo repository.NotificationRepository
	itemRepo         repository.ItemTransactionRepository
	pusher           NotificationPusher
	retryBase        time.Duration
	retryMax         uint64
	log              zerolog.Logger
}

func NewNotificationUseCase(
	notificationRepo repository.NotificationRepository,
	itemRepo repository.ItemTransactionRepository,
	pusher NotificationPusher,
	retryMax uint64,
) *NotificationUseCase {
	return &NotificationUseCase{
		notificationRepo: notificationRepo,
		itemRepo:         itemRepo,
		pusher:           pusher,
		retryBase:        defaultFanoutRetryBase,
		retryMax:         retryMax,
		log:              logger.Component("notifications"),
	}
}

// Recipients returns every distinct participant other than from.
func Recipients(participants entity.ParticipantSet, from string) []string {
	var candidates []string
	switch p := participants.(type) {
	case entity.RoleMap:
		candidates = p.Identities()
	case entity.ParticipantList:
		candidates = p.Identities()
	default:
		return nil
	}

	from = service.NormalizeIdentity(from)
	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if id != from {
			out = append(out, id)
		}
	}
	return out
}

// NotifyParticipants writes one notification per recipient. Recipients are
// handled independently; the returned error lists every recipient that
// could not be notified.
func (uc *NotificationUseCase) NotifyParticipants(ctx context.Context, participants entity.ParticipantSet, input NotificationInput) error {
	recipients := Recipients(participants, input.From)
	if len(recipients) == 0 {
		return nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result *multierror.Error
	)
	for _, recipient := range recipients {
		wg.Add(1)
		go func(recipient string) {
			defer wg.Done()
			if err := uc.notify(ctx, recipient, input); err != nil {
				metrics.FanoutFailures.Inc()
				uc.log.Warn().Err(err).Str("recipient", recipient).Str("type", input.Type).Msg("notification failed")

				mu.Lock()
				result = multierror.Append(result, errors.Fanout(recipient, err))
				mu.Unlock()
			}
		}(recipient)
	}
	wg.Wait()

	return result.ErrorOrNil()
}

func (uc *NotificationUseCase) notify(ctx context.Context, recipient string, input NotificationInput) error {
	n := &entity.Notification{
		ID:        input.Key,
		Message:   input.Message,
		From:      service.NormalizeIdentity(input.From),
		ItemID:    input.ItemID,
		ActionURL: input.ActionURL,
		Type:      input.Type,
		Timestamp: time.Now().UTC(),
	}

	backoff := retry.NewExponential(uc.retryBase)
	err := retry.Do(ctx, retry.WithMaxRetries(uc.retryMax, backoff), func(ctx context.Context) error {
		// Create assigns n.ID on the first attempt, so retries reuse it.
		return retry.RetryableError(uc.notificationRepo.Create(ctx, recipient, n))
	})
	if err != nil {
		return err
	}

	metrics.NotificationsCreated.WithLabelValues(n.Type).Inc()
	if uc.pusher != nil {
		uc.pusher.PushNotification(recipient, n)
	}
	return nil
}

var transactionEventMessages = map[string]string{
	entity.NotificationTypeItemBought:        "%s bought %s",
	entity.NotificationTypeOrderDisputed:     "%s opened a dispute on %s",
	entity.NotificationTypeOrderCompleted:    "%s completed the order for %s",
	entity.NotificationTypeOrderRefunded:     "%s refunded the order for %s",
	entity.NotificationTypeDisputeResolved:   "%s resolved the dispute on %s",
	entity.NotificationTypeModeratorAssigned: "%s was assigned to moderate %s",
}

// IsTransactionEvent reports whether eventType is a known escrow event.
func IsTransactionEvent(eventType string) bool {
	_, ok := transactionEventMessages[eventType]
	return ok
}

// NotifyTransactionEvent tells the other parties of an item's transaction
// that the caller performed an escrow action. Only parties of the
// transaction may report events, and each event is stored once per item.
func (uc *NotificationUseCase) NotifyTransactionEvent(ctx context.Context, session Session, itemID, eventType string) error {
	format, ok := transactionEventMessages[eventType]
	if !ok {
		return errors.BadRequest(fmt.Sprintf("Unknown transaction event %q", eventType), nil)
	}

	tx, err := uc.itemRepo.GetByItemID(ctx, itemID)
	if err != nil {
		return err
	}

	roles := tx.Roles()
	if !isParticipant(roles, session.Identity) {
		return errors.Forbidden("Only parties of the transaction can report its events", nil)
	}

	title := tx.Title
	if title == "" {
		title = "item #" + itemID
	}

	err = uc.NotifyParticipants(ctx, roles, NotificationInput{
		Key:       eventType + "-" + itemID,
		Message:   fmt.Sprintf(format, entity.ShortAddress(session.Identity), title),
		From:      session.Identity,
		ItemID:    itemID,
		ActionURL: "/item/" + itemID,
		Type:      eventType,
	})
	if err != nil {
		return errors.Internal("Some participants could not be notified", err)
	}
	return nil
}

func (uc *NotificationUseCase) ListNotifications(ctx context.Context, userID string, chatOnly bool) ([]*entity.Notification, error) {
	return uc.notificationRepo.ListByRecipient(ctx, userID, chatOnly)
}

// MarkAsRead flags the given notifications of userID as read. Blank and
// repeated ids are ignored.
func (uc *NotificationUseCase) MarkAsRead(ctx context.Context, userID string, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		clean = append(clean, id)
	}
	if len(clean) == 0 {
		return nil
	}
	return uc.notificationRepo.MarkAsRead(ctx, userID, clean)
}

// UnreadCounts counts unread notifications from the inbox itself on every
// call. Chat notifications feed the chat badge, everything else the bell.
func (uc *NotificationUseCase) UnreadCounts(ctx context.Context, userID string) (*UnreadCounts, error) {
	notifications, err := uc.notificationRepo.ListByRecipient(ctx, userID, false)
	if err != nil {
		return nil, err
	}

	counts := &UnreadCounts{}
	for _, n := range notifications {
		if n.IsRead {
			continue
		}
		if n.Type == entity.NotificationTypeChat {
			counts.Chat++
		} else {
			counts.Bell++
		}
	}
	return counts, nil
}

func isParticipant(set entity.ParticipantSet, identity string) bool {
	identity = service.NormalizeIdentity(identity)
	for _, id := range set.Identities() {
		if id == identity {
			return true
		}
	}
	return false
}
