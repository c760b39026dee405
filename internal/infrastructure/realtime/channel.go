package realtime

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"bazaarchat/internal/domain/entity"
	"bazaarchat/internal/domain/repository"
	"bazaarchat/internal/infrastructure/metrics"
	"bazaarchat/pkg/errors"
	"bazaarchat/pkg/logger"
)

const (
	DefaultWindow    = 50
	defaultRetryBase = 200 * time.Millisecond

	// A feed that stayed up this long starts over with a fresh backoff.
	defaultHealthyPeriod = 30 * time.Second
)

// Unsubscribe stops a subscription. Calling it more than once is safe.
type Unsubscribe func()

// Channel turns the store's change feed into per-subscriber callbacks
// carrying the latest messages in chronological order.
type Channel struct {
	repo      repository.ConversationRepository
	window    int
	retryBase time.Duration
	retryMax  uint64
	healthy   time.Duration
	log       zerolog.Logger
}

func NewChannel(repo repository.ConversationRepository, window int, retryBase time.Duration, retryMax uint64) *Channel {
	if window <= 0 {
		window = DefaultWindow
	}
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}
	return &Channel{
		repo:      repo,
		window:    window,
		retryBase: retryBase,
		retryMax:  retryMax,
		healthy:   defaultHealthyPeriod,
		log:       logger.Component("realtime"),
	}
}

// Subscribe delivers the conversation's recent window to onUpdate on every
// change until the returned Unsubscribe is called or ctx ends. onError is
// called at most once, when the feed cannot be reopened.
func (c *Channel) Subscribe(ctx context.Context, conversationID string, onUpdate func([]*entity.Message), onError func(error)) Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)

	metrics.DeliverySubscribers.Inc()
	go func() {
		defer metrics.DeliverySubscribers.Dec()
		defer cancel()
		c.run(ctx, conversationID, onUpdate, onError)
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
	}
}

func (c *Channel) newBackoff() retry.Backoff {
	return retry.WithMaxRetries(c.retryMax, retry.NewExponential(c.retryBase))
}

// run keeps one backoff across reopens. Only a feed that delivered and then
// stayed up for the healthy period resets it, so a feed that keeps failing
// right after its first snapshot still runs out of retries.
func (c *Channel) run(ctx context.Context, conversationID string, onUpdate func([]*entity.Message), onError func(error)) {
	log := c.log.With().Str("conversation_id", conversationID).Logger()
	backoff := c.newBackoff()

	for {
		opened := time.Now()
		delivered, err := c.pump(ctx, conversationID, onUpdate)
		if err == nil || ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Bool("delivered", delivered).Msg("message feed failed")

		if delivered && time.Since(opened) >= c.healthy {
			backoff = c.newBackoff()
		}

		delay, stop := backoff.Next()
		if stop {
			log.Error().Err(err).Msg("giving up on message feed")
			onError(errors.Delivery("Message delivery is unavailable", err))
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		metrics.DeliveryResubscribes.Inc()
	}
}

// pump opens the feed and forwards snapshots until it fails or is stopped.
// A nil error means the subscription ended normally.
func (c *Channel) pump(ctx context.Context, conversationID string, onUpdate func([]*entity.Message)) (bool, error) {
	stream, err := c.repo.WatchRecentMessages(ctx, conversationID, c.window)
	if err != nil {
		return false, err
	}
	defer stream.Stop()

	delivered := false
	for {
		msgs, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, repository.ErrStreamStopped) {
				return delivered, nil
			}
			return delivered, err
		}
		if ctx.Err() != nil {
			return delivered, nil
		}
		delivered = true
		onUpdate(SortChronological(msgs))
	}
}

// SortChronological returns msgs ordered oldest first. Messages with equal
// timestamps are ordered by id so every subscriber sees the same order.
func SortChronological(msgs []*entity.Message) []*entity.Message {
	out := make([]*entity.Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
