package usecase

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"bazaarchat/internal/domain/entity"
	"bazaarchat/internal/domain/repository"
	"bazaarchat/internal/domain/service"
	"bazaarchat/internal/infrastructure/metrics"
	"bazaarchat/internal/infrastructure/ratelimit"
	"bazaarchat/internal/infrastructure/realtime"
	"bazaarchat/pkg/errors"
	"bazaarchat/pkg/logger"
)

const (
	maxContentLength = 4000
	previewLength    = 80
	hashedIDLength   = sha256.Size * 2
)

type ChatUseCase struct {
	convRepo      repository.ConversationRepository
	itemRepo      repository.ItemTransactionRepository
	profileRepo   repository.ProfileRepository
	upgrades      *ConversationUpgradeUseCase
	notifications *NotificationUseCase
	channel       *realtime.Channel
	rateLimiter   *ratelimit.RateLimiter
	window        int
	log           zerolog.Logger
}

func NewChatUseCase(
	convRepo repository.ConversationRepository,
	itemRepo repository.ItemTransactionRepository,
	profileRepo repository.ProfileRepository,
	upgrades *ConversationUpgradeUseCase,
	notifications *NotificationUseCase,
	channel *realtime.Channel,
	rateLimiter *ratelimit.RateLimiter,
	window int,
) *ChatUseCase {
	if window <= 0 {
		window = realtime.DefaultWindow
	}
	return &ChatUseCase{
		convRepo:      convRepo,
		itemRepo:      itemRepo,
		profileRepo:   profileRepo,
		upgrades:      upgrades,
		notifications: notifications,
		channel:       channel,
		rateLimiter:   rateLimiter,
		window:        window,
		log:           logger.Component("chat"),
	}
}

// ConversationView is what a chat screen needs on open. The conversation
// may not be stored yet; it is created with the first message.
type ConversationView struct {
	Conversation *entity.Conversation `json:"conversation"`
	Messages     []*entity.Message    `json:"messages"`
	Stored       bool                 `json:"stored"`
	Upgrade      *UpgradeResult       `json:"upgrade,omitempty"`
}

// ConversationRef names a conversation by id, by item or by direct peer.
// The first non-empty field wins, in that order.
type ConversationRef struct {
	ConversationID string
	ItemID         string
	Peer           string
}

// resolveItemConversation works out who talks about itemID and under which
// id. An item without a buyer is discussed between the seller and whoever
// opens it. Opening a moderated conversation migrates the unmoderated one
// first; if that fails the unmoderated conversation is used.
func (uc *ChatUseCase) resolveItemConversation(ctx context.Context, session Session, itemID string) (*entity.Conversation, *UpgradeResult, error) {
	if strings.TrimSpace(itemID) == "" {
		return nil, nil, errors.BadRequest("Item id is required", nil)
	}

	tx, err := uc.itemRepo.GetByItemID(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}

	roles := tx.Roles()
	if roles.Buyer == "" {
		if session.Identity == roles.Seller {
			return nil, nil, errors.BadRequest("Item has no buyer yet; reply from the conversation list", nil)
		}
		roles.Buyer = session.Identity
	}
	if !isParticipant(roles, session.Identity) {
		return nil, nil, errors.Forbidden("You are not a party of this item's transaction", nil)
	}

	target := entity.NewItemConversation(itemID, roles.Buyer, roles.Seller, roles.Moderator)
	if roles.Moderator == "" {
		return target, nil, nil
	}

	result, err := uc.upgrades.UpgradeItemConversation(ctx, target)
	if err != nil {
		uc.log.Warn().Err(err).Str("item_id", itemID).Msg("showing unmoderated conversation")
		return entity.NewItemConversation(itemID, roles.Buyer, roles.Seller, service.NoModerator), result, nil
	}
	return target, result, nil
}

// resolveDirectConversation returns the hashed direct conversation between
// the caller and peer, adopting a legacy one if it exists.
func (uc *ChatUseCase) resolveDirectConversation(ctx context.Context, session Session, peer string) (*entity.Conversation, *UpgradeResult, error) {
	peer = service.NormalizeIdentity(peer)
	if peer == "" {
		return nil, nil, errors.BadRequest("Peer identity is required", nil)
	}
	if peer == session.Identity {
		return nil, nil, errors.BadRequest("You cannot chat with yourself", nil)
	}

	target := entity.NewDirectConversation(session.Identity, peer)
	result, err := uc.upgrades.AdoptLegacyDirectConversation(ctx, target)
	if err != nil {
		if result == nil {
			return nil, nil, err
		}
		uc.log.Warn().Err(err).Str("peer", peer).Msg("showing legacy direct conversation")
		legacy := entity.NewDirectConversation(session.Identity, peer)
		legacy.ID = result.ConversationID
		return legacy, result, nil
	}
	return target, result, nil
}

func (uc *ChatUseCase) OpenItemConversation(ctx context.Context, session Session, itemID string) (*ConversationView, error) {
	conv, result, err := uc.resolveItemConversation(ctx, session, itemID)
	if err != nil {
		return nil, err
	}
	return uc.view(ctx, conv, result)
}

func (uc *ChatUseCase) OpenDirectConversation(ctx context.Context, session Session, peer string) (*ConversationView, error) {
	conv, result, err := uc.resolveDirectConversation(ctx, session, peer)
	if err != nil {
		return nil, err
	}
	return uc.view(ctx, conv, result)
}

func (uc *ChatUseCase) view(ctx context.Context, conv *entity.Conversation, result *UpgradeResult) (*ConversationView, error) {
	view := &ConversationView{Conversation: conv, Messages: []*entity.Message{}, Upgrade: result}

	stored, err := uc.convRepo.GetByID(ctx, conv.ID)
	switch {
	case err == nil:
		if err := uc.verify(stored); err != nil {
			return nil, err
		}
		view.Conversation = stored
		view.Stored = true
	case errors.IsNotFound(err):
		return view, nil
	default:
		return nil, err
	}

	recent, err := uc.convRepo.RecentMessages(ctx, conv.ID, uc.window)
	if err != nil {
		return nil, err
	}
	view.Messages = realtime.SortChronological(recent)
	return view, nil
}

// verify rejects documents whose id does not match their participants.
// Ids that are not a hex digest predate hashing and are not checked.
func (uc *ChatUseCase) verify(conv *entity.Conversation) error {
	if len(conv.ID) != hashedIDLength {
		return nil
	}
	if err := conv.Validate(); err != nil {
		uc.log.Error().Err(err).Str("conversation_id", conv.ID).Msg("corrupt conversation")
		return errors.Internal("Conversation is corrupt", err)
	}
	return nil
}

func (uc *ChatUseCase) SendItemMessage(ctx context.Context, session Session, itemID, content string) (*entity.Message, error) {
	if err := uc.checkSend(session, content); err != nil {
		return nil, err
	}

	conv, _, err := uc.resolveItemConversation(ctx, session, itemID)
	if err != nil {
		return nil, err
	}
	return uc.send(ctx, session, conv, content)
}

func (uc *ChatUseCase) SendDirectMessage(ctx context.Context, session Session, peer, content string) (*entity.Message, error) {
	if err := uc.checkSend(session, content); err != nil {
		return nil, err
	}

	conv, _, err := uc.resolveDirectConversation(ctx, session, peer)
	if err != nil {
		return nil, err
	}
	return uc.send(ctx, session, conv, content)
}

// SendToConversation appends to a stored conversation the caller belongs
// to, for example a seller answering a prospective buyer.
func (uc *ChatUseCase) SendToConversation(ctx context.Context, session Session, conversationID, content string) (*entity.Message, error) {
	if err := uc.checkSend(session, content); err != nil {
		return nil, err
	}

	conv, err := uc.memberConversation(ctx, session, conversationID)
	if err != nil {
		return nil, err
	}
	return uc.send(ctx, session, conv, content)
}

func (uc *ChatUseCase) checkSend(session Session, content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.Validation("Message content cannot be empty")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return errors.Validation(fmt.Sprintf("Message content cannot exceed %d characters", maxContentLength))
	}

	allowed, wait := uc.rateLimiter.Allow(session.Identity, ratelimit.ActionSendMessage)
	if !allowed {
		return errors.TooManyRequests(fmt.Sprintf("Too many messages, try again in %s", wait.Round(time.Second)))
	}
	return nil
}

func (uc *ChatUseCase) send(ctx context.Context, session Session, conv *entity.Conversation, content string) (*entity.Message, error) {
	stored, created, err := uc.convRepo.GetOrCreate(ctx, conv)
	if err != nil {
		return nil, err
	}
	if err := uc.verify(stored); err != nil {
		return nil, err
	}
	if created {
		uc.log.Info().Str("conversation_id", stored.ID).Str("kind", stored.Kind).Msg("conversation created")
	}

	msg := &entity.Message{Content: content, From: session.Identity}
	if err := uc.convRepo.AppendMessage(ctx, stored.ID, msg); err != nil {
		return nil, err
	}
	metrics.MessagesSent.Inc()

	actionURL := "/chat/" + stored.ID
	if stored.ItemID != "" {
		actionURL = "/chat/item/" + stored.ItemID
	}

	// Fan-out problems never fail the send.
	err = uc.notifications.NotifyParticipants(ctx, stored.Participants.Set(), NotificationInput{
		Key:       msg.ID,
		Message:   fmt.Sprintf("%s: %s", uc.displayName(ctx, session.Identity), preview(content)),
		From:      session.Identity,
		ItemID:    stored.ItemID,
		ActionURL: actionURL,
		Type:      entity.NotificationTypeChat,
	})
	if err != nil {
		logger.LogConversationError(stored.ID, "notify_participants", err)
	}

	return msg, nil
}

func (uc *ChatUseCase) displayName(ctx context.Context, identity string) string {
	profile, err := uc.profileRepo.GetByIdentity(ctx, identity)
	if err != nil {
		uc.log.Debug().Err(err).Str("identity", identity).Msg("profile lookup failed")
		return entity.ShortAddress(identity)
	}
	return profile.DisplayName()
}

func preview(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLength]) + "…"
}

func (uc *ChatUseCase) memberConversation(ctx context.Context, session Session, conversationID string) (*entity.Conversation, error) {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(session.Identity) {
		return nil, errors.Forbidden("You are not a member of this conversation", nil)
	}
	if err := uc.verify(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations returns the caller's conversations, most recently
// active first. Corrupt documents are left out.
func (uc *ChatUseCase) ListConversations(ctx context.Context, session Session) ([]*entity.Conversation, error) {
	convs, err := uc.convRepo.ListByMember(ctx, session.Identity)
	if err != nil {
		return nil, err
	}

	out := make([]*entity.Conversation, 0, len(convs))
	for _, conv := range convs {
		if uc.verify(conv) != nil {
			continue
		}
		out = append(out, conv)
	}
	return out, nil
}

// GetMessages returns the full history of a conversation, oldest first.
func (uc *ChatUseCase) GetMessages(ctx context.Context, session Session, conversationID string) ([]*entity.Message, error) {
	if _, err := uc.memberConversation(ctx, session, conversationID); err != nil {
		return nil, err
	}
	return uc.convRepo.ListMessages(ctx, conversationID)
}

// Subscribe resolves ref the same way opening the conversation does and
// starts delivering its recent messages. Both callbacks receive the id that
// is being watched, which is also returned.
func (uc *ChatUseCase) Subscribe(
	ctx context.Context,
	session Session,
	ref ConversationRef,
	onUpdate func(conversationID string, msgs []*entity.Message),
	onError func(conversationID string, err error),
) (string, realtime.Unsubscribe, error) {
	var (
		conv *entity.Conversation
		err  error
	)
	switch {
	case ref.ConversationID != "":
		conv, err = uc.memberConversation(ctx, session, ref.ConversationID)
	case ref.ItemID != "":
		conv, _, err = uc.resolveItemConversation(ctx, session, ref.ItemID)
	case ref.Peer != "":
		conv, _, err = uc.resolveDirectConversation(ctx, session, ref.Peer)
	default:
		err = errors.BadRequest("A conversation id, item id or peer is required", nil)
	}
	if err != nil {
		return "", nil, err
	}

	id := conv.ID
	unsubscribe := uc.channel.Subscribe(ctx, id,
		func(msgs []*entity.Message) { onUpdate(id, msgs) },
		func(err error) { onError(id, err) },
	)
	return id, unsubscribe, nil
}
