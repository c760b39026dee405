package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"bazaarchat/internal/domain/entity"
	"bazaarchat/internal/domain/repository"
	"bazaarchat/internal/domain/service"
	"bazaarchat/internal/infrastructure/metrics"
	"bazaarchat/pkg/errors"
	"bazaarchat/pkg/logger"
)

const moveTimeout = 30 * time.Second

// UpgradeResult tells the caller which conversation to show.
type UpgradeResult struct {
	ConversationID string `json:"conversation_id"`
	Outcome        string `json:"outcome"`
	Messages       int    `json:"messages,omitempty"`
}

// ConversationUpgradeUseCase moves a conversation under a new identifier:
// a buyer/seller chat once the item gets a moderator, or a direct chat
// still stored under the unhashed legacy id.
type ConversationUpgradeUseCase struct {
	convRepo repository.ConversationRepository
	group    singleflight.Group
	log      zerolog.Logger
}

func NewConversationUpgradeUseCase(convRepo repository.ConversationRepository) *ConversationUpgradeUseCase {
	return &ConversationUpgradeUseCase{
		convRepo: convRepo,
		log:      logger.Component("upgrade"),
	}
}

// UpgradeItemConversation moves the unmoderated conversation of target's
// item into target. Nothing happens when target has no moderator or the
// unmoderated conversation does not exist. On failure the result names the
// unmoderated conversation, which stays intact, together with a
// MIGRATION_ERROR.
func (uc *ConversationUpgradeUseCase) UpgradeItemConversation(ctx context.Context, target *entity.Conversation) (*UpgradeResult, error) {
	p := target.Participants
	if p.Moderator == "" {
		return &UpgradeResult{ConversationID: target.ID, Outcome: metrics.UpgradeNoop}, nil
	}

	oldID := service.ItemConversationID(target.ItemID, p.Buyer, p.Seller, service.NoModerator)
	return uc.move(ctx, oldID, target, metrics.UpgradeMigrated)
}

// AdoptLegacyDirectConversation moves a direct conversation stored under
// the legacy concatenated id to the hashed id.
func (uc *ConversationUpgradeUseCase) AdoptLegacyDirectConversation(ctx context.Context, target *entity.Conversation) (*UpgradeResult, error) {
	if len(target.Participants.Pair) != 2 {
		return nil, errors.BadRequest("A direct conversation has exactly two participants", nil)
	}

	legacyID := service.LegacyDirectConversationID(target.Participants.Pair[0], target.Participants.Pair[1])
	return uc.move(ctx, legacyID, target, metrics.UpgradeAdopted)
}

func (uc *ConversationUpgradeUseCase) move(ctx context.Context, fromID string, target *entity.Conversation, outcome string) (*UpgradeResult, error) {
	log := uc.log.With().Str("from", fromID).Str("to", target.ID).Logger()

	// Every viewer of the chat triggers this. Callers in this process share
	// one run; other processes are handled by the store's move primitive.
	v, err, _ := uc.group.Do(fromID+"->"+target.ID, func() (interface{}, error) {
		// The move must not be abandoned half way because one viewer left.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), moveTimeout)
		defer cancel()

		res, err := uc.runMove(ctx, log, fromID, target, outcome)
		if err != nil {
			metrics.ConversationUpgrades.WithLabelValues(metrics.UpgradeFailed).Inc()
			return nil, err
		}
		metrics.ConversationUpgrades.WithLabelValues(res.Outcome).Inc()
		return res, nil
	})
	if err != nil {
		logger.LogConversationError(fromID, "upgrade", err)
		return &UpgradeResult{ConversationID: fromID, Outcome: metrics.UpgradeFailed},
			errors.Migration("Conversation upgrade failed", err)
	}

	result := *v.(*UpgradeResult)
	return &result, nil
}

func (uc *ConversationUpgradeUseCase) runMove(ctx context.Context, log zerolog.Logger, fromID string, target *entity.Conversation, outcome string) (*UpgradeResult, error) {
	exists, err := uc.convRepo.Exists(ctx, fromID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &UpgradeResult{ConversationID: target.ID, Outcome: metrics.UpgradeNoop}, nil
	}

	res, err := uc.convRepo.MoveConversation(ctx, fromID, target)
	if err != nil {
		if errors.IsNotFound(err) {
			log.Debug().Msg("conversation already migrated")
			return &UpgradeResult{ConversationID: target.ID, Outcome: metrics.UpgradeNoop}, nil
		}
		return nil, err
	}

	log.Info().
		Int("messages", res.Messages).
		Bool("target_existed", res.TargetExisted).
		Msg("conversation migrated")
	return &UpgradeResult{ConversationID: target.ID, Outcome: outcome, Messages: res.Messages}, nil
}
