package repository

import (
	"context"

	"bazaarchat/internal/domain/entity"
)

// ItemTransactionRepository resolves an item and its escrow parties.
type ItemTransactionRepository interface {
	GetByItemID(ctx context.Context, itemID string) (*entity.ItemTransaction, error)
}

type ProfileRepository interface {
	GetByIdentity(ctx context.Context, identity string) (*entity.Profile, error)
}
