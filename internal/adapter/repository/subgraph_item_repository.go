package repository

import (
	"context"
	"strings"

	"github.com/machinebox/graphql"

	"bazaarchat/internal/domain/entity"
	"bazaarchat/internal/domain/repository"
	"bazaarchat/internal/domain/service"
	"bazaarchat/pkg/errors"
)

const itemQuery = `
query Item($id: ID!) {
  item(id: $id) {
    id
    title
    price
    buyer
    seller
    moderator
    moderatorFee
    itemStatus
  }
}`

const userQuery = `
query User($id: ID!) {
  user(id: $id) {
    id
    firstName
    lastName
    avatarHash
    username
  }
}`

type subgraphItem struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Price        string `json:"price"`
	Buyer        string `json:"buyer"`
	Seller       string `json:"seller"`
	Moderator    string `json:"moderator"`
	ModeratorFee string `json:"moderatorFee"`
	ItemStatus   string `json:"itemStatus"`
}

type subgraphUser struct {
	ID         string `json:"id"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	AvatarHash string `json:"avatarHash"`
	Username   string `json:"username"`
}

type subgraphItemRepository struct {
	client *graphql.Client
}

// NewSubgraphItemRepository reads items and their escrow parties from the
// marketplace subgraph.
func NewSubgraphItemRepository(client *graphql.Client) repository.ItemTransactionRepository {
	return &subgraphItemRepository{client: client}
}

func (r *subgraphItemRepository) GetByItemID(ctx context.Context, itemID string) (*entity.ItemTransaction, error) {
	req := graphql.NewRequest(itemQuery)
	req.Var("id", itemID)

	var resp struct {
		Item *subgraphItem `json:"item"`
	}
	if err := r.client.Run(ctx, req, &resp); err != nil {
		return nil, errors.Internal("Failed to query item", err)
	}
	if resp.Item == nil {
		return nil, errors.NotFound("Item", nil)
	}

	return &entity.ItemTransaction{
		ItemID:       itemID,
		Title:        resp.Item.Title,
		Price:        resp.Item.Price,
		Buyer:        service.NormalizeIdentity(resp.Item.Buyer),
		Seller:       service.NormalizeIdentity(resp.Item.Seller),
		Moderator:    service.NormalizeIdentity(resp.Item.Moderator),
		ModeratorFee: resp.Item.ModeratorFee,
		ItemStatus:   resp.Item.ItemStatus,
	}, nil
}

type subgraphProfileRepository struct {
	client *graphql.Client
}

func NewSubgraphProfileRepository(client *graphql.Client) repository.ProfileRepository {
	return &subgraphProfileRepository{client: client}
}

// GetByIdentity returns an address-only profile for wallets the subgraph
// does not know.
func (r *subgraphProfileRepository) GetByIdentity(ctx context.Context, identity string) (*entity.Profile, error) {
	req := graphql.NewRequest(userQuery)
	req.Var("id", strings.ToLower(identity))

	var resp struct {
		User *subgraphUser `json:"user"`
	}
	if err := r.client.Run(ctx, req, &resp); err != nil {
		return nil, errors.Internal("Failed to query user profile", err)
	}

	profile := &entity.Profile{Address: identity}
	if resp.User != nil {
		profile.FirstName = resp.User.FirstName
		profile.LastName = resp.User.LastName
		profile.AvatarHash = resp.User.AvatarHash
		profile.Username = resp.User.Username
	}
	return profile, nil
}
