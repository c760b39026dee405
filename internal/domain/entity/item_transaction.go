package entity

// ItemTransaction is the subgraph's view of a listing and its escrow state.
// Unset parties are "".
type ItemTransaction struct {
	ItemID       string `json:"item_id"`
	Title        string `json:"title,omitempty"`
	Price        string `json:"price,omitempty"`
	Buyer        string `json:"buyer"`
	Seller       string `json:"seller"`
	Moderator    string `json:"moderator"`
	ModeratorFee string `json:"moderator_fee,omitempty"`
	ItemStatus   string `json:"item_status"`
}

func (t *ItemTransaction) Roles() RoleMap {
	return RoleMap{Buyer: t.Buyer, Seller: t.Seller, Moderator: t.Moderator}
}

func (t *ItemTransaction) HasModerator() bool {
	return t.Moderator != ""
}
