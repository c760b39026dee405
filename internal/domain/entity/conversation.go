package entity

import (
	"fmt"
	"time"

	"bazaarchat/internal/domain/service"
)

const (
	ConversationKindItem   = "item"
	ConversationKindDirect = "direct"
)

// Participants holds either the role form (seller, buyer, optional moderator)
// of an item conversation or the unordered Pair of a direct conversation.
type Participants struct {
	Seller    string   `json:"seller,omitempty" firestore:"seller,omitempty"`
	Buyer     string   `json:"buyer,omitempty" firestore:"buyer,omitempty"`
	Moderator string   `json:"moderator" firestore:"moderator"`
	Pair      []string `json:"pair,omitempty" firestore:"pair,omitempty"`
}

type Conversation struct {
	ID           string       `json:"id" firestore:"id"`
	Kind         string       `json:"kind" firestore:"kind"`
	ItemID       string       `json:"item_id,omitempty" firestore:"itemId,omitempty"`
	Participants Participants `json:"participants" firestore:"participants"`
	Members      []string     `json:"members" firestore:"members"`
	CreatedAt    time.Time    `json:"created_at" firestore:"createdAt"`
	UpdatedAt    time.Time    `json:"updated_at" firestore:"updatedAt"`
}

// NewItemConversation builds the conversation document for an item. Its ID
// is derived from the participants.
func NewItemConversation(itemID, buyer, seller, moderator string) *Conversation {
	p := Participants{
		Seller:    service.NormalizeIdentity(seller),
		Buyer:     service.NormalizeIdentity(buyer),
		Moderator: service.NormalizeIdentity(moderator),
	}
	return &Conversation{
		ID:           service.ItemConversationID(itemID, p.Buyer, p.Seller, p.Moderator),
		Kind:         ConversationKindItem,
		ItemID:       itemID,
		Participants: p,
		Members:      p.Set().Identities(),
	}
}

func NewDirectConversation(a, b string) *Conversation {
	p := Participants{
		Pair: []string{service.NormalizeIdentity(a), service.NormalizeIdentity(b)},
	}
	return &Conversation{
		ID:           service.DirectConversationID(a, b),
		Kind:         ConversationKindDirect,
		Participants: p,
		Members:      p.Set().Identities(),
	}
}

// Set returns the participants as a ParticipantSet.
func (p Participants) Set() ParticipantSet {
	if len(p.Pair) > 0 {
		return ParticipantList(p.Pair)
	}
	return RoleMap{Buyer: p.Buyer, Seller: p.Seller, Moderator: p.Moderator}
}

// HasMember reports whether identity is one of the conversation's members.
func (c *Conversation) HasMember(identity string) bool {
	identity = service.NormalizeIdentity(identity)
	if identity == "" {
		return false
	}
	for _, m := range c.Participants.Set().Identities() {
		if m == identity {
			return true
		}
	}
	return false
}

// ExpectedID recomputes the identifier from the participant set.
func (c *Conversation) ExpectedID() string {
	if c.Kind == ConversationKindDirect {
		if len(c.Participants.Pair) != 2 {
			return ""
		}
		return service.DirectConversationID(c.Participants.Pair[0], c.Participants.Pair[1])
	}
	p := c.Participants
	return service.ItemConversationID(c.ItemID, p.Buyer, p.Seller, p.Moderator)
}

// Validate checks that the moderator slot is empty or a real identity and
// that the stored ID matches the participants.
func (c *Conversation) Validate() error {
	if m := c.Participants.Moderator; m != "" && !service.IsValidIdentity(m) {
		return fmt.Errorf("conversation %s: moderator %q is not a valid identity", c.ID, m)
	}
	if want := c.ExpectedID(); want != c.ID {
		return fmt.Errorf("conversation %s: id does not match participants (want %s)", c.ID, want)
	}
	return nil
}
