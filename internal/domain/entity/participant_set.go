package entity

import "bazaarchat/internal/domain/service"

// ParticipantSet is either a ParticipantList or a RoleMap.
type ParticipantSet interface {
	// Identities returns the distinct, non-empty, normalized identities.
	Identities() []string
	participantSet()
}

// ParticipantList is an unordered list of identities.
type ParticipantList []string

// RoleMap names the parties of an item transaction. Unset roles are "".
type RoleMap struct {
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
	Moderator string `json:"moderator"`
}

func (ParticipantList) participantSet() {}
func (RoleMap) participantSet()         {}

func (l ParticipantList) Identities() []string {
	return distinct(l...)
}

func (r RoleMap) Identities() []string {
	return distinct(r.Seller, r.Buyer, r.Moderator)
}

func distinct(identities ...string) []string {
	seen := make(map[string]struct{}, len(identities))
	out := make([]string, 0, len(identities))
	for _, id := range identities {
		id = service.NormalizeIdentity(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
