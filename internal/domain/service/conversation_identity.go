package service

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NoModerator is the moderator token used before a moderator is assigned.
const NoModerator = ""

var zeroAddress = common.Address{}

// NormalizeIdentity lower-cases EVM addresses so that checksummed and
// lower-case spellings of the same wallet resolve to the same token. The
// zero address means "unset" and maps to the empty string. Anything that is
// not a hex address is returned unchanged.
func NormalizeIdentity(identity string) string {
	trimmed := strings.TrimSpace(identity)
	if !common.IsHexAddress(trimmed) {
		return trimmed
	}
	addr := common.HexToAddress(trimmed)
	if addr == zeroAddress {
		return ""
	}
	return strings.ToLower(addr.Hex())
}

// IsValidIdentity reports whether identity is a non-zero wallet address.
func IsValidIdentity(identity string) bool {
	return common.IsHexAddress(identity) && NormalizeIdentity(identity) != ""
}

// ResolveConversationID hashes the tokens after sorting them, so the result
// does not depend on argument order. Empty tokens take part in the hash.
func ResolveConversationID(tokens ...string) string {
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, "")))
	return hex.EncodeToString(sum[:])
}

// ItemConversationID identifies the conversation about an item between its
// buyer, seller and (possibly unset) moderator.
func ItemConversationID(itemID, buyer, seller, moderator string) string {
	return ResolveConversationID(
		itemID,
		NormalizeIdentity(buyer),
		NormalizeIdentity(seller),
		NormalizeIdentity(moderator),
	)
}

// DirectConversationID identifies an item-agnostic conversation between two wallets.
func DirectConversationID(a, b string) string {
	return ResolveConversationID(NormalizeIdentity(a), NormalizeIdentity(b))
}

// LegacyDirectConversationID is the unhashed smaller-then-larger
// concatenation written by the older direct chat. It is only used to find
// conversations that still need to be moved under DirectConversationID.
func LegacyDirectConversationID(a, b string) string {
	a, b = NormalizeIdentity(a), NormalizeIdentity(b)
	if a < b {
		return a + b
	}
	return b + a
}
