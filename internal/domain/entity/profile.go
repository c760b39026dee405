package entity

// Profile carries display fields for a wallet. All fields may be empty.
type Profile struct {
	Address    string `json:"address"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	AvatarHash string `json:"avatar_hash,omitempty"`
	Username   string `json:"username,omitempty"`
}

// DisplayName prefers the username, then the full name, then a shortened address.
func (p *Profile) DisplayName() string {
	if p.Username != "" {
		return p.Username
	}
	if name := joinName(p.FirstName, p.LastName); name != "" {
		return name
	}
	return ShortAddress(p.Address)
}

func joinName(first, last string) string {
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	default:
		return last
	}
}

// ShortAddress renders 0x1234…abcd style addresses.
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}
