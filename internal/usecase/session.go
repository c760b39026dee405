package usecase

import (
	"bazaarchat/internal/domain/service"
	"bazaarchat/pkg/errors"
)

// Session is the authenticated caller of a use case.
type Session struct {
	Identity string
	Network  string
}

// NewSession normalizes identity so that it compares equal to the
// identities stored in conversations and inboxes.
func NewSession(identity, network string) (Session, error) {
	identity = service.NormalizeIdentity(identity)
	if identity == "" {
		return Session{}, errors.Unauthorized("A wallet identity is required", nil)
	}
	return Session{Identity: identity, Network: network}, nil
}
