package middleware

import (
	"context"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"

	"bazaarchat/internal/usecase"
	"bazaarchat/pkg/errors"
	"bazaarchat/pkg/response"
)

const (
	sessionKey = "session"

	WalletHeader  = "X-Wallet-Address"
	NetworkHeader = "X-Network"
)

// TokenVerifier checks Firebase ID tokens. *auth.Client implements it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// AuthMiddleware turns a Firebase ID token, whose UID is the wallet
// address, into a usecase.Session. With allowWalletHeader set the wallet
// may be given directly in X-Wallet-Address; that is meant for development.
type AuthMiddleware struct {
	verifier          TokenVerifier
	allowWalletHeader bool
}

func NewAuthMiddleware(verifier TokenVerifier, allowWalletHeader bool) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:          verifier,
		allowWalletHeader: allowWalletHeader,
	}
}

func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := m.identity(c)
		if err != nil {
			return response.Error(c, err)
		}

		network := c.Request().Header.Get(NetworkHeader)
		if network == "" {
			network = c.QueryParam("network")
		}

		session, err := usecase.NewSession(identity, network)
		if err != nil {
			return response.Error(c, err)
		}

		c.Set(sessionKey, session)
		c.Set("uid", session.Identity)
		return next(c)
	}
}

func (m *AuthMiddleware) identity(c echo.Context) (string, error) {
	token := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if token == "" {
		// Browsers cannot set headers on websocket handshakes.
		token = c.QueryParam("token")
	}

	if token != "" {
		if m.verifier == nil {
			return "", errors.Unauthorized("Token authentication is not configured", nil)
		}
		verified, err := m.verifier.VerifyIDToken(c.Request().Context(), token)
		if err != nil {
			return "", errors.Unauthorized("Invalid or expired token", err)
		}
		return verified.UID, nil
	}

	if m.allowWalletHeader {
		wallet := c.Request().Header.Get(WalletHeader)
		if wallet == "" {
			wallet = c.QueryParam("wallet")
		}
		if wallet != "" {
			return wallet, nil
		}
	}

	return "", errors.Unauthorized("Authorization header is required", nil)
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// SessionFrom returns the session stored by Authenticate.
func SessionFrom(c echo.Context) (usecase.Session, error) {
	session, ok := c.Get(sessionKey).(usecase.Session)
	if !ok {
		return usecase.Session{}, errors.Unauthorized("Authentication required", nil)
	}
	return session, nil
}
