package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/mukund1606/taxmann-project/internal/domain"
	apperrors "github.com/mukund1606/taxmann-project/pkg/util/errorutil"
)

const (
	identityKey = "auth_identity"

	// SessionCookie carries the session token for browser callers.
	SessionCookie = "session"
)

// AuthMiddleware validates session tokens and stores the caller identity.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, err := sessionToken(c)
	if err != nil {
		return err
	}

	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return apperrors.NewUnauthorized("invalid session")
	}

	c.Locals(identityKey, claims.Identity())
	return c.Next()
}

func sessionToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		if cookie := c.Cookies(SessionCookie); cookie != "" {
			return cookie, nil
		}
		return "", apperrors.NewUnauthorized("missing session")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// IdentityFromContext retrieves the authenticated caller.
func IdentityFromContext(c *fiber.Ctx) (domain.Identity, bool) {
	identity, ok := c.Locals(identityKey).(domain.Identity)
	return identity, ok
}
