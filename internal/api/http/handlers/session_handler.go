package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mukund1606/taxmann-project/internal/api/dto"
	"github.com/mukund1606/taxmann-project/internal/auth"
	"github.com/mukund1606/taxmann-project/internal/service"
	apperrors "github.com/mukund1606/taxmann-project/pkg/util/errorutil"
)

// SessionHandler exposes registration and the credential sign-in boundary.
type SessionHandler struct {
	auth         *service.AuthService
	secureCookie bool
}

// NewSessionHandler constructs handler. secureCookie marks the session cookie
// as HTTPS only.
func NewSessionHandler(authService *service.AuthService, secureCookie bool) *SessionHandler {
	return &SessionHandler{auth: authService, secureCookie: secureCookie}
}

// Register handles POST /auth/register.
func (h *SessionHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	account, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

// SignIn handles POST /auth/sign-in. Any failure, malformed bodies included,
// renders the same opaque message.
func (h *SessionHandler) SignIn(c *fiber.Ctx) error {
	var req dto.SignInRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewAuthenticationFailed()
	}

	session, err := h.auth.SignIn(c.UserContext(), service.SignInInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     auth.SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{"data": dto.SessionResponse{
		User:      session.Identity,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
	}})
}

// Session handles GET /auth/session.
func (h *SessionHandler) Session(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"user": identity}})
}

// SignOut handles POST /auth/sign-out by expiring the cookie. Tokens are
// stateless, so a copied bearer token stays valid until it expires.
func (h *SessionHandler) SignOut(c *fiber.Ctx) error {
	c.ClearCookie(auth.SessionCookie)
	return c.SendStatus(http.StatusNoContent)
}
