package handlers

import (
	"errors"
	"time"

	"propdesk/internal/config"
	"propdesk/internal/core/domain"
	"propdesk/internal/core/services"
	"propdesk/internal/pkg/jwt"
	"propdesk/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const tokenCookie = "portal_token"

// AuthHandler handles portal authentication endpoints
type AuthHandler struct {
	authService *services.AuthService
	cfg         *config.Config
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *services.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		cfg:         cfg,
	}
}

// Login handles portal login
// @Summary Login
// @Description Authenticate with email and password and receive a portal credential
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body services.LoginInput true "Login credentials"
// @Success 200 {object} response.Response{data=domain.LoginResult}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req services.LoginInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	result, err := h.authService.Login(c.UserContext(), &req)
	if err != nil {
		if ve, ok := domain.AsValidation(err); ok {
			return response.ValidationFailed(c, ve.Field, ve.Message)
		}
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			return response.Unauthorized(c, "Invalid email or password")
		case errors.Is(err, services.ErrAccountInactive):
			return response.Forbidden(c, "Your account is not active")
		default:
			return response.InternalServerError(c, "Failed to login")
		}
	}

	h.setTokenCookie(c, result.AccessToken, result.ExpiresIn)

	return response.Success(c, "Login successful", result)
}

// Refresh rotates the presented credential
// @Summary Refresh credential
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=domain.RefreshResult}
// @Failure 401 {object} response.Response
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	claims, ok := c.Locals("claims").(*jwt.Claims)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	result, err := h.authService.Refresh(c.UserContext(), claims)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTokenExpired):
			h.clearTokenCookie(c)
			return response.Unauthorized(c, "Session expired, please sign in again")
		case errors.Is(err, services.ErrSessionRevoked), errors.Is(err, services.ErrInvalidToken):
			h.clearTokenCookie(c)
			return response.Unauthorized(c, "Session has ended, please sign in again")
		case errors.Is(err, services.ErrAccountInactive), errors.Is(err, services.ErrAccountNotFound):
			h.clearTokenCookie(c)
			return response.Unauthorized(c, "Your account is not active")
		default:
			return response.InternalServerError(c, "Failed to refresh session")
		}
	}

	h.setTokenCookie(c, result.AccessToken, result.ExpiresIn)

	return response.Success(c, "Session refreshed", result)
}

// Logout revokes the presented credential
// @Summary Logout
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if claims, ok := c.Locals("claims").(*jwt.Claims); ok {
		if err := h.authService.Logout(c.UserContext(), claims); err != nil {
			return response.InternalServerError(c, "Failed to logout")
		}
	}

	h.clearTokenCookie(c)

	return response.Success(c, "Logged out successfully", nil)
}

// LogoutAll revokes every session of the signed-in account
// @Summary Logout from all devices
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	accountID, ok := c.Locals("accountID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	if err := h.authService.LogoutAll(c.UserContext(), accountID); err != nil {
		return response.InternalServerError(c, "Failed to logout from all devices")
	}

	h.clearTokenCookie(c)

	return response.Success(c, "Logged out from all devices", nil)
}

// Me returns the signed-in account
// @Summary Get current account
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=domain.AccountIdentity}
// @Failure 401 {object} response.Response
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	accountID, ok := c.Locals("accountID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	account, err := h.authService.Me(c.UserContext(), accountID)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			return response.Unauthorized(c, "Account no longer exists")
		}
		return response.InternalServerError(c, "Failed to load account")
	}

	return response.Success(c, "Account retrieved successfully", account)
}

func (h *AuthHandler) setTokenCookie(c *fiber.Ctx, token string, maxAge int) {
	c.Cookie(&fiber.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   h.cfg.Cookie.Secure,
		HTTPOnly: true,
		SameSite: h.cfg.Cookie.SameSite,
		Domain:   h.cfg.Cookie.Domain,
	})
}

func (h *AuthHandler) clearTokenCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Now().Add(-1 * time.Hour),
		Secure:   h.cfg.Cookie.Secure,
		HTTPOnly: true,
		SameSite: h.cfg.Cookie.SameSite,
		Domain:   h.cfg.Cookie.Domain,
	})
}
