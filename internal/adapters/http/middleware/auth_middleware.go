package middleware

import (
	"context"
	"errors"
	"strings"

	"propdesk/internal/core/domain"
	"propdesk/internal/core/services"
	"propdesk/internal/pkg/jwt"
	"propdesk/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// TokenValidator checks a portal credential and returns its claims
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, accessToken string) (*jwt.Claims, error)
}

// AuthMiddleware creates authentication middleware
func AuthMiddleware(validator TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accessToken := bearerToken(c)

		// 1. No token found
		if accessToken == "" {
			return response.Unauthorized(c, "Access token required")
		}

		// 2. Validate token
		claims, err := validator.ValidateAccessToken(c.UserContext(), accessToken)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTokenExpired):
				return response.Unauthorized(c, "Access token expired")
			case errors.Is(err, services.ErrSessionRevoked):
				return response.Unauthorized(c, "Session has ended, please sign in again")
			default:
				return response.Unauthorized(c, "Invalid access token")
			}
		}

		// 3. Set account info in context
		c.Locals("accountID", claims.AccountID)
		c.Locals("email", claims.Email)
		c.Locals("accountType", claims.AccountType)
		c.Locals("claims", claims)

		return c.Next()
	}
}

// RoleMiddleware creates account-type authorization middleware
func RoleMiddleware(allowed ...domain.AccountType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accountType, ok := c.Locals("accountType").(string)
		if !ok {
			return response.Unauthorized(c, "Unauthorized")
		}

		for _, a := range allowed {
			if accountType == string(a) {
				return c.Next()
			}
		}

		return response.Forbidden(c, "You don't have permission to access this resource")
	}
}

// ManagerOnly allows property managers and admins
func ManagerOnly() fiber.Handler {
	return RoleMiddleware(domain.AccountManager, domain.AccountAdmin)
}

// bearerToken reads the credential from the cookie or the Authorization header
func bearerToken(c *fiber.Ctx) string {
	if token := c.Cookies("portal_token"); token != "" {
		return token
	}
	authHeader := c.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}
