package auth

import (
	"errors"
	"strings"

	"transport-backend/internal/apperr"
	"transport-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	CtxUserIDKey   = "user_id"
	CtxUserRoleKey = "user_role"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID uint
	Role   models.UserRole
}

func JWTMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization header must be 'Bearer <token>'")
		}

		id, err := ParseToken(secret, parts[1])
		if errors.Is(err, errMalformedClaims) {
			return fiber.NewError(fiber.StatusUnauthorized, "malformed token claims")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals(CtxUserIDKey, id.UserID)
		c.Locals(CtxUserRoleKey, id.Role)

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return apperr.Forbidden("role missing from request")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return apperr.Forbidden("role %s may not perform this action", role)
	}
}

// Current reads the identity stored by JWTMiddleware.
func Current(c *fiber.Ctx) (Identity, error) {
	id, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok {
		return Identity{}, apperr.Forbidden("user missing from request")
	}
	role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
	if !ok {
		return Identity{}, apperr.Forbidden("role missing from request")
	}
	return Identity{UserID: id, Role: role}, nil
}
