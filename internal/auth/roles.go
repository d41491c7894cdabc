package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/memo-service/pkg/util/errorutil"
)

// RequireAuthenticated ensures a principal was attached by AuthMiddleware.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}

// CurrentIdentity returns the caller's identity or an UNAUTHORIZED error.
func CurrentIdentity(c *fiber.Ctx) (*Principal, error) {
	principal, ok := PrincipalFromContext(c)
	if !ok || principal == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}
