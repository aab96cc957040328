package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/rumi-monitor/internal/domain"
)

// RequireOperator ensures the caller holds an operator token.
func RequireOperator() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if principal.SubjectType != domain.SubjectTypeOperator {
			return fiber.NewError(http.StatusForbidden, "operator required")
		}
		return c.Next()
	}
}
