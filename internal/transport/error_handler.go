package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/velis74/notify-engine/internal/domain"
	"go.uber.org/zap"
)

// ErrorHandler maps errors escaping a route to JSON responses. Domain
// sentinels get their HTTP codes here so handlers can return them directly.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidIdentifier):
			code = fiber.StatusBadRequest
		case errors.Is(err, domain.ErrNotFound):
			code = fiber.StatusNotFound
		case errors.Is(err, domain.ErrConflict):
			code = fiber.StatusConflict
		}
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error("request error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
