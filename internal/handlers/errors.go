package handlers

import (
	"errors"

	"inventory/internal/apperror"
	"inventory/internal/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// respondError writes the {message} envelope for err. Storage failures are logged with their cause.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := apperror.StatusOf(err)
	if status >= fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Any(logger.RequestIDKey, c.Locals(logger.RequestIDKey)),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(fiber.Map{
		"message": apperror.MessageOf(err, "Internal server error"),
	})
}

// ErrorHandler renders errors escaping the route handlers, such as unknown routes and oversized
// bodies, in the same {message} envelope.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	log = logger.OrNop(log)
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"message": fe.Message})
		}
		return respondError(c, log, err)
	}
}
