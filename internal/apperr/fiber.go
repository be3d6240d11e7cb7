package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorHandler renders every handler error as {"error": ..., "code": ...}.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		code := CodeInternal
		msg := "internal server error"

		var ae *Error
		var fe *fiber.Error
		switch {
		case errors.As(err, &ae):
			status, code, msg = ae.Status, ae.Code, ae.Message
		case errors.As(err, &fe):
			status, msg = fe.Code, fe.Message
			code = codeForStatus(fe.Code)
		}

		if status >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}

		return c.Status(status).JSON(fiber.Map{
			"error": msg,
			"code":  code,
		})
	}
}

func codeForStatus(status int) Code {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return CodeValidation
	case fiber.StatusUnauthorized:
		return CodeUnauthorized
	case fiber.StatusForbidden:
		return CodeForbidden
	case fiber.StatusNotFound:
		return CodeNotFound
	case fiber.StatusConflict:
		return CodeConflict
	case fiber.StatusTooManyRequests:
		return CodeRateLimited
	}
	return CodeInternal
}
