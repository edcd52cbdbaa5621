package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// ApiError carries an HTTP status through the service layer so the error
// middleware can map domain failures without string matching.
type ApiError struct {
	Status  int
	Message string
}

func (e *ApiError) Error() string {
	return e.Message
}

func NewApiError(status int, message string) *ApiError {
	return &ApiError{Status: status, Message: message}
}

func BadRequest(message string) *ApiError {
	return NewApiError(fiber.StatusBadRequest, message)
}

func NotFound(message string) *ApiError {
	return NewApiError(fiber.StatusNotFound, message)
}

func Forbidden(message string) *ApiError {
	return NewApiError(fiber.StatusForbidden, message)
}

// ErrorHandlerMiddleware converts errors bubbled out of controllers into the
// uniform JSON envelope. Unknown errors become 500s with a generic message
// so internals never leak to clients.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var apiErr *ApiError
		if errors.As(err, &apiErr) {
			return ctx.Status(apiErr.Status).JSON(ErrorResponse(apiErr.Message))
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Message))
		}

		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse("Internal server error"))
	}
}
