package serverutils

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// ValidateRequest checks struct tags on a bound request DTO and returns a
// 400 ApiError naming the first failing field.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return NewApiError(fiber.StatusBadRequest,
			fmt.Sprintf("Field '%s' failed validation rule '%s'", first.Field(), first.Tag()))
	}
	return NewApiError(fiber.StatusBadRequest, "Invalid request payload")
}
