package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validationError turns validator output into an ErrValidation with a short
// human readable message for the first failing field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", ErrValidation, field)
	case "email":
		return fmt.Errorf("%w: %s is not a valid email address", ErrValidation, field)
	case "url", "http_url":
		return fmt.Errorf("%w: %s must be a valid URL", ErrValidation, field)
	case "min", "gte":
		return fmt.Errorf("%w: %s must be at least %s", ErrValidation, field, fe.Param())
	case "max", "lte":
		return fmt.Errorf("%w: %s must be at most %s", ErrValidation, field, fe.Param())
	case "eqfield":
		return fmt.Errorf("%w: %s does not match", ErrValidation, field)
	}
	return fmt.Errorf("%w: %s is invalid", ErrValidation, field)
}
