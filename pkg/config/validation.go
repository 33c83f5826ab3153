package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	// Durations are kept as strings so JSON and YAML configs can say "5s".
	_ = validate.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
}

// ValidateCoordinator checks the coordinator section.
func ValidateCoordinator(cfg *CoordinatorConfig) error {
	return formatValidationError(validate.Struct(cfg))
}

// ValidateNode checks the node section.
func ValidateNode(cfg *NodeConfig) error {
	return formatValidationError(validate.Struct(cfg))
}

// ValidateClient checks the client section.
func ValidateClient(cfg *ClientConfig) error {
	return formatValidationError(validate.Struct(cfg))
}

// formatValidationError converts validator errors into readable messages.
func formatValidationError(err error) error {
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
