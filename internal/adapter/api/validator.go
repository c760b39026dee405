package api

import (
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"bazaarchat/internal/domain/service"
)

type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator returns the echo validator. Besides the built-in tags it
// knows "notblank" and "identity" (a non-zero wallet address).
func NewValidator() *CustomValidator {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("identity", func(fl validator.FieldLevel) bool {
		return service.IsValidIdentity(fl.Field().String())
	})
	return &CustomValidator{validator: v}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
