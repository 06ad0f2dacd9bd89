package server

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"coffrefort/pkg/apperr"
)

// requestValidator plugs validator/v10 into echo. Field names are reported
// by their json tag.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{validate: validate}
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// bindAndValidate decodes the request body into req and validates it.
// messages maps "field.tag" or "field" to the client-facing message.
func bindAndValidate(ctx echo.Context, req interface{}, messages map[string]string) error {
	if err := ctx.Bind(req); err != nil {
		return apperr.Validation("invalid request body", err)
	}
	if err := ctx.Validate(req); err != nil {
		return apperr.Validation(validationMessage(err, messages), err)
	}
	return nil
}

func validationMessage(err error, messages map[string]string) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "invalid request"
	}

	fieldErr := validationErrs[0]
	if message, ok := messages[fieldErr.Field()+"."+fieldErr.Tag()]; ok {
		return message
	}
	if message, ok := messages[fieldErr.Field()]; ok {
		return message
	}

	switch fieldErr.Tag() {
	case "required":
		return fieldErr.Field() + " is required"
	case "min", "gte":
		return fieldErr.Field() + " must be at least " + fieldErr.Param()
	case "gt":
		return fieldErr.Field() + " must be greater than " + fieldErr.Param()
	default:
		return fieldErr.Field() + " is invalid"
	}
}
