package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// Validate checks card fields with go-playground/validator rules plus custom
// constraints. Absent fields report [MissingRequiredField], malformed ones
// [InvalidField].
func (c CardInstrument) Validate() error {
	if err := validate.Struct(c); err != nil {
		return normalizeValidationError(err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	if err := v.RegisterValidation("month", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		m, err := strconv.Atoi(value)
		return err == nil && m >= 1 && m <= 12
	}); err != nil {
		panic(err)
	}

	return v
}

func normalizeValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return NewValidationError(InvalidField, err.Error())
	}
	first := validationErrs[0]
	fieldPath := jsonPath(first)
	code := InvalidField
	if first.Tag() == "required" {
		code = MissingRequiredField
	}
	return NewValidationError(code, fmt.Sprintf("%s %s", fieldPath, validationMessage(first)), WithOffendingParam(fieldPath))
}

func jsonPath(fe validator.FieldError) string {
	path := fe.Namespace()
	if idx := strings.Index(path, "."); idx >= 0 {
		path = path[idx+1:]
	}
	if path == "" {
		return fe.Field()
	}
	return path
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("cannot exceed %s characters", fe.Param())
	case "numeric":
		return "must contain digits only"
	case "luhn_checksum":
		return "fails the Luhn check"
	case "month":
		return "must be between 01 and 12"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
