package validation

import (
	"errors"
	"reflect"

	"github.com/eaglebank/transaction-service/shared/apperrors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Amounts are compared by sign only, so the float conversion cannot change the outcome.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Struct validates obj against its `validate` tags and returns the failures as
// field errors, or nil when obj is valid.
func Struct(obj any) []apperrors.FieldError {
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []apperrors.FieldError{{Field: "", Message: err.Error(), Type: "invalid"}}
	}

	out := make([]apperrors.FieldError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, apperrors.FieldError{
			Field:   fe.Field(),
			Message: errorMessage(fe),
			Type:    fe.Tag(),
		})
	}
	return out
}

// Scale checks that d carries at most places fractional digits.
func Scale(field string, d *decimal.Decimal, places int32) *apperrors.FieldError {
	if d == nil || d.Equal(d.Truncate(places)) {
		return nil
	}
	return &apperrors.FieldError{
		Field:   field,
		Message: "Value has too many decimal places",
		Type:    "scale",
	}
}

// Magnitude checks that the whole part of d has at most digits digits.
func Magnitude(field string, d *decimal.Decimal, digits int32) *apperrors.FieldError {
	if d == nil || d.Abs().LessThan(decimal.New(1, digits)) {
		return nil
	}
	return &apperrors.FieldError{
		Field:   field,
		Message: "Value is too large",
		Type:    "max",
	}
}

func errorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "oneof":
		return "Value must be one of: " + err.Param()
	case "gt":
		return "Value must be greater than " + err.Param()
	case "gte":
		return "Value must be greater than or equal to " + err.Param()
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	default:
		return "Invalid value"
	}
}
