package core

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Amount tags (gt, gte) compare against the numeric value.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Validate checks a create payload against its struct tags and returns a
// *ValidationError describing every failing field.
func Validate(payload any) error {
	err := validate.Struct(payload)
	if err == nil {
		return validatePayloadExtras(payload)
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate payload: %w", err)
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return NewValidationErrors(fields)
}

func validatePayloadExtras(payload any) error {
	var b map[string]decimal.Decimal
	switch p := payload.(type) {
	case NewGoal:
		b = p.Breakdown
	case *NewGoal:
		b = p.Breakdown
	default:
		return nil
	}
	if errs := validateBreakdown(b); len(errs) > 0 {
		return NewValidationErrors(errs)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
