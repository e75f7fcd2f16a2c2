package authflow

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Usernames follow the common web-framework rule: letters, digits and @.+-_ only.
var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

type inputValidator struct {
	validate *validator.Validate
}

func newInputValidator() *inputValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})

	return &inputValidator{validate: v}
}

// Struct validates s and converts failures into a *ValidationError.
func (v *inputValidator) Struct(s any) error {
	return v.convert(v.validate.Struct(s), "")
}

// Var validates a single value reported under field.
func (v *inputValidator) Var(field string, value any, tag string) error {
	return v.convert(v.validate.Var(value, tag), field)
}

func (v *inputValidator) convert(err error, field string) error {
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	out := &ValidationError{}
	for _, fe := range fieldErrs {
		name := fe.Field()
		if field != "" {
			name = field
		}
		out.Add(name, fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "username":
		return "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	case "len":
		return fmt.Sprintf("Ensure this field has exactly %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "number", "numeric":
		return "Enter a number."
	default:
		return fmt.Sprintf("Failed on the %q rule.", fe.Tag())
	}
}
