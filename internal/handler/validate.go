package handler

import (
	"errors"
	"html"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// Validator adapts validator/v10 to echo.Validator.  Struct fields are
// reported by their json name.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			name = strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		}
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	strict := bluemonday.StrictPolicy()
	_ = v.RegisterValidation("nomarkup", func(fl validator.FieldLevel) bool {
		return isPlainText(strict, fl.Field().String())
	})
	return &Validator{v: v}
}

// Validate implements echo.Validator.
func (cv *Validator) Validate(i interface{}) error {
	return cv.v.Struct(i)
}

// isPlainText reports whether s survives the strict policy unchanged, i.e.
// it carries no tags.  The policy escapes entities, so compare unescaped.
func isPlainText(p *bluemonday.Policy, s string) bool {
	return html.UnescapeString(p.Sanitize(s)) == s
}

// validationMessages flattens validator errors into field -> message.  A
// non-validation error yields nil.
func validationMessages(err error) map[string]string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "max":
		return "Ensure this field has no more than " + fe.Param() + " characters."
	case "nomarkup":
		return "HTML markup is not allowed."
	default:
		return "Invalid value."
	}
}
