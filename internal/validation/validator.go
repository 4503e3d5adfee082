// Package validation checks importer options and request parameters.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Validator wraps a validator instance with the custom tags importers use:
//
//	urlmap  a BASEURL=PATH image map where BASEURL is an absolute URL
//	slug    a kebab-case post slug
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name, _, _ := strings.Cut(fld.Tag.Get("flag"), ","); name != "" && name != "-" {
			return name
		}
		return fld.Name
	})
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("urlmap", validURLMap)
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugRegex.MatchString(fl.Field().String())
	})
	return &Validator{validate: v}
}

func validURLMap(fl validator.FieldLevel) bool {
	prefix, dir, ok := strings.Cut(fl.Field().String(), "=")
	if !ok || dir == "" {
		return false
	}
	u, err := url.Parse(prefix)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Struct validates s and returns one error per failing field.
func (v *Validator) Struct(s interface{}) []ValidationError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: message(fe),
			Value:   displayValue(fe.Value()),
		})
	}
	return out
}

// Check is Struct folded into a single error, or nil.
func (v *Validator) Check(s interface{}) error {
	errs := v.Struct(s)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("invalid options: %s", strings.Join(msgs, "; "))
}

// Var validates a single value against tag, naming it field in the error.
func (v *Validator) Var(field string, value interface{}, tag string) *ValidationError {
	err := v.validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &ValidationError{Field: field, Message: message(verrs[0]), Value: displayValue(value)}
	}
	return &ValidationError{Field: field, Message: err.Error(), Value: displayValue(value)}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be an absolute URL"
	case "urlmap":
		return "must be BASEURL=PATH with an absolute BASEURL"
	case "slug":
		return "must be kebab-case (lowercase letters, numbers, hyphens)"
	case "gte":
		return "must be at least " + fe.Param()
	case "hostname", "hostname_port", "hostname_port|hostname":
		return "must be a host name"
	case "file":
		return "must be an existing file"
	case "dir":
		return "must be an existing directory"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

func displayValue(v interface{}) interface{} {
	if s, ok := v.(string); ok && s == "" {
		return nil
	}
	return v
}
