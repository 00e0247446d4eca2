package panel

import (
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validation codes reported per field. They double as message key suffixes.
const (
	CodeRequired      = "required"
	CodeInvalidFormat = "invalid_format"
	CodeInvalidOption = "invalid_option"
)

// ValidationError reports the fields that blocked a submission.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "panel: validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+e.Fields[name])
	}
	return "panel: validation failed: " + strings.Join(parts, ", ")
}

// Is lets callers match any ValidationError with errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validator checks normalised values against a panel definition.
type Validator struct {
	validate *validator.Validate
}

// NewValidator constructs a Validator.
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// Check returns a *ValidationError when any field fails its rules.
func (v *Validator) Check(def Definition, values Values) error {
	fields := make(map[string]string)
	for _, field := range def.Fields {
		value := values.Get(field.Name)
		if err := v.validate.Var(value, fieldTag(field)); err != nil {
			fields[field.Name] = codeFor(err)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

func fieldTag(field Field) string {
	parts := []string{"omitempty"}
	if field.Required {
		parts[0] = "required"
	}
	switch field.Kind {
	case KindDate:
		parts = append(parts, "datetime="+DateLayout)
	case KindTime:
		parts = append(parts, "datetime="+ClockLayout)
	case KindDateTime:
		parts = append(parts, "datetime="+DateTimeLayout)
	case KindSelect:
		values := make([]string, 0, len(field.Options))
		for _, opt := range field.Options {
			values = append(values, opt.Value)
		}
		parts = append(parts, "oneof="+strings.Join(values, " "))
	}
	return strings.Join(parts, ",")
}

func codeFor(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return CodeInvalidFormat
	}
	switch fieldErrs[0].Tag() {
	case "required":
		return CodeRequired
	case "oneof":
		return CodeInvalidOption
	default:
		return CodeInvalidFormat
	}
}
