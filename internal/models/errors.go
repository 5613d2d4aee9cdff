package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("requested resource not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("resource conflict")
	ErrStorage          = errors.New("storage failure")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(msg string, flds ...FieldError) error {
	return &ValidationError{Err: errors.New(msg), Fields: flds}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Err.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Error))
	}
	return fmt.Sprintf("%s (%s)", e.Err, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() []error {
	return []error{e.Err, ErrValidation}
}

var validate = validator.New()

// validateStruct runs struct tag validation and folds the result into a
// ValidationError.
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate: %w", err)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Error: fe.Tag()})
	}
	return &ValidationError{Err: errors.New("invalid input"), Fields: fields}
}
