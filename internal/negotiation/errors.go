package negotiation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	CodeValidation   = "validation"
	CodePrecondition = "precondition"
	CodeConsistency  = "consistency"
	CodeNotFound     = "not_found"
	CodeIntegrity    = "integrity"
	CodeDependency   = "dependency"
	CodeInternal     = "internal"
)

// Error is the structured result of every rejected operation. Field names the
// offending input for validation errors; Problems accumulates every failed
// readiness check for consistency errors.
type Error struct {
	Code     string
	Field    string
	Message  string
	Problems []string
	Status   int
	Cause    error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	if len(e.Problems) > 0 {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, strings.Join(e.Problems, "; "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by code, so callers can write
// errors.Is(err, &Error{Code: CodeNotFound}).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code && (t.Field == "" || t.Field == e.Field)
	}
	return false
}

func statusForCode(code string) int {
	switch code {
	case CodeValidation:
		return 400
	case CodeNotFound:
		return 404
	case CodePrecondition, CodeIntegrity:
		return 409
	case CodeConsistency:
		return 422
	case CodeDependency:
		return 503
	default:
		return 500
	}
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message, Status: statusForCode(code)}
}

// NewError lets collaborators outside the package report coded errors.
func NewError(code, message string) *Error {
	return newError(code, message)
}

func newFieldError(field, message string) *Error {
	err := newError(CodeValidation, message)
	err.Field = field
	return err
}

func newConsistencyError(message string, problems []string) *Error {
	err := newError(CodeConsistency, message)
	err.Problems = append([]string{}, problems...)
	return err
}

func wrapInternal(message string, cause error) *Error {
	err := newError(CodeInternal, message)
	err.Cause = cause
	return err
}

func notFound(kind string) *Error {
	return newError(CodeNotFound, kind+" not found")
}

// CodeOf returns the code of err when it is an *Error, otherwise internal.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// StatusOf maps err to an HTTP status for transport adapters.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return 500
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateInput runs struct-tag validation and reports the first failing
// field as a validation error.
func validateInput(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return wrapInternal("input validation failed", err)
	}
	fe := ve[0]
	return newFieldError(toSnake(fe.Field()), describeTag(fe))
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func toSnake(name string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range name {
		if r >= 'A' && r <= 'Z' {
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			prevLower = false
			continue
		}
		b.WriteRune(r)
		prevLower = true
	}
	return b.String()
}
