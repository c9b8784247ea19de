// Package apperror defines the error taxonomy shared by the cart and order
// services. Every error carries a machine-readable kind so transport layers
// can map it without string matching.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	// KindValidation is a client-fixable input or state problem.
	KindValidation Kind = "validation"
	// KindNotFound means a referenced entity is absent.
	KindNotFound Kind = "not_found"
	// KindConflict is a concurrent state change, retryable by resubmission.
	KindConflict Kind = "conflict"
)

// Violation is one entry of a batch validation result.
type Violation struct {
	Field     string `json:"field,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type Error struct {
	Kind       Kind
	Message    string
	Violations []Violation
	cause      error
}

func (e *Error) Error() string {
	if len(e.Violations) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, strings.Join(msgs, "; "))
}

func (e *Error) Unwrap() error {
	return e.cause
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func WithViolations(kind Kind, message string, violations []Violation) *Error {
	return &Error{Kind: kind, Message: message, Violations: violations}
}

// KindOf returns the kind of err, or false if err carries no kind.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
