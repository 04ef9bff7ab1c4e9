package domain

import (
	"errors"
	"strings"
)

// Error kinds. Handlers map these to HTTP status codes; callers test with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrPrecondition      = errors.New("precondition failed")
	ErrExternalService   = errors.New("payment processor unavailable")
	ErrReconciliationGap = errors.New("reconciliation gap")
	ErrNotFound          = errors.New("not found")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
)

// Error is a classified billing error. Kind is one of the sentinels above.
type Error struct {
	Kind    error
	Message string
	// Hint tells the caller how to resolve a precondition failure.
	Hint string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Validation(msg string) error {
	return &Error{Kind: ErrValidation, Message: msg}
}

func NotFound(msg string) error {
	return &Error{Kind: ErrNotFound, Message: msg}
}

func Precondition(msg, hint string) error {
	return &Error{Kind: ErrPrecondition, Message: msg, Hint: hint}
}

func ExternalService(msg string, err error) error {
	return &Error{Kind: ErrExternalService, Message: msg, Err: err}
}

func ReconciliationGap(msg string) error {
	return &Error{Kind: ErrReconciliationGap, Message: msg}
}

// HintOf returns the remediation hint carried by err, if any.
func HintOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Hint
	}
	return ""
}
