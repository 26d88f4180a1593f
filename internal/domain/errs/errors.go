package errs

import (
	"errors"
	"fmt"
)

// Kind classifies ingestion failures.
type Kind string

const (
	KindConfiguration     Kind = "ERR_CONFIGURATION"
	KindResolution        Kind = "ERR_RESOLUTION"
	KindSourceUnavailable Kind = "ERR_SOURCE_UNAVAILABLE"
	KindValidation        Kind = "ERR_VALIDATION"
	KindUnknown           Kind = "ERR_UNKNOWN"
)

// Error is a classified domain error.
type Error struct {
	Kind    Kind                   `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Err     error                  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithField sets the offending input field.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithParam sets a single error param.
func (e *Error) WithParam(key string, value interface{}) *Error {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithError wraps an underlying error.
func (e *Error) WithError(err error) *Error {
	e.Err = err
	return e
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Configuration reports invalid connection parameters, digit counts or mixed ranges.
func Configuration(message string) *Error {
	return newError(KindConfiguration, message)
}

func Configurationf(format string, a ...interface{}) *Error {
	return Configuration(fmt.Sprintf(format, a...))
}

// Resolution reports an instrument or period name that is not registered.
func Resolution(message string) *Error {
	return newError(KindResolution, message)
}

func Resolutionf(format string, a ...interface{}) *Error {
	return Resolution(fmt.Sprintf(format, a...))
}

// SourceUnavailable reports a market-data terminal that could not be reached.
func SourceUnavailable(message string, err error) *Error {
	return newError(KindSourceUnavailable, message).WithError(err)
}

// Validation reports a malformed user literal.
func Validation(field, message string) *Error {
	return newError(KindValidation, message).WithField(field)
}

func Validationf(field, format string, a ...interface{}) *Error {
	return Validation(field, fmt.Sprintf(format, a...))
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
