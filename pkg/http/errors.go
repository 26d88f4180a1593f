package http

import (
	"errors"
	"fmt"
	"net/http"

	"CandlePull/internal/domain/errs"
)

// AppError represents application-level error with HTTP status.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error.
func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Field:   field,
		Status:  status,
		Params:  make(map[string]interface{}),
	}
}

// WithParam sets a single error param.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithError wraps an underlying error.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// InternalError creates a 500 error.
func InternalError(message string) *AppError {
	return NewAppError("ERR_INTERNAL", "", message, http.StatusInternalServerError)
}

// ServiceUnavailableError creates a 503 error.
func ServiceUnavailableError(message string) *AppError {
	return NewAppError("ERR_SERVICE_UNAVAILABLE", "", message, http.StatusServiceUnavailable)
}

// FromDomain maps a classified ingestion error to an AppError.
func FromDomain(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var de *errs.Error
	if !errors.As(err, &de) {
		return InternalError("internal error").WithError(err)
	}

	status := http.StatusInternalServerError
	switch de.Kind {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindResolution:
		status = http.StatusNotFound
	case errs.KindConfiguration:
		status = http.StatusUnprocessableEntity
	case errs.KindSourceUnavailable:
		status = http.StatusServiceUnavailable
	}

	out := NewAppError(string(de.Kind), de.Field, de.Message, status).WithError(de.Err)
	for k, v := range de.Params {
		out.WithParam(k, v)
	}
	return out
}
