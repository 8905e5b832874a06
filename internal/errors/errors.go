package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

/**
 * Error taxonomy for the OCR pipeline
 *
 * Every failure that crosses a component boundary is a *ProcessingError so the
 * coordinator can record a readable message and callers can branch on the code.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Input errors, never retried
	ErrorValidation          ErrorCode = "VALIDATION_ERROR"
	ErrorUnsupportedLanguage ErrorCode = "UNSUPPORTED_LANGUAGE"
	ErrorUnsupportedFormat   ErrorCode = "UNSUPPORTED_FORMAT"

	// Lookup errors
	ErrorNotFound ErrorCode = "NOT_FOUND"

	// Document errors
	ErrorDecode    ErrorCode = "DECODE_ERROR"
	ErrorOCRFailed ErrorCode = "OCR_FAILED"

	// Collaborator and storage errors
	ErrorUpstream    ErrorCode = "UPSTREAM_ERROR"
	ErrorPersistence ErrorCode = "PERSISTENCE_ERROR"
)

// ProcessingError represents a structured pipeline error
type ProcessingError struct {
	Code       ErrorCode
	Message    string
	JobID      string
	StatusCode int // collaborator HTTP status, 0 when unknown
	Timestamp  time.Time
	Details    map[string]interface{}
	Cause      error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// ForJob returns a copy of the error tagged with a job id.
func (e *ProcessingError) ForJob(jobID string) *ProcessingError {
	cp := *e
	cp.JobID = jobID
	return &cp
}

// Factory functions for common errors

func NewValidationError(message string, details map[string]interface{}) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorValidation,
		Message:   message,
		Timestamp: time.Now(),
		Details:   details,
	}
}

func NewUnsupportedLanguageError(language string, supported []string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnsupportedLanguage,
		Message:   fmt.Sprintf("Unsupported language: %s", language),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"language":  language,
			"supported": strings.Join(supported, ","),
		},
	}
}

func NewUnsupportedFormatError(filename string, extension string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnsupportedFormat,
		Message:   fmt.Sprintf("Unsupported file type: %s", extension),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"filename":  filename,
			"extension": extension,
		},
	}
}

func NewNotFoundError(kind string, id string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorNotFound,
		Message:   fmt.Sprintf("%s not found: %s", kind, id),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"kind": kind,
			"id":   id,
		},
	}
}

func NewDecodeError(message string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDecode,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewOCRFailedError(page int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed on page %d", page),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"page": page,
		},
		Cause: cause,
	}
}

func NewUpstreamError(service string, statusCode int, cause error) *ProcessingError {
	msg := fmt.Sprintf("%s call failed", service)
	if statusCode > 0 {
		msg = fmt.Sprintf("%s call failed with HTTP %d", service, statusCode)
	}
	return &ProcessingError{
		Code:       ErrorUpstream,
		Message:    msg,
		StatusCode: statusCode,
		Timestamp:  time.Now(),
		Details: map[string]interface{}{
			"service": service,
		},
		Cause: cause,
	}
}

func NewPersistenceError(operation string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorPersistence,
		Message:   fmt.Sprintf("Failed to %s", operation),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": operation,
		},
		Cause: cause,
	}
}

// CodeOf returns the code of the first ProcessingError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsValidation reports whether err is an input error the caller has to fix.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case ErrorValidation, ErrorUnsupportedLanguage, ErrorUnsupportedFormat:
		return true
	}
	return false
}

func IsNotFound(err error) bool {
	return HasCode(err, ErrorNotFound)
}

// ToMap converts error to map for status payloads
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.JobID != "" {
		result["job_id"] = e.JobID
	}

	if e.StatusCode != 0 {
		result["status_code"] = e.StatusCode
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
