package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common application errors
var (
	ErrTrainerNotFound    = errors.New("trainer not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
)

// Search backend errors. Strategies recover from the first two by falling
// through to the next strategy.
var (
	ErrBackendUnavailable   = errors.New("backend unavailable")
	ErrUnsupportedPredicate = errors.New("unsupported predicate")
	ErrExhaustedStrategies  = errors.New("all search strategies failed")
	ErrRefreshFailed        = errors.New("materialized view refresh failed")
)

// IsRecoverable reports whether a strategy failure should fall through to the
// next strategy rather than abort the search
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrUnsupportedPredicate)
}

// APIError represents a structured API error response
type APIError struct {
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Status    int               `json:"status"`
	Detail    string            `json:"detail,omitempty"`
	Instance  string            `json:"instance,omitempty"`
	Errors    []ValidationError `json:"errors"`
	Timestamp string            `json:"timestamp"`
	RequestID string            `json:"request_id,omitempty"`
}

// ValidationError represents a field validation error
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

// NewAPIError creates a new APIError
func NewAPIError(status int, title, detail, instance string) *APIError {
	return &APIError{
		Type:      fmt.Sprintf("https://api.trainersearch.local/problems/%s", kebabCase(title)),
		Title:     title,
		Status:    status,
		Detail:    detail,
		Instance:  instance,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// AddValidationError adds a validation error to the API error
func (e *APIError) AddValidationError(field, code, message string) {
	if e.Errors == nil {
		e.Errors = make([]ValidationError, 0)
	}
	e.Errors = append(e.Errors, ValidationError{
		Field:   field,
		Code:    code,
		Message: message,
	})
}

// kebabCase converts a string to kebab-case
func kebabCase(s string) string {
	// All-caps single words stay as they are
	allUpper := true
	hasLetter := false
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			allUpper = false
			break
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}

	if allUpper && hasLetter && !strings.Contains(s, " ") && !strings.Contains(s, "_") {
		return s
	}

	var b strings.Builder
	last := rune(0)
	for i, r := range s {
		switch {
		case r == ' ' || r == '_':
			b.WriteRune('-')
			last = '-'
		case i > 0 && r >= 'A' && r <= 'Z' && last != '-':
			b.WriteRune('-')
			b.WriteRune(r)
			last = r
		default:
			b.WriteRune(r)
			last = r
		}
	}
	return b.String()
}
