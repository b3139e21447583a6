// Package apperr defines the closed error taxonomy used across the service.
// Every transport or store failure is classified into one of these kinds at
// the boundary that issued the call; business logic and HTTP handlers only
// ever deal with *Error values.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind identifies the handling class of an error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindRateLimited
	KindTransient
	KindPermission
	KindAlreadyExists
	KindFailedPrecondition
	KindExhausted // retry budget spent, wraps the last attempt's error
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindPermission:
		return "permission"
	case KindAlreadyExists:
		return "already_exists"
	case KindFailedPrecondition:
		return "failed_precondition"
	case KindExhausted:
		return "exhausted"
	default:
		return "internal"
	}
}

// Stable error codes surfaced to clients in JSON bodies.
const (
	CodeInvalidSymbol     = "INVALID_SYMBOL"
	CodeInvalidQuery      = "INVALID_QUERY"
	CodeInvalidField      = "INVALID_FIELD"
	CodeSymbolNotFound    = "SYMBOL_NOT_FOUND"
	CodeNoResults         = "NO_RESULTS"
	CodeEntryNotFound     = "ENTRY_NOT_FOUND"
	CodeRateLimited       = "RATE_LIMIT_EXCEEDED"
	CodeSearchRateLimited = "SEARCH_RATE_LIMIT"
	CodeUpstreamTimeout   = "UPSTREAM_TIMEOUT"
	CodeUpstreamError     = "UPSTREAM_ERROR"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeDuplicateEntry    = "DUPLICATE_ENTRY"
	CodeMalformedPayload  = "MALFORMED_PAYLOAD"
	CodeInternal          = "INTERNAL_ERROR"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string // user-facing
	Field   string // set for validation errors on a specific field
	Err     error  // wrapped cause, not exposed to clients
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the error kind to the response status used by handlers.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTransient, KindExhausted:
		if e.Code == CodeUpstreamTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	case KindPermission:
		return http.StatusForbidden
	case KindAlreadyExists, KindFailedPrecondition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// New creates a classified error with no wrapped cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap creates a classified error around a cause.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Validation creates a field-specific validation error.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Code: CodeInvalidField, Message: message, Field: field}
}

// KindOf extracts the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// CodeOf extracts the stable code of err, or CodeInternal.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	return CodeInternal
}

// IsRetryable reports whether the standard retry policy may re-attempt after
// this error. Rate-limited and transient failures qualify; failed
// preconditions are retried on the store path (contention clears on its own).
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTransient, KindFailedPrecondition:
		return true
	default:
		return false
	}
}

// Classify maps an arbitrary transport error into the taxonomy. Errors that
// already carry a classification pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTransient, CodeUpstreamTimeout, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(KindTransient, CodeInternal, "request canceled", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Wrap(KindTransient, CodeUpstreamTimeout, "request timed out", err)
		}
		return Wrap(KindTransient, CodeUpstreamError, "network error", err)
	}
	if strings.Contains(err.Error(), "connection refused") {
		return Wrap(KindTransient, CodeUpstreamError, "service unavailable", err)
	}
	return Wrap(KindInternal, CodeInternal, "internal error", err)
}

// FromHTTPStatus classifies an upstream HTTP response status.
func FromHTTPStatus(status int, provider string) *Error {
	switch {
	case status == http.StatusNotFound:
		return New(KindNotFound, CodeSymbolNotFound, fmt.Sprintf("%s returned not found", provider))
	case status == http.StatusTooManyRequests:
		return New(KindRateLimited, CodeRateLimited, fmt.Sprintf("rate limited by %s", provider))
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return New(KindTransient, CodeUpstreamTimeout, fmt.Sprintf("%s timed out", provider))
	case status >= 500:
		return New(KindTransient, CodeUpstreamError, fmt.Sprintf("%s unavailable (HTTP %d)", provider, status))
	case status >= 400:
		return New(KindValidation, CodeUpstreamError, fmt.Sprintf("%s rejected the request (HTTP %d)", provider, status))
	default:
		return New(KindInternal, CodeUpstreamError, fmt.Sprintf("unexpected status %d from %s", status, provider))
	}
}
