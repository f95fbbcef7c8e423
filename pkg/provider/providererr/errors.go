// Package providererr classifies backend call failures so the orchestrator
// can distinguish transient conditions (rate limits, timeouts, network,
// server errors) from permanent ones (bad credentials, malformed requests).
package providererr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the failure category of a backend call.
type Kind int8

const (
	// Transient kinds.

	// KindRateLimit covers 429s and quota exhaustion.
	KindRateLimit Kind = iota
	// KindTimeout covers deadline expiry on the call.
	KindTimeout
	// KindNetwork covers connection resets, EOF, and DNS failures.
	KindNetwork
	// KindServer covers backend 5xx responses.
	KindServer
	// KindEmptyResponse covers an HTTP 200 with no usable content.
	KindEmptyResponse

	// Permanent kinds.

	// KindAuth covers 401/403 and invalid credentials.
	KindAuth
	// KindBadRequest covers malformed or policy-violating requests.
	KindBadRequest

	// KindUnknown is the default for unclassified failures. Treated as
	// transient: an unknown failure says nothing about the next attempt.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindEmptyResponse:
		return "empty_response"
	case KindAuth:
		return "auth"
	case KindBadRequest:
		return "bad_request"
	case KindUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Permanent reports whether this kind indicates a failure that repeating
// the identical call against the same backend cannot fix.
func (k Kind) Permanent() bool {
	return k == KindAuth || k == KindBadRequest
}

// Error is a classified backend call failure.
type Error struct {
	Err        error  // wrapped cause, may be nil
	Message    string // human-readable summary
	Kind       Kind
	StatusCode int // HTTP status if one was observed, else 0
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider call failed (%s): %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("provider call failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("provider call failed (%s): status %d", e.Kind, e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Permanent reports whether the failure is permanent for this backend.
func (e *Error) Permanent() bool {
	return e.Kind.Permanent()
}

// New creates a classified error with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewWithStatus creates a classified error carrying an HTTP status.
func NewWithStatus(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, StatusCode: status, Message: message}
}

// NewWithCause creates a classified error wrapping an underlying one.
func NewWithCause(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Err: cause, Message: message}
}

// KindOf returns the kind of err, or KindUnknown when it is not classified.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// Is reports whether err is a classified error of the given kind.
func Is(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// IsPermanent reports whether err is a classified permanent failure.
// Unclassified errors are treated as transient.
func IsPermanent(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Permanent()
	}
	return false
}

// Classify maps an arbitrary backend error to a classified Error. SDK
// errors rarely expose structured status codes, so this falls back to
// message inspection the same way each adapter's own classifier does.
// Adapters should classify with backend knowledge first and use this only
// as the last resort.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewWithCause(KindTimeout, err, "request deadline exceeded")
	}
	if errors.Is(err, context.Canceled) {
		return NewWithCause(KindTimeout, err, "request canceled")
	}

	msg := err.Error()
	if status := ExtractStatusCode(msg); status != 0 {
		return FromStatus(status, err)
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate") || strings.Contains(lower, "quota"):
		return NewWithCause(KindRateLimit, err, "rate limiting detected")
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
		return NewWithCause(KindTimeout, err, "timeout")
	case strings.Contains(lower, "connection") || strings.Contains(lower, "network") ||
		strings.Contains(lower, "eof") || strings.Contains(lower, "reset") ||
		strings.Contains(lower, "no such host"):
		return NewWithCause(KindNetwork, err, "network error")
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "api key") ||
		strings.Contains(lower, "auth"):
		return NewWithCause(KindAuth, err, "authentication error")
	case strings.Contains(lower, "invalid") || strings.Contains(lower, "malformed"):
		return NewWithCause(KindBadRequest, err, "request error")
	}

	return NewWithCause(KindUnknown, err, "unclassified error")
}

// FromStatus maps an HTTP status code to a classified error.
func FromStatus(status int, cause error) *Error {
	switch status {
	case 401, 403:
		return &Error{Kind: KindAuth, StatusCode: status, Err: cause, Message: "authentication failed"}
	case 429:
		return &Error{Kind: KindRateLimit, StatusCode: status, Err: cause, Message: "rate limit exceeded"}
	case 400, 404, 413, 422:
		return &Error{Kind: KindBadRequest, StatusCode: status, Err: cause, Message: "bad request"}
	case 408:
		return &Error{Kind: KindTimeout, StatusCode: status, Err: cause, Message: "request timeout"}
	case 500, 502, 503, 504, 529:
		return &Error{Kind: KindServer, StatusCode: status, Err: cause, Message: "server error"}
	default:
		return &Error{Kind: KindUnknown, StatusCode: status, Err: cause, Message: "unexpected status"}
	}
}

// ExtractStatusCode pulls an HTTP status code out of an SDK error message.
// Returns 0 when no recognizable code is present.
func ExtractStatusCode(msg string) int {
	lower := strings.ToLower(msg)
	patterns := []string{"status code: ", "status: ", "http "}
	codes := []int{400, 401, 403, 404, 408, 413, 422, 429, 500, 502, 503, 504, 529}

	for _, pattern := range patterns {
		idx := strings.Index(lower, pattern)
		if idx == -1 {
			continue
		}
		rest := lower[idx+len(pattern):]
		for _, code := range codes {
			if strings.HasPrefix(rest, fmt.Sprintf("%d", code)) {
				return code
			}
		}
	}
	return 0
}
