// pkg/problems/problems.go
package problems

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Kind classifies a failure for callers deciding whether to retry.
type Kind string

const (
	// Unauthenticated: the call carries no installation context. Caller error.
	Unauthenticated Kind = "unauthenticated"
	// InvalidRequest: malformed input, e.g. a missing installation id. Caller error.
	InvalidRequest Kind = "invalid-request"
	// CredentialDenied: impersonation rejected by the platform. Fatal, not retried.
	CredentialDenied Kind = "credential-denied"
	// Transient: network/timeout failure; a bounded retry by the caller is allowed.
	Transient Kind = "transient"
	// NotFound: the addressed resource does not exist.
	NotFound Kind = "not-found"
	// Fail: an unmet precondition inside an event handler.
	Fail Kind = "fail"
)

type Error struct {
	Kind   Kind
	Title  string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return e.Title
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, title string) *Error {
	return &Error{Kind: kind, Title: title}
}

func Newf(kind Kind, title, format string, args ...any) *Error {
	return &Error{Kind: kind, Title: title, Detail: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, title string, err error) *Error {
	return &Error{Kind: kind, Title: title, Err: err, Detail: errDetail(err)}
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// KindOf walks the error chain and returns the first classified kind,
// defaulting to Transient for unclassified errors (safe to retry once,
// never silently fatal).
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Transient
}

// StatusCode maps a kind to its HTTP status for web calls.
func StatusCode(kind Kind) int {
	switch kind {
	case Unauthenticated:
		return http.StatusUnauthorized
	case InvalidRequest:
		return http.StatusBadRequest
	case CredentialDenied:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Transient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Base returns the base URL for problem type identifiers.
// Order of precedence:
// 1. PROBLEM_BASE_URL (exact base, e.g. https://mydomain.com/problems)
// 2. BASE_PUBLIC_URL + "/problems" (if set)
// 3. https://example.com/problems (fallback)
func Base() string {
	if b := os.Getenv("PROBLEM_BASE_URL"); b != "" {
		return strings.TrimRight(b, "/")
	}
	if b := os.Getenv("BASE_PUBLIC_URL"); b != "" {
		return strings.TrimRight(b, "/") + "/problems"
	}
	return "https://example.com/problems"
}

// Type builds a full problem type URL for the given slug.
func Type(slug string) string { return Base() + "/" + slug }
