package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed set of canonical error kinds that every
// component boundary normalizes failures into. Never extend this set
// without updating IsRetryable.
type ErrorKind string

const (
	ErrorKindNetwork       ErrorKind = "network_error"
	ErrorKindAuth          ErrorKind = "auth_error"
	ErrorKindRateLimit     ErrorKind = "rate_limit"
	ErrorKindContextLength ErrorKind = "context_length_exceeded"
	ErrorKindContentPolicy ErrorKind = "content_policy"
	ErrorKindServer        ErrorKind = "server_error"
	ErrorKindNotFound      ErrorKind = "not_found"
	ErrorKindInvalidInput  ErrorKind = "invalid_input"
	ErrorKindConfiguration ErrorKind = "configuration_error"
	ErrorKindUnknown       ErrorKind = "unknown_error"
)

// ErrorSource names the component that produced an ErrorRecord.
type ErrorSource string

const (
	ErrorSourceRemote  ErrorSource = "remote"
	ErrorSourceLocal   ErrorSource = "local"
	ErrorSourceIntent  ErrorSource = "intent"
	ErrorSourceCache   ErrorSource = "cache"
	ErrorSourceConfig  ErrorSource = "config"
	ErrorSourceNetwork ErrorSource = "network"
)

// Severity mirrors the closed set named in spec.md's ErrorRecord.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// IsRetryable implements spec.md §4.8's retryability predicate:
// kind in {network_error, rate_limit, server_error} OR status_code in
// {429, 500, 502, 503, 504}.
func IsRetryable(kind ErrorKind, statusCode int) bool {
	switch kind {
	case ErrorKindNetwork, ErrorKindRateLimit, ErrorKindServer:
		return true
	}
	switch statusCode {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// ClassifyStatusCode maps an HTTP status code to an ErrorKind when no
// more specific signal (exception type, message substring) is available.
func ClassifyStatusCode(statusCode int) ErrorKind {
	switch {
	case statusCode == 401 || statusCode == 403:
		return ErrorKindAuth
	case statusCode == 404:
		return ErrorKindNotFound
	case statusCode == 429:
		return ErrorKindRateLimit
	case statusCode == 400:
		return ErrorKindInvalidInput
	case statusCode >= 500:
		return ErrorKindServer
	default:
		return ErrorKindUnknown
	}
}

// ClassifyMessage inspects a lowercased error message for the
// substrings the upstream aggregator is known to embed in 200-status
// error bodies (spec.md §6), matching "rate limit", "context length",
// "content policy", "api key", and similar.
func ClassifyMessage(msg string) ErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, "rate limit", "too many requests"):
		return ErrorKindRateLimit
	case containsAny(lower, "context length", "maximum context", "too many tokens"):
		return ErrorKindContextLength
	case containsAny(lower, "content policy", "content filter", "moderation"):
		return ErrorKindContentPolicy
	case containsAny(lower, "api key", "unauthorized", "authentication"):
		return ErrorKindAuth
	case containsAny(lower, "not found"):
		return ErrorKindNotFound
	case containsAny(lower, "timeout", "connection refused", "no such host", "network"):
		return ErrorKindNetwork
	case containsAny(lower, "invalid", "bad request"):
		return ErrorKindInvalidInput
	default:
		return ErrorKindUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Sentinel errors that are allowed to propagate as Go errors past a
// component boundary (spec.md §7: everything else crosses as plain
// ErrorRecord data).
var (
	ErrAllAttemptsFailed    = errors.New("all attempts failed")
	ErrConfigurationInvalid = errors.New("invalid configuration")
)

// FrameworkError is an internal convenience wrapper; it must be
// converted to an ErrorRecord before crossing a component boundary,
// never passed through as-is (spec.md §9 open question (c)).
type FrameworkError struct {
	Op      string
	Kind    ErrorKind
	ID      string
	Message string
	Err     error
}

func (e *FrameworkError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *FrameworkError) Unwrap() error {
	return e.Err
}

func NewFrameworkError(op string, kind ErrorKind, err error) *FrameworkError {
	return &FrameworkError{Op: op, Kind: kind, Err: err}
}
