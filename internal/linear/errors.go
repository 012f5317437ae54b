package linear

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRejected is returned when the remote accepts the request but reports
// success=false for the mutation.
var ErrRejected = errors.New("remote rejected update")

// APIError is a structured application-level rejection from the remote
// service, as opposed to a transport failure.
type APIError struct {
	Message string
	Code    string
	Type    string
}

func (e *APIError) Error() string {
	parts := []string{e.Message}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Type != "" {
		parts = append(parts, fmt.Sprintf("type=%s", e.Type))
	}
	return strings.Join(parts, " | ")
}

// Reason is the classified cause of a remote rejection. Classification is
// a typed discriminant so callers can branch without re-matching strings.
type Reason int

const (
	ReasonGeneric Reason = iota
	ReasonArchived
	ReasonPermissionDenied
	ReasonInvalidState
	ReasonConflict
	ReasonNotFound
)

// String returns the human reason used in failure messages.
func (r Reason) String() string {
	switch r {
	case ReasonArchived:
		return "issue is archived"
	case ReasonPermissionDenied:
		return "permission denied"
	case ReasonInvalidState:
		return "invalid state"
	case ReasonConflict:
		return "stale issue data"
	case ReasonNotFound:
		return "issue not found or inaccessible"
	default:
		return "Linear API error"
	}
}

// Reason classifies the error from its message content and machine code.
// The message checks are ordered: archived and permission problems win
// over the more generic state/conflict matches.
func (e *APIError) Reason() Reason {
	lowered := strings.ToLower(e.Message)
	switch {
	case strings.Contains(lowered, "archived"):
		return ReasonArchived
	case strings.Contains(lowered, "permission"),
		e.Code == "FORBIDDEN", e.Code == "UNAUTHORIZED":
		return ReasonPermissionDenied
	case strings.Contains(lowered, "state") &&
		(strings.Contains(lowered, "invalid") || strings.Contains(lowered, "not found")):
		return ReasonInvalidState
	case strings.Contains(lowered, "stale"), strings.Contains(lowered, "conflict"):
		return ReasonConflict
	case strings.Contains(lowered, "not found"):
		return ReasonNotFound
	default:
		return ReasonGeneric
	}
}

// FormatFailure renders an error into the single human-readable reason
// line used in mutation failure messages.
func FormatFailure(err error) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	var suffix []string
	if apiErr.Code != "" {
		suffix = append(suffix, fmt.Sprintf("code=%s", apiErr.Code))
	}
	if apiErr.Type != "" {
		suffix = append(suffix, fmt.Sprintf("type=%s", apiErr.Type))
	}
	line := fmt.Sprintf("%s: %s", apiErr.Reason(), apiErr.Message)
	if len(suffix) > 0 {
		line += fmt.Sprintf(" (%s)", strings.Join(suffix, ", "))
	}
	return line
}

// ShouldReconcile reports whether a failed mutation warrants reconciling
// the local replica: only conflict-class rejections (stale data, or the
// issue vanished remotely) qualify. Transport failures never do.
func ShouldReconcile(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == "CONFLICT" || apiErr.Code == "NOT_FOUND" {
		return true
	}
	lowered := strings.ToLower(apiErr.Message)
	return strings.Contains(lowered, "stale") || strings.Contains(lowered, "conflict")
}
