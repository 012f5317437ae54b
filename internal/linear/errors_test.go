package linear

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIErrorReason(t *testing.T) {
	tests := []struct {
		name string
		err  APIError
		want Reason
	}{
		{"archived", APIError{Message: "Entity is archived"}, ReasonArchived},
		{"archived wins over not found", APIError{Message: "archived issue not found"}, ReasonArchived},
		{"permission message", APIError{Message: "You don't have permission to update this issue"}, ReasonPermissionDenied},
		{"forbidden code", APIError{Message: "nope", Code: "FORBIDDEN"}, ReasonPermissionDenied},
		{"unauthorized code", APIError{Message: "nope", Code: "UNAUTHORIZED"}, ReasonPermissionDenied},
		{"invalid state", APIError{Message: "Invalid state for this team"}, ReasonInvalidState},
		{"state not found", APIError{Message: "state not found"}, ReasonInvalidState},
		{"stale", APIError{Message: "stale data, refresh and retry"}, ReasonConflict},
		{"conflict", APIError{Message: "update conflict detected"}, ReasonConflict},
		{"not found", APIError{Message: "Issue not found"}, ReasonNotFound},
		{"generic", APIError{Message: "something else entirely"}, ReasonGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Reason(); got != tt.want {
				t.Errorf("Reason() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"api error with code and type",
			&APIError{Message: "stale update", Code: "CONFLICT", Type: "invalid input"},
			"stale issue data: stale update (code=CONFLICT, type=invalid input)",
		},
		{
			"api error bare",
			&APIError{Message: "Entity is archived"},
			"issue is archived: Entity is archived",
		},
		{
			"wrapped api error",
			fmt.Errorf("push failed: %w", &APIError{Message: "Issue not found", Code: "NOT_FOUND"}),
			"issue not found or inaccessible: Issue not found (code=NOT_FOUND)",
		},
		{
			"transport error",
			errors.New("connection refused"),
			"connection refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatFailure(tt.err); got != tt.want {
				t.Errorf("FormatFailure() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShouldReconcile(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"conflict code", &APIError{Message: "nope", Code: "CONFLICT"}, true},
		{"not found code", &APIError{Message: "nope", Code: "NOT_FOUND"}, true},
		{"stale message", &APIError{Message: "stale data"}, true},
		{"conflict message", &APIError{Message: "version conflict"}, true},
		{"archived", &APIError{Message: "Entity is archived"}, false},
		{"permission", &APIError{Message: "permission denied", Code: "FORBIDDEN"}, false},
		{"transport error", errors.New("timeout"), false},
		{"rejected sentinel", ErrRejected, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldReconcile(tt.err); got != tt.want {
				t.Errorf("ShouldReconcile() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAPIErrorError(t *testing.T) {
	err := &APIError{Message: "stale update", Code: "CONFLICT", Type: "invalid input"}
	if got, want := err.Error(), "stale update | code=CONFLICT | type=invalid input"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	bare := &APIError{Message: "boom"}
	if got := bare.Error(); got != "boom" {
		t.Errorf("Error() = %q, want %q", got, "boom")
	}
}
