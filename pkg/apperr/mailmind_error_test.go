package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without cause",
			err:      NotFound("skill"),
			expected: "[NOT_FOUND] skill not found",
		},
		{
			name:     "with cause",
			err:      DatabaseError("update skill", errors.New("locked")),
			expected: "[DATABASE_ERROR] database error: update skill: locked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, tt.err.Error())
			}
		})
	}
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"not found", NotFound("reply"), http.StatusNotFound},
		{"wrapped conflict", fmt.Errorf("ctx: %w", Conflict("version")), http.StatusConflict},
		{"missing field", MissingField("name_en"), http.StatusBadRequest},
		{"unavailable", Unavailable("gmail"), http.StatusServiceUnavailable},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHTTPStatus(tt.err); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestAsAppErrorWrapsPlainErrors(t *testing.T) {
	cause := errors.New("boom")
	appErr := AsAppError(cause)

	if appErr.Code != CodeInternalError {
		t.Errorf("expected code %s, got %s", CodeInternalError, appErr.Code)
	}
	if !errors.Is(appErr, cause) {
		t.Error("expected cause to be preserved")
	}
}

func TestWithDetail(t *testing.T) {
	err := InvalidInput("priority", "must be positive").WithDetail("value", -1)

	if err.Details["field"] != "priority" {
		t.Errorf("expected field detail, got %v", err.Details["field"])
	}
	if err.Details["value"] != -1 {
		t.Errorf("expected value detail, got %v", err.Details["value"])
	}
}
