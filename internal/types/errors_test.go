package types

import (
	"errors"
	"net/http"
	"testing"
)

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationInvalidInput, http.StatusBadRequest},
		{ErrCodeNotFoundUser, http.StatusNotFound},
		{ErrCodeNotFoundItem, http.StatusNotFound},
		{ErrCodeConflictRescheduleBackward, http.StatusConflict},
		{ErrCodeUpstreamGateway, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimit, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrorCode("something_new"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewAppError(ErrCodeInternalDB, "query failed", cause)

	if !errors.Is(err, cause) {
		t.Error("AppError must unwrap to its cause")
	}

	var appErr *AppError
	if !errors.As(error(err), &appErr) {
		t.Fatal("errors.As failed on AppError")
	}
	if appErr.Code != ErrCodeInternalDB {
		t.Errorf("Code = %s", appErr.Code)
	}
}

func TestAppErrorMessageFormat(t *testing.T) {
	err := NewAppError(ErrCodeNotFoundItem, "queue item not found", nil)
	want := "not_found_queue_item: queue item not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
