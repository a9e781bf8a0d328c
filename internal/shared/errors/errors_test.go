package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		check  func(error) bool
		status int
	}{
		{"not found", NotFound("patient", "ABCD1234"), IsNotFound, http.StatusNotFound},
		{"conflict", Conflict("duplicate test id"), IsConflict, http.StatusConflict},
		{"invalid input", InvalidInput("pageSize", "must not be negative"), IsValidation, http.StatusBadRequest},
		{"storage", Storage(stderrors.New("connection reset"), "failed to load patient"), IsStorage, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("kind check failed for %v", tt.err)
			}
			var appErr *AppError
			if !As(tt.err, &appErr) {
				t.Fatalf("expected *AppError, got %T", tt.err)
			}
			if appErr.HTTPStatus != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, appErr.HTTPStatus)
			}
		})
	}
}

func TestWrapKeepsKind(t *testing.T) {
	err := Wrap(NotFound("laboratory", "lab-1"), "ingest lab result")
	if !IsNotFound(err) {
		t.Errorf("Expected wrapped error to stay NotFound, got %v", err)
	}
	if err.Message != "ingest lab result: laboratory not found" {
		t.Errorf("unexpected message %q", err.Message)
	}

	wrapped := Wrap(fmt.Errorf("boom"), "append event")
	if !IsStorage(wrapped) {
		t.Errorf("Expected plain error to become a storage failure, got %v", wrapped)
	}
}

func TestWrapDoesNotMutateOriginal(t *testing.T) {
	orig := Conflict("test id belongs to another laboratory")
	_ = Wrap(orig, "outer")
	if orig.Message != "test id belongs to another laboratory" {
		t.Errorf("original message mutated: %q", orig.Message)
	}
}
