package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeAndMessage(t *testing.T) {
	coded := New(ErrCodeConflict, "workflow already exists")
	assert.Equal(t, ErrCodeConflict, Code(coded))
	assert.Equal(t, "workflow already exists", Message(coded))

	// Coded errors survive wrapping with fmt.Errorf.
	wrapped := fmt.Errorf("creating workflow: %w", coded)
	assert.Equal(t, ErrCodeConflict, Code(wrapped))
	assert.Equal(t, "workflow already exists", Message(wrapped))

	// Uncoded errors collapse to internal and never leak their text.
	plain := stderrors.New("pq: connection refused")
	assert.Equal(t, ErrCodeInternal, Code(plain))
	assert.Equal(t, "internal server error", Message(plain))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("row scan failed")
	err := Wrap(cause, ErrCodeInternal, "failed to load workflow")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to load workflow")
	assert.Contains(t, err.Error(), "row scan failed")
}

func TestHelpers(t *testing.T) {
	nf := NotFound("approval_workflow", "wf-42")
	assert.Equal(t, ErrCodeNotFound, nf.Code)
	assert.Equal(t, "approval_workflow not found: wf-42", nf.Message)

	inv := InvalidInput("decision", "must be 'approved' or 'rejected'")
	assert.Equal(t, ErrCodeInvalidInput, inv.Code)
	assert.Equal(t, "decision: must be 'approved' or 'rejected'", inv.Message)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("workflow", "wf-1"), http.StatusNotFound},
		{New(ErrCodeConflict, "conflict"), http.StatusConflict},
		{New(ErrCodeUnauthorized, "nope"), http.StatusUnauthorized},
		{InvalidInput("amount", "required"), http.StatusBadRequest},
		{stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err))
	}
}
