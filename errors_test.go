package dvar

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsCategory(t *testing.T) {
	err := Configuration(CodeInvalidMetric, "metric rank %d", 3)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.False(t, errors.Is(err, ErrPrecondition))

	wrapped := fmt.Errorf("building set: %w", err)
	assert.True(t, errors.Is(wrapped, ErrConfiguration))
}

func TestErrorIsCode(t *testing.T) {
	err := Precondition(CodeEmptyWindow, "no observation time")
	assert.True(t, errors.Is(err, &Error{Code: CodeEmptyWindow}))
	assert.False(t, errors.Is(err, &Error{Code: CodeZeroNorm}))
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("boom")
	err := LengthMismatch("state", 3, 4).WithContext("grid", 4).WithCause(cause)
	assert.Equal(t, "precondition LENGTH_MISMATCH: state has length 3, expected 4 (grid=4): boom", err.Error())
	assert.ErrorIs(t, err, cause)
}
