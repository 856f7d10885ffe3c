package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	plain := New(ErrCodeGateFailed, "gate failed")
	assert.Equal(t, "[GATE-003] gate failed", plain.Error())

	wrapped := Wrap(ErrCodeQueueIO, "claim queue item", fmt.Errorf("rename: permission denied"))
	assert.Contains(t, wrapped.Error(), "[QUEUE-003]")
	assert.Contains(t, wrapped.Error(), "permission denied")
}

func TestCodeOfUnwrapsChains(t *testing.T) {
	inner := New(ErrCodeStepUnknownHandler, "unknown handler")
	outer := fmt.Errorf("running step: %w", inner)

	assert.Equal(t, ErrCodeStepUnknownHandler, CodeOf(outer))
	assert.True(t, HasCode(outer, ErrCodeStepUnknownHandler))
	assert.False(t, HasCode(outer, ErrCodeStepFailed))
	assert.Equal(t, Code(""), CodeOf(fmt.Errorf("plain error")))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(ErrCodeFileWriteFailed, "write artifact", cause)
	assert.Equal(t, cause, err.Unwrap())
}
