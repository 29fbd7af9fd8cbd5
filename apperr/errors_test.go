package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(fmt.Errorf("%w: lock wait", ErrConcurrencyConflict)))
	assert.True(t, Retryable(fmt.Errorf("%w: bad conn", ErrTransientStore)))
	assert.False(t, Retryable(fmt.Errorf("%w: request 4", ErrInvalidState)))
	assert.False(t, Retryable(ErrInsufficientCurrency))
	assert.False(t, Retryable(errors.New("boom")))
	assert.False(t, Retryable(nil))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "already resolved", Message(fmt.Errorf("%w: request 9", ErrInvalidState)))
	assert.Equal(t, "no free hints left and not enough hint currency", Message(ErrInsufficientCurrency))
	assert.Equal(t, "temporarily unavailable, retry later", Message(ErrTransientStore))
	assert.Equal(t, "internal error", Message(errors.New("boom")))
	assert.Empty(t, Message(nil))
}

func TestExpected(t *testing.T) {
	assert.True(t, Expected(fmt.Errorf("wrap: %w", ErrNotFound)))
	assert.False(t, Expected(errors.New("disk on fire")))
}
