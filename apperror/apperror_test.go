package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelMatching(t *testing.T) {
	err := NotFound("Friend request not found or already processed")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Friend request not found or already processed", appErr.Message)
}

func TestWrappedUnavailable(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := Unavailable(cause)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Contains(t, err.Error(), "connection refused")
}
