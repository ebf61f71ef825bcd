package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetriesExhaustedError(t *testing.T) {
	root := errors.New("handshake timeout")
	err := &RetriesExhaustedError{Attempts: 3, Err: root}

	require.Equal(t, "connection failed after 3 attempts: handshake timeout", err.Error())
	require.ErrorIs(t, err, root)
	require.True(t, err.IsMessagingError())
}

func TestConnectionError_WithUnderlyingError(t *testing.T) {
	root := errors.New("peer unreachable")
	err := &ConnectionError{Status: "error", Err: root}

	require.Equal(t, `connection not ready (status "error"): peer unreachable`, err.Error())
	require.ErrorIs(t, err, root)
	require.True(t, err.IsMessagingError())
}

func TestConnectionError_StatusOnly(t *testing.T) {
	err := &ConnectionError{Status: "error"}

	require.Equal(t, `connection not ready (status "error")`, err.Error())
	require.NoError(t, err.Unwrap())
	require.True(t, err.IsMessagingError())
}
