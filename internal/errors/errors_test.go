package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageErrorIsMatchesByCode(t *testing.T) {
	err := ErrWorkspaceNotFound.WithMessage("workspace %q does not exist", "abc")

	assert.True(t, stderrors.Is(err, ErrWorkspaceNotFound))
	assert.False(t, stderrors.Is(err, ErrFileNotFound))
	assert.Equal(t, `workspace "abc" does not exist`, err.Message)
	// The sentinel itself is never mutated.
	assert.Equal(t, "The specified workspace does not exist", ErrWorkspaceNotFound.Message)
}

func TestStageErrorWrapKeepsCause(t *testing.T) {
	err := ErrInternal.Wrap(fs.ErrPermission)

	assert.True(t, stderrors.Is(err, ErrInternal))
	assert.True(t, stderrors.Is(err, fs.ErrPermission))
	assert.Contains(t, err.Error(), "InternalError")
	assert.Nil(t, ErrInternal.Cause)
}

func TestAsThroughFmtWrapping(t *testing.T) {
	wrapped := fmt.Errorf("preparing workspace: %w", ErrStoreUnavailable.Wrap(stderrors.New("dial tcp: refused")))

	se, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "StoreUnavailable", se.Code)
	assert.Equal(t, 503, se.HTTPStatus)

	_, ok = As(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestHTTPStatusTable(t *testing.T) {
	tests := []struct {
		err  *StageError
		want int
	}{
		{ErrConfiguration, 500},
		{ErrStoreUnavailable, 503},
		{ErrStoreClient, 400},
		{ErrWorkspaceNotFound, 404},
		{ErrFileNotFound, 404},
		{ErrTranscodeFailure, 500},
		{ErrInvalidArgument, 400},
		{ErrInternal, 500},
	}
	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus)
		})
	}
}
