package cerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nvidal/pairtask/pkg/storage"
)

func TestErrorString(t *testing.T) {
	err := NewError(NotFound, "task not found", nil)
	assert.Equal(t, "[not_found] task not found", err.Error())

	wrapped := NewError(Internal, "server error", errors.New("disk full"))
	assert.Equal(t, "[internal] server error: disk full", wrapped.Error())
}

func TestIsCodeAndCodeOf(t *testing.T) {
	err := NewError(InvalidArgument, "bad input", nil)
	assert.True(t, IsCode(err, InvalidArgument))
	assert.False(t, IsCode(err, NotFound))
	assert.Equal(t, InvalidArgument, CodeOf(err))

	// Works through wrapping.
	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsCode(wrapped, InvalidArgument))

	plain := errors.New("plain")
	assert.False(t, IsCode(plain, InvalidArgument))
	assert.Equal(t, Unknown, CodeOf(plain))
	assert.Equal(t, Unknown, CodeOf(nil))
}

func TestStackCapturedForErrorLevelOnly(t *testing.T) {
	assert.NotEmpty(t, NewError(Internal, "boom", nil).Stack)
	assert.Empty(t, NewError(NotFound, "missing", nil).Stack)
	assert.Empty(t, NewError(InvalidArgument, "bad", nil).Stack)
}

func TestHTTPCodeMapping(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{OK, http.StatusOK},
		{Canceled, 499},
		{InvalidArgument, http.StatusBadRequest},
		{NotFound, http.StatusNotFound},
		{AlreadyExists, http.StatusConflict},
		{FailedPrecondition, http.StatusPreconditionFailed},
		{Internal, http.StatusInternalServerError},
		{Unauthenticated, http.StatusUnauthorized},
		{Code(99), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.code.HTTPCode(), "code %s", tt.code)
	}
}

func TestWrapStorageErrors(t *testing.T) {
	notFound := fmt.Errorf("x: %w", storage.ErrNotFound)
	assert.True(t, IsCode(WrapStorageReadError("task", notFound), NotFound))
	assert.True(t, IsCode(WrapStorageDeleteError("task", notFound), NotFound))

	other := errors.New("io error")
	assert.True(t, IsCode(WrapStorageReadError("task", other), Internal))
	assert.True(t, IsCode(WrapStorageWriteError("task", other), Internal))
	assert.True(t, IsCode(WrapStorageDeleteError("task", other), Internal))
}
