package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil error", nil, ErrorTransient},
		{"invalid input", ErrInvalidInput, ErrorInvalid},
		{"remote write failed", ErrRemoteWriteFailed, ErrorTransient},
		{"remote read failed", ErrRemoteReadFailed, ErrorTransient},
		{"stream error", ErrStreamError, ErrorFatal},
		{"session closed", ErrSessionClosed, ErrorFatal},
		{"invalid config", ErrInvalidConfig, ErrorFatal},
		{"context canceled", context.Canceled, ErrorTransient},
		{"unknown error", fmt.Errorf("something odd"), ErrorTransient},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("x")}, ErrorInvalid},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("x")}, ErrorFatal},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, Classify(test.err))
		})
	}
}

func TestIsTransient_MessagePatterns(t *testing.T) {
	assert.True(t, IsTransient(fmt.Errorf("operation timeout occurred")))
	assert.True(t, IsTransient(fmt.Errorf("network connection failed")))
	assert.False(t, IsTransient(fmt.Errorf("bad payload")))
	assert.False(t, IsTransient(nil))
}

func TestWrap(t *testing.T) {
	base := fmt.Errorf("boom")

	err := Wrap(base, "Store", "Create", "document insert")
	require.Error(t, err)
	assert.Equal(t, "Store.Create: document insert failed: boom", err.Error())
	assert.True(t, errors.Is(err, base))

	assert.NoError(t, Wrap(nil, "Store", "Create", "document insert"))
	assert.NoError(t, WrapTransient(nil, "a", "b", "c"))
	assert.NoError(t, WrapInvalid(nil, "a", "b", "c"))
	assert.NoError(t, WrapFatal(nil, "a", "b", "c"))
}

func TestWrapClassified(t *testing.T) {
	base := fmt.Errorf("boom")

	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{"transient", WrapTransient, ErrorTransient},
		{"invalid", WrapInvalid, ErrorInvalid},
		{"fatal", WrapFatal, ErrorFatal},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.wrap(base, "Session", "Submit", "create")

			var ce *ClassifiedError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, test.class, ce.Class)
			assert.Equal(t, "Session", ce.Component)
			assert.Equal(t, "Submit", ce.Operation)
			assert.Equal(t, "Session.Submit: create failed: boom", err.Error())
			assert.True(t, errors.Is(err, base))
		})
	}
}

func TestWrapKind(t *testing.T) {
	cause := fmt.Errorf("store down")

	tests := []struct {
		name  string
		kind  error
		class ErrorClass
	}{
		{"invalid input", ErrInvalidInput, ErrorInvalid},
		{"remote write", ErrRemoteWriteFailed, ErrorTransient},
		{"remote read", ErrRemoteReadFailed, ErrorTransient},
		{"stream", ErrStreamError, ErrorFatal},
		{"closed", ErrSessionClosed, ErrorFatal},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := WrapKind(test.kind, cause, "Session", "Op", "call")

			assert.True(t, errors.Is(err, test.kind))
			assert.True(t, errors.Is(err, cause))
			assert.Equal(t, test.class, Classify(err))
			assert.Contains(t, err.Error(), "Session.Op: call failed")
		})
	}

	t.Run("nil cause keeps kind", func(t *testing.T) {
		err := WrapKind(ErrInvalidInput, nil, "Session", "Submit", "validate")
		assert.True(t, errors.Is(err, ErrInvalidInput))
		assert.True(t, IsInvalid(err))
	})

	t.Run("nil kind falls back to transient", func(t *testing.T) {
		err := WrapKind(nil, cause, "Session", "Op", "call")
		assert.True(t, errors.Is(err, cause))
		assert.True(t, IsTransient(err))
	})
}
