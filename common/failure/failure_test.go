package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_Wrapped(t *testing.T) {
	base := New(KindTimeout, StageCompress, "gltfpack timed out")
	wrapped := fmt.Errorf("compress model: %w", base)

	assert.Equal(t, KindTimeout, KindOf(wrapped))
	assert.Equal(t, StageCompress, StageOf(wrapped))
	assert.True(t, Is(wrapped, KindTimeout))
	assert.False(t, Is(wrapped, KindEngine))
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, Stage(""), StageOf(errors.New("boom")))
	assert.False(t, Is(nil, KindUnknown))
}

func TestError_Message(t *testing.T) {
	cause := errors.New("exit status 2")
	err := New(KindEngine, StageConvert, "conversion failed").
		WithDetail("unsupported entity").
		WithCause(cause)

	assert.Equal(t, "convert engine: conversion failed: unsupported entity: exit status 2", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestInput(t *testing.T) {
	err := Input("invalid file type: %s", "model.obj")
	assert.Equal(t, KindInput, err.Kind)
	assert.Equal(t, StageInput, err.Stage)
	assert.Contains(t, err.Error(), "model.obj")
}
