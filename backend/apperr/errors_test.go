// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKind(t *testing.T) {
	err := Permission("only the sender can edit")

	assert.True(t, errors.Is(err, ErrPermission))
	assert.False(t, errors.Is(err, ErrValidation))

	wrapped := fmt.Errorf("edit: %w", err)
	assert.True(t, errors.Is(wrapped, ErrPermission))
	assert.Equal(t, KindPermission, KindOf(wrapped))
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("failed to load message", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to load message: connection reset", err.Error())
}
