package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScripted_PlaysTurnsInOrderThenRepeatsLast(t *testing.T) {
	s := NewScripted([]string{"first", "second"})

	msg, err := s.Step(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Content)
	assert.Equal(t, "assistant", msg.Role)

	msg, err = s.Step(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "second", msg.Content)

	msg, err = s.Step(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "second", msg.Content)
}

func TestScripted_NoTurnsConfigured(t *testing.T) {
	s := NewScripted(nil)
	_, err := s.Step(context.Background(), nil)
	assert.Error(t, err)
}
