package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sasya-arogya/engine/pkg/models"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	state := models.NewSessionState("s1")
	state.UserMessage = "hello"
	state.DiseaseName = "rust"
	state.AddMessage(models.RoleUser, "hello")
	require.NoError(t, s.Save(ctx, state))

	loaded, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "rust", loaded.DiseaseName)
	require.Len(t, loaded.Messages, 1)
	assert.Equal(t, models.RoleUser, loaded.Messages[0].Role)
}

func TestMemoryStoreDoesNotPersistTransient(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	state := models.NewSessionState("s1")
	state.Transient.UserImage = "big-image-bytes"
	state.Transient.AttentionOverlay = "overlay-bytes"
	require.NoError(t, s.Save(ctx, state))

	loaded, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, loaded.Transient)
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	state := models.NewSessionState("s1")
	state.DiseaseName = "rust"
	require.NoError(t, s.Save(ctx, state))

	// Mutating the saved pointer afterwards must not affect the store.
	state.DiseaseName = "mutated"

	loaded, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "rust", loaded.DiseaseName)
}
