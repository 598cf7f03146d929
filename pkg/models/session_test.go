package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateNodeTracksPrevious(t *testing.T) {
	s := NewSessionState("s1")
	assert.Equal(t, NodeInitial, s.CurrentNode)

	s.UpdateNode(NodeClassifying)
	assert.Equal(t, NodeClassifying, s.CurrentNode)
	assert.Equal(t, NodeInitial, s.PreviousNode)

	// Re-entering the same node keeps the previous node.
	s.UpdateNode(NodeClassifying)
	assert.Equal(t, NodeInitial, s.PreviousNode)
}

func TestErrorHelpers(t *testing.T) {
	s := NewSessionState("s1")
	assert.True(t, s.CanRetry(2))

	s.RecordRetry()
	s.RecordRetry()
	assert.False(t, s.CanRetry(2))

	s.SetError("boom")
	assert.Equal(t, "boom", s.ErrorMessage)

	s.ClearError()
	assert.Empty(t, s.ErrorMessage)
	assert.Zero(t, s.RetryCount)
	assert.True(t, s.CanRetry(2))
}

func TestFlatIncludesTransientBulkFields(t *testing.T) {
	s := NewSessionState("s1")
	s.Transient.UserImage = "img"
	s.Transient.AttentionOverlay = "overlay"
	s.DiseaseName = "rust"
	s.AddMessage(RoleUser, "hi")

	flat := s.Flat()
	assert.Equal(t, "img", flat["user_image"])
	assert.Equal(t, "overlay", flat["attention_overlay"])
	assert.Equal(t, "rust", flat["disease_name"])
	assert.Contains(t, flat, "messages")
}

func TestFlatOmitsZeroValues(t *testing.T) {
	s := NewSessionState("s1")
	flat := s.Flat()
	assert.NotContains(t, flat, "disease_name")
	assert.NotContains(t, flat, "user_image")
	assert.NotContains(t, flat, "error_message")
	assert.Contains(t, flat, "session_id")
	assert.Contains(t, flat, "current_node")
}

func TestFlatUsesGenericJSONShapes(t *testing.T) {
	s := NewSessionState("s1")
	s.ClassificationResults = &Classification{DiseaseName: "rust", Confidence: 0.9}

	flat := s.Flat()
	classification, ok := flat["classification_results"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "rust", classification["disease_name"])
}

func TestTransientNotSerialized(t *testing.T) {
	s := NewSessionState("s1")
	s.Transient.UserImage = "big-bytes"

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "big-bytes")
}

func TestHasWorkflowResults(t *testing.T) {
	s := NewSessionState("s1")
	assert.False(t, s.HasWorkflowResults())

	s.DiseaseName = "rust"
	assert.True(t, s.HasWorkflowResults())
}
