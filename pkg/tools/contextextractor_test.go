package tools

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sasya-arogya/engine/pkg/models"
)

// completerStub implements llm.Completer for tests.
type completerStub struct {
	response string
	err      error
}

func (c *completerStub) Complete(_ context.Context, _ string) (string, error) {
	return c.response, c.err
}

func TestContextExtractorLLMPath(t *testing.T) {
	tool := NewContextExtractorTool(&completerStub{
		response: `{"plant_type": "Tomato", "location": "Karnataka", "season": "Monsoon", "growth_stage": "Flowering"}`,
	})

	extracted := tool.Call(context.Background(), "My tomato plants look sick")
	assert.Equal(t, "tomato", extracted.PlantType)
	assert.Equal(t, "Karnataka", extracted.Location)
	assert.Equal(t, "monsoon", extracted.Season)
	assert.Equal(t, "flowering", extracted.GrowthStage)
}

func TestContextExtractorFallbackOnLLMFailure(t *testing.T) {
	tool := NewContextExtractorTool(&completerStub{err: fmt.Errorf("llm down")})

	extracted := tool.Call(context.Background(), "My rice crop in Karnataka is wilting this monsoon")
	assert.Equal(t, "rice", extracted.PlantType)
	assert.Equal(t, "Karnataka", extracted.Location)
	assert.Equal(t, "monsoon", extracted.Season)
}

func TestContextExtractorEmptyMessage(t *testing.T) {
	tool := NewContextExtractorTool(&completerStub{})
	extracted := tool.Call(context.Background(), "   ")
	assert.Empty(t, extracted.PlantType)
	assert.Empty(t, extracted.Location)
}

func TestAttentionOverlayTool(t *testing.T) {
	tool := NewAttentionOverlayTool()

	state := models.NewSessionState("s1")
	_, terr := tool.Call(state, AttentionOverlayRequest{RequestType: "show_overlay"})
	assert.NotNil(t, terr)
	assert.Equal(t, ErrValidation, terr.Kind)

	state.Transient.AttentionOverlay = "b64data"
	state.DiseaseName = "rust"
	state.Confidence = 0.9

	result, terr := tool.Call(state, AttentionOverlayRequest{RequestType: "show_overlay"})
	assert.Nil(t, terr)
	assert.Equal(t, "b64data", result.Overlay)
	assert.Contains(t, result.Message, "rust")
}
