package tools

import (
	"fmt"

	"github.com/sasya-arogya/engine/pkg/models"
)

// AttentionOverlayRequest selects how the overlay should be presented.
type AttentionOverlayRequest struct {
	RequestType string // "show_overlay" or "overlay_info"
}

// AttentionOverlayResult carries the overlay and its presentation message.
type AttentionOverlayResult struct {
	Overlay     string
	DiseaseName string
	Confidence  float64
	Message     string
}

// AttentionOverlayTool serves the attention heatmap captured by the most
// recent classification. It reads only the session's transient record; the
// overlay itself never enters persisted state.
type AttentionOverlayTool struct{}

// NewAttentionOverlayTool creates the overlay adapter.
func NewAttentionOverlayTool() *AttentionOverlayTool {
	return &AttentionOverlayTool{}
}

// Call returns the overlay for the session, or a validation error when no
// classification has produced one yet.
func (t *AttentionOverlayTool) Call(state *models.SessionState, req AttentionOverlayRequest) (*AttentionOverlayResult, *Error) {
	if state.Transient == nil || state.Transient.AttentionOverlay == "" {
		return nil, NewError(ErrValidation,
			"no attention overlay available - run a disease classification first")
	}

	result := &AttentionOverlayResult{
		Overlay:     state.Transient.AttentionOverlay,
		DiseaseName: state.DiseaseName,
		Confidence:  state.Confidence,
	}

	if req.RequestType == "overlay_info" {
		result.Message = "🔍 The attention overlay highlights the leaf regions the diagnostic " +
			"model focused on. Warmer areas contributed most to the diagnosis."
	} else {
		result.Message = fmt.Sprintf(
			"🔍 **Diagnostic Attention Overlay**\n\nThis heatmap shows where the model focused "+
				"while diagnosing **%s** (%.0f%% confidence). Warmer regions carried the most weight.",
			orDefault(state.DiseaseName, "the condition"), state.Confidence*100)
	}
	return result, nil
}
