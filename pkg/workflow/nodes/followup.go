package nodes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sasya-arogya/engine/pkg/intent"
	"github.com/sasya-arogya/engine/pkg/models"
	"github.com/sasya-arogya/engine/pkg/tools"
)

// FollowupNode handles every post-tool interaction: goodbye detection,
// re-entry prevention after completed workflow steps, in-place
// classification, attention overlays and direct answers.
type FollowupNode struct {
	deps Deps
}

// NewFollowupNode creates the followup node.
func NewFollowupNode(deps Deps) *FollowupNode {
	return &FollowupNode{deps: deps}
}

func (n *FollowupNode) Name() string { return models.NodeFollowup }

func (n *FollowupNode) Execute(ctx context.Context, state *models.SessionState) error {
	state.UpdateNode(n.Name())

	// Goodbye wins over everything in followup conversations.
	if n.deps.Intent.DetectGoodbye(ctx, state.UserMessage) {
		slog.Info("Goodbye intent detected in followup", "session_id", state.SessionID)
		state.NextAction = "session_end"
		return nil
	}

	// Re-entry prevention: a node that just produced results must not run
	// again for the same request; render what exists and wait.
	switch {
	case state.PreviousNode == models.NodeClassifying && state.ClassificationResults != nil:
		n.showClassificationComplete(state)

	case state.PreviousNode == models.NodePrescribing && state.PrescriptionData != nil:
		n.showPrescriptionComplete(state)

	case state.PreviousNode == models.NodeInsurance && state.RequiresUserInput:
		n.handleInsuranceMissingInfo(ctx, state)

	case state.PreviousNode == models.NodeInsurance &&
		(state.InsurancePremiumDetails != nil || state.InsuranceRecommendations != nil):
		n.showInsuranceComplete(state)

	default:
		n.dispatch(ctx, state)
	}
	return nil
}

func (n *FollowupNode) dispatch(ctx context.Context, state *models.SessionState) {
	fi := n.deps.Intent.AnalyzeFollowup(ctx, state)

	switch fi.Action {
	case models.FollowupClassify:
		n.handleClassify(ctx, state)
	case models.FollowupPrescribe:
		state.NextAction = "prescribe"
	case models.FollowupInsurance:
		n.handleInsurance(ctx, state)
	case models.FollowupAttentionOverlay:
		n.handleAttentionOverlay(state, fi)
	case models.FollowupRestart:
		state.NextAction = "restart"
		state.AddMessage(models.RoleAssistant,
			"🔄 Starting a new diagnosis. Please share your plant image and any additional context.")
		state.RequiresUserInput = true
	case models.FollowupComplete:
		n.handleComplete(ctx, state)
	case models.FollowupDirectResponse:
		n.handleDirectResponse(state, fi)
	case models.FollowupOutOfScope:
		n.handleOutOfScope(state)
	default:
		n.showGeneralHelp(state)
	}
}

// handleClassify classifies in place when an image is attached, avoiding the
// extra hop through the classifying node; on failure it routes back there
// for retry handling.
func (n *FollowupNode) handleClassify(ctx context.Context, state *models.SessionState) {
	if state.Transient == nil || state.Transient.UserImage == "" {
		state.NextAction = "request_image"
		state.AddMessage(models.RoleAssistant,
			"📸 Please upload an image of the plant leaf you'd like me to analyze.")
		state.RequiresUserInput = true
		return
	}

	result, terr := n.deps.Classifier.Call(ctx, tools.ClassificationRequest{
		ImageB64:    state.Transient.UserImage,
		PlantType:   state.PlantType,
		Location:    state.Location,
		Season:      state.Season,
		GrowthStage: state.GrowthStage,
		SessionID:   state.SessionID,
	})
	if terr != nil {
		slog.Warn("In-place classification failed, routing to classifying node",
			"session_id", state.SessionID, "error", terr.Message)
		state.NextAction = "classify"
		return
	}

	state.ClassificationResults = result
	state.DiseaseName = result.DiseaseName
	state.Confidence = result.Confidence
	if result.AttentionOverlay != "" {
		state.Transient.AttentionOverlay = result.AttentionOverlay
	}

	message := fmt.Sprintf("🔬 **Analysis Complete!**\n\n**Disease Identified:** %s\n**Confidence:** %.0f%%\n\n",
		result.DiseaseName, result.Confidence*100)
	if result.Description != "" {
		message += fmt.Sprintf("**Description:** %s\n\n", result.Description)
	}
	message += "Would you like me to provide treatment recommendations for this condition?"

	state.AddMessage(models.RoleAssistant, message)
	state.AssistantResponse = message
	state.ResponseStatus = models.ResponseFinal
	state.StreamImmediately = true
	state.StreamInStateUpdate = false
	state.NextAction = "await_user_input"
	state.RequiresUserInput = true
}

func (n *FollowupNode) handleInsurance(ctx context.Context, state *models.SessionState) {
	// Resolve the fine-grained insurance intent so the insurance node sees
	// explicit flags.
	state.UserIntent = n.deps.Intent.AnalyzeInsuranceSubIntent(ctx, state.UserMessage)
	state.NextAction = "insurance"
}

func (n *FollowupNode) handleAttentionOverlay(state *models.SessionState, fi *models.FollowupIntent) {
	requestType := fi.OverlayType
	if requestType == "" {
		requestType = "show_overlay"
	}

	result, terr := n.deps.Overlay.Call(state, tools.AttentionOverlayRequest{RequestType: requestType})
	if terr != nil {
		state.AddMessage(models.RoleAssistant,
			"❌ Sorry, I couldn't retrieve the attention overlay. Please run a new classification first.")
		state.NextAction = "general_help"
		return
	}

	// Re-expose the overlay so the streaming layer emits its dedicated event.
	state.Transient.AttentionOverlay = result.Overlay
	state.AddMessage(models.RoleAssistant, result.Message)
	state.AssistantResponse = result.Message
	state.ResponseStatus = models.ResponseFinal
	state.StreamImmediately = true
	state.NextAction = "general_help"
	state.RequiresUserInput = true
}

func (n *FollowupNode) handleComplete(ctx context.Context, state *models.SessionState) {
	if n.deps.Intent.DetectGoodbye(ctx, state.UserMessage) {
		state.NextAction = "session_end"
		return
	}
	n.showOngoingSupport(state)
}

// handleDirectResponse marks the answer intermediate so the completed node
// enhances it into the final message.
func (n *FollowupNode) handleDirectResponse(state *models.SessionState, fi *models.FollowupIntent) {
	response := fi.Response
	if response == "" {
		response = "I'm here to help! What would you like to know?"
	}

	state.AssistantResponse = response
	state.ResponseStatus = models.ResponseIntermediate
	state.StreamImmediately = false
	state.AddMessage(models.RoleAssistant, response)
	state.NextAction = "await_user_input"
	state.RequiresUserInput = true
}

func (n *FollowupNode) handleOutOfScope(state *models.SessionState) {
	response := OutOfScopeResponse()
	state.AddMessage(models.RoleAssistant, response)
	state.AssistantResponse = response
	state.NextAction = "completed"
	state.IsComplete = true
}

// handleInsuranceMissingInfo runs after the insurance node prompted for
// missing fields: extract what the user supplied and loop back, or fall
// through to normal intent handling.
func (n *FollowupNode) handleInsuranceMissingInfo(ctx context.Context, state *models.SessionState) {
	extracted := intent.ExtractInsuranceDetails(state.UserMessage)

	provided := false
	if extracted.Crop != "" {
		state.Crop = extracted.Crop
		provided = true
	}
	if extracted.AreaHectare > 0 {
		state.AreaHectare = extracted.AreaHectare
		provided = true
	}
	if extracted.State != "" {
		state.State = extracted.State
		provided = true
	}
	if extracted.FarmerName != "" {
		state.FarmerName = extracted.FarmerName
	}

	if provided {
		slog.Info("Missing insurance details supplied, re-entering insurance",
			"session_id", state.SessionID)
		state.RequiresUserInput = false
		state.NextAction = "insurance"
		return
	}

	// No missing info in the message. Handle whatever the user asked for
	// instead - but never bounce the same message straight back into the
	// insurance node, or the prompt loop would never reach the user.
	fi := n.deps.Intent.AnalyzeFollowup(ctx, state)
	switch fi.Action {
	case models.FollowupInsurance:
		state.NextAction = "completed"
		state.RequiresUserInput = true
	case models.FollowupClassify:
		state.RequiresUserInput = false
		n.handleClassify(ctx, state)
	case models.FollowupPrescribe:
		state.RequiresUserInput = false
		state.NextAction = "prescribe"
	case models.FollowupDirectResponse:
		state.RequiresUserInput = false
		n.handleDirectResponse(state, fi)
	default:
		state.RequiresUserInput = false
		n.showGeneralHelp(state)
	}
}

func (n *FollowupNode) showClassificationComplete(state *models.SessionState) {
	message := fmt.Sprintf(`✅ **Plant Disease Analysis Complete!**

🔬 **Diagnosis**: %s
📊 **Confidence**: %.0f%%

What would you like to do next?
• **Get treatment recommendations** - I can suggest specific treatments
• **Ask questions** - Any questions about the diagnosis
• **Upload another image** - Analyze a different plant

What's your next step?`, orUnknownDisease(state.DiseaseName), state.Confidence*100)

	state.AddMessage(models.RoleAssistant, message)
	state.NextAction = "completed"
	state.RequiresUserInput = true
}

func (n *FollowupNode) showPrescriptionComplete(state *models.SessionState) {
	message := `✅ **Treatment Recommendations Complete!**

I've provided detailed treatment recommendations for your plant.

What would you like to do next?
• **Ask questions** - Any questions about the treatment plan
• **Get monitoring advice** - Learn how to track treatment progress
• **Upload another image** - Analyze a different plant

What's your next step?`

	state.AddMessage(models.RoleAssistant, message)
	state.NextAction = "completed"
	state.RequiresUserInput = true
}

func (n *FollowupNode) showInsuranceComplete(state *models.SessionState) {
	var response string
	switch {
	case state.InsurancePremiumDetails != nil:
		crop := firstNonEmpty(state.Crop, state.PlantType, "crop")
		response = fmt.Sprintf("✅ **Insurance Premium Calculated Successfully**\n\n"+
			"Your %s insurance premium details are ready.\n\nWhat would you like to do next?", crop)
	case state.InsuranceRecommendations != nil:
		response = "✅ **Insurance Recommendations Ready**\n\nYour insurance recommendations are complete. What would you like to do next?"
	default:
		response = "✅ **Insurance Service Completed**\n\nYour insurance request has been processed. What would you like to do next?"
	}

	state.AssistantResponse = response
	state.ResponseStatus = models.ResponseFinal
	state.StreamImmediately = true
	state.StreamInStateUpdate = false
	state.AddMessage(models.RoleAssistant, response)
	state.NextAction = "completed"
	state.RequiresUserInput = false
}

func (n *FollowupNode) showGeneralHelp(state *models.SessionState) {
	state.NextAction = "general_help"
	state.AddMessage(models.RoleAssistant, `🤔 I can help you with:

• **New diagnosis** - Upload a new plant image
• **Review results** - Look at previous diagnosis or prescription
• **Show attention overlay** - See where the AI focused during diagnosis
• **Ask questions** - Any plant care related questions

What would you like to do next?`)
	state.RequiresUserInput = true
}

func (n *FollowupNode) showOngoingSupport(state *models.SessionState) {
	state.NextAction = "general_help"
	state.AddMessage(models.RoleAssistant, `🤔 I'm here to help with more questions! You can:

• **Upload new plant images** for diagnosis
• **Ask about treatment progress** and monitoring
• **Get seasonal care advice** and tips

What would you like to know more about?`)
	state.RequiresUserInput = true
}

func orUnknownDisease(name string) string {
	if name == "" {
		return "Unknown"
	}
	return name
}
