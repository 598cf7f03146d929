package nodes

import (
	"context"
	"log/slog"

	"github.com/sasya-arogya/engine/pkg/models"
)

// InitialNode handles the first routing decision of a turn: continuing-vs-new
// conversation, intent analysis, goodbye detection, context extraction and
// the dispatch to classification, insurance or general help.
type InitialNode struct {
	deps Deps
}

// NewInitialNode creates the initial node.
func NewInitialNode(deps Deps) *InitialNode {
	return &InitialNode{deps: deps}
}

func (n *InitialNode) Name() string { return models.NodeInitial }

func (n *InitialNode) Execute(ctx context.Context, state *models.SessionState) error {
	state.UpdateNode(n.Name())

	if n.isContinuingConversation(state) {
		slog.Info("Continuing conversation detected, routing to followup",
			"session_id", state.SessionID)
		state.NextAction = "followup"
		return nil
	}

	userIntent := n.deps.Intent.Analyze(ctx, state.UserMessage)
	state.UserIntent = userIntent

	// Goodbye wins over everything else in a new message.
	if n.deps.Intent.DetectGoodbye(ctx, state.UserMessage) {
		slog.Info("Goodbye intent detected, ending session", "session_id", state.SessionID)
		state.NextAction = "session_end"
		return nil
	}

	n.extractContext(ctx, state)

	if userIntent.GeneralAnswer != "" {
		state.GeneralAnswer = userIntent.GeneralAnswer
	}

	if userIntent.OutOfScope {
		n.handleOutOfScope(state, userIntent)
		return nil
	}

	n.determineNextAction(state, userIntent)
	return nil
}

// extractContext merges extractor output into state; API-provided values
// already on the state always win.
func (n *InitialNode) extractContext(ctx context.Context, state *models.SessionState) {
	extracted := n.deps.ContextExtractor.Call(ctx, state.UserMessage)
	if extracted == nil {
		return
	}
	if state.PlantType == "" {
		state.PlantType = extracted.PlantType
	}
	if state.Location == "" {
		state.Location = extracted.Location
	}
	if state.Season == "" {
		state.Season = extracted.Season
	}
	if state.GrowthStage == "" {
		state.GrowthStage = extracted.GrowthStage
	}
}

func (n *InitialNode) determineNextAction(state *models.SessionState, userIntent *models.Intent) {
	general := state.GeneralAnswer
	hasImage := state.Transient != nil && state.Transient.UserImage != ""

	switch {
	case hasImage && userIntent.WantsClassification:
		state.NextAction = "classify"
		msg := "🌱 I can see you've uploaded an image of a plant leaf. Let me analyze it for disease detection."
		state.AddMessage(models.RoleAssistant, withGeneralAdvice(msg, general))

	case userIntent.WantsClassification:
		// Wants classification but no image attached.
		state.NextAction = "request_image"
		msg := "🌱 I'd be happy to help analyze your plant! Please upload a clear photo of the affected leaf showing any symptoms."
		state.AddMessage(models.RoleAssistant, withGeneralAdvice(msg, general))
		state.RequiresUserInput = true

	case userIntent.WantsInsurance:
		state.NextAction = "insurance"
		msg := "🏦 I'll help you with crop insurance options."
		state.AddMessage(models.RoleAssistant, withGeneralAdvice(msg, general))

	case userIntent.IsGeneralQuestion:
		state.NextAction = "general_help"
		if general != "" {
			state.AddMessage(models.RoleAssistant,
				"🌾 "+general+"\n\nIs there anything else I can help you with regarding plant disease diagnosis or treatment?")
		} else {
			state.AddMessage(models.RoleAssistant,
				"🌾 I understand you have a general farming question. I can provide basic guidance on "+
					"agricultural topics, but I specialize in plant disease diagnosis and treatment. Feel free "+
					"to ask about specific plant issues or upload a photo for disease analysis!")
		}
		state.RequiresUserInput = true

	default:
		// Greeting or unclear intent.
		state.NextAction = "general_help"
		msg := "🌱 Hello! I'm your plant disease diagnosis assistant. I can help you:\n\n" +
			"• **Identify diseases** - Upload a photo for analysis\n" +
			"• **Get treatment recommendations** - Get prescription after diagnosis\n" +
			"• **Crop insurance** - Calculate premiums and get insurance recommendations\n\n" +
			"What would you like me to help you with today?"
		if general != "" {
			msg = "🌾 " + general + "\n\n" + msg
		}
		state.AddMessage(models.RoleAssistant, msg)
		state.RequiresUserInput = true
	}
}

func (n *InitialNode) handleOutOfScope(state *models.SessionState, userIntent *models.Intent) {
	response := OutOfScopeResponse()
	state.AddMessage(models.RoleAssistant, response)
	state.AssistantResponse = response
	state.NextAction = "completed"
	state.IsComplete = true
	slog.Info("Out-of-scope request handled",
		"session_id", state.SessionID, "scope_confidence", userIntent.ScopeConfidence)
}

// isContinuingConversation detects whether this turn belongs to a session the
// assistant has already engaged. An ended session is always a NEW
// conversation regardless of history.
func (n *InitialNode) isContinuingConversation(state *models.SessionState) bool {
	if state.SessionEnded {
		slog.Info("Session has ended, treating turn as new conversation",
			"session_id", state.SessionID)
		return false
	}

	hasResults := state.HasWorkflowResults()
	hasAssistantHistory := state.AssistantMessageCount() > 0
	wasMidWorkflow := state.PreviousNode != "" && state.PreviousNode != models.NodeInitial

	return hasResults || hasAssistantHistory || wasMidWorkflow
}

func withGeneralAdvice(msg, general string) string {
	if general == "" {
		return msg
	}
	return msg + "\n\n🌾 **General Agricultural Advice:** " + general
}
