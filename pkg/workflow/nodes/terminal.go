package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/sasya-arogya/engine/pkg/models"
)

// ErrorNode is the only surface producing user-facing failure text. Internal
// error strings map to friendly categories by substring so internal
// identifiers never leak to users.
type ErrorNode struct{}

// NewErrorNode creates the error node.
func NewErrorNode() *ErrorNode {
	return &ErrorNode{}
}

func (n *ErrorNode) Name() string { return models.NodeError }

func (n *ErrorNode) Execute(_ context.Context, state *models.SessionState) error {
	state.UpdateNode(n.Name())

	errMsg := state.ErrorMessage
	if errMsg == "" {
		errMsg = "An unknown error occurred"
	}

	message := friendlyError(errMsg)
	state.AddMessage(models.RoleAssistant, message)
	state.AssistantResponse = message
	state.ResponseStatus = models.ResponseFinal
	state.StreamImmediately = true
	state.MarkComplete()
	return nil
}

func friendlyError(errMsg string) string {
	lower := strings.ToLower(errMsg)
	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}

	switch {
	case strings.Contains(lower, "mcp") && contains("server", "not available"):
		return "⚠️ **INSURANCE SERVICE TEMPORARILY UNAVAILABLE**\n\n" +
			"Our crop insurance service is currently experiencing technical difficulties. " +
			"Please try again in a few minutes, or feel free to ask about plant diagnosis " +
			"and treatment recommendations in the meantime."

	case strings.Contains(lower, "model") && contains("loading", "unavailable", "not available"):
		return "⚠️ **PLANT DIAGNOSIS TEMPORARILY UNAVAILABLE**\n\n" +
			"Our plant disease detection system is currently being updated. " +
			"Please try uploading your plant image again in a few minutes."

	case strings.Contains(lower, "image") && contains("processing", "failed", "provided"):
		return "⚠️ **IMAGE PROCESSING ISSUE**\n\n" +
			"We had trouble analyzing your plant image. Please try uploading a clearer photo " +
			"with good lighting, or try a different image."

	case contains("connection", "timeout", "network", "unreachable"):
		return "⚠️ **CONNECTION ISSUE**\n\n" +
			"We're experiencing connectivity issues. Please check your internet connection " +
			"and try again. If the problem persists, our services may be temporarily unavailable."

	case contains("llm", "generation", "completion"):
		return "⚠️ **AI SERVICE TEMPORARILY UNAVAILABLE**\n\n" +
			"Our AI-powered recommendation system is currently experiencing issues. " +
			"Please try again in a few minutes."

	case strings.Contains(lower, "tool") && strings.Contains(lower, "not available"):
		return "⚠️ **SERVICE TEMPORARILY UNAVAILABLE**\n\n" +
			"One of our services is currently undergoing maintenance. " +
			"Please try again shortly or contact support if the issue continues."

	case contains("failed", "error", "unable"):
		return fmt.Sprintf("⚠️ **TEMPORARY SERVICE ISSUE**\n\n"+
			"We encountered a technical issue: %s\n\n"+
			"Please try your request again. If the problem continues, "+
			"please contact our support team for assistance.", errMsg)

	default:
		return fmt.Sprintf("❌ **UNEXPECTED ERROR**\n\n"+
			"An unexpected issue occurred: %s\n\n"+
			"Please try again or contact support if the issue persists.", errMsg)
	}
}

// SessionEndNode ends the session on explicit user goodbye: it sets
// session_ended (so the next turn starts a fresh conversation on the same
// id) and renders the farewell. The record itself is kept.
type SessionEndNode struct{}

// NewSessionEndNode creates the session-end node.
func NewSessionEndNode() *SessionEndNode {
	return &SessionEndNode{}
}

func (n *SessionEndNode) Name() string { return models.NodeSessionEnd }

func (n *SessionEndNode) Execute(_ context.Context, state *models.SessionState) error {
	state.UpdateNode(n.Name())

	farewell := "👋 **Thank you for using the plant care assistant!**\n\n" +
		"I'm glad I could help with your agricultural needs today. " +
		"Your plants are in good hands!\n\n" +
		"Feel free to come back anytime you need help with plant diseases, " +
		"treatments, or crop insurance. Happy farming! 🌾"

	state.AddMessage(models.RoleAssistant, farewell)
	state.AssistantResponse = farewell
	state.ResponseStatus = models.ResponseFinal
	state.StreamImmediately = true
	state.SessionEnded = true
	state.MarkComplete()
	return nil
}
