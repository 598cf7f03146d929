package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sasya-arogya/engine/pkg/intent"
	"github.com/sasya-arogya/engine/pkg/models"
	"github.com/sasya-arogya/engine/pkg/tools"
)

// insuranceLoopLimit is the count of consecutive identical messages at which
// the node stops and asks the user to rephrase.
const insuranceLoopLimit = 3

// InsuranceNode manages the crop-insurance pipeline: context extraction,
// required-field validation, action determination and the MCP operation.
type InsuranceNode struct {
	deps Deps
}

// NewInsuranceNode creates the insurance node.
func NewInsuranceNode(deps Deps) *InsuranceNode {
	return &InsuranceNode{deps: deps}
}

func (n *InsuranceNode) Name() string { return models.NodeInsurance }

func (n *InsuranceNode) Execute(ctx context.Context, state *models.SessionState) error {
	state.UpdateNode(n.Name())

	if n.loopDetected(state) {
		return nil
	}

	ic := n.extractContext(state)
	state.InsuranceContext = ic

	if missing := ic.MissingFields(); len(missing) > 0 {
		n.promptForMissingInfo(state, missing)
		state.NextAction = "followup"
		state.RequiresUserInput = true
		return nil
	}

	action := n.deps.Intent.DetermineInsuranceAction(ctx, state, ic)
	slog.Info("Executing insurance operation",
		"session_id", state.SessionID, "action", action)

	state.AddMessage(models.RoleAssistant,
		"🏦 Processing your insurance request... This may take a moment.")
	state.StreamImmediately = true

	var result *models.InsuranceResult
	for {
		res, terr := n.deps.Insurer.Call(ctx, action, ic, state.SessionID)
		if terr == nil {
			result = res
			break
		}
		state.SetError(terr.Message)
		retryable := terr.Kind == tools.ErrTimeout || terr.Kind == tools.ErrUpstreamUnavailable
		if retryable && state.CanRetry(n.deps.MaxRetries) {
			state.RecordRetry()
			slog.Warn("Insurance call failed, retrying",
				"session_id", state.SessionID, "action", action,
				"attempt", state.RetryCount, "error", terr.Message)
			continue
		}
		state.NextAction = "error"
		slog.Error("Insurance operation failed",
			"session_id", state.SessionID, "action", action, "error", terr.Message)
		return nil
	}

	// Current-operation success overrides any stale error from earlier in
	// the turn chain.
	state.ClearError()

	n.storeResult(state, action, result)
	n.respond(state, action, result)

	state.RequiresUserInput = false
	state.InsuranceOperationCompleted = true
	state.LastCompletedInsuranceAction = string(action)
	state.NextAction = "completed"
	return nil
}

// loopDetected asks the user to rephrase after the same message hits this
// node three consecutive times.
func (n *InsuranceNode) loopDetected(state *models.SessionState) bool {
	if state.LastInsuranceMessage == state.UserMessage {
		state.InsuranceActionCount++
	} else {
		state.InsuranceActionCount = 1
	}
	state.LastInsuranceMessage = state.UserMessage

	if state.InsuranceActionCount < insuranceLoopLimit {
		return false
	}

	slog.Warn("Insurance loop detected, asking user to rephrase",
		"session_id", state.SessionID, "count", state.InsuranceActionCount)
	rephrase := "🏦 I'm having trouble processing your request. Could you please rephrase what you'd like to do with insurance?"
	state.AddMessage(models.RoleAssistant, rephrase)
	state.AssistantResponse = rephrase
	state.ResponseStatus = models.ResponseFinal
	state.StreamImmediately = true
	state.NextAction = "await_user_input"
	state.RequiresUserInput = true
	state.InsuranceActionCount = 0
	state.LastInsuranceMessage = ""
	return true
}

// extractContext assembles the insurance context from state fields plus
// whatever the user message carries. Message-extracted values fill gaps; the
// state keeps precedence.
func (n *InsuranceNode) extractContext(state *models.SessionState) *models.InsuranceContext {
	ic := &models.InsuranceContext{
		Disease:     state.DiseaseName,
		Crop:        firstNonEmpty(state.Crop, state.PlantType),
		State:       firstNonEmpty(state.State, state.Location),
		FarmerName:  state.FarmerName,
		AreaHectare: state.AreaHectare,
	}

	extracted := intent.ExtractInsuranceDetails(state.UserMessage)
	if ic.FarmerName == "" {
		ic.FarmerName = extracted.FarmerName
	}
	if ic.AreaHectare <= 0 {
		ic.AreaHectare = extracted.AreaHectare
	}
	if ic.Crop == "" {
		ic.Crop = extracted.Crop
	}
	if ic.State == "" {
		ic.State = extracted.State
	}
	if ic.FarmerName == "" {
		ic.FarmerName = "Farmer"
	}

	// Backfill state fields so later turns keep the gathered context.
	if state.Crop == "" {
		state.Crop = ic.Crop
	}
	if state.State == "" {
		state.State = ic.State
	}
	if state.AreaHectare <= 0 {
		state.AreaHectare = ic.AreaHectare
	}
	if state.FarmerName == "" && ic.FarmerName != "Farmer" {
		state.FarmerName = ic.FarmerName
	}
	return ic
}

func (n *InsuranceNode) promptForMissingInfo(state *models.SessionState, missing []string) {
	prompts := map[string]string{
		"state":        "your state or location",
		"area_hectare": "the area of your farm in hectares",
		"crop":         "the type of crop you are growing",
	}
	described := make([]string, 0, len(missing))
	for _, field := range missing {
		described = append(described, prompts[field])
	}

	var prompt string
	if len(described) == 1 {
		prompt = fmt.Sprintf("To help you with crop insurance, I need to know %s. Could you please provide this information?", described[0])
	} else {
		var fieldList string
		if len(described) > 2 {
			fieldList = strings.Join(described[:len(described)-1], ", ") + ", and " + described[len(described)-1]
		} else {
			fieldList = strings.Join(described, " and ")
		}
		prompt = fmt.Sprintf("To help you with crop insurance, I need the following information: %s. Could you please provide these details?", fieldList)
	}

	state.AddMessage(models.RoleAssistant, "🏦 "+prompt)
	state.AssistantResponse = "🏦 " + prompt
	state.ResponseStatus = models.ResponseFinal
	state.StreamImmediately = true
}

func (n *InsuranceNode) storeResult(state *models.SessionState, action models.InsuranceAction, result *models.InsuranceResult) {
	switch action {
	case models.InsuranceCalculatePremium:
		state.InsurancePremiumDetails = result
	case models.InsuranceGetCompanies:
		state.InsuranceCompanies = append(state.InsuranceCompanies, result)
	case models.InsuranceRecommend:
		state.InsuranceRecommendations = result
	case models.InsuranceGenerateCertificate:
		state.InsuranceCertificate = result
	}

	if result.FarmerName != "" && result.FarmerName != "Farmer" {
		state.FarmerName = result.FarmerName
	}
	if result.AreaHectare > 0 {
		state.AreaHectare = result.AreaHectare
	}
}

func (n *InsuranceNode) respond(state *models.SessionState, action models.InsuranceAction, result *models.InsuranceResult) {
	var message string
	switch action {
	case models.InsuranceCalculatePremium:
		message = "🏦 **Insurance Premium Calculation**\n\n" +
			firstNonEmpty(result.PremiumDetails, "Premium calculation completed")

	case models.InsuranceGetCompanies:
		message = "🏦 **Available Insurance Companies**\n\n" +
			firstNonEmpty(result.Companies, "Insurance companies information retrieved")

	case models.InsuranceRecommend:
		message = "🏦 **Insurance Recommendation**\n\n" + result.RecommendationText
		if result.PDFGenerated {
			message += "\n\n📄 A detailed insurance recommendation PDF has been generated for you."
		}
		if result.Crop != "" && result.Disease != "" {
			message += fmt.Sprintf(
				"\n\n**Coverage Details:**\n- Crop: %s\n- Disease Risk: %s\n- Coverage Area: %g hectares",
				result.Crop, result.Disease, result.AreaHectare)
		}

	case models.InsuranceGenerateCertificate:
		var b strings.Builder
		b.WriteString("🏦 **Insurance Policy Certificate Generated Successfully! 🎉**\n\n")
		fmt.Fprintf(&b, "**Farmer:** %s\n", result.FarmerName)
		fmt.Fprintf(&b, "**Crop:** %s\n", result.Crop)
		if result.PolicyID != "" {
			fmt.Fprintf(&b, "**Policy ID:** %s\n", result.PolicyID)
		}
		fmt.Fprintf(&b, "**Coverage Area:** %g hectares\n", result.AreaHectare)
		if result.PremiumDetails != "" {
			fmt.Fprintf(&b, "\n**Premium Details:**\n%s", result.PremiumDetails)
		}
		if result.PDFGenerated {
			b.WriteString("\n\n📄 **Your insurance certificate PDF has been generated and is ready for download.**")
		} else {
			b.WriteString("\n\n⚠️ Certificate details processed, but PDF generation is temporarily unavailable.")
		}
		message = b.String()
	}

	state.AddMessage(models.RoleAssistant, message)
	state.AssistantResponse = message
	state.ResponseStatus = models.ResponseFinal
	state.StreamImmediately = true
	state.StreamInStateUpdate = false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
