package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/sasya-arogya/engine/pkg/models"
)

// CompletedNode assembles the user-visible completion reply for a finished
// workflow execution. It never detects goodbye; that is a routing concern of
// the initial and followup nodes. Error summaries are derived only from
// current-operation evidence, never the persistent error message, so a
// failure followed by a success in the same turn reads as a success.
type CompletedNode struct {
	deps Deps
}

// NewCompletedNode creates the completed node.
func NewCompletedNode(deps Deps) *CompletedNode {
	return &CompletedNode{deps: deps}
}

func (n *CompletedNode) Name() string { return models.NodeCompleted }

func (n *CompletedNode) Execute(ctx context.Context, state *models.SessionState) error {
	existingResponse := strings.TrimSpace(state.AssistantResponse)
	fromFollowup := state.CurrentNode == models.NodeFollowup
	state.UpdateNode(n.Name())

	servicesUsed := n.servicesUsed(state)
	followUps := n.contextualNextSteps(ctx, state)

	var completion string
	switch {
	case existingResponse != "" && fromFollowup:
		completion = n.cleanFollowupResponse(existingResponse, followUps)
	case existingResponse != "":
		completion = n.cleanWorkflowCompletion(existingResponse, followUps)
	default:
		completion = n.contextualCompletion(state, servicesUsed, followUps)
	}

	state.AssistantResponse = completion
	state.ResponseStatus = models.ResponseFinal
	state.StreamImmediately = true
	state.StreamInStateUpdate = false
	state.AddMessage(models.RoleAssistant, completion)

	// Workflow execution ends here, but the session stays active; only the
	// session_end node ends sessions.
	state.IsComplete = false
	return nil
}

// servicesUsed derives which services produced results in this session.
func (n *CompletedNode) servicesUsed(state *models.SessionState) map[string]bool {
	return map[string]bool{
		"classification": state.ClassificationResults != nil || state.DiseaseName != "",
		"prescription":   state.PrescriptionData != nil || len(state.TreatmentRecommendations) > 0,
		"insurance": state.InsuranceContext != nil || state.InsurancePremiumDetails != nil ||
			state.InsuranceRecommendations != nil || len(state.InsuranceCompanies) > 0 ||
			state.InsuranceCertificate != nil,
	}
}

func (n *CompletedNode) contextualCompletion(state *models.SessionState, servicesUsed map[string]bool, followUps []string) string {
	var used []string
	for _, service := range []string{"classification", "prescription", "insurance"} {
		if servicesUsed[service] {
			used = append(used, service)
		}
	}

	var title, summary string
	switch len(used) {
	case 0:
		title = "✅ **HOW CAN I HELP YOU?**"
		summary = "I'm here to help with plant disease diagnosis, treatment recommendations, and crop insurance."
	case 1:
		title, summary = n.singleServiceSummary(used[0], state)
	default:
		title = fmt.Sprintf("✅ **YOUR %d SERVICES COMPLETED**", len(used))
		summary = n.multiServiceSummary(used, state)
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n🌱 **WHAT WE DID**\n")
	b.WriteString(summary)

	b.WriteString("\n\n🚀 **WHAT TO DO NEXT**")
	if len(followUps) == 0 {
		followUps = []string{
			"Ask me any questions about your results",
			"Upload new images for analysis",
			"Get additional recommendations",
		}
	}
	for i, followUp := range followUps {
		fmt.Fprintf(&b, "\n%d. %s", i+1, followUp)
	}

	b.WriteString(n.helpSection(servicesUsed))
	return b.String()
}

// singleServiceSummary checks current-operation evidence for failures before
// claiming success.
func (n *CompletedNode) singleServiceSummary(service string, state *models.SessionState) (string, string) {
	if title, message, failed := n.serviceError(service, state); failed {
		return title, message
	}

	switch service {
	case "classification":
		plant := firstNonEmpty(state.PlantType, "plant")
		disease := firstNonEmpty(state.DiseaseName, "the condition")
		return fmt.Sprintf("✅ **YOUR %s DIAGNOSIS COMPLETE**", strings.ToUpper(plant)),
			fmt.Sprintf("We analyzed your plant and identified %s. Our smart system provided detailed diagnostic information.", disease)
	case "prescription":
		return "✅ **YOUR TREATMENT PLAN READY**",
			fmt.Sprintf("We provided you with %d treatment options and preventive measures for your plant's condition.",
				len(state.TreatmentRecommendations))
	case "insurance":
		farmer := firstNonEmpty(state.FarmerName, "Farmer")
		crop := firstNonEmpty(state.Crop, state.PlantType, "your crop")
		kind := "premium calculation"
		if state.InsuranceRecommendations != nil {
			kind = "recommendation"
		}
		return fmt.Sprintf("✅ **YOUR CROP INSURANCE %s COMPLETE**", strings.ToUpper(kind)),
			fmt.Sprintf("We provided %s with %s for %s cultivation. Your insurance details are ready.", farmer, kind, crop)
	}
	return "✅ **SERVICE COMPLETED**", "We've completed your request and provided the information you needed."
}

// serviceError inspects the current operation's evidence only: missing
// expected result fields mean the service did not actually deliver.
func (n *CompletedNode) serviceError(service string, state *models.SessionState) (string, string, bool) {
	switch service {
	case "classification":
		if state.ClassificationResults == nil && state.DiseaseName == "" {
			return "⚠️ **PLANT DIAGNOSIS INCOMPLETE**",
				"Disease analysis could not be completed. Please try uploading a clearer image, then retry the operation.", true
		}
	case "prescription":
		if state.PrescriptionData == nil && len(state.TreatmentRecommendations) == 0 {
			return "⚠️ **TREATMENT RECOMMENDATIONS INCOMPLETE**",
				"Treatment recommendations could not be generated. Please retry after a successful diagnosis.", true
		}
	case "insurance":
		hasData := state.InsurancePremiumDetails != nil || state.InsuranceRecommendations != nil ||
			len(state.InsuranceCompanies) > 0 || state.InsuranceCertificate != nil
		if !hasData {
			return "⚠️ **CROP INSURANCE TEMPORARILY UNAVAILABLE**",
				"Insurance service is currently unavailable. Please try again in a few minutes.", true
		}
	}
	return "", "", false
}

func (n *CompletedNode) multiServiceSummary(used []string, state *models.SessionState) string {
	var successes, failures []string
	for _, service := range used {
		if _, _, failed := n.serviceError(service, state); failed {
			switch service {
			case "classification":
				failures = append(failures, "plant diagnosis")
			case "prescription":
				failures = append(failures, "treatment recommendations")
			case "insurance":
				failures = append(failures, "insurance services")
			}
			continue
		}
		switch service {
		case "classification":
			successes = append(successes, "diagnosed "+firstNonEmpty(state.DiseaseName, "your plant's condition"))
		case "prescription":
			successes = append(successes, fmt.Sprintf("provided %d treatments", len(state.TreatmentRecommendations)))
		case "insurance":
			kind := "premium calculation"
			if state.InsuranceRecommendations != nil {
				kind = "insurance recommendation"
			}
			successes = append(successes, "handled crop "+kind)
		}
	}

	joinList := func(items []string) string {
		if len(items) == 1 {
			return items[0]
		}
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}

	switch {
	case len(successes) > 0 && len(failures) > 0:
		return fmt.Sprintf("We %s for you. However, %s encountered issues. Please retry the failed operations.",
			joinList(successes), strings.Join(failures, ", "))
	case len(successes) > 0:
		return fmt.Sprintf("We %s for you.", joinList(successes))
	case len(failures) > 0:
		return fmt.Sprintf("We encountered issues with %s. Please try again or contact support.", strings.Join(failures, ", "))
	}
	return "We processed your request."
}

func (n *CompletedNode) helpSection(servicesUsed map[string]bool) string {
	var items []string
	if servicesUsed["classification"] || servicesUsed["prescription"] {
		items = append(items,
			"Take new photos if you see more problems",
			"Ask questions about treatment progress")
	}
	if servicesUsed["insurance"] {
		items = append(items,
			"Get insurance for additional crops",
			"Calculate premiums for different areas")
	}
	items = append(items,
		"Get tips for different seasons and weather",
		"Ask general agricultural questions")

	if len(items) > 4 {
		items = items[:4]
	}
	section := "\n\n💚 **WE'RE HERE TO HELP**"
	for _, item := range items {
		section += "\n• " + item
	}
	return section
}

// cleanFollowupResponse passes a direct answer through with minimal next-step
// options appended.
func (n *CompletedNode) cleanFollowupResponse(directResponse string, followUps []string) string {
	message := directResponse
	if len(followUps) > 0 {
		message += "\n\n💡 **Next steps**:"
		limit := len(followUps)
		if limit > 2 {
			limit = 2
		}
		for _, followUp := range followUps[:limit] {
			message += "\n• " + followUp
		}
	} else {
		message += "\n\n💡 **Ask me anything else about your plants!**"
	}
	return message
}

func (n *CompletedNode) cleanWorkflowCompletion(workflowResponse string, followUps []string) string {
	message := workflowResponse + "\n\n**What would you like to do next?**"
	if len(followUps) == 0 {
		return message + "\n\n💡 **Ask me anything else about your plants!**"
	}
	limit := len(followUps)
	if limit > 3 {
		limit = 3
	}
	for _, followUp := range followUps[:limit] {
		message += "\n• " + followUp
	}
	return message
}

const nextStepsPromptTemplate = `You are an expert agricultural assistant helping farmers with plant disease diagnosis, treatment recommendations and crop insurance.

CURRENT WORKFLOW CONTEXT:
%s

SERVICES WE PROVIDE:
1. Plant Disease Classification - analyze plant images to identify diseases
2. Treatment Recommendations - specific treatment plans and medicines
3. Crop Insurance Services - premiums, policies, companies, certificates
4. General Agricultural Guidance - soil health, weather tips, best practices

TASK: Suggest 2-3 logical next steps most helpful to the user.

GUIDELINES:
- Only suggest services we actually provide
- Don't repeat operations already completed without a good reason
- Focus on actionable next steps
- Use emojis: 📸 🔍 💊 🛡️ 📋 📊 🌱 ❓

RESPONSE FORMAT: return ONLY a JSON array of 2-3 next-step strings.
Example: ["💊 Get treatment recommendations for this disease", "🛡️ Calculate crop insurance premium for protection"]

Response:`

// contextualNextSteps asks the LLM for up to three next steps; any failure
// falls back to the static contextual list.
func (n *CompletedNode) contextualNextSteps(ctx context.Context, state *models.SessionState) []string {
	analyzer := n.deps.Intent
	if analyzer == nil {
		return n.fallbackNextSteps(state)
	}

	prompt := fmt.Sprintf(nextStepsPromptTemplate, n.workflowContext(state))
	steps := analyzer.NextSteps(ctx, prompt)
	if len(steps) == 0 {
		return n.fallbackNextSteps(state)
	}
	if len(steps) > 3 {
		steps = steps[:3]
	}
	return steps
}

func (n *CompletedNode) workflowContext(state *models.SessionState) string {
	var lines []string

	var completed []string
	if state.ClassificationResults != nil || state.DiseaseName != "" {
		completed = append(completed, "classification")
	}
	if state.PrescriptionData != nil {
		completed = append(completed, "prescription")
	}
	if state.InsurancePremiumDetails != nil || state.InsuranceRecommendations != nil ||
		len(state.InsuranceCompanies) > 0 || state.InsuranceCertificate != nil {
		completed = append(completed, "insurance")
	}
	if len(completed) > 0 {
		lines = append(lines, "✅ COMPLETED: "+strings.Join(completed, ", "))
	} else {
		lines = append(lines, "✅ COMPLETED: None (new session)")
	}

	if state.DiseaseName != "" {
		status := fmt.Sprintf("diseased (%s)", state.DiseaseName)
		if state.ClassificationResults != nil && state.ClassificationResults.IsHealthy() {
			status = "healthy"
		}
		lines = append(lines, fmt.Sprintf("🌿 PLANT STATUS: %s (confidence: %.0f%%)", status, state.Confidence*100))
	}
	if count := len(state.TreatmentRecommendations); count > 0 {
		lines = append(lines, fmt.Sprintf("💊 TREATMENT: %d recommendations provided", count))
	}

	var userDetails []string
	if state.PlantType != "" {
		userDetails = append(userDetails, "plant: "+state.PlantType)
	}
	if state.FarmerName != "" {
		userDetails = append(userDetails, "farmer: "+state.FarmerName)
	}
	if state.Location != "" {
		userDetails = append(userDetails, "location: "+state.Location)
	}
	if len(userDetails) > 0 {
		lines = append(lines, "👤 USER: "+strings.Join(userDetails, ", "))
	}

	return strings.Join(lines, "\n")
}

func (n *CompletedNode) fallbackNextSteps(state *models.SessionState) []string {
	steps := []string{
		"📸 Upload another image for analysis",
		"❓ Ask general questions about plant care",
	}
	switch {
	case state.ClassificationResults == nil && state.DiseaseName == "":
		steps = append([]string{"🔍 Upload plant image for disease diagnosis"}, steps...)
	case state.DiseaseName != "" && state.PrescriptionData == nil:
		steps = append([]string{"💊 Get treatment recommendations"}, steps...)
	case state.InsuranceRecommendations == nil:
		steps = append([]string{"🛡️ Explore crop insurance options"}, steps...)
	}
	if len(steps) > 3 {
		steps = steps[:3]
	}
	return steps
}
