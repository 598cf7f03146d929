package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/sasya-arogya/engine/pkg/models"
	"github.com/sasya-arogya/engine/pkg/tools"
)

// PrescribingNode generates treatment recommendations for the diagnosed
// disease. The tool degrades to a rule-based fallback internally, so this
// node only sees validation failures as errors.
type PrescribingNode struct {
	deps Deps
}

// NewPrescribingNode creates the prescribing node.
func NewPrescribingNode(deps Deps) *PrescribingNode {
	return &PrescribingNode{deps: deps}
}

func (n *PrescribingNode) Name() string { return models.NodePrescribing }

func (n *PrescribingNode) Execute(ctx context.Context, state *models.SessionState) error {
	state.UpdateNode(n.Name())

	if state.DiseaseName == "" {
		// Cannot prescribe without a diagnosis; route back through
		// classification.
		state.NextAction = "classify"
		state.AddMessage(models.RoleAssistant,
			"💊 I need a diagnosis before recommending treatments. Let me analyze your plant first.")
		return nil
	}

	severity := "Medium"
	if state.ClassificationResults != nil && state.ClassificationResults.Severity != "" {
		severity = state.ClassificationResults.Severity
	}

	prescription, terr := n.deps.Prescriber.Call(ctx, tools.PrescriptionRequest{
		DiseaseName: state.DiseaseName,
		PlantType:   state.PlantType,
		Location:    state.Location,
		Season:      state.Season,
		Severity:    severity,
		SessionID:   state.SessionID,
	})
	if terr != nil {
		if state.CanRetry(n.deps.MaxRetries) {
			state.RecordRetry()
			state.NextAction = "retry"
			state.AddMessage(models.RoleAssistant,
				fmt.Sprintf("⚠️ Treatment lookup failed: %s. Retrying...", terr.Message))
			return nil
		}
		state.SetError(terr.Message)
		state.NextAction = "error"
		return nil
	}

	state.PrescriptionData = prescription
	state.TreatmentRecommendations = prescription.Treatments

	response := n.formatPlan(state, prescription)
	state.AssistantResponse = response
	state.ResponseStatus = models.ResponseFinal
	state.StreamImmediately = true
	state.StreamInStateUpdate = false
	state.AddMessage(models.RoleAssistant, response)

	state.NextAction = "complete"
	return nil
}

func (n *PrescribingNode) formatPlan(state *models.SessionState, rx *models.Prescription) string {
	var b strings.Builder

	fmt.Fprintf(&b, "💊 **TREATMENT PLAN FOR %s**\n", strings.ToUpper(farmerDiseaseName(rx.DiseaseName)))
	if rx.Fallback {
		b.WriteString("\n_The treatment knowledge base is temporarily unavailable; these are general recommendations._\n")
	}

	for i, treatment := range rx.Treatments {
		fmt.Fprintf(&b, "\n🔹 **TREATMENT #%d: %s** (%s)", i+1, treatment.Name, treatment.Type)
		fmt.Fprintf(&b, "\n• **How to apply:** %s", treatment.Application)
		fmt.Fprintf(&b, "\n• **How much:** %s", treatment.Dosage)
		fmt.Fprintf(&b, "\n• **How often:** %s", treatment.Frequency)
		if treatment.Duration != "" {
			fmt.Fprintf(&b, "\n• **For how long:** %s", treatment.Duration)
		}
		b.WriteString("\n")
	}

	if len(rx.PreventiveMeasures) > 0 {
		b.WriteString("\n🛡️ **PREVENT IT COMING BACK**")
		limit := len(rx.PreventiveMeasures)
		if limit > 5 {
			limit = 5
		}
		for _, measure := range rx.PreventiveMeasures[:limit] {
			fmt.Fprintf(&b, "\n• %s", measure)
		}
		b.WriteString("\n")
	}

	if rx.Notes != "" {
		fmt.Fprintf(&b, "\n📌 **NOTES**\n%s\n", rx.Notes)
	}

	if state.GeneralAnswer != "" {
		fmt.Fprintf(&b, "\n🌾 **General Agricultural Advice:** %s", state.GeneralAnswer)
	}
	return b.String()
}
