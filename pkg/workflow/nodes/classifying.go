package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sasya-arogya/engine/pkg/models"
	"github.com/sasya-arogya/engine/pkg/tools"
)

// ClassifyingNode runs disease classification on the uploaded image and
// renders the farmer-facing diagnostic report.
type ClassifyingNode struct {
	deps Deps
}

// NewClassifyingNode creates the classifying node.
func NewClassifyingNode(deps Deps) *ClassifyingNode {
	return &ClassifyingNode{deps: deps}
}

func (n *ClassifyingNode) Name() string { return models.NodeClassifying }

func (n *ClassifyingNode) Execute(ctx context.Context, state *models.SessionState) error {
	state.UpdateNode(n.Name())

	if state.Transient == nil || state.Transient.UserImage == "" {
		state.SetError("No image provided for classification")
		state.NextAction = "error"
		return nil
	}

	state.AddMessage(models.RoleAssistant,
		"🔬 Analyzing the plant leaf image for disease detection...")

	result, terr := n.deps.Classifier.Call(ctx, tools.ClassificationRequest{
		ImageB64:    state.Transient.UserImage,
		PlantType:   state.PlantType,
		Location:    state.Location,
		Season:      state.Season,
		GrowthStage: state.GrowthStage,
		SessionID:   state.SessionID,
	})
	if terr != nil {
		n.handleFailure(state, terr)
		return nil
	}

	n.processResult(state, result)
	return nil
}

func (n *ClassifyingNode) handleFailure(state *models.SessionState, terr *tools.Error) {
	slog.Info("Classification failed", "session_id", state.SessionID, "kind", terr.Kind, "error", terr.Message)

	if state.CanRetry(n.deps.MaxRetries) {
		state.RecordRetry()
		state.NextAction = "retry"
		state.AddMessage(models.RoleAssistant,
			fmt.Sprintf("⚠️ Classification attempt failed: %s. Retrying...", terr.Message))
		return
	}
	state.SetError(terr.Message)
	state.NextAction = "error"
}

func (n *ClassifyingNode) processResult(state *models.SessionState, result *models.Classification) {
	state.ClassificationResults = result
	state.DiseaseName = result.DiseaseName
	state.Confidence = result.Confidence

	// The overlay lives only on the transient record; it is streamed once as
	// its own event and never persisted.
	if result.AttentionOverlay != "" {
		state.Transient.AttentionOverlay = result.AttentionOverlay
	}

	healthy := result.IsHealthy()
	response := n.formatReport(result, healthy)

	state.AssistantResponse = response
	state.ResponseStatus = models.ResponseFinal
	state.StreamImmediately = true
	state.StreamInStateUpdate = false
	state.AddMessage(models.RoleAssistant, response)

	n.determineNextAction(state, healthy)
}

func (n *ClassifyingNode) determineNextAction(state *models.SessionState, healthy bool) {
	userIntent := state.UserIntent

	switch {
	case healthy:
		// No treatment for a healthy plant regardless of what was asked.
		state.NextAction = "followup"
		state.IsComplete = false
		msg := "🌱 **Your plant is in great shape!** Keep monitoring it and feel free to ask if you have any general plant care questions!"
		state.AddMessage(models.RoleAssistant, withGeneralAdvice(msg, state.GeneralAnswer))

	case userIntent != nil && userIntent.WantsPrescription:
		state.NextAction = "prescribe"

	default:
		// Classification only; wait for the user's next choice.
		state.NextAction = "followup"
		state.IsComplete = false
		msg := "✅ **Analysis Complete!** If you need treatment recommendations, just let me know!"
		state.AddMessage(models.RoleAssistant, withGeneralAdvice(msg, state.GeneralAnswer))
	}
}

func (n *ClassifyingNode) formatReport(result *models.Classification, healthy bool) string {
	confidencePct := result.Confidence * 100
	friendlyName := farmerDiseaseName(result.DiseaseName)
	emoji, confidenceText := farmerConfidence(confidencePct)

	if healthy {
		return fmt.Sprintf(`🌿 **PLANT HEALTH ANALYSIS**

🔍 **GREAT NEWS!**
Your plant appears to be: **%s**

%s **HOW SURE ARE WE?**
%s (%.0f%% match)

🎉 **WHAT THIS MEANS**
Your plant looks healthy! No signs of disease detected. Keep up the good care routine you're already following.

💚 **KEEP IT HEALTHY:** Continue regular watering, proper sunlight, and good soil drainage.`,
			friendlyName, emoji, confidenceText, confidencePct)
	}

	return fmt.Sprintf(`🌿 **PLANT DISEASE ANALYSIS**

🔍 **WHAT WE FOUND**
Your plant has: **%s**

%s **HOW SURE ARE WE?**
%s (%.0f%% match)

⚠️ **HOW SERIOUS?**
%s

📝 **SIMPLE EXPLANATION**
%s

✅ **NEXT STEP:** Get treatment recommendations to help your plant recover!`,
		friendlyName, emoji, confidenceText, confidencePct,
		farmerSeverity(result.Severity), simplifyDescription(result.Description))
}

// farmerDiseaseName converts technical disease labels to farmer-friendly
// names.
func farmerDiseaseName(technical string) string {
	diseaseMap := map[string]string{
		"alternaria_leaf_blotch": "Leaf Spot Disease",
		"bacterial_blight":       "Bacterial Leaf Burn",
		"powdery_mildew":         "White Powder Disease",
		"rust":                   "Orange Rust Disease",
		"black_spot":             "Black Spot Disease",
		"downy_mildew":           "Fuzzy Mold Disease",
		"anthracnose":            "Dark Spot Disease",
		"septoria_leaf_spot":     "Brown Spot Disease",
		"cercospora_leaf_spot":   "Gray Spot Disease",
		"bacterial_spot":         "Bacterial Spots",
		"viral_mosaic":           "Leaf Pattern Disease",
		"fusarium_wilt":          "Plant Wilting Disease",
		"root_rot":               "Root Damage Disease",
		"healthy":                "Healthy Plant",
		"healthy_plant":          "Healthy Plant",
	}
	if friendly, ok := diseaseMap[strings.ToLower(technical)]; ok {
		return friendly
	}
	words := strings.Fields(strings.ReplaceAll(technical, "_", " "))
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}
	}
	return strings.Join(words, " ")
}

func farmerConfidence(pct float64) (string, string) {
	switch {
	case pct >= 85:
		return "🟢", "**Very Sure** - The diagnosis is highly accurate"
	case pct >= 70:
		return "🟡", "**Fairly Sure** - Good diagnosis, worth treating"
	default:
		return "🔴", "**Need to Check** - Consider getting expert advice"
	}
}

func farmerSeverity(technical string) string {
	severityMap := map[string]string{
		"low":      "🟢 **Mild** - Easy to treat, not urgent",
		"mild":     "🟢 **Mild** - Easy to treat, not urgent",
		"medium":   "🟡 **Moderate** - Should treat soon to prevent spread",
		"moderate": "🟡 **Moderate** - Should treat soon to prevent spread",
		"high":     "🔴 **Serious** - Treat immediately to save your plant",
		"severe":   "🔴 **Serious** - Treat immediately to save your plant",
		"critical": "🔴 **Very Serious** - Urgent treatment needed!",
	}
	if friendly, ok := severityMap[strings.ToLower(technical)]; ok {
		return friendly
	}
	return "🟡 **Moderate** - Keep watching, treat if it spreads"
}

// simplifyDescription replaces technical terms with farmer-friendly language
// and trims to two sentences.
func simplifyDescription(technical string) string {
	if technical == "" {
		return "This disease can damage your plant's leaves and reduce crop yield. Early treatment helps recovery."
	}

	replacements := [][2]string{
		{"pathogen", "disease"},
		{"fungal", "fungus"},
		{"bacterial", "bacteria"},
		{"spores", "disease seeds"},
		{"lesions", "spots"},
		{"chlorosis", "yellowing"},
		{"necrosis", "dead tissue"},
		{"defoliation", "leaf drop"},
		{"photosynthesis", "plant's food making"},
		{"chlorophyll", "green color"},
		{"infection", "disease spread"},
		{"symptoms", "signs"},
	}
	simplified := technical
	for _, r := range replacements {
		simplified = strings.ReplaceAll(simplified, r[0], r[1])
	}

	sentences := strings.SplitN(simplified, ".", 3)
	if len(sentences) > 2 {
		sentences = sentences[:2]
	}
	var kept []string
	for _, s := range sentences {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, ". ") + "."
}
