package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sasya-arogya/engine/pkg/models"
)

const followupPromptTemplate = `You are analyzing a user's followup message in an agricultural assistance system that provides plant disease diagnosis, treatment prescriptions, crop insurance services and general agricultural guidance.

Current workflow context:
%s

User's message: "%s"

Respond with ONLY a JSON object containing:
- action: one of ["classify", "prescribe", "insurance", "attention_overlay", "restart", "complete", "direct_response", "out_of_scope"]
- response: (string) if action is "direct_response", a helpful answer; otherwise empty
- overlay_type: (string) if action is "attention_overlay", "show_overlay" or "overlay_info"; otherwise empty
- confidence: (number 0-1)
- is_agriculture_related: (boolean)
- scope_confidence: (number 0-1)

Guidelines:
1. Insurance keywords (insurance, premium, coverage, policy, companies) ALWAYS mean "insurance" - we provide full insurance services.
2. Dosage/application questions mean "prescribe" when no prescription exists, otherwise "direct_response" using the available data.
3. Disease diagnosis or new image requests mean "classify".
4. General agriculture questions and clarifications mean "direct_response".
5. "out_of_scope" only for clearly non-agricultural topics (technology, human medicine, vehicles, entertainment).

Prescription data available: %t

Response (JSON only):`

// AnalyzeFollowup classifies a followup message into one of the followup
// actions. When the LLM cannot be used, a keyword fallback picks the action
// and returns a direct response only when no keyword matches.
func (a *Analyzer) AnalyzeFollowup(ctx context.Context, state *models.SessionState) *models.FollowupIntent {
	contextLines := followupContext(state)

	if a.completer != nil {
		prompt := fmt.Sprintf(followupPromptTemplate,
			contextLines, state.UserMessage, state.PrescriptionData != nil)
		raw, err := a.completer.Complete(ctx, prompt)
		if err == nil {
			if parsed := parseFollowupJSON(raw); parsed != nil {
				adjustPrescriptionFollowup(parsed, state)
				return parsed
			}
			slog.Warn("Followup intent JSON unparseable, using fallback")
		} else {
			slog.Warn("Followup intent LLM call failed, using fallback", "error", err)
		}
	}

	return fallbackFollowup(state)
}

func followupContext(state *models.SessionState) string {
	var lines []string
	if state.ClassificationResults != nil {
		lines = append(lines, "- Already diagnosed disease: "+orUnknown(state.DiseaseName))
	}
	if state.PrescriptionData != nil {
		lines = append(lines, "- Already have treatment recommendations")
	}
	if state.InsuranceRecommendations != nil {
		lines = append(lines, "- Already have insurance recommendations")
	}
	if state.InsurancePremiumDetails != nil {
		lines = append(lines, "- Already calculated insurance premium")
	}
	if len(lines) == 0 {
		return "- No previous workflow steps completed"
	}
	return strings.Join(lines, "\n")
}

func parseFollowupJSON(raw string) *models.FollowupIntent {
	blob := jsonObjectPattern.FindString(raw)
	if blob == "" {
		return nil
	}
	var parsed models.FollowupIntent
	if err := json.Unmarshal([]byte(blob), &parsed); err != nil {
		return nil
	}
	if parsed.Action == "" {
		parsed.Action = models.FollowupDirectResponse
	}
	return &parsed
}

// adjustPrescriptionFollowup downgrades a "prescribe" action to a direct
// dosage answer when prescription data already exists and the user asks how
// to apply it.
func adjustPrescriptionFollowup(fi *models.FollowupIntent, state *models.SessionState) {
	if fi.Action != models.FollowupPrescribe || state.PrescriptionData == nil {
		return
	}
	lower := strings.ToLower(state.UserMessage)
	for _, kw := range []string{"dosage", "dose", "application", "instructions", "how much", "how to"} {
		if strings.Contains(lower, kw) {
			fi.Action = models.FollowupDirectResponse
			fi.Response = DosageAnswer(state.PrescriptionData)
			return
		}
	}
}

func fallbackFollowup(state *models.SessionState) *models.FollowupIntent {
	lower := strings.ToLower(state.UserMessage)
	containsAny := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}

	fi := &models.FollowupIntent{Confidence: 0.3, IsAgricultureRelated: true, ScopeConfidence: 0.7}
	switch {
	case containsAny("insurance", "premium", "coverage", "policy"):
		fi.Action = models.FollowupInsurance
	case containsAny("treatment", "prescription", "cure", "medicine", "dosage"):
		fi.Action = models.FollowupPrescribe
	case containsAny("diagnose", "classify", "identify", "analyze", "another image", "new image"):
		fi.Action = models.FollowupClassify
	case containsAny("overlay", "heatmap", "attention"):
		fi.Action = models.FollowupAttentionOverlay
		fi.OverlayType = "show_overlay"
	case containsAny("start over", "restart", "new diagnosis"):
		fi.Action = models.FollowupRestart
	default:
		fi.Action = models.FollowupDirectResponse
		fi.Response = "I'm here to help! What would you like to know about plant disease diagnosis or treatment?"
		fi.Confidence = 0.1
	}
	return fi
}

// DosageAnswer renders step-by-step usage instructions from prescription
// data.
func DosageAnswer(rx *models.Prescription) string {
	if rx == nil || len(rx.Treatments) == 0 {
		return "I don't have detailed dosage information available. Please refer to the medicine " +
			"bottle labels or consult with local agricultural experts."
	}

	var b strings.Builder
	b.WriteString("📋 **HOW TO USE YOUR MEDICINES**\n\n💊 **STEP-BY-STEP INSTRUCTIONS**")
	for i, treatment := range rx.Treatments {
		fmt.Fprintf(&b, "\n\n🔹 **MEDICINE #%d: %s**", i+1, treatment.Name)
		fmt.Fprintf(&b, "\n• **How much to use:** %s", orFallback(treatment.Dosage, "Follow bottle label"))
		fmt.Fprintf(&b, "\n• **How to apply:** %s", orFallback(treatment.Application, "Mix with water and spray"))
		fmt.Fprintf(&b, "\n• **How often:** %s", orFallback(treatment.Frequency, "Check medicine bottle"))
		fmt.Fprintf(&b, "\n• **For how long:** %s", orFallback(treatment.Duration, "Until plant gets better"))
	}
	if rx.Notes != "" {
		fmt.Fprintf(&b, "\n\n⚠️ **IMPORTANT SAFETY TIPS**\n%s", rx.Notes)
	}
	b.WriteString("\n\n✅ **SAFETY FIRST**" +
		"\n• Always read the medicine bottle label" +
		"\n• Wear gloves when spraying" +
		"\n• Watch your plant daily for changes" +
		"\n• Ask local experts if you need help")
	return b.String()
}

func orUnknown(v string) string {
	if v == "" {
		return "Unknown"
	}
	return v
}

func orFallback(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
