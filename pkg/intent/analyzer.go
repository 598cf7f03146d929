// Package intent turns free-form user messages into the structured records
// the routing layer consumes. Every analysis is LLM-driven with a
// deterministic keyword fallback, so the engine keeps routing when the LLM
// is unreachable.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sasya-arogya/engine/pkg/llm"
	"github.com/sasya-arogya/engine/pkg/models"
)

// Analyzer derives intent records from user messages.
type Analyzer struct {
	completer llm.Completer
}

// NewAnalyzer creates an intent analyzer.
func NewAnalyzer(completer llm.Completer) *Analyzer {
	return &Analyzer{completer: completer}
}

const intentPromptTemplate = `You are an expert at understanding user intent for a plant disease diagnosis and treatment system.

Analyze the following user message and respond with ONLY a JSON object containing these fields:
- wants_classification: (boolean) disease diagnosis/identification requested
- wants_prescription: (boolean) treatment recommendations requested
- wants_full_workflow: (boolean) complete process (diagnosis + treatment) requested
- wants_insurance: (boolean) crop insurance services requested
- wants_insurance_premium: (boolean) specifically premium/cost calculation
- wants_insurance_companies: (boolean) specifically insurance companies/providers
- wants_insurance_recommendation: (boolean) specifically an insurance recommendation
- wants_insurance_purchase: (boolean) specifically buy/apply/purchase or certificate generation
- is_general_question: (boolean) contains general agricultural questions (soil, weather, growing tips)
- is_agriculture_related: (boolean) related to agriculture, farming, crops or plants at all
- out_of_scope: (boolean) completely outside the agricultural domain
- scope_confidence: (number 0-1) confidence this is agriculture-related
- general_answer: (string) if is_general_question, a helpful answer; otherwise empty

Rules:
1. Prescription or full workflow implies classification first.
2. "analyze disease/plant/leaf" without treatment keywords means classification ONLY.
3. Tool requests and general questions are NOT mutually exclusive; analyze each part independently.
4. Insurance keywords: premium, insurance, coverage, protect, policy, claim, insure.
5. If out_of_scope is true, set every wants_* field and is_general_question to false.
6. scope_confidence: 0.9+ for clear agricultural topics, 0.3 or lower for clearly non-agricultural ones.

Examples:
- "Analyze this plant disease" -> {"wants_classification": true, "wants_prescription": false, "wants_full_workflow": false, "wants_insurance": false, "wants_insurance_premium": false, "wants_insurance_companies": false, "wants_insurance_recommendation": false, "wants_insurance_purchase": false, "is_general_question": false, "is_agriculture_related": true, "out_of_scope": false, "scope_confidence": 0.98, "general_answer": ""}
- "Help my tomato plant get better" -> {"wants_classification": true, "wants_prescription": true, "wants_full_workflow": true, "wants_insurance": false, "wants_insurance_premium": false, "wants_insurance_companies": false, "wants_insurance_recommendation": false, "wants_insurance_purchase": false, "is_general_question": false, "is_agriculture_related": true, "out_of_scope": false, "scope_confidence": 0.98, "general_answer": ""}
- "How much will insurance cost for 5 hectares of rice?" -> {"wants_classification": false, "wants_prescription": false, "wants_full_workflow": false, "wants_insurance": true, "wants_insurance_premium": true, "wants_insurance_companies": false, "wants_insurance_recommendation": false, "wants_insurance_purchase": false, "is_general_question": false, "is_agriculture_related": true, "out_of_scope": false, "scope_confidence": 0.97, "general_answer": ""}
- "Which insurance companies are available in Karnataka?" -> {"wants_classification": false, "wants_prescription": false, "wants_full_workflow": false, "wants_insurance": true, "wants_insurance_premium": false, "wants_insurance_companies": true, "wants_insurance_recommendation": false, "wants_insurance_purchase": false, "is_general_question": false, "is_agriculture_related": true, "out_of_scope": false, "scope_confidence": 0.97, "general_answer": ""}
- "I want to buy crop insurance for my wheat farm" -> {"wants_classification": false, "wants_prescription": false, "wants_full_workflow": false, "wants_insurance": true, "wants_insurance_premium": false, "wants_insurance_companies": false, "wants_insurance_recommendation": false, "wants_insurance_purchase": true, "is_general_question": false, "is_agriculture_related": true, "out_of_scope": false, "scope_confidence": 0.98, "general_answer": ""}
- "What's the best smartphone to buy?" -> {"wants_classification": false, "wants_prescription": false, "wants_full_workflow": false, "wants_insurance": false, "wants_insurance_premium": false, "wants_insurance_companies": false, "wants_insurance_recommendation": false, "wants_insurance_purchase": false, "is_general_question": false, "is_agriculture_related": false, "out_of_scope": true, "scope_confidence": 0.1, "general_answer": ""}

User message: "%s"

Response (JSON only):`

// Analyze produces a normalised intent record for the message. Falls back to
// keyword analysis when the LLM call or its JSON cannot be used.
func (a *Analyzer) Analyze(ctx context.Context, userMessage string) *models.Intent {
	if a.completer != nil {
		raw, err := a.completer.Complete(ctx, fmt.Sprintf(intentPromptTemplate, userMessage))
		if err == nil {
			if parsed := parseIntentJSON(raw); parsed != nil {
				parsed.Normalize()
				return parsed
			}
			slog.Warn("Intent analysis returned unparseable JSON, using keyword fallback")
		} else {
			slog.Warn("Intent analysis LLM call failed, using keyword fallback", "error", err)
		}
	}
	fallback := FallbackAnalyze(userMessage)
	fallback.Normalize()
	return fallback
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

func parseIntentJSON(raw string) *models.Intent {
	blob := jsonObjectPattern.FindString(raw)
	if blob == "" {
		return nil
	}
	var parsed models.Intent
	if err := json.Unmarshal([]byte(blob), &parsed); err != nil {
		return nil
	}
	return &parsed
}

// FallbackAnalyze is the deterministic keyword-rule analyzer used when the
// LLM is unavailable.
func FallbackAnalyze(userMessage string) *models.Intent {
	lower := strings.ToLower(userMessage)
	intent := &models.Intent{IsAgricultureRelated: true, ScopeConfidence: 0.7}

	containsAny := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}

	if containsAny("analyze", "detect", "identify", "classify", "disease", "diagnose", "what's wrong", "wrong with") {
		intent.WantsClassification = true
	}
	if containsAny("treatment", "cure", "fix", "recommend", "prescription", "medicine", "spray", "treat") {
		intent.WantsPrescription = true
	}
	if containsAny("insurance", "premium", "coverage", "policy", "insure") {
		intent.WantsInsurance = true
		switch {
		case containsAny("buy", "purchase", "apply", "certificate") && !containsAny("cost", "how much"):
			intent.WantsInsurancePurchase = true
		case containsAny("cost", "how much", "price", "premium", "calculate"):
			intent.WantsInsurancePremium = true
		case containsAny("companies", "providers", "insurers"):
			intent.WantsInsuranceCompanies = true
		case containsAny("recommend", "suggest", "best"):
			intent.WantsInsuranceRecommendation = true
		}
	}
	if containsAny("complete", "full", "everything", "comprehensive") && intent.WantsClassification {
		intent.WantsFullWorkflow = true
	}

	generalWords := containsAny("how", "when", "why", "where", "best time", "tips", "advice")
	farmingWords := containsAny("plant", "grow", "crop", "farm", "soil", "water", "fertilizer", "seed")

	if generalWords && farmingWords && !intent.WantsAnyService() {
		intent.IsGeneralQuestion = true
		intent.GeneralAnswer = "I understand you have a general farming question. For the best answer, " +
			"please try again shortly, or ask about a specific plant issue that I can help diagnose and treat."
	}

	if !farmingWords && !intent.WantsAnyService() &&
		containsAny("smartphone", "computer", "phone", "car", "engine", "movie", "recipe", "software") {
		intent.OutOfScope = true
		intent.IsAgricultureRelated = false
		intent.ScopeConfidence = 0.1
	}

	return intent
}
