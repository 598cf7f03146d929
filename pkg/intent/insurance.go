package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sasya-arogya/engine/pkg/models"
)

const insuranceActionPromptTemplate = `You are an expert insurance analyst. Analyze the user's message and determine whether they want to:

1. CALCULATE_PREMIUM - the cost/price/premium of insurance
2. GENERATE_CERTIFICATE - buy/purchase insurance or generate a certificate
3. GET_COMPANIES - insurance companies/providers
4. RECOMMEND - an insurance recommendation

CONTEXT:
- Crop: %s
- Area: %s hectares
- State: %s
- User Message: "%s"

DISAMBIGUATION RULES:
1. "cost", "price", "premium", "how much", "calculate" WITHOUT purchase intent -> CALCULATE_PREMIUM
2. "buy", "purchase", "apply", "generate certificate" -> GENERATE_CERTIFICATE
3. "companies", "providers", "insurers" -> GET_COMPANIES
4. "recommend", "suggest", "what should I", "best option" -> RECOMMEND
5. "How much does it cost to buy insurance?" asks about cost -> CALCULATE_PREMIUM;
   "Buy insurance with this cost" is ready to purchase -> GENERATE_CERTIFICATE

Respond with ONLY a JSON object:
{
    "action": "calculate_premium|generate_certificate|get_companies|recommend",
    "confidence": 0.95,
    "reasoning": "brief explanation"
}`

const insuranceSubIntentPromptTemplate = `You are an expert insurance intent analyzer. Analyze this user message to determine their specific insurance intent.

User message: "%s"

RULES:
1. "Apply for insurance" / "buy insurance" / "generate certificate" = purchase intent
2. "Insurance cost/premium/how much" = premium intent
3. "Companies/providers/insurers" = companies intent
4. "What does insurance cover/benefits" = coverage intent
5. "Recommend/suggest/which should I" = recommendation intent

Respond with ONLY a JSON object:
{
    "wants_insurance": true,
    "wants_insurance_premium": false,
    "wants_insurance_companies": false,
    "wants_insurance_recommendation": false,
    "wants_insurance_purchase": false,
    "wants_insurance_coverage": false
}`

// DetermineInsuranceAction resolves which insurance operation to run.
// Priority: explicit intent flags, then LLM disambiguation, then the keyword
// precedence chain.
func (a *Analyzer) DetermineInsuranceAction(ctx context.Context, state *models.SessionState, ic *models.InsuranceContext) models.InsuranceAction {
	if ui := state.UserIntent; ui != nil {
		switch {
		case ui.WantsInsurancePremium:
			return models.InsuranceCalculatePremium
		case ui.WantsInsuranceCompanies:
			return models.InsuranceGetCompanies
		case ui.WantsInsuranceRecommendation:
			return models.InsuranceRecommend
		case ui.WantsInsurancePurchase:
			return models.InsuranceGenerateCertificate
		}
	}

	if a.completer != nil {
		prompt := fmt.Sprintf(insuranceActionPromptTemplate,
			orUnknown(ic.Crop), formatArea(ic.AreaHectare), orUnknown(ic.State), state.UserMessage)
		raw, err := a.completer.Complete(ctx, prompt)
		if err == nil {
			var parsed struct {
				Action     string  `json:"action"`
				Confidence float64 `json:"confidence"`
			}
			if blob := jsonObjectPattern.FindString(raw); blob != "" {
				if jsonErr := json.Unmarshal([]byte(blob), &parsed); jsonErr == nil {
					switch strings.ToLower(parsed.Action) {
					case "calculate_premium":
						return models.InsuranceCalculatePremium
					case "generate_certificate":
						return models.InsuranceGenerateCertificate
					case "get_companies":
						return models.InsuranceGetCompanies
					case "recommend":
						return models.InsuranceRecommend
					}
				}
			}
			slog.Warn("Insurance action LLM response unusable, using keyword fallback", "response", raw)
		} else {
			slog.Warn("Insurance action LLM call failed, using keyword fallback", "error", err)
		}
	}

	return FallbackInsuranceAction(state.UserMessage, ic)
}

// FallbackInsuranceAction is the keyword precedence chain:
// strong purchase > purchase with context > cost inquiry > help/assistance >
// companies > recommendation > disease-implied recommendation >
// generic purchase words without "cost" (certificate) > premium.
func FallbackInsuranceAction(userMessage string, ic *models.InsuranceContext) models.InsuranceAction {
	lower := strings.ToLower(userMessage)
	containsAny := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}

	strongPurchase := []string{
		"buy insurance for this premium", "buy insurance with this premium",
		"buy crop insurance for me with this premium",
		"i am fine with purchasing", "i want to purchase",
		"purchase this insurance", "complete purchase", "proceed with purchase",
		"generate certificate", "generate insurance certificate",
	}
	for _, phrase := range strongPurchase {
		if strings.Contains(lower, phrase) {
			return models.InsuranceGenerateCertificate
		}
	}

	purchaseWithContext := []string{
		"help me buy", "help me with buying", "buy crop insurance",
		"apply for insurance", "complete my insurance purchase",
	}
	for _, phrase := range purchaseWithContext {
		if strings.Contains(lower, phrase) && !containsAny("cost", "how much") {
			return models.InsuranceGenerateCertificate
		}
	}

	costInquiry := []string{
		"how much does it cost", "how much will it cost", "what is the cost",
		"what's the cost", "premium cost", "cost of premium", "insurance premium",
		"calculate premium", "show me premium rates", "what's the premium",
	}
	for _, phrase := range costInquiry {
		if strings.Contains(lower, phrase) {
			return models.InsuranceCalculatePremium
		}
	}

	if strings.Contains(lower, "help me") {
		if containsAny("buy", "purchase", "apply", "get insurance") && !strings.Contains(lower, "cost") {
			return models.InsuranceGenerateCertificate
		}
		if containsAny("cost", "premium", "price", "how much") {
			return models.InsuranceCalculatePremium
		}
	}

	if containsAny("insurance companies", "providers", "insurers", "list companies", "which companies") {
		return models.InsuranceGetCompanies
	}

	if containsAny("recommend", "suggest", "what should i", "best option", "advice") {
		return models.InsuranceRecommend
	}

	if ic != nil && ic.Disease != "" {
		return models.InsuranceRecommend
	}

	if containsAny("buy", "purchase", "apply", "obtain") && !strings.Contains(lower, "cost") {
		return models.InsuranceGenerateCertificate
	}

	return models.InsuranceCalculatePremium
}

// AnalyzeInsuranceSubIntent resolves the fine-grained insurance intent for a
// followup message, so the insurance node sees explicit flags.
func (a *Analyzer) AnalyzeInsuranceSubIntent(ctx context.Context, userMessage string) *models.Intent {
	if a.completer != nil {
		raw, err := a.completer.Complete(ctx, fmt.Sprintf(insuranceSubIntentPromptTemplate, userMessage))
		if err == nil {
			if parsed := parseIntentJSON(raw); parsed != nil && parsed.WantsInsurance {
				parsed.IsAgricultureRelated = true
				parsed.Normalize()
				return parsed
			}
		} else {
			slog.Debug("Insurance sub-intent LLM call failed, using fallback", "error", err)
		}
	}
	return fallbackInsuranceSubIntent(userMessage)
}

func fallbackInsuranceSubIntent(userMessage string) *models.Intent {
	lower := strings.ToLower(userMessage)
	intent := &models.Intent{WantsInsurance: true, IsAgricultureRelated: true, ScopeConfidence: 0.8}

	containsAny := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}

	switch {
	case containsAny("apply for insurance", "apply for crop insurance", "buy insurance",
		"purchase insurance", "generate certificate", "i want to purchase",
		"i want to buy", "help me apply", "help me buy"):
		intent.WantsInsurancePurchase = true
	case containsAny("premium", "cost", "price", "how much", "calculate"):
		intent.WantsInsurancePremium = true
	case containsAny("companies", "providers", "insurers"):
		intent.WantsInsuranceCompanies = true
	case containsAny("cover", "coverage", "benefits", "what does"):
		intent.WantsInsuranceCoverage = true
	default:
		intent.WantsInsuranceRecommendation = true
	}
	return intent
}

func formatArea(area float64) string {
	if area <= 0 {
		return "unknown"
	}
	return fmt.Sprintf("%g", area)
}
