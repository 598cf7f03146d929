package models

// Intent is the structured result of analyzing a user message.
// Produced by the intent analyzer (LLM-driven with a keyword fallback) and
// consumed by the routing layer.
type Intent struct {
	WantsClassification          bool    `json:"wants_classification"`
	WantsPrescription            bool    `json:"wants_prescription"`
	WantsFullWorkflow            bool    `json:"wants_full_workflow"`
	WantsInsurance               bool    `json:"wants_insurance"`
	WantsInsurancePremium        bool    `json:"wants_insurance_premium"`
	WantsInsuranceCompanies      bool    `json:"wants_insurance_companies"`
	WantsInsuranceRecommendation bool    `json:"wants_insurance_recommendation"`
	WantsInsurancePurchase       bool    `json:"wants_insurance_purchase"`
	WantsInsuranceCoverage       bool    `json:"wants_insurance_coverage"`
	IsGeneralQuestion            bool    `json:"is_general_question"`
	IsAgricultureRelated         bool    `json:"is_agriculture_related"`
	OutOfScope                   bool    `json:"out_of_scope"`
	ScopeConfidence              float64 `json:"scope_confidence"`
	GeneralAnswer                string  `json:"general_answer"`
}

// Normalize enforces the dependency closure between intent flags:
// a prescription requires a classification first, the full workflow requires
// both, and an out-of-scope message carries no service intents at all.
func (i *Intent) Normalize() {
	if i.OutOfScope {
		i.WantsClassification = false
		i.WantsPrescription = false
		i.WantsFullWorkflow = false
		i.WantsInsurance = false
		i.WantsInsurancePremium = false
		i.WantsInsuranceCompanies = false
		i.WantsInsuranceRecommendation = false
		i.WantsInsurancePurchase = false
		i.WantsInsuranceCoverage = false
		i.IsGeneralQuestion = false
		i.GeneralAnswer = ""
		return
	}
	if i.WantsFullWorkflow {
		i.WantsPrescription = true
	}
	if i.WantsPrescription {
		i.WantsClassification = true
	}
	if i.WantsInsurancePremium || i.WantsInsuranceCompanies ||
		i.WantsInsuranceRecommendation || i.WantsInsurancePurchase ||
		i.WantsInsuranceCoverage {
		i.WantsInsurance = true
	}
}

// WantsAnyService reports whether any tool-backed service was requested.
func (i *Intent) WantsAnyService() bool {
	return i.WantsClassification || i.WantsPrescription || i.WantsInsurance
}

// FollowupAction is the coarse action derived from a followup message.
type FollowupAction string

const (
	FollowupClassify         FollowupAction = "classify"
	FollowupPrescribe        FollowupAction = "prescribe"
	FollowupInsurance        FollowupAction = "insurance"
	FollowupAttentionOverlay FollowupAction = "attention_overlay"
	FollowupRestart          FollowupAction = "restart"
	FollowupComplete         FollowupAction = "complete"
	FollowupDirectResponse   FollowupAction = "direct_response"
	FollowupOutOfScope       FollowupAction = "out_of_scope"
)

// FollowupIntent is the structured result of followup intent analysis.
type FollowupIntent struct {
	Action               FollowupAction `json:"action"`
	Response             string         `json:"response"`
	OverlayType          string         `json:"overlay_type"`
	Confidence           float64        `json:"confidence"`
	IsAgricultureRelated bool           `json:"is_agriculture_related"`
	ScopeConfidence      float64        `json:"scope_confidence"`
}
