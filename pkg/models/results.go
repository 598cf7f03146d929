package models

// Classification is the normalised result of the dual-evaluation
// classification tool. Source records which evaluator produced the final
// verdict: "cnn" (primary vision model) or "sme" (secondary LLM evaluator).
type Classification struct {
	DiseaseName string  `json:"disease_name"`
	Confidence  float64 `json:"confidence"`
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
	Source      string  `json:"source"`

	// AttentionOverlay is a base64 heatmap from the primary model. It is
	// streamed exactly once as its own event and pruned from state updates.
	AttentionOverlay string `json:"attention_overlay,omitempty"`

	RawClassLabel     string             `json:"raw_class_label,omitempty"`
	RawPredictions    []float64          `json:"raw_predictions,omitempty"`
	PlantContext      map[string]string  `json:"plant_context,omitempty"`
	EvaluationDetails *EvaluationDetails `json:"evaluation_details,omitempty"`
}

// IsHealthy reports whether the classified plant shows no disease.
func (c *Classification) IsHealthy() bool {
	switch c.DiseaseName {
	case "healthy", "healthy_plant", "Healthy", "Healthy Plant":
		return true
	}
	return false
}

// EvaluationDetails records both evaluators' raw verdicts and how the final
// result was chosen.
type EvaluationDetails struct {
	CNNDisease      string  `json:"cnn_disease"`
	CNNConfidence   float64 `json:"cnn_confidence"`
	SMEDisease      string  `json:"sme_disease,omitempty"`
	SMEConfidence   float64 `json:"sme_confidence,omitempty"`
	SMEError        string  `json:"sme_error,omitempty"`
	SimilarityScore float64 `json:"similarity_score"`
	DecisionReason  string  `json:"decision_reason"`
}

// Treatment is a single recommended treatment in a prescription.
type Treatment struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Application string   `json:"application"`
	Dosage      string   `json:"dosage"`
	Frequency   string   `json:"frequency"`
	Duration    string   `json:"duration,omitempty"`
	WhenToUse   string   `json:"when_to_use,omitempty"`
	Precautions []string `json:"precautions,omitempty"`
}

// Prescription is the structured treatment plan for a diagnosed disease.
type Prescription struct {
	Treatments         []Treatment    `json:"treatments"`
	PreventiveMeasures []string       `json:"preventive_measures"`
	Notes              string         `json:"notes"`
	DiseaseName        string         `json:"disease_name"`
	PlantType          string         `json:"plant_type,omitempty"`
	Severity           string         `json:"severity,omitempty"`
	Location           string         `json:"location,omitempty"`
	Season             string         `json:"season,omitempty"`
	Diagnosis          map[string]any `json:"diagnosis,omitempty"`
	ImmediateTreatment map[string]any `json:"immediate_treatment,omitempty"`
	WeeklyPlan         map[string]any `json:"weekly_treatment_plan,omitempty"`
	CollectionUsed     string         `json:"collection_used,omitempty"`
	QueryTime          float64        `json:"query_time,omitempty"`
	ParsingSuccess     bool           `json:"parsing_success,omitempty"`
	Fallback           bool           `json:"fallback,omitempty"`
}

// InsuranceAction names one of the four operations the insurance service
// supports.
type InsuranceAction string

const (
	InsuranceCalculatePremium    InsuranceAction = "calculate_premium"
	InsuranceGetCompanies        InsuranceAction = "get_companies"
	InsuranceRecommend           InsuranceAction = "recommend"
	InsuranceGenerateCertificate InsuranceAction = "generate_certificate"
)

// InsuranceContext is the validated input for an insurance operation.
// State, AreaHectare and Crop are required; the rest are optional.
type InsuranceContext struct {
	FarmerName  string  `json:"farmer_name,omitempty"`
	State       string  `json:"state,omitempty"`
	AreaHectare float64 `json:"area_hectare,omitempty"`
	Crop        string  `json:"crop,omitempty"`
	Disease     string  `json:"disease,omitempty"`
}

// MissingFields returns the required fields that are not yet populated.
func (c *InsuranceContext) MissingFields() []string {
	var missing []string
	if c.State == "" {
		missing = append(missing, "state")
	}
	if c.AreaHectare <= 0 {
		missing = append(missing, "area_hectare")
	}
	if c.Crop == "" {
		missing = append(missing, "crop")
	}
	return missing
}

// InsuranceResult holds the outcome of one insurance operation.
type InsuranceResult struct {
	Action      InsuranceAction `json:"action"`
	Success     bool            `json:"success"`
	FarmerName  string          `json:"farmer_name,omitempty"`
	Crop        string          `json:"crop,omitempty"`
	Disease     string          `json:"disease,omitempty"`
	State       string          `json:"state,omitempty"`
	AreaHectare float64         `json:"area_hectare,omitempty"`

	PremiumDetails     string `json:"premium_details,omitempty"`
	Companies          string `json:"companies,omitempty"`
	RecommendationText string `json:"recommendation_text,omitempty"`
	ServerResponse     string `json:"server_response,omitempty"`
	PolicyID           string `json:"policy_id,omitempty"`

	PDFGenerated bool   `json:"pdf_generated"`
	PDFURI       string `json:"pdf_uri,omitempty"`
	PDFName      string `json:"pdf_name,omitempty"`
}
