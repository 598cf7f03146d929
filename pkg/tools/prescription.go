package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sasya-arogya/engine/pkg/models"
)

// PrescriptionRequest carries one prescription call's inputs.
type PrescriptionRequest struct {
	DiseaseName string
	PlantType   string
	Location    string
	Season      string
	Severity    string
	SessionID   string
}

// PrescriptionTool generates treatment prescriptions via the RAG prescription
// engine's HTTP API, with a rule-based fallback when the engine is down.
type PrescriptionTool struct {
	baseURL    string
	httpClient *http.Client
}

// NewPrescriptionTool creates the prescription adapter.
func NewPrescriptionTool(baseURL string, timeout time.Duration) *PrescriptionTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PrescriptionTool{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// engineResponse mirrors the prescription engine's structured wire format.
type engineResponse struct {
	Success        bool            `json:"success"`
	Treatment      engineTreatment `json:"treatment"`
	RawResponse    string          `json:"raw_response"`
	CollectionUsed string          `json:"collection_used"`
	QueryTime      float64         `json:"query_time"`
	ParsingSuccess bool            `json:"parsing_success"`
}

type engineTreatment struct {
	Diagnosis               map[string]any       `json:"diagnosis"`
	MedicineRecommendations engineRecommendation `json:"medicine_recommendations"`
	Prevention              enginePrevention     `json:"prevention"`
	AdditionalNotes         map[string]string    `json:"additional_notes"`
	ImmediateTreatment      map[string]any       `json:"immediate_treatment"`
	WeeklyTreatmentPlan     map[string]any       `json:"weekly_treatment_plan"`
}

type engineRecommendation struct {
	PrimaryTreatment    engineMedicine   `json:"primary_treatment"`
	SecondaryTreatment  engineMedicine   `json:"secondary_treatment"`
	OrganicAlternatives []engineMedicine `json:"organic_alternatives"`
}

type engineMedicine struct {
	MedicineName      string   `json:"medicine_name"`
	Name              string   `json:"name"`
	ApplicationMethod string   `json:"application_method"`
	Application       string   `json:"application"`
	Dosage            string   `json:"dosage"`
	Preparation       string   `json:"preparation"`
	Frequency         string   `json:"frequency"`
	Duration          string   `json:"duration"`
	WhenToUse         string   `json:"when_to_use"`
	Precautions       []string `json:"precautions"`
}

type enginePrevention struct {
	CulturalPractices     []string `json:"cultural_practices"`
	CropManagement        []string `json:"crop_management"`
	EnvironmentalControls []string `json:"environmental_controls"`
}

// Call queries the prescription engine. A transport or upstream failure
// degrades to the rule-based fallback prescription; only validation failures
// surface as errors.
func (t *PrescriptionTool) Call(ctx context.Context, req PrescriptionRequest) (*models.Prescription, *Error) {
	if req.DiseaseName == "" {
		return nil, NewError(ErrValidation, "no disease name provided")
	}
	if req.Severity == "" {
		req.Severity = "Medium"
	}

	query := fmt.Sprintf(
		"Disease: %s\nPlant: %s\nLocation: %s\nSeason: %s\nSeverity: %s\n\n"+
			"Provide comprehensive treatment recommendations including chemical treatments "+
			"with dosages, organic alternatives, preventive measures, application timing, "+
			"safety precautions and expected recovery timeline.",
		req.DiseaseName, req.PlantType, req.Location, req.Season, req.Severity)

	payload := map[string]any{
		"query":      query,
		"plant_type": req.PlantType,
		"season":     req.Season,
		"location":   req.Location,
		"disease":    req.DiseaseName,
		"session_id": req.SessionID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError(ErrInternal, "failed to encode prescription request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/query/metrics", bytes.NewReader(body))
	if err != nil {
		return nil, NewError(ErrInternal, "failed to build prescription request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		slog.Warn("Prescription engine unreachable, using fallback prescription",
			"session_id", req.SessionID, "error", err)
		return t.Fallback(req), nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("Prescription engine returned non-200, using fallback prescription",
			"session_id", req.SessionID, "status", resp.StatusCode)
		return t.Fallback(req), nil
	}

	var engine engineResponse
	if err := json.NewDecoder(resp.Body).Decode(&engine); err != nil {
		slog.Warn("Prescription engine response unparseable, using fallback prescription",
			"session_id", req.SessionID, "error", err)
		return t.Fallback(req), nil
	}
	if !engine.Success {
		return t.Fallback(req), nil
	}

	return t.parseStructured(&engine, req), nil
}

// Health probes the prescription engine.
func (t *PrescriptionTool) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("prescription engine health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("prescription engine health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (t *PrescriptionTool) parseStructured(engine *engineResponse, req PrescriptionRequest) *models.Prescription {
	td := engine.Treatment
	var treatments []models.Treatment

	if primary := td.MedicineRecommendations.PrimaryTreatment; primary.MedicineName != "" {
		treatments = append(treatments, models.Treatment{
			Name:        primary.MedicineName,
			Type:        "Chemical",
			Application: orDefault(primary.ApplicationMethod, "As directed"),
			Dosage:      orDefault(primary.Dosage, "As per label"),
			Frequency:   orDefault(primary.Frequency, "As needed"),
			Duration:    orDefault(primary.Duration, "Until improvement"),
			Precautions: primary.Precautions,
		})
	}
	if secondary := td.MedicineRecommendations.SecondaryTreatment; secondary.MedicineName != "" {
		treatments = append(treatments, models.Treatment{
			Name:        secondary.MedicineName,
			Type:        "Chemical",
			Application: orDefault(secondary.ApplicationMethod, "As directed"),
			Dosage:      orDefault(secondary.Dosage, "As per label"),
			Frequency:   orDefault(secondary.Frequency, "As needed"),
			Duration:    orDefault(secondary.Duration, "Until improvement"),
			WhenToUse:   secondary.WhenToUse,
		})
	}
	for _, organic := range td.MedicineRecommendations.OrganicAlternatives {
		name := organic.Name
		if name == "" {
			name = organic.MedicineName
		}
		if name == "" {
			continue
		}
		treatments = append(treatments, models.Treatment{
			Name:        name,
			Type:        "Organic",
			Application: orDefault(organic.Application, "As directed"),
			Dosage:      orDefault(organic.Preparation, "As per instructions"),
			Frequency:   orDefault(organic.Frequency, "As needed"),
		})
	}
	if len(treatments) == 0 {
		treatments = defaultTreatments(req.DiseaseName)
	}

	var preventive []string
	preventive = append(preventive, td.Prevention.CulturalPractices...)
	preventive = append(preventive, td.Prevention.CropManagement...)
	preventive = append(preventive, td.Prevention.EnvironmentalControls...)
	if len(preventive) == 0 {
		preventive = defaultPreventiveMeasures()
	}

	var notesParts []string
	for _, key := range []struct{ field, label string }{
		{"weather_considerations", "Weather"},
		{"crop_stage_specific", "Crop Stage"},
		{"regional_considerations", "Regional"},
		{"follow_up", "Follow-up"},
	} {
		if v := td.AdditionalNotes[key.field]; v != "" {
			notesParts = append(notesParts, key.label+": "+v)
		}
	}

	diseaseName := req.DiseaseName
	severity := req.Severity
	if td.Diagnosis != nil {
		if v, ok := td.Diagnosis["disease_name"].(string); ok && v != "" {
			diseaseName = v
		}
		if v, ok := td.Diagnosis["severity"].(string); ok && v != "" {
			severity = v
		}
	}

	return &models.Prescription{
		Treatments:         treatments,
		PreventiveMeasures: preventive,
		Notes:              strings.Join(notesParts, ". "),
		DiseaseName:        diseaseName,
		PlantType:          req.PlantType,
		Severity:           severity,
		Location:           req.Location,
		Season:             req.Season,
		Diagnosis:          td.Diagnosis,
		ImmediateTreatment: td.ImmediateTreatment,
		WeeklyPlan:         td.WeeklyTreatmentPlan,
		CollectionUsed:     engine.CollectionUsed,
		QueryTime:          engine.QueryTime,
		ParsingSuccess:     engine.ParsingSuccess,
	}
}

// Fallback synthesises a rule-based prescription keyed on disease-name
// keywords, used when the engine cannot serve the request.
func (t *PrescriptionTool) Fallback(req PrescriptionRequest) *models.Prescription {
	plantType := req.PlantType
	if plantType == "" {
		plantType = "plant"
	}
	return &models.Prescription{
		Treatments:         defaultTreatments(req.DiseaseName),
		PreventiveMeasures: defaultPreventiveMeasures(),
		Notes: fmt.Sprintf("These are general recommendations for %s. Consult with a local "+
			"agricultural expert for specific guidance based on your location and conditions.", req.DiseaseName),
		DiseaseName: req.DiseaseName,
		PlantType:   plantType,
		Severity:    orDefault(req.Severity, "Medium"),
		Location:    req.Location,
		Season:      req.Season,
		Fallback:    true,
	}
}

func defaultTreatments(diseaseName string) []models.Treatment {
	disease := strings.ToLower(diseaseName)

	switch {
	case strings.Contains(disease, "bacterial"):
		return []models.Treatment{
			{
				Name:        "Copper-based Bactericide",
				Type:        "Chemical",
				Application: "Foliar spray",
				Dosage:      "2-3 ml per liter of water",
				Frequency:   "Every 7-10 days until symptoms reduce",
			},
			{
				Name:        "Streptomycin Solution",
				Type:        "Antibiotic",
				Application: "Spray on affected areas",
				Dosage:      "1g per liter of water",
				Frequency:   "Weekly for 3-4 weeks",
			},
		}
	case strings.Contains(disease, "fungal"), strings.Contains(disease, "blight"):
		return []models.Treatment{
			{
				Name:        "Copper Sulfate Fungicide",
				Type:        "Chemical",
				Application: "Foliar spray",
				Dosage:      "3-5 ml per liter of water",
				Frequency:   "Every 5-7 days until recovery",
			},
			{
				Name:        "Neem Oil Solution",
				Type:        "Organic",
				Application: "Spray on leaves and stems",
				Dosage:      "5-10 ml per liter of water",
				Frequency:   "Twice weekly",
			},
		}
	case strings.Contains(disease, "viral"):
		return []models.Treatment{
			{
				Name:        "Remove Infected Parts",
				Type:        "Cultural",
				Application: "Manual removal and disposal",
				Dosage:      "Remove all affected leaves and stems",
				Frequency:   "Immediately and monitor regularly",
			},
			{
				Name:        "Imidacloprid Insecticide",
				Type:        "Chemical",
				Application: "Soil drench or spray",
				Dosage:      "1-2 ml per liter of water",
				Frequency:   "Monthly to control vectors",
			},
		}
	default:
		return []models.Treatment{
			{
				Name:        "Broad Spectrum Fungicide",
				Type:        "Chemical",
				Application: "Foliar spray",
				Dosage:      "As per manufacturer instructions",
				Frequency:   "Weekly until improvement",
			},
			{
				Name:        "Organic Compost Tea",
				Type:        "Organic",
				Application: "Soil application and foliar spray",
				Dosage:      "Dilute 1:10 with water",
				Frequency:   "Bi-weekly",
			},
		}
	}
}

func defaultPreventiveMeasures() []string {
	return []string{
		"Ensure proper drainage to avoid waterlogging",
		"Maintain adequate spacing between plants for air circulation",
		"Remove and dispose of infected plant debris properly",
		"Avoid overhead watering; water at the base of plants",
		"Apply balanced fertilizer to maintain plant health",
		"Inspect plants regularly for early detection of diseases",
		"Use disease-resistant plant varieties when available",
		"Practice crop rotation to break disease cycles",
		"Sanitize gardening tools between plants",
		"Avoid working with plants when they are wet",
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
