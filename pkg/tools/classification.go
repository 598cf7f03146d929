// Package tools contains the stateless clients for the external services the
// workflow orchestrates: disease classification, treatment prescription,
// crop insurance, context extraction and attention overlays.
//
// Every adapter exposes a uniform call shape returning a typed result or a
// tagged *Error, so nodes never see transport concerns.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sasya-arogya/engine/pkg/llm"
	"github.com/sasya-arogya/engine/pkg/models"
)

// ClassificationRequest carries one classification call's inputs.
type ClassificationRequest struct {
	ImageB64    string
	PlantType   string
	Location    string
	Season      string
	GrowthStage string
	SessionID   string
}

// ClassificationTool classifies plant diseases from leaf images with a dual
// evaluation: the primary vision model (CNN service) plus a secondary LLM
// evaluator. The primary result wins unless it comes back unknown.
type ClassificationTool struct {
	classifierURL string
	vision        llm.VisionCompleter
	httpClient    *http.Client
}

// NewClassificationTool creates the classification adapter.
func NewClassificationTool(classifierURL string, vision llm.VisionCompleter, timeout time.Duration) *ClassificationTool {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ClassificationTool{
		classifierURL: strings.TrimRight(classifierURL, "/"),
		vision:        vision,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// cnnResponse is the primary model service's wire format.
type cnnResponse struct {
	Success          bool      `json:"success"`
	DiseaseName      string    `json:"disease_name"`
	Confidence       float64   `json:"confidence"`
	AttentionOverlay string    `json:"attention_overlay"`
	RawClassLabel    string    `json:"raw_class_label"`
	RawPredictions   []float64 `json:"raw_predictions"`
	Error            string    `json:"error"`
}

// smeVerdict is the structured output requested from the vision evaluator.
type smeVerdict struct {
	DiseaseName string  `json:"disease_name"`
	Confidence  float64 `json:"confidence"`
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
}

const visionEvaluationPrompt = `Analyze this leaf image for plant diseases. Provide your analysis in EXACTLY this JSON format:

{
    "disease_name": "specific disease name or 'healthy'",
    "confidence": 0.85,
    "severity": "severe | moderate | low",
    "description": "brief description of what you see"
}

Important:
- If the plant appears healthy, use "healthy" as disease_name
- Confidence should be a decimal between 0.0 and 1.0
- Severity should be one of: severe, moderate, low
- Return ONLY the JSON object, no additional text`

// Call runs the dual evaluation and returns the normalised classification.
func (t *ClassificationTool) Call(ctx context.Context, req ClassificationRequest) (*models.Classification, *Error) {
	if req.ImageB64 == "" {
		return nil, NewError(ErrValidation, "no image provided for classification")
	}

	primary, terr := t.runPrimary(ctx, req)
	if terr != nil {
		return nil, terr
	}

	secondary, smeErr := t.runSecondary(ctx, req.ImageB64)

	result := t.decide(primary, secondary, smeErr)
	result.PlantContext = plantContext(req)
	result.AttentionOverlay = primary.AttentionOverlay
	result.RawClassLabel = primary.RawClassLabel
	result.RawPredictions = primary.RawPredictions

	slog.Info("Classification completed",
		"session_id", req.SessionID,
		"disease", result.DiseaseName,
		"confidence", result.Confidence,
		"source", result.Source)
	return result, nil
}

// Health probes the primary model service.
func (t *ClassificationTool) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.classifierURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("classifier health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("classifier health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (t *ClassificationTool) runPrimary(ctx context.Context, req ClassificationRequest) (*cnnResponse, *Error) {
	payload := map[string]any{
		"image_b64":    req.ImageB64,
		"plant_type":   req.PlantType,
		"location":     req.Location,
		"season":       req.Season,
		"growth_stage": req.GrowthStage,
		"session_id":   req.SessionID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError(ErrInternal, "failed to encode classification request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.classifierURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, NewError(ErrInternal, "failed to build classification request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, wrapTransportError("classifier service", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, NewError(ErrTool, "classifier service returned HTTP %d", resp.StatusCode)
	}

	var cnn cnnResponse
	if err := json.NewDecoder(resp.Body).Decode(&cnn); err != nil {
		return nil, NewError(ErrParse, "failed to decode classifier response: %v", err)
	}
	if cnn.Error != "" {
		return nil, NewError(ErrTool, "classification failed: %s", cnn.Error)
	}
	if !cnn.Success {
		return nil, NewError(ErrTool, "classification failed: unexpected result format")
	}
	return &cnn, nil
}

func (t *ClassificationTool) runSecondary(ctx context.Context, imageB64 string) (*smeVerdict, error) {
	raw, err := t.vision.CompleteVision(ctx, visionEvaluationPrompt, imageB64)
	if err != nil {
		return nil, err
	}

	jsonBlob := extractJSONObject(raw)
	if jsonBlob == "" {
		return nil, fmt.Errorf("no structured response from evaluator: %s", truncate(raw, 200))
	}

	var verdict smeVerdict
	if err := json.Unmarshal([]byte(jsonBlob), &verdict); err != nil {
		return nil, fmt.Errorf("invalid JSON from evaluator: %w", err)
	}
	if verdict.DiseaseName == "" {
		verdict.DiseaseName = "unknown"
	}
	if verdict.Severity == "" {
		verdict.Severity = "moderate"
	}
	return &verdict, nil
}

// decide picks the final verdict: the primary result unless it is unknown, in
// which case the secondary evaluator wins when available; otherwise an
// uncertain result is emitted.
func (t *ClassificationTool) decide(primary *cnnResponse, secondary *smeVerdict, smeErr error) *models.Classification {
	unknown := isUnknownDisease(primary.DiseaseName)
	smeAvailable := smeErr == nil && secondary != nil

	details := &models.EvaluationDetails{
		CNNDisease:    primary.DiseaseName,
		CNNConfidence: primary.Confidence,
	}
	if smeAvailable {
		details.SMEDisease = secondary.DiseaseName
		details.SMEConfidence = secondary.Confidence
		details.SimilarityScore = diseaseSimilarity(primary.DiseaseName, secondary.DiseaseName)
	} else if smeErr != nil {
		details.SMEError = smeErr.Error()
	}

	switch {
	case unknown && smeAvailable:
		details.DecisionReason = "primary returned unknown - using secondary evaluator"
		return &models.Classification{
			DiseaseName:       secondary.DiseaseName,
			Confidence:        secondary.Confidence,
			Severity:          secondary.Severity,
			Description:       secondary.Description,
			Source:            "sme",
			EvaluationDetails: details,
		}
	case unknown:
		details.DecisionReason = "primary returned unknown - secondary unavailable"
		return &models.Classification{
			DiseaseName: primary.DiseaseName,
			Confidence:  primary.Confidence,
			Severity:    "moderate",
			Description: fmt.Sprintf("Classification uncertain - model confidence: %.0f%%. Expert system unavailable.", primary.Confidence*100),
			Source:      "cnn",
			EvaluationDetails: details,
		}
	default:
		details.DecisionReason = "primary provided valid classification"
		severity := "moderate"
		if smeAvailable && secondary.Severity != "" {
			severity = secondary.Severity
		}
		return &models.Classification{
			DiseaseName: primary.DiseaseName,
			Confidence:  primary.Confidence,
			Severity:    severity,
			Description: fmt.Sprintf("Detected %s with %.0f%% confidence", primary.DiseaseName, primary.Confidence*100),
			Source:      "cnn",
			EvaluationDetails: details,
		}
	}
}

func isUnknownDisease(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "unknown", "uncertain", "unidentified", "not_identified", "":
		return true
	}
	return false
}

func plantContext(req ClassificationRequest) map[string]string {
	ctx := map[string]string{}
	if req.PlantType != "" {
		ctx["plant_type"] = req.PlantType
	}
	if req.Location != "" {
		ctx["location"] = req.Location
	}
	if req.Season != "" {
		ctx["season"] = req.Season
	}
	if req.GrowthStage != "" {
		ctx["growth_stage"] = req.GrowthStage
	}
	return ctx
}

// diseaseSimilarity scores how close two disease names are in [0,1]. Exact
// match and containment dominate; otherwise a bigram overlap ratio with a
// boost for shared disease keywords.
func diseaseSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}

	sim := bigramRatio(a, b)

	keywords := []string{"blight", "spot", "rust", "rot", "mold", "mildew", "virus", "healthy"}
	var aKw, bKw []string
	for _, kw := range keywords {
		if strings.Contains(a, kw) {
			aKw = append(aKw, kw)
		}
		if strings.Contains(b, kw) {
			bKw = append(bKw, kw)
		}
	}
	if len(aKw) > 0 && len(bKw) > 0 {
		shared := 0
		for _, kw := range aKw {
			for _, other := range bKw {
				if kw == other {
					shared++
					break
				}
			}
		}
		maxLen := len(aKw)
		if len(bKw) > maxLen {
			maxLen = len(bKw)
		}
		if overlap := float64(shared) / float64(maxLen) * 0.7; overlap > sim {
			sim = overlap
		}
	}
	return sim
}

func bigramRatio(a, b string) float64 {
	grams := func(s string) map[string]int {
		m := make(map[string]int)
		for i := 0; i+2 <= len(s); i++ {
			m[s[i:i+2]]++
		}
		return m
	}
	ga, gb := grams(a), grams(b)
	if len(ga) == 0 || len(gb) == 0 {
		return 0
	}
	shared := 0
	for g, n := range ga {
		if m, ok := gb[g]; ok {
			if m < n {
				shared += m
			} else {
				shared += n
			}
		}
	}
	total := 0
	for _, n := range ga {
		total += n
	}
	for _, n := range gb {
		total += n
	}
	return 2 * float64(shared) / float64(total)
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// extractJSONObject pulls the outermost JSON object out of a model response
// that may carry surrounding prose.
func extractJSONObject(s string) string {
	return jsonObjectPattern.FindString(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
