package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sasya-arogya/engine/pkg/llm"
)

// ExtractedContext is what the context extractor pulls out of a user message.
type ExtractedContext struct {
	PlantType   string `json:"plant_type"`
	Location    string `json:"location"`
	Season      string `json:"season"`
	GrowthStage string `json:"growth_stage"`
}

// ContextExtractorTool extracts growing context (plant, location, season,
// growth stage) from free-form user messages. LLM-driven with a keyword
// fallback, so a dead LLM never blocks a turn.
type ContextExtractorTool struct {
	completer llm.Completer
}

// NewContextExtractorTool creates the context extractor.
func NewContextExtractorTool(completer llm.Completer) *ContextExtractorTool {
	return &ContextExtractorTool{completer: completer}
}

const contextExtractionPrompt = `Extract growing context from this farmer's message. Respond with ONLY a JSON object:
{
    "plant_type": "crop or plant name mentioned, or empty string",
    "location": "place, region or state mentioned, or empty string",
    "season": "season mentioned (summer, winter, monsoon, spring, autumn, kharif, rabi), or empty string",
    "growth_stage": "growth stage mentioned (seedling, vegetative, flowering, fruiting, mature), or empty string"
}

Message: "%s"

Response (JSON only):`

// Call extracts context from the message. Never returns an error channel
// value: extraction is best-effort and degrades to the keyword fallback.
func (t *ContextExtractorTool) Call(ctx context.Context, userMessage string) *ExtractedContext {
	if strings.TrimSpace(userMessage) == "" {
		return &ExtractedContext{}
	}

	if t.completer != nil {
		raw, err := t.completer.Complete(ctx, sprintfPrompt(contextExtractionPrompt, userMessage))
		if err == nil {
			if blob := extractJSONObject(raw); blob != "" {
				var extracted ExtractedContext
				if jsonErr := json.Unmarshal([]byte(blob), &extracted); jsonErr == nil {
					extracted.normalize()
					return &extracted
				}
			}
		} else {
			slog.Debug("Context extraction LLM call failed, using keyword fallback", "error", err)
		}
	}

	return fallbackExtract(userMessage)
}

func (e *ExtractedContext) normalize() {
	e.PlantType = strings.ToLower(strings.TrimSpace(e.PlantType))
	e.Location = strings.TrimSpace(e.Location)
	e.Season = strings.ToLower(strings.TrimSpace(e.Season))
	e.GrowthStage = strings.ToLower(strings.TrimSpace(e.GrowthStage))
}

// CommonCrops is the keyword list shared by the context and insurance
// extractors.
var CommonCrops = []string{
	"rice", "wheat", "corn", "maize", "cotton", "sugarcane", "soybean",
	"tomato", "potato", "onion", "garlic", "chili", "pepper", "cabbage",
	"carrot", "mustard", "barley", "groundnut", "sesame", "sunflower",
	"jowar", "bajra", "apple", "grape", "banana", "mango",
}

var seasons = []string{"summer", "winter", "monsoon", "spring", "autumn", "kharif", "rabi"}

var growthStages = []string{"seedling", "vegetative", "flowering", "fruiting", "mature"}

var locationPattern = regexp.MustCompile(`\b(?i:in)\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)?)`)

func fallbackExtract(message string) *ExtractedContext {
	lower := strings.ToLower(message)
	extracted := &ExtractedContext{}

	for _, crop := range CommonCrops {
		if strings.Contains(lower, crop) {
			extracted.PlantType = crop
			break
		}
	}
	for _, season := range seasons {
		if strings.Contains(lower, season) {
			extracted.Season = season
			break
		}
	}
	for _, stage := range growthStages {
		if strings.Contains(lower, stage) {
			extracted.GrowthStage = stage
			break
		}
	}
	if m := locationPattern.FindStringSubmatch(message); len(m) == 2 {
		extracted.Location = m[1]
	}
	return extracted
}

// sprintfPrompt quotes the user message into the prompt template without
// pulling fmt into every call site.
func sprintfPrompt(template, message string) string {
	return strings.Replace(template, "%s", message, 1)
}
