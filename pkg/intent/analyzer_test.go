package intent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sasya-arogya/engine/pkg/models"
)

type completerStub struct {
	response string
	err      error
	prompts  []string
}

func (c *completerStub) Complete(_ context.Context, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	return c.response, c.err
}

func TestAnalyzeParsesLLMResponse(t *testing.T) {
	stub := &completerStub{response: `{
		"wants_classification": false,
		"wants_prescription": true,
		"wants_insurance": false,
		"is_agriculture_related": true,
		"out_of_scope": false,
		"scope_confidence": 0.95
	}`}
	analyzer := NewAnalyzer(stub)

	result := analyzer.Analyze(context.Background(), "treat my plant")

	// Closure: prescription implies classification.
	assert.True(t, result.WantsPrescription)
	assert.True(t, result.WantsClassification)
}

func TestAnalyzeOutOfScopeClearsServiceFlags(t *testing.T) {
	stub := &completerStub{response: `{
		"wants_classification": true,
		"wants_insurance": true,
		"is_general_question": true,
		"out_of_scope": true,
		"scope_confidence": 0.1,
		"general_answer": "something"
	}`}
	analyzer := NewAnalyzer(stub)

	result := analyzer.Analyze(context.Background(), "best smartphone?")

	assert.True(t, result.OutOfScope)
	assert.False(t, result.WantsClassification)
	assert.False(t, result.WantsInsurance)
	assert.False(t, result.IsGeneralQuestion)
	assert.Empty(t, result.GeneralAnswer)
}

func TestAnalyzeFallsBackOnLLMError(t *testing.T) {
	analyzer := NewAnalyzer(&completerStub{err: fmt.Errorf("llm down")})

	result := analyzer.Analyze(context.Background(), "please diagnose my tomato disease")
	assert.True(t, result.WantsClassification)
}

func TestFallbackAnalyzeInsurancePremium(t *testing.T) {
	result := FallbackAnalyze("How much is insurance for 5 hectares of rice in Karnataka?")
	assert.True(t, result.WantsInsurance)
	assert.True(t, result.WantsInsurancePremium)
	assert.False(t, result.WantsClassification)
}

func TestFallbackAnalyzeOutOfScope(t *testing.T) {
	result := FallbackAnalyze("What's the best smartphone?")
	result.Normalize()
	assert.True(t, result.OutOfScope)
	assert.False(t, result.IsAgricultureRelated)
	assert.LessOrEqual(t, result.ScopeConfidence, 0.3)
	assert.False(t, result.WantsAnyService())
}

func TestDetectGoodbyeLLMYes(t *testing.T) {
	analyzer := NewAnalyzer(&completerStub{response: "YES"})
	assert.True(t, analyzer.DetectGoodbye(context.Background(), "thanks, that's all"))
}

func TestDetectGoodbyeLLMNo(t *testing.T) {
	analyzer := NewAnalyzer(&completerStub{response: "NO"})
	assert.False(t, analyzer.DetectGoodbye(context.Background(), "what about dosage?"))
}

func TestDetectGoodbyeFallbackKeywords(t *testing.T) {
	analyzer := NewAnalyzer(&completerStub{err: fmt.Errorf("llm down")})
	assert.True(t, analyzer.DetectGoodbye(context.Background(), "ok bye now"))
	assert.False(t, analyzer.DetectGoodbye(context.Background(), "show me the premium"))
	assert.False(t, analyzer.DetectGoodbye(context.Background(), ""))
}

func TestAnalyzeFollowupDosageShortCircuit(t *testing.T) {
	stub := &completerStub{response: `{"action": "prescribe", "confidence": 0.9}`}
	analyzer := NewAnalyzer(stub)

	state := models.NewSessionState("s1")
	state.UserMessage = "yes give me the dosage instructions"
	state.PrescriptionData = &models.Prescription{
		Treatments: []models.Treatment{{Name: "Neem Oil", Dosage: "5ml/L"}},
	}

	fi := analyzer.AnalyzeFollowup(context.Background(), state)
	assert.Equal(t, models.FollowupDirectResponse, fi.Action)
	assert.Contains(t, fi.Response, "Neem Oil")
}

func TestAnalyzeFollowupFallbackRouting(t *testing.T) {
	analyzer := NewAnalyzer(&completerStub{err: fmt.Errorf("llm down")})

	state := models.NewSessionState("s1")
	state.UserMessage = "what about crop insurance premium?"
	fi := analyzer.AnalyzeFollowup(context.Background(), state)
	assert.Equal(t, models.FollowupInsurance, fi.Action)

	state.UserMessage = "show me the attention heatmap"
	fi = analyzer.AnalyzeFollowup(context.Background(), state)
	assert.Equal(t, models.FollowupAttentionOverlay, fi.Action)
}

func TestDosageAnswerWithoutPrescription(t *testing.T) {
	answer := DosageAnswer(nil)
	require.Contains(t, answer, "don't have detailed dosage information")
}
