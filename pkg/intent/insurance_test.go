package intent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sasya-arogya/engine/pkg/models"
)

func TestDetermineInsuranceActionExplicitIntentWins(t *testing.T) {
	// LLM would say recommend, but explicit intent flags take priority.
	analyzer := NewAnalyzer(&completerStub{response: `{"action": "recommend", "confidence": 0.9}`})

	state := models.NewSessionState("s1")
	state.UserMessage = "insurance please"
	state.UserIntent = &models.Intent{WantsInsurance: true, WantsInsurancePurchase: true}

	action := analyzer.DetermineInsuranceAction(context.Background(), state, &models.InsuranceContext{})
	assert.Equal(t, models.InsuranceGenerateCertificate, action)
}

func TestDetermineInsuranceActionLLM(t *testing.T) {
	analyzer := NewAnalyzer(&completerStub{response: `{"action": "get_companies", "confidence": 0.92, "reasoning": "asks about providers"}`})

	state := models.NewSessionState("s1")
	state.UserMessage = "who insures crops here?"

	action := analyzer.DetermineInsuranceAction(context.Background(), state, &models.InsuranceContext{})
	assert.Equal(t, models.InsuranceGetCompanies, action)
}

func TestFallbackInsuranceActionPrecedence(t *testing.T) {
	cases := []struct {
		message string
		want    models.InsuranceAction
	}{
		{"Buy insurance for this premium", models.InsuranceGenerateCertificate},
		{"Help me buy insurance for my farm", models.InsuranceGenerateCertificate},
		{"How much does it cost to buy insurance?", models.InsuranceCalculatePremium},
		{"What is the cost of premium for my potato farm?", models.InsuranceCalculatePremium},
		{"Which insurance companies are available?", models.InsuranceGetCompanies},
		{"Suggest the best insurance option", models.InsuranceRecommend},
		{"I need something for my farm", models.InsuranceCalculatePremium},
	}
	for _, tc := range cases {
		got := FallbackInsuranceAction(tc.message, &models.InsuranceContext{})
		assert.Equal(t, tc.want, got, "message: %s", tc.message)
	}
}

func TestFallbackInsuranceActionDiseaseImpliesRecommend(t *testing.T) {
	got := FallbackInsuranceAction("I need insurance", &models.InsuranceContext{Disease: "blast"})
	assert.Equal(t, models.InsuranceRecommend, got)
}

func TestAnalyzeInsuranceSubIntentFallback(t *testing.T) {
	analyzer := NewAnalyzer(&completerStub{err: fmt.Errorf("llm down")})

	intent := analyzer.AnalyzeInsuranceSubIntent(context.Background(), "help me apply for crop insurance")
	assert.True(t, intent.WantsInsurance)
	assert.True(t, intent.WantsInsurancePurchase)

	intent = analyzer.AnalyzeInsuranceSubIntent(context.Background(), "what does insurance cover?")
	assert.True(t, intent.WantsInsuranceCoverage)

	intent = analyzer.AnalyzeInsuranceSubIntent(context.Background(), "insurance for my crops please")
	assert.True(t, intent.WantsInsuranceRecommendation)
}

func TestExtractInsuranceDetails(t *testing.T) {
	out := ExtractInsuranceDetails("My name is Ravi Kumar, I grow rice on 10 acres in Karnataka")
	assert.Equal(t, "Ravi Kumar", out.FarmerName)
	assert.Equal(t, "Rice", out.Crop)
	assert.Equal(t, "Karnataka", out.State)
	assert.InDelta(t, 4.047, out.AreaHectare, 0.001)
}

func TestExtractInsuranceDetailsHectares(t *testing.T) {
	out := ExtractInsuranceDetails("insurance for 5 hectares of wheat in Tamil Nadu")
	assert.InDelta(t, 5.0, out.AreaHectare, 1e-9)
	assert.Equal(t, "Wheat", out.Crop)
	assert.Equal(t, "Tamil Nadu", out.State)
}

func TestExtractInsuranceDetailsNothingMatched(t *testing.T) {
	out := ExtractInsuranceDetails("hello there")
	assert.Empty(t, out.Crop)
	assert.Empty(t, out.State)
	assert.Zero(t, out.AreaHectare)
}
