package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sasya-arogya/engine/pkg/intent"
	"github.com/sasya-arogya/engine/pkg/models"
	"github.com/sasya-arogya/engine/pkg/session"
	"github.com/sasya-arogya/engine/pkg/store"
	"github.com/sasya-arogya/engine/pkg/stream"
	"github.com/sasya-arogya/engine/pkg/tools"
	"github.com/sasya-arogya/engine/pkg/workflow/nodes"
)

// scriptedLLM answers each analysis prompt by recognising its template
// marker, so one stub drives intent, goodbye, followup and insurance
// prompts independently.
type scriptedLLM struct {
	intentJSON          string
	goodbye             string
	followupJSON        string
	insuranceActionJSON string
	subIntentJSON       string
	nextStepsJSON       string
	contextJSON         string
}

func (s *scriptedLLM) Complete(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "END or CLOSE"):
		return orConst(s.goodbye, "NO"), nil
	case strings.Contains(prompt, "expert at understanding user intent"):
		return orConst(s.intentJSON, `{"out_of_scope": false, "is_agriculture_related": true, "scope_confidence": 0.9}`), nil
	case strings.Contains(prompt, "analyzing a user's followup message"):
		return orConst(s.followupJSON, `{"action": "direct_response", "response": "Happy to help!", "confidence": 0.5}`), nil
	case strings.Contains(prompt, "expert insurance analyst"):
		return orConst(s.insuranceActionJSON, `{"action": "calculate_premium", "confidence": 0.9}`), nil
	case strings.Contains(prompt, "expert insurance intent analyzer"):
		return orConst(s.subIntentJSON, `{"wants_insurance": true, "wants_insurance_premium": true}`), nil
	case strings.Contains(prompt, "Suggest 2-3 logical next steps"):
		return orConst(s.nextStepsJSON, `["📸 Upload another image for analysis", "❓ Ask questions"]`), nil
	case strings.Contains(prompt, "Extract growing context"):
		return orConst(s.contextJSON, `{"plant_type": "", "location": "", "season": "", "growth_stage": ""}`), nil
	}
	return "{}", nil
}

func orConst(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// stubClassifier returns queued errors first, then the fixed result.
type stubClassifier struct {
	result *models.Classification
	errs   []*tools.Error
	calls  int
}

func (s *stubClassifier) Call(_ context.Context, _ tools.ClassificationRequest) (*models.Classification, *tools.Error) {
	defer func() { s.calls++ }()
	if s.calls < len(s.errs) {
		return nil, s.errs[s.calls]
	}
	return s.result, nil
}

type stubPrescriber struct {
	rx    *models.Prescription
	calls int
}

func (s *stubPrescriber) Call(_ context.Context, _ tools.PrescriptionRequest) (*models.Prescription, *tools.Error) {
	s.calls++
	return s.rx, nil
}

func (s *stubPrescriber) Fallback(req tools.PrescriptionRequest) *models.Prescription {
	return &models.Prescription{DiseaseName: req.DiseaseName, Fallback: true}
}

// stubInsurer returns queued errors first, then the fixed result.
type stubInsurer struct {
	result *models.InsuranceResult
	errs   []*tools.Error
	calls  int
}

func (s *stubInsurer) Call(_ context.Context, action models.InsuranceAction, _ *models.InsuranceContext, _ string) (*models.InsuranceResult, *tools.Error) {
	defer func() { s.calls++ }()
	if s.calls < len(s.errs) {
		return nil, s.errs[s.calls]
	}
	result := *s.result
	result.Action = action
	return &result, nil
}

type fixture struct {
	engine     *Engine
	sessions   *session.Manager
	memStore   *store.MemoryStore
	llm        *scriptedLLM
	classifier *stubClassifier
	prescriber *stubPrescriber
	insurer    *stubInsurer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	llm := &scriptedLLM{}
	analyzer := intent.NewAnalyzer(llm)
	memStore := store.NewMemoryStore()
	sessions := session.NewManager(memStore)

	classifier := &stubClassifier{result: &models.Classification{
		DiseaseName:      "bacterial_blight",
		Confidence:       0.92,
		Severity:         "high",
		Description:      "Dark water-soaked lesions on the leaf",
		Source:           "cnn",
		AttentionOverlay: "overlay-bytes",
	}}
	prescriber := &stubPrescriber{rx: &models.Prescription{
		DiseaseName: "bacterial_blight",
		Treatments: []models.Treatment{
			{Name: "Copper-based Bactericide", Type: "Chemical", Application: "Foliar spray", Dosage: "2ml/L", Frequency: "Weekly"},
		},
		PreventiveMeasures: []string{"Rotate crops"},
	}}
	insurer := &stubInsurer{result: &models.InsuranceResult{
		Success:        true,
		PremiumDetails: "Total premium: ₹12,500",
		Crop:           "Rice",
		State:          "Karnataka",
		AreaHectare:    5,
	}}

	deps := nodes.Deps{
		Classifier:       classifier,
		Prescriber:       prescriber,
		Insurer:          insurer,
		ContextExtractor: tools.NewContextExtractorTool(llm),
		Overlay:          tools.NewAttentionOverlayTool(),
		Intent:           analyzer,
		MaxRetries:       2,
	}
	engine, err := New(deps, sessions)
	require.NoError(t, err)
	return &fixture{engine: engine, sessions: sessions, memStore: memStore, llm: llm,
		classifier: classifier, prescriber: prescriber, insurer: insurer}
}

func (f *fixture) turn(t *testing.T, sessionID, message, image string, context map[string]string) []stream.Event {
	t.Helper()
	events, err := f.engine.StreamMessage(t.Context(), sessionID, message, image, context)
	require.NoError(t, err)

	var collected []stream.Event
	for event := range events {
		collected = append(collected, event)
	}
	return collected
}

func (f *fixture) loadState(t *testing.T, sessionID string) *models.SessionState {
	t.Helper()
	state, err := f.sessions.Get(t.Context(), sessionID)
	require.NoError(t, err)
	return state
}

func eventsOfType(events []stream.Event, eventType stream.EventType) []stream.Event {
	var matched []stream.Event
	for _, e := range events {
		if e.Type == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

const classificationOnlyIntent = `{"wants_classification": true, "wants_prescription": false, "is_agriculture_related": true, "out_of_scope": false, "scope_confidence": 0.95}`

func TestScenarioClassificationOnly(t *testing.T) {
	f := newFixture(t)
	f.llm.intentJSON = classificationOnlyIntent

	events := f.turn(t, "s1", "Analyze this plant disease", "image-bytes", nil)

	responses := eventsOfType(events, stream.EventAssistantResponse)
	require.NotEmpty(t, responses)
	var foundReport bool
	for _, r := range responses {
		if strings.Contains(r.Data["assistant_response"].(string), "PLANT DISEASE ANALYSIS") {
			foundReport = true
		}
	}
	assert.True(t, foundReport, "disease report must stream")

	overlays := eventsOfType(events, stream.EventAttentionOverlay)
	assert.LessOrEqual(t, len(overlays), 1)

	state := f.loadState(t, "s1")
	assert.Equal(t, "bacterial_blight", state.DiseaseName)
	assert.False(t, state.IsComplete)
	assert.False(t, state.SessionEnded)
	assert.Equal(t, models.NodeCompleted, state.CurrentNode)
	assert.Nil(t, state.PrescriptionData)
}

func TestScenarioFullWorkflow(t *testing.T) {
	f := newFixture(t)
	f.llm.intentJSON = `{"wants_classification": true, "wants_prescription": true, "wants_full_workflow": true, "is_agriculture_related": true, "out_of_scope": false, "scope_confidence": 0.98}`

	events := f.turn(t, "s2", "Diagnose and treat my tomato", "image-bytes",
		map[string]string{"plant_type": "tomato"})

	state := f.loadState(t, "s2")
	require.NotNil(t, state.ClassificationResults)
	require.NotNil(t, state.PrescriptionData)
	assert.NotEmpty(t, state.PrescriptionData.Treatments)
	assert.Equal(t, "tomato", state.PlantType)
	assert.Equal(t, 1, f.classifier.calls)
	assert.Equal(t, 1, f.prescriber.calls)

	responses := eventsOfType(events, stream.EventAssistantResponse)
	assert.NotEmpty(t, responses)
}

func TestScenarioInsurancePremium(t *testing.T) {
	f := newFixture(t)
	f.llm.intentJSON = `{"wants_insurance": true, "wants_insurance_premium": true, "is_agriculture_related": true, "out_of_scope": false, "scope_confidence": 0.97}`

	message := "How much is insurance for 5 hectares of rice in Karnataka?"
	f.turn(t, "s3", message, "", nil)

	state := f.loadState(t, "s3")
	require.NotNil(t, state.InsurancePremiumDetails)
	assert.Contains(t, state.InsurancePremiumDetails.PremiumDetails, "₹12,500")
	assert.Empty(t, state.DiseaseName, "classification fields must stay untouched")
	assert.Nil(t, state.ClassificationResults)

	// The identical message repeated: third consecutive hit on the insurance
	// node triggers the rephrase prompt.
	f.llm.followupJSON = `{"action": "insurance", "confidence": 0.9}`
	f.llm.subIntentJSON = `{"wants_insurance": true, "wants_insurance_premium": true}`
	f.turn(t, "s3", message, "", nil)
	events := f.turn(t, "s3", message, "", nil)

	state = f.loadState(t, "s3")
	var rephrased bool
	for _, m := range state.Messages {
		if strings.Contains(m.Content, "rephrase") {
			rephrased = true
		}
	}
	assert.True(t, rephrased, "third identical message must trigger the rephrase prompt")
	_ = events
}

func TestScenarioOutOfScope(t *testing.T) {
	f := newFixture(t)
	f.llm.intentJSON = `{"wants_classification": false, "wants_insurance": false, "is_general_question": false, "is_agriculture_related": false, "out_of_scope": true, "scope_confidence": 0.1}`

	f.turn(t, "s4", "What's the best smartphone?", "", nil)

	state := f.loadState(t, "s4")
	require.NotNil(t, state.UserIntent)
	assert.True(t, state.UserIntent.OutOfScope)
	assert.False(t, state.UserIntent.IsAgricultureRelated)
	assert.LessOrEqual(t, state.UserIntent.ScopeConfidence, 0.3)
	assert.Equal(t, 0, f.classifier.calls)
	assert.Equal(t, 0, f.insurer.calls)
	assert.Equal(t, 0, f.prescriber.calls)

	var apology bool
	for _, m := range state.Messages {
		if m.Role == models.RoleAssistant && nodes.IsOutOfScopeResponse(m.Content) {
			apology = true
		}
	}
	assert.True(t, apology, "reply must come from the out-of-scope template set")
}

func TestScenarioGoodbyeMidSession(t *testing.T) {
	f := newFixture(t)
	f.llm.intentJSON = `{"wants_classification": true, "wants_prescription": true, "is_agriculture_related": true, "out_of_scope": false, "scope_confidence": 0.98}`

	f.turn(t, "s5", "Diagnose and treat my tomato", "image-bytes", nil)

	// Next turn: goodbye. Continuing conversation routes through followup,
	// whose goodbye check ends the session.
	f.llm.goodbye = "YES"
	f.turn(t, "s5", "thanks, that's all", "", nil)

	state := f.loadState(t, "s5")
	assert.True(t, state.SessionEnded)
	assert.Equal(t, models.NodeSessionEnd, state.CurrentNode)

	var farewell bool
	for _, m := range state.Messages {
		if strings.Contains(m.Content, "Happy farming") {
			farewell = true
		}
	}
	assert.True(t, farewell)

	// A further turn on the same id starts as a NEW conversation: the intent
	// analyzer runs again instead of the followup path.
	f.llm.goodbye = "NO"
	f.llm.intentJSON = classificationOnlyIntent
	f.turn(t, "s5", "Analyze this plant disease", "image-bytes", nil)

	state = f.loadState(t, "s5")
	assert.Equal(t, 2, f.classifier.calls, "new conversation must re-run classification")
}

func TestScenarioToolFailureWithRecovery(t *testing.T) {
	f := newFixture(t)
	f.llm.intentJSON = `{"wants_insurance": true, "wants_insurance_premium": true, "is_agriculture_related": true, "out_of_scope": false, "scope_confidence": 0.97}`
	f.insurer.errs = []*tools.Error{
		tools.NewError(tools.ErrTimeout, "insurance MCP server request timed out"),
	}

	f.turn(t, "s6", "How much is insurance for 5 hectares of rice in Karnataka?", "", nil)

	state := f.loadState(t, "s6")
	require.NotNil(t, state.InsurancePremiumDetails)
	assert.Empty(t, state.ErrorMessage, "clear_error must run on success")
	assert.Zero(t, state.RetryCount)
	assert.Equal(t, models.NodeCompleted, state.CurrentNode)
	assert.Equal(t, 2, f.insurer.calls)

	var errorSurfaced bool
	for _, m := range state.Messages {
		if strings.Contains(m.Content, "UNAVAILABLE") || strings.Contains(m.Content, "UNEXPECTED ERROR") {
			errorSurfaced = true
		}
	}
	assert.False(t, errorSurfaced, "completed node must render a success summary")
}

func TestClassificationErrorPathAfterRetries(t *testing.T) {
	f := newFixture(t)
	f.llm.intentJSON = classificationOnlyIntent
	f.classifier.errs = []*tools.Error{
		tools.NewError(tools.ErrTool, "model loading failed"),
		tools.NewError(tools.ErrTool, "model loading failed"),
		tools.NewError(tools.ErrTool, "model loading failed"),
	}

	events := f.turn(t, "s7", "Analyze this plant disease", "image-bytes", nil)

	state := f.loadState(t, "s7")
	assert.Equal(t, models.NodeError, state.CurrentNode)
	assert.True(t, state.IsComplete)
	assert.Equal(t, 3, f.classifier.calls) // initial attempt + two retries

	responses := eventsOfType(events, stream.EventAssistantResponse)
	require.NotEmpty(t, responses)
	final := responses[len(responses)-1].Data["assistant_response"].(string)
	assert.Contains(t, final, "TEMPORARILY UNAVAILABLE")
	assert.NotContains(t, final, "model loading failed:")
}

func TestClassifyWithoutImageRequestsOne(t *testing.T) {
	f := newFixture(t)
	f.llm.intentJSON = classificationOnlyIntent

	f.turn(t, "s8", "Analyze my plant please", "", nil)

	state := f.loadState(t, "s8")
	assert.Equal(t, 0, f.classifier.calls)
	assert.True(t, state.RequiresUserInput)

	var asked bool
	for _, m := range state.Messages {
		if strings.Contains(m.Content, "upload a clear photo") {
			asked = true
		}
	}
	assert.True(t, asked)
}

func TestStateUpdateEventsNeverLeakBulkFields(t *testing.T) {
	f := newFixture(t)
	f.llm.intentJSON = classificationOnlyIntent

	events := f.turn(t, "s9", "Analyze this plant disease", "image-bytes", nil)

	for _, e := range eventsOfType(events, stream.EventStateUpdate) {
		for _, key := range []string{"user_image", "image", "attention_overlay", "messages", "last_update_time"} {
			assert.NotContains(t, e.Data, key)
		}
	}
}

func TestCancellationSkipsPersistence(t *testing.T) {
	f := newFixture(t)
	f.llm.intentJSON = classificationOnlyIntent

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events, err := f.engine.StreamMessage(ctx, "s10", "Analyze this plant disease", "image-bytes", nil)
	require.NoError(t, err)
	for range events {
	}

	// Nothing was persisted for the cancelled turn.
	_, loadErr := f.memStore.Load(context.Background(), "s10")
	assert.ErrorIs(t, loadErr, store.ErrNotFound)
}
