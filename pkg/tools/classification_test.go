package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// visionStub implements llm.VisionCompleter for tests.
type visionStub struct {
	response string
	err      error
}

func (v *visionStub) CompleteVision(_ context.Context, _, _ string) (string, error) {
	return v.response, v.err
}

func newClassifierServer(t *testing.T, resp cnnResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/classify", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestClassificationPrimaryWins(t *testing.T) {
	srv := newClassifierServer(t, cnnResponse{
		Success:          true,
		DiseaseName:      "bacterial_blight",
		Confidence:       0.91,
		AttentionOverlay: "b64overlay",
	})
	defer srv.Close()

	vision := &visionStub{response: `{"disease_name": "bacterial blight", "confidence": 0.7, "severity": "severe", "description": "dark lesions"}`}
	tool := NewClassificationTool(srv.URL, vision, 5*time.Second)

	result, terr := tool.Call(context.Background(), ClassificationRequest{ImageB64: "img", SessionID: "s1"})
	require.Nil(t, terr)

	assert.Equal(t, "bacterial_blight", result.DiseaseName)
	assert.Equal(t, "cnn", result.Source)
	assert.Equal(t, "severe", result.Severity) // severity borrowed from evaluator
	assert.Equal(t, "b64overlay", result.AttentionOverlay)
	require.NotNil(t, result.EvaluationDetails)
	assert.Greater(t, result.EvaluationDetails.SimilarityScore, 0.5)
}

func TestClassificationSecondaryWinsOnUnknown(t *testing.T) {
	srv := newClassifierServer(t, cnnResponse{Success: true, DiseaseName: "unknown", Confidence: 0.2})
	defer srv.Close()

	vision := &visionStub{response: `{"disease_name": "powdery_mildew", "confidence": 0.75, "severity": "moderate", "description": "white powder"}`}
	tool := NewClassificationTool(srv.URL, vision, 5*time.Second)

	result, terr := tool.Call(context.Background(), ClassificationRequest{ImageB64: "img"})
	require.Nil(t, terr)

	assert.Equal(t, "powdery_mildew", result.DiseaseName)
	assert.Equal(t, "sme", result.Source)
	assert.InDelta(t, 0.75, result.Confidence, 1e-9)
}

func TestClassificationUncertainWhenBothFail(t *testing.T) {
	srv := newClassifierServer(t, cnnResponse{Success: true, DiseaseName: "unknown", Confidence: 0.3})
	defer srv.Close()

	vision := &visionStub{err: fmt.Errorf("vision model down")}
	tool := NewClassificationTool(srv.URL, vision, 5*time.Second)

	result, terr := tool.Call(context.Background(), ClassificationRequest{ImageB64: "img"})
	require.Nil(t, terr)

	assert.Equal(t, "unknown", result.DiseaseName)
	assert.Equal(t, "cnn", result.Source)
	assert.Contains(t, result.Description, "uncertain")
	assert.Contains(t, result.EvaluationDetails.SMEError, "vision model down")
}

func TestClassificationRequiresImage(t *testing.T) {
	tool := NewClassificationTool("http://localhost:1", &visionStub{}, time.Second)

	_, terr := tool.Call(context.Background(), ClassificationRequest{})
	require.NotNil(t, terr)
	assert.Equal(t, ErrValidation, terr.Kind)
}

func TestClassificationToolErrorPropagates(t *testing.T) {
	srv := newClassifierServer(t, cnnResponse{Error: "model loading failed"})
	defer srv.Close()

	tool := NewClassificationTool(srv.URL, &visionStub{}, time.Second)
	_, terr := tool.Call(context.Background(), ClassificationRequest{ImageB64: "img"})
	require.NotNil(t, terr)
	assert.Equal(t, ErrTool, terr.Kind)
	assert.Contains(t, terr.Message, "model loading failed")
}

func TestDiseaseSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, diseaseSimilarity("rust", "Rust"))
	assert.Equal(t, 0.8, diseaseSimilarity("leaf rust", "rust"))
	assert.Greater(t, diseaseSimilarity("early blight", "late blight"), 0.5)
	assert.Equal(t, 0.0, diseaseSimilarity("", "rust"))
	assert.Less(t, diseaseSimilarity("healthy", "bacterial_blight"), 0.3)
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, extractJSONObject("noise before {\"a\": 1} noise after"))
	assert.Equal(t, "", extractJSONObject("no json here"))
}
