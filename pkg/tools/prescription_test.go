package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrescriptionStructuredResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query/metrics", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"treatment": {
				"diagnosis": {"disease_name": "Early Blight", "severity": "high"},
				"medicine_recommendations": {
					"primary_treatment": {
						"medicine_name": "Chlorothalonil",
						"application_method": "Foliar spray",
						"dosage": "2g/L",
						"frequency": "Every 7 days",
						"duration": "3 weeks"
					},
					"secondary_treatment": {
						"medicine_name": "Mancozeb",
						"when_to_use": "If primary unavailable"
					},
					"organic_alternatives": [
						{"name": "Neem Oil", "application": "Spray", "preparation": "5ml/L"}
					]
				},
				"prevention": {
					"cultural_practices": ["Rotate crops"],
					"crop_management": ["Stake plants"],
					"environmental_controls": ["Avoid overhead irrigation"]
				},
				"additional_notes": {"follow_up": "Re-inspect after one week"}
			},
			"collection_used": "tomato_diseases",
			"query_time": 1.8,
			"parsing_success": true
		}`))
	}))
	defer srv.Close()

	tool := NewPrescriptionTool(srv.URL, 5*time.Second)
	rx, terr := tool.Call(context.Background(), PrescriptionRequest{
		DiseaseName: "early_blight",
		PlantType:   "tomato",
		SessionID:   "s1",
	})
	require.Nil(t, terr)

	require.Len(t, rx.Treatments, 3)
	assert.Equal(t, "Chlorothalonil", rx.Treatments[0].Name)
	assert.Equal(t, "Chemical", rx.Treatments[0].Type)
	assert.Equal(t, "Organic", rx.Treatments[2].Type)
	assert.Equal(t, "Early Blight", rx.DiseaseName)
	assert.Equal(t, "high", rx.Severity)
	assert.Len(t, rx.PreventiveMeasures, 3)
	assert.Contains(t, rx.Notes, "Re-inspect")
	assert.Equal(t, "tomato_diseases", rx.CollectionUsed)
	assert.False(t, rx.Fallback)
}

func TestPrescriptionFallbackOnEngineDown(t *testing.T) {
	tool := NewPrescriptionTool("http://127.0.0.1:1", time.Second)

	rx, terr := tool.Call(context.Background(), PrescriptionRequest{DiseaseName: "bacterial_spot"})
	require.Nil(t, terr)

	assert.True(t, rx.Fallback)
	require.NotEmpty(t, rx.Treatments)
	assert.Equal(t, "Copper-based Bactericide", rx.Treatments[0].Name)
	assert.NotEmpty(t, rx.PreventiveMeasures)
}

func TestPrescriptionFallbackOnUnsuccessfulResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": false}`))
	}))
	defer srv.Close()

	tool := NewPrescriptionTool(srv.URL, time.Second)
	rx, terr := tool.Call(context.Background(), PrescriptionRequest{DiseaseName: "rust"})
	require.Nil(t, terr)
	assert.True(t, rx.Fallback)
}

func TestPrescriptionRequiresDisease(t *testing.T) {
	tool := NewPrescriptionTool("http://127.0.0.1:1", time.Second)

	_, terr := tool.Call(context.Background(), PrescriptionRequest{})
	require.NotNil(t, terr)
	assert.Equal(t, ErrValidation, terr.Kind)
}

func TestDefaultTreatmentsByDiseaseKeyword(t *testing.T) {
	assert.Equal(t, "Copper Sulfate Fungicide", defaultTreatments("fungal_leaf_spot")[0].Name)
	assert.Equal(t, "Copper Sulfate Fungicide", defaultTreatments("late_blight")[0].Name)
	assert.Equal(t, "Remove Infected Parts", defaultTreatments("viral_mosaic")[0].Name)
	assert.Equal(t, "Broad Spectrum Fungicide", defaultTreatments("something_else")[0].Name)
}
