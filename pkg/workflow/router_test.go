package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sasya-arogya/engine/pkg/models"
)

func route(t *testing.T, node string, mutate func(*models.SessionState)) string {
	t.Helper()
	router, err := NewRouter()
	require.NoError(t, err)

	state := models.NewSessionState("s1")
	if mutate != nil {
		mutate(state)
	}
	target, err := router.Route(node, state)
	require.NoError(t, err)
	return target
}

func TestRouteFromInitial(t *testing.T) {
	assert.Equal(t, models.NodeClassifying, route(t, models.NodeInitial,
		func(s *models.SessionState) { s.NextAction = "classify" }))
	assert.Equal(t, models.NodeInsurance, route(t, models.NodeInitial,
		func(s *models.SessionState) { s.NextAction = "insurance" }))
	assert.Equal(t, models.NodeError, route(t, models.NodeInitial,
		func(s *models.SessionState) { s.NextAction = "error" }))
	// Out-of-scope rejections complete directly without a followup hop.
	assert.Equal(t, models.NodeCompleted, route(t, models.NodeInitial,
		func(s *models.SessionState) { s.NextAction = "completed" }))
	// Everything else routes through followup first.
	assert.Equal(t, models.NodeFollowup, route(t, models.NodeInitial,
		func(s *models.SessionState) { s.NextAction = "general_help" }))
	assert.Equal(t, models.NodeFollowup, route(t, models.NodeInitial,
		func(s *models.SessionState) { s.NextAction = "session_end" }))
}

func TestRouteFromClassifying(t *testing.T) {
	assert.Equal(t, models.NodePrescribing, route(t, models.NodeClassifying,
		func(s *models.SessionState) { s.NextAction = "prescribe" }))
	assert.Equal(t, models.NodeClassifying, route(t, models.NodeClassifying,
		func(s *models.SessionState) { s.NextAction = "retry" }))
	assert.Equal(t, models.NodeFollowup, route(t, models.NodeClassifying,
		func(s *models.SessionState) { s.NextAction = "followup" }))
}

func TestRouteFromVendorQueryKeywordScan(t *testing.T) {
	assert.Equal(t, models.NodeShowVendors, route(t, models.NodeVendorQuery,
		func(s *models.SessionState) { s.UserMessage = "Yes, show me the vendors" }))
	assert.Equal(t, models.NodeCompleted, route(t, models.NodeVendorQuery,
		func(s *models.SessionState) { s.UserMessage = "No thanks, maybe later" }))
	assert.Equal(t, models.NodeFollowup, route(t, models.NodeVendorQuery,
		func(s *models.SessionState) { s.UserMessage = "what do they cost?" }))
}

func TestRouteFromShowVendors(t *testing.T) {
	assert.Equal(t, models.NodeOrderBooking, route(t, models.NodeShowVendors,
		func(s *models.SessionState) {
			s.NextAction = "order"
			s.SelectedVendor = "agri-store-1"
		}))
	// Order without a selected vendor falls through to completed.
	assert.Equal(t, models.NodeCompleted, route(t, models.NodeShowVendors,
		func(s *models.SessionState) { s.NextAction = "order" }))
	assert.Equal(t, models.NodeFollowup, route(t, models.NodeShowVendors,
		func(s *models.SessionState) { s.NextAction = "await_vendor_selection" }))
}

func TestRouteFromFollowup(t *testing.T) {
	assert.Equal(t, models.NodeInitial, route(t, models.NodeFollowup,
		func(s *models.SessionState) { s.NextAction = "restart" }))
	assert.Equal(t, models.NodeSessionEnd, route(t, models.NodeFollowup,
		func(s *models.SessionState) { s.NextAction = "session_end" }))
	assert.Equal(t, models.NodeInsurance, route(t, models.NodeFollowup,
		func(s *models.SessionState) { s.NextAction = "insurance" }))
	assert.Equal(t, models.NodeCompleted, route(t, models.NodeFollowup,
		func(s *models.SessionState) { s.NextAction = "await_user_input" }))
}

func TestRouteUnknownNode(t *testing.T) {
	router, err := NewRouter()
	require.NoError(t, err)

	_, err = router.Route("no_such_node", models.NewSessionState("s1"))
	assert.Error(t, err)
}

func TestTerminalNodes(t *testing.T) {
	assert.True(t, IsTerminal(models.NodeCompleted))
	assert.True(t, IsTerminal(models.NodeSessionEnd))
	assert.True(t, IsTerminal(models.NodeError))
	assert.False(t, IsTerminal(models.NodeFollowup))
	assert.False(t, IsTerminal(models.NodeInitial))
}
