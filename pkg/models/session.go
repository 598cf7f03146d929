package models

import (
	"encoding/json"
	"time"
)

// Node names of the workflow state graph.
const (
	NodeInitial      = "initial"
	NodeClassifying  = "classifying"
	NodePrescribing  = "prescribing"
	NodeInsurance    = "insurance"
	NodeFollowup     = "followup"
	NodeVendorQuery  = "vendor_query"
	NodeShowVendors  = "show_vendors"
	NodeOrderBooking = "order_booking"
	NodeCompleted    = "completed"
	NodeSessionEnd   = "session_end"
	NodeError        = "error"
)

// ResponseStatus controls how the streaming layer treats an assistant
// response set by a node.
type ResponseStatus string

const (
	ResponseIntermediate ResponseStatus = "intermediate"
	ResponseFinal        ResponseStatus = "final"
	ResponseStateOnly    ResponseStatus = "state_only"
)

// SessionState is the per-session workflow state. It is the single owning
// record mutated by the nodes traversed during a turn and persisted once
// after the terminal node. Bulk per-turn data (the uploaded image, the
// attention overlay) lives in the Transient side-record, which is never
// serialised with the state.
type SessionState struct {
	SessionID      string    `json:"session_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastUpdateTime time.Time `json:"last_update_time"`

	// Turn inputs.
	UserMessage string            `json:"user_message,omitempty"`
	UserContext map[string]string `json:"user_context,omitempty"`

	// Context extracted from messages or supplied by the API.
	PlantType     string  `json:"plant_type,omitempty"`
	Location      string  `json:"location,omitempty"`
	Season        string  `json:"season,omitempty"`
	GrowthStage   string  `json:"growth_stage,omitempty"`
	FarmerName    string  `json:"farmer_name,omitempty"`
	Crop          string  `json:"crop,omitempty"`
	State         string  `json:"state,omitempty"`
	AreaHectare   float64 `json:"area_hectare,omitempty"`
	GeneralAnswer string  `json:"general_answer,omitempty"`

	// Conversation log; append-only except for deduplication.
	Messages []Message `json:"messages"`

	// Routing.
	CurrentNode       string `json:"current_node,omitempty"`
	PreviousNode      string `json:"previous_node,omitempty"`
	NextAction        string `json:"next_action,omitempty"`
	RequiresUserInput bool   `json:"requires_user_input,omitempty"`
	IsComplete        bool   `json:"is_complete,omitempty"`
	SessionEnded      bool   `json:"session_ended,omitempty"`

	UserIntent *Intent `json:"user_intent,omitempty"`

	// Vendor extension; contracts are intentionally minimal.
	SelectedVendor string `json:"selected_vendor,omitempty"`

	// Classification results.
	ClassificationResults *Classification `json:"classification_results,omitempty"`
	DiseaseName           string          `json:"disease_name,omitempty"`
	Confidence            float64         `json:"confidence,omitempty"`

	// Prescription results.
	PrescriptionData         *Prescription `json:"prescription_data,omitempty"`
	TreatmentRecommendations []Treatment   `json:"treatment_recommendations,omitempty"`

	// Insurance results.
	InsuranceContext             *InsuranceContext  `json:"insurance_context,omitempty"`
	InsurancePremiumDetails      *InsuranceResult   `json:"insurance_premium_details,omitempty"`
	InsuranceRecommendations     *InsuranceResult   `json:"insurance_recommendations,omitempty"`
	InsuranceCompanies           []*InsuranceResult `json:"insurance_companies,omitempty"`
	InsuranceCertificate         *InsuranceResult   `json:"insurance_certificate,omitempty"`
	InsuranceOperationCompleted  bool               `json:"insurance_operation_completed,omitempty"`
	LastCompletedInsuranceAction string             `json:"last_completed_insurance_action,omitempty"`

	// Streaming metadata, set by nodes and consumed by the streaming layer.
	AssistantResponse   string         `json:"assistant_response,omitempty"`
	ResponseStatus      ResponseStatus `json:"response_status,omitempty"`
	StreamImmediately   bool           `json:"stream_immediately,omitempty"`
	StreamInStateUpdate bool           `json:"stream_in_state_update,omitempty"`

	// Error control.
	ErrorMessage string `json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count,omitempty"`

	// Infinite-loop guards for the insurance node.
	LastInsuranceMessage string `json:"last_insurance_message,omitempty"`
	InsuranceActionCount int    `json:"insurance_action_count,omitempty"`

	// Transient per-session data: never persisted, never streamed in state
	// updates.
	Transient *Transient `json:"-"`
}

// Transient holds per-session data excluded from persistence: the uploaded
// image, the attention overlay of the most recent classification, and the
// streaming layer's duplicate-suppression buffers.
type Transient struct {
	UserImage        string
	AttentionOverlay string

	// Overlay hashes already emitted for this session; an overlay event is
	// emitted at most once per (hash, session, source node).
	StreamedOverlays map[string]struct{}

	// Rolling buffer of the last N assistant-response content hashes.
	RecentResponseHashes []string
}

// NewTransient returns an empty transient record.
func NewTransient() *Transient {
	return &Transient{StreamedOverlays: make(map[string]struct{})}
}

// NewSessionState creates a blank state for a first-seen session id.
func NewSessionState(sessionID string) *SessionState {
	now := time.Now().UTC()
	return &SessionState{
		SessionID:   sessionID,
		CreatedAt:   now,
		CurrentNode: NodeInitial,
		Transient:   NewTransient(),
	}
}

// UpdateNode records that the named node is executing.
func (s *SessionState) UpdateNode(name string) {
	if s.CurrentNode != name {
		s.PreviousNode = s.CurrentNode
	}
	s.CurrentNode = name
	s.LastUpdateTime = time.Now().UTC()
}

// AddMessage appends a message to the conversation log.
func (s *SessionState) AddMessage(role MessageRole, content string) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	s.LastUpdateTime = time.Now().UTC()
}

// SetError records an error message on the state.
func (s *SessionState) SetError(msg string) {
	s.ErrorMessage = msg
	s.LastUpdateTime = time.Now().UTC()
}

// ClearError resets the error message and the retry counter. Nodes call this
// when a later operation in the same turn succeeds, so current-operation
// evidence overrides stale errors before persistence.
func (s *SessionState) ClearError() {
	s.ErrorMessage = ""
	s.RetryCount = 0
}

// CanRetry reports whether another retry is allowed under the given budget.
func (s *SessionState) CanRetry(maxRetries int) bool {
	return s.RetryCount < maxRetries
}

// RecordRetry increments the retry counter.
func (s *SessionState) RecordRetry() {
	s.RetryCount++
}

// MarkComplete flags the current workflow execution as finished.
func (s *SessionState) MarkComplete() {
	s.IsComplete = true
	s.RequiresUserInput = false
	s.LastUpdateTime = time.Now().UTC()
}

// AssistantMessageCount returns how many assistant messages the log holds.
func (s *SessionState) AssistantMessageCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == RoleAssistant {
			n++
		}
	}
	return n
}

// HasWorkflowResults reports whether any tool has produced results in this
// session.
func (s *SessionState) HasWorkflowResults() bool {
	return s.ClassificationResults != nil ||
		s.PrescriptionData != nil ||
		s.DiseaseName != "" ||
		s.InsurancePremiumDetails != nil ||
		s.InsuranceRecommendations != nil ||
		len(s.InsuranceCompanies) > 0 ||
		s.InsuranceCertificate != nil
}

// Flat returns the state as a flat key → value map in the shape consumed by
// the streaming layer. Keys follow the wire naming of the event protocol.
// Transient bulk fields are included so the overlay detector can see them;
// the delta and filter stages strip them before anything reaches a client.
func (s *SessionState) Flat() map[string]any {
	flat := map[string]any{
		"session_id":   s.SessionID,
		"current_node": s.CurrentNode,
	}
	put := func(key string, ok bool, v any) {
		if ok {
			flat[key] = v
		}
	}
	put("user_message", s.UserMessage != "", s.UserMessage)
	put("previous_node", s.PreviousNode != "", s.PreviousNode)
	put("next_action", s.NextAction != "", s.NextAction)
	put("requires_user_input", s.RequiresUserInput, s.RequiresUserInput)
	put("is_complete", s.IsComplete, s.IsComplete)
	put("session_ended", s.SessionEnded, s.SessionEnded)
	put("plant_type", s.PlantType != "", s.PlantType)
	put("location", s.Location != "", s.Location)
	put("season", s.Season != "", s.Season)
	put("growth_stage", s.GrowthStage != "", s.GrowthStage)
	put("farmer_name", s.FarmerName != "", s.FarmerName)
	put("crop", s.Crop != "", s.Crop)
	put("state", s.State != "", s.State)
	put("area_hectare", s.AreaHectare > 0, s.AreaHectare)
	put("general_answer", s.GeneralAnswer != "", s.GeneralAnswer)
	put("disease_name", s.DiseaseName != "", s.DiseaseName)
	put("confidence", s.Confidence > 0, s.Confidence)
	put("assistant_response", s.AssistantResponse != "", s.AssistantResponse)
	put("response_status", s.ResponseStatus != "", string(s.ResponseStatus))
	put("stream_immediately", s.StreamImmediately, s.StreamImmediately)
	put("stream_in_state_update", s.StreamInStateUpdate, s.StreamInStateUpdate)
	put("error_message", s.ErrorMessage != "", s.ErrorMessage)
	put("retry_count", s.RetryCount > 0, s.RetryCount)
	put("selected_vendor", s.SelectedVendor != "", s.SelectedVendor)
	put("last_insurance_message", s.LastInsuranceMessage != "", s.LastInsuranceMessage)
	put("insurance_action_count", s.InsuranceActionCount > 0, s.InsuranceActionCount)
	put("insurance_operation_completed", s.InsuranceOperationCompleted, s.InsuranceOperationCompleted)
	put("last_update_time", !s.LastUpdateTime.IsZero(), s.LastUpdateTime)

	if len(s.UserContext) > 0 {
		flat["user_context"] = toAny(s.UserContext)
	}
	if s.UserIntent != nil {
		flat["user_intent"] = toAny(s.UserIntent)
	}
	if s.ClassificationResults != nil {
		flat["classification_results"] = toAny(s.ClassificationResults)
	}
	if s.PrescriptionData != nil {
		flat["prescription_data"] = toAny(s.PrescriptionData)
	}
	if len(s.TreatmentRecommendations) > 0 {
		flat["treatment_recommendations"] = toAny(s.TreatmentRecommendations)
	}
	if s.InsuranceContext != nil {
		flat["insurance_context"] = toAny(s.InsuranceContext)
	}
	if s.InsurancePremiumDetails != nil {
		flat["insurance_premium_details"] = toAny(s.InsurancePremiumDetails)
	}
	if s.InsuranceRecommendations != nil {
		flat["insurance_recommendations"] = toAny(s.InsuranceRecommendations)
	}
	if len(s.InsuranceCompanies) > 0 {
		flat["insurance_companies"] = toAny(s.InsuranceCompanies)
	}
	if s.InsuranceCertificate != nil {
		flat["insurance_certificate"] = toAny(s.InsuranceCertificate)
	}
	if len(s.Messages) > 0 {
		flat["messages"] = toAny(s.Messages)
	}
	if s.Transient != nil {
		put("user_image", s.Transient.UserImage != "", s.Transient.UserImage)
		put("attention_overlay", s.Transient.AttentionOverlay != "", s.Transient.AttentionOverlay)
	}
	return flat
}

// toAny converts a typed value into generic JSON shapes (maps, slices,
// float64) so flat-state snapshots compare with reflect.DeepEqual regardless
// of the originating Go type.
func toAny(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
