// Package session manages per-session workflow state: lifecycle, turn-input
// merging, message deduplication and the one-write-per-turn persistence
// contract.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/sasya-arogya/engine/pkg/models"
	"github.com/sasya-arogya/engine/pkg/store"
)

// Manager creates, loads and saves session state. Writes are serialised per
// session id; reads of distinct sessions run concurrently.
type Manager struct {
	store store.Store

	// Per-session writer locks.
	locks sync.Map // session id → *sync.Mutex

	// Transient side-records survive across turns within this process so the
	// streaming layer's duplicate-suppression buffers keep their history.
	transients sync.Map // session id → *models.Transient
}

// NewManager creates a session manager over the given store.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

// GetOrCreate loads the session (or creates a blank one on first sight),
// merges this turn's inputs and appends the user message to the conversation
// log. API-provided context wins over anything previously extracted.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID, userMessage, userImage string, userContext map[string]string) (*models.SessionState, error) {
	mu := m.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	state, err := m.store.Load(ctx, sessionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		state = models.NewSessionState(sessionID)
		slog.Info("Created new session", "session_id", sessionID)
	case err != nil:
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	state.Transient = m.transientFor(sessionID)
	state.Transient.UserImage = userImage

	// Reset per-turn routing and streaming metadata.
	state.UserMessage = userMessage
	state.NextAction = ""
	state.AssistantResponse = ""
	state.ResponseStatus = ""
	state.StreamImmediately = false
	state.StreamInStateUpdate = false
	state.IsComplete = false
	state.RequiresUserInput = false

	m.applyContext(state, userContext)

	if userMessage != "" {
		state.AddMessage(models.RoleUser, userMessage)
	}
	return state, nil
}

// Get loads a session's persisted state without merging turn inputs.
// Returns store.ErrNotFound for a never-saved session id.
func (m *Manager) Get(ctx context.Context, sessionID string) (*models.SessionState, error) {
	state, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	state.Transient = m.transientFor(sessionID)
	return state, nil
}

// Save persists the final state of a turn. Exactly one call per turn.
func (m *Manager) Save(ctx context.Context, state *models.SessionState) error {
	mu := m.lockFor(state.SessionID)
	mu.Lock()
	defer mu.Unlock()

	if err := m.store.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to save session %s: %w", state.SessionID, err)
	}
	slog.Debug("Saved session state", "session_id", state.SessionID, "node", state.CurrentNode)
	return nil
}

// DeduplicateMessages removes adjacent duplicate messages (same role and
// content), preserving the first occurrence. Idempotent.
func (m *Manager) DeduplicateMessages(state *models.SessionState) *models.SessionState {
	if len(state.Messages) < 2 {
		return state
	}
	deduped := state.Messages[:1]
	for _, msg := range state.Messages[1:] {
		last := deduped[len(deduped)-1]
		if msg.Role == last.Role && msg.Content == last.Content {
			continue
		}
		deduped = append(deduped, msg)
	}
	if len(deduped) < len(state.Messages) {
		slog.Debug("Removed duplicate messages",
			"session_id", state.SessionID, "removed", len(state.Messages)-len(deduped))
	}
	state.Messages = deduped
	return state
}

// applyContext merges API-supplied context into the state. The API values
// overwrite extracted ones; the merged map is kept on the state for the
// extractor to supplement later.
func (m *Manager) applyContext(state *models.SessionState, userContext map[string]string) {
	if len(userContext) == 0 {
		return
	}
	if state.UserContext == nil {
		state.UserContext = make(map[string]string, len(userContext))
	}
	for k, v := range userContext {
		state.UserContext[k] = v
	}

	setIf := func(dst *string, key string) {
		if v, ok := userContext[key]; ok && v != "" {
			*dst = v
		}
	}
	setIf(&state.PlantType, "plant_type")
	setIf(&state.Location, "location")
	setIf(&state.Season, "season")
	setIf(&state.GrowthStage, "growth_stage")
	setIf(&state.FarmerName, "farmer_name")
	setIf(&state.Crop, "crop")
	setIf(&state.State, "state")
	if v, ok := userContext["area_hectare"]; ok && v != "" {
		if area, err := strconv.ParseFloat(v, 64); err == nil && area > 0 {
			state.AreaHectare = area
		}
	}
}

func (m *Manager) lockFor(sessionID string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (m *Manager) transientFor(sessionID string) *models.Transient {
	tr, _ := m.transients.LoadOrStore(sessionID, models.NewTransient())
	return tr.(*models.Transient)
}
