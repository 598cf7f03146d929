package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sasya-arogya/engine/pkg/models"
	"github.com/sasya-arogya/engine/pkg/observability"
	"github.com/sasya-arogya/engine/pkg/session"
	"github.com/sasya-arogya/engine/pkg/stream"
	"github.com/sasya-arogya/engine/pkg/workflow/nodes"
)

// maxStepsPerTurn bounds a turn's node traversals. Retry edges plus the loop
// guards keep real turns far below this; the cap is the backstop against a
// routing bug.
const maxStepsPerTurn = 25

// Engine drives one user turn through the state graph: entry at initial,
// one node at a time, routing on the post-node state, emitting a per-node
// update chunk, persisting exactly once after the terminal node.
type Engine struct {
	sessions    *session.Manager
	router      *Router
	executor    *Executor
	instruments *observability.Instruments
}

// New creates the engine with the full node registry.
func New(deps nodes.Deps, sessions *session.Manager) (*Engine, error) {
	router, err := NewRouter()
	if err != nil {
		return nil, fmt.Errorf("failed to build router: %w", err)
	}
	instruments := observability.NewInstruments()
	return &Engine{
		sessions:    sessions,
		router:      router,
		executor:    NewExecutor(nodes.Registry(deps), instruments),
		instruments: instruments,
	}, nil
}

// TurnResult summarises a completed turn for non-streaming callers.
type TurnResult struct {
	Success               bool                      `json:"success"`
	SessionID             string                    `json:"session_id"`
	Error                 string                    `json:"error,omitempty"`
	Messages              []models.Message          `json:"messages,omitempty"`
	State                 string                    `json:"state,omitempty"`
	IsComplete            bool                      `json:"is_complete"`
	RequiresUserInput     bool                      `json:"requires_user_input"`
	SessionEnded          bool                      `json:"session_ended"`
	ClassificationResults *models.Classification    `json:"classification_results,omitempty"`
	PrescriptionData      *models.Prescription      `json:"prescription_data,omitempty"`
	InsurancePremium      *models.InsuranceResult   `json:"insurance_premium_details,omitempty"`
}

// StreamMessage processes one user turn, emitting events on the returned
// channel. The channel closes when the turn finishes; on cancellation the
// stream closes without persisting partial state.
func (e *Engine) StreamMessage(ctx context.Context, sessionID, userMessage, userImage string, userContext map[string]string) (<-chan stream.Event, error) {
	state, err := e.sessions.GetOrCreate(ctx, sessionID, userMessage, userImage, userContext)
	if err != nil {
		return nil, err
	}

	events := make(chan stream.Event, 16)
	go e.run(ctx, state, events)
	return events, nil
}

// ProcessMessage is the non-streaming variant: it runs the turn to
// completion and returns the final state summary.
func (e *Engine) ProcessMessage(ctx context.Context, sessionID, userMessage, userImage string, userContext map[string]string) (*TurnResult, error) {
	events, err := e.StreamMessage(ctx, sessionID, userMessage, userImage, userContext)
	if err != nil {
		return nil, err
	}

	var streamErr string
	for event := range events {
		if event.Type == stream.EventError {
			streamErr = event.Error
		}
	}
	if streamErr != "" {
		return &TurnResult{Success: false, SessionID: sessionID, Error: streamErr}, nil
	}

	state, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &TurnResult{
		Success:               true,
		SessionID:             sessionID,
		Messages:              state.Messages,
		State:                 state.CurrentNode,
		IsComplete:            state.IsComplete,
		RequiresUserInput:     state.RequiresUserInput,
		SessionEnded:          state.SessionEnded,
		ClassificationResults: state.ClassificationResults,
		PrescriptionData:      state.PrescriptionData,
		InsurancePremium:      state.InsurancePremiumDetails,
	}, nil
}

// run executes the graph for one turn.
func (e *Engine) run(ctx context.Context, state *models.SessionState, events chan<- stream.Event) {
	defer close(events)

	sessionID := state.SessionID
	emit := func(event stream.Event) {
		select {
		case events <- event:
		case <-ctx.Done():
		}
	}
	streamer := stream.NewStreamer(sessionID, state.Transient, emit)

	if e.instruments != nil && e.instruments.TurnsTotal != nil {
		e.instruments.TurnsTotal.Add(ctx, 1)
	}

	current := models.NodeInitial
	for step := 0; ; step++ {
		// Cancellation aborts at any suspension point: no partial persist,
		// stream closes, last persisted state stays intact.
		if ctx.Err() != nil {
			slog.Info("Turn cancelled, discarding partial state",
				"session_id", sessionID, "node", current)
			return
		}
		if step >= maxStepsPerTurn {
			streamer.Error(fmt.Errorf("workflow exceeded %d steps in one turn", maxStepsPerTurn))
			return
		}

		e.executor.Execute(ctx, current, state)
		streamer.Process(stream.Chunk{Node: current, State: state.Flat()})

		if IsTerminal(current) {
			break
		}

		next, err := e.router.Route(current, state)
		if err != nil {
			// Dispatcher-level failure is fatal: emit an error event and end
			// the turn without persistence.
			slog.Error("Routing failed", "session_id", sessionID, "node", current, "error", err)
			streamer.Error(err)
			return
		}

		if e.instruments != nil && e.instruments.NodeTransitions != nil {
			e.instruments.NodeTransitions.Add(ctx, 1, metric.WithAttributes(
				attribute.String("from", current),
				attribute.String("to", next),
			))
		}
		slog.Debug("Node transition", "session_id", sessionID, "from", current, "to", next)
		current = next
	}

	if ctx.Err() != nil {
		return
	}

	e.sessions.DeduplicateMessages(state)
	if err := e.sessions.Save(ctx, state); err != nil {
		slog.Error("Failed to persist final state", "session_id", sessionID, "error", err)
		streamer.Error(err)
		return
	}
	slog.Info("Turn completed", "session_id", sessionID, "final_node", current)
}
