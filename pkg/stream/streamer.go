package stream

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/sasya-arogya/engine/pkg/models"
)

// maxRecentResponseHashes bounds the rolling duplicate-suppression buffer.
const maxRecentResponseHashes = 3

// Chunk is one per-node state update from the engine.
type Chunk struct {
	Node  string
	State map[string]any
}

// Streamer consumes a turn's chunks and emits the filtered event stream.
// One Streamer serves one turn of one session; the duplicate-suppression
// buffers live on the session's transient record so they span turns.
type Streamer struct {
	sessionID string
	guard     *models.Transient
	emit      func(Event)
	previous  map[string]any

	// lastOverlay tracks the overlay seen on the previous chunk so an
	// unchanged overlay riding along in later chunks is not re-examined.
	lastOverlay string
}

// NewStreamer creates a streamer for one turn.
func NewStreamer(sessionID string, guard *models.Transient, emit func(Event)) *Streamer {
	if guard == nil {
		guard = models.NewTransient()
	}
	return &Streamer{
		sessionID: sessionID,
		guard:     guard,
		emit:      emit,
		previous:  map[string]any{},
	}
}

// Process handles one chunk: attention overlay first (before filtering drops
// it), then the filtered state delta, then the assistant response with its
// three suppression rules.
func (s *Streamer) Process(chunk Chunk) {
	s.emitAttentionOverlay(chunk)

	delta := Delta(chunk.State, s.previous)
	if filtered := FilterStateUpdate(delta); len(filtered) > 0 {
		s.emit(Event{Type: EventStateUpdate, SessionID: s.sessionID, Data: filtered})
	}

	s.emitAssistantResponse(chunk)

	s.previous = CleanCopy(chunk.State)
}

// Error emits an error event and terminates the logical stream.
func (s *Streamer) Error(err error) {
	s.emit(Event{Type: EventError, SessionID: s.sessionID, Error: err.Error()})
}

// emitAttentionOverlay emits the overlay at most once per unique
// (overlay hash, session, source node). An overlay equal to the last one
// seen is skipped whatever its source node.
func (s *Streamer) emitAttentionOverlay(chunk Chunk) {
	overlay := findOverlay(chunk.State)
	if overlay == "" || overlay == s.lastOverlay {
		return
	}
	s.lastOverlay = overlay

	prefix := overlay
	if len(prefix) > 100 {
		prefix = prefix[:100]
	}
	hash := contentHash(prefix + s.sessionID + chunk.Node)
	if _, seen := s.guard.StreamedOverlays[hash]; seen {
		slog.Debug("Skipped duplicate attention overlay",
			"session_id", s.sessionID, "source_node", chunk.Node)
		return
	}
	s.guard.StreamedOverlays[hash] = struct{}{}

	data := map[string]any{
		"attention_overlay": overlay,
		"source_node":       chunk.Node,
	}
	if v, ok := chunk.State["disease_name"]; ok {
		data["disease_name"] = v
	}
	if v, ok := chunk.State["confidence"]; ok {
		data["confidence"] = v
	}
	s.emit(Event{Type: EventAttentionOverlay, SessionID: s.sessionID, Data: data})
	slog.Info("Streamed attention overlay", "session_id", s.sessionID, "source_node", chunk.Node)
}

// emitAssistantResponse applies the three suppressions in order: content
// hash seen recently, node deferred streaming, intermediate status.
func (s *Streamer) emitAssistantResponse(chunk Chunk) {
	raw, ok := chunk.State["assistant_response"]
	if !ok {
		return
	}
	response, _ := raw.(string)
	if strings.TrimSpace(response) == "" {
		return
	}

	hash := contentHash(response)
	for _, recent := range s.guard.RecentResponseHashes {
		if recent == hash {
			slog.Debug("Skipped duplicate assistant response", "session_id", s.sessionID)
			return
		}
	}

	// Absent stream_immediately means stream by default; nodes opt out.
	if streamImmediately, present := chunk.State["stream_immediately"].(bool); present && !streamImmediately {
		slog.Debug("Node deferred response streaming", "session_id", s.sessionID, "node", chunk.Node)
		return
	}

	if status, _ := chunk.State["response_status"].(string); status == string(models.ResponseIntermediate) {
		slog.Debug("Skipped intermediate response", "session_id", s.sessionID, "node", chunk.Node)
		return
	}

	s.guard.RecentResponseHashes = append(s.guard.RecentResponseHashes, hash)
	if len(s.guard.RecentResponseHashes) > maxRecentResponseHashes {
		s.guard.RecentResponseHashes = s.guard.RecentResponseHashes[1:]
	}

	s.emit(Event{
		Type:      EventAssistantResponse,
		SessionID: s.sessionID,
		Data:      map[string]any{"assistant_response": response},
	})
}

// findOverlay looks for a non-empty overlay at the top level or nested in a
// result map (classification results carry it before the filter prunes it).
func findOverlay(state map[string]any) string {
	if overlay, ok := state["attention_overlay"].(string); ok && overlay != "" {
		return overlay
	}
	for _, value := range state {
		if nested, ok := value.(map[string]any); ok {
			if overlay, ok := nested["attention_overlay"].(string); ok && overlay != "" {
				return overlay
			}
		}
	}
	return ""
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
