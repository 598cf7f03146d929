// Package store provides session-state persistence backends. The engine
// performs exactly one Save per user turn; Load may run concurrently across
// sessions.
package store

import (
	"context"
	"errors"

	"github.com/sasya-arogya/engine/pkg/models"
)

// ErrNotFound is returned by Load for a session id that has never been saved.
var ErrNotFound = errors.New("session not found")

// Store is the abstract session persistence used by the session manager.
// Implementations must be safe for concurrent use across sessions; the
// session manager serialises writes per session id.
type Store interface {
	Load(ctx context.Context, sessionID string) (*models.SessionState, error)
	Save(ctx context.Context, state *models.SessionState) error
	Close() error
}
