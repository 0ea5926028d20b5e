// Package session provides keyed, versioned storage for import sessions.
// All other components mutate session state exclusively through the Store
// interface.
package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/rpattn/importflow/internal/domain"
)

// RevisionAny skips the optimistic concurrency check. Used by server-driven
// mutations that already serialize on the session lock.
const RevisionAny int64 = -1

// Publisher receives a notification for every successful mutation. The
// broadcast hub implements it.
type Publisher interface {
	Publish(sessionID uuid.UUID, ev domain.Event)
	CloseSession(sessionID uuid.UUID)
}

// Store defines the lifecycle surface for import sessions.
type Store interface {
	// Create registers a new session in the initialized state.
	Create(ctx context.Context, ownerID string, kind domain.ImportKind) (domain.ImportSession, error)
	// Get returns a consistent snapshot of the session.
	Get(ctx context.Context, id uuid.UUID) (domain.ImportSession, error)
	// Mutate applies an atomic read-modify-write under the session's lock.
	// It returns domain.ErrConflict when expectedRevision is set and stale.
	// Every successful call bumps the revision exactly once and publishes
	// a session_updated event carrying the new revision and a diff summary.
	Mutate(ctx context.Context, id uuid.UUID, expectedRevision int64, fn func(*domain.ImportSession) error) (domain.ImportSession, error)
	// Delete removes the session and closes its subscribers.
	Delete(ctx context.Context, id uuid.UUID) error
}
