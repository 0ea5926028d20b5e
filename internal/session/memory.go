package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/importflow/internal/domain"
)

// entry pairs a session with its lock. Mutations on the same session
// serialize on mu; different sessions proceed fully in parallel.
type entry struct {
	mu      sync.Mutex
	session domain.ImportSession
}

// MemoryStore is the in-process Store implementation. Sessions are
// ephemeral; a janitor sweeps ones idle past the TTL.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*entry

	publisher Publisher
	ttl       time.Duration
	log       *logrus.Logger
}

// NewMemoryStore creates a store publishing mutation events to publisher.
// A non-positive ttl disables expiry.
func NewMemoryStore(publisher Publisher, ttl time.Duration, log *logrus.Logger) *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[uuid.UUID]*entry),
		publisher: publisher,
		ttl:       ttl,
		log:       log,
	}
}

func (s *MemoryStore) Create(ctx context.Context, ownerID string, kind domain.ImportKind) (domain.ImportSession, error) {
	if ownerID == "" {
		return domain.ImportSession{}, fmt.Errorf("owner id is required")
	}
	if kind == "" {
		kind = domain.ImportKindProducts
	}
	sess := domain.NewImportSession(ownerID, kind)

	s.mu.Lock()
	s.sessions[sess.ID] = &entry{session: sess}
	s.mu.Unlock()

	if s.publisher != nil {
		s.publisher.Publish(sess.ID, domain.NewEvent(domain.EventSessionCreated, sess.ID, sess.Revision, map[string]any{
			"state": string(sess.State),
			"kind":  string(sess.Kind),
		}))
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (domain.ImportSession, error) {
	ent, err := s.lookup(id)
	if err != nil {
		return domain.ImportSession{}, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.session.Clone(), nil
}

func (s *MemoryStore) Mutate(ctx context.Context, id uuid.UUID, expectedRevision int64, fn func(*domain.ImportSession) error) (domain.ImportSession, error) {
	ent, err := s.lookup(id)
	if err != nil {
		return domain.ImportSession{}, err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	if expectedRevision != RevisionAny && ent.session.Revision != expectedRevision {
		return domain.ImportSession{}, fmt.Errorf("revision %d (current %d): %w",
			expectedRevision, ent.session.Revision, domain.ErrConflict)
	}

	before := ent.session
	working := ent.session.Clone()
	if err := fn(&working); err != nil {
		return domain.ImportSession{}, err
	}

	working.Revision = before.Revision + 1
	working.UpdatedAt = time.Now()
	queued := working.DrainEvents()
	ent.session = working

	// Published while the session lock is held so events for one session
	// always arrive in revision order: session_updated first, then any
	// typed events the mutation queued, all stamped with the new revision.
	if s.publisher != nil {
		s.publisher.Publish(id, domain.NewEvent(domain.EventSessionUpdated, id, working.Revision, diffSummary(before, working)))
		for _, ev := range queued {
			ev.Revision = working.Revision
			s.publisher.Publish(id, ev)
		}
	}
	return working.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}
	if s.publisher != nil {
		s.publisher.CloseSession(id)
	}
	return nil
}

// StartJanitor sweeps expired sessions until ctx is cancelled.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *MemoryStore) sweep() {
	cutoff := time.Now().Add(-s.ttl)

	s.mu.Lock()
	var expired []uuid.UUID
	for id, ent := range s.sessions {
		ent.mu.Lock()
		idle := ent.session.UpdatedAt.Before(cutoff)
		ent.mu.Unlock()
		if idle {
			expired = append(expired, id)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		if s.publisher != nil {
			s.publisher.CloseSession(id)
		}
		if s.log != nil {
			s.log.WithField("session", id).Info("expired idle session")
		}
	}
}

func (s *MemoryStore) lookup(id uuid.UUID) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return ent, nil
}

// diffSummary describes what a mutation changed. Kept coarse on purpose:
// subscribers re-read detail through the status endpoint.
func diffSummary(before, after domain.ImportSession) map[string]any {
	beforeErrs, _ := domain.CountBySeverity(before.Errors)
	afterErrs, afterWarns := domain.CountBySeverity(after.Errors)

	meta := map[string]any{
		"state":            string(after.State),
		"unresolvedErrors": afterErrs,
		"warnings":         afterWarns,
		"fixedCount":       after.FixedCount,
	}
	if before.State != after.State {
		meta["previousState"] = string(before.State)
	}
	if beforeErrs != afterErrs {
		meta["errorDelta"] = afterErrs - beforeErrs
	}
	if len(before.Rows) != len(after.Rows) {
		meta["rows"] = len(after.Rows)
	}
	return meta
}
