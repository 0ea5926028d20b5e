package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/importflow/internal/domain"
	"github.com/rpattn/importflow/internal/session"
	"github.com/rpattn/importflow/internal/validation"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(sessionID uuid.UUID, ev domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) CloseSession(sessionID uuid.UUID) {}

func (p *recordingPublisher) ofType(t domain.EventType) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// seedSession stores a session in the recovering state with identity
// mappings for the given fields and a freshly validated error list.
func seedSession(t *testing.T, store session.Store, engine *validation.Engine, rows []domain.Row, fields ...string) domain.ImportSession {
	t.Helper()
	sess, err := store.Create(context.Background(), "owner-1", domain.ImportKindProducts)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	seeded, err := store.Mutate(context.Background(), sess.ID, session.RevisionAny, func(s *domain.ImportSession) error {
		s.State = domain.StateRecovering
		s.Rows = rows
		for _, f := range fields {
			s.Mappings = append(s.Mappings, domain.FieldMapping{
				SourceColumn: f,
				TargetField:  f,
				Confidence:   1,
				Provenance:   domain.ProvenanceManual,
			})
		}
		s.Errors = engine.Validate(*s)
		return nil
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return seeded
}

func newTestService(t *testing.T) (*Service, session.Store, *validation.Engine, *recordingPublisher) {
	t.Helper()
	engine := validation.NewEngine()
	pub := &recordingPublisher{}
	store := session.NewMemoryStore(pub, 0, quietLogger())
	svc := NewService(store, engine, 0.7, quietLogger())
	return svc, store, engine, pub
}

func TestFixSingleResolvesError(t *testing.T) {
	svc, store, engine, pub := newTestService(t)
	seeded := seedSession(t, store, engine, []domain.Row{
		{"sku": "SKU-1", "name": "Widget", "price": "abc"},
	}, "sku", "name", "price")

	row, err := svc.FixSingle(context.Background(), seeded.ID, 0, "price", "19.99")
	if err != nil {
		t.Fatalf("fix failed: %v", err)
	}
	if row["price"] != "19.99" {
		t.Fatalf("expected updated row, got %+v", row)
	}

	current, _ := store.Get(context.Background(), seeded.ID)
	if current.Revision != seeded.Revision+1 {
		t.Fatalf("expected one revision bump, got %d -> %d", seeded.Revision, current.Revision)
	}
	if got := len(current.UnresolvedErrors("")); got != 0 {
		t.Fatalf("expected error resolved, %d remain: %+v", got, current.Errors)
	}
	if current.FixedCount != 1 {
		t.Fatalf("expected fixed count 1, got %d", current.FixedCount)
	}

	fixed := pub.ofType(domain.EventErrorFixed)
	if len(fixed) != 1 {
		t.Fatalf("expected one error_fixed event, got %+v", fixed)
	}
	if fixed[0].Revision != current.Revision {
		t.Fatalf("error_fixed must carry the committed revision %d, got %+v", current.Revision, fixed[0])
	}
}

func TestFixSingleCanIntroduceNewError(t *testing.T) {
	svc, store, engine, _ := newTestService(t)
	seeded := seedSession(t, store, engine, []domain.Row{
		{"sku": "SKU-1", "name": "Widget", "price": "abc"},
	}, "sku", "name", "price")

	// Parses as a number now, but violates the minimum.
	if _, err := svc.FixSingle(context.Background(), seeded.ID, 0, "price", "0"); err != nil {
		t.Fatalf("fix failed: %v", err)
	}

	current, _ := store.Get(context.Background(), seeded.ID)
	unresolved := current.UnresolvedErrors("")
	if len(unresolved) != 1 || unresolved[0].Rule != domain.RuleRange {
		t.Fatalf("expected a fresh range error, got %+v", unresolved)
	}
	if current.FixedCount != 1 {
		t.Fatalf("expected type error counted as fixed, got %d", current.FixedCount)
	}
}

func TestFixSingleOutOfRangeIndex(t *testing.T) {
	svc, store, engine, _ := newTestService(t)
	seeded := seedSession(t, store, engine, []domain.Row{
		{"sku": "SKU-1", "name": "Widget", "price": "1.00"},
	}, "sku", "name", "price")

	_, err := svc.FixSingle(context.Background(), seeded.ID, 5, "price", "2.00")
	if !errors.Is(err, domain.ErrOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}

	current, _ := store.Get(context.Background(), seeded.ID)
	if current.Revision != seeded.Revision {
		t.Fatalf("failed fix must not bump revision: %d -> %d", seeded.Revision, current.Revision)
	}
}

func TestFixRejectedWhileExecuting(t *testing.T) {
	svc, store, engine, _ := newTestService(t)
	seeded := seedSession(t, store, engine, []domain.Row{
		{"sku": "SKU-1", "name": "Widget", "price": "1.00"},
	}, "sku", "name", "price")

	if _, err := store.Mutate(context.Background(), seeded.ID, session.RevisionAny, func(s *domain.ImportSession) error {
		s.State = domain.StateExecuting
		return nil
	}); err != nil {
		t.Fatalf("state change failed: %v", err)
	}

	if _, err := svc.FixSingle(context.Background(), seeded.ID, 0, "price", "2.00"); !errors.Is(err, domain.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
}

func TestFixBulkPartialFailure(t *testing.T) {
	svc, store, engine, _ := newTestService(t)
	seeded := seedSession(t, store, engine, []domain.Row{
		{"sku": "SKU-1", "name": "", "price": "abc"},
		{"sku": "SKU-2", "name": "Gadget", "price": "free"},
	}, "sku", "name", "price")

	result, err := svc.FixBulk(context.Background(), seeded.ID, []FixRequest{
		{Row: 0, Field: "name", Value: "Widget"},
		{Row: 0, Field: "price", Value: "9.99"},
		{Row: 1, Field: "price", Value: "4.99"},
		{Row: 99, Field: "price", Value: "1.00"},
	})
	if err != nil {
		t.Fatalf("bulk fix failed: %v", err)
	}
	if len(result.Fixed) != 3 {
		t.Fatalf("expected 3 applied fixes, got %+v", result.Fixed)
	}
	if len(result.Failed) != 1 || result.Failed[0].Row != 99 {
		t.Fatalf("expected row 99 itemized as failed, got %+v", result.Failed)
	}

	current, _ := store.Get(context.Background(), seeded.ID)
	if current.Revision != seeded.Revision+1 {
		t.Fatalf("bulk fix must bump revision exactly once: %d -> %d", seeded.Revision, current.Revision)
	}
	if got := len(current.UnresolvedErrors("")); got != 0 {
		t.Fatalf("expected all errors resolved, %d remain: %+v", got, current.Errors)
	}
}

func TestFixBulkNothingAppliedKeepsRevision(t *testing.T) {
	svc, store, engine, pub := newTestService(t)
	seeded := seedSession(t, store, engine, []domain.Row{
		{"sku": "SKU-1", "name": "Widget", "price": "1.00"},
	}, "sku", "name", "price")

	result, err := svc.FixBulk(context.Background(), seeded.ID, []FixRequest{
		{Row: -1, Field: "price", Value: "1.00"},
		{Row: 7, Field: "price", Value: "1.00"},
	})
	if err != nil {
		t.Fatalf("bulk fix failed: %v", err)
	}
	if len(result.Fixed) != 0 || len(result.Failed) != 2 {
		t.Fatalf("expected only failures, got %+v", result)
	}

	current, _ := store.Get(context.Background(), seeded.ID)
	if current.Revision != seeded.Revision {
		t.Fatalf("no-op bulk fix must not bump revision: %d -> %d", seeded.Revision, current.Revision)
	}
	if fixed := pub.ofType(domain.EventErrorFixed); len(fixed) != 0 {
		t.Fatalf("no-op bulk fix must not publish, got %+v", fixed)
	}
}

func TestApplyAutoFixesHonorsConfidenceFloor(t *testing.T) {
	svc, store, engine, _ := newTestService(t)
	// Currency strip suggests at 0.9; the duplicate-sku suffix sits at 0.5
	// and must stay untouched under the 0.7 floor.
	seeded := seedSession(t, store, engine, []domain.Row{
		{"sku": "SKU-1", "name": "Widget", "price": "$10.00"},
		{"sku": "SKU-1", "name": "Gadget", "price": "5.00"},
	}, "sku", "name", "price")

	applied, err := svc.ApplyAutoFixes(context.Background(), seeded.ID, 0)
	if err != nil {
		t.Fatalf("auto fix failed: %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected 1 applied fix, got %d", applied)
	}

	current, _ := store.Get(context.Background(), seeded.ID)
	if got, _ := current.ValueAt(0, "price"); got != "10.00" {
		t.Fatalf("expected stripped price, got %q", got)
	}
	unresolved := current.UnresolvedErrors("")
	if len(unresolved) != 1 || unresolved[0].Rule != domain.RuleUnique {
		t.Fatalf("expected only the duplicate to remain, got %+v", unresolved)
	}
}

func TestApplyAutoFixesNothingEligible(t *testing.T) {
	svc, store, engine, _ := newTestService(t)
	seeded := seedSession(t, store, engine, []domain.Row{
		{"sku": "A", "name": "Widget", "price": "1.00"},
		{"sku": "A", "name": "Gadget", "price": "2.00"},
	}, "sku", "name", "price")

	applied, err := svc.ApplyAutoFixes(context.Background(), seeded.ID, 0)
	if err != nil {
		t.Fatalf("auto fix failed: %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected nothing applied below the floor, got %d", applied)
	}

	current, _ := store.Get(context.Background(), seeded.ID)
	if current.Revision != seeded.Revision {
		t.Fatalf("no-op auto fix must not bump revision: %d -> %d", seeded.Revision, current.Revision)
	}
}

func TestFixingDuplicateReRunsUniquenessPass(t *testing.T) {
	svc, store, engine, _ := newTestService(t)
	seeded := seedSession(t, store, engine, []domain.Row{
		{"sku": "A", "name": "W1", "price": "1.00"},
		{"sku": "A", "name": "W2", "price": "2.00"},
		{"sku": "B", "name": "W3", "price": "3.00"},
	}, "sku", "name", "price")

	// Renaming the duplicate resolves row 1.
	if _, err := svc.FixSingle(context.Background(), seeded.ID, 1, "sku", "C"); err != nil {
		t.Fatalf("fix failed: %v", err)
	}
	current, _ := store.Get(context.Background(), seeded.ID)
	if got := len(current.UnresolvedErrors("")); got != 0 {
		t.Fatalf("expected duplicate resolved, got %+v", current.Errors)
	}

	// Renaming it onto another existing value re-triggers the check. Row 1
	// is now the first occurrence of "B", so row 2 gets flagged.
	if _, err := svc.FixSingle(context.Background(), current.ID, 1, "sku", "B"); err != nil {
		t.Fatalf("fix failed: %v", err)
	}
	current, _ = store.Get(context.Background(), seeded.ID)
	unresolved := current.UnresolvedErrors("")
	if len(unresolved) != 1 || unresolved[0].Rule != domain.RuleUnique || unresolved[0].Row != 2 {
		t.Fatalf("expected re-triggered duplicate on row 2, got %+v", unresolved)
	}
}

func TestConcurrentFixesOnDifferentRows(t *testing.T) {
	svc, store, engine, pub := newTestService(t)
	seeded := seedSession(t, store, engine, []domain.Row{
		{"sku": "SKU-1", "name": "Widget", "price": "abc"},
		{"sku": "SKU-2", "name": "Gadget", "price": "free"},
	}, "sku", "name", "price")

	var wg sync.WaitGroup
	wg.Add(2)
	for _, fix := range []FixRequest{
		{Row: 0, Field: "price", Value: "9.99"},
		{Row: 1, Field: "price", Value: "19.99"},
	} {
		go func(fix FixRequest) {
			defer wg.Done()
			if _, err := svc.FixSingle(context.Background(), seeded.ID, fix.Row, fix.Field, fix.Value); err != nil {
				t.Errorf("fix failed: %v", err)
			}
		}(fix)
	}
	wg.Wait()

	current, _ := store.Get(context.Background(), seeded.ID)
	if current.Revision != seeded.Revision+2 {
		t.Fatalf("expected revision +2, got %d -> %d", seeded.Revision, current.Revision)
	}
	if v, _ := current.ValueAt(0, "price"); v != "9.99" {
		t.Fatalf("lost update on row 0: %q", v)
	}
	if v, _ := current.ValueAt(1, "price"); v != "19.99" {
		t.Fatalf("lost update on row 1: %q", v)
	}
	if got := len(current.UnresolvedErrors("")); got != 0 {
		t.Fatalf("expected both errors resolved, got %+v", current.Errors)
	}

	// Typed events are published under the session lock, so their arrival
	// order matches revision order even across concurrent fixes.
	fixed := pub.ofType(domain.EventErrorFixed)
	if len(fixed) != 2 {
		t.Fatalf("expected two error_fixed events, got %+v", fixed)
	}
	if fixed[0].Revision >= fixed[1].Revision {
		t.Fatalf("error_fixed events out of revision order: %d then %d", fixed[0].Revision, fixed[1].Revision)
	}
}

func TestSuggestFixesReturnsUnresolvedOnly(t *testing.T) {
	svc, store, engine, _ := newTestService(t)
	seeded := seedSession(t, store, engine, []domain.Row{
		{"sku": "SKU-1", "name": "", "price": "abc"},
	}, "sku", "name", "price")

	if _, err := svc.FixSingle(context.Background(), seeded.ID, 0, "name", "Widget"); err != nil {
		t.Fatalf("fix failed: %v", err)
	}

	suggestions, err := svc.SuggestFixes(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("suggest failed: %v", err)
	}
	if len(suggestions) != 1 || suggestions[0].Field != "price" {
		t.Fatalf("expected only the price error, got %+v", suggestions)
	}
}
