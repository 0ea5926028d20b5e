// Package recovery computes and applies fixes for validation errors,
// re-validating only the affected scope of the session.
package recovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/importflow/internal/domain"
	"github.com/rpattn/importflow/internal/session"
	"github.com/rpattn/importflow/internal/validation"
)

// errNothingApplied aborts a mutation that changed nothing so the revision
// counter is not bumped for a no-op.
var errNothingApplied = errors.New("no fixes applied")

// FixRequest targets one cell with a replacement value.
type FixRequest struct {
	Row   int    `json:"recordIndex"`
	Field string `json:"field"`
	Value string `json:"newValue"`
}

// FixFailure itemizes one rejected entry of a bulk request.
type FixFailure struct {
	Row    int    `json:"recordIndex"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// BulkResult reports partial success: failures never abort the batch.
type BulkResult struct {
	Fixed  []FixRequest `json:"fixedRecords"`
	Failed []FixFailure `json:"errors"`
}

// Service is the error recovery entry point. All mutations go through the
// session store; bulk operations are a single atomic mutation with one
// revision bump and one broadcast. The error_fixed event is queued inside
// the mutation so the store delivers it in revision order.
type Service struct {
	store        session.Store
	engine       *validation.Engine
	autoFixFloor float64
	log          *logrus.Logger
}

// NewService creates a recovery service. autoFixFloor is the default
// minimum confidence for ApplyAutoFixes when the caller passes none.
func NewService(store session.Store, engine *validation.Engine, autoFixFloor float64, log *logrus.Logger) *Service {
	if autoFixFloor <= 0 {
		autoFixFloor = 0.7
	}
	return &Service{
		store:        store,
		engine:       engine,
		autoFixFloor: autoFixFloor,
		log:          log,
	}
}

// SuggestFixes returns the session's unresolved errors, each carrying the
// fix suggestion attached during validation.
func (s *Service) SuggestFixes(ctx context.Context, id uuid.UUID) ([]domain.ValidationError, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.UnresolvedErrors(""), nil
}

// FixSingle writes a new value into one cell and re-validates the affected
// scope. Returns the updated row, or domain.ErrOutOfRange for a bad index.
func (s *Service) FixSingle(ctx context.Context, id uuid.UUID, rowIndex int, field, value string) (domain.Row, error) {
	var updated domain.Row
	_, err := s.store.Mutate(ctx, id, session.RevisionAny, func(sess *domain.ImportSession) error {
		if err := guardFixable(sess); err != nil {
			return err
		}
		if rowIndex < 0 || rowIndex >= len(sess.Rows) {
			return fmt.Errorf("row %d: %w", rowIndex, domain.ErrOutOfRange)
		}
		s.applyFix(sess, rowIndex, field, value)
		updated = sess.Rows[rowIndex].Clone()
		queueFixed(sess, 1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// FixBulk applies each entry independently in one atomic mutation. A
// failure on one entry does not abort the batch; the result itemizes
// per-entry failure reasons.
func (s *Service) FixBulk(ctx context.Context, id uuid.UUID, fixes []FixRequest) (BulkResult, error) {
	var result BulkResult
	_, err := s.store.Mutate(ctx, id, session.RevisionAny, func(sess *domain.ImportSession) error {
		if err := guardFixable(sess); err != nil {
			return err
		}
		result = BulkResult{}
		for _, fix := range fixes {
			if fix.Row < 0 || fix.Row >= len(sess.Rows) {
				result.Failed = append(result.Failed, FixFailure{
					Row:    fix.Row,
					Field:  fix.Field,
					Reason: fmt.Sprintf("row index %d out of range", fix.Row),
				})
				continue
			}
			s.applyFix(sess, fix.Row, fix.Field, fix.Value)
			result.Fixed = append(result.Fixed, fix)
		}
		if len(result.Fixed) == 0 {
			return errNothingApplied
		}
		queueFixed(sess, len(result.Fixed))
		return nil
	})
	if err != nil {
		if errors.Is(err, errNothingApplied) {
			return result, nil
		}
		return BulkResult{}, err
	}
	return result, nil
}

// ApplyAutoFixes applies every unresolved error's suggestion whose
// confidence is at or above minConfidence, as one atomic mutation. A
// non-positive minConfidence uses the configured floor.
func (s *Service) ApplyAutoFixes(ctx context.Context, id uuid.UUID, minConfidence float64) (int, error) {
	if minConfidence <= 0 {
		minConfidence = s.autoFixFloor
	}
	applied := 0
	_, err := s.store.Mutate(ctx, id, session.RevisionAny, func(sess *domain.ImportSession) error {
		if err := guardFixable(sess); err != nil {
			return err
		}
		applied = 0
		// Snapshot first: applying a fix rewrites the error list.
		var eligible []domain.ValidationError
		for _, ve := range sess.Errors {
			if ve.Resolved || ve.Fix == nil {
				continue
			}
			if ve.Fix.Action == domain.FixManual || ve.Fix.Confidence < minConfidence {
				continue
			}
			eligible = append(eligible, ve.Clone())
		}
		for _, ve := range eligible {
			s.applyFix(sess, ve.Row, ve.Field, ve.Fix.Value)
			applied++
		}
		if applied == 0 {
			return errNothingApplied
		}
		queueFixed(sess, applied)
		return nil
	})
	if err != nil {
		if errors.Is(err, errNothingApplied) {
			return 0, nil
		}
		return 0, err
	}
	return applied, nil
}

// guardFixable rejects fixes once the session has entered execution or a
// terminal state.
func guardFixable(sess *domain.ImportSession) error {
	if sess.State == domain.StateExecuting || sess.State.Terminal() {
		return fmt.Errorf("state %s: %w", sess.State, domain.ErrPreconditionFailed)
	}
	return nil
}

// applyFix writes the value and merges the scoped re-validation result
// into the session's error list. Uniqueness-constrained fields trigger a
// full-session uniqueness re-check since resolving one duplicate can
// resolve or re-trigger others.
func (s *Service) applyFix(sess *domain.ImportSession, rowIndex int, field, value string) {
	sess.SetValue(rowIndex, field, value)

	fresh := s.engine.ValidateCell(*sess, rowIndex, field)
	inScope := cellScope(rowIndex, field)
	if s.engine.IsUniqueField(field) {
		fresh = append(fresh, s.engine.ValidateUnique(*sess, field)...)
		inScope = orScope(inScope, uniqueScope(field))
	}
	mergeErrors(sess, fresh, inScope)
}

type scopeFunc func(domain.ValidationError) bool

// cellScope covers the cell's own rules plus the cross-field business rule
// the field participates in. Uniqueness errors are excluded; they belong
// to uniqueScope.
func cellScope(rowIndex int, field string) scopeFunc {
	return func(e domain.ValidationError) bool {
		if e.Row != rowIndex || e.Rule == domain.RuleUnique {
			return false
		}
		if e.Field == field {
			return true
		}
		// Changing price can invalidate or satisfy the sale price rule.
		return e.Rule == domain.RuleBusiness && e.Field == "sale_price" &&
			(field == "price" || field == "sale_price")
	}
}

func uniqueScope(field string) scopeFunc {
	return func(e domain.ValidationError) bool {
		return e.Field == field && e.Rule == domain.RuleUnique
	}
}

func orScope(a, b scopeFunc) scopeFunc {
	return func(e domain.ValidationError) bool {
		return a(e) || b(e)
	}
}

// mergeErrors reconciles fresh scoped results with the stored error list:
// in-scope errors that no longer fire are marked resolved, previously
// resolved ones that fire again are reopened, and new failures are
// appended. Errors outside the scope are untouched.
func mergeErrors(sess *domain.ImportSession, fresh []domain.ValidationError, inScope scopeFunc) {
	freshByKey := make(map[string]domain.ValidationError, len(fresh))
	for _, ve := range fresh {
		freshByKey[ve.Key()] = ve
	}

	seen := make(map[string]struct{}, len(fresh))
	for i := range sess.Errors {
		existing := &sess.Errors[i]
		if !inScope(*existing) {
			continue
		}
		key := existing.Key()
		if current, ok := freshByKey[key]; ok {
			// Still failing (or failing again after the value changed).
			if existing.Resolved {
				existing.Resolved = false
			}
			existing.Message = current.Message
			existing.Fix = current.Fix
			seen[key] = struct{}{}
			continue
		}
		if !existing.Resolved {
			existing.Resolved = true
			sess.FixedCount++
		}
	}

	for _, ve := range fresh {
		if _, ok := seen[ve.Key()]; ok {
			continue
		}
		sess.Errors = append(sess.Errors, ve)
	}
}

func queueFixed(sess *domain.ImportSession, count int) {
	errorCount, warningCount := domain.CountBySeverity(sess.Errors)
	sess.QueueEvent(domain.EventErrorFixed, map[string]any{
		"applied":          count,
		"unresolvedErrors": errorCount,
		"warnings":         warningCount,
		"fixedCount":       sess.FixedCount,
	})
}
