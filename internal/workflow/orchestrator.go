// Package workflow drives import sessions through the state machine:
// initialized → analyzing → mapped → validating → recovering →
// preview_ready → executing → completed, with failed reachable from any
// non-terminal state.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/importflow/internal/domain"
	"github.com/rpattn/importflow/internal/executor"
	"github.com/rpattn/importflow/internal/mapper"
	"github.com/rpattn/importflow/internal/session"
	"github.com/rpattn/importflow/internal/tabular"
	"github.com/rpattn/importflow/internal/validation"
)

const previewRowLimit = 10

// BatchExecutor commits a preview-ready session to the catalog.
type BatchExecutor interface {
	Execute(ctx context.Context, sess domain.ImportSession) (executor.Result, error)
}

// Config centralizes the confidence thresholds so behavior is testable by
// varying configuration alone.
type Config struct {
	// AutoAdvanceMappingConfidence is the mean mapping confidence above
	// which a clean validation skips the explicit confirmation step.
	AutoAdvanceMappingConfidence float64
}

// AnalysisResult is returned to the upload caller.
type AnalysisResult struct {
	SessionID uuid.UUID                `json:"sessionId"`
	State     domain.WorkflowState     `json:"state"`
	Revision  int64                    `json:"revision"`
	TotalRows int                      `json:"totalRows"`
	Mappings  []domain.FieldMapping    `json:"mappings"`
	Errors    []domain.ValidationError `json:"errors"`
	Preview   []domain.Row             `json:"preview"`
}

// ExecutionResult is returned by Execute.
type ExecutionResult struct {
	Success         bool                  `json:"success"`
	RecordsImported int                   `json:"recordsImported"`
	Failed          []executor.RowFailure `json:"failed,omitempty"`
	Warnings        []string              `json:"warnings,omitempty"`
}

// Orchestrator owns every workflow transition. Nothing else changes a
// session's state. Typed events are queued on the session inside each
// mutation; the store publishes them in revision order.
type Orchestrator struct {
	store     session.Store
	suggester mapper.Suggester
	engine    *validation.Engine
	batch     BatchExecutor
	cfg       Config
	log       *logrus.Logger
}

// New creates an orchestrator.
func New(store session.Store, suggester mapper.Suggester, engine *validation.Engine, batch BatchExecutor, cfg Config, log *logrus.Logger) *Orchestrator {
	if cfg.AutoAdvanceMappingConfidence <= 0 {
		cfg.AutoAdvanceMappingConfidence = 0.9
	}
	return &Orchestrator{
		store:     store,
		suggester: suggester,
		engine:    engine,
		batch:     batch,
		cfg:       cfg,
		log:       log,
	}
}

// CreateSession registers a fresh session for the owner.
func (o *Orchestrator) CreateSession(ctx context.Context, ownerID string, kind domain.ImportKind) (domain.ImportSession, error) {
	return o.store.Create(ctx, ownerID, kind)
}

// Analyze ingests the uploaded file: parse, suggest mappings, validate,
// and decide whether to auto-advance. A mean mapping confidence above the
// configured threshold combined with zero error-severity issues advances
// the session straight to preview_ready; otherwise it halts in mapped or
// moves to recovering when errors were found.
//
// A file that cannot be parsed is a caller error: the session is left
// untouched so a corrected upload can be retried.
func (o *Orchestrator) Analyze(ctx context.Context, id uuid.UUID, fileName string, data io.Reader) (AnalysisResult, error) {
	payload, err := io.ReadAll(data)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("failed to read upload: %w", err)
	}

	table, err := tabular.Parse(fileName, payload)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("%w: %v", domain.ErrBadUpload, err)
	}

	// Upload accepted: enter analyzing with the parsed rows in place.
	_, err = o.transition(ctx, id, domain.StateAnalyzing, func(sess *domain.ImportSession) error {
		sess.FileName = fileName
		sess.Columns = table.Columns
		sess.Rows = table.Rows
		sess.Errors = raggedWarnings(table)
		return nil
	})
	if err != nil {
		return AnalysisResult{}, err
	}

	suggestions := o.suggester.Suggest(ctx, table.Columns)

	_, err = o.transition(ctx, id, domain.StateMapped, func(sess *domain.ImportSession) error {
		sess.Mappings = suggestions
		sess.QueueEvent(domain.EventAnalysisComplete, map[string]any{
			"mappings":       len(sess.Mappings),
			"meanConfidence": sess.MeanMappingConfidence(),
			"totalRows":      len(sess.Rows),
		})
		return nil
	})
	if err != nil {
		return AnalysisResult{}, err
	}

	// Validation is pure, so it runs on the snapshot; the result is stored
	// in the next mutation.
	validated, err := o.store.Mutate(ctx, id, session.RevisionAny, func(sess *domain.ImportSession) error {
		sess.Errors = append(o.engine.Validate(*sess), keepParseWarnings(sess.Errors)...)
		return nil
	})
	if err != nil {
		return AnalysisResult{}, err
	}

	final, err := o.decide(ctx, validated)
	if err != nil {
		return AnalysisResult{}, err
	}

	return AnalysisResult{
		SessionID: final.ID,
		State:     final.State,
		Revision:  final.Revision,
		TotalRows: len(final.Rows),
		Mappings:  final.Mappings,
		Errors:    final.UnresolvedErrors(""),
		Preview:   previewRows(final),
	}, nil
}

// decide routes a freshly validated session: auto-advance, recovering, or
// halt in mapped pending explicit confirmation.
func (o *Orchestrator) decide(ctx context.Context, sess domain.ImportSession) (domain.ImportSession, error) {
	blocking, _ := domain.CountBySeverity(sess.Errors)
	from := sess.State

	if blocking > 0 {
		advanced, err := o.transition(ctx, sess.ID, domain.StateValidating, nil)
		if err != nil {
			return domain.ImportSession{}, err
		}
		recovering, err := o.transition(ctx, advanced.ID, domain.StateRecovering, func(s *domain.ImportSession) error {
			queueAdvanced(s, from, domain.StateRecovering, false)
			return nil
		})
		if err != nil {
			return domain.ImportSession{}, err
		}
		return recovering, nil
	}

	if sess.MeanMappingConfidence() > o.cfg.AutoAdvanceMappingConfidence {
		ready, err := o.transition(ctx, sess.ID, domain.StatePreviewReady, func(s *domain.ImportSession) error {
			queueAdvanced(s, from, domain.StatePreviewReady, true)
			s.QueueEvent(domain.EventPreviewReady, eventCounts(*s))
			return nil
		})
		if err != nil {
			return domain.ImportSession{}, err
		}
		return ready, nil
	}

	// Clean data but uncertain mapping: halt in mapped and wait for the
	// client to confirm.
	return sess, nil
}

// Confirm is the explicit client action advancing a halted session to
// preview_ready. It is rejected while blocking errors remain.
func (o *Orchestrator) Confirm(ctx context.Context, id uuid.UUID) (domain.ImportSession, error) {
	return o.transition(ctx, id, domain.StatePreviewReady, func(sess *domain.ImportSession) error {
		if blocking := sess.UnresolvedErrors(domain.SeverityError); len(blocking) > 0 {
			return fmt.Errorf("%d unresolved blocking errors: %w", len(blocking), domain.ErrPreconditionFailed)
		}
		for i := range sess.Mappings {
			sess.Mappings[i] = sess.Mappings[i].Confirm()
		}
		queueAdvanced(sess, sess.State, domain.StatePreviewReady, false)
		sess.QueueEvent(domain.EventPreviewReady, eventCounts(*sess))
		return nil
	})
}

// Execute commits the session. The executing transition is gated on zero
// unresolved error-severity validation errors; violations are rejected,
// never silently downgraded.
func (o *Orchestrator) Execute(ctx context.Context, id uuid.UUID) (ExecutionResult, error) {
	var snapshot domain.ImportSession
	_, err := o.store.Mutate(ctx, id, session.RevisionAny, func(sess *domain.ImportSession) error {
		if sess.State != domain.StatePreviewReady {
			return fmt.Errorf("session is %s, not %s: %w", sess.State, domain.StatePreviewReady, domain.ErrPreconditionFailed)
		}
		if blocking := sess.UnresolvedErrors(domain.SeverityError); len(blocking) > 0 {
			return fmt.Errorf("%d unresolved blocking errors: %w", len(blocking), domain.ErrPreconditionFailed)
		}
		snapshot = sess.Clone()
		sess.State = domain.StateExecuting
		sess.QueueEvent(domain.EventExecutionStarted, map[string]any{
			"totalRows": len(sess.Rows),
		})
		return nil
	})
	if err != nil {
		return ExecutionResult{}, err
	}

	result, err := o.batch.Execute(ctx, snapshot)
	if err != nil {
		o.Fail(ctx, id, fmt.Sprintf("execution failed: %v", err))
		return ExecutionResult{}, err
	}

	_, err = o.transition(ctx, id, domain.StateCompleted, func(sess *domain.ImportSession) error {
		sess.QueueEvent(domain.EventCompleted, map[string]any{
			"recordsImported": result.RecordsImported,
			"failedRows":      len(result.Failed),
			"warnings":        len(result.Warnings),
		})
		return nil
	})
	if err != nil {
		return ExecutionResult{}, err
	}

	return ExecutionResult{
		Success:         len(result.Failed) == 0,
		RecordsImported: result.RecordsImported,
		Failed:          result.Failed,
		Warnings:        result.Warnings,
	}, nil
}

// Fail moves the session to failed and broadcasts the reason. Safe to call
// on terminal sessions; those are left untouched.
func (o *Orchestrator) Fail(ctx context.Context, id uuid.UUID, reason string) {
	_, err := o.store.Mutate(ctx, id, session.RevisionAny, func(sess *domain.ImportSession) error {
		if sess.State.Terminal() {
			return errAlreadyTerminal
		}
		sess.State = domain.StateFailed
		sess.QueueEvent(domain.EventWorkflowError, map[string]any{"reason": reason})
		return nil
	})
	if err != nil && !errors.Is(err, errAlreadyTerminal) && o.log != nil {
		o.log.WithError(err).WithField("session", id).Error("failed to mark session failed")
	}
}

var errAlreadyTerminal = errors.New("session already terminal")

// transition applies a guarded state change plus an optional extra
// mutation in the same atomic step.
func (o *Orchestrator) transition(ctx context.Context, id uuid.UUID, next domain.WorkflowState, extra func(*domain.ImportSession) error) (domain.ImportSession, error) {
	return o.store.Mutate(ctx, id, session.RevisionAny, func(sess *domain.ImportSession) error {
		if !sess.State.CanTransitionTo(next) {
			return fmt.Errorf("%s -> %s: %w", sess.State, next, domain.ErrInvalidTransition)
		}
		if extra != nil {
			if err := extra(sess); err != nil {
				return err
			}
		}
		sess.State = next
		return nil
	})
}

// queueAdvanced records the workflow_advanced event with the auto-advance
// flag so subscribers can surface that a confirmation step was skipped.
func queueAdvanced(sess *domain.ImportSession, from, to domain.WorkflowState, auto bool) {
	meta := map[string]any{
		"to":          string(to),
		"autoAdvance": auto,
	}
	if from != "" {
		meta["from"] = string(from)
	}
	sess.QueueEvent(domain.EventWorkflowAdvanced, meta)
}

func eventCounts(sess domain.ImportSession) map[string]any {
	errorCount, warningCount := domain.CountBySeverity(sess.Errors)
	return map[string]any{
		"unresolvedErrors": errorCount,
		"warnings":         warningCount,
		"totalRows":        len(sess.Rows),
	}
}

// raggedWarnings reports rows whose cell count did not match the header.
// They are warnings, not blockers: the cells were padded deterministically.
func raggedWarnings(table tabular.Table) []domain.ValidationError {
	var out []domain.ValidationError
	for _, rowIdx := range table.Ragged {
		out = append(out, domain.ValidationError{
			Row:      rowIdx,
			Field:    "_row",
			Rule:     domain.RuleParse,
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("row %d had a different cell count than the header and was padded", rowIdx),
		})
	}
	return out
}

func keepParseWarnings(errs []domain.ValidationError) []domain.ValidationError {
	var out []domain.ValidationError
	for _, ve := range errs {
		if ve.Rule == domain.RuleParse {
			out = append(out, ve)
		}
	}
	return out
}

func previewRows(sess domain.ImportSession) []domain.Row {
	limit := previewRowLimit
	if len(sess.Rows) < limit {
		limit = len(sess.Rows)
	}
	out := make([]domain.Row, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, sess.Rows[i].Clone())
	}
	return out
}
