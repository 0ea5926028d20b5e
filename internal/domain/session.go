package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImportKind identifies the catalog record type a session imports.
type ImportKind string

const (
	ImportKindProducts ImportKind = "products"
)

// WorkflowState is the current position of a session in the import workflow.
type WorkflowState string

const (
	StateInitialized  WorkflowState = "initialized"
	StateAnalyzing    WorkflowState = "analyzing"
	StateMapped       WorkflowState = "mapped"
	StateValidating   WorkflowState = "validating"
	StateRecovering   WorkflowState = "recovering"
	StatePreviewReady WorkflowState = "preview_ready"
	StateExecuting    WorkflowState = "executing"
	StateCompleted    WorkflowState = "completed"
	StateFailed       WorkflowState = "failed"
)

// transitions lists the allowed successor states for each workflow state.
// Every state may additionally move to StateFailed.
var transitions = map[WorkflowState][]WorkflowState{
	StateInitialized:  {StateAnalyzing},
	StateAnalyzing:    {StateMapped},
	StateMapped:       {StateValidating, StatePreviewReady},
	StateValidating:   {StateRecovering, StatePreviewReady},
	StateRecovering:   {StateRecovering, StatePreviewReady},
	StatePreviewReady: {StateExecuting},
	StateExecuting:    {StateCompleted},
	StateCompleted:    {},
	StateFailed:       {},
}

// CanTransitionTo reports whether the workflow allows moving to next.
func (s WorkflowState) CanTransitionTo(next WorkflowState) bool {
	if next == StateFailed {
		return s != StateCompleted
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s WorkflowState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Row holds one uploaded record keyed by source column name.
type Row map[string]string

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	cloned := make(Row, len(r))
	for k, v := range r {
		cloned[k] = v
	}
	return cloned
}

// ImportSession is one user's in-progress bulk-import attempt. All mutation
// happens through the session store; the struct itself is a value that is
// copied in and out of it.
type ImportSession struct {
	ID         uuid.UUID         `json:"id"`
	OwnerID    string            `json:"ownerId"`
	Kind       ImportKind        `json:"kind"`
	State      WorkflowState     `json:"state"`
	FileName   string            `json:"fileName,omitempty"`
	Columns    []string          `json:"columns,omitempty"`
	Rows       []Row             `json:"rows,omitempty"`
	Mappings   []FieldMapping    `json:"mappings,omitempty"`
	Errors     []ValidationError `json:"errors,omitempty"`
	FixedCount int               `json:"fixedCount"`
	Revision   int64             `json:"revision"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`

	// pending holds typed events queued during a mutation. The store drains
	// them and publishes them under the session lock, right after the
	// session_updated event, so per-session arrival order always matches
	// revision order.
	pending []Event
}

// QueueEvent records a typed event to be published with the mutation that
// produced it. The revision is stamped by the store once the mutation
// commits; queued events on an aborted mutation are discarded with it.
func (s *ImportSession) QueueEvent(t EventType, meta map[string]any) {
	s.pending = append(s.pending, Event{
		Type:      t,
		SessionID: s.ID,
		Meta:      meta,
		At:        time.Now(),
	})
}

// DrainEvents returns and clears the queued events.
func (s *ImportSession) DrainEvents() []Event {
	out := s.pending
	s.pending = nil
	return out
}

// NewImportSession creates a session in the initialized state at revision 1.
func NewImportSession(ownerID string, kind ImportKind) ImportSession {
	now := time.Now()
	return ImportSession{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Kind:      kind,
		State:     StateInitialized,
		Revision:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can read a consistent snapshot
// without holding the session lock.
func (s ImportSession) Clone() ImportSession {
	cloned := s
	cloned.Columns = append([]string(nil), s.Columns...)
	if s.Rows != nil {
		cloned.Rows = make([]Row, len(s.Rows))
		for i, row := range s.Rows {
			cloned.Rows[i] = row.Clone()
		}
	}
	cloned.Mappings = append([]FieldMapping(nil), s.Mappings...)
	if s.Errors != nil {
		cloned.Errors = make([]ValidationError, len(s.Errors))
		for i, ve := range s.Errors {
			cloned.Errors[i] = ve.Clone()
		}
	}
	// Queued events belong to the mutation in flight, never to snapshots.
	cloned.pending = nil
	return cloned
}

// SourceFor returns the source column mapped to the given target field.
func (s ImportSession) SourceFor(targetField string) (string, bool) {
	for _, m := range s.Mappings {
		if m.TargetField == targetField {
			return m.SourceColumn, true
		}
	}
	return "", false
}

// ValueAt returns the raw cell value for a target field at the given row.
// The second return is false when the field is not mapped or the row index
// is out of range.
func (s ImportSession) ValueAt(rowIndex int, targetField string) (string, bool) {
	if rowIndex < 0 || rowIndex >= len(s.Rows) {
		return "", false
	}
	source, ok := s.SourceFor(targetField)
	if !ok {
		return "", false
	}
	return s.Rows[rowIndex][source], true
}

// SetValue writes a raw cell value for a target field at the given row.
func (s *ImportSession) SetValue(rowIndex int, targetField, value string) bool {
	if rowIndex < 0 || rowIndex >= len(s.Rows) {
		return false
	}
	source, ok := s.SourceFor(targetField)
	if !ok {
		// Unmapped fields are stored under their own name so a manual fix
		// can still supply values the file never carried.
		source = targetField
	}
	if s.Rows[rowIndex] == nil {
		s.Rows[rowIndex] = Row{}
	}
	s.Rows[rowIndex][source] = value
	return true
}

// UnresolvedErrors returns unresolved validation errors of the given
// severity. An empty severity matches all severities.
func (s ImportSession) UnresolvedErrors(severity Severity) []ValidationError {
	var out []ValidationError
	for _, ve := range s.Errors {
		if ve.Resolved {
			continue
		}
		if severity != "" && ve.Severity != severity {
			continue
		}
		out = append(out, ve)
	}
	return out
}

// MeanMappingConfidence averages per-field confidence across all mappings.
func (s ImportSession) MeanMappingConfidence() float64 {
	if len(s.Mappings) == 0 {
		return 0
	}
	var sum float64
	for _, m := range s.Mappings {
		sum += m.Confidence
	}
	return sum / float64(len(s.Mappings))
}
