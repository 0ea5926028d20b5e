// Package validation inspects mapped session rows and produces typed
// errors. Validate is a pure function of row data and field mappings: no
// hidden state, fully re-runnable.
package validation

import (
	"regexp"

	"github.com/rpattn/importflow/internal/domain"
)

// Engine evaluates the target schema's rules against session rows.
type Engine struct {
	schema   []domain.FieldSpec
	byName   map[string]domain.FieldSpec
	patterns map[string]*regexp.Regexp
}

// NewEngine creates an engine for the product target schema.
func NewEngine() *Engine {
	return NewEngineWithSchema(domain.ProductSchema())
}

// NewEngineWithSchema creates an engine for an explicit schema.
func NewEngineWithSchema(schema []domain.FieldSpec) *Engine {
	patterns := make(map[string]*regexp.Regexp)
	for _, spec := range schema {
		if spec.Pattern != "" {
			patterns[spec.Name] = regexp.MustCompile(spec.Pattern)
		}
	}
	return &Engine{
		schema:   schema,
		byName:   domain.FieldSpecByName(schema),
		patterns: patterns,
	}
}

// Schema returns the target schema driving validation.
func (e *Engine) Schema() []domain.FieldSpec {
	return e.schema
}

// IsUniqueField reports whether the field carries a uniqueness constraint.
func (e *Engine) IsUniqueField(field string) bool {
	spec, ok := e.byName[field]
	return ok && spec.Unique
}

// Validate runs every rule over the whole session in fixed order: per-row
// required, type and format checks, then the cross-row uniqueness pass,
// then numeric ranges, then cross-field business rules. Re-running on
// unchanged data yields an identical error set.
func (e *Engine) Validate(s domain.ImportSession) []domain.ValidationError {
	var out []domain.ValidationError

	for rowIdx := range s.Rows {
		for _, spec := range e.schema {
			out = append(out, e.checkPresence(s, rowIdx, spec)...)
		}
	}
	for _, spec := range e.schema {
		if spec.Unique {
			out = append(out, e.ValidateUnique(s, spec.Name)...)
		}
	}
	for rowIdx := range s.Rows {
		for _, spec := range e.schema {
			out = append(out, e.checkRange(s, rowIdx, spec)...)
		}
	}
	for rowIdx := range s.Rows {
		out = append(out, e.checkBusinessRules(s, rowIdx, "")...)
	}
	return out
}

// ValidateCell re-runs the per-cell rules plus any business rule the field
// participates in, scoped to one row. Uniqueness is deliberately excluded;
// callers run ValidateUnique for uniqueness-constrained fields because
// changing one duplicate can resolve or re-trigger errors on other rows.
func (e *Engine) ValidateCell(s domain.ImportSession, rowIdx int, field string) []domain.ValidationError {
	spec, ok := e.byName[field]
	if !ok {
		return nil
	}
	var out []domain.ValidationError
	out = append(out, e.checkPresence(s, rowIdx, spec)...)
	out = append(out, e.checkRange(s, rowIdx, spec)...)
	out = append(out, e.checkBusinessRules(s, rowIdx, field)...)
	return out
}

// ValidateUnique runs the full-session uniqueness pass for one field.
// Every row sharing a duplicate value is flagged except the first
// occurrence, which is treated as canonical.
func (e *Engine) ValidateUnique(s domain.ImportSession, field string) []domain.ValidationError {
	spec, ok := e.byName[field]
	if !ok || !spec.Unique {
		return nil
	}

	firstSeen := make(map[string]int)
	dupCount := make(map[string]int)
	var out []domain.ValidationError

	for rowIdx := range s.Rows {
		value, _ := s.ValueAt(rowIdx, field)
		value = trimmed(value)
		if value == "" {
			continue
		}
		canonical, seen := firstSeen[value]
		if !seen {
			firstSeen[value] = rowIdx
			continue
		}
		dupCount[value]++
		out = append(out, domain.ValidationError{
			Row:      rowIdx,
			Field:    field,
			Rule:     domain.RuleUnique,
			Severity: domain.SeverityError,
			Message:  duplicateMessage(field, value, canonical),
			Fix:      suggestUniqueFix(value, dupCount[value]),
		})
	}
	return out
}
