package domain

import "fmt"

// Rule identifies which validation check produced an error.
type Rule string

const (
	RuleRequired Rule = "required"
	RuleType     Rule = "type"
	RuleFormat   Rule = "format"
	RuleUnique   Rule = "unique"
	RuleRange    Rule = "range"
	RuleBusiness Rule = "business_rule"
	RuleParse    Rule = "parse"
)

// Severity separates blocking errors from tolerated warnings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// FixAction tags the kind of repair an auto-fix proposes.
type FixAction string

const (
	FixDefaultValue   FixAction = "default_value"
	FixConvertType    FixAction = "convert_type"
	FixTrimWhitespace FixAction = "trim_whitespace"
	FixNormalize      FixAction = "normalize"
	FixGenerateValue  FixAction = "generate_value"
	FixManual         FixAction = "manual_fix"
)

// AutoFix is a proposed repair for a validation error. Confidence at or
// above the configured floor makes it eligible for bulk auto-application;
// below that it is advisory only.
type AutoFix struct {
	Action     FixAction `json:"action"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
}

// ValidationError describes one failed check for one cell (or, for
// cross-field rules, the cell the failure is reported against).
type ValidationError struct {
	Row      int      `json:"row"`
	Field    string   `json:"field"`
	Rule     Rule     `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Fix      *AutoFix `json:"fix,omitempty"`
	Resolved bool     `json:"resolved"`
}

// Key identifies an error by row, field and rule. A cell carries at most
// one error per rule category, so the key is unique within a session.
func (e ValidationError) Key() string {
	return fmt.Sprintf("%d/%s/%s", e.Row, e.Field, e.Rule)
}

// Clone returns a copy with an independent AutoFix pointer.
func (e ValidationError) Clone() ValidationError {
	if e.Fix != nil {
		fix := *e.Fix
		e.Fix = &fix
	}
	return e
}

// CountBySeverity tallies unresolved errors per severity.
func CountBySeverity(errs []ValidationError) (errorCount, warningCount int) {
	for _, ve := range errs {
		if ve.Resolved {
			continue
		}
		switch ve.Severity {
		case SeverityWarning:
			warningCount++
		default:
			errorCount++
		}
	}
	return errorCount, warningCount
}
