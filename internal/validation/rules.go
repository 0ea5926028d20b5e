package validation

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rpattn/importflow/internal/domain"
)

func trimmed(value string) string {
	return strings.TrimSpace(value)
}

// checkPresence runs the required, type and format checks for one cell, in
// that order. An empty value short-circuits: only required can fire, since
// downstream checks on an absent value would just restate the absence.
func (e *Engine) checkPresence(s domain.ImportSession, rowIdx int, spec domain.FieldSpec) []domain.ValidationError {
	raw, _ := s.ValueAt(rowIdx, spec.Name)
	value := trimmed(raw)

	if value == "" {
		if !spec.Required {
			return nil
		}
		return []domain.ValidationError{{
			Row:      rowIdx,
			Field:    spec.Name,
			Rule:     domain.RuleRequired,
			Severity: domain.SeverityError,
			Message:  fmt.Sprintf("required field %q is missing", spec.Name),
			Fix:      suggestDefaultFix(spec),
		}}
	}

	if ve, ok := e.checkType(rowIdx, spec, raw, value); ok {
		return []domain.ValidationError{ve}
	}
	if ve, ok := e.checkFormat(rowIdx, spec, raw, value); ok {
		return []domain.ValidationError{ve}
	}
	return nil
}

// checkType verifies numeric coercion. String, enum and url fields carry
// no type constraint; their shape is a format concern.
func (e *Engine) checkType(rowIdx int, spec domain.FieldSpec, raw, value string) (domain.ValidationError, bool) {
	switch spec.Type {
	case domain.FieldTypeNumber:
		if _, err := strconv.ParseFloat(value, 64); err == nil {
			return domain.ValidationError{}, false
		}
		return domain.ValidationError{
			Row:      rowIdx,
			Field:    spec.Name,
			Rule:     domain.RuleType,
			Severity: domain.SeverityError,
			Message:  fmt.Sprintf("field %q value %q is not a number", spec.Name, value),
			Fix:      suggestNumericFix(raw, false),
		}, true
	case domain.FieldTypeInteger:
		if _, err := strconv.ParseInt(value, 10, 64); err == nil {
			return domain.ValidationError{}, false
		}
		return domain.ValidationError{
			Row:      rowIdx,
			Field:    spec.Name,
			Rule:     domain.RuleType,
			Severity: domain.SeverityError,
			Message:  fmt.Sprintf("field %q value %q is not an integer", spec.Name, value),
			Fix:      suggestNumericFix(raw, true),
		}, true
	default:
		return domain.ValidationError{}, false
	}
}

func (e *Engine) checkFormat(rowIdx int, spec domain.FieldSpec, raw, value string) (domain.ValidationError, bool) {
	severity := domain.SeverityError
	if spec.WarnOnly {
		severity = domain.SeverityWarning
	}

	if pattern, ok := e.patterns[spec.Name]; ok && !pattern.MatchString(value) {
		return domain.ValidationError{
			Row:      rowIdx,
			Field:    spec.Name,
			Rule:     domain.RuleFormat,
			Severity: severity,
			Message:  fmt.Sprintf("field %q value %q does not match the expected format", spec.Name, value),
			Fix:      suggestPatternFix(pattern, raw, value),
		}, true
	}

	if len(spec.Enum) > 0 && !containsString(spec.Enum, value) {
		normalized := strings.ToLower(value)
		var fix *domain.AutoFix
		if containsString(spec.Enum, normalized) {
			fix = &domain.AutoFix{Action: domain.FixNormalize, Value: normalized, Confidence: 0.9}
		} else if spec.Default != "" {
			fix = &domain.AutoFix{Action: domain.FixDefaultValue, Value: spec.Default, Confidence: 0.5}
		}
		return domain.ValidationError{
			Row:      rowIdx,
			Field:    spec.Name,
			Rule:     domain.RuleFormat,
			Severity: severity,
			Message:  fmt.Sprintf("field %q value %q is not one of %s", spec.Name, value, strings.Join(spec.Enum, ", ")),
			Fix:      fix,
		}, true
	}

	if spec.Type == domain.FieldTypeURL {
		parsed, err := url.Parse(value)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return domain.ValidationError{
				Row:      rowIdx,
				Field:    spec.Name,
				Rule:     domain.RuleFormat,
				Severity: severity,
				Message:  fmt.Sprintf("field %q value %q is not a valid http(s) url", spec.Name, value),
			}, true
		}
	}
	return domain.ValidationError{}, false
}

// checkRange applies numeric minimums. Unparseable values are skipped;
// the type check already flagged them.
func (e *Engine) checkRange(s domain.ImportSession, rowIdx int, spec domain.FieldSpec) []domain.ValidationError {
	if spec.Min == nil {
		return nil
	}
	raw, _ := s.ValueAt(rowIdx, spec.Name)
	value := trimmed(raw)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	if parsed >= *spec.Min {
		return nil
	}
	return []domain.ValidationError{{
		Row:      rowIdx,
		Field:    spec.Name,
		Rule:     domain.RuleRange,
		Severity: domain.SeverityError,
		Message:  fmt.Sprintf("field %q value %s is below the minimum of %s", spec.Name, value, formatFloat(*spec.Min)),
	}}
}

// checkBusinessRules evaluates cross-field rules for one row. When field
// is non-empty only rules that field participates in are evaluated.
func (e *Engine) checkBusinessRules(s domain.ImportSession, rowIdx int, field string) []domain.ValidationError {
	if field != "" && field != "price" && field != "sale_price" {
		return nil
	}
	priceRaw, _ := s.ValueAt(rowIdx, "price")
	saleRaw, _ := s.ValueAt(rowIdx, "sale_price")
	price, priceErr := strconv.ParseFloat(trimmed(priceRaw), 64)
	sale, saleErr := strconv.ParseFloat(trimmed(saleRaw), 64)
	if priceErr != nil || saleErr != nil {
		return nil
	}
	if sale <= price {
		return nil
	}
	return []domain.ValidationError{{
		Row:      rowIdx,
		Field:    "sale_price",
		Rule:     domain.RuleBusiness,
		Severity: domain.SeverityError,
		Message:  fmt.Sprintf("sale price %s exceeds list price %s", formatFloat(sale), formatFloat(price)),
	}}
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
