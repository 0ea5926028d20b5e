package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rpattn/importflow/internal/domain"
)

// Confidence tiers for suggested repairs. Deterministic string transforms
// sit at or above 0.9; inferred values around 0.5.
const (
	confidenceTrim      = 0.95
	confidenceTransform = 0.9
	confidenceInferred  = 0.5
	confidenceDefault   = 0.55
)

var currencyStripper = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "")

// suggestDefaultFix proposes the schema default for a missing required
// value. Without a default the repair needs a human.
func suggestDefaultFix(spec domain.FieldSpec) *domain.AutoFix {
	if spec.Default == "" {
		return nil
	}
	return &domain.AutoFix{
		Action:     domain.FixDefaultValue,
		Value:      spec.Default,
		Confidence: confidenceDefault,
	}
}

// suggestNumericFix proposes a mechanical repair for a value that failed
// numeric coercion: trimming whitespace when that alone parses, otherwise
// stripping currency symbols and separators.
func suggestNumericFix(raw string, integer bool) *domain.AutoFix {
	value := strings.TrimSpace(raw)
	if parsed, ok := parseAs(value, integer); ok {
		return &domain.AutoFix{
			Action:     domain.FixTrimWhitespace,
			Value:      parsed,
			Confidence: confidenceTrim,
		}
	}
	stripped := currencyStripper.Replace(value)
	if parsed, ok := parseAs(stripped, integer); ok {
		return &domain.AutoFix{
			Action:     domain.FixConvertType,
			Value:      parsed,
			Confidence: confidenceTransform,
		}
	}
	return nil
}

func parseAs(value string, integer bool) (string, bool) {
	if value == "" {
		return "", false
	}
	if integer {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		// A whole-number float still converts cleanly.
		if f, err := strconv.ParseFloat(value, 64); err == nil && f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10), true
		}
		return "", false
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return value, true
	}
	return "", false
}

// suggestPatternFix repairs a pattern mismatch when trimming, or replacing
// interior whitespace with dashes, produces a matching value.
func suggestPatternFix(pattern *regexp.Regexp, raw, value string) *domain.AutoFix {
	trimmedValue := strings.TrimSpace(raw)
	if trimmedValue != value && pattern.MatchString(trimmedValue) {
		return &domain.AutoFix{
			Action:     domain.FixTrimWhitespace,
			Value:      trimmedValue,
			Confidence: confidenceTrim,
		}
	}
	dashed := strings.Join(strings.Fields(trimmedValue), "-")
	if dashed != value && pattern.MatchString(dashed) {
		return &domain.AutoFix{
			Action:     domain.FixNormalize,
			Value:      dashed,
			Confidence: confidenceTransform,
		}
	}
	return nil
}

// suggestUniqueFix proposes a suffixed variant for a duplicate value. The
// repair is inferred, not mechanical, so it stays advisory.
func suggestUniqueFix(value string, occurrence int) *domain.AutoFix {
	return &domain.AutoFix{
		Action:     domain.FixGenerateValue,
		Value:      fmt.Sprintf("%s-%d", value, occurrence+1),
		Confidence: confidenceInferred,
	}
}

func duplicateMessage(field, value string, canonicalRow int) string {
	return fmt.Sprintf("duplicate %s %q, first seen at row %d", field, value, canonicalRow)
}
