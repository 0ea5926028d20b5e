package mapper

import (
	"strings"

	"github.com/rpattn/importflow/internal/domain"
)

const defaultHeuristicCap = 0.8

// Heuristic is the deterministic fallback matcher: exact, alias and
// substring matching of normalized column names against the target schema.
type Heuristic struct {
	schema []domain.FieldSpec
	cap    float64
}

// NewHeuristic creates a matcher whose confidence never exceeds cap.
func NewHeuristic(schema []domain.FieldSpec, cap float64) *Heuristic {
	if cap <= 0 || cap > 1 {
		cap = defaultHeuristicCap
	}
	return &Heuristic{schema: schema, cap: cap}
}

// BoundedCap clamps a configured heuristic cap to the auto-advance
// threshold. Auto-advance requires the mean confidence to strictly exceed
// the threshold, so a cap at or below it guarantees heuristic fallback
// output alone never advances a session unattended, whatever combination
// of values the configuration carries.
func BoundedCap(cap, threshold float64) float64 {
	if cap <= 0 || cap > 1 {
		cap = defaultHeuristicCap
	}
	if threshold > 0 && cap > threshold {
		return threshold
	}
	return cap
}

// Match pairs each target field with its best-scoring source column. A
// column is consumed by at most one target.
func (h *Heuristic) Match(columns []string) []domain.FieldMapping {
	used := make(map[string]struct{})
	var out []domain.FieldMapping

	for _, spec := range h.schema {
		column, score := h.bestColumn(spec, columns, used)
		if column == "" {
			continue
		}
		used[column] = struct{}{}
		out = append(out, domain.FieldMapping{
			SourceColumn: column,
			TargetField:  spec.Name,
			Confidence:   score * h.cap,
			Provenance:   domain.ProvenanceHeuristic,
		})
	}
	return out
}

func (h *Heuristic) bestColumn(spec domain.FieldSpec, columns []string, used map[string]struct{}) (string, float64) {
	var bestColumn string
	var bestScore float64

	for _, column := range columns {
		if _, taken := used[column]; taken {
			continue
		}
		score := h.score(spec, column)
		if score > bestScore {
			bestScore = score
			bestColumn = column
		}
	}
	return bestColumn, bestScore
}

// score rates a single column against a field: 1.0 for an exact name
// match, slightly less for a known alias, less again for substring
// containment. The adapter's cap scales these down afterwards.
func (h *Heuristic) score(spec domain.FieldSpec, column string) float64 {
	normalized := normalizeName(column)
	if normalized == "" {
		return 0
	}
	if normalized == normalizeName(spec.Name) {
		return 1.0
	}
	for _, alias := range spec.Aliases {
		if normalized == normalizeName(alias) {
			return 0.95
		}
	}
	fieldName := normalizeName(spec.Name)
	if strings.Contains(normalized, fieldName) || strings.Contains(fieldName, normalized) {
		return 0.7
	}
	for _, alias := range spec.Aliases {
		aliasName := normalizeName(alias)
		if strings.Contains(normalized, aliasName) || strings.Contains(aliasName, normalized) {
			return 0.6
		}
	}
	return 0
}

// normalizeName lowercases and strips everything but letters and digits so
// "Product Name", "product_name" and "product-name" compare equal.
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
