package domain

// Provenance records where a field mapping suggestion came from.
type Provenance string

const (
	ProvenanceLLM       Provenance = "llm"
	ProvenanceHeuristic Provenance = "heuristic"
	ProvenanceManual    Provenance = "manual"
)

// FieldMapping pairs a source column with a target schema field.
// A confirmed mapping is immutable; before confirmation it may be replaced.
type FieldMapping struct {
	SourceColumn string     `json:"sourceColumn"`
	TargetField  string     `json:"targetField"`
	Confidence   float64    `json:"confidence"`
	Provenance   Provenance `json:"provenance"`
	Confirmed    bool       `json:"confirmed"`
}

// Confirm returns the mapping marked immutable.
func (m FieldMapping) Confirm() FieldMapping {
	m.Confirmed = true
	return m
}
