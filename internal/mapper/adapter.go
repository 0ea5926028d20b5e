// Package mapper suggests field mappings between source columns and the
// target catalog schema, delegating to an external provider with a
// deterministic heuristic fallback.
package mapper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rpattn/importflow/internal/domain"
)

// Provider produces mapping suggestions. Implementations must respect
// context cancellation; the adapter bounds every call with a timeout.
type Provider interface {
	Suggest(ctx context.Context, columns []string) ([]domain.FieldMapping, error)
}

// Suggester is the surface the orchestrator depends on.
type Suggester interface {
	Suggest(ctx context.Context, columns []string) []domain.FieldMapping
}

// Adapter wraps a provider with a latency ceiling and normalizes its
// response. On provider failure or timeout it falls back to the heuristic
// matcher without retrying.
type Adapter struct {
	provider  Provider
	heuristic *Heuristic
	timeout   time.Duration
	log       *logrus.Logger
}

// NewAdapter creates an adapter. provider may be nil, in which case every
// call uses the heuristic matcher. heuristicCap bounds fallback confidence
// so a degraded call never drives an unattended auto-advance.
func NewAdapter(provider Provider, timeout time.Duration, heuristicCap float64, log *logrus.Logger) *Adapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		provider:  provider,
		heuristic: NewHeuristic(domain.ProductSchema(), heuristicCap),
		timeout:   timeout,
		log:       log,
	}
}

// Suggest returns candidate mappings for the source columns. The result
// never contains duplicate target fields or unknown targets; provider
// confidence is trusted as given, clamped to [0,1].
func (a *Adapter) Suggest(ctx context.Context, columns []string) []domain.FieldMapping {
	if a.provider == nil {
		return a.heuristic.Match(columns)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	suggested, err := a.provider.Suggest(callCtx, columns)
	if err != nil {
		if a.log != nil {
			a.log.WithError(err).Warn("mapping provider unavailable, using heuristic fallback")
		}
		return a.heuristic.Match(columns)
	}
	normalized := normalize(suggested, columns)
	if len(normalized) == 0 {
		return a.heuristic.Match(columns)
	}
	return normalized
}

// normalize drops suggestions that reference unknown target fields or
// source columns and deduplicates targets, keeping the highest confidence.
func normalize(suggested []domain.FieldMapping, columns []string) []domain.FieldMapping {
	known := domain.FieldSpecByName(domain.ProductSchema())
	sources := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		sources[c] = struct{}{}
	}

	best := make(map[string]domain.FieldMapping)
	for _, m := range suggested {
		if _, ok := known[m.TargetField]; !ok {
			continue
		}
		if _, ok := sources[m.SourceColumn]; !ok {
			continue
		}
		if m.Confidence < 0 {
			m.Confidence = 0
		}
		if m.Confidence > 1 {
			m.Confidence = 1
		}
		m.Provenance = domain.ProvenanceLLM
		if current, ok := best[m.TargetField]; !ok || m.Confidence > current.Confidence {
			best[m.TargetField] = m
		}
	}

	out := make([]domain.FieldMapping, 0, len(best))
	for _, spec := range domain.ProductSchema() {
		if m, ok := best[spec.Name]; ok {
			out = append(out, m)
		}
	}
	return out
}
