// Package agents holds the LLM-backed stages of the research pipeline:
// query decomposition, deep analysis, and brief synthesis.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"clipbrief/internal/core"
	"clipbrief/internal/logger"
)

// ErrNoSubQueries indicates the decomposer produced an empty plan.
var ErrNoSubQueries = errors.New("agents: query decomposition produced no sub-queries")

// Decomposer turns a research topic into short search sub-queries.
type Decomposer struct {
	gen generator
}

// generator is the narrow LLM surface the agents use, satisfied by
// llm.Client.
type generator interface {
	GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema, out any) error
}

// NewDecomposer builds the agent.
func NewDecomposer(gen generator) *Decomposer {
	return &Decomposer{gen: gen}
}

// Decompose produces between req.MinSubQueries and req.MaxSubQueries
// sub-queries. Surplus queries are dropped; too few is an error.
func (d *Decomposer) Decompose(ctx context.Context, req core.ResearchRequest) (*core.SubQueryPlan, error) {
	prompt := fmt.Sprintf(decomposePromptTemplate,
		req.Topic, req.MinSubQueries(), req.MaxSubQueries(), req.Language)

	var plan core.SubQueryPlan
	if err := d.gen.GenerateJSON(ctx, prompt, subQuerySchema, &plan); err != nil {
		return nil, fmt.Errorf("decomposing %q: %w", req.Topic, err)
	}

	plan.SubQueries = cleanQueries(plan.SubQueries)
	if len(plan.SubQueries) == 0 {
		return nil, fmt.Errorf("%w: topic %q", ErrNoSubQueries, req.Topic)
	}
	if max := req.MaxSubQueries(); len(plan.SubQueries) > max {
		logger.Debug("truncating sub-query plan", "got", len(plan.SubQueries), "max", max)
		plan.SubQueries = plan.SubQueries[:max]
	}
	return &plan, nil
}

// cleanQueries trims, drops empties, and dedupes case-insensitively.
func cleanQueries(queries []string) []string {
	seen := make(map[string]bool, len(queries))
	var out []string
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}
