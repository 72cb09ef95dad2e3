package agents

import (
	"context"
	"errors"
	"fmt"

	"clipbrief/internal/core"
)

// ErrNoDocuments indicates the analyzer was given nothing to analyze.
var ErrNoDocuments = errors.New("agents: no documents to analyze")

// Analyzer distills the collected documents into a structured analysis.
type Analyzer struct {
	gen generator
}

// NewAnalyzer builds the agent.
func NewAnalyzer(gen generator) *Analyzer {
	return &Analyzer{gen: gen}
}

// Analyze runs the deep analysis over docs at the requested depth
// (1..5, steering how many insights the model produces). SourceCount
// in the result always reflects the real document count, whatever the
// model claims.
func (a *Analyzer) Analyze(ctx context.Context, topic string, depth int, docs []core.Document) (*core.AnalysisResult, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: topic %q", ErrNoDocuments, topic)
	}

	prompt := fmt.Sprintf(analyzePromptTemplate, topic, depth, buildCorpus(docs))

	var result core.AnalysisResult
	if err := a.gen.GenerateJSON(ctx, prompt, analysisSchema, &result); err != nil {
		return nil, fmt.Errorf("analyzing %q: %w", topic, err)
	}

	result.Topic = topic
	result.SourceCount = len(docs)
	result.ConfidenceScore = core.Clamp01(result.ConfidenceScore)
	return &result, nil
}
