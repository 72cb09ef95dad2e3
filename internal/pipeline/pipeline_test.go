package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"clipbrief/internal/core"
	"clipbrief/internal/gather"
)

type fakeDecomposer struct {
	plan *core.SubQueryPlan
	err  error
}

func (f *fakeDecomposer) Decompose(context.Context, core.ResearchRequest) (*core.SubQueryPlan, error) {
	return f.plan, f.err
}

type fakeNews struct {
	result gather.Result
	called bool
}

func (f *fakeNews) Gather(_ context.Context, _ []string, _, _ string, _ int) gather.Result {
	f.called = true
	return f.result
}

type fakeSocial struct {
	result        gather.SocialResult
	called        bool
	includeSocial bool
	includeForum  bool
}

func (f *fakeSocial) Gather(_ context.Context, _, _ []string, includeSocial, includeForum bool, _ int) gather.SocialResult {
	f.called = true
	f.includeSocial = includeSocial
	f.includeForum = includeForum
	return f.result
}

type fakeAnalyzer struct {
	result *core.AnalysisResult
	err    error
	got    []core.Document
	depth  int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ string, depth int, docs []core.Document) (*core.AnalysisResult, error) {
	f.got = docs
	f.depth = depth
	return f.result, f.err
}

type fakeSynthesizer struct {
	brief *core.VideoBrief
	err   error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ core.ResearchRequest, _ *core.AnalysisResult, _ []core.Document, _ []string) (*core.VideoBrief, error) {
	return f.brief, f.err
}

func doc(url string) core.Document {
	return core.Document{Title: url, URL: url, SourceKind: core.SourceNews}
}

func happyPipeline() (*Pipeline, *fakeNews, *fakeSocial, *fakeAnalyzer) {
	news := &fakeNews{result: gather.Result{
		Documents:   []core.Document{doc("https://n/1"), doc("https://n/2")},
		SourcesUsed: []string{"googlenews"},
	}}
	social := &fakeSocial{result: gather.SocialResult{
		Social: []core.Document{doc("https://s/1")},
		Forum:  []core.Document{doc("https://f/1")},
	}}
	analyzer := &fakeAnalyzer{result: &core.AnalysisResult{
		KeyInsights:     []string{"i1"},
		ConfidenceScore: 0.9,
	}}
	synth := &fakeSynthesizer{brief: &core.VideoBrief{TitleSuggestion: "t", ViralScore: 0.8}}
	p := New(
		&fakeDecomposer{plan: &core.SubQueryPlan{SubQueries: []string{"q1", "q2"}}},
		news, social, analyzer, synth,
	)
	return p, news, social, analyzer
}

func TestRunHappyPath(t *testing.T) {
	p, news, social, analyzer := happyPipeline()
	req := core.NewResearchRequest("AI 失業")

	state, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if state.CurrentStep != core.StepComplete {
		t.Fatalf("step = %q, error = %q", state.CurrentStep, state.Error)
	}
	if !news.called || !social.called {
		t.Error("both scrapers should run")
	}
	if state.TotalSourcesScraped != 4 {
		t.Errorf("total scraped = %d, want 4", state.TotalSourcesScraped)
	}
	if len(analyzer.got) != 4 {
		t.Errorf("analyzer received %d docs, want all 4", len(analyzer.got))
	}
	if analyzer.depth != req.Depth {
		t.Errorf("analyzer received depth %d, want %d", analyzer.depth, req.Depth)
	}
	if state.VideoBrief == nil {
		t.Fatal("missing video brief")
	}
	if len(state.ExecutionLog) == 0 {
		t.Error("execution log should not be empty")
	}
}

func TestRunInvalidRequest(t *testing.T) {
	p, _, _, _ := happyPipeline()
	req := core.NewResearchRequest("")
	if _, err := p.Run(context.Background(), req); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRunDecomposeFailureKeepsNodeMessage(t *testing.T) {
	p, _, _, _ := happyPipeline()
	p.decomposer = &fakeDecomposer{err: fmt.Errorf("model unavailable")}

	state, err := p.Run(context.Background(), core.NewResearchRequest("t"))
	if err != nil {
		t.Fatal(err)
	}
	if state.CurrentStep != core.StepError {
		t.Fatalf("step = %q", state.CurrentStep)
	}
	if !strings.Contains(state.Error, "model unavailable") {
		t.Errorf("error = %q, want the decomposer's own message", state.Error)
	}
}

func TestRunEmptyPlanInfersDecomposeMessage(t *testing.T) {
	p, _, _, _ := happyPipeline()
	p.decomposer = &fakeDecomposer{plan: &core.SubQueryPlan{}}

	state, err := p.Run(context.Background(), core.NewResearchRequest("t"))
	if err != nil {
		t.Fatal(err)
	}
	// No sub-queries and no recorded message: inference fills it in.
	if state.Error != msgDecomposeFailed {
		t.Errorf("error = %q, want inferred decompose message", state.Error)
	}
}

func TestRunNoDataFound(t *testing.T) {
	p, _, _, _ := happyPipeline()
	p.news = &fakeNews{}
	p.social = &fakeSocial{}

	state, err := p.Run(context.Background(), core.NewResearchRequest("t"))
	if err != nil {
		t.Fatal(err)
	}
	if state.Error != msgNoData {
		t.Errorf("error = %q, want no-data message", state.Error)
	}
	if state.CurrentStep != core.StepError {
		t.Errorf("step = %q", state.CurrentStep)
	}
}

func TestRunAnalysisFailureKeepsNodeMessage(t *testing.T) {
	p, _, _, _ := happyPipeline()
	p.analyzer = &fakeAnalyzer{err: fmt.Errorf("schema mismatch")}

	state, err := p.Run(context.Background(), core.NewResearchRequest("t"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(state.Error, "schema mismatch") {
		t.Errorf("error = %q, want the analyzer's own message", state.Error)
	}
	if state.CurrentStep != core.StepError {
		t.Errorf("step = %q", state.CurrentStep)
	}
}

func TestRunSkipsNewsWhenNotRequested(t *testing.T) {
	p, news, social, _ := happyPipeline()
	req := core.NewResearchRequest("t")
	req.Sources = []core.SourceKind{core.SourceForum}

	state, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if news.called {
		t.Error("news scraper should be skipped")
	}
	if !social.called {
		t.Error("social scraper should still run for forum")
	}
	if social.includeSocial || !social.includeForum {
		t.Errorf("toggles = social:%v forum:%v", social.includeSocial, social.includeForum)
	}
	var skipped bool
	for _, entry := range state.ExecutionLog {
		if strings.Contains(entry, "news: skipped") {
			skipped = true
		}
	}
	if !skipped {
		t.Error("skip should be recorded in the execution log")
	}
}

func TestRunSkipsSocialWhenNoPlatforms(t *testing.T) {
	p, _, social, _ := happyPipeline()
	req := core.NewResearchRequest("t")
	req.Sources = []core.SourceKind{core.SourceNews}

	state, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if social.called {
		t.Error("social scraper should be skipped without platforms")
	}
	if state.CurrentStep != core.StepComplete {
		t.Errorf("step = %q, error = %q", state.CurrentStep, state.Error)
	}
}

func TestRunPartialFailureStillCompletes(t *testing.T) {
	p, _, _, _ := happyPipeline()
	p.news = &fakeNews{result: gather.Result{
		Documents: []core.Document{doc("https://n/1")},
		Errors:    []string{"newsapi(q1): rate limited"},
	}}

	state, err := p.Run(context.Background(), core.NewResearchRequest("t"))
	if err != nil {
		t.Fatal(err)
	}
	if state.CurrentStep != core.StepComplete {
		t.Fatalf("partial source failure should not fail the run, step = %q", state.CurrentStep)
	}
	var logged bool
	for _, entry := range state.ExecutionLog {
		if strings.Contains(entry, "partial failure") {
			logged = true
		}
	}
	if !logged {
		t.Error("partial failure should be recorded in the execution log")
	}
}

func TestRunSynthesizerFailureKeepsMessage(t *testing.T) {
	p, _, _, _ := happyPipeline()
	p.synthesizer = &fakeSynthesizer{err: fmt.Errorf("synthesis exploded")}

	state, err := p.Run(context.Background(), core.NewResearchRequest("t"))
	if err != nil {
		t.Fatal(err)
	}
	if state.CurrentStep != core.StepError {
		t.Fatalf("step = %q", state.CurrentStep)
	}
	if !strings.Contains(state.Error, "synthesis exploded") {
		t.Errorf("error = %q, want synthesizer message preserved", state.Error)
	}
}
