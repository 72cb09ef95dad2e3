// Package pipeline orchestrates one research run: decompose the topic,
// gather news and social documents, analyze them, and synthesize the
// final video brief. Stages append to the state's execution log and a
// failed stage routes to the error handler instead of aborting.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"clipbrief/internal/core"
	"clipbrief/internal/gather"
	"clipbrief/internal/logger"
)

// Stage failure messages surfaced to the caller.
const (
	msgDecomposeFailed = "查詢拆解失敗，請重新輸入主題"
	msgNoData          = "找不到相關資料，請嘗試其他關鍵字"
	msgAnalysisFailed  = "深度分析失敗"
	msgUnknown         = "發生未知錯誤"
)

type decomposer interface {
	Decompose(ctx context.Context, req core.ResearchRequest) (*core.SubQueryPlan, error)
}

type newsGatherer interface {
	Gather(ctx context.Context, queries []string, language, region string, maxPerSource int) gather.Result
}

type socialGatherer interface {
	Gather(ctx context.Context, queries, linkedinURLs []string, includeSocial, includeForum bool, maxPerSource int) gather.SocialResult
}

type analyzer interface {
	Analyze(ctx context.Context, topic string, depth int, docs []core.Document) (*core.AnalysisResult, error)
}

type synthesizer interface {
	Synthesize(ctx context.Context, req core.ResearchRequest, analysis *core.AnalysisResult, docs []core.Document, targetPlatforms []string) (*core.VideoBrief, error)
}

// Pipeline wires the agents and coordinators into the staged run.
type Pipeline struct {
	decomposer  decomposer
	news        newsGatherer
	social      socialGatherer
	analyzer    analyzer
	synthesizer synthesizer
	now         func() time.Time
}

// New builds a pipeline from its stages.
func New(d decomposer, n newsGatherer, s socialGatherer, a analyzer, syn synthesizer) *Pipeline {
	return &Pipeline{decomposer: d, news: n, social: s, analyzer: a, synthesizer: syn, now: time.Now}
}

// Run executes the full pipeline for req. The returned state always
// carries the execution log; on failure CurrentStep is StepError and
// Error holds a user-facing message. The error return is reserved for
// invalid requests.
func (p *Pipeline) Run(ctx context.Context, req core.ResearchRequest) (*core.PipelineState, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	state := &core.PipelineState{Request: req}
	start := p.now()
	logger.Info("research started", "topic", req.Topic, "depth", req.Depth, "sources", req.Sources)

	p.runSupervisor(ctx, state)
	if state.Error != "" || len(state.SubQueries) == 0 {
		return p.handleError(state), nil
	}

	p.runNewsScraper(ctx, state)
	p.runSocialScraper(ctx, state)
	if state.TotalSourcesScraped == 0 {
		return p.handleError(state), nil
	}

	p.runAnalyzer(ctx, state)
	if state.Error != "" || state.Analysis == nil {
		return p.handleError(state), nil
	}

	p.runSynthesizer(ctx, state)
	if state.Error != "" {
		return p.handleError(state), nil
	}

	state.CurrentStep = core.StepComplete
	p.log(state, fmt.Sprintf("pipeline complete in %s", p.now().Sub(start).Round(time.Millisecond)))
	logger.Info("research complete", "topic", req.Topic, "sources", state.TotalSourcesScraped)
	return state, nil
}

func (p *Pipeline) log(state *core.PipelineState, entry string) {
	state.ExecutionLog = append(state.ExecutionLog, fmt.Sprintf("[%s] %s", p.now().Format("15:04:05"), entry))
}

func (p *Pipeline) runSupervisor(ctx context.Context, state *core.PipelineState) {
	plan, err := p.decomposer.Decompose(ctx, state.Request)
	if err != nil {
		logger.Error("query decomposition failed", err, "topic", state.Request.Topic)
		state.Error = err.Error()
		p.log(state, "supervisor: decomposition failed")
		return
	}
	state.SubQueries = plan.SubQueries
	state.CurrentStep = core.StepQueriesDecomposed
	p.log(state, fmt.Sprintf("supervisor: %d sub-queries planned", len(plan.SubQueries)))
}

func (p *Pipeline) runNewsScraper(ctx context.Context, state *core.PipelineState) {
	req := state.Request
	if !req.HasSource(core.SourceNews) {
		state.CurrentStep = core.StepNewsScraped
		p.log(state, "news: skipped, source not requested")
		return
	}

	res := p.news.Gather(ctx, state.SubQueries, req.Language, req.Region(), req.MaxResultsPerSource)
	state.NewsResults = res.Documents
	state.TotalSourcesScraped += len(res.Documents)
	state.CurrentStep = core.StepNewsScraped
	p.log(state, fmt.Sprintf("news: %d documents from %v", len(res.Documents), res.SourcesUsed))
	for _, e := range res.Errors {
		p.log(state, "news: partial failure: "+e)
	}
}

func (p *Pipeline) runSocialScraper(ctx context.Context, state *core.PipelineState) {
	req := state.Request
	includeSocial := req.HasSource(core.SourceSocial)
	includeForum := req.HasSource(core.SourceForum)
	if !includeSocial && !includeForum && len(req.LinkedInURLs) == 0 {
		state.CurrentStep = core.StepSocialScraped
		p.log(state, "social: skipped, no platforms requested")
		return
	}

	res := p.social.Gather(ctx, state.SubQueries, req.LinkedInURLs, includeSocial, includeForum, req.MaxResultsPerSource)
	state.SocialResults = res.Social
	state.ForumResults = res.Forum
	state.TotalSourcesScraped += len(res.Social) + len(res.Forum)
	state.CurrentStep = core.StepSocialScraped
	p.log(state, fmt.Sprintf("social: %d social, %d forum documents from %v", len(res.Social), len(res.Forum), res.SourcesUsed))
	for _, e := range res.Errors {
		p.log(state, "social: partial failure: "+e)
	}
}

func (p *Pipeline) runAnalyzer(ctx context.Context, state *core.PipelineState) {
	analysis, err := p.analyzer.Analyze(ctx, state.Request.Topic, state.Request.Depth, state.AllDocuments())
	if err != nil {
		logger.Error("analysis failed", err, "topic", state.Request.Topic)
		state.Error = err.Error()
		p.log(state, "analyzer: failed")
		return
	}
	state.Analysis = analysis
	state.CurrentStep = core.StepAnalysisComplete
	p.log(state, fmt.Sprintf("analyzer: %d insights, confidence %.2f", len(analysis.KeyInsights), analysis.ConfidenceScore))
}

func (p *Pipeline) runSynthesizer(ctx context.Context, state *core.PipelineState) {
	brief, err := p.synthesizer.Synthesize(ctx, state.Request, state.Analysis, state.AllDocuments(), state.Request.TargetPlatforms)
	if err != nil {
		logger.Error("synthesis failed", err, "topic", state.Request.Topic)
		state.Error = err.Error()
		p.log(state, "synthesizer: failed")
		return
	}
	state.VideoBrief = brief
	p.log(state, fmt.Sprintf("synthesizer: brief ready, viral score %.2f", brief.ViralScore))
}

// handleError stamps the terminal error step. The failing node's own
// message wins; classification only fills in a message for nodes that
// did not record one.
func (p *Pipeline) handleError(state *core.PipelineState) *core.PipelineState {
	if state.Error == "" {
		switch {
		case len(state.SubQueries) == 0:
			state.Error = msgDecomposeFailed
		case state.TotalSourcesScraped == 0:
			state.Error = msgNoData
		case state.Analysis == nil:
			state.Error = msgAnalysisFailed
		default:
			state.Error = msgUnknown
		}
	}
	state.CurrentStep = core.StepError
	p.log(state, "error handler: "+state.Error)
	logger.Warn("research failed", "topic", state.Request.Topic, "error", state.Error)
	return state
}
