// Package core defines the shared data model for the research pipeline:
// normalized documents from upstream sources, the research request, the
// LLM analysis artifacts, and the pipeline state passed between stages.
package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// SourceKind classifies where a Document came from.
type SourceKind string

const (
	SourceNews   SourceKind = "news"
	SourceSocial SourceKind = "social"
	SourceForum  SourceKind = "forum"
	SourceWeb    SourceKind = "web"
)

// Engagement holds interaction counters for social and forum documents.
type Engagement struct {
	Likes    int  `json:"likes"`
	Comments int  `json:"comments"`
	Shares   int  `json:"shares"`
	Views    *int `json:"views,omitempty"`
}

// Document is the normalized record emitted by every source adapter.
// URL is the identity key: coordinators deduplicate on it.
type Document struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Summary string `json:"summary,omitempty"`

	SourceKind SourceKind `json:"source_kind"`
	SourceName string     `json:"source_name"` // human label, may be namespaced e.g. "PTT:Stock"
	SourceURL  string     `json:"source_url,omitempty"`

	Author    string `json:"author,omitempty"`
	AuthorURL string `json:"author_url,omitempty"`

	PublishedAt *time.Time `json:"published_at,omitempty"`
	ScrapedAt   time.Time  `json:"scraped_at"`

	Engagement *Engagement `json:"engagement,omitempty"`

	Categories []string `json:"categories,omitempty"`
	Tags       []string `json:"tags,omitempty"`

	Language string `json:"language"`
	Region   string `json:"region,omitempty"`

	ImageURL string `json:"image_url,omitempty"`
	VideoURL string `json:"video_url,omitempty"`

	Raw map[string]any `json:"raw,omitempty"` // adapter-specific blob for debugging
}

// Validate checks the Document invariants: a well-formed absolute URL
// and a known source kind.
func (d *Document) Validate() error {
	u, err := url.Parse(d.URL)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("document %q: url %q is not an absolute URL", d.Title, d.URL)
	}
	switch d.SourceKind {
	case SourceNews, SourceSocial, SourceForum, SourceWeb:
	default:
		return fmt.Errorf("document %q: unknown source kind %q", d.Title, d.SourceKind)
	}
	return nil
}

// PublishedOrZero returns the publication time, or the zero time when
// the upstream did not provide one. Coordinators sort on this so that
// undated documents sink to the end.
func (d *Document) PublishedOrZero() time.Time {
	if d.PublishedAt == nil {
		return time.Time{}
	}
	return *d.PublishedAt
}

// DefaultSources is the source set used when a request does not pick one.
var DefaultSources = []SourceKind{SourceNews, SourceSocial, SourceForum}

// ResearchRequest is the inbound request for one pipeline run.
type ResearchRequest struct {
	Topic               string       `json:"topic"`
	UserID              string       `json:"user_id"`
	Language            string       `json:"language"`
	Sources             []SourceKind `json:"sources"`
	Depth               int          `json:"depth"`                  // 1..5
	MaxResultsPerSource int          `json:"max_results_per_source"` // 1..50
	Tone                string       `json:"tone"`
	TargetPlatforms     []string     `json:"target_platforms,omitempty"` // empty means all
	LinkedInURLs        []string     `json:"linkedin_urls,omitempty"`
}

// Region derives the request's market region from its language tag,
// e.g. "TW" from "zh-TW". Defaults to US for bare language codes.
func (r *ResearchRequest) Region() string {
	if i := strings.Index(r.Language, "-"); i > 0 {
		return strings.ToUpper(r.Language[i+1:])
	}
	return "US"
}

// NewResearchRequest builds a request with defaults applied.
func NewResearchRequest(topic string) ResearchRequest {
	return ResearchRequest{
		Topic:               strings.TrimSpace(topic),
		UserID:              "anonymous",
		Language:            "zh-TW",
		Sources:             append([]SourceKind(nil), DefaultSources...),
		Depth:               2,
		MaxResultsPerSource: 10,
		Tone:                "neutral",
	}
}

// Validate checks request bounds.
func (r *ResearchRequest) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return fmt.Errorf("research request: topic is empty")
	}
	if r.Depth < 1 || r.Depth > 5 {
		return fmt.Errorf("research request: depth %d out of range [1,5]", r.Depth)
	}
	if r.MaxResultsPerSource < 1 || r.MaxResultsPerSource > 50 {
		return fmt.Errorf("research request: max_results_per_source %d out of range [1,50]", r.MaxResultsPerSource)
	}
	return nil
}

// HasSource reports whether the request enables the given source kind.
func (r *ResearchRequest) HasSource(kind SourceKind) bool {
	for _, s := range r.Sources {
		if s == kind {
			return true
		}
	}
	return false
}

// MinSubQueries returns the lower bound of the sub-query count window
// derived from the research depth.
func (r *ResearchRequest) MinSubQueries() int {
	if r.Depth > 2 {
		return r.Depth
	}
	return 2
}

// MaxSubQueries returns the upper bound of the sub-query count window.
func (r *ResearchRequest) MaxSubQueries() int {
	if r.Depth+1 < 5 {
		return r.Depth + 1
	}
	return 5
}

// SubQueryPlan is the decomposer's output: short keyword sub-queries
// plus an advisory strategy.
type SubQueryPlan struct {
	SubQueries         []string `json:"sub_queries"`
	SearchStrategy     string   `json:"search_strategy"`
	RecommendedSources []string `json:"recommended_sources"`
}

// AnalysisResult is the analyzer's structured output. SourceCount is
// authoritative only after the orchestrator overrides it with the real
// document count.
type AnalysisResult struct {
	Topic            string   `json:"topic"`
	KeyInsights      []string `json:"key_insights"`
	Controversies    []string `json:"controversies"`
	TrendingAngles   []string `json:"trending_angles"`
	SentimentSummary string   `json:"sentiment_summary"`
	RecommendedHooks []string `json:"recommended_hooks"`
	SourceCount      int      `json:"source_count"`
	ConfidenceScore  float64  `json:"confidence_score"` // 0..1
}

// PlatformVariant carries per-platform production metadata and tips.
type PlatformVariant struct {
	Platform    string   `json:"platform"`
	Duration    string   `json:"duration"`
	Format      string   `json:"format"`
	AspectRatio string   `json:"aspect_ratio"`
	Tips        []string `json:"tips"`
}

// SourceRef cites one document inside a VideoBrief.
type SourceRef struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	SourceKind  string `json:"source_kind"`
	PublishedAt string `json:"published_at,omitempty"`
}

// VideoBrief is the final synthesized artifact describing a short-form
// video: creative fields from the LLM, structural fields built in code.
type VideoBrief struct {
	Topic            string            `json:"topic"`
	TitleSuggestion  string            `json:"title_suggestion"`
	HookLine         string            `json:"hook_line"`
	KeyTalkingPoints []string          `json:"key_talking_points"`
	VisualSuggestion []string          `json:"visual_suggestions"`
	ViralScore       float64           `json:"viral_score"` // 0..1
	TargetEmotion    string            `json:"target_emotion"`
	ControversyLevel string            `json:"controversy_level"` // low/medium/high
	CallToAction     string            `json:"call_to_action"`
	Hashtags         []string          `json:"hashtag_suggestions"`
	PlatformVariants []PlatformVariant `json:"platform_variants"`
	Sources          []SourceRef       `json:"sources"`
	GeneratedAt      string            `json:"generated_at"`
	ConfidenceScore  float64           `json:"confidence_score"` // 0..1
}

// Step labels the pipeline stage most recently completed.
type Step string

const (
	StepQueriesDecomposed Step = "queries_decomposed"
	StepNewsScraped       Step = "news_scraped"
	StepSocialScraped     Step = "social_scraped"
	StepAnalysisComplete  Step = "analysis_complete"
	StepComplete          Step = "complete"
	StepError             Step = "error"
)

// PipelineState is the shared state accumulated across pipeline stages.
// Nodes return partial updates; the orchestrator merges them, appending
// to ExecutionLog and last-writer-wins on everything else.
type PipelineState struct {
	Request ResearchRequest `json:"request"`

	SubQueries    []string   `json:"sub_queries,omitempty"`
	NewsResults   []Document `json:"news_results,omitempty"`
	SocialResults []Document `json:"social_results,omitempty"`
	ForumResults  []Document `json:"forum_results,omitempty"`

	Analysis   *AnalysisResult `json:"analysis,omitempty"`
	VideoBrief *VideoBrief     `json:"video_brief,omitempty"`

	Error       string `json:"error,omitempty"`
	CurrentStep Step   `json:"current_step,omitempty"`

	TotalSourcesScraped int      `json:"total_sources_scraped"`
	ExecutionLog        []string `json:"execution_log,omitempty"`
}

// AllDocuments returns every collected document in stage order:
// news, then social, then forum.
func (s *PipelineState) AllDocuments() []Document {
	out := make([]Document, 0, len(s.NewsResults)+len(s.SocialResults)+len(s.ForumResults))
	out = append(out, s.NewsResults...)
	out = append(out, s.SocialResults...)
	out = append(out, s.ForumResults...)
	return out
}

// Clamp01 bounds a score into [0,1]. Shared by agents and stores.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
