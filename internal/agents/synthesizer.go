package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"clipbrief/internal/core"
)

const briefTimeFormat = "2006-01-02 15:04"

// defaultPlatformVariants carries the production metadata for each
// supported short-form platform. LLM tips override the defaults when
// present.
var defaultPlatformVariants = []core.PlatformVariant{
	{
		Platform:    "TikTok",
		Duration:    "15-60 秒",
		Format:      "直式短影音",
		AspectRatio: "9:16",
		Tips: []string{
			"前 3 秒放最強鉤子，否則會被滑掉",
			"善用熱門音效與字幕貼圖",
			"結尾丟問題引導留言",
		},
	},
	{
		Platform:    "YouTube Shorts",
		Duration:    "≤60 秒",
		Format:      "直式短影音",
		AspectRatio: "9:16",
		Tips: []string{
			"標題關鍵字要對齊搜尋意圖",
			"維持快節奏剪輯避免中段流失",
			"引導訂閱放在資訊高點之後",
		},
	},
	{
		Platform:    "Instagram Reels",
		Duration:    "≤90 秒",
		Format:      "直式短影音",
		AspectRatio: "9:16",
		Tips: []string{
			"封面圖決定探索頁點擊率",
			"字幕要大且對比清楚",
			"用投票或問答貼紙提升互動",
		},
	},
}

// briefOutput is the synthesizer's raw LLM response shape.
type briefOutput struct {
	Topic            string   `json:"topic"`
	TitleSuggestion  string   `json:"title_suggestion"`
	HookLine         string   `json:"hook_line"`
	KeyTalkingPoints []string `json:"key_talking_points"`
	VisualSuggestion []string `json:"visual_suggestions"`
	ViralScore       float64  `json:"viral_score"`
	TargetEmotion    string   `json:"target_emotion"`
	ControversyLevel string   `json:"controversy_level"`
	CallToAction     string   `json:"call_to_action"`
	Hashtags         []string `json:"hashtag_suggestions"`
	PlatformTips     struct {
		TikTok         []string `json:"tiktok"`
		YouTubeShorts  []string `json:"youtube_shorts"`
		InstagramReels []string `json:"instagram_reels"`
	} `json:"platform_tips"`
}

// Synthesizer turns an analysis plus its documents into a VideoBrief.
type Synthesizer struct {
	gen generator
	now func() time.Time
}

// NewSynthesizer builds the agent.
func NewSynthesizer(gen generator) *Synthesizer {
	return &Synthesizer{gen: gen, now: time.Now}
}

// Synthesize produces the final brief. targetPlatforms filters the
// platform variants; empty means all platforms.
func (s *Synthesizer) Synthesize(ctx context.Context, req core.ResearchRequest, analysis *core.AnalysisResult, docs []core.Document, targetPlatforms []string) (*core.VideoBrief, error) {
	analysisJSON, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding analysis for %q: %w", req.Topic, err)
	}
	prompt := fmt.Sprintf(synthesizePromptTemplate, req.Topic, req.Tone, analysisJSON)

	var out briefOutput
	if err := s.gen.GenerateJSON(ctx, prompt, briefSchema, &out); err != nil {
		return nil, fmt.Errorf("synthesizing brief for %q: %w", req.Topic, err)
	}

	brief := &core.VideoBrief{
		Topic:            req.Topic,
		TitleSuggestion:  out.TitleSuggestion,
		HookLine:         out.HookLine,
		KeyTalkingPoints: out.KeyTalkingPoints,
		VisualSuggestion: out.VisualSuggestion,
		ViralScore:       core.Clamp01(out.ViralScore),
		TargetEmotion:    out.TargetEmotion,
		ControversyLevel: normalizeControversy(out.ControversyLevel),
		CallToAction:     out.CallToAction,
		Hashtags:         out.Hashtags,
		PlatformVariants: buildVariants(targetPlatforms, out),
		Sources:          buildSourceRefs(docs),
		GeneratedAt:      s.now().Format(briefTimeFormat),
		ConfidenceScore:  briefConfidence(analysis.ConfidenceScore, len(docs)),
	}
	return brief, nil
}

// briefConfidence blends analysis confidence with corpus size: ten or
// more documents count as a full corpus.
func briefConfidence(analysisConfidence float64, docCount int) float64 {
	coverage := float64(docCount) / 10
	if coverage > 1 {
		coverage = 1
	}
	return core.Clamp01(analysisConfidence*0.7 + 0.3*coverage)
}

// platformKey normalizes a platform label for matching, so both
// "YouTube Shorts" and "youtube_shorts" select the same variant.
func platformKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func buildVariants(targetPlatforms []string, out briefOutput) []core.PlatformVariant {
	wanted := make(map[string]bool, len(targetPlatforms))
	for _, p := range targetPlatforms {
		wanted[platformKey(p)] = true
	}

	llmTips := map[string][]string{
		"tiktok":          out.PlatformTips.TikTok,
		"youtube_shorts":  out.PlatformTips.YouTubeShorts,
		"instagram_reels": out.PlatformTips.InstagramReels,
	}

	var variants []core.PlatformVariant
	for _, v := range defaultPlatformVariants {
		key := platformKey(v.Platform)
		if len(wanted) > 0 && !wanted[key] {
			continue
		}
		if tips := llmTips[key]; len(tips) > 0 {
			v.Tips = tips
		}
		variants = append(variants, v)
	}
	return variants
}

func buildSourceRefs(docs []core.Document) []core.SourceRef {
	refs := make([]core.SourceRef, 0, len(docs))
	for _, d := range docs {
		ref := core.SourceRef{
			Title:      d.Title,
			URL:        d.URL,
			SourceKind: string(d.SourceKind),
		}
		if d.PublishedAt != nil {
			ref.PublishedAt = d.PublishedAt.Format(briefTimeFormat)
		}
		refs = append(refs, ref)
	}
	return refs
}

func normalizeControversy(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "low", "medium", "high":
		return strings.ToLower(strings.TrimSpace(level))
	default:
		return "low"
	}
}
