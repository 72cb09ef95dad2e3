// Package render turns a finished VideoBrief into human-readable
// output: a markdown document for sharing and a compact terminal
// summary for the CLI.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clipbrief/internal/core"
)

// RenderMarkdownBrief writes the brief as a markdown file under
// outputDir and returns the file path.
func RenderMarkdownBrief(brief *core.VideoBrief, outputDir string) (string, error) {
	if outputDir == "" {
		outputDir = "briefs"
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	filename := fmt.Sprintf("brief_%s.md", time.Now().UTC().Format("2006-01-02_150405"))
	filePath := filepath.Join(outputDir, filename)

	if err := os.WriteFile(filePath, []byte(MarkdownBrief(brief)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write brief to %s: %w", filePath, err)
	}
	return filePath, nil
}

// MarkdownBrief renders the brief as a markdown document.
func MarkdownBrief(brief *core.VideoBrief) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", brief.TitleSuggestion)
	fmt.Fprintf(&b, "主題：%s\n\n", brief.Topic)
	fmt.Fprintf(&b, "> %s\n\n", brief.HookLine)

	fmt.Fprintf(&b, "病毒潛力 %.0f%% ｜ 信心 %.0f%% ｜ 爭議程度 %s ｜ 目標情緒 %s\n\n",
		brief.ViralScore*100, brief.ConfidenceScore*100, brief.ControversyLevel, brief.TargetEmotion)

	if len(brief.KeyTalkingPoints) > 0 {
		b.WriteString("## 論點\n\n")
		for i, point := range brief.KeyTalkingPoints {
			fmt.Fprintf(&b, "%d. %s\n", i+1, point)
			if i < len(brief.VisualSuggestion) {
				fmt.Fprintf(&b, "   - 畫面：%s\n", brief.VisualSuggestion[i])
			}
		}
		b.WriteString("\n")
	}

	if brief.CallToAction != "" {
		fmt.Fprintf(&b, "## 結尾引導\n\n%s\n\n", brief.CallToAction)
	}

	if len(brief.Hashtags) > 0 {
		fmt.Fprintf(&b, "## 標籤\n\n%s\n\n", strings.Join(brief.Hashtags, " "))
	}

	if len(brief.PlatformVariants) > 0 {
		b.WriteString("## 平台建議\n\n")
		for _, v := range brief.PlatformVariants {
			fmt.Fprintf(&b, "### %s（%s，%s %s）\n\n", v.Platform, v.Duration, v.Format, v.AspectRatio)
			for _, tip := range v.Tips {
				fmt.Fprintf(&b, "- %s\n", tip)
			}
			b.WriteString("\n")
		}
	}

	if len(brief.Sources) > 0 {
		b.WriteString("## 資料來源\n\n")
		for _, s := range brief.Sources {
			line := fmt.Sprintf("- [%s](%s)（%s", s.Title, s.URL, s.SourceKind)
			if s.PublishedAt != "" {
				line += "，" + s.PublishedAt
			}
			b.WriteString(line + "）\n")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n\n產生時間：%s\n", brief.GeneratedAt)
	return b.String()
}

// TerminalSummary renders a short plain-text view for CLI output.
func TerminalSummary(state *core.PipelineState) string {
	var b strings.Builder

	if state.Error != "" {
		fmt.Fprintf(&b, "研究失敗：%s\n", state.Error)
		return b.String()
	}

	brief := state.VideoBrief
	fmt.Fprintf(&b, "標題：%s\n", brief.TitleSuggestion)
	fmt.Fprintf(&b, "開場：%s\n", brief.HookLine)
	fmt.Fprintf(&b, "素材：%d 筆（新聞 %d / 社群 %d / 論壇 %d）\n",
		state.TotalSourcesScraped, len(state.NewsResults), len(state.SocialResults), len(state.ForumResults))
	fmt.Fprintf(&b, "病毒潛力：%.0f%%　信心：%.0f%%\n", brief.ViralScore*100, brief.ConfidenceScore*100)
	for i, point := range brief.KeyTalkingPoints {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, point)
	}
	return b.String()
}
