package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"clipbrief/internal/agents"
	"clipbrief/internal/core"
	"clipbrief/internal/gather"
	"clipbrief/internal/llm"
	"clipbrief/internal/logger"
	"clipbrief/internal/memory"
	"clipbrief/internal/pipeline"
	"clipbrief/internal/ratelimit"
	"clipbrief/internal/render"
	"clipbrief/internal/scrape"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/genai"
)

var researchCmd = &cobra.Command{
	Use:   "research <topic>",
	Short: "Research a topic and produce a video brief",
	Long: `Decompose the topic into search queries, gather matching news,
social posts and forum threads, analyze the material and write a
markdown video brief.

Example:
  clipbrief research "AI 失業潮"
  clipbrief research --sources news,forum --depth 3 "電動車補助"
  clipbrief research --user alice --platforms tiktok "新竹房價"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		req := core.NewResearchRequest(args[0])
		if v, _ := cmd.Flags().GetString("user"); v != "" {
			req.UserID = v
		}
		if v, _ := cmd.Flags().GetString("language"); v != "" {
			req.Language = v
		}
		if v, _ := cmd.Flags().GetInt("depth"); cmd.Flags().Changed("depth") {
			req.Depth = v
		}
		if v, _ := cmd.Flags().GetInt("max-results"); cmd.Flags().Changed("max-results") {
			req.MaxResultsPerSource = v
		}
		if v, _ := cmd.Flags().GetString("tone"); v != "" {
			req.Tone = v
		}
		req.TargetPlatforms, _ = cmd.Flags().GetStringSlice("platforms")
		req.LinkedInURLs, _ = cmd.Flags().GetStringSlice("linkedin")

		if names, _ := cmd.Flags().GetStringSlice("sources"); len(names) > 0 {
			sources, err := parseSources(names)
			if err != nil {
				logger.Error("Invalid sources flag", err)
				os.Exit(1)
			}
			req.Sources = sources
		}

		outputDir, _ := cmd.Flags().GetString("output")
		if err := runResearch(cmd.Context(), req, outputDir); err != nil {
			logger.Error("Research failed", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(researchCmd)

	researchCmd.Flags().String("user", "", "user id for personalization and memory")
	researchCmd.Flags().String("language", "", "request language tag (default zh-TW)")
	researchCmd.Flags().StringSlice("sources", nil, "sources to gather from: news, social, forum")
	researchCmd.Flags().Int("depth", 0, "research depth 1-5 (default 2)")
	researchCmd.Flags().Int("max-results", 0, "max results per source 1-50 (default 10)")
	researchCmd.Flags().String("tone", "", "brief tone (default neutral)")
	researchCmd.Flags().StringSlice("platforms", nil, "target platforms: tiktok, youtube_shorts, instagram_reels (default all)")
	researchCmd.Flags().StringSlice("linkedin", nil, "LinkedIn post or company URLs to include")
	researchCmd.Flags().String("output", "briefs", "directory for the rendered brief")
}

func parseSources(names []string) ([]core.SourceKind, error) {
	var sources []core.SourceKind
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "news":
			sources = append(sources, core.SourceNews)
		case "social":
			sources = append(sources, core.SourceSocial)
		case "forum":
			sources = append(sources, core.SourceForum)
		default:
			return nil, fmt.Errorf("unknown source %q (want news, social or forum)", name)
		}
	}
	return sources, nil
}

func runResearch(ctx context.Context, req core.ResearchRequest, outputDir string) error {
	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute)
	client := scrape.NewClient(cfg.Scrape.RequestTimeoutDuration(), limiter)

	var newsapi *scrape.NewsAPIAdapter
	if cfg.Scrape.NewsAPIKey != "" {
		adapter, err := scrape.NewNewsAPIAdapter(client, cfg.Scrape.NewsAPIKey)
		if err != nil {
			return err
		}
		newsapi = adapter
	} else {
		logger.Info("NEWSAPI_KEY not set, gathering news from Google News only")
	}
	news := gather.NewNewsCoordinator(scrape.NewGoogleNewsAdapter(client), newsapi)
	social := gather.NewSocialCoordinator(
		scrape.NewThreadsAdapter(client),
		scrape.NewPTTAdapter(client),
		scrape.NewLinkedInAdapter(client),
		cfg.Scrape.ForumBoards,
	)

	model, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return err
	}

	// A named user gets a personalized analysis prompt and a memory of
	// this run; anonymous runs skip the memory stores entirely.
	var (
		manager *memory.Manager
		gen     agentGenerator = model
	)
	if req.UserID != "" && req.UserID != "anonymous" {
		if err := memory.ValidateUserID(req.UserID); err != nil {
			return err
		}
		if err := cfg.EnsureDataDirs(); err != nil {
			return err
		}
		store, err := memory.NewStore(cfg.Memory.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		vector, err := memory.NewVectorStore(cfg.Memory.VectorStoreDir, model)
		if err != nil {
			return err
		}
		manager = memory.NewManager(store, vector)
		gen = &personalizedGenerator{
			inner:  model,
			engine: memory.NewPersonalizer(manager),
			userID: req.UserID,
			topic:  req.Topic,
		}
	}

	pipe := pipeline.New(
		agents.NewDecomposer(model),
		news,
		social,
		agents.NewAnalyzer(gen),
		agents.NewSynthesizer(gen),
	)

	state, err := pipe.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Print(render.TerminalSummary(state))
	if state.Error != "" {
		return fmt.Errorf("research run ended at %s", state.CurrentStep)
	}

	path, err := render.RenderMarkdownBrief(state.VideoBrief, outputDir)
	if err != nil {
		return err
	}
	fmt.Printf("\n完整企劃已寫入 %s\n", path)

	if manager != nil {
		content := fmt.Sprintf("研究主題：%s\n標題：%s\n開場：%s",
			req.Topic, state.VideoBrief.TitleSuggestion, state.VideoBrief.HookLine)
		if err := manager.StoreConversation(ctx, req.UserID, uuid.NewString(), content, map[string]string{
			"topic": req.Topic,
		}); err != nil {
			logger.Warn("Failed to store conversation", "user_id", req.UserID, "error", err.Error())
		}
	}
	return nil
}

// agentGenerator mirrors the LLM surface the agents consume so the
// personalizing wrapper can stand in for the raw client.
type agentGenerator interface {
	GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema, out any) error
}

// personalizedGenerator prepends the user's learned context to every
// prompt. Personalization failures fall back to the base prompt.
type personalizedGenerator struct {
	inner  agentGenerator
	engine *memory.Personalizer
	userID string
	topic  string
}

func (g *personalizedGenerator) GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema, out any) error {
	personalized, err := g.engine.Personalize(ctx, prompt, g.userID, g.topic, g.topic)
	if err != nil {
		logger.Warn("Personalization failed, using base prompt", "user_id", g.userID, "error", err.Error())
		personalized = prompt
	}
	return g.inner.GenerateJSON(ctx, personalized, schema, out)
}
