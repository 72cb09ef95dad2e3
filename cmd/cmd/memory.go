package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"clipbrief/internal/llm"
	"clipbrief/internal/logger"
	"clipbrief/internal/memory"

	"github.com/spf13/cobra"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and manage per-user memory",
	Long: `Manage the personalization memory: user profiles, submitted
feedback, learned corrections and topic preferences.

Example:
  clipbrief memory profile alice
  clipbrief memory set alice preferred_style=technical
  clipbrief memory feedback alice --original "台積電是美國公司" --correction "總部在台灣新竹"
  clipbrief memory process alice
  clipbrief memory export alice > alice.json
  clipbrief memory delete alice --yes`,
}

// openMemoryService builds the full memory stack. The LLM client is
// needed for embeddings and feedback distillation, so every memory
// command requires GEMINI_API_KEY.
func openMemoryService(cmd *cobra.Command) (*memory.Service, func(), error) {
	if err := cfg.EnsureDataDirs(); err != nil {
		return nil, nil, err
	}
	model, err := llm.NewClient(cmd.Context(), cfg.LLM)
	if err != nil {
		return nil, nil, err
	}
	store, err := memory.NewStore(cfg.Memory.DBPath)
	if err != nil {
		return nil, nil, err
	}
	vector, err := memory.NewVectorStore(cfg.Memory.VectorStoreDir, model)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	manager := memory.NewManager(store, vector)
	svc := memory.NewService(manager, memory.NewFeedbackProcessor(manager, model))
	return svc, func() { store.Close() }, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

var memoryProfileCmd = &cobra.Command{
	Use:   "profile <user>",
	Short: "Show a user's profile",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, closeFn, err := openMemoryService(cmd)
		if err != nil {
			logger.Error("Failed to open memory", err)
			os.Exit(1)
		}
		defer closeFn()

		profile, err := svc.GetProfile(args[0])
		if err != nil {
			logger.Error("Failed to load profile", err, "user_id", args[0])
			os.Exit(1)
		}
		if err := printJSON(profile); err != nil {
			logger.Error("Failed to encode profile", err)
			os.Exit(1)
		}
	},
}

var memorySetCmd = &cobra.Command{
	Use:   "set <user> <key=value>...",
	Short: "Update profile preferences",
	Long: `Update whitelisted profile fields. Keys: display_name, language,
preferred_style, analysis_depth, blocked_sources (comma-separated).`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		updates := make(map[string]any)
		for _, pair := range args[1:] {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				logger.Error("Invalid preference", fmt.Errorf("%q is not key=value", pair))
				os.Exit(1)
			}
			if key == "blocked_sources" {
				updates[key] = strings.Split(value, ",")
			} else {
				updates[key] = value
			}
		}

		svc, closeFn, err := openMemoryService(cmd)
		if err != nil {
			logger.Error("Failed to open memory", err)
			os.Exit(1)
		}
		defer closeFn()

		profile, err := svc.UpdatePreferences(args[0], updates)
		if err != nil {
			logger.Error("Failed to update preferences", err, "user_id", args[0])
			os.Exit(1)
		}
		if err := printJSON(profile); err != nil {
			logger.Error("Failed to encode profile", err)
			os.Exit(1)
		}
	},
}

var memoryFeedbackCmd = &cobra.Command{
	Use:   "feedback <user>",
	Short: "Submit feedback on a past analysis",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		typeName, _ := cmd.Flags().GetString("type")
		fbType, err := parseFeedbackType(typeName)
		if err != nil {
			logger.Error("Invalid feedback type", err)
			os.Exit(1)
		}
		original, _ := cmd.Flags().GetString("original")
		correction, _ := cmd.Flags().GetString("correction")
		explanation, _ := cmd.Flags().GetString("explanation")
		session, _ := cmd.Flags().GetString("session")
		topics, _ := cmd.Flags().GetStringSlice("topics")

		svc, closeFn, err := openMemoryService(cmd)
		if err != nil {
			logger.Error("Failed to open memory", err)
			os.Exit(1)
		}
		defer closeFn()

		id, err := svc.SubmitFeedback(args[0], memory.Feedback{
			SessionID:        session,
			Type:             fbType,
			OriginalAnalysis: original,
			UserCorrection:   correction,
			UserExplanation:  explanation,
			Topics:           topics,
		})
		if err != nil {
			logger.Error("Failed to submit feedback", err, "user_id", args[0])
			os.Exit(1)
		}
		fmt.Printf("feedback %s recorded\n", id)
	},
}

func parseFeedbackType(name string) (memory.FeedbackType, error) {
	switch memory.FeedbackType(strings.ToLower(name)) {
	case memory.FeedbackCorrection:
		return memory.FeedbackCorrection, nil
	case memory.FeedbackDisagreement:
		return memory.FeedbackDisagreement, nil
	case memory.FeedbackPreference:
		return memory.FeedbackPreference, nil
	case memory.FeedbackRelevance:
		return memory.FeedbackRelevance, nil
	case memory.FeedbackQuality:
		return memory.FeedbackQuality, nil
	}
	return "", fmt.Errorf("unknown feedback type %q", name)
}

var memoryProcessCmd = &cobra.Command{
	Use:     "process <user>",
	Aliases: []string{"learn"},
	Short:   "Distill pending feedback into learned corrections",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, closeFn, err := openMemoryService(cmd)
		if err != nil {
			logger.Error("Failed to open memory", err)
			os.Exit(1)
		}
		defer closeFn()

		learned, err := svc.ProcessFeedback(cmd.Context(), args[0])
		if err != nil {
			logger.Error("Failed to process feedback", err, "user_id", args[0])
			os.Exit(1)
		}
		fmt.Printf("learned %d correction(s)\n", learned)
	},
}

var memoryTopicCmd = &cobra.Command{
	Use:   "topic <user> <topic>",
	Short: "Set interest level and notes for a topic",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		interest, _ := cmd.Flags().GetFloat64("interest")
		notes, _ := cmd.Flags().GetString("notes")

		svc, closeFn, err := openMemoryService(cmd)
		if err != nil {
			logger.Error("Failed to open memory", err)
			os.Exit(1)
		}
		defer closeFn()

		if err := svc.UpdateTopicPreference(args[0], args[1], interest, notes); err != nil {
			logger.Error("Failed to update topic preference", err, "user_id", args[0])
			os.Exit(1)
		}
		fmt.Printf("topic %q updated for %s\n", args[1], args[0])
	},
}

var memoryExportCmd = &cobra.Command{
	Use:   "export <user>",
	Short: "Export all stored data for a user as JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, closeFn, err := openMemoryService(cmd)
		if err != nil {
			logger.Error("Failed to open memory", err)
			os.Exit(1)
		}
		defer closeFn()

		export, err := svc.ExportUser(args[0])
		if err != nil {
			logger.Error("Failed to export user", err, "user_id", args[0])
			os.Exit(1)
		}
		if err := printJSON(export); err != nil {
			logger.Error("Failed to encode export", err)
			os.Exit(1)
		}
	},
}

var memoryDeleteCmd = &cobra.Command{
	Use:   "delete <user>",
	Short: "Delete all stored data for a user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		confirmed, _ := cmd.Flags().GetBool("yes")
		if !confirmed {
			fmt.Fprintln(os.Stderr, "deletion is permanent; re-run with --yes to confirm")
			os.Exit(1)
		}

		svc, closeFn, err := openMemoryService(cmd)
		if err != nil {
			logger.Error("Failed to open memory", err)
			os.Exit(1)
		}
		defer closeFn()

		deleted, err := svc.DeleteUser(args[0])
		if err != nil {
			logger.Error("Failed to delete user", err, "user_id", args[0])
			os.Exit(1)
		}
		if deleted {
			fmt.Printf("all data for %s deleted\n", args[0])
		} else {
			fmt.Printf("no data found for %s\n", args[0])
		}
	},
}

func init() {
	memoryFeedbackCmd.Flags().String("type", "correction", "feedback type: correction, disagreement, preference, relevance or quality")
	memoryFeedbackCmd.Flags().String("original", "", "the analysis text being corrected")
	memoryFeedbackCmd.Flags().String("correction", "", "what the analysis should have said")
	memoryFeedbackCmd.Flags().String("explanation", "", "why the original was wrong")
	memoryFeedbackCmd.Flags().String("session", "", "session id the feedback refers to")
	memoryFeedbackCmd.Flags().StringSlice("topics", nil, "topics the feedback applies to")

	memoryTopicCmd.Flags().Float64("interest", 0.5, "interest level 0-1")
	memoryTopicCmd.Flags().String("notes", "", "free-form notes about the topic")

	memoryDeleteCmd.Flags().Bool("yes", false, "confirm permanent deletion")

	memoryCmd.AddCommand(memoryProfileCmd, memorySetCmd, memoryFeedbackCmd,
		memoryProcessCmd, memoryTopicCmd, memoryExportCmd, memoryDeleteCmd)
	rootCmd.AddCommand(memoryCmd)
}
