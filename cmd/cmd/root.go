// Package cmd wires the CLI commands to the research pipeline and the
// memory service.
package cmd

import (
	"fmt"
	"os"

	"clipbrief/internal/config"
	"clipbrief/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "clipbrief",
	Short: "clipbrief researches a topic and drafts a short-video brief",
	Long: `clipbrief takes a topic, gathers recent coverage from news,
social and forum sources, runs an LLM analysis over the material and
produces a video brief: hook, talking points, platform variants and
cited sources.

A per-user memory keeps preferences and learned corrections so
repeated use gets more personal over time.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		if logLevel != "" {
			cfg.App.LogLevel = logLevel
		}
		logger.Init(cfg.App.LogLevel)
		return nil
	},
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.clipbrief.yaml or $HOME/.clipbrief.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
}
