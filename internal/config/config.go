// Package config loads application configuration from a YAML file,
// environment variables and .env, with sensible defaults for local use.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       App       `mapstructure:"app"`
	LLM       LLM       `mapstructure:"llm"`
	Scrape    Scrape    `mapstructure:"scrape"`
	RateLimit RateLimit `mapstructure:"rate_limit"`
	Memory    Memory    `mapstructure:"memory"`
}

// App holds general application configuration.
type App struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	DataDir  string `mapstructure:"data_dir"`
}

// LLM holds model provider configuration. Provider selects between the
// primary (Gemini API) and secondary (Vertex) backends.
type LLM struct {
	Provider       string  `mapstructure:"provider"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	Temperature    float32 `mapstructure:"temperature"`
	MaxTokens      int32   `mapstructure:"max_tokens"`
}

// Scrape holds upstream source configuration.
type Scrape struct {
	NewsAPIKey     string   `mapstructure:"newsapi_key"`
	RequestTimeout string   `mapstructure:"request_timeout"`
	ForumBoards    []string `mapstructure:"forum_boards"`
}

// RequestTimeoutDuration parses the request timeout, defaulting to 30s.
func (s Scrape) RequestTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.RequestTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// RateLimit holds admission control configuration.
type RateLimit struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// Memory holds persistence configuration for the memory engine.
type Memory struct {
	DBPath         string `mapstructure:"db_path"`
	VectorStoreDir string `mapstructure:"vectorstore_dir"`
}

func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.data_dir", ".clipbrief")

	viper.SetDefault("llm.provider", "primary")
	viper.SetDefault("llm.model", "gemini-flash-lite-latest")
	viper.SetDefault("llm.embedding_model", "gemini-embedding-001")
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.max_tokens", 4096)

	viper.SetDefault("scrape.request_timeout", "30s")
	viper.SetDefault("scrape.forum_boards", []string{"Gossiping", "Stock", "Tech_Job"})

	viper.SetDefault("rate_limit.requests_per_minute", 60)

	viper.SetDefault("memory.db_path", "data/memory/memory.db")
	viper.SetDefault("memory.vectorstore_dir", "data/memory/vectorstore")
}

// Load reads configuration from the given file (or the default search
// path when empty), layering .env and environment variables on top.
func Load(cfgFile string) (*Config, error) {
	// .env is optional; ignore a missing file.
	_ = godotenv.Load()

	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".clipbrief")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("CLIPBRIEF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errorsAs(err, &notFound) {
			// An explicit file that fails to load is an error; the
			// default search path is allowed to come up empty.
			if cfgFile != "" {
				return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Direct env keys take precedence over file values for secrets.
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("NEWSAPI_KEY"); v != "" {
		cfg.Scrape.NewsAPIKey = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature %v out of range [0,2]", c.LLM.Temperature)
	}
	switch c.LLM.Provider {
	case "primary", "secondary":
	default:
		return fmt.Errorf("llm.provider %q must be primary or secondary", c.LLM.Provider)
	}
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warning", "warn", "error":
	default:
		return fmt.Errorf("app.log_level %q is not a recognized level", c.App.LogLevel)
	}
	if c.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("rate_limit.requests_per_minute must be positive")
	}
	return nil
}

// EnsureDataDirs creates the directories backing the memory engine.
func (c *Config) EnsureDataDirs() error {
	for _, dir := range []string{filepath.Dir(c.Memory.DBPath), c.Memory.VectorStoreDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}
	return nil
}

// errorsAs is a tiny indirection so validate/load stay readable.
func errorsAs(err error, target *viper.ConfigFileNotFoundError) bool {
	if e, ok := err.(viper.ConfigFileNotFoundError); ok {
		*target = e
		return true
	}
	return false
}
