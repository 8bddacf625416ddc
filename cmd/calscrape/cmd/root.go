package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mfenderov/calscrape/internal/config"
)

var (
	cfgFile string
	verbose bool
	cfg     config.Config
)

// GetConfig returns the loaded configuration.
func GetConfig() config.Config {
	return cfg
}

var rootCmd = &cobra.Command{
	Use:   "calscrape",
	Short: "calscrape: turn event web pages into calendars",
	Long: `calscrape fetches web pages that list events, extracts the events with
an LLM (plus any JSON-LD, microdata or RDFa on the page), deduplicates and
validates them, and writes an iCalendar file.

Commands:
  scrape    Extract events from a URL or configured sources
  search    Search previously extracted events
  serve     Start the MCP server
  schedule  Extract configured sources on a cron schedule
  ingest    Re-index an archived run
  inspect   Print the events of an .ics file`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func initLogger() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func initConfig() {
	// Start with defaults
	cfg = config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/calscrape")
		viper.AddConfigPath(".")
	}

	// Environment variable overrides
	// CALSCRAPE_LLM_MODEL -> llm.model
	viper.SetEnvPrefix("CALSCRAPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Explicitly bind nested env vars
	viper.BindEnv("llm.api_key", "CALSCRAPE_LLM_API_KEY", "OPENAI_API_KEY")
	viper.BindEnv("llm.base_url", "CALSCRAPE_LLM_BASE_URL")
	viper.BindEnv("llm.socket_path", "CALSCRAPE_LLM_SOCKET_PATH")
	viper.BindEnv("llm.model", "CALSCRAPE_LLM_MODEL")
	viper.BindEnv("llm.max_tokens", "CALSCRAPE_LLM_MAX_TOKENS")
	viper.BindEnv("scraper.user_agent", "CALSCRAPE_SCRAPER_USER_AGENT")
	viper.BindEnv("scraper.timeout", "CALSCRAPE_SCRAPER_TIMEOUT")
	viper.BindEnv("extraction.mode", "CALSCRAPE_EXTRACTION_MODE")
	viper.BindEnv("extraction.default_timezone", "CALSCRAPE_EXTRACTION_DEFAULT_TIMEZONE")
	viper.BindEnv("storage.enabled", "CALSCRAPE_STORAGE_ENABLED")
	viper.BindEnv("storage.endpoint", "CALSCRAPE_STORAGE_ENDPOINT")
	viper.BindEnv("storage.bucket", "CALSCRAPE_STORAGE_BUCKET")
	viper.BindEnv("storage.access_key_id", "CALSCRAPE_STORAGE_ACCESS_KEY_ID")
	viper.BindEnv("storage.secret_access_key", "CALSCRAPE_STORAGE_SECRET_ACCESS_KEY")
	viper.BindEnv("elasticsearch.enabled", "CALSCRAPE_ELASTICSEARCH_ENABLED")
	viper.BindEnv("elasticsearch.addresses", "CALSCRAPE_ELASTICSEARCH_ADDRESSES")
	viper.BindEnv("elasticsearch.index", "CALSCRAPE_ELASTICSEARCH_INDEX")
	viper.BindEnv("elasticsearch.username", "CALSCRAPE_ELASTICSEARCH_USERNAME")
	viper.BindEnv("elasticsearch.password", "CALSCRAPE_ELASTICSEARCH_PASSWORD")
	viper.BindEnv("schedule.cron", "CALSCRAPE_SCHEDULE_CRON")
	viper.BindEnv("mcp.name", "CALSCRAPE_MCP_NAME")
	viper.BindEnv("mcp.version", "CALSCRAPE_MCP_VERSION")

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("config file error", "error", err)
		}
		// No config file - use defaults + env vars
	}

	// Unmarshal into struct (merges config file with defaults)
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Warn("failed to parse config", "error", err)
	}

	// Handle special case: addresses as comma-separated string from env
	if addrs := os.Getenv("CALSCRAPE_ELASTICSEARCH_ADDRESSES"); addrs != "" {
		cfg.Elasticsearch.Addresses = strings.Split(addrs, ",")
	}
}
