package config

import (
	"fmt"
	"time"

	"github.com/mfenderov/calscrape/internal/backoff"
	"github.com/mfenderov/calscrape/internal/cache"
	"github.com/mfenderov/calscrape/internal/elasticsearch"
	"github.com/mfenderov/calscrape/internal/extraction"
	"github.com/mfenderov/calscrape/internal/ics"
	"github.com/mfenderov/calscrape/internal/llm"
	"github.com/mfenderov/calscrape/internal/mcp"
	"github.com/mfenderov/calscrape/internal/pipeline"
	"github.com/mfenderov/calscrape/internal/processor"
	"github.com/mfenderov/calscrape/internal/scraper"
	"github.com/mfenderov/calscrape/internal/storage"
)

// Config holds all application configuration.
type Config struct {
	LLM           llm.Config        `mapstructure:"llm"`
	Scraper       scraper.Config    `mapstructure:"scraper"`
	Cache         Cache             `mapstructure:"cache"`
	Processor     processor.Options `mapstructure:"processor"`
	Extraction    Extraction        `mapstructure:"extraction"`
	ICS           ics.Options       `mapstructure:"ics"`
	Storage       Storage           `mapstructure:"storage"`
	Elasticsearch Elasticsearch     `mapstructure:"elasticsearch"`
	MCP           mcp.Config        `mapstructure:"mcp"`
	Schedule      Schedule          `mapstructure:"schedule"`
	Sources       []Source          `mapstructure:"sources"`
	Timezones     []TimezoneAlias   `mapstructure:"timezones"`
}

// Cache holds page cache configuration.
type Cache struct {
	Enabled    bool          `mapstructure:"enabled"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// Extraction holds per-run defaults and the extraction engine settings.
type Extraction struct {
	Mode              string                  `mapstructure:"mode"`
	MinChunks         int                     `mapstructure:"min_chunks"`
	Fuzzy             bool                    `mapstructure:"fuzzy"`
	Deadline          time.Duration           `mapstructure:"deadline"`
	Language          string                  `mapstructure:"language"`
	AdditionalContext string                  `mapstructure:"additional_context"`
	Engine            extraction.Options      `mapstructure:",squash"`
	Batch             extraction.BatchOptions `mapstructure:"batch"`
}

// Storage holds S3/MinIO archive configuration.
type Storage struct {
	Enabled        bool `mapstructure:"enabled"`
	ArchivePages   bool `mapstructure:"archive_pages"`
	storage.Config `mapstructure:",squash"`
}

// Elasticsearch holds event index configuration.
type Elasticsearch struct {
	Enabled              bool `mapstructure:"enabled"`
	elasticsearch.Config `mapstructure:",squash"`
}

// Schedule holds the cron settings of the schedule command.
type Schedule struct {
	Cron       string `mapstructure:"cron"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// Source defines a calendar page to extract from.
type Source struct {
	Name         string            `mapstructure:"name"`
	URL          string            `mapstructure:"url"`
	Timezone     string            `mapstructure:"timezone"`
	Mode         string            `mapstructure:"mode"`
	Headers      map[string]string `mapstructure:"headers"`
	CalendarName string            `mapstructure:"calendar_name"`
	Output       string            `mapstructure:"output"`
}

// TimezoneAlias adds a name the timezone table recognizes. Aliases are a
// list rather than a map because config keys are case-folded and
// abbreviations depend on case.
type TimezoneAlias struct {
	Name string `mapstructure:"name"`
	Zone string `mapstructure:"zone"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		LLM: llm.Config{
			Model:       llm.DefaultModel,
			MaxTokens:   llm.DefaultMaxTokens,
			Temperature: 0.1,
			Timeout:     llm.DefaultTimeout,
			Retry:       backoff.DefaultPolicy(),
		},
		Scraper: scraper.Config{
			UserAgent:        scraper.DefaultUserAgent,
			Timeout:          scraper.DefaultTimeout,
			TryMarkdownFirst: true, // Try markdown versions of pages first
			Retry:            backoff.DefaultPolicy(),
			CacheTTL:         cache.DefaultTTL,
		},
		Cache: Cache{
			Enabled:    true,
			TTL:        cache.DefaultTTL,
			MaxEntries: cache.DefaultMaxEntries,
		},
		Processor: processor.DefaultOptions(),
		Extraction: Extraction{
			Mode:     string(pipeline.ModeDocument),
			Language: "en",
			Engine:   extraction.DefaultOptions(),
			Batch:    extraction.DefaultBatchOptions(),
		},
		ICS: ics.DefaultOptions(),
		Storage: Storage{
			Enabled:      false, // Requires a running MinIO
			ArchivePages: true,
			Config: storage.Config{
				Endpoint:        "localhost:9000",
				Bucket:          "calscrape",
				AccessKeyID:     "minioadmin",
				SecretAccessKey: "minioadmin",
				UseSSL:          false,
			},
		},
		Elasticsearch: Elasticsearch{
			Enabled: false, // Requires a running Elasticsearch
			Config: elasticsearch.Config{
				Addresses: []string{"http://localhost:9200"},
				Index:     "calscrape-events",
			},
		},
		MCP: mcp.Config{
			Name:    "calscrape",
			Version: "1.0.0",
		},
		Schedule: Schedule{
			Cron: "0 */6 * * *",
		},
	}
}

// TimezoneTable builds the timezone table from the built-in names plus
// the configured aliases. Aliases override built-in names.
func (c Config) TimezoneTable() (*extraction.TimezoneTable, error) {
	names := make(map[string]string, len(extraction.DefaultTimezoneNames)+len(c.Timezones))
	for k, v := range extraction.DefaultTimezoneNames {
		names[k] = v
	}
	for _, alias := range c.Timezones {
		if alias.Name == "" {
			continue
		}
		if _, err := time.LoadLocation(alias.Zone); err != nil || alias.Zone == "" {
			return nil, fmt.Errorf("invalid zone %q for timezone alias %q", alias.Zone, alias.Name)
		}
		names[alias.Name] = alias.Zone
	}
	return extraction.NewTimezoneTable(names), nil
}

// PipelineOptions assembles the stage settings of every run.
func (c Config) PipelineOptions() (pipeline.Options, error) {
	table, err := c.TimezoneTable()
	if err != nil {
		return pipeline.Options{}, err
	}

	engine := c.Extraction.Engine
	engine.Timezones = table
	if engine.MaxTokens == 0 {
		engine.MaxTokens = c.LLM.MaxTokens
	}

	return pipeline.Options{
		Engine: engine,
		Batch:  c.Extraction.Batch,
		ICS:    c.ICS,
	}, nil
}

// RunConfig returns the per-run defaults for url, overlaid with the
// settings of source when it is non-nil.
func (c Config) RunConfig(url string, source *Source) pipeline.Config {
	run := pipeline.Config{
		URL:               url,
		Language:          c.Extraction.Language,
		AdditionalContext: c.Extraction.AdditionalContext,
		Mode:              pipeline.Mode(c.Extraction.Mode),
		MinChunks:         c.Extraction.MinChunks,
		Fuzzy:             c.Extraction.Fuzzy,
		Deadline:          c.Extraction.Deadline,
	}
	if source == nil {
		return run
	}

	if source.URL != "" && url == "" {
		run.URL = source.URL
	}
	if source.Timezone != "" {
		run.Timezone = source.Timezone
	}
	if source.Mode != "" {
		run.Mode = pipeline.Mode(source.Mode)
	}
	run.Headers = source.Headers
	run.CalendarName = source.CalendarName
	return run
}

// FindSource returns the configured source called name.
func (c Config) FindSource(name string) (*Source, bool) {
	for i := range c.Sources {
		if c.Sources[i].Name == name {
			return &c.Sources[i], true
		}
	}
	return nil, false
}
