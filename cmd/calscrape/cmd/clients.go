package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mfenderov/calscrape/internal/cache"
	"github.com/mfenderov/calscrape/internal/config"
	"github.com/mfenderov/calscrape/internal/elasticsearch"
	"github.com/mfenderov/calscrape/internal/ingestion"
	"github.com/mfenderov/calscrape/internal/llm"
	"github.com/mfenderov/calscrape/internal/pipeline"
	"github.com/mfenderov/calscrape/internal/processor"
	"github.com/mfenderov/calscrape/internal/scraper"
	"github.com/mfenderov/calscrape/internal/storage"
)

// newPipeline wires the fetcher, LLM client and processor from config.
func newPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	llmClient, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	var pageCache cache.Cache
	if cfg.Cache.Enabled {
		pageCache = cache.NewMemory(cfg.Cache.TTL, cfg.Cache.MaxEntries)
	}

	opts, err := cfg.PipelineOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline options: %w", err)
	}

	slog.Debug("pipeline configured", "model", llmClient.Model(), "max_tokens", llmClient.MaxTokens())

	return pipeline.New(pipeline.Deps{
		Fetcher:   scraper.New(cfg.Scraper, pageCache),
		LLM:       llmClient,
		Processor: processor.NewWithOptions(cfg.Processor),
	}, opts), nil
}

// newStorage connects to the run archive and ensures its bucket exists.
func newStorage(ctx context.Context, cfg *config.Config) (*storage.Client, error) {
	storageClient, err := storage.New(cfg.Storage.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	if err := storageClient.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}
	return storageClient, nil
}

// newIndex creates the event index client.
func newIndex(cfg *config.Config) (*elasticsearch.Client, error) {
	esClient, err := elasticsearch.New(cfg.Elasticsearch.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}
	return esClient, nil
}

// newIngestion builds an ingestion engine over whichever targets are
// enabled. It returns nil when neither is.
func newIngestion(ctx context.Context, cfg *config.Config) (*ingestion.Engine, error) {
	var archive ingestion.Archive
	var index ingestion.Index

	if cfg.Storage.Enabled {
		storageClient, err := newStorage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		archive = storageClient
	}

	if cfg.Elasticsearch.Enabled {
		esClient, err := newIndex(cfg)
		if err != nil {
			return nil, err
		}
		index = esClient
	}

	if archive == nil && index == nil {
		return nil, nil
	}
	return ingestion.New(archive, index), nil
}
