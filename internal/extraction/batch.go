package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mfenderov/calscrape/internal/dedup"
	"github.com/mfenderov/calscrape/pkg/models"
	"golang.org/x/sync/errgroup"
)

// BatchOptions controls wave scheduling.
type BatchOptions struct {
	Concurrency  int           `mapstructure:"concurrency"`
	WaveDelay    time.Duration `mapstructure:"wave_delay"`
	ChunkTimeout time.Duration `mapstructure:"chunk_timeout"`
}

// DefaultBatchOptions runs three chunks per wave, one second apart.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		Concurrency:  3,
		WaveDelay:    time.Second,
		ChunkTimeout: 2 * time.Minute,
	}
}

// BatchResult merges the outcome of every chunk.
type BatchResult struct {
	Events           []models.CalendarEvent
	Warnings         []string
	ChunksProcessed  int
	ChunksFailed     int
	DetectedTimezone string
}

// ExtractBatch extracts each chunk independently, Concurrency chunks per
// wave. A failed chunk contributes no events and one warning. Results are
// merged and deduplicated after all waves. Cancellation stops new waves
// and returns what was already extracted. The error is non-nil only when
// every chunk failed.
func (e *Engine) ExtractBatch(ctx context.Context, chunks []string, ec models.ExtractionContext, opts BatchOptions, sink EventSink) (*BatchResult, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	var mu sync.Mutex
	safeSink := func(ev models.CalendarEvent) {
		if sink == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		sink(ev)
	}

	results := make([]*ChunkResult, len(chunks))
	failures := make([]error, len(chunks))
	attempted := 0

	for start := 0; start < len(chunks); start += opts.Concurrency {
		if start > 0 {
			if err := sleep(ctx, opts.WaveDelay); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
		end := min(start+opts.Concurrency, len(chunks))
		slog.Debug("Extracting wave", "from", start, "to", end, "total", len(chunks))

		var g errgroup.Group
		g.SetLimit(opts.Concurrency)
		for i := start; i < end; i++ {
			g.Go(func() error {
				chunkCtx, cancel := chunkContext(ctx, opts.ChunkTimeout)
				defer cancel()
				res, err := e.Extract(chunkCtx, chunks[i], ec, safeSink)
				results[i] = res
				failures[i] = err
				return nil
			})
		}
		_ = g.Wait()
		attempted = end
	}

	out := &BatchResult{}
	var all []models.CalendarEvent
	var firstErr error
	for i := 0; i < attempted; i++ {
		if failures[i] != nil {
			out.ChunksFailed++
			out.Warnings = append(out.Warnings, fmt.Sprintf("chunk %d failed: %v", i+1, failures[i]))
			slog.Warn("Chunk extraction failed", "chunk", i+1, "error", failures[i])
			if firstErr == nil {
				firstErr = failures[i]
			}
			continue
		}
		res := results[i]
		out.ChunksProcessed++
		all = append(all, res.Events...)
		out.Warnings = append(out.Warnings, res.Warnings...)
		if out.DetectedTimezone == "" {
			out.DetectedTimezone = res.DetectedTimezone
		}
	}
	if attempted < len(chunks) {
		out.Warnings = append(out.Warnings, fmt.Sprintf("cancelled after %d of %d chunks", attempted, len(chunks)))
	}
	out.Events = dedup.Deduplicate(all)

	if attempted > 0 && out.ChunksFailed == attempted {
		return out, fmt.Errorf("failed to extract any chunk: %w", firstErr)
	}
	return out, nil
}

func chunkContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
