package pipeline

import (
	"context"

	"github.com/mfenderov/calscrape/pkg/models"
)

// ProgressKind tags a Progress item.
type ProgressKind string

const (
	ProgressStatus   ProgressKind = "status"
	ProgressEvent    ProgressKind = "event"
	ProgressComplete ProgressKind = "complete"
	ProgressError    ProgressKind = "error"
)

// Progress is one item of a streamed run. Event is set for event items,
// Result for the complete item and Err for the error item.
type Progress struct {
	Kind    ProgressKind
	Message string
	Event   *models.CalendarEvent
	Result  *Result
	Err     error
}

func status(msg string) Progress {
	return Progress{Kind: ProgressStatus, Message: msg}
}

func eventProgress(ev models.CalendarEvent) Progress {
	return Progress{Kind: ProgressEvent, Message: ev.Title, Event: &ev}
}

// Stream runs cfg in the background and reports progress in order: status
// and event items, then exactly one complete or error item, after which
// the channel is closed. Status and event items are dropped once ctx is
// done; the final item is always delivered, so callers must drain the
// channel.
func (p *Pipeline) Stream(ctx context.Context, cfg Config) <-chan Progress {
	ch := make(chan Progress, 16)
	go func() {
		defer close(ch)
		emit := func(pr Progress) {
			select {
			case ch <- pr:
			case <-ctx.Done():
			}
		}
		res, err := p.run(ctx, cfg, emit)
		if err != nil {
			ch <- Progress{Kind: ProgressError, Message: err.Error(), Err: err}
			return
		}
		ch <- Progress{Kind: ProgressComplete, Message: "complete", Result: res}
	}()
	return ch
}
