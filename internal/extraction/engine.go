// Package extraction drives the multi-turn LLM conversation that turns page
// content into calendar events, recovering from truncated replies.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mfenderov/calscrape/internal/dedup"
	"github.com/mfenderov/calscrape/internal/errs"
	"github.com/mfenderov/calscrape/internal/llm"
	"github.com/mfenderov/calscrape/internal/partialjson"
	"github.com/mfenderov/calscrape/pkg/models"
)

// Completer is the LLM call the engine depends on. *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, system string, history []llm.Message) (*llm.Completion, error)
}

// EventSink receives each new event once, as soon as it is parsed.
type EventSink func(models.CalendarEvent)

// State is the lifecycle of one extraction.
type State string

const (
	StateAccumulating State = "ACCUMULATING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

const DefaultMaxContinuations = 10

// Options tunes the engine. Zero values take defaults, except
// ContinuationDelay where zero means no delay.
type Options struct {
	MaxContinuations  int                `mapstructure:"max_continuations"`
	ContinuationDelay time.Duration      `mapstructure:"continuation_delay"`
	MaxTokens         int                `mapstructure:"max_tokens"`
	DefaultTimezone   string             `mapstructure:"default_timezone"`
	Timezones         *TimezoneTable     `mapstructure:"-"`
	Truncation        TruncationDetector `mapstructure:"-"`
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		MaxContinuations:  DefaultMaxContinuations,
		ContinuationDelay: 500 * time.Millisecond,
		MaxTokens:         llm.DefaultMaxTokens,
		DefaultTimezone:   DefaultTimezone,
		Timezones:         DefaultTimezoneTable(),
		Truncation:        DefaultTruncationDetector(),
	}
}

// ChunkResult is the outcome of one extraction conversation.
type ChunkResult struct {
	Events           []models.CalendarEvent
	Warnings         []string
	Turns            int
	State            State
	DetectedTimezone string
}

// Engine runs extraction conversations against a Completer.
type Engine struct {
	llm  Completer
	opts Options
}

// New creates an engine.
func New(c Completer, opts Options) *Engine {
	if opts.MaxContinuations <= 0 {
		opts.MaxContinuations = DefaultMaxContinuations
	}
	if opts.DefaultTimezone == "" {
		opts.DefaultTimezone = DefaultTimezone
	}
	if opts.Timezones == nil {
		opts.Timezones = DefaultTimezoneTable()
	}
	if len(opts.Truncation.FieldNames) == 0 {
		opts.Truncation = DefaultTruncationDetector()
	}
	return &Engine{llm: c, opts: opts}
}

// Extract runs the conversation for one piece of content. Events are
// parsed after every turn and handed to sink as they first appear. An LLM
// failure after events were accumulated is reported as a warning; the
// error is returned only when nothing could be salvaged.
func (e *Engine) Extract(ctx context.Context, content string, ec models.ExtractionContext, sink EventSink) (*ChunkResult, error) {
	res := &ChunkResult{State: StateAccumulating}
	acc := newAccumulator(sink)
	history := []llm.Message{{Role: llm.RoleUser, Content: BuildUserPrompt(content, ec)}}
	var turns []string
	continuations := 0

	for {
		comp, err := e.llm.Complete(ctx, SystemPrompt, history)
		if err != nil {
			return e.salvage(res, acc, err)
		}
		res.Turns++
		text := comp.Text

		if len(turns) == 0 && !partialjson.HasStructure(text) {
			slog.Debug("Model reply carries no JSON", "length", len(text))
			break
		}
		if len(turns) > 0 && !looksLikeJSON(text) {
			slog.Debug("Continuation carries no JSON, stopping", "turn", res.Turns)
			break
		}
		turns = append(turns, text)
		e.absorb(turns, acc, ec, content)

		truncated, reason := e.opts.Truncation.Check(text, comp.Usage.CompletionTokens, e.opts.MaxTokens, comp.FinishReason)
		if !truncated {
			break
		}
		if continuations >= e.opts.MaxContinuations {
			acc.warn(fmt.Sprintf("reply still truncated after %d continuations", continuations))
			break
		}
		continuations++
		slog.Debug("Reply truncated, continuing", "reason", reason, "continuation", continuations, "events", acc.len())

		history = append(history,
			llm.Message{Role: llm.RoleAssistant, Content: text},
			llm.Message{Role: llm.RoleUser, Content: ContinuePrompt},
		)
		if err := sleep(ctx, e.opts.ContinuationDelay); err != nil {
			return e.salvage(res, acc, err)
		}
	}

	e.finish(res, acc, StateDone)
	return res, nil
}

// absorb parses the accumulated reply and, when the latest turn starts a
// fresh structure, that turn on its own.
func (e *Engine) absorb(turns []string, acc *accumulator, ec models.ExtractionContext, content string) {
	cleaned := make([]string, len(turns))
	for i, t := range turns {
		cleaned[i] = partialjson.StripFences(t)
	}
	texts := []string{strings.Join(cleaned, "")}
	if last := turns[len(turns)-1]; len(turns) > 1 && partialjson.OpensStructure(last) {
		texts = append(texts, partialjson.StripFences(last))
	}

	for _, text := range texts {
		v, _, err := partialjson.Parse(text)
		if v == nil {
			if err != nil {
				slog.Debug("No parsable JSON in reply", "error", err)
			}
			continue
		}
		payload, ok := ClassifyPayload(v)
		if !ok {
			continue
		}
		if ef, ok := payload.(EventsField); ok {
			if ef.DetectedTimezone != "" && !strings.EqualFold(ef.DetectedTimezone, "null") {
				acc.detected = ef.DetectedTimezone
			}
			for _, w := range ef.Warnings {
				acc.warn(w)
			}
		}

		zones := newZoneResolver(e.opts.Timezones, ec, acc.detected, content, e.opts.DefaultTimezone)
		for _, rec := range Records(payload) {
			raw := decodeRaw(rec)
			if raw.Title == "" && raw.StartDateTime == "" {
				continue
			}
			ev, err := toCalendarEvent(raw, zones)
			if err != nil {
				acc.warn(err.Error())
				continue
			}
			acc.add(ev)
		}
	}
}

func (e *Engine) salvage(res *ChunkResult, acc *accumulator, err error) (*ChunkResult, error) {
	if acc.len() > 0 {
		acc.warn(fmt.Sprintf("extraction stopped after %d turns, keeping %d events: %v", res.Turns, acc.len(), err))
		slog.Warn("Salvaged partial extraction", "turns", res.Turns, "events", acc.len(), "error", err)
		e.finish(res, acc, StateDone)
		return res, nil
	}
	e.finish(res, acc, StateFailed)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return res, err
	}
	return res, fmt.Errorf("failed to extract events: %w", asLLMError(err))
}

func (e *Engine) finish(res *ChunkResult, acc *accumulator, state State) {
	res.Events = dedup.Deduplicate(acc.events())
	res.Warnings = acc.warnings
	res.DetectedTimezone = acc.detected
	res.State = state
}

// asLLMError keeps typed errors and classifies the rest as LLM failures.
func asLLMError(err error) error {
	if errs.KindOf(err) != "" {
		return err
	}
	return errs.LLM("extraction.Extract", 0, errs.IsRetryable(err), err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// accumulator collects events across turns. Events sharing title and
// start are told apart by venue; a record without a venue joins the
// first event of its title and start, since a reply cut off before the
// location field repeats once the location arrives.
type accumulator struct {
	sink     EventSink
	order    []string
	byKey    map[string]models.CalendarEvent
	slots    map[string][]string
	warnings []string
	seen     map[string]bool
	detected string
}

func newAccumulator(sink EventSink) *accumulator {
	return &accumulator{
		sink:  sink,
		byKey: make(map[string]models.CalendarEvent),
		slots: make(map[string][]string),
		seen:  make(map[string]bool),
	}
}

func (a *accumulator) add(ev models.CalendarEvent) {
	key, ok := a.match(ev)
	if !ok {
		a.byKey[key] = ev
		a.order = append(a.order, key)
		if a.sink != nil {
			a.sink(ev)
		}
		return
	}
	existing := a.byKey[key]
	if !dedup.MoreComplete(ev, existing) {
		return
	}
	ev.UID = existing.UID
	if venue(ev) == "" {
		ev.Location = existing.Location
	}
	a.byKey[key] = ev
}

// match returns the key of the accumulated event ev repeats, or a fresh
// key and false.
func (a *accumulator) match(ev models.CalendarEvent) (string, bool) {
	slot, _ := dedup.FallbackKey(ev)
	v := venue(ev)
	keys := a.slots[slot]
	for _, k := range keys {
		if other := venue(a.byKey[k]); v == "" || other == "" || v == other {
			return k, true
		}
	}
	key := fmt.Sprintf("%s#%d", slot, len(keys))
	a.slots[slot] = append(keys, key)
	return key, false
}

// venue is the normalized location, empty for a placeholder.
func venue(ev models.CalendarEvent) string {
	if strings.EqualFold(strings.TrimSpace(ev.Location), models.DefaultLocation) {
		return ""
	}
	return dedup.NormalizeLocation(ev.Location)
}

func (a *accumulator) warn(w string) {
	w = strings.TrimSpace(w)
	if w == "" || a.seen[w] {
		return
	}
	a.seen[w] = true
	a.warnings = append(a.warnings, w)
}

func (a *accumulator) len() int { return len(a.order) }

func (a *accumulator) events() []models.CalendarEvent {
	out := make([]models.CalendarEvent, 0, len(a.order))
	for _, k := range a.order {
		out = append(out, a.byKey[k])
	}
	return out
}
