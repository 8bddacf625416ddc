package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/mfenderov/calscrape/internal/dedup"
	"github.com/mfenderov/calscrape/pkg/models"
)

// DefaultSearchLimit caps search results when no limit is given.
const DefaultSearchLimit = 10

// Config holds Elasticsearch client configuration.
type Config struct {
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// Client indexes extracted calendar events for later search.
type Client struct {
	es    *elasticsearch.Client
	index string
}

// New creates a new Elasticsearch client.
func New(config Config) (*Client, error) {
	if config.Index == "" {
		return nil, fmt.Errorf("index is required")
	}

	cfg := elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}

	return &Client{
		es:    es,
		index: config.Index,
	}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) bool {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

// EventDocument is the indexed form of a calendar event.
type EventDocument struct {
	ID          string    `json:"id"`
	UID         string    `json:"uid"`
	RunID       string    `json:"run_id"`
	SourceURL   string    `json:"source_url"`
	Title       string    `json:"title"`
	Location    string    `json:"location"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Timezone    string    `json:"timezone"`
	Categories  []string  `json:"categories,omitempty"`
	Status      string    `json:"status"`
	URL         string    `json:"url,omitempty"`
	Organizer   string    `json:"organizer,omitempty"`
	Recurrence  string    `json:"recurrence_rule,omitempty"`
	Source      string    `json:"source,omitempty"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// EventDocumentID derives a stable document ID from the dedup key, so that
// re-extracting the same event from the same page overwrites the earlier
// document.
func EventDocumentID(sourceURL string, ev models.CalendarEvent) string {
	key, _ := dedup.Key(ev)
	return models.GenerateDocumentID(sourceURL + "|" + key)
}

// NewEventDocument converts an extracted event into its indexed form.
func NewEventDocument(ev models.CalendarEvent, runID, sourceURL string) EventDocument {
	doc := EventDocument{
		ID:          EventDocumentID(sourceURL, ev),
		UID:         ev.UID,
		RunID:       runID,
		SourceURL:   sourceURL,
		Title:       ev.Title,
		Location:    ev.Location,
		Description: ev.Description,
		Start:       ev.Start,
		End:         ev.End,
		Timezone:    ev.Timezone,
		Categories:  ev.Categories,
		Status:      string(ev.Status),
		URL:         ev.URL,
		Recurrence:  ev.RecurrenceRule,
		Source:      ev.Source,
		IndexedAt:   time.Now().UTC(),
	}
	if !ev.Organizer.IsZero() {
		doc.Organizer = ev.Organizer.Name
		if doc.Organizer == "" {
			doc.Organizer = ev.Organizer.Email
		}
	}
	return doc
}

// indexMapping defines the ES index mapping for events.
var indexMapping = `{
	"mappings": {
		"properties": {
			"id": { "type": "keyword" },
			"uid": { "type": "keyword" },
			"run_id": { "type": "keyword" },
			"source_url": { "type": "keyword" },
			"title": { "type": "text", "analyzer": "english" },
			"location": { "type": "text" },
			"description": { "type": "text", "analyzer": "english" },
			"start": { "type": "date" },
			"end": { "type": "date" },
			"timezone": { "type": "keyword" },
			"categories": { "type": "keyword" },
			"status": { "type": "keyword" },
			"url": { "type": "keyword" },
			"organizer": { "type": "text" },
			"recurrence_rule": { "type": "keyword" },
			"source": { "type": "keyword" },
			"indexed_at": { "type": "date" }
		}
	}
}`

// CreateIndex creates the index with proper mapping.
func (c *Client) CreateIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index: %s", res.String())
	}

	return nil
}

// DeleteIndex removes the index (for testing/cleanup).
func (c *Client) DeleteIndex(ctx context.Context) error {
	res, err := c.es.Indices.Delete([]string{c.index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// IndexEvent indexes a single event document.
func (c *Client) IndexEvent(ctx context.Context, doc EventDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	res, err := c.es.Index(
		c.index,
		bytes.NewReader(data),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(doc.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to index event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing event (status %d): %s", res.StatusCode, res.String())
	}

	return nil
}

// IndexEvents indexes every event of a run. It stops at the first failure
// and reports how many events were indexed before it.
func (c *Client) IndexEvents(ctx context.Context, runID, sourceURL string, events []models.CalendarEvent) (int, error) {
	for i, ev := range events {
		if err := c.IndexEvent(ctx, NewEventDocument(ev, runID, sourceURL)); err != nil {
			return i, fmt.Errorf("failed to index %q: %w", ev.Title, err)
		}
	}
	return len(events), nil
}

// Refresh forces an index refresh (useful for testing).
func (c *Client) Refresh(ctx context.Context) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(c.index),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// Query selects events. Text is matched against title, description,
// location and organizer; From and To bound the start time when set.
type Query struct {
	Text  string
	From  time.Time
	To    time.Time
	Limit int
}

func (q Query) body() map[string]interface{} {
	boolQuery := map[string]interface{}{}
	if strings.TrimSpace(q.Text) != "" {
		boolQuery["must"] = []map[string]interface{}{{
			"multi_match": map[string]interface{}{
				"query":  q.Text,
				"fields": []string{"title^3", "description", "location^2", "organizer", "categories"},
			},
		}}
	} else {
		boolQuery["must"] = []map[string]interface{}{{"match_all": map[string]interface{}{}}}
	}

	if !q.From.IsZero() || !q.To.IsZero() {
		rng := map[string]interface{}{}
		if !q.From.IsZero() {
			rng["gte"] = q.From.Format(time.RFC3339)
		}
		if !q.To.IsZero() {
			rng["lte"] = q.To.Format(time.RFC3339)
		}
		boolQuery["filter"] = []map[string]interface{}{{
			"range": map[string]interface{}{"start": rng},
		}}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"size":  limit,
	}
	// Without a text query relevance is meaningless; list chronologically.
	if strings.TrimSpace(q.Text) == "" {
		body["sort"] = []map[string]interface{}{{"start": map[string]string{"order": "asc"}}}
	}
	return body
}

// searchResponse represents ES search response structure.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source EventDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs q against the event index.
func (c *Client) Search(ctx context.Context, q Query) ([]EventDocument, error) {
	data, err := json.Marshal(q.body())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	docs := make([]EventDocument, len(sr.Hits.Hits))
	for i, hit := range sr.Hits.Hits {
		docs[i] = hit.Source
	}

	return docs, nil
}

// getResponse represents ES get response structure.
type getResponse struct {
	Found  bool          `json:"found"`
	Source EventDocument `json:"_source"`
}

// GetEvent retrieves an event by document ID. It returns nil when the
// event does not exist.
func (c *Client) GetEvent(ctx context.Context, id string) (*EventDocument, error) {
	res, err := c.es.Get(
		c.index,
		id,
		c.es.Get.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if res.IsError() {
		return nil, fmt.Errorf("get error: %s", res.String())
	}

	var gr getResponse
	if err := json.NewDecoder(res.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !gr.Found {
		return nil, nil
	}

	return &gr.Source, nil
}
