package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mfenderov/calscrape/pkg/models"
)

const (
	runsRoot       = "runs"
	calendarObject = "calendar.ics"
	eventsObject   = "events.json"
	metadataObject = "metadata.json"
	pagesDir       = "pages"
	timestampFmt   = "2006-01-02T15-04-05"
)

// Config holds S3/MinIO client configuration.
type Config struct {
	Endpoint        string `mapstructure:"endpoint"` // "localhost:9000" for MinIO
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// Client archives extraction runs in an S3 bucket.
//
// Each run lives under runs/{host}/{timestamp}-{runID}/ and holds the
// generated calendar, the extracted events as JSON, the fetched page and
// a metadata record.
type Client struct {
	minioClient *minio.Client
	bucket      string
}

// New creates a new S3/MinIO client.
func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		minioClient: minioClient,
		bucket:      config.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minioClient.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	err = c.minioClient.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// NewRunID returns a short random run identifier.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// RunPrefix builds the archive prefix for one run of sourceURL.
func RunPrefix(sourceURL string, at time.Time, runID string) (string, error) {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	host := parsed.Host
	if host == "" {
		host = "inline"
	}
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	return fmt.Sprintf("%s/%s/%s-%s", runsRoot, host, at.UTC().Format(timestampFmt), runID), nil
}

// RunMetadata describes one archived extraction run.
type RunMetadata struct {
	RunID       string    `json:"run_id"`
	SourceName  string    `json:"source_name,omitempty"`
	SourceURL   string    `json:"source_url"`
	PageTitle   string    `json:"page_title,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	EventCount  int       `json:"event_count"`
	Warnings    []string  `json:"warnings,omitempty"`
	HasPage     bool      `json:"has_page"`
	ContentType string    `json:"content_type,omitempty"`
}

// PutCalendar writes the generated iCalendar document.
func (c *Client) PutCalendar(ctx context.Context, prefix, content string) error {
	if err := c.put(ctx, path.Join(prefix, calendarObject), "text/calendar; charset=utf-8", []byte(content)); err != nil {
		return fmt.Errorf("failed to put calendar: %w", err)
	}
	return nil
}

// GetCalendar reads the iCalendar document of a run.
func (c *Client) GetCalendar(ctx context.Context, prefix string) (string, error) {
	data, err := c.get(ctx, path.Join(prefix, calendarObject))
	if err != nil {
		return "", fmt.Errorf("failed to get calendar: %w", err)
	}
	return string(data), nil
}

// PutPage archives the fetched page content under pages/.
func (c *Client) PutPage(ctx context.Context, prefix, filename, contentType, content string) error {
	if contentType == "" {
		contentType = "text/html"
	}
	if err := c.put(ctx, path.Join(prefix, pagesDir, filename), contentType, []byte(content)); err != nil {
		return fmt.Errorf("failed to put page: %w", err)
	}
	return nil
}

// PutEvents writes the extracted events as JSON.
func (c *Client) PutEvents(ctx context.Context, prefix string, events []models.CalendarEvent) error {
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := c.put(ctx, path.Join(prefix, eventsObject), "application/json", data); err != nil {
		return fmt.Errorf("failed to put events: %w", err)
	}
	return nil
}

// GetEvents reads the extracted events of a run.
func (c *Client) GetEvents(ctx context.Context, prefix string) ([]models.CalendarEvent, error) {
	data, err := c.get(ctx, path.Join(prefix, eventsObject))
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	var events []models.CalendarEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal events: %w", err)
	}
	return events, nil
}

// PutMetadata writes the run metadata JSON to S3.
func (c *Client) PutMetadata(ctx context.Context, prefix string, meta RunMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := c.put(ctx, path.Join(prefix, metadataObject), "application/json", data); err != nil {
		return fmt.Errorf("failed to put metadata: %w", err)
	}
	return nil
}

// GetMetadata reads the run metadata from S3.
func (c *Client) GetMetadata(ctx context.Context, prefix string) (*RunMetadata, error) {
	data, err := c.get(ctx, path.Join(prefix, metadataObject))
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &meta, nil
}

// ListRuns returns the run prefixes archived for host, oldest first.
func (c *Client) ListRuns(ctx context.Context, host string) ([]string, error) {
	var runs []string

	objectCh := c.minioClient.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    path.Join(runsRoot, host) + "/",
		Recursive: false,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		// Non-recursive listings report run directories as common prefixes.
		if strings.HasSuffix(object.Key, "/") {
			runs = append(runs, strings.TrimSuffix(object.Key, "/"))
		}
	}

	return runs, nil
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) put(ctx context.Context, objectName, contentType string, data []byte) error {
	_, err := c.minioClient.PutObject(ctx, c.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (c *Client) get(ctx context.Context, objectName string) ([]byte, error) {
	object, err := c.minioClient.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer object.Close()

	return io.ReadAll(object)
}
