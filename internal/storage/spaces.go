// Package storage keeps loader exports in DigitalOcean Spaces or any other
// S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// ExportPrefix is the key prefix of every export
const ExportPrefix = "jira-exports/"

var ErrNotConfigured = errors.New("spaces storage is not configured")

// SpacesConfig contains configuration for Digital Ocean Spaces
type SpacesConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// PathStyle addresses the bucket in the path, as MinIO expects
	PathStyle bool
}

// NewSpacesConfigFromEnv reads DO_SPACES_* variables
func NewSpacesConfigFromEnv() SpacesConfig {
	return SpacesConfig{
		Endpoint:  getEnvOrDefault("DO_SPACES_ENDPOINT", "nyc3.digitaloceanspaces.com"),
		Region:    getEnvOrDefault("DO_SPACES_REGION", "us-east-1"),
		Bucket:    os.Getenv("DO_SPACES_BUCKET"),
		AccessKey: os.Getenv("DO_SPACES_KEY"),
		SecretKey: os.Getenv("DO_SPACES_SECRET"),
		PathStyle: os.Getenv("DO_SPACES_PATH_STYLE") == "true",
	}
}

// Enabled reports whether a bucket and keys are configured
func (c SpacesConfig) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// ExportObject describes a stored export
type ExportObject struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// SpacesClient provides export operations on Spaces
type SpacesClient struct {
	client s3iface.S3API
	bucket string
	now    func() time.Time
}

// NewSpacesClient creates a new Digital Ocean Spaces client
func NewSpacesClient(config SpacesConfig) (*SpacesClient, error) {
	if !config.Enabled() {
		return nil, ErrNotConfigured
	}

	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(config.Endpoint),
		Region:           aws.String(config.Region),
		Credentials:      credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(config.PathStyle),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return NewSpacesClientWithAPI(s3.New(sess), config.Bucket), nil
}

// NewSpacesClientWithAPI wraps an existing S3 API client
func NewSpacesClientWithAPI(api s3iface.S3API, bucket string) *SpacesClient {
	return &SpacesClient{client: api, bucket: bucket, now: time.Now}
}

// ExportKey returns the key an export named name gets when stored at t
func ExportKey(t time.Time, name string) string {
	return fmt.Sprintf("%s%s/%s", ExportPrefix, t.UTC().Format("2006-01-02"), path.Base(name))
}

// UploadExport stores data under today's export folder and returns its key
func (s *SpacesClient) UploadExport(ctx context.Context, name string, data io.Reader, contentType string) (string, error) {
	now := s.now()
	key := ExportKey(now, name)

	// PutObject needs an io.ReadSeeker
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return "", fmt.Errorf("failed to read export: %w", err)
	}

	if contentType == "" {
		contentType = "text/csv"
	}

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
		Metadata: map[string]*string{
			"export-name": aws.String(path.Base(name)),
			"export-time": aws.String(now.UTC().Format(time.RFC3339)),
		},
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload export: %w", err)
	}

	return key, nil
}

// GetExport opens a stored export; the caller closes it
func (s *SpacesClient) GetExport(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get export: %w", err)
	}

	return result.Body, nil
}

// ListExports lists the exports stored on date
func (s *SpacesClient) ListExports(ctx context.Context, date time.Time) ([]ExportObject, error) {
	prefix := fmt.Sprintf("%s%s/", ExportPrefix, date.UTC().Format("2006-01-02"))

	var out []ExportObject
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			out = append(out, ExportObject{
				Key:          aws.StringValue(obj.Key),
				Size:         aws.Int64Value(obj.Size),
				LastModified: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}

	return out, nil
}

// DeleteExport deletes an export. Keys outside the export prefix are refused.
func (s *SpacesClient) DeleteExport(ctx context.Context, key string) error {
	if !strings.HasPrefix(key, ExportPrefix) {
		return fmt.Errorf("refusing to delete %q outside %s", key, ExportPrefix)
	}

	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete export: %w", err)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
