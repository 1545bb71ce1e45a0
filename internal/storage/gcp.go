// The GCS gateway reads recordings from a Google Cloud Storage bucket via the
// official Go client library. Object names are the recording keys verbatim,
// leading slash included.
//
// Credentials are resolved via Application Default Credentials
// (GOOGLE_APPLICATION_CREDENTIALS, gcloud auth, metadata server).

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GCSAPI defines the subset of the GCS client interface that the gateway
// uses. This allows mocking in tests.
type GCSAPI interface {
	// NewReader returns a reader for the given GCS object.
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	// ListObjects lists object names with the given prefix.
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
	// BucketExists reports an error when the bucket cannot be read.
	BucketExists(ctx context.Context, bucket string) error
}

// realGCSClient wraps the official GCS client to satisfy GCSAPI.
type realGCSClient struct {
	client *gcs.Client
}

func (c *realGCSClient) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(object).NewReader(ctx)
}

func (c *realGCSClient) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := c.client.Bucket(bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func (c *realGCSClient) BucketExists(ctx context.Context, bucket string) error {
	_, err := c.client.Bucket(bucket).Attrs(ctx)
	return err
}

// GCSGateway implements Gateway against Google Cloud Storage.
type GCSGateway struct {
	// Bucket is the bucket probed by HealthCheck.
	Bucket string
	// Project is the GCP project ID.
	Project string
	client  GCSAPI
	logger  *slog.Logger
}

// NewGCSGateway creates a GCSGateway using Application Default Credentials.
func NewGCSGateway(ctx context.Context, bucket, project string, logger *slog.Logger) (*GCSGateway, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	g := NewGCSGatewayWithClient(bucket, project, &realGCSClient{client: client}, logger)
	g.logger.Info("GCS gateway initialized", "bucket", bucket, "project", project)
	return g, nil
}

// NewGCSGatewayWithClient creates a GCSGateway with a pre-configured GCS
// client. This is primarily used for testing with mock clients.
func NewGCSGatewayWithClient(bucket, project string, client GCSAPI, logger *slog.Logger) *GCSGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSGateway{
		Bucket:  bucket,
		Project: project,
		client:  client,
		logger:  logger,
	}
}

// ListKeys returns the names of all objects under prefix.
func (g *GCSGateway) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	names, err := g.client.ListObjects(ctx, bucket, prefix)
	if err != nil {
		return nil, classifyGCS("listing objects", err)
	}
	keys := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" || name[len(name)-1] == '/' {
			continue
		}
		keys = append(keys, name)
	}
	return keys, nil
}

// Download streams the object into destPath.
func (g *GCSGateway) Download(ctx context.Context, bucket, key, destPath string) (int64, error) {
	reader, err := g.client.NewReader(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return 0, notFound(bucket, key)
		}
		return 0, classifyGCS("reading object", err)
	}
	defer reader.Close()

	return writeFileAtomic(destPath, reader)
}

// HealthCheck verifies that the configured bucket is readable.
func (g *GCSGateway) HealthCheck(ctx context.Context) error {
	if err := g.client.BucketExists(ctx, g.Bucket); err != nil {
		return classifyGCS("bucket attrs", err)
	}
	return nil
}

func classifyGCS(op string, err error) error {
	return classify(op, err, isGCSClientError(err))
}

// isGCSClientError reports whether a GCS error was caused by the request: a
// missing bucket or object, or any 4xx googleapi error.
func isGCSClientError(err error) bool {
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 400 && apiErr.Code < 500
	}
	return false
}

// Ensure GCSGateway implements Gateway at compile time.
var _ Gateway = (*GCSGateway)(nil)
