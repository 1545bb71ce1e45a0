// The S3 gateway reads recordings from an S3-compatible bucket (AWS, MinIO,
// Ceph RGW) via the AWS SDK for Go v2. Static credentials and a custom
// endpoint are taken from configuration; the default credential chain is used
// when no static credentials are given. The client is built without retries:
// a failed call surfaces immediately.

package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API defines the subset of the AWS S3 client interface that the gateway
// uses. This allows mocking in tests.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Options configures NewS3Gateway.
type S3Options struct {
	EndpointURL     string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Bucket is the bucket probed by HealthCheck.
	Bucket             string
	UsePathStyle       bool
	InsecureSkipVerify bool
}

// S3Gateway implements Gateway against an S3-compatible object store.
type S3Gateway struct {
	// Bucket is the bucket probed by HealthCheck.
	Bucket string
	client S3API
	logger *slog.Logger
}

// NewS3Gateway builds an S3 client from opts. It does not contact the store;
// call HealthCheck to verify connectivity.
func NewS3Gateway(ctx context.Context, opts S3Options, logger *slog.Logger) (*S3Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	loadOpts = append(loadOpts,
		awsconfig.WithRegion(region),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	)

	// Use static credentials if provided, otherwise fall back to default chain.
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	if opts.InsecureSkipVerify {
		httpClient := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
			if tr.TLSClientConfig == nil {
				tr.TLSClientConfig = &tls.Config{}
			}
			tr.TLSClientConfig.InsecureSkipVerify = true
		})
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(httpClient))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.EndpointURL != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		})
	}
	if opts.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	logger.Info("S3 gateway initialized", "endpoint", opts.EndpointURL, "region", region, "bucket", opts.Bucket, "path_style", opts.UsePathStyle)
	return NewS3GatewayWithClient(opts.Bucket, s3.NewFromConfig(cfg, s3Opts...), logger), nil
}

// NewS3GatewayWithClient creates an S3Gateway with a pre-configured S3
// client. This is primarily used for testing with mock clients.
func NewS3GatewayWithClient(bucket string, client S3API, logger *slog.Logger) *S3Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Gateway{Bucket: bucket, client: client, logger: logger}
}

// ListKeys pages through ListObjectsV2 and returns every key under prefix.
// Directory marker keys (ending in "/") are skipped.
func (g *S3Gateway) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	keys := []string{}
	paginator := s3.NewListObjectsV2Paginator(g.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3("listing objects", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			keys = append(keys, key)
		}
	}

	g.logger.Debug("listed S3 keys", "bucket", bucket, "prefix", prefix, "count", len(keys))
	return keys, nil
}

// Download streams the object body into destPath.
func (g *S3Gateway) Download(ctx context.Context, bucket, key, destPath string) (int64, error) {
	resp, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return 0, notFound(bucket, key)
		}
		return 0, classifyS3("getting object", err)
	}
	defer resp.Body.Close()

	return writeFileAtomic(destPath, resp.Body)
}

// HealthCheck verifies that the configured bucket is accessible.
func (g *S3Gateway) HealthCheck(ctx context.Context) error {
	_, err := g.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(g.Bucket),
	})
	if err != nil {
		return classifyS3("head bucket", err)
	}
	return nil
}

// s3ClientCodes are S3 error codes caused by the request rather than the
// store's health.
var s3ClientCodes = map[string]bool{
	"AccessDenied":                 true,
	"InvalidAccessKeyId":           true,
	"SignatureDoesNotMatch":        true,
	"NoSuchBucket":                 true,
	"NoSuchKey":                    true,
	"NotFound":                     true,
	"InvalidBucketName":            true,
	"AuthorizationHeaderMalformed": true,
}

// classifyS3 maps an SDK error onto ErrStoreClient or ErrStoreUnavailable.
func classifyS3(op string, err error) error {
	return classify(op, err, isS3ClientError(err))
}

// isS3ClientError reports whether err was caused by the request (4xx, auth,
// missing bucket) rather than the transport or the server.
func isS3ClientError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if s3ClientCodes[apiErr.ErrorCode()] {
			return true
		}
		if apiErr.ErrorFault() == smithy.FaultClient {
			return true
		}
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		return code >= 400 && code < 500
	}
	return false
}

// isAWSNotFound checks if an AWS error is a 404/NoSuchKey/NotFound error.
func isAWSNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" {
			return true
		}
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	return false
}

// Ensure S3Gateway implements Gateway at compile time.
var _ Gateway = (*S3Gateway)(nil)
