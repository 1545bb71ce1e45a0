// The Azure gateway reads recordings from an Azure Blob Storage container via
// the official Azure SDK for Go. Blob names are the recording keys verbatim.
//
// Credentials come from a connection string when configured, otherwise from
// DefaultAzureCredential (env vars, managed identity, Azure CLI, etc.).

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureBlobAPI defines the subset of the Azure Blob Storage client interface
// that the gateway uses. This allows mocking in tests.
type AzureBlobAPI interface {
	// ListBlobs returns the names of all blobs under prefix.
	ListBlobs(ctx context.Context, containerName, prefix string) ([]string, error)
	// DownloadStream opens a blob's contents for reading.
	DownloadStream(ctx context.Context, containerName, blobName string) (io.ReadCloser, error)
	// ContainerExists returns an error when the container cannot be read.
	ContainerExists(ctx context.Context, containerName string) error
}

// AzureGateway implements Gateway against Azure Blob Storage. The bucket
// argument of each call names the container.
type AzureGateway struct {
	// Container is the container probed by HealthCheck.
	Container string
	// AccountURL is the Azure storage account URL (e.g. https://account.blob.core.windows.net).
	AccountURL string
	client     AzureBlobAPI
	logger     *slog.Logger
}

// NewAzureGateway creates an AzureGateway for the given account.
func NewAzureGateway(container, accountURL, connectionString string, logger *slog.Logger) (*AzureGateway, error) {
	client, err := newRealAzureClient(accountURL, connectionString)
	if err != nil {
		return nil, fmt.Errorf("creating Azure client: %w", err)
	}
	g := NewAzureGatewayWithClient(container, accountURL, client, logger)
	g.logger.Info("Azure gateway initialized", "container", container, "account", accountURL)
	return g, nil
}

// NewAzureGatewayWithClient creates an AzureGateway with a pre-configured
// Azure client. This is primarily used for testing with mock clients.
func NewAzureGatewayWithClient(container, accountURL string, client AzureBlobAPI, logger *slog.Logger) *AzureGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &AzureGateway{
		Container:  container,
		AccountURL: accountURL,
		client:     client,
		logger:     logger,
	}
}

// ListKeys returns the names of all blobs under prefix.
func (g *AzureGateway) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	names, err := g.client.ListBlobs(ctx, bucket, prefix)
	if err != nil {
		return nil, classifyAzure("listing blobs", err)
	}
	keys := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		keys = append(keys, name)
	}
	return keys, nil
}

// Download streams the blob into destPath.
func (g *AzureGateway) Download(ctx context.Context, bucket, key, destPath string) (int64, error) {
	body, err := g.client.DownloadStream(ctx, bucket, key)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return 0, notFound(bucket, key)
		}
		return 0, classifyAzure("downloading blob", err)
	}
	defer body.Close()

	return writeFileAtomic(destPath, body)
}

// HealthCheck verifies that the configured container is accessible.
func (g *AzureGateway) HealthCheck(ctx context.Context) error {
	if err := g.client.ContainerExists(ctx, g.Container); err != nil {
		return classifyAzure("container properties", err)
	}
	return nil
}

func classifyAzure(op string, err error) error {
	var respErr *azcore.ResponseError
	client := errors.As(err, &respErr) && respErr.StatusCode >= 400 && respErr.StatusCode < 500
	return classify(op, err, client)
}

// Ensure AzureGateway implements Gateway at compile time.
var _ Gateway = (*AzureGateway)(nil)
