// Package storage defines the object-store gateway SDRVault reads recordings
// through, and its implementations (S3, GCS, Azure Blob, SQLite, local
// directory, in-memory).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	sverr "github.com/sdrvault/sdrvault/internal/errors"
	"github.com/sdrvault/sdrvault/internal/uid"
)

//go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks github.com/sdrvault/sdrvault/internal/storage Gateway

// Gateway is the narrow, synchronous view of an object store used by the
// catalog and the staging manager. Implementations never retry. Failures are
// reported as sverr.ErrStoreClient (rejected request, missing bucket or key)
// or sverr.ErrStoreUnavailable (transport or server failure).
type Gateway interface {
	// ListKeys returns every key in bucket starting with prefix, in the
	// store's listing order (ascending byte order for all implementations).
	// An empty prefix lists the whole bucket.
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)

	// Download writes the object at key to destPath and returns the number
	// of bytes written. The file appears under destPath only once complete.
	Download(ctx context.Context, bucket, key, destPath string) (int64, error)

	// HealthCheck verifies that the store is reachable.
	HealthCheck(ctx context.Context) error
}

// Uploader is implemented by gateways that can also store objects. It is used
// by import tooling and tests; the retrieval path never writes to the store.
type Uploader interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader) (int64, error)
}

// tempPrefix marks in-progress files in a destination directory.
const tempPrefix = ".tmp-"

// IsTempName reports whether name is an in-progress download or decode.
func IsTempName(name string) bool {
	return strings.HasPrefix(name, tempPrefix)
}

// TempPath returns a unique temporary path next to finalPath.
func TempPath(finalPath string) string {
	return filepath.Join(filepath.Dir(finalPath), tempPrefix+filepath.Base(finalPath)+"-"+uid.Temp())
}

// readTracker records the first non-EOF error returned by the wrapped reader
// so that writeFileAtomic can tell store failures from disk failures.
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}

// writeFileAtomic streams reader into destPath using the crash-only pattern:
// write to a temp file in the same directory, fsync, rename. On failure no
// file is left under destPath. Read failures are reported as
// ErrStoreUnavailable, filesystem failures as ErrInternal.
func writeFileAtomic(destPath string, reader io.Reader) (int64, error) {
	tmpPath := TempPath(destPath)
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return 0, sverr.ErrInternal.Wrap(fmt.Errorf("creating temp file: %w", err))
	}

	tracker := &readTracker{r: reader}
	written, err := io.Copy(tmpFile, tracker)
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		if tracker.err != nil {
			return 0, sverr.ErrStoreUnavailable.Wrap(fmt.Errorf("reading object data: %w", tracker.err))
		}
		return 0, sverr.ErrInternal.Wrap(fmt.Errorf("writing object data: %w", err))
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return 0, sverr.ErrInternal.Wrap(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, sverr.ErrInternal.Wrap(fmt.Errorf("closing temp file: %w", err))
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return 0, sverr.ErrInternal.Wrap(fmt.Errorf("renaming temp file to %q: %w", destPath, err))
	}
	return written, nil
}

// notFound builds the client error for a missing key.
func notFound(bucket, key string) error {
	return sverr.ErrStoreClient.WithMessage("object not found: %s/%s", bucket, key)
}

// classify wraps a store error as ErrStoreClient when client is true and as
// ErrStoreUnavailable otherwise. Context cancellation is always unavailable.
func classify(op string, err error, client bool) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return sverr.ErrStoreUnavailable.Wrap(wrapped)
	}
	if client {
		return sverr.ErrStoreClient.Wrap(wrapped)
	}
	return sverr.ErrStoreUnavailable.Wrap(wrapped)
}
