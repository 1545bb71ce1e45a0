package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sverr "github.com/sdrvault/sdrvault/internal/errors"
)

// LocalGateway implements Gateway over a directory tree. Objects live at
// <RootDir>/<bucket>/<key>. Keys are reported in rooted form ("/" + path
// relative to the bucket directory, slash-separated), matching the key layout
// of the recording buckets.
type LocalGateway struct {
	// RootDir is the base directory holding one directory per bucket.
	RootDir string
	// Bucket is the bucket probed by HealthCheck.
	Bucket string
	logger *slog.Logger
}

// NewLocalGateway creates a LocalGateway rooted at rootDir and creates the
// bucket directory if it does not exist.
func NewLocalGateway(rootDir, bucket string, logger *slog.Logger) (*LocalGateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(rootDir, bucket), 0o755); err != nil {
		return nil, fmt.Errorf("creating bucket directory %q: %w", bucket, err)
	}
	return &LocalGateway{RootDir: rootDir, Bucket: bucket, logger: logger}, nil
}

// objectPath returns the filesystem path for key, rejecting keys that would
// escape the bucket directory.
func (g *LocalGateway) objectPath(bucket, key string) (string, error) {
	rel := strings.TrimPrefix(key, "/")
	if rel == "" {
		return "", sverr.ErrStoreClient.WithMessage("empty object key")
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." || seg == "." {
			return "", sverr.ErrStoreClient.WithMessage("invalid object key %q", key)
		}
	}
	return filepath.Join(g.RootDir, bucket, filepath.FromSlash(rel)), nil
}

// CleanTempFiles removes in-progress files left in the bucket tree by a
// previous crash.
func (g *LocalGateway) CleanTempFiles() error {
	root := filepath.Join(g.RootDir, g.Bucket)
	removed := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() && IsTempName(d.Name()) {
			if rmErr := os.Remove(path); rmErr == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cleaning temp files under %q: %w", root, err)
	}
	if removed > 0 {
		g.logger.Info("removed stale temp files", "dir", root, "count", removed)
	}
	return nil
}

// PutObject writes object data using the crash-only atomic write pattern.
func (g *LocalGateway) PutObject(ctx context.Context, bucket, key string, reader io.Reader) (int64, error) {
	objPath, err := g.objectPath(bucket, key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return 0, fmt.Errorf("creating parent directories for %q/%q: %w", bucket, key, err)
	}
	return writeFileAtomic(objPath, reader)
}

// ListKeys walks the bucket directory and returns every key starting with
// prefix, in byte order. In-progress temp files are skipped.
func (g *LocalGateway) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	root := filepath.Join(g.RootDir, bucket)
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, sverr.ErrStoreClient.WithMessage("bucket not found: %s", bucket)
		}
		return nil, classify("stat bucket", err, false)
	}
	if !info.IsDir() {
		return nil, sverr.ErrStoreClient.WithMessage("bucket not found: %s", bucket)
	}

	keys := []string{}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || IsTempName(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := "/" + filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, classify("walking bucket", err, false)
	}
	sort.Strings(keys)
	return keys, nil
}

// Download copies the object file into destPath.
func (g *LocalGateway) Download(ctx context.Context, bucket, key, destPath string) (int64, error) {
	objPath, err := g.objectPath(bucket, key)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(objPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, notFound(bucket, key)
		}
		return 0, classify("opening object", err, false)
	}
	defer f.Close()

	return writeFileAtomic(destPath, f)
}

// HealthCheck verifies that the bucket directory exists.
func (g *LocalGateway) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(filepath.Join(g.RootDir, g.Bucket))
	if err != nil {
		return classify("stat bucket", err, errors.Is(err, fs.ErrNotExist))
	}
	if !info.IsDir() {
		return sverr.ErrStoreClient.WithMessage("bucket path is not a directory: %s", g.Bucket)
	}
	return nil
}

// Ensure LocalGateway implements Gateway and Uploader at compile time.
var (
	_ Gateway  = (*LocalGateway)(nil)
	_ Uploader = (*LocalGateway)(nil)
)
