// Package catalog answers listing queries over the recordings bucket: the
// keys recorded on a date (optionally for one frequency) and the set of
// frequencies recorded on a date.
package catalog

import (
	"context"
	"log/slog"
	"sort"

	"github.com/sdrvault/sdrvault/internal/logging"
	"github.com/sdrvault/sdrvault/internal/storage"
	"github.com/sdrvault/sdrvault/internal/window"
)

// Service lists recordings through a storage.Gateway.
type Service struct {
	gateway storage.Gateway
	bucket  string
	logger  *slog.Logger
}

// New returns a Service listing bucket through gw.
func New(gw storage.Gateway, bucket string, logger *slog.Logger) *Service {
	return &Service{
		gateway: gw,
		bucket:  bucket,
		logger:  logging.WithComponent(logger, "catalog"),
	}
}

// Bucket returns the bucket the service lists by default.
func (s *Service) Bucket() string {
	return s.bucket
}

// ListFiles returns the keys under /<date> or /<date>/<frequency> in listing
// order. An empty date lists the whole bucket.
func (s *Service) ListFiles(ctx context.Context, date, frequency string) ([]string, error) {
	return s.ListFilesIn(ctx, s.bucket, date, frequency)
}

// ListFilesIn is ListFiles against an explicit bucket.
func (s *Service) ListFilesIn(ctx context.Context, bucket, date, frequency string) ([]string, error) {
	prefix := window.DatePrefix(date, frequency)
	keys, err := s.gateway.ListKeys(ctx, bucket, prefix)
	if err != nil {
		s.logger.Warn("listing failed", "bucket", bucket, "prefix", prefix, "error", err)
		return nil, err
	}
	s.logger.Debug("listed files", "bucket", bucket, "prefix", prefix, "count", len(keys))
	return keys, nil
}

// ListFrequencies returns the distinct frequency labels recorded on date,
// sorted. The result is empty, not an error, when nothing matches.
func (s *Service) ListFrequencies(ctx context.Context, date string) ([]string, error) {
	keys, err := s.ListFilesIn(ctx, s.bucket, date, "")
	if err != nil {
		return nil, err
	}
	return Frequencies(keys), nil
}

// Frequencies extracts the second path segment of every key and returns the
// distinct values in ascending order. Keys with fewer than two segments are
// ignored.
func Frequencies(keys []string) []string {
	seen := make(map[string]struct{})
	freqs := []string{}
	for _, key := range keys {
		k, ok := window.ParseKey(key)
		if !ok {
			continue
		}
		if _, dup := seen[k.Frequency]; dup {
			continue
		}
		seen[k.Frequency] = struct{}{}
		freqs = append(freqs, k.Frequency)
	}
	sort.Strings(freqs)
	return freqs
}
