package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// MemoryGateway implements Gateway using an in-memory map. It backs demos and
// tests, and can be told to fail specific operations.
type MemoryGateway struct {
	mu      sync.RWMutex
	objects map[string][]byte // key: "bucket\x00key"

	listErr      error
	downloadErrs map[string]error
	healthErr    error

	listCalls     int
	downloadCalls int
}

// NewMemoryGateway creates an empty MemoryGateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		objects:      make(map[string][]byte),
		downloadErrs: make(map[string]error),
	}
}

// memKey builds the map key for an object. The NUL separator cannot appear in
// bucket names, so keys with slashes stay unambiguous.
func memKey(bucket, key string) string {
	return bucket + "\x00" + key
}

// PutObject reads all data from the reader and stores it in memory.
func (g *MemoryGateway) PutObject(ctx context.Context, bucket, key string, reader io.Reader) (int64, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return 0, fmt.Errorf("reading object data: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[memKey(bucket, key)] = data
	return int64(len(data)), nil
}

// FailList makes every subsequent ListKeys call return err. A nil err clears
// the failure.
func (g *MemoryGateway) FailList(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listErr = err
}

// FailDownload makes Download of key return err. A nil err clears the failure.
func (g *MemoryGateway) FailDownload(key string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.downloadErrs, key)
		return
	}
	g.downloadErrs[key] = err
}

// FailHealth makes HealthCheck return err. A nil err clears the failure.
func (g *MemoryGateway) FailHealth(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.healthErr = err
}

// Calls returns the number of ListKeys and Download calls made so far.
func (g *MemoryGateway) Calls() (list, download int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.listCalls, g.downloadCalls
}

// ListKeys returns the keys in bucket starting with prefix, in byte order.
func (g *MemoryGateway) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listCalls++
	if g.listErr != nil {
		return nil, g.listErr
	}

	keys := []string{}
	bucketPrefix := bucket + "\x00"
	for mk := range g.objects {
		key, ok := strings.CutPrefix(mk, bucketPrefix)
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Download writes the stored data for key into destPath.
func (g *MemoryGateway) Download(ctx context.Context, bucket, key, destPath string) (int64, error) {
	g.mu.Lock()
	g.downloadCalls++
	injected := g.downloadErrs[key]
	data, ok := g.objects[memKey(bucket, key)]
	g.mu.Unlock()

	if injected != nil {
		return 0, injected
	}
	if !ok {
		return 0, notFound(bucket, key)
	}
	return writeFileAtomic(destPath, bytes.NewReader(data))
}

// HealthCheck returns the injected health failure, if any.
func (g *MemoryGateway) HealthCheck(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.healthErr
}

// Ensure MemoryGateway implements Gateway and Uploader at compile time.
var (
	_ Gateway  = (*MemoryGateway)(nil)
	_ Uploader = (*MemoryGateway)(nil)
)
