// Package stage manages staging workspaces: per-request directories under a
// staging root into which the recordings of a time window are downloaded.
//
// Each workspace is a direct child of the root named by its id, and holds the
// staged files under the basenames of their source keys. A workspace is live
// exactly while its directory exists.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sverr "github.com/sdrvault/sdrvault/internal/errors"
	"github.com/sdrvault/sdrvault/internal/logging"
	"github.com/sdrvault/sdrvault/internal/metrics"
	"github.com/sdrvault/sdrvault/internal/storage"
	"github.com/sdrvault/sdrvault/internal/uid"
	"github.com/sdrvault/sdrvault/internal/window"
)

// Workspace is a live staging directory.
type Workspace struct {
	ID  string
	Dir string
	// Manifest lists the staged basenames. After Prepare it is in selection
	// order; after Open it is the sorted directory contents.
	Manifest []string
}

// Catalog lists candidate keys for a window.
type Catalog interface {
	ListFilesIn(ctx context.Context, bucket, date, frequency string) ([]string, error)
}

// Manager owns the workspaces under one staging root.
type Manager struct {
	root    string
	gateway storage.Gateway
	catalog Catalog
	logger  *slog.Logger

	newID func() string
	now   func() time.Time
}

// NewManager creates a Manager rooted at root. The root directory is created
// lazily by Prepare.
func NewManager(root string, gw storage.Gateway, cat Catalog, logger *slog.Logger) (*Manager, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, sverr.ErrConfiguration.WithMessage("staging root directory is empty")
	}
	return &Manager{
		root:    filepath.Clean(trimmed),
		gateway: gw,
		catalog: cat,
		logger:  logging.WithComponent(logger, "stage"),
		newID:   uid.New,
		now:     time.Now,
	}, nil
}

// Root returns the staging root directory.
func (m *Manager) Root() string {
	return m.root
}

// Prepare stages every recording selected by w into a fresh workspace.
//
// Staging is all-or-nothing: the first failed listing or download aborts the
// call. The workspace directory created so far is left in place and its id
// and path are returned alongside the error so the caller can inspect or
// clear it.
func (m *Manager) Prepare(ctx context.Context, w window.Window, bucket string) (Workspace, error) {
	ws, err := m.prepare(ctx, w, bucket)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.WorkspacesPreparedTotal.WithLabelValues(status).Inc()
	return ws, err
}

func (m *Manager) prepare(ctx context.Context, w window.Window, bucket string) (Workspace, error) {
	id := m.newID()
	dir, err := m.workspacePath(id)
	if err != nil {
		return Workspace{}, err
	}

	// A fresh id never names an existing directory, but a stale one is purged
	// rather than appended to.
	if _, err := os.Stat(dir); err == nil {
		m.logger.Warn("purging stale workspace directory", "id", id, "dir", dir)
		if err := os.RemoveAll(dir); err != nil {
			return Workspace{}, sverr.ErrInternal.Wrap(fmt.Errorf("purge stale workspace %q: %w", id, err))
		}
	}

	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return Workspace{}, sverr.ErrInternal.Wrap(fmt.Errorf("create staging root: %w", err))
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return Workspace{}, sverr.ErrInternal.Wrap(fmt.Errorf("create workspace %q: %w", id, err))
	}
	ws := Workspace{ID: id, Dir: dir, Manifest: []string{}}

	keys, err := m.catalog.ListFilesIn(ctx, bucket, w.Date(), w.Frequency)
	if err != nil {
		return ws, err
	}
	selected := window.Select(keys, w)
	m.logger.Info("staging window",
		"id", id,
		"start", w.Start.Format(window.StartLayout),
		"duration", w.Duration,
		"frequency", w.Frequency,
		"candidates", len(keys),
		"selected", len(selected),
	)

	for _, key := range selected {
		name := path.Base(key)
		if name == "." || name == ".." || name == "/" {
			return ws, sverr.ErrInvalidArgument.WithMessage("key %q has no usable basename", key)
		}
		n, err := m.gateway.Download(ctx, bucket, key, filepath.Join(dir, name))
		if err != nil {
			m.logger.Error("staging aborted", "id", id, "key", key, "staged", len(ws.Manifest), "error", err)
			return ws, err
		}
		metrics.ObjectsStagedTotal.Inc()
		metrics.BytesStagedTotal.Add(float64(n))
		ws.Manifest = append(ws.Manifest, name)
	}

	return ws, nil
}

// Open resolves a live workspace and lists its staged files.
func (m *Manager) Open(ctx context.Context, id string) (Workspace, error) {
	dir, err := m.workspacePath(id)
	if err != nil {
		return Workspace{}, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Workspace{}, sverr.ErrWorkspaceNotFound.WithMessage("workspace %s does not exist", id)
		}
		return Workspace{}, sverr.ErrInternal.Wrap(fmt.Errorf("open workspace %q: %w", id, err))
	}
	if !info.IsDir() {
		return Workspace{}, sverr.ErrWorkspaceNotFound.WithMessage("workspace %s does not exist", id)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Workspace{}, sverr.ErrInternal.Wrap(fmt.Errorf("read workspace %q: %w", id, err))
	}
	manifest := []string{}
	for _, entry := range entries {
		if entry.IsDir() || storage.IsTempName(entry.Name()) {
			continue
		}
		manifest = append(manifest, entry.Name())
	}
	sort.Strings(manifest)
	return Workspace{ID: id, Dir: dir, Manifest: manifest}, nil
}

// Clear removes the workspace directory for id.
func (m *Manager) Clear(ctx context.Context, id string) error {
	dir, err := m.workspacePath(id)
	if err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return sverr.ErrWorkspaceNotFound.WithMessage("workspace %s does not exist", id)
		}
		return sverr.ErrInternal.Wrap(fmt.Errorf("stat workspace %q: %w", id, err))
	}
	if err := os.RemoveAll(dir); err != nil {
		return sverr.ErrInternal.Wrap(fmt.Errorf("remove workspace %q: %w", id, err))
	}
	metrics.WorkspacesClearedTotal.Inc()
	m.logger.Info("cleared workspace", "id", id)
	return nil
}

// ClearAll removes every workspace directory under the root and returns how
// many were removed. A missing or empty root is not an error.
//
// ClearAll takes no lock: a Prepare or a fetch running concurrently against an
// existing workspace may lose its directory mid-use. Call it only while no
// other request is in flight.
func (m *Manager) ClearAll(ctx context.Context) (int, error) {
	return m.removeWhere(ctx, func(fs.FileInfo) bool { return true })
}

// Cleanup removes workspaces whose directory modification time is older than
// olderThan and returns how many were removed.
func (m *Manager) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, sverr.ErrInvalidArgument.WithMessage("olderThan must be positive, got %s", olderThan)
	}
	cutoff := m.now().Add(-olderThan)
	return m.removeWhere(ctx, func(info fs.FileInfo) bool {
		return !info.ModTime().After(cutoff)
	})
}

func (m *Manager) removeWhere(ctx context.Context, match func(fs.FileInfo) bool) (int, error) {
	entries, err := os.ReadDir(m.root)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, sverr.ErrInternal.Wrap(fmt.Errorf("read staging root: %w", err))
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return removed, sverr.ErrInternal.Wrap(fmt.Errorf("read workspace entry info %q: %w", entry.Name(), err))
		}
		if !match(info) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, entry.Name())); err != nil {
			return removed, sverr.ErrInternal.Wrap(fmt.Errorf("remove workspace %q: %w", entry.Name(), err))
		}
		removed++
	}

	if removed > 0 {
		metrics.WorkspacesClearedTotal.Add(float64(removed))
		m.logger.Info("removed workspaces", "count", removed)
	}
	return removed, nil
}

// CleanTempFiles removes in-progress download and decode files left inside
// workspaces by a previous crash. It returns how many files were removed.
func (m *Manager) CleanTempFiles(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(m.root)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, sverr.ErrInternal.Wrap(fmt.Errorf("read staging root: %w", err))
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.root, entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !storage.IsTempName(f.Name()) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, f.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		m.logger.Info("removed stale temp files", "count", removed)
	}
	return removed, nil
}

func (m *Manager) workspacePath(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(m.root, id), nil
}

// ValidateID rejects ids that are not a single, clean path element.
func ValidateID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return sverr.ErrInvalidArgument.WithMessage("workspace id is empty")
	}
	if trimmed != id || trimmed == "." || trimmed == ".." {
		return sverr.ErrInvalidArgument.WithMessage("workspace id %q is invalid", id)
	}
	if strings.ContainsAny(trimmed, `/\`) {
		return sverr.ErrInvalidArgument.WithMessage("workspace id %q must not contain path separators", id)
	}
	if filepath.Clean(trimmed) != trimmed || storage.IsTempName(trimmed) {
		return sverr.ErrInvalidArgument.WithMessage("workspace id %q is invalid", id)
	}
	return nil
}
