// Package retrieve serves staged recordings out of a workspace, decoding the
// uncompressed format from its compressed sibling on first request.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	sverr "github.com/sdrvault/sdrvault/internal/errors"
	"github.com/sdrvault/sdrvault/internal/logging"
	"github.com/sdrvault/sdrvault/internal/stage"
	"github.com/sdrvault/sdrvault/internal/storage"
)

const (
	// CompressedExt is the extension of the compressed recording format.
	CompressedExt = ".ogg"
	// UncompressedExt is the extension of the uncompressed recording format.
	UncompressedExt = ".wav"

	compressedType   = "audio/ogg"
	uncompressedType = "audio/wav"
)

// Audio is an open, servable staged file.
type Audio struct {
	Name        string
	Path        string
	ContentType string
	Size        int64
	ModTime     time.Time
	Body        io.ReadSeekCloser
}

// Workspaces resolves live workspaces.
type Workspaces interface {
	Open(ctx context.Context, id string) (stage.Workspace, error)
}

// Retriever resolves (workspace id, filename) pairs to servable files.
type Retriever struct {
	workspaces Workspaces
	decoder    Decoder
	logger     *slog.Logger

	// decodes collapses concurrent decodes of the same target into one run.
	decodes singleflight.Group
}

// New returns a Retriever reading from workspaces and decoding with dec.
func New(workspaces Workspaces, dec Decoder, logger *slog.Logger) *Retriever {
	return &Retriever{
		workspaces: workspaces,
		decoder:    dec,
		logger:     logging.WithComponent(logger, "retrieve"),
	}
}

// Fetch opens filename inside workspace id. The caller must close Body.
//
// When the compressed sibling of filename exists and filename names the
// uncompressed format, the uncompressed file is decoded on first request and
// served as audio/wav; later requests reuse it. Any other request with an
// existing compressed sibling is answered with the sibling as audio/ogg.
// Without a sibling the requested file itself is served if present.
func (r *Retriever) Fetch(ctx context.Context, id, filename string) (*Audio, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}
	ws, err := r.workspaces.Open(ctx, id)
	if err != nil {
		return nil, err
	}

	target := filepath.Join(ws.Dir, filename)
	ext := filepath.Ext(filename)
	sibling := strings.TrimSuffix(target, ext) + CompressedExt

	siblingExists, err := fileExists(sibling)
	if err != nil {
		return nil, err
	}
	if siblingExists {
		if ext != UncompressedExt {
			return openAudio(sibling, filepath.Base(sibling), compressedType)
		}
		if err := r.ensureDecoded(ctx, sibling, target); err != nil {
			return nil, err
		}
		return openAudio(target, filename, uncompressedType)
	}

	targetExists, err := fileExists(target)
	if err != nil {
		return nil, err
	}
	if !targetExists {
		return nil, sverr.ErrFileNotFound.WithMessage("%s not found in workspace %s", filename, id)
	}
	return openAudio(target, filename, ContentType(filename))
}

// ensureDecoded decodes compressed into target unless target already exists.
//
// Concurrent callers share one decode. The decode runs detached from the
// caller that started it, so a disconnecting client does not fail the
// others; each caller still stops waiting when its own ctx is done.
func (r *Retriever) ensureDecoded(ctx context.Context, compressed, target string) error {
	ch := r.decodes.DoChan(target, func() (any, error) {
		return r.decode(context.WithoutCancel(ctx), compressed, target)
	})
	select {
	case res := <-ch:
		if res.Shared {
			r.logger.Debug("shared decode result", "target", filepath.Base(target))
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Retriever) decode(ctx context.Context, compressed, target string) (string, error) {
	exists, err := fileExists(target)
	if err != nil || exists {
		return target, err
	}
	r.logger.Info("decoding", "source", filepath.Base(compressed), "dir", filepath.Dir(target))
	out, err := r.decoder.Decode(ctx, compressed)
	if err != nil {
		r.logger.Error("decode failed", "source", compressed, "error", err)
		if _, ok := sverr.As(err); ok {
			return "", err
		}
		return "", sverr.ErrTranscodeFailure.Wrap(err)
	}
	if out != target {
		return "", sverr.ErrTranscodeFailure.WithMessage("decoder wrote %s, want %s", out, target)
	}
	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		if err == nil && info.Mode().IsRegular() {
			// Later requests must not serve the empty file.
			os.Remove(target)
		}
		return "", sverr.ErrTranscodeFailure.WithMessage("decoder produced no output for %s", filepath.Base(compressed))
	}
	return out, nil
}

// ValidateFilename rejects names that are not a single file inside a workspace.
func ValidateFilename(name string) error {
	if name == "" || name == "." || name == ".." {
		return sverr.ErrInvalidArgument.WithMessage("invalid filename %q", name)
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return sverr.ErrInvalidArgument.WithMessage("filename %q must not contain path separators", name)
	}
	if storage.IsTempName(name) {
		return sverr.ErrInvalidArgument.WithMessage("invalid filename %q", name)
	}
	return nil
}

// UncompressedPath returns the uncompressed sibling path of p.
func UncompressedPath(p string) string {
	return strings.TrimSuffix(p, filepath.Ext(p)) + UncompressedExt
}

// ContentType returns the content type served for name.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case CompressedExt:
		return compressedType
	case UncompressedExt:
		return uncompressedType
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func fileExists(p string) (bool, error) {
	info, err := os.Stat(p)
	if err == nil {
		return info.Mode().IsRegular(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, sverr.ErrInternal.Wrap(fmt.Errorf("stat %s: %w", p, err))
}

func openAudio(p, name, contentType string) (*Audio, error) {
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, sverr.ErrFileNotFound.WithMessage("%s not found", name)
		}
		return nil, sverr.ErrInternal.Wrap(fmt.Errorf("open %s: %w", p, err))
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, sverr.ErrInternal.Wrap(fmt.Errorf("stat %s: %w", p, err))
	}
	return &Audio{
		Name:        name,
		Path:        p,
		ContentType: contentType,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		Body:        f,
	}, nil
}
