package retrieve

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	sverr "github.com/sdrvault/sdrvault/internal/errors"
	"github.com/sdrvault/sdrvault/internal/metrics"
	"github.com/sdrvault/sdrvault/internal/storage"
)

// Decoder materializes the uncompressed sibling of a compressed recording.
// Decode returns the path of the decoded file, which is UncompressedPath of
// the input, or an error wrapping sverr.ErrTranscodeFailure.
type Decoder interface {
	Decode(ctx context.Context, compressedPath string) (string, error)
}

// ExecDecoder runs an external command to decode one file. The command
// writes into a temp file next to the target, which is renamed into place
// only after the command succeeds with non-empty output.
type ExecDecoder struct {
	// Name labels the decoder in logs and metrics.
	Name string
	// Path is the executable, resolved through PATH when not absolute.
	Path string
	// Args builds the argument list for decoding in into out.
	Args func(in, out string) []string
}

// OggDec returns the oggdec decoder ("oggdec -Q -o <out> <in>").
func OggDec(path string) *ExecDecoder {
	if path == "" {
		path = "oggdec"
	}
	return &ExecDecoder{
		Name: "oggdec",
		Path: path,
		Args: func(in, out string) []string {
			return []string{"-Q", "-o", out, in}
		},
	}
}

// FFmpeg returns an ffmpeg decoder writing WAV output.
func FFmpeg(path string) *ExecDecoder {
	if path == "" {
		path = "ffmpeg"
	}
	return &ExecDecoder{
		Name: "ffmpeg",
		Path: path,
		Args: func(in, out string) []string {
			// The temp name has no .wav suffix, so the muxer is named explicitly.
			return []string{"-loglevel", "error", "-y", "-i", in, "-f", "wav", out}
		},
	}
}

// NewDecoder returns the built-in decoder called name. An empty path uses
// the decoder's default executable name.
func NewDecoder(name, path string) (*ExecDecoder, error) {
	switch strings.ToLower(name) {
	case "", "oggdec":
		return OggDec(path), nil
	case "ffmpeg":
		return FFmpeg(path), nil
	default:
		return nil, sverr.ErrConfiguration.WithMessage("unknown decoder %q (want oggdec or ffmpeg)", name)
	}
}

// Available reports whether the decoder executable can be found.
func (d *ExecDecoder) Available() error {
	_, err := exec.LookPath(d.Path)
	return err
}

// Decode runs the command for compressedPath and returns the decoded path.
func (d *ExecDecoder) Decode(ctx context.Context, compressedPath string) (string, error) {
	start := time.Now()
	out, err := d.decode(ctx, compressedPath)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.TranscodesTotal.WithLabelValues(d.Name, status).Inc()
	metrics.TranscodeDuration.WithLabelValues(d.Name).Observe(time.Since(start).Seconds())
	return out, err
}

func (d *ExecDecoder) decode(ctx context.Context, compressedPath string) (string, error) {
	out := UncompressedPath(compressedPath)
	tmp := storage.TempPath(out)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.Path, d.Args(compressedPath, tmp)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(tmp)
		return "", sverr.ErrTranscodeFailure.Wrap(
			fmt.Errorf("%s %s: %w: %s", d.Name, compressedPath, err, strings.TrimSpace(stderr.String())))
	}

	info, err := os.Stat(tmp)
	if err != nil || info.Size() == 0 {
		os.Remove(tmp)
		return "", sverr.ErrTranscodeFailure.WithMessage("%s produced no output for %s", d.Name, compressedPath)
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return "", sverr.ErrTranscodeFailure.Wrap(fmt.Errorf("renaming decoded file: %w", err))
	}
	return out, nil
}

var _ Decoder = (*ExecDecoder)(nil)
