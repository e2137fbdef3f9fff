package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"go.uber.org/zap"
)

// FFmpegDecoder extracts frames by running the ffmpeg binary against a
// temporary copy of the upload.
type FFmpegDecoder struct {
	bin     string
	tempDir string
	logger  *zap.Logger
}

func NewFFmpegDecoder(bin, tempDir string, logger *zap.Logger) *FFmpegDecoder {
	if bin == "" {
		bin = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFmpegDecoder{bin: bin, tempDir: tempDir, logger: logger}
}

// Available reports whether the ffmpeg binary can be found.
func (d *FFmpegDecoder) Available() error {
	if _, err := exec.LookPath(d.bin); err != nil {
		return fmt.Errorf("%w: %v", ErrDecoderUnavailable, err)
	}
	return nil
}

// DecodeFrames implements VideoDecoder. Frames ffmpeg managed to write
// before failing are still returned.
func (d *FFmpegDecoder) DecodeFrames(ctx context.Context, data []byte, limit int) ([]image.Image, error) {
	if len(data) == 0 {
		return nil, ErrNoFrames
	}

	if d.tempDir != "" {
		if err := os.MkdirAll(d.tempDir, 0o755); err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
	}
	workDir, err := os.MkdirTemp(d.tempDir, "frames-")
	if err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	input := filepath.Join(workDir, "input")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}

	args := []string{"-v", "error", "-i", input, "-vsync", "0"}
	if limit > 0 {
		args = append(args, "-frames:v", strconv.Itoa(limit))
	}
	args = append(args, "-y", filepath.Join(workDir, "frame_%06d.png"))

	cmd := exec.CommandContext(ctx, d.bin, args...)
	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrDecoderUnavailable, runErr)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	paths, err := filepath.Glob(filepath.Join(workDir, "frame_*.png"))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	sort.Strings(paths)

	frames := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		img, err := readPNG(p)
		if err != nil {
			d.logger.Warn("skipping unreadable frame", zap.String("frame", filepath.Base(p)), zap.Error(err))
			continue
		}
		frames = append(frames, img)
	}

	if len(frames) == 0 {
		if runErr != nil {
			return nil, fmt.Errorf("%w: ffmpeg error: %v, output: %s", ErrNoFrames, runErr, string(output))
		}
		return nil, ErrNoFrames
	}
	if runErr != nil {
		d.logger.Warn("ffmpeg exited early, using partial frames",
			zap.Error(runErr),
			zap.Int("count", len(frames)),
		)
	}

	d.logger.Debug("frames extracted", zap.Int("count", len(frames)), zap.Int("limit", limit))
	return frames, nil
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}
