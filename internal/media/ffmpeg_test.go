package media

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
}

func TestFFmpegDecoderMissingBinary(t *testing.T) {
	t.Parallel()

	d := NewFFmpegDecoder("ffmpeg-does-not-exist", t.TempDir(), nil)
	assert.ErrorIs(t, d.Available(), ErrDecoderUnavailable)

	_, err := d.DecodeFrames(context.Background(), []byte("data"), 10)
	assert.ErrorIs(t, err, ErrDecoderUnavailable)
}

func TestFFmpegDecoderEmptyInput(t *testing.T) {
	t.Parallel()

	d := NewFFmpegDecoder("", t.TempDir(), nil)
	_, err := d.DecodeFrames(context.Background(), nil, 10)
	assert.ErrorIs(t, err, ErrNoFrames)
}

func TestFFmpegDecoderCorruptInput(t *testing.T) {
	requireFFmpeg(t)
	t.Parallel()

	d := NewFFmpegDecoder("ffmpeg", t.TempDir(), nil)
	_, err := d.DecodeFrames(context.Background(), []byte("definitely not a video container"), 10)
	assert.ErrorIs(t, err, ErrNoFrames)

	s := NewSampler(NewPreprocessor(samplerContract, ChannelsRGB), d, 10, 1, nil)
	seq, err := s.Sample(context.Background(), []byte("garbage"), KindVideo)
	require.NoError(t, err)
	assert.Len(t, seq, 10)
}

func TestFFmpegDecoderRespectsLimit(t *testing.T) {
	requireFFmpeg(t)
	t.Parallel()

	dir := t.TempDir()
	clip := filepath.Join(dir, "clip.mkv")
	gen := exec.Command("ffmpeg", "-v", "error",
		"-f", "lavfi", "-i", "testsrc=duration=1:size=64x48:rate=8",
		"-c:v", "ffv1", "-y", clip)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("cannot generate test clip: %v: %s", err, out)
	}
	data, err := os.ReadFile(clip)
	require.NoError(t, err)

	d := NewFFmpegDecoder("ffmpeg", dir, nil)
	frames, err := d.DecodeFrames(context.Background(), data, 3)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, 64, frames[0].Bounds().Dx())
	assert.Equal(t, 48, frames[0].Bounds().Dy())

	all, err := d.DecodeFrames(context.Background(), data, 0)
	require.NoError(t, err)
	assert.Len(t, all, 8)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "work dirs must be removed")
}
