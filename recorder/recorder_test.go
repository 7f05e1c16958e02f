package recorder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetbot-recorder/config"
)

func newTestRecorder(t *testing.T, binary string) *FFmpeg {
	t.Helper()
	return &FFmpeg{
		Binary:    binary,
		Capture:   config.DefaultCapture(),
		OutputDir: t.TempDir(),
		WaitDelay: time.Second,
		Log:       zerolog.Nop(),
	}
}

func TestArgs(t *testing.T) {
	r := newTestRecorder(t, "ffmpeg")

	args := r.Args(3)

	assert.Equal(t, []string{
		"-y",
		"-video_size", "1920x1080",
		"-framerate", "30",
		"-f", "x11grab",
		"-i", ":99",
		"-f", "pulse",
		"-i", "default",
		"-t", "180",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-strict", "experimental",
		filepath.Join(r.OutputDir, "output.mp4"),
	}, args)
}

func TestRecordWaitsForExit(t *testing.T) {
	script := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nsleep 1\n"), 0o755))
	r := newTestRecorder(t, script)

	res, err := r.Record(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, time.Minute, res.Requested)
	assert.GreaterOrEqual(t, res.Elapsed, time.Second)
	assert.Equal(t, r.OutputPath(), res.Path)
	assert.FileExists(t, r.OutputPath()+".ffmpeg.log")
}

func TestRecordWarnsWhenLogFileUnavailable(t *testing.T) {
	script := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	var logs bytes.Buffer
	r := newTestRecorder(t, script)
	r.OutputDir = filepath.Join(t.TempDir(), "missing")
	r.Log = zerolog.New(&logs)

	_, err := r.Record(context.Background(), 1)
	require.NoError(t, err)

	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), "ffmpeg.log")
	assert.NoFileExists(t, r.OutputPath()+".ffmpeg.log")
}

func TestRecordMissingBinary(t *testing.T) {
	r := newTestRecorder(t, filepath.Join(t.TempDir(), "no-such-ffmpeg"))

	_, err := r.Record(context.Background(), 1)
	assert.ErrorIs(t, err, ErrInvocation)
}

func TestRecordAbnormalExit(t *testing.T) {
	script := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho broken >&2\nexit 1\n"), 0o755))
	r := newTestRecorder(t, script)

	_, err := r.Record(context.Background(), 1)
	assert.ErrorIs(t, err, ErrInvocation)
}

func TestRecordRejectsZeroDuration(t *testing.T) {
	r := newTestRecorder(t, "ffmpeg")

	_, err := r.Record(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvocation)
}

func TestRecordInterrupted(t *testing.T) {
	script := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755))
	r := newTestRecorder(t, script)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	_, err := r.Record(ctx, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}
