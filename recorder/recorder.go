package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"meetbot-recorder/config"
)

// ErrInvocation covers both a recorder that could not start and one that
// exited abnormally.
var ErrInvocation = errors.New("recorder invocation failed")

// Result describes the finished output file.
type Result struct {
	Path      string
	Requested time.Duration
	Elapsed   time.Duration
}

// FFmpeg captures the X display and the pulse source into one file.
type FFmpeg struct {
	Binary    string
	Capture   config.Capture
	OutputDir string
	// WaitDelay bounds how long ffmpeg may take to finalize after SIGINT.
	WaitDelay time.Duration
	Log       zerolog.Logger
}

func New(cfg *config.Config, log zerolog.Logger) *FFmpeg {
	return &FFmpeg{
		Binary:    "ffmpeg",
		Capture:   cfg.Capture,
		OutputDir: cfg.RecordingsDir,
		WaitDelay: 10 * time.Second,
		Log:       log.With().Str("component", "recorder").Logger(),
	}
}

func (f *FFmpeg) OutputPath() string {
	return filepath.Join(f.OutputDir, f.Capture.Output)
}

// Args is the full ffmpeg command line. The -t value is the hard stop.
func (f *FFmpeg) Args(minutes int) []string {
	c := f.Capture
	return []string{
		"-y",
		"-video_size", c.VideoSize(),
		"-framerate", strconv.Itoa(c.Framerate),
		"-f", "x11grab",
		"-i", c.Display,
		"-f", "pulse",
		"-i", c.AudioSource,
		"-t", strconv.Itoa(minutes * 60),
		"-c:v", c.VideoCodec,
		"-pix_fmt", "yuv420p",
		"-c:a", c.AudioCodec,
		"-strict", "experimental",
		f.OutputPath(),
	}
}

// Record blocks until ffmpeg exits. Cancelling ctx sends SIGINT so the
// container is finalized.
func (f *FFmpeg) Record(ctx context.Context, minutes int) (*Result, error) {
	if minutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive, got %d", ErrInvocation, minutes)
	}

	cmd := exec.CommandContext(ctx, f.Binary, f.Args(minutes)...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(unix.SIGINT)
	}
	cmd.WaitDelay = f.WaitDelay

	logPath := f.OutputPath() + ".ffmpeg.log"
	if logFile, err := os.Create(logPath); err != nil {
		f.Log.Warn().Err(err).Str("path", logPath).Msg("Cannot create ffmpeg log, stderr will be discarded")
	} else {
		cmd.Stderr = logFile
		defer logFile.Close()
	}

	requested := time.Duration(minutes) * time.Minute
	f.Log.Info().
		Str("output", f.OutputPath()).
		Dur("duration", requested).
		Msg("Starting screen recording")

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting %s: %v", ErrInvocation, f.Binary, err)
	}

	err := cmd.Wait()
	elapsed := time.Since(start)
	if ctx.Err() != nil {
		return nil, fmt.Errorf("recording interrupted after %s: %w", elapsed.Round(time.Second), ctx.Err())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s exited: %v (see %s)", ErrInvocation, f.Binary, err, logPath)
	}

	f.Log.Info().Str("output", f.OutputPath()).Dur("elapsed", elapsed).Msg("Recording completed")
	return &Result{Path: f.OutputPath(), Requested: requested, Elapsed: elapsed}, nil
}
