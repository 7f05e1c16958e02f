package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ErrConfiguration is wrapped by every validation failure. Nothing in the
// browser or on disk has been touched when it is returned.
var ErrConfiguration = errors.New("configuration error")

const (
	EnvMeetURL     = "MEET_URL"
	EnvEmail       = "GMAIL_USER_EMAIL"
	EnvPassword    = "GMAIL_USER_PASSWORD"
	EnvDuration    = "DURATION_IN_MINUTES"
	EnvMaxWait     = "MAX_WAIT_TIME_IN_MINUTES"
	EnvHeadless    = "MEETBOT_HEADLESS"
	EnvLogLevel    = "MEETBOT_LOG_LEVEL"
	EnvDiagnostics = "MEETBOT_SCREENSHOTS_DIR"
	EnvRecordings  = "MEETBOT_RECORDINGS_DIR"
)

type Config struct {
	MeetURL  string
	Email    string
	Password string

	DurationMinutes int
	// MaxWaitMinutes bounds the whole join search.
	MaxWaitMinutes int

	Headless       bool
	LogLevel       string
	DiagnosticsDir string
	RecordingsDir  string

	Capture Capture
}

// Capture holds the fixed ffmpeg parameters.
type Capture struct {
	Width       int    `toml:"width"`
	Height      int    `toml:"height"`
	Framerate   int    `toml:"framerate"`
	Display     string `toml:"display"`
	AudioSource string `toml:"audio_source"`
	VideoCodec  string `toml:"video_codec"`
	AudioCodec  string `toml:"audio_codec"`
	Output      string `toml:"output"`
}

type fileConfig struct {
	Capture Capture `toml:"capture"`
}

// Options points Load at optional files. Empty paths are skipped.
type Options struct {
	EnvFile    string
	ConfigFile string
}

func DefaultCapture() Capture {
	return Capture{
		Width:       1920,
		Height:      1080,
		Framerate:   30,
		Display:     ":99",
		AudioSource: "default",
		VideoCodec:  "libx264",
		AudioCodec:  "aac",
		Output:      "output.mp4",
	}
}

func DefaultConfig() *Config {
	return &Config{
		DurationMinutes: 1,
		MaxWaitMinutes:  2,
		Headless:        false,
		LogLevel:        "info",
		DiagnosticsDir:  "screenshots",
		RecordingsDir:   "recordings",
		Capture:         DefaultCapture(),
	}
}

// Load resolves the session configuration: defaults, then .env, then the
// TOML capture profile, then the process environment. It validates before
// returning and never creates files.
func Load(opts Options) (*Config, error) {
	cfg := DefaultConfig()

	if opts.EnvFile != "" {
		// godotenv.Load does not override variables already set.
		if err := godotenv.Load(opts.EnvFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: loading env file %s: %v", ErrConfiguration, opts.EnvFile, err)
		}
	}

	if opts.ConfigFile != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(opts.ConfigFile, &fc); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrConfiguration, opts.ConfigFile, err)
		}
		cfg.Capture = mergeCapture(cfg.Capture, fc.Capture)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.MeetURL = strings.TrimSpace(os.Getenv(EnvMeetURL))
	cfg.Email = strings.TrimSpace(os.Getenv(EnvEmail))
	cfg.Password = os.Getenv(EnvPassword)

	if v := os.Getenv(EnvDuration); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrConfiguration, EnvDuration, v)
		}
		cfg.DurationMinutes = n
	}
	if v := os.Getenv(EnvMaxWait); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrConfiguration, EnvMaxWait, v)
		}
		cfg.MaxWaitMinutes = n
	}
	if v := os.Getenv(EnvHeadless); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrConfiguration, EnvHeadless, v)
		}
		cfg.Headless = b
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvDiagnostics); v != "" {
		cfg.DiagnosticsDir = v
	}
	if v := os.Getenv(EnvRecordings); v != "" {
		cfg.RecordingsDir = v
	}
	return nil
}

func mergeCapture(base, override Capture) Capture {
	if override.Width > 0 {
		base.Width = override.Width
	}
	if override.Height > 0 {
		base.Height = override.Height
	}
	if override.Framerate > 0 {
		base.Framerate = override.Framerate
	}
	if override.Display != "" {
		base.Display = override.Display
	}
	if override.AudioSource != "" {
		base.AudioSource = override.AudioSource
	}
	if override.VideoCodec != "" {
		base.VideoCodec = override.VideoCodec
	}
	if override.AudioCodec != "" {
		base.AudioCodec = override.AudioCodec
	}
	if override.Output != "" {
		base.Output = override.Output
	}
	return base
}

// Validate reports every missing or out-of-range field at once.
func (c *Config) Validate() error {
	var problems []string

	if c.MeetURL == "" {
		problems = append(problems, EnvMeetURL+" is required")
	} else if u, err := url.Parse(c.MeetURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, EnvMeetURL+" must be an absolute URL with scheme and host")
	}
	if c.Email == "" {
		problems = append(problems, EnvEmail+" is required")
	}
	if c.Password == "" {
		problems = append(problems, EnvPassword+" is required")
	}
	if c.DurationMinutes <= 0 {
		problems = append(problems, EnvDuration+" must be greater than 0")
	}
	if c.MaxWaitMinutes <= 0 {
		problems = append(problems, EnvMaxWait+" must be greater than 0")
	}
	if c.DiagnosticsDir == "" || c.RecordingsDir == "" {
		problems = append(problems, "diagnostics and recordings directories must be set")
	}
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 || c.Capture.Framerate <= 0 {
		problems = append(problems, "capture geometry and framerate must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// VideoSize renders the geometry the way ffmpeg expects it.
func (c Capture) VideoSize() string {
	return fmt.Sprintf("%dx%d", c.Width, c.Height)
}
