package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"meetbot-recorder/audio"
	"meetbot-recorder/bot"
	"meetbot-recorder/config"
	"meetbot-recorder/logger"
	"meetbot-recorder/recorder"
)

const (
	exitFatal       = 1
	exitConfig      = 2
	exitInterrupted = 130
)

type options struct {
	envFile        string
	configFile     string
	headless       bool
	provisionAudio bool
	logLevel       string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "meetbot",
		Short: "Join a Google Meet headlessly and record it",
		Long: "Signs in to Google, joins the meeting in MEET_URL with microphone and camera off,\n" +
			"records the virtual display and audio sink for DURATION_IN_MINUTES, then waits for Ctrl+C.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "Optional .env file with meeting credentials")
	cmd.Flags().StringVar(&opts.configFile, "config", "", "Optional TOML capture profile")
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "Run Chromium without a window (nothing to record on the display)")
	cmd.Flags().BoolVar(&opts.provisionAudio, "provision-audio", true, "Set up PulseAudio virtual sinks before joining")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	cfg, err := config.Load(config.Options{EnvFile: opts.envFile, ConfigFile: opts.configFile})
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("headless") {
		cfg.Headless = opts.headless
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	log := logger.Default(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	if opts.provisionAudio {
		if err := audio.NewProvisioner(log).Provision(ctx); err != nil {
			log.Warn().Err(err).Msg("Audio setup error")
		}
	}

	log.Info().Msg("Starting Google Meet recorder")
	supervisor := bot.NewSupervisor(cfg, launcher(cfg, log), recorder.New(cfg, log), log)
	if err := supervisor.Run(ctx); err != nil {
		return err
	}

	if res := supervisor.Result(); res != nil {
		log.Info().Str("path", res.Path).Msg("Finished recording Google Meet")
	}
	return nil
}

func launcher(cfg *config.Config, log zerolog.Logger) bot.Launcher {
	return func(ctx context.Context) (bot.Driver, error) {
		return bot.Launch(ctx, bot.LaunchOptions{
			Headless: cfg.Headless,
			Width:    cfg.Capture.Width,
			Height:   cfg.Capture.Height,
		}, log)
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, config.ErrConfiguration), bot.KindOf(err) == bot.KindConfiguration:
		return exitConfig
	case bot.KindOf(err) == bot.KindInterrupt:
		return exitInterrupted
	}
	return exitFatal
}

func main() {
	err := newRootCmd().Execute()
	if err != nil && bot.KindOf(err) != bot.KindInterrupt {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}
