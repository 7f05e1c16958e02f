// Package audio prepares the host's PulseAudio virtual devices the browser
// and the recorder rely on. It runs once before a session starts and is
// safe to run again.
package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Runner executes a host command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type Sink struct {
	Name        string
	Description string
}

// DefaultSinks mirror the container layout: a dummy speaker and a virtual
// microphone whose monitor becomes the default source.
var DefaultSinks = []Sink{
	{Name: "DummyOutput", Description: "Virtual_Dummy_Output"},
	{Name: "MicOutput", Description: "Virtual_Microphone_Output"},
}

type Provisioner struct {
	Run   Runner
	Sinks []Sink
	// DefaultSink also provides the default source via its monitor.
	DefaultSink string
	Log         zerolog.Logger
}

func NewProvisioner(log zerolog.Logger) *Provisioner {
	return &Provisioner{
		Run:         ExecRunner,
		Sinks:       DefaultSinks,
		DefaultSink: "MicOutput",
		Log:         log.With().Str("component", "audio").Logger(),
	}
}

// Provision starts the daemon if needed, loads any missing null sinks and
// sets the defaults. Failures are returned so the caller can decide; the
// session itself never retries them.
func (p *Provisioner) Provision(ctx context.Context) error {
	if _, err := p.Run(ctx, "pactl", "info"); err != nil {
		p.Log.Info().Msg("PulseAudio not reachable, starting daemon")
		if out, err := p.Run(ctx, "pulseaudio", "-D", "--verbose", "--exit-idle-time=-1", "--system", "--disallow-exit"); err != nil {
			return fmt.Errorf("starting pulseaudio: %w: %s", err, strings.TrimSpace(string(out)))
		}
	}

	existing, err := p.listSinks(ctx)
	if err != nil {
		return err
	}

	for _, sink := range p.Sinks {
		if existing[sink.Name] {
			p.Log.Debug().Str("sink", sink.Name).Msg("Sink already loaded")
			continue
		}
		out, err := p.Run(ctx, "pactl", "load-module", "module-null-sink",
			"sink_name="+sink.Name,
			"sink_properties=device.description="+sink.Description)
		if err != nil {
			return fmt.Errorf("loading sink %s: %w: %s", sink.Name, err, strings.TrimSpace(string(out)))
		}
		p.Log.Info().Str("sink", sink.Name).Msg("Loaded virtual sink")
	}

	if p.DefaultSink == "" {
		return nil
	}
	if out, err := p.Run(ctx, "pactl", "set-default-source", p.DefaultSink+".monitor"); err != nil {
		return fmt.Errorf("setting default source: %w: %s", err, strings.TrimSpace(string(out)))
	}
	if out, err := p.Run(ctx, "pactl", "set-default-sink", p.DefaultSink); err != nil {
		return fmt.Errorf("setting default sink: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// listSinks parses `pactl list short sinks`: index, name, driver, ...
func (p *Provisioner) listSinks(ctx context.Context) (map[string]bool, error) {
	out, err := p.Run(ctx, "pactl", "list", "short", "sinks")
	if err != nil {
		return nil, fmt.Errorf("listing sinks: %w", err)
	}
	sinks := make(map[string]bool)
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			sinks[fields[1]] = true
		}
	}
	return sinks, nil
}
