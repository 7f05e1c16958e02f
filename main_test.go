package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"meetbot-recorder/bot"
	"meetbot-recorder/config"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"config sentinel", fmt.Errorf("%w: MEET_URL is required", config.ErrConfiguration), exitConfig},
		{"config kind", &bot.Error{Kind: bot.KindConfiguration, Op: "configure"}, exitConfig},
		{"interrupt", &bot.Error{Kind: bot.KindInterrupt, Op: "recording", Err: context.Canceled}, exitInterrupted},
		{"join", &bot.Error{Kind: bot.KindJoinNotFound, Op: "join"}, exitFatal},
		{"plain", errors.New("boom"), exitFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"env-file", "config", "headless", "provision-audio", "log-level"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "true", cmd.Flags().Lookup("provision-audio").DefValue)
}
