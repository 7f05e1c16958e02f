package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewSplitsLevels(t *testing.T) {
	var out, errOut bytes.Buffer
	log := New(&out, &errOut, "debug")

	log.Info().Msg("joining meeting")
	log.Error().Msg("join failed")

	assert.Contains(t, out.String(), "joining meeting")
	assert.NotContains(t, out.String(), "join failed")
	assert.Contains(t, errOut.String(), "join failed")
	assert.NotContains(t, errOut.String(), "joining meeting")
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	log := New(&out, &errOut, "warn")

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "level %q", tt.in)
	}
}
