package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a console logger that sends debug/info/warn to out and
// error and above to errOut.
func New(out, errOut io.Writer, level string) zerolog.Logger {
	writer := zerolog.MultiLevelWriter(
		SpecificLevelWriter{
			Writer: zerolog.ConsoleWriter{
				Out:        out,
				TimeFormat: time.RFC3339,
				NoColor:    true,
			},
			Levels: []zerolog.Level{
				zerolog.TraceLevel, zerolog.DebugLevel, zerolog.InfoLevel, zerolog.WarnLevel,
			},
		},
		SpecificLevelWriter{
			Writer: zerolog.ConsoleWriter{
				Out:        errOut,
				TimeFormat: time.RFC3339,
				NoColor:    true,
			},
			Levels: []zerolog.Level{
				zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel,
			},
		},
	)
	return zerolog.New(writer).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// Default is New on the process stdio.
func Default(level string) zerolog.Logger {
	return New(os.Stdout, os.Stderr, level)
}

// ParseLevel falls back to info for empty or unknown names.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return l
}

// SpecificLevelWriter forwards only the listed levels to Writer.
type SpecificLevelWriter struct {
	io.Writer
	Levels []zerolog.Level
}

func (w SpecificLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	for _, l := range w.Levels {
		if l == level {
			return w.Write(p)
		}
	}
	return len(p), nil
}
