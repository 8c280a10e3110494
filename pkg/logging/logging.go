package logging

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"cloud.google.com/go/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger configures the global logger. Level is a zerolog level name, an
// empty level means info. Human enables console output instead of JSON.
func SetupLogger(version string, level string, human bool) error {
	return setup(os.Stdout, version, level, human)
}

func setup(out io.Writer, version string, level string, human bool) error {
	zerolog.TimestampFieldName = "timestamp"
	zerolog.TimeFieldFormat = time.RFC3339Nano

	lvl := zerolog.InfoLevel
	if level != "" {
		var err error
		if lvl, err = zerolog.ParseLevel(level); err != nil {
			return fmt.Errorf("parsing log level: %s", err)
		}
	}
	zerolog.SetGlobalLevel(lvl)

	if human {
		out = zerolog.ConsoleWriter{Out: out}
	}
	log.Logger = zerolog.New(out).
		Hook(googleSeverityHook{}).
		With().
		Timestamp().
		Str("version", version).
		Str("goversion", runtime.Version()).
		Logger()
	return nil
}

type googleSeverityHook struct{}

func (h googleSeverityHook) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	e.Str("severity", levelToSeverity(level).String())
}

// converts zerolog level to google's severity.
func levelToSeverity(level zerolog.Level) logging.Severity {
	switch level {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		return logging.Debug
	case zerolog.WarnLevel:
		return logging.Warning
	case zerolog.ErrorLevel:
		return logging.Error
	case zerolog.FatalLevel:
		return logging.Alert
	case zerolog.PanicLevel:
		return logging.Emergency
	default:
		return logging.Info
	}
}
