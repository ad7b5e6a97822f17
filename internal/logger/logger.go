package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Environments the service may run in
const (
	EnvDevelopment = "dev"
	EnvProduction  = "prod"
)

const serviceName = "refledger"

// Logger is what services and handlers log through
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

type Options struct {
	// EnvDevelopment gives human readable text, EnvProduction gives JSON lines
	Env   string
	Level string

	// Stderr when nil
	Output io.Writer
}

// New returns text logger for development and JSON logger for production, both on stderr
func New(env string, level string) (Logger, error) {
	return NewWithOptions(Options{Env: env, Level: level})
}

func NewWithOptions(o Options) (Logger, error) {
	lvl, err := parseLevel(o.Level)
	if err != nil {
		return nil, err
	}

	out := o.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   true,
		ReplaceAttr: replace,
	}

	var h slog.Handler
	switch o.Env {
	case EnvDevelopment:
		h = slog.NewTextHandler(out, opts)
	case EnvProduction:
		h = slog.NewJSONHandler(out, opts)
	default:
		return nil, fmt.Errorf("unknown environment %q", o.Env)
	}

	base := slog.New(h).With("service", serviceName, "env", o.Env)
	return &slogLogger{logger: base}, nil
}

// NewNoOpLogger creates a logger that discards all log messages
func NewNoOpLogger() Logger {
	return &slogLogger{logger: slog.New(slog.DiscardHandler)}
}
