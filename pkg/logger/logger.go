package logger

import (
	"io"
	"log/slog"
	"os"
)

// Format selects the logger output encoding.
type Format string

const (
	// FormatJSON outputs structured logs for production log aggregation.
	FormatJSON Format = "json"
	// FormatText outputs human-readable logs for development.
	FormatText Format = "text"
)

// Config controls logger construction; values come from the environment.
type Config struct {
	Level  slog.Level `env:"LOG_LEVEL" envDefault:"info"`   // Level is the minimum level that gets emitted.
	Format Format     `env:"LOG_FORMAT" envDefault:"json"`  // Format is "json" or "text".
	Source bool       `env:"LOG_SOURCE" envDefault:"false"` // Source adds file:line of the call site to records.
}

// Option configures logger creation.
type Option func(*settings)

type settings struct {
	cfg    Config
	output io.Writer
	attrs  []slog.Attr
}

// WithLevel sets the minimum emitted level.
func WithLevel(l slog.Level) Option {
	return func(s *settings) { s.cfg.Level = l }
}

// WithFormat sets the output encoding. Unknown formats fall back to JSON.
func WithFormat(f Format) Option {
	return func(s *settings) { s.cfg.Format = f }
}

// WithOutput sets a custom output destination. Nil writers are ignored.
func WithOutput(w io.Writer) Option {
	return func(s *settings) {
		if w != nil {
			s.output = w
		}
	}
}

// WithAttr adds static attributes attached to every record, e.g. the
// service name and environment.
func WithAttr(attrs ...slog.Attr) Option {
	return func(s *settings) {
		s.attrs = append(s.attrs, attrs...)
	}
}

// New builds a slog.Logger from config and options. Options are applied
// after the config, so they win on overlap.
func New(cfg Config, opts ...Option) *slog.Logger {
	s := &settings{
		cfg:    cfg,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     s.cfg.Level,
		AddSource: s.cfg.Source,
	}

	var handler slog.Handler
	switch s.cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(s.output, handlerOpts)
	default:
		handler = slog.NewJSONHandler(s.output, handlerOpts)
	}

	if len(s.attrs) > 0 {
		handler = handler.WithAttrs(s.attrs)
	}

	return slog.New(handler)
}

// Default builds a logger with default config and the given options.
func Default(opts ...Option) *slog.Logger {
	return New(Config{Level: slog.LevelInfo, Format: FormatJSON}, opts...)
}
