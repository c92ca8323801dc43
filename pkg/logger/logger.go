// Package logger builds the process-wide slog logger and carries the attribute
// helpers the leveling components share, so log lines from the award path,
// the reactor and the jobs use the same keys.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Format selects the slog handler.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Options configures Setup.
type Options struct {
	Output    io.Writer
	Level     slog.Level
	Format    Format
	AddSource bool
}

// DefaultOptions returns text output at info level on stdout.
func DefaultOptions() Options {
	return Options{
		Output: os.Stdout,
		Level:  slog.LevelInfo,
		Format: FormatText,
	}
}

// ParseLevel maps DEBUG/INFO/WARN/WARNING/ERROR (any case) to a slog level.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseFormat maps "json" to FormatJSON and anything else to FormatText.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}

// New creates a logger from opts without touching the slog default.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	ho := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if opts.Format == FormatJSON {
		// JSON for production log shippers
		handler = slog.NewJSONHandler(opts.Output, ho)
	} else {
		handler = slog.NewTextHandler(opts.Output, ho)
	}
	return slog.New(handler)
}

// Setup creates a logger and installs it as slog's default.
func Setup(opts Options) *slog.Logger {
	l := New(opts)
	slog.SetDefault(l)
	return l
}

type ctxKey struct{}

// WithContext returns a copy of ctx carrying l.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTRIBUTE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// Err returns an "error" attribute; nil errors log as an empty string.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

func UserID(id fmt.Stringer) slog.Attr    { return slog.String("user_id", id.String()) }
func RoleID(id fmt.Stringer) slog.Attr    { return slog.String("role_id", id.String()) }
func ChannelID(id fmt.Stringer) slog.Attr { return slog.String("channel_id", id.String()) }
func Activity(a fmt.Stringer) slog.Attr   { return slog.String("activity", a.String()) }
func XP(xp int) slog.Attr                 { return slog.Int("xp", xp) }
func Level(level int) slog.Attr           { return slog.Int("level", level) }
func Component(name string) slog.Attr     { return slog.String("component", name) }
func Operation(name string) slog.Attr     { return slog.String("operation", name) }
func Latency(d time.Duration) slog.Attr   { return slog.Duration("latency", d) }
