package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// PrettyJSONHandler is a custom handler that pretty prints JSON in development
type PrettyJSONHandler struct {
	*slog.JSONHandler
	writer io.Writer
	attrs  []slog.Attr
}

func (h *PrettyJSONHandler) Handle(ctx context.Context, r slog.Record) error {
	// Convert the record to a map
	attrs := make(map[string]interface{})
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	// Add time and level
	attrs["time"] = r.Time.Format(time.RFC3339)
	attrs["level"] = r.Level.String()
	attrs["msg"] = r.Message

	// Marshal with indentation
	prettyJSON, err := json.MarshalIndent(attrs, "", "  ")
	if err != nil {
		return err
	}

	_, err = h.writer.Write(append(prettyJSON, '\n'))
	return err
}

// WithAttrs keeps logger.With attributes in the pretty output.
func (h *PrettyJSONHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &PrettyJSONHandler{
		JSONHandler: h.JSONHandler,
		writer:      h.writer,
		attrs:       append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func newPrettyJSONHandler(w io.Writer, level slog.Leveler) *PrettyJSONHandler {
	return &PrettyJSONHandler{
		JSONHandler: slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}),
		writer:      w,
	}
}

var ProdLogger = slog.New(slog.NewJSONHandler(os.Stderr, nil))

var DevLogger = slog.New(newPrettyJSONHandler(os.Stderr, slog.LevelDebug))

// Discard drops every record.
var Discard = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Format selects the output encoding of New.
type Format string

const (
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// ParseFormat accepts "json" and "pretty"; "" means json.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatPretty:
		return FormatPretty, nil
	default:
		return "", fmt.Errorf("logging: unknown format %q", s)
	}
}

// ParseLevel accepts debug, info, warn and error; "" means info.
func ParseLevel(s string) (slog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging: unknown level %q", s)
	}
	return l, nil
}

// New returns a logger writing to w.
func New(w io.Writer, format Format, level slog.Level) *slog.Logger {
	if format == FormatPretty {
		return slog.New(newPrettyJSONHandler(w, level))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Track runs fn and logs its start and completion with the elapsed time.
// A failure is logged at error level and returned unchanged.
func Track(ctx context.Context, logger *slog.Logger, event string, fn func(context.Context) error, attrs ...any) error {
	start := time.Now()
	logger.DebugContext(ctx, event+"_started", attrs...)

	err := fn(ctx)

	done := append(attrs, "duration_ms", float64(time.Since(start).Nanoseconds())/1e6)
	if err != nil {
		logger.ErrorContext(ctx, event+"_failed", append(done, "error", err.Error())...)
		return err
	}
	logger.DebugContext(ctx, event+"_completed", done...)
	return nil
}
