// Package logger is the process-wide structured logger. Every package logs
// through the printf helpers here; scoped loggers add fixed attributes.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Format selects the line encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type sink struct {
	w      io.Writer
	format Format
	log    *slog.Logger
}

var (
	level   slog.LevelVar
	current atomic.Pointer[sink]
)

func init() {
	install(os.Stdout, FormatText)
}

func install(w io.Writer, format Format) {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: &level}
	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		format = FormatText
		h = slog.NewTextHandler(w, opts)
	}
	current.Store(&sink{w: w, format: format, log: slog.New(h)})
}

// SetOutput redirects every logger, including scoped ones created earlier.
func SetOutput(w io.Writer) {
	install(w, current.Load().format)
}

// SetFormat switches between "text" and "json"; anything else means text.
func SetFormat(format string) {
	install(current.Load().w, Format(strings.ToLower(strings.TrimSpace(format))))
}

func SetLevel(name string) {
	level.Set(ParseLevel(name))
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func base() *slog.Logger { return current.Load().log }

func Debugf(format string, v ...any) { base().Debug(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...any)  { base().Info(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...any)  { base().Warn(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...any) { base().Error(fmt.Sprintf(format, v...)) }

// Scoped attaches fixed attributes (bot id, experiment id) to every line.
// The sink is resolved per call so SetOutput still applies.
type Scoped struct {
	attrs []any
}

func With(kv ...any) *Scoped {
	return &Scoped{attrs: append([]any(nil), kv...)}
}

func (s *Scoped) logger() *slog.Logger {
	if s == nil || len(s.attrs) == 0 {
		return base()
	}
	return base().With(s.attrs...)
}

func (s *Scoped) Debugf(format string, v ...any) { s.logger().Debug(fmt.Sprintf(format, v...)) }
func (s *Scoped) Infof(format string, v ...any)  { s.logger().Info(fmt.Sprintf(format, v...)) }
func (s *Scoped) Warnf(format string, v ...any)  { s.logger().Warn(fmt.Sprintf(format, v...)) }
func (s *Scoped) Errorf(format string, v ...any) { s.logger().Error(fmt.Sprintf(format, v...)) }
