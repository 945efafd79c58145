// Package logging defines the leveled logging collaborator the core calls
// out to, per spec §6. The default implementation adapts log/slog, which
// is the teacher lineage's own logging idiom throughout dhcp/server and
// dhcp/protocol/network.go; see DESIGN.md for why no third-party logger
// replaces it here.
package logging

import (
	"log/slog"
	"os"
)

// Sink is the logging collaborator: four leveled methods, each accepting a
// message and structured key/value pairs in slog's own style.
type Sink interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warning(msg string, args ...any)
	Critical(msg string, args ...any)
}

// slogSink adapts a *slog.Logger to Sink. slog has no "Critical" level, so
// Critical logs at slog.LevelError with a "critical" attribute to keep it
// distinguishable from an ordinary Warning-escalated error in sinks that
// forward to external systems.
type slogSink struct {
	l *slog.Logger
}

// NewSlog wraps l (or a default text-handler logger over stderr, if l is
// nil) as a Sink.
func NewSlog(l *slog.Logger) Sink {
	if l == nil {
		l = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &slogSink{l: l}
}

func (s *slogSink) Debug(msg string, args ...any)    { s.l.Debug(msg, args...) }
func (s *slogSink) Info(msg string, args ...any)     { s.l.Info(msg, args...) }
func (s *slogSink) Warning(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogSink) Critical(msg string, args ...any) {
	s.l.Error(msg, append([]any{"severity", "critical"}, args...)...)
}
