// Package diag carries non-fatal findings from parsing, merging and checking
// configuration files to whoever wants to see them.
package diag

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Severity of a diagnostic.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Diagnostic locates one finding in a source file.
type Diagnostic struct {
	Severity Severity
	File     string
	Line     int // 1-based, 0 when not tied to a line
	Key      string
	Message  string
}

func (d Diagnostic) String() string {
	var sb strings.Builder
	sb.WriteString(d.Severity.String())
	sb.WriteString(": ")
	if d.File != "" {
		sb.WriteString(d.File)
		if d.Line > 0 {
			fmt.Fprintf(&sb, ":%d", d.Line)
		}
		sb.WriteString(": ")
	}
	sb.WriteString(d.Message)
	if d.Key != "" {
		fmt.Fprintf(&sb, " (%s)", d.Key)
	}
	return sb.String()
}

// List is an ordered collection of diagnostics.
type List []Diagnostic

// Add appends a diagnostic.
func (l *List) Add(d Diagnostic) {
	*l = append(*l, d)
}

// Filter returns the diagnostics with exactly the given severity.
func (l List) Filter(s Severity) List {
	var out List
	for _, d := range l {
		if d.Severity == s {
			out = append(out, d)
		}
	}
	return out
}

// HasErrors reports whether any diagnostic is an error.
func (l List) HasErrors() bool {
	return len(l.Filter(Error)) > 0
}

// Sink receives diagnostics as they are produced.
type Sink interface {
	Report(d Diagnostic)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Diagnostic)

// Report calls f(d).
func (f SinkFunc) Report(d Diagnostic) { f(d) }

// Discard drops every diagnostic.
var Discard Sink = SinkFunc(func(Diagnostic) {})

// Collector keeps every diagnostic it receives.
type Collector struct {
	List List
}

// Report records d.
func (c *Collector) Report(d Diagnostic) {
	c.List.Add(d)
}

// LogSink writes diagnostics to a zerolog logger.
type LogSink struct {
	Logger zerolog.Logger
}

// NewLogSink returns a sink writing to logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{Logger: logger}
}

// Report logs d at the level matching its severity.
func (s *LogSink) Report(d Diagnostic) {
	var ev *zerolog.Event
	switch d.Severity {
	case Error:
		ev = s.Logger.Error()
	case Warning:
		ev = s.Logger.Warn()
	default:
		ev = s.Logger.Debug()
	}
	if d.File != "" {
		ev = ev.Str("file", d.File)
	}
	if d.Line > 0 {
		ev = ev.Int("line", d.Line)
	}
	if d.Key != "" {
		ev = ev.Str("key", d.Key)
	}
	ev.Msg(d.Message)
}

// Tee fans diagnostics out to several sinks. Nil sinks are skipped.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(d Diagnostic) {
		for _, s := range sinks {
			if s != nil {
				s.Report(d)
			}
		}
	})
}

// Emit sends every diagnostic of l to s.
func Emit(s Sink, l List) {
	if s == nil {
		return
	}
	for _, d := range l {
		s.Report(d)
	}
}
