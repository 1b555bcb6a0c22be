package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel int32

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelNames = [...]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
	FatalLevel: "FATAL",
}

func (l LogLevel) String() string {
	if l < DebugLevel || l > FatalLevel {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a configuration value to a LogLevel, defaulting to InfoLevel
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// UnmarshalText lets a LogLevel be decoded directly from configuration
func (l *LogLevel) UnmarshalText(text []byte) error {
	*l = ParseLevel(string(text))
	return nil
}

// Fields represents structured log fields
type Fields map[string]interface{}

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID returns a context carrying the request id picked up by every log entry
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request id stored in ctx, if any
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// LogEntry is one JSON line written by StructuredLogger
type LogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Level      string    `json:"level"`
	Service    string    `json:"service"`
	Version    string    `json:"version"`
	Hostname   string    `json:"hostname"`
	Message    string    `json:"message"`
	Fields     Fields    `json:"fields,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	File       string    `json:"file,omitempty"`
	Line       int       `json:"line,omitempty"`
	Function   string    `json:"function,omitempty"`
	Error      string    `json:"error,omitempty"`
	StackTrace string    `json:"stack_trace,omitempty"`
}

// sink is shared by a logger and every child derived from it with With
type sink struct {
	mu       sync.Mutex
	out      io.Writer
	level    atomic.Int32
	service  string
	version  string
	hostname string
}

func (s *sink) write(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Write(line)
}

// StructuredLogger writes JSON log lines tagged with service metadata.
// Children created by With add base fields and share output and level.
type StructuredLogger struct {
	sink *sink
	base Fields
}

// NewStructuredLogger creates a logger writing to stdout
func NewStructuredLogger(service, version string, level LogLevel) *StructuredLogger {
	hostname, _ := os.Hostname()

	s := &sink{
		out:      os.Stdout,
		service:  service,
		version:  version,
		hostname: hostname,
	}
	s.level.Store(int32(level))

	return &StructuredLogger{sink: s}
}

// SetOutput redirects the logger and all of its children
func (l *StructuredLogger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.out = w
}

// SetLevel sets the minimum level for the logger and all of its children
func (l *StructuredLogger) SetLevel(level LogLevel) {
	l.sink.level.Store(int32(level))
}

// With returns a child logger that adds fields to every entry.
// Per-call fields win over base fields with the same key.
func (l *StructuredLogger) With(fields Fields) *StructuredLogger {
	return &StructuredLogger{sink: l.sink, base: l.merge(fields)}
}

func (l *StructuredLogger) Debug(ctx context.Context, message string, fields Fields) {
	l.log(ctx, DebugLevel, message, fields, nil)
}

func (l *StructuredLogger) Info(ctx context.Context, message string, fields Fields) {
	l.log(ctx, InfoLevel, message, fields, nil)
}

func (l *StructuredLogger) Warn(ctx context.Context, message string, fields Fields) {
	l.log(ctx, WarnLevel, message, fields, nil)
}

// Error logs err along with the caller location
func (l *StructuredLogger) Error(ctx context.Context, message string, fields Fields, err error) {
	l.log(ctx, ErrorLevel, message, fields, err)
}

// Fatal logs with a stack trace and exits the program
func (l *StructuredLogger) Fatal(ctx context.Context, message string, fields Fields, err error) {
	l.log(ctx, FatalLevel, message, fields, err)
	os.Exit(1)
}

func (l *StructuredLogger) merge(fields Fields) Fields {
	if len(l.base) == 0 {
		return fields
	}
	merged := make(Fields, len(l.base)+len(fields))
	maps.Copy(merged, l.base)
	maps.Copy(merged, fields)
	return merged
}

func (l *StructuredLogger) log(ctx context.Context, level LogLevel, message string, fields Fields, err error) {
	if level < LogLevel(l.sink.level.Load()) {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Service:   l.sink.service,
		Version:   l.sink.version,
		Hostname:  l.sink.hostname,
		Message:   message,
		Fields:    l.merge(fields),
		RequestID: RequestID(ctx),
	}

	if level >= ErrorLevel {
		// skip callerFrame, log and the level method
		entry.File, entry.Line, entry.Function = callerFrame(3)
		if err != nil {
			entry.Error = err.Error()
		}
		if level == FatalLevel {
			buf := make([]byte, 4096)
			entry.StackTrace = string(buf[:runtime.Stack(buf, false)])
		}
	}

	data, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		fmt.Fprintf(os.Stderr, "%s [%s] %s: %v (unencodable fields: %v)\n",
			entry.Timestamp.Format(time.RFC3339), entry.Level, message, entry.Fields, marshalErr)
		return
	}

	l.sink.write(append(data, '\n'))
}

func callerFrame(skip int) (file string, line int, function string) {
	pcs := make([]uintptr, 1)
	if runtime.Callers(skip+1, pcs) == 0 {
		return "", 0, ""
	}
	frame, _ := runtime.CallersFrames(pcs).Next()
	return frame.File, frame.Line, frame.Function
}
