package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// loggerWithSkip is implemented by loggers that accept an explicit caller skip.
type loggerWithSkip interface {
	logfWithSkip(skip int, level Level, format string, args ...any)
}

// ContextLogger wraps a base Logger and tags every entry with the OpenTelemetry trace ID
// found in the context it was created from.
type ContextLogger struct {
	base    Logger
	traceID string
}

// NewContextLogger creates a ContextLogger for ctx. Entries carry no trace ID when ctx has no
// valid span.
func NewContextLogger(ctx context.Context, base Logger) *ContextLogger {
	var traceID string

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		traceID = sc.TraceID().String()
	}

	return &ContextLogger{base: base, traceID: traceID}
}

// TraceID returns the trace ID attached to entries, if any.
func (l *ContextLogger) TraceID() string { return l.traceID }

func (l *ContextLogger) withTraceInfo(args ...any) []any {
	if l.traceID != "" {
		return append(args, map[string]any{traceIDKey: l.traceID})
	}

	return args
}

func (l *ContextLogger) logWithSkip(level Level, format string, args ...any) {
	args = l.withTraceInfo(args...)

	if ls, ok := l.base.(loggerWithSkip); ok {
		// runtime.Caller(0) -> logfWithSkip -> logWithSkip -> Debug/Info -> user code
		ls.logfWithSkip(3, level, format, args...)
		return
	}

	plain, formatted := l.methods(level)
	if format == "" {
		plain(args...)
		return
	}

	formatted(format, args...)
}

func (l *ContextLogger) methods(level Level) (func(...any), func(string, ...any)) {
	switch level {
	case DEBUG:
		return l.base.Debug, l.base.Debugf
	case NOTICE:
		return l.base.Notice, l.base.Noticef
	case WARN:
		return l.base.Warn, l.base.Warnf
	case ERROR:
		return l.base.Error, l.base.Errorf
	case FATAL:
		return l.base.Fatal, l.base.Fatalf
	default:
		return l.base.Info, l.base.Infof
	}
}

func (l *ContextLogger) Debug(args ...any)             { l.logWithSkip(DEBUG, "", args...) }
func (l *ContextLogger) Debugf(f string, args ...any)  { l.logWithSkip(DEBUG, f, args...) }
func (l *ContextLogger) Log(args ...any)               { l.logWithSkip(INFO, "", args...) }
func (l *ContextLogger) Logf(f string, args ...any)    { l.logWithSkip(INFO, f, args...) }
func (l *ContextLogger) Info(args ...any)              { l.logWithSkip(INFO, "", args...) }
func (l *ContextLogger) Infof(f string, args ...any)   { l.logWithSkip(INFO, f, args...) }
func (l *ContextLogger) Notice(args ...any)            { l.logWithSkip(NOTICE, "", args...) }
func (l *ContextLogger) Noticef(f string, args ...any) { l.logWithSkip(NOTICE, f, args...) }
func (l *ContextLogger) Warn(args ...any)              { l.logWithSkip(WARN, "", args...) }
func (l *ContextLogger) Warnf(f string, args ...any)   { l.logWithSkip(WARN, f, args...) }
func (l *ContextLogger) Error(args ...any)             { l.logWithSkip(ERROR, "", args...) }
func (l *ContextLogger) Errorf(f string, args ...any)  { l.logWithSkip(ERROR, f, args...) }
func (l *ContextLogger) Fatal(args ...any)             { l.logWithSkip(FATAL, "", args...) }
func (l *ContextLogger) Fatalf(f string, args ...any)  { l.logWithSkip(FATAL, f, args...) }
func (l *ContextLogger) ChangeLevel(level Level)       { l.base.ChangeLevel(level) }
