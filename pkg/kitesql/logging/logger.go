// Package logging provides the leveled logger used across kitesql. It keeps kite's Logger
// contract and is backed by zap, with optional rotating file output.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const traceIDKey = "__trace_id__"

// Logger is the logging contract shared by every kitesql component.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Log(args ...any)
	Logf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Notice(args ...any)
	Noticef(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	ChangeLevel(level Level)
}

// PrettyPrint is implemented by structured log entries that know how to render themselves
// for a terminal.
type PrettyPrint interface {
	PrettyPrint(writer io.Writer)
}

// Options configures a Logger.
type Options struct {
	Level Level
	// Development switches stdout to zap's human readable console encoder.
	Development bool
	// File, when set, additionally writes JSON lines to a rotating file.
	File string
	// Output overrides stdout. Used by tests.
	Output io.Writer
}

type logger struct {
	base *zap.Logger
	// level gates zap's cores; threshold additionally separates NOTICE from INFO, which zap lacks.
	level     zap.AtomicLevel
	threshold atomic.Int32
	// pretty receives PrettyPrint entries in development mode.
	pretty io.Writer
}

// NewLogger returns a JSON logger writing to stdout at the given level.
func NewLogger(level Level) Logger {
	return New(Options{Level: level})
}

// New builds a Logger from opts.
func New(opts Options) Logger {
	if opts.Level == 0 {
		opts.Level = INFO
	}

	zapLevel := zap.NewAtomicLevelAt(opts.Level.zapLevel())

	var out io.Writer = os.Stdout
	if opts.Output != nil {
		out = opts.Output
	}

	var consoleEncoder zapcore.Encoder

	if opts.Development {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(cfg)
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	cores := []zapcore.Core{zapcore.NewCore(consoleEncoder, zapcore.AddSync(out), zapLevel)}

	if opts.File != "" {
		fileSyncer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     7, // days
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), fileSyncer, zapLevel))
	}

	base := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))

	l := &logger{base: base, level: zapLevel}
	l.threshold.Store(int32(opts.Level))

	if opts.Development {
		l.pretty = out
	}

	return l
}

// logfWithSkip writes one entry; skip is the number of frames between this method and user code.
func (l *logger) logfWithSkip(skip int, level Level, format string, args ...any) {
	if level < Level(l.threshold.Load()) {
		return
	}

	zl := level.zapLevel()

	args, fields := extractFields(args)

	if l.pretty != nil && format == "" && len(args) == 1 {
		if pp, ok := args[0].(PrettyPrint); ok {
			pp.PrettyPrint(l.pretty)
			return
		}
	}

	var msg string

	switch {
	case format != "":
		msg = fmt.Sprintf(format, args...)
	case len(args) == 1:
		switch v := args[0].(type) {
		case string:
			msg = v
		case error:
			msg = v.Error()
		case fmt.Stringer:
			msg = v.String()
		default:
			fields = append(fields, zap.Any("data", v))
		}
	default:
		msg = fmt.Sprint(args...)
	}

	if level == NOTICE {
		fields = append(fields, zap.String("severity", levelNOTICE))
	}

	if ce := l.base.WithOptions(zap.AddCallerSkip(skip)).Check(zl, msg); ce != nil {
		ce.Write(fields...)
	}
}

// extractFields pulls trace information appended by ContextLogger out of args.
func extractFields(args []any) ([]any, []zap.Field) {
	var fields []zap.Field

	out := args[:0:0]

	for _, a := range args {
		if m, ok := a.(map[string]any); ok {
			if id, ok := m[traceIDKey]; ok {
				fields = append(fields, zap.Any("trace_id", id))
				continue
			}
		}

		out = append(out, a)
	}

	return out, fields
}

func (l *logger) Debug(args ...any)             { l.logfWithSkip(2, DEBUG, "", args...) }
func (l *logger) Debugf(f string, args ...any)  { l.logfWithSkip(2, DEBUG, f, args...) }
func (l *logger) Log(args ...any)               { l.logfWithSkip(2, INFO, "", args...) }
func (l *logger) Logf(f string, args ...any)    { l.logfWithSkip(2, INFO, f, args...) }
func (l *logger) Info(args ...any)              { l.logfWithSkip(2, INFO, "", args...) }
func (l *logger) Infof(f string, args ...any)   { l.logfWithSkip(2, INFO, f, args...) }
func (l *logger) Notice(args ...any)            { l.logfWithSkip(2, NOTICE, "", args...) }
func (l *logger) Noticef(f string, args ...any) { l.logfWithSkip(2, NOTICE, f, args...) }
func (l *logger) Warn(args ...any)              { l.logfWithSkip(2, WARN, "", args...) }
func (l *logger) Warnf(f string, args ...any)   { l.logfWithSkip(2, WARN, f, args...) }
func (l *logger) Error(args ...any)             { l.logfWithSkip(2, ERROR, "", args...) }
func (l *logger) Errorf(f string, args ...any)  { l.logfWithSkip(2, ERROR, f, args...) }
func (l *logger) Fatal(args ...any)             { l.logfWithSkip(2, FATAL, "", args...) }
func (l *logger) Fatalf(f string, args ...any)  { l.logfWithSkip(2, FATAL, f, args...) }

// ChangeLevel adjusts the minimum level at runtime.
func (l *logger) ChangeLevel(level Level) {
	l.threshold.Store(int32(level))
	l.level.SetLevel(level.zapLevel())
}
