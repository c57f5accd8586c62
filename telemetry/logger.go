package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"go.opentelemetry.io/otel/trace"
)

const (
	LevelTrace = slog.LevelDebug - 4
	LevelFatal = slog.LevelError + 4
)

// ContextHandler adds trace_id and span_id from the record context.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	spanContext := trace.SpanContextFromContext(ctx)
	if spanContext.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanContext.TraceID().String()))
	}
	if spanContext.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanContext.SpanID().String()))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// Logger adapts slog to the glog contracts used across the module. It
// implements glog.Logger, glog.FieldsLogger and glog.LoggerProvider.
type Logger struct {
	slog *slog.Logger
	ctx  context.Context
	exit func(int)
}

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.FieldsLogger   = (*Logger)(nil)
	_ glog.LoggerProvider = (*Logger)(nil)
)

// NewLogger writes JSON records to w at the given level name. A nil writer
// means stderr.
func NewLogger(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return &Logger{
		slog: slog.New(NewContextHandler(handler)),
		ctx:  context.Background(),
		exit: os.Exit,
	}
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return LevelTrace
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

// Slog exposes the underlying logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

func (l *Logger) Trace(msg string, args ...any) { l.log(LevelTrace, msg, args...) }

func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

func (l *Logger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

func (l *Logger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l *Logger) Fatal(msg string, args ...any) {
	l.log(LevelFatal, msg, args...)
	l.exit(1)
}

func (l *Logger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		return l
	}
	next := *l
	next.ctx = ctx
	return &next
}

// WithFields binds fields as attributes. The observability helpers also pass
// the same fields as args, so bound keys are skipped when logging.
func (l *Logger) WithFields(fields map[string]any) glog.Logger {
	if len(fields) == 0 {
		return l
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	attrs := make([]any, 0, len(keys))
	for _, key := range keys {
		attrs = append(attrs, slog.Any(key, fields[key]))
	}
	next := *l
	next.slog = l.slog.With(attrs...)
	return &fieldsBound{Logger: &next, bound: fields}
}

func (l *Logger) GetLogger(name string) glog.Logger {
	name = strings.TrimSpace(name)
	if name == "" {
		return l
	}
	next := *l
	next.slog = l.slog.With(slog.String("logger", name))
	return &next
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	l.slog.Log(l.ctx, level, msg, args...)
}

// fieldsBound drops args whose keys were already bound through WithFields.
type fieldsBound struct {
	*Logger
	bound map[string]any
}

func (f *fieldsBound) Trace(msg string, args ...any) { f.Logger.Trace(msg, f.filter(args)...) }

func (f *fieldsBound) Debug(msg string, args ...any) { f.Logger.Debug(msg, f.filter(args)...) }

func (f *fieldsBound) Info(msg string, args ...any) { f.Logger.Info(msg, f.filter(args)...) }

func (f *fieldsBound) Warn(msg string, args ...any) { f.Logger.Warn(msg, f.filter(args)...) }

func (f *fieldsBound) Error(msg string, args ...any) { f.Logger.Error(msg, f.filter(args)...) }

func (f *fieldsBound) Fatal(msg string, args ...any) { f.Logger.Fatal(msg, f.filter(args)...) }

func (f *fieldsBound) WithContext(ctx context.Context) glog.Logger {
	return &fieldsBound{Logger: f.Logger.WithContext(ctx).(*Logger), bound: f.bound}
}

func (f *fieldsBound) filter(args []any) []any {
	if len(args) == 0 {
		return args
	}
	out := make([]any, 0, len(args))
	for i := 0; i < len(args); i++ {
		key, ok := args[i].(string)
		if ok && i+1 < len(args) {
			if _, dup := f.bound[key]; dup {
				i++
				continue
			}
			out = append(out, key, args[i+1])
			i++
			continue
		}
		out = append(out, args[i])
	}
	return out
}
