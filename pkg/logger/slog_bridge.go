package logger

import (
	"context"
	"log/slog"
)

// AsSlog exposes an Adapter as a *slog.Logger, so any backend (zerolog
// included) can be installed into pipeline contexts:
//
//	zl := zerolog.New(os.Stderr).With().Timestamp().Logger()
//	ctx = dataflow.WithLogger(ctx, logger.AsSlog(logger.NewZerologAdapter(zl)))
func AsSlog(backend Adapter) *slog.Logger {
	return slog.New(&adapterHandler{backend: backend})
}

// adapterHandler implements slog.Handler on top of an Adapter.
type adapterHandler struct {
	backend Adapter
	attrs   []Attribute
	group   string
}

func (h *adapterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.backend.IsLevelEnabled(ctx, slogToLogLevel(level))
}

func (h *adapterHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := make([]Attribute, 0, len(h.attrs)+record.NumAttrs())
	attrs = append(attrs, h.attrs...)
	record.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.qualify(a))
		return true
	})
	h.backend.Log(ctx, slogToLogLevel(record.Level), record.Message, attrs...)
	return nil
}

func (h *adapterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := &adapterHandler{backend: h.backend, group: h.group}
	out.attrs = append([]Attribute(nil), h.attrs...)
	for _, a := range attrs {
		out.attrs = append(out.attrs, h.qualify(a))
	}
	return out
}

func (h *adapterHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &adapterHandler{backend: h.backend, attrs: h.attrs, group: group}
}

func (h *adapterHandler) qualify(a slog.Attr) Attribute {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	return Attribute{Key: key, Value: a.Value.Resolve().Any()}
}

func slogToLogLevel(level slog.Level) LogLevel {
	switch {
	case level < slog.LevelInfo:
		return DebugLevel
	case level < slog.LevelWarn:
		return InfoLevel
	case level < slog.LevelError:
		return WarnLevel
	default:
		return ErrorLevel
	}
}
