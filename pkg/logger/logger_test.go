package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// captureAdapter records every call for assertions.
type captureAdapter struct {
	levels []LogLevel
	msgs   []string
	attrs  [][]Attribute
	min    LogLevel
}

func (c *captureAdapter) Log(_ context.Context, level LogLevel, msg string, attrs ...Attribute) {
	c.levels = append(c.levels, level)
	c.msgs = append(c.msgs, msg)
	c.attrs = append(c.attrs, attrs)
}

func (c *captureAdapter) IsLevelEnabled(_ context.Context, level LogLevel) bool {
	return level >= c.min
}

func (c *captureAdapter) Printf(string, ...any) {}

func TestLoggerLevelGate(t *testing.T) {
	backend := &captureAdapter{min: WarnLevel}
	log := New(backend)
	ctx := context.Background()

	log.Debug(ctx, "quiet")
	log.Info(ctx, "quiet")
	log.Warn(ctx, "loud")
	log.Error(ctx, "loud", Attr("code", 7))

	if len(backend.msgs) != 2 {
		t.Fatalf("logged %d messages, want 2", len(backend.msgs))
	}
	if backend.levels[0] != WarnLevel || backend.levels[1] != ErrorLevel {
		t.Errorf("levels = %v", backend.levels)
	}
	if len(backend.attrs[1]) != 1 || backend.attrs[1][0].Key != "code" {
		t.Errorf("attrs = %v", backend.attrs[1])
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	backend := NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	New(backend).Info(context.Background(), "hello", Attr("k", "v"))
	out := buf.String()
	if !strings.Contains(out, "hello") || !strings.Contains(out, "k=v") {
		t.Errorf("slog output %q missing message or attr", out)
	}
}

func TestZerologAdapter(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf).Level(zerolog.InfoLevel)
	backend := NewZerologAdapter(zl)

	if backend.IsLevelEnabled(context.Background(), DebugLevel) {
		t.Error("debug enabled on an info-level logger")
	}
	New(backend).Info(context.Background(), "hello", Attr("k", "v"))
	out := buf.String()
	if !strings.Contains(out, `"hello"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("zerolog output %q missing message or attr", out)
	}
}

func TestAsSlogBridge(t *testing.T) {
	backend := &captureAdapter{min: DebugLevel}
	sl := AsSlog(backend)
	sl.With("stage", "decode").WithGroup("queue").Info("pushed", "depth", 3)

	if len(backend.msgs) != 1 || backend.msgs[0] != "pushed" {
		t.Fatalf("bridge logged %v", backend.msgs)
	}
	attrs := backend.attrs[0]
	if len(attrs) != 2 {
		t.Fatalf("attrs = %v, want 2", attrs)
	}
	if attrs[0].Key != "stage" {
		t.Errorf("first attr = %q, want stage", attrs[0].Key)
	}
	if attrs[1].Key != "queue.depth" {
		t.Errorf("grouped attr = %q, want queue.depth", attrs[1].Key)
	}
}
