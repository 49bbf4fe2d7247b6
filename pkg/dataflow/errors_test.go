package dataflow

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		kind Kind
		name string
	}{
		{KindCoverage, "coverage"},
		{KindShape, "shape"},
		{KindRange, "range"},
		{KindType, "type"},
		{KindIO, "io"},
		{KindStreamAborted, "stream-aborted"},
		{KindInvalidArgument, "invalid-argument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.kind.String() != tt.name {
				t.Errorf("String() = %q, want %q", tt.kind.String(), tt.name)
			}
			err := NewErr(tt.kind, "message")
			if KindOf(err) != tt.kind {
				t.Errorf("KindOf = %v, want %v", KindOf(err), tt.kind)
			}
			if !IsKind(err, tt.kind) {
				t.Error("IsKind returned false for own kind")
			}
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("underlying")
	err := WrapErr(KindIO, cause, "reading file")

	if !errors.Is(err, cause) {
		t.Error("errors.Is lost the cause")
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("errors.As failed")
	}
	if e.Kind() != KindIO {
		t.Errorf("Kind = %v, want io", e.Kind())
	}
	if e.Message() != "reading file" {
		t.Errorf("Message = %q", e.Message())
	}

	// A wrapped chain still exposes the kind.
	outer := fmt.Errorf("stage failed: %w", err)
	if KindOf(outer) != KindIO {
		t.Errorf("KindOf through fmt wrap = %v, want io", KindOf(outer))
	}
}

func TestErrorTags(t *testing.T) {
	err := NewErr(KindShape, "mismatch").
		Tag(slog.String("key", "tokens")).
		Tag(slog.Int("dim", 1))
	if len(err.Attrs()) != 2 {
		t.Fatalf("attrs = %d, want 2", len(err.Attrs()))
	}
	attrs := err.LogAttrs()
	if attrs[0].Key != "kind" {
		t.Errorf("first log attr = %q, want kind", attrs[0].Key)
	}
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := Errorf(KindRange, "index %d out of range", 7)
	if !errors.Is(err, NewErr(KindRange, "")) {
		t.Error("errors.Is with empty-message probe failed")
	}
	if errors.Is(err, NewErr(KindShape, "")) {
		t.Error("errors.Is matched a different kind")
	}
}
