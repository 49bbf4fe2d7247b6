package dataflow

import (
	"context"
	"testing"
)

func collectIndices(t *testing.T, st *Stream) []int64 {
	t.Helper()
	got, err := st.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	out := make([]int64, len(got))
	for i, s := range got {
		out[i] = indexOf(t, s)
	}
	return out
}

func assertPermutation(t *testing.T, got []int64, n int) {
	t.Helper()
	if len(got) != n {
		t.Fatalf("emitted %d samples, want %d", len(got), n)
	}
	seen := make(map[int64]int, n)
	for _, v := range got {
		seen[v]++
	}
	for i := 0; i < n; i++ {
		if seen[int64(i)] != 1 {
			t.Fatalf("index %d emitted %d times", i, seen[int64(i)])
		}
	}
}

func TestShuffleEmitsEachSampleOnce(t *testing.T) {
	tests := []struct {
		name       string
		n          int
		bufferSize int
	}{
		{name: "buffer_smaller_than_stream", n: 100, bufferSize: 16},
		{name: "buffer_larger_than_stream", n: 20, bufferSize: 64},
		{name: "buffer_one", n: 10, bufferSize: 1},
		{name: "exact", n: 32, bufferSize: 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := BufferFromSlice(indexSamples(tt.n)).ToStream().Shuffle(tt.bufferSize, 3)
			assertPermutation(t, collectIndices(t, st), tt.n)
		})
	}
}

func TestShuffleFullBufferIsPermutation(t *testing.T) {
	n := 50
	st := BufferFromSlice(indexSamples(n)).ToStream().Shuffle(n, 5)
	got := collectIndices(t, st)
	assertPermutation(t, got, n)

	inOrder := true
	for i, v := range got {
		if v != int64(i) {
			inOrder = false
			break
		}
	}
	if inOrder {
		t.Error("full-buffer shuffle left 50 samples in input order")
	}
}

func TestShuffleBufferOnePreservesOrder(t *testing.T) {
	n := 10
	st := BufferFromSlice(indexSamples(n)).ToStream().Shuffle(1)
	got := collectIndices(t, st)
	for i, v := range got {
		if v != int64(i) {
			t.Fatalf("got[%d] = %d; a size-1 reservoir cannot reorder", i, v)
		}
	}
}

func TestShuffleReset(t *testing.T) {
	st := BufferFromSlice(indexSamples(12)).ToStream().Shuffle(4, 9)
	assertPermutation(t, collectIndices(t, st), 12)
	if err := st.Reset(); err != nil {
		t.Fatal(err)
	}
	assertPermutation(t, collectIndices(t, st), 12)
}
