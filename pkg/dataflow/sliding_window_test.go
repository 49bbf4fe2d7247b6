package dataflow

import (
	"context"
	"testing"
)

func TestSlidingWindowCounts(t *testing.T) {
	tests := []struct {
		name      string
		length    int
		size      int
		stride    int
		wantLens  []int
		wantCount int
	}{
		{name: "long_document", length: 4000, size: 1025, stride: 1025,
			wantCount: 4, wantLens: []int{1025, 1025, 1025, 925}},
		{name: "exact_fit", length: 8, size: 4, stride: 4,
			wantCount: 2, wantLens: []int{4, 4}},
		{name: "overlapping", length: 5, size: 3, stride: 1,
			wantCount: 3, wantLens: []int{3, 3, 3}},
		{name: "single", length: 4, size: 4, stride: 1,
			wantCount: 1, wantLens: []int{4}},
		{name: "too_short", length: 3, size: 4, stride: 1,
			wantCount: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := []Sample{{"tokens": arange(tt.length)}}
			st := BufferFromSlice(src).ToStream().SlidingWindow("tokens", tt.size, tt.stride)
			got, err := st.Collect(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.wantCount {
				t.Fatalf("yielded %d windows, want %d", len(got), tt.wantCount)
			}
			for i, s := range got {
				if l := s["tokens"].Dim(0); l != tt.wantLens[i] {
					t.Errorf("window %d length = %d, want %d", i, l, tt.wantLens[i])
				}
			}
		})
	}
}

func TestSlidingWindowContents(t *testing.T) {
	src := []Sample{{"tokens": arange(10), "id": Scalar(int64(9))}}
	st := BufferFromSlice(src).ToStream().SlidingWindow("tokens", 4, 3)
	got, err := st.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// Offsets 0, 3 and 6, each a full window.
	wantFirst := []int64{0, 3, 6}
	if len(got) != len(wantFirst) {
		t.Fatalf("yielded %d windows, want %d", len(got), len(wantFirst))
	}
	for i, s := range got {
		vals := int64sOf(t, s["tokens"])
		if vals[0] != wantFirst[i] {
			t.Errorf("window %d starts at %d, want %d", i, vals[0], wantFirst[i])
		}
		if v := indexOf(t, Sample{"i": s["id"]}); v != 9 {
			t.Errorf("window %d lost carried key", i)
		}
	}
}
