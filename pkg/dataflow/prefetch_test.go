package dataflow

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"
)

func TestOrderedPrefetchPreservesOrder(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		size    int
		threads int
	}{
		{name: "many_samples", n: 160, size: 16, threads: 8},
		{name: "buffer_smaller_than_prefetch", n: 6, size: 12, threads: 4},
		{name: "single_thread", n: 40, size: 4, threads: 1},
		{name: "more_threads_than_samples", n: 5, size: 8, threads: 32},
		{name: "size_one", n: 30, size: 1, threads: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := BufferFromSlice(indexSamples(tt.n)).OrderedPrefetch(tt.size, tt.threads)
			defer st.Close()
			got := collectIndices(t, st)
			if len(got) != tt.n {
				t.Fatalf("emitted %d samples, want %d", len(got), tt.n)
			}
			for i, v := range got {
				if v != int64(i) {
					t.Fatalf("got[%d] = %d, want %d", i, v, i)
				}
			}
		})
	}
}

func TestPrefetchMultisetEquality(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		size    int
		threads int
	}{
		{name: "basic", n: 200, size: 16, threads: 8},
		{name: "single_thread", n: 50, size: 4, threads: 1},
		{name: "tiny_queue", n: 64, size: 1, threads: 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := BufferFromSlice(indexSamples(tt.n)).Prefetch(tt.size, tt.threads)
			defer st.Close()
			assertPermutation(t, collectIndices(t, st), tt.n)
		})
	}
}

func TestPrefetchRunsTransformsOnWorkers(t *testing.T) {
	var applied atomic.Int64
	double := KeyTransform("i", func(_ context.Context, a *Array) (*Array, error) {
		applied.Add(1)
		v, err := Item[int64](a)
		if err != nil {
			return nil, err
		}
		return Scalar(v * 2), nil
	})
	n := 64
	st := BufferFromSlice(indexSamples(n)).ToStream().Apply(double).OrderedPrefetch(8, 4)
	defer st.Close()
	got := collectIndices(t, st)
	if int(applied.Load()) != n {
		t.Errorf("transform applied %d times, want %d", applied.Load(), n)
	}
	for i, v := range got {
		if v != int64(2*i) {
			t.Fatalf("got[%d] = %d, want %d", i, v, 2*i)
		}
	}
}

func TestPrefetchDropsFailingSamples(t *testing.T) {
	dropOdd := KeyTransform("i", func(_ context.Context, a *Array) (*Array, error) {
		v, err := Item[int64](a)
		if err != nil {
			return nil, err
		}
		if v%2 == 1 {
			return nil, NewErr(KindIO, "odd sample")
		}
		return a, nil
	})
	st := BufferFromSlice(indexSamples(20)).ToStream().Apply(dropOdd).OrderedPrefetch(4, 3)
	defer st.Close()
	got := collectIndices(t, st)
	if len(got) != 10 {
		t.Fatalf("emitted %d samples, want 10", len(got))
	}
	for i, v := range got {
		if v != int64(2*i) {
			t.Errorf("got[%d] = %d, want %d", i, v, 2*i)
		}
	}
}

func TestPrefetchAbortsOnUpstreamFailure(t *testing.T) {
	calls := 0
	src := StreamFromFunc(func() (Sample, error) {
		calls++
		if calls > 3 {
			return nil, NewErr(KindIO, "disk gone")
		}
		return Sample{"i": Scalar(int64(calls))}, nil
	})
	st := src.Prefetch(2, 2)
	defer st.Close()

	sawAbort := false
	for i := 0; i < 10; i++ {
		_, err := st.Next(context.Background())
		if err == nil {
			continue
		}
		if err == io.EOF {
			break
		}
		if !IsKind(err, KindStreamAborted) {
			t.Fatalf("err kind = %v, want stream-aborted", KindOf(err))
		}
		sawAbort = true
		break
	}
	if !sawAbort {
		t.Fatal("stream never surfaced the aborted error")
	}
	// The stream stays failed.
	if _, err := st.Next(context.Background()); !IsKind(err, KindStreamAborted) {
		t.Errorf("second Next kind = %v, want stream-aborted", KindOf(err))
	}
}

func TestPrefetchCloseStopsWorkers(t *testing.T) {
	st := BufferFromSlice(indexSamples(10_000)).Prefetch(4, 4)
	if _, err := st.Next(context.Background()); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		st.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return; workers still running")
	}
}

func TestPrefetchNextHonorsContext(t *testing.T) {
	// An upstream that never yields.
	block := make(chan struct{})
	src := StreamFromFunc(func() (Sample, error) {
		<-block
		return nil, io.EOF
	})
	st := src.Prefetch(1, 1)
	defer func() {
		close(block)
		st.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := st.Next(ctx); err != context.DeadlineExceeded {
		t.Errorf("Next err = %v, want deadline exceeded", err)
	}
}

func TestPrefetchInvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		st   *Stream
	}{
		{name: "zero_size", st: BufferFromSlice(indexSamples(1)).Prefetch(0, 1)},
		{name: "zero_threads", st: BufferFromSlice(indexSamples(1)).Prefetch(1, 0)},
		{name: "ordered_zero_size", st: BufferFromSlice(indexSamples(1)).OrderedPrefetch(0, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.st.Err(); !IsKind(err, KindInvalidArgument) {
				t.Errorf("Err() kind = %v, want invalid-argument", KindOf(err))
			}
		})
	}
}
