package dataflow

import (
	"testing"
)

// indexSamples builds {i: k} samples for k in [0, n).
func indexSamples(n int) []Sample {
	out := make([]Sample, n)
	for k := range out {
		out[k] = Sample{"i": Scalar(int64(k))}
	}
	return out
}

func indexOf(t *testing.T, s Sample) int64 {
	t.Helper()
	v, err := Item[int64](s["i"])
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestBufferIndexing(t *testing.T) {
	n := 5
	b := BufferFromSlice(indexSamples(n))
	if b.Len() != n {
		t.Fatalf("Len() = %d, want %d", b.Len(), n)
	}

	for i := 0; i < n; i++ {
		s, err := b.Get(i)
		if err != nil {
			t.Fatal(err)
		}
		if got := indexOf(t, s); got != int64(i) {
			t.Errorf("b[%d].i = %d, want %d", i, got, i)
		}
		neg, err := b.Get(-(i + 1))
		if err != nil {
			t.Fatal(err)
		}
		if got := indexOf(t, neg); got != int64(n-i-1) {
			t.Errorf("b[%d].i = %d, want %d", -(i + 1), got, n-i-1)
		}
	}

	for _, idx := range []int{n, -(n + 1), 100} {
		if _, err := b.Get(idx); !IsKind(err, KindRange) {
			t.Errorf("b[%d]: kind = %v, want range", idx, KindOf(err))
		}
	}
}

func TestBufferShuffleIsPermutation(t *testing.T) {
	n := 100
	b := BufferFromSlice(indexSamples(n)).Shuffle(7)
	if b.Len() != n {
		t.Fatalf("Len() = %d, want %d", b.Len(), n)
	}
	seen := make(map[int64]bool, n)
	for i := 0; i < n; i++ {
		s, err := b.Get(i)
		if err != nil {
			t.Fatal(err)
		}
		seen[indexOf(t, s)] = true
	}
	if len(seen) != n {
		t.Errorf("shuffle emitted %d distinct samples, want %d", len(seen), n)
	}
}

func TestBufferPartition(t *testing.T) {
	n := 10
	base := BufferFromSlice(indexSamples(n))

	total := 0
	seen := make(map[int64]bool, n)
	for shard := 0; shard < 3; shard++ {
		p := base.Partition(3, shard)
		total += p.Len()
		for i := 0; i < p.Len(); i++ {
			s, err := p.Get(i)
			if err != nil {
				t.Fatal(err)
			}
			v := indexOf(t, s)
			if v%3 != int64(shard) {
				t.Errorf("shard %d got index %d", shard, v)
			}
			seen[v] = true
		}
	}
	if total != n || len(seen) != n {
		t.Errorf("partitions cover %d/%d samples (len sum %d)", len(seen), n, total)
	}

	if err := base.Partition(3, 3).Err(); !IsKind(err, KindInvalidArgument) {
		t.Errorf("out-of-range shard: kind = %v, want invalid-argument", KindOf(err))
	}
}

func TestBufferBatch(t *testing.T) {
	b := BufferFromSlice(indexSamples(7)).Batch(3)
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	first, err := b.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	vals := int64sOf(t, first["i"])
	if len(vals) != 3 || vals[0] != 0 || vals[2] != 2 {
		t.Errorf("batch 0 = %v, want [0 1 2]", vals)
	}
	last, err := b.Get(2)
	if err != nil {
		t.Fatal(err)
	}
	if got := last["i"].Dim(0); got != 1 {
		t.Errorf("trailing batch size = %d, want 1", got)
	}
}

func TestBufferFilterKeyDropIsInvalid(t *testing.T) {
	b := BufferFromSlice(indexSamples(3)).FilterKey("i", false)
	if err := b.Err(); !IsKind(err, KindInvalidArgument) {
		t.Fatalf("Err() kind = %v, want invalid-argument", KindOf(err))
	}
	if _, err := b.Get(0); !IsKind(err, KindInvalidArgument) {
		t.Errorf("Get on errored buffer: kind = %v, want invalid-argument", KindOf(err))
	}
}

func TestBufferLazyTransformErrorSurfaces(t *testing.T) {
	b := BufferFromSlice([]Sample{{"text": FromString("hi")}}).Slice("missing", 0, 0, 1)
	s, err := b.Get(0)
	// The key is absent, so the transform passes the sample through.
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s["text"]; !ok {
		t.Error("sample lost its key")
	}

	b = BufferFromSlice([]Sample{{"text": FromString("hi")}}).Replace("text", "", "x", -1)
	if _, err := b.Get(0); !IsKind(err, KindInvalidArgument) {
		t.Errorf("replace with empty needle: kind = %v, want invalid-argument", KindOf(err))
	}
}
