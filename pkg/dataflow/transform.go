package dataflow

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
)

// Transform is a per-sample stateless operator.
//
// Implementations must be re-entrant for different samples: a transform may
// be invoked concurrently from prefetch workers and must not share mutable
// state except through explicit locks. A transform may
//
//   - return a new sample (ownership of the input is transferred in),
//   - return (nil, nil) to filter the sample out silently, or
//   - return an error, in which case the stream drops the sample, increments
//     the drop counter and continues. Buffers surface the error instead,
//     since a random-access view cannot change length.
type Transform interface {
	Apply(ctx context.Context, s Sample) (Sample, error)
}

// TransformFunc adapts a function to the Transform interface.
type TransformFunc func(ctx context.Context, s Sample) (Sample, error)

// Apply implements Transform.
func (f TransformFunc) Apply(ctx context.Context, s Sample) (Sample, error) {
	return f(ctx, s)
}

// namedTransform attaches an operator name used in drop logs and hooks.
type namedTransform struct {
	name string
	t    Transform
}

func (n namedTransform) Apply(ctx context.Context, s Sample) (Sample, error) {
	return n.t.Apply(ctx, s)
}

func named(name string, t Transform) Transform { return namedTransform{name: name, t: t} }

func transformName(t Transform) string {
	if n, ok := t.(namedTransform); ok {
		return n.name
	}
	return "transform"
}

// DropHook observes samples dropped by failing transforms. op is the
// operator name, err the failure. Hooks run on the dropping goroutine and
// must be fast and concurrency-safe.
type DropHook func(op string, err error)

var (
	dropCount atomic.Uint64
	dropHook  atomic.Pointer[DropHook]
)

// SetDropHook installs a process-wide hook invoked for every dropped sample.
// Pass nil to remove the hook. Dropped samples stay silent otherwise, apart
// from a debug log line and the DropCount counter.
func SetDropHook(h DropHook) {
	if h == nil {
		dropHook.Store(nil)
		return
	}
	dropHook.Store(&h)
}

// DropCount returns the number of samples dropped by failing transforms
// since process start.
func DropCount() uint64 { return dropCount.Load() }

func notifyDrop(ctx context.Context, op string, err error) {
	dropCount.Add(1)
	LogDebug(ctx, "sample dropped", "op", op, "error", err)
	if h := dropHook.Load(); h != nil {
		(*h)(op, err)
	}
}

// applyTransform runs one transform with the stream drop policy applied.
// ok is false when the sample was filtered or dropped.
func applyTransform(ctx context.Context, t Transform, s Sample) (out Sample, ok bool) {
	res, err := t.Apply(ctx, s)
	if err != nil {
		notifyDrop(ctx, transformName(t), err)
		return nil, false
	}
	if len(res) == 0 {
		return nil, false
	}
	return res, true
}

// KeyTransform replaces the value at key with fn(array). When the key is
// absent the sample passes through unchanged. An error from fn drops the
// sample (stream) or surfaces (buffer).
func KeyTransform(key string, fn func(ctx context.Context, a *Array) (*Array, error)) Transform {
	return KeyTransformTo(key, key, fn)
}

// KeyTransformTo is KeyTransform writing its result under outKey, leaving
// the input key in place when the two differ.
func KeyTransformTo(key, outKey string, fn func(ctx context.Context, a *Array) (*Array, error)) Transform {
	return named("key_transform", TransformFunc(func(ctx context.Context, s Sample) (Sample, error) {
		a, present := s[key]
		if !present {
			return s, nil
		}
		out, err := fn(ctx, a)
		if err != nil {
			return nil, err
		}
		res := s.Clone()
		res[outKey] = out
		return res, nil
	}))
}

// SampleTransform replaces the whole sample with fn(sample). Returning an
// empty or nil mapping filters the sample out.
func SampleTransform(fn func(ctx context.Context, s Sample) (Sample, error)) Transform {
	return named("sample_transform", TransformFunc(fn))
}

// Filter keeps only samples for which pred returns true.
func Filter(pred func(s Sample) bool) Transform {
	return named("filter", TransformFunc(func(_ context.Context, s Sample) (Sample, error) {
		if !pred(s) {
			return nil, nil
		}
		return s, nil
	}))
}

// FilterKey drops samples that do not carry key. With remove set it instead
// keeps every sample and deletes the key where present.
func FilterKey(key string, remove bool) Transform {
	return named("filter_key", TransformFunc(func(_ context.Context, s Sample) (Sample, error) {
		_, present := s[key]
		if remove {
			if !present {
				return s, nil
			}
			res := s.Clone()
			delete(res, key)
			return res, nil
		}
		if !present {
			return nil, nil
		}
		return s, nil
	}))
}

// Rename moves the value at old to new. Samples without old pass through.
func Rename(old, new string) Transform {
	return named("rename", TransformFunc(func(_ context.Context, s Sample) (Sample, error) {
		a, present := s[old]
		if !present {
			return s, nil
		}
		res := s.Clone()
		delete(res, old)
		res[new] = a
		return res, nil
	}))
}

// Slice restricts the array at key to [start, end) along dim.
func Slice(key string, dim, start, end int) Transform {
	return named("slice", KeyTransform(key, func(_ context.Context, a *Array) (*Array, error) {
		return a.Slice(dim, start, end)
	}))
}

// SliceDims restricts the array at key along several dimensions at once.
func SliceDims(key string, dims, starts, ends []int) Transform {
	return named("slice", KeyTransform(key, func(_ context.Context, a *Array) (*Array, error) {
		return a.SliceDims(dims, starts, ends)
	}))
}

// RandomSlice cuts a window of up to size elements along dim at a uniformly
// random offset, re-drawn per sample. Arrays shorter than size pass through
// whole. An optional seed pair makes the op deterministic.
func RandomSlice(key string, dim, size int, seed ...uint64) Transform {
	rng := newRNG(seed)
	var mu sync.Mutex
	return named("random_slice", KeyTransform(key, func(_ context.Context, a *Array) (*Array, error) {
		if dim >= a.Rank() {
			return nil, Errorf(KindShape, "random_slice dim %d out of range for rank %d", dim, a.Rank())
		}
		n := a.Dim(dim)
		if n <= size {
			return a, nil
		}
		mu.Lock()
		off := rng.IntN(n - size + 1)
		mu.Unlock()
		return a.Slice(dim, off, off+size)
	}))
}

// Replace substitutes up to maxCount leftmost occurrences of old with new in
// the rank-1 u8 array at key. maxCount < 0 replaces all occurrences.
func Replace(key, old, new string, maxCount int) Transform {
	return named("replace", KeyTransform(key, func(_ context.Context, a *Array) (*Array, error) {
		return replaceBytes(a, []byte(old), []byte(new), maxCount)
	}))
}

// Squeeze removes size-1 dimensions from the array at key. With no dims all
// unit dimensions are removed.
func Squeeze(key string, dims ...int) Transform {
	return named("squeeze", KeyTransform(key, func(_ context.Context, a *Array) (*Array, error) {
		return a.Squeeze(dims...)
	}))
}

// Shape stores the shape of the array at key under outKey as a rank-1 i64
// array.
func Shape(key, outKey string) Transform {
	return named("shape", TransformFunc(func(_ context.Context, s Sample) (Sample, error) {
		a, present := s[key]
		if !present {
			return s, nil
		}
		res := s.Clone()
		res[outKey] = shapeArray(a)
		return res, nil
	}))
}

// Pad pads the array at key with value along dim.
func Pad(key string, dim, lpad, rpad int, value float64) Transform {
	return named("pad", KeyTransform(key, func(_ context.Context, a *Array) (*Array, error) {
		return a.Pad(dim, lpad, rpad, value)
	}))
}

// newRNG builds the per-operator PRNG: seeded from the optional seed pair,
// otherwise from the process-wide entropy source.
func newRNG(seed []uint64) *rand.Rand {
	switch len(seed) {
	case 0:
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	case 1:
		return rand.New(rand.NewPCG(seed[0], 0))
	default:
		return rand.New(rand.NewPCG(seed[0], seed[1]))
	}
}
