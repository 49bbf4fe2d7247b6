package dataflow

import "context"

// bufferImpl is the random-access producer behind a Buffer. Get receives a
// validated, 0-based index.
type bufferImpl interface {
	Len() int
	Get(ctx context.Context, i int) (Sample, error)
}

// Buffer is a finite random-access sequence of samples with a fluent
// operator surface. Operators are lazy: applying one returns a new Buffer
// whose samples materialize on Get.
//
// Construction-argument violations are recorded as a sticky InvalidArgument
// error, available immediately via Err and returned by every Get.
//
// Example:
//
//	b := dataflow.BufferFromSlice(samples).
//		Apply(dataflow.Rename("img", "image")).
//		Shuffle(42)
//	s, err := b.Get(0)
type Buffer struct {
	impl bufferImpl
	err  error
}

// sliceBuffer serves samples straight from a slice.
type sliceBuffer struct {
	samples []Sample
}

func (b *sliceBuffer) Len() int { return len(b.samples) }

func (b *sliceBuffer) Get(_ context.Context, i int) (Sample, error) {
	return b.samples[i], nil
}

// BufferFromSlice wraps a slice of samples into a Buffer. The slice is
// referenced, not copied; callers hand over ownership.
func BufferFromSlice(samples []Sample) *Buffer {
	return &Buffer{impl: &sliceBuffer{samples: samples}}
}

func errBuffer(err error) *Buffer { return &Buffer{err: err} }

// derive chains a new impl, keeping any sticky error.
func (b *Buffer) derive(impl bufferImpl) *Buffer {
	if b.err != nil {
		return b
	}
	return &Buffer{impl: impl}
}

// Err returns the sticky construction error, if any.
func (b *Buffer) Err() error { return b.err }

// Len returns the number of samples.
func (b *Buffer) Len() int {
	if b.err != nil {
		return 0
	}
	return b.impl.Len()
}

// Get returns the sample at index i. Negative indices wrap from the end;
// out-of-range indices return a Range error.
func (b *Buffer) Get(i int) (Sample, error) {
	return b.GetContext(context.Background(), i)
}

// GetContext is Get with a caller-supplied context, forwarded to lazy
// transforms for cancellation and logging.
func (b *Buffer) GetContext(ctx context.Context, i int) (Sample, error) {
	if b.err != nil {
		return nil, b.err
	}
	n := b.impl.Len()
	idx := i
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return nil, Errorf(KindRange, "index %d out of range for buffer of length %d", i, n)
	}
	return b.impl.Get(ctx, idx)
}

// transformedBuffer applies per-sample transforms lazily on Get. A buffer
// has a fixed length, so a transform that filters or fails surfaces an
// error instead of dropping.
type transformedBuffer struct {
	inner bufferImpl
	t     Transform
}

func (b *transformedBuffer) Len() int { return b.inner.Len() }

func (b *transformedBuffer) Get(ctx context.Context, i int) (Sample, error) {
	s, err := b.inner.Get(ctx, i)
	if err != nil {
		return nil, err
	}
	out, err := b.t.Apply(ctx, s)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, Errorf(KindInvalidArgument,
			"%s filtered a sample inside a buffer; use ToStream first", transformName(b.t))
	}
	return out, nil
}

// Apply chains per-sample transforms onto the buffer.
func (b *Buffer) Apply(ts ...Transform) *Buffer {
	out := b
	for _, t := range ts {
		out = out.derive(&transformedBuffer{inner: out.impl, t: t})
	}
	return out
}

// KeyTransform replaces the value at key with fn(array) on every Get.
func (b *Buffer) KeyTransform(key string, fn func(ctx context.Context, a *Array) (*Array, error)) *Buffer {
	return b.Apply(KeyTransform(key, fn))
}

// SampleTransform replaces each sample with fn(sample) on Get.
func (b *Buffer) SampleTransform(fn func(ctx context.Context, s Sample) (Sample, error)) *Buffer {
	return b.Apply(SampleTransform(fn))
}

// FilterKey with remove set deletes key from every sample. The dropping
// variant (remove=false) cannot shrink a fixed-length buffer and records an
// InvalidArgument error; convert with ToStream first.
func (b *Buffer) FilterKey(key string, remove bool) *Buffer {
	if b.err != nil {
		return b
	}
	if !remove {
		return errBuffer(NewErr(KindInvalidArgument,
			"filter_key cannot drop samples from a buffer; use ToStream first"))
	}
	return b.Apply(FilterKey(key, true))
}

// Rename moves the value at old to new in every sample.
func (b *Buffer) Rename(old, new string) *Buffer { return b.Apply(Rename(old, new)) }

// Slice restricts the array at key to [start, end) along dim.
func (b *Buffer) Slice(key string, dim, start, end int) *Buffer {
	return b.Apply(Slice(key, dim, start, end))
}

// SliceDims restricts the array at key along several dimensions at once.
func (b *Buffer) SliceDims(key string, dims, starts, ends []int) *Buffer {
	return b.Apply(SliceDims(key, dims, starts, ends))
}

// Replace substitutes occurrences of old with new in the u8 array at key.
func (b *Buffer) Replace(key, old, new string, maxCount int) *Buffer {
	return b.Apply(Replace(key, old, new, maxCount))
}

// Squeeze removes size-1 dimensions from the array at key.
func (b *Buffer) Squeeze(key string, dims ...int) *Buffer { return b.Apply(Squeeze(key, dims...)) }

// Shape stores the shape of the array at key under outKey.
func (b *Buffer) Shape(key, outKey string) *Buffer { return b.Apply(Shape(key, outKey)) }

// Pad pads the array at key with value along dim.
func (b *Buffer) Pad(key string, dim, lpad, rpad int, value float64) *Buffer {
	return b.Apply(Pad(key, dim, lpad, rpad, value))
}

// RandomSlice cuts a random window of size elements along dim of key.
func (b *Buffer) RandomSlice(key string, dim, size int, seed ...uint64) *Buffer {
	return b.Apply(RandomSlice(key, dim, size, seed...))
}

// shuffledBuffer is a lazy permutation view.
type shuffledBuffer struct {
	inner bufferImpl
	perm  []int
}

func (b *shuffledBuffer) Len() int { return len(b.perm) }

func (b *shuffledBuffer) Get(ctx context.Context, i int) (Sample, error) {
	return b.inner.Get(ctx, b.perm[i])
}

// Shuffle returns a uniformly random permutation view of the buffer. The
// permutation is drawn once, from the optional seed pair or the process
// entropy source.
func (b *Buffer) Shuffle(seed ...uint64) *Buffer {
	if b.err != nil {
		return b
	}
	rng := newRNG(seed)
	return b.derive(&shuffledBuffer{inner: b.impl, perm: rng.Perm(b.impl.Len())})
}

// partitionBuffer is the strided shard view used for distributed loading.
type partitionBuffer struct {
	inner bufferImpl
	num   int
	shard int
}

func (b *partitionBuffer) Len() int {
	n := b.inner.Len()
	if b.shard >= n {
		return 0
	}
	return (n - b.shard + b.num - 1) / b.num
}

func (b *partitionBuffer) Get(ctx context.Context, i int) (Sample, error) {
	return b.inner.Get(ctx, i*b.num+b.shard)
}

// Partition returns the shard-th of numShards strided partitions of the
// buffer, for splitting a dataset across loader processes.
func (b *Buffer) Partition(numShards, shard int) *Buffer {
	if b.err != nil {
		return b
	}
	if numShards < 1 || shard < 0 || shard >= numShards {
		return errBuffer(Errorf(KindInvalidArgument,
			"partition shard %d of %d shards", shard, numShards))
	}
	return b.derive(&partitionBuffer{inner: b.impl, num: numShards, shard: shard})
}

// Batch groups every n consecutive samples into one, stacking each key
// present in all of them along a new leading dimension. The trailing batch
// may hold fewer than n samples.
func (b *Buffer) Batch(n int) *Buffer {
	if b.err != nil {
		return b
	}
	if n < 1 {
		return errBuffer(Errorf(KindInvalidArgument, "batch size %d < 1", n))
	}
	return b.derive(&batchBuffer{inner: b.impl, n: n})
}

// DynamicBatch groups samples into variable-size batches keyed on the dim-0
// length of key, keeping batchSize x maxLength within maxDataSize. The whole
// buffer is sorted by length once; every input sample lands in exactly one
// batch. See DynamicBatchOption for the floor, pad value and extra pad keys.
func (b *Buffer) DynamicBatch(key string, maxDataSize int, opts ...DynamicBatchOption) *Buffer {
	if b.err != nil {
		return b
	}
	if maxDataSize < 1 {
		return errBuffer(Errorf(KindInvalidArgument, "max data size %d < 1", maxDataSize))
	}
	return b.derive(newDynamicBatchBuffer(b.impl, key, maxDataSize, opts))
}

// ToStream returns a restartable stream over the buffer's samples in index
// order.
func (b *Buffer) ToStream() *Stream {
	if b.err != nil {
		return &Stream{err: b.err, id: newStreamID()}
	}
	return &Stream{impl: &bufferStream{buf: b.impl}, id: newStreamID()}
}

// Repeat replays the buffer n times as a stream; n = -1 repeats forever.
func (b *Buffer) Repeat(n int) *Stream { return b.ToStream().Repeat(n) }

// Prefetch converts to a stream and prefetches samples with a worker pool;
// delivery order is unspecified. See Stream.Prefetch.
func (b *Buffer) Prefetch(prefetchSize, numThreads int) *Stream {
	return b.ToStream().Prefetch(prefetchSize, numThreads)
}

// OrderedPrefetch converts to a stream and prefetches samples with a worker
// pool while preserving index order. See Stream.OrderedPrefetch.
func (b *Buffer) OrderedPrefetch(prefetchSize, numThreads int) *Stream {
	return b.ToStream().OrderedPrefetch(prefetchSize, numThreads)
}
