package dataflow

import (
	"context"
	"io"
)

// streamImpl is one stage of a stream pipeline. Next returns io.EOF at end
// of stream. Reset restarts streams built on restartable sources and returns
// an InvalidArgument error otherwise.
type streamImpl interface {
	Next(ctx context.Context) (Sample, error)
	Close() error
	Reset() error
}

// Stream is a forward-only, possibly infinite sequence of samples with a
// fluent operator surface. Stateless operators may be pushed onto prefetch
// workers; stateful operators run one sample at a time, on the consuming
// goroutine or, when upstream of a prefetch stage, on its workers under the
// stage's input mutex.
//
// Next returns io.EOF once the stream is exhausted. Close releases worker
// pools and underlying readers; it is the cancellation signal for prefetch
// stages. Construction-argument violations are recorded as a sticky
// InvalidArgument error, available immediately via Err and returned by every
// Next.
//
// Example:
//
//	st := buf.ToStream().
//		Apply(dataflow.Rename("text", "tokens")).
//		Shuffle(1024).
//		Batch(16).
//		Prefetch(8, 4)
//	defer st.Close()
//	for {
//		s, err := st.Next(ctx)
//		if errors.Is(err, io.EOF) {
//			break
//		}
//		...
//	}
type Stream struct {
	impl streamImpl
	id   string
	err  error
}

// derive chains a new stage, keeping the stream ID and any sticky error.
func (s *Stream) derive(impl streamImpl) *Stream {
	if s.err != nil {
		return s
	}
	return &Stream{impl: impl, id: s.id}
}

func errStream(err error) *Stream { return &Stream{err: err, id: newStreamID()} }

// Err returns the sticky construction error, if any.
func (s *Stream) Err() error { return s.err }

// StreamID returns the identifier attached to the stream's log lines.
func (s *Stream) StreamID() string { return s.id }

// Next returns the next sample, io.EOF at end of stream, or an error. A
// stream that returned a StreamAborted error is permanently failed.
func (s *Stream) Next(ctx context.Context) (Sample, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.impl.Next(ctx)
}

// Close releases the stream's resources. Prefetch workers are signalled,
// finish their in-flight sample and exit; no worker outlives the stream.
func (s *Stream) Close() error {
	if s.err != nil {
		return nil
	}
	return s.impl.Close()
}

// Reset restarts the stream when its source is restartable (buffers, file
// readers, iterator factories). Returns an InvalidArgument error otherwise.
func (s *Stream) Reset() error {
	if s.err != nil {
		return s.err
	}
	return s.impl.Reset()
}

// Collect drains the stream into a slice. Mostly useful in tests and for
// small pipelines; an infinite stream will not return.
func (s *Stream) Collect(ctx context.Context) ([]Sample, error) {
	var out []Sample
	for {
		smp, err := s.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, smp)
	}
}

// ToBuffer materializes the remaining samples into a Buffer.
func (s *Stream) ToBuffer(ctx context.Context) (*Buffer, error) {
	samples, err := s.Collect(ctx)
	if err != nil {
		return nil, err
	}
	return BufferFromSlice(samples), nil
}

// bufferStream iterates a buffer in index order; restartable.
type bufferStream struct {
	buf bufferImpl
	pos int
}

func (b *bufferStream) Next(ctx context.Context) (Sample, error) {
	if b.pos >= b.buf.Len() {
		return nil, io.EOF
	}
	s, err := b.buf.Get(ctx, b.pos)
	if err != nil {
		return nil, err
	}
	b.pos++
	return s, nil
}

func (b *bufferStream) Close() error { return nil }
func (b *bufferStream) Reset() error { b.pos = 0; return nil }

// funcStream adapts a plain iterator function; not restartable.
type funcStream struct {
	next func() (Sample, error)
}

func (f *funcStream) Next(context.Context) (Sample, error) {
	return f.next()
}

func (f *funcStream) Close() error { return nil }
func (f *funcStream) Reset() error {
	return NewErr(KindInvalidArgument, "stream source is not restartable")
}

// StreamFromFunc wraps an iterator function into a stream. next returns
// io.EOF at the end. The stream is not restartable; use StreamFromFactory
// when resets are needed.
func StreamFromFunc(next func() (Sample, error)) *Stream {
	if next == nil {
		return errStream(NewErr(KindInvalidArgument, "nil iterator function"))
	}
	return &Stream{impl: &funcStream{next: next}, id: newStreamID()}
}

// factoryStream rebuilds its iterator on Reset; restartable.
type factoryStream struct {
	factory func() func() (Sample, error)
	cur     func() (Sample, error)
}

func (f *factoryStream) Next(context.Context) (Sample, error) {
	if f.cur == nil {
		f.cur = f.factory()
	}
	return f.cur()
}

func (f *factoryStream) Close() error { return nil }
func (f *factoryStream) Reset() error { f.cur = f.factory(); return nil }

// StreamFromFactory wraps an iterator factory into a restartable stream:
// every Reset calls the factory for a fresh iterator.
func StreamFromFactory(factory func() func() (Sample, error)) *Stream {
	if factory == nil {
		return errStream(NewErr(KindInvalidArgument, "nil iterator factory"))
	}
	return &Stream{impl: &factoryStream{factory: factory}, id: newStreamID()}
}

// transformStream applies one per-sample transform with the stream drop
// policy: failing samples are dropped and counted, empty results filtered.
// Prefetch stages peel consecutive transformStreams off their upstream and
// run them on workers instead.
type transformStream struct {
	inner streamImpl
	t     Transform
}

func (ts *transformStream) Next(ctx context.Context) (Sample, error) {
	for {
		s, err := ts.inner.Next(ctx)
		if err != nil {
			return nil, err
		}
		out, ok := applyTransform(ctx, ts.t, s)
		if !ok {
			continue
		}
		return out, nil
	}
}

func (ts *transformStream) Close() error { return ts.inner.Close() }
func (ts *transformStream) Reset() error { return ts.inner.Reset() }

// Apply chains per-sample transforms onto the stream. Each transform
// becomes its own stage so a downstream prefetch can move the whole run of
// them onto its workers.
func (s *Stream) Apply(ts ...Transform) *Stream {
	out := s
	for _, t := range ts {
		out = out.derive(&transformStream{inner: out.impl, t: t})
	}
	return out
}

// KeyTransform replaces the value at key with fn(array); failures drop the
// sample.
func (s *Stream) KeyTransform(key string, fn func(ctx context.Context, a *Array) (*Array, error)) *Stream {
	return s.Apply(KeyTransform(key, fn))
}

// SampleTransform replaces each sample with fn(sample); an empty result
// filters the sample out.
func (s *Stream) SampleTransform(fn func(ctx context.Context, s Sample) (Sample, error)) *Stream {
	return s.Apply(SampleTransform(fn))
}

// Filter keeps only samples for which pred returns true.
func (s *Stream) Filter(pred func(s Sample) bool) *Stream { return s.Apply(Filter(pred)) }

// FilterKey drops samples lacking key, or with remove set deletes the key
// from every sample instead.
func (s *Stream) FilterKey(key string, remove bool) *Stream { return s.Apply(FilterKey(key, remove)) }

// Rename moves the value at old to new in every sample.
func (s *Stream) Rename(old, new string) *Stream { return s.Apply(Rename(old, new)) }

// Slice restricts the array at key to [start, end) along dim.
func (s *Stream) Slice(key string, dim, start, end int) *Stream {
	return s.Apply(Slice(key, dim, start, end))
}

// SliceDims restricts the array at key along several dimensions at once.
func (s *Stream) SliceDims(key string, dims, starts, ends []int) *Stream {
	return s.Apply(SliceDims(key, dims, starts, ends))
}

// RandomSlice cuts a random window of size elements along dim of key.
func (s *Stream) RandomSlice(key string, dim, size int, seed ...uint64) *Stream {
	return s.Apply(RandomSlice(key, dim, size, seed...))
}

// Replace substitutes occurrences of old with new in the u8 array at key.
func (s *Stream) Replace(key, old, new string, maxCount int) *Stream {
	return s.Apply(Replace(key, old, new, maxCount))
}

// Squeeze removes size-1 dimensions from the array at key.
func (s *Stream) Squeeze(key string, dims ...int) *Stream { return s.Apply(Squeeze(key, dims...)) }

// Shape stores the shape of the array at key under outKey.
func (s *Stream) Shape(key, outKey string) *Stream { return s.Apply(Shape(key, outKey)) }

// Pad pads the array at key with value along dim.
func (s *Stream) Pad(key string, dim, lpad, rpad int, value float64) *Stream {
	return s.Apply(Pad(key, dim, lpad, rpad, value))
}

// Batch groups every n consecutive samples into one, stacking each key
// present in all of them along a new leading dimension. The trailing
// partial batch is still emitted.
func (s *Stream) Batch(n int) *Stream {
	if s.err != nil {
		return s
	}
	if n < 1 {
		return errStream(Errorf(KindInvalidArgument, "batch size %d < 1", n))
	}
	return s.derive(&batchStream{inner: s.impl, n: n})
}

// SlidingWindow expands the array at key into windows of size elements
// along dim 0, advancing by stride. An input of length L yields
// ceil((L-size)/stride)+1 windows (the last may be short), or none when
// L < size. Other keys are carried into every window sample unchanged.
func (s *Stream) SlidingWindow(key string, size, stride int) *Stream {
	if s.err != nil {
		return s
	}
	if size < 1 || stride < 1 {
		return errStream(Errorf(KindInvalidArgument, "sliding window size %d / stride %d", size, stride))
	}
	return s.derive(&slidingWindowStream{inner: s.impl, key: key, size: size, stride: stride})
}

// Shuffle approximately shuffles the stream through a reservoir of
// bufferSize samples: each Next emits a uniformly random slot and refills it
// from upstream. Every upstream sample is emitted exactly once.
func (s *Stream) Shuffle(bufferSize int, seed ...uint64) *Stream {
	if s.err != nil {
		return s
	}
	if bufferSize < 1 {
		return errStream(Errorf(KindInvalidArgument, "shuffle buffer size %d < 1", bufferSize))
	}
	return s.derive(&shuffleStream{inner: s.impl, size: bufferSize, rng: newRNG(seed)})
}

// DynamicBatch groups samples into variable-size batches keyed on the dim-0
// length of key, keeping batchSize x maxLength within maxDataSize. It
// windows at most bufferSize samples, sorts them by length and emits the
// formed batches. See DynamicBatchOption for the floor, pad value and extra
// pad keys.
func (s *Stream) DynamicBatch(bufferSize int, key string, maxDataSize int, opts ...DynamicBatchOption) *Stream {
	if s.err != nil {
		return s
	}
	if bufferSize < 1 {
		return errStream(Errorf(KindInvalidArgument, "dynamic batch buffer size %d < 1", bufferSize))
	}
	if maxDataSize < 1 {
		return errStream(Errorf(KindInvalidArgument, "max data size %d < 1", maxDataSize))
	}
	return s.derive(newDynamicBatchStream(s.impl, bufferSize, key, maxDataSize, opts))
}

// Repeat replays the upstream n times; n = -1 repeats forever. The upstream
// must be restartable (buffer, file reader, factory source).
func (s *Stream) Repeat(n int) *Stream {
	if s.err != nil {
		return s
	}
	if n == 0 {
		return errStream(NewErr(KindInvalidArgument, "repeat count 0"))
	}
	return s.derive(&repeatStream{inner: s.impl, n: n})
}

// LineReaderFromKey expands the u8 array at key into one sample per line,
// stored under outKey. Other keys are carried into every line sample.
func (s *Stream) LineReaderFromKey(key, outKey string) *Stream {
	return s.derive(&lineExpandStream{inner: s.impl, key: key, outKey: outKey})
}

// Prefetch decouples the consumer from the pipeline with a pool of
// numThreads workers and a bounded queue of prefetchSize samples. Stateless
// transforms directly upstream run on the workers. Delivery order across
// workers is unspecified; every upstream sample is delivered exactly once
// (absent drops).
func (s *Stream) Prefetch(prefetchSize, numThreads int) *Stream {
	return s.prefetch(prefetchSize, numThreads, false)
}

// OrderedPrefetch is Prefetch preserving upstream order: samples are
// sequence-numbered under the input mutex and delivered in that exact
// order.
func (s *Stream) OrderedPrefetch(prefetchSize, numThreads int) *Stream {
	return s.prefetch(prefetchSize, numThreads, true)
}

func (s *Stream) prefetch(prefetchSize, numThreads int, ordered bool) *Stream {
	if s.err != nil {
		return s
	}
	if prefetchSize < 1 {
		return errStream(Errorf(KindInvalidArgument, "prefetch size %d < 1", prefetchSize))
	}
	if numThreads < 1 {
		return errStream(Errorf(KindInvalidArgument, "prefetch thread count %d < 1", numThreads))
	}
	return s.derive(newPrefetchStream(s.impl, prefetchSize, numThreads, ordered, s.id))
}
