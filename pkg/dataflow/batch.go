package dataflow

import (
	"context"
	"io"
)

// stackSamples merges a batch into one sample: every key present in all
// samples is stacked along a new leading dimension, in sorted key order.
// Keys missing from any sample are left out of the batch.
func stackSamples(batch []Sample) (Sample, error) {
	if len(batch) == 0 {
		return nil, NewErr(KindInvalidArgument, "batch of zero samples")
	}
	out := make(Sample, len(batch[0]))
	arrays := make([]*Array, len(batch))
	for _, key := range batch[0].Keys() {
		shared := true
		for i, s := range batch {
			a, present := s[key]
			if !present {
				shared = false
				break
			}
			arrays[i] = a
		}
		if !shared {
			continue
		}
		stacked, err := Stack(arrays)
		if err != nil {
			return nil, WrapErr(KindShape, err, "batching key "+key)
		}
		out[key] = stacked
	}
	return out, nil
}

// batchStream collects n upstream samples per Next. The trailing partial
// batch at EOS is still emitted. Shape mismatches surface synchronously.
type batchStream struct {
	inner streamImpl
	n     int
	done  bool
}

func (b *batchStream) Next(ctx context.Context) (Sample, error) {
	if b.done {
		return nil, io.EOF
	}
	batch := make([]Sample, 0, b.n)
	for len(batch) < b.n {
		s, err := b.inner.Next(ctx)
		if err == io.EOF {
			b.done = true
			break
		}
		if err != nil {
			return nil, err
		}
		batch = append(batch, s)
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return stackSamples(batch)
}

func (b *batchStream) Close() error { return b.inner.Close() }
func (b *batchStream) Reset() error {
	if err := b.inner.Reset(); err != nil {
		return err
	}
	b.done = false
	return nil
}

// batchBuffer is the random-access variant: batch i covers samples
// [i*n, min((i+1)*n, len)).
type batchBuffer struct {
	inner bufferImpl
	n     int
}

func (b *batchBuffer) Len() int {
	return (b.inner.Len() + b.n - 1) / b.n
}

func (b *batchBuffer) Get(ctx context.Context, i int) (Sample, error) {
	lo := i * b.n
	hi := min(lo+b.n, b.inner.Len())
	batch := make([]Sample, 0, hi-lo)
	for j := lo; j < hi; j++ {
		s, err := b.inner.Get(ctx, j)
		if err != nil {
			return nil, err
		}
		batch = append(batch, s)
	}
	return stackSamples(batch)
}
