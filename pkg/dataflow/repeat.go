package dataflow

import (
	"context"
	"io"
)

// repeatStream replays a restartable upstream n times; n < 0 repeats
// forever. The upstream's restartability is only observable at its first
// EOS, where a failing Reset surfaces as the stream error.
type repeatStream struct {
	inner   streamImpl
	n       int
	runs    int
	yielded bool
}

func (r *repeatStream) Next(ctx context.Context) (Sample, error) {
	for {
		s, err := r.inner.Next(ctx)
		if err == nil {
			r.yielded = true
			return s, nil
		}
		if err != io.EOF {
			return nil, err
		}
		r.runs++
		if r.n >= 0 && r.runs >= r.n {
			return nil, io.EOF
		}
		// An empty upstream would replay forever without ever yielding.
		if !r.yielded {
			return nil, io.EOF
		}
		r.yielded = false
		if err := r.inner.Reset(); err != nil {
			return nil, WrapErr(KindInvalidArgument, err, "repeat needs a restartable upstream")
		}
	}
}

func (r *repeatStream) Close() error { return r.inner.Close() }

func (r *repeatStream) Reset() error {
	if err := r.inner.Reset(); err != nil {
		return err
	}
	r.runs = 0
	r.yielded = false
	return nil
}
