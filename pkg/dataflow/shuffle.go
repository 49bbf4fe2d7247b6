package dataflow

import (
	"context"
	"io"
	"math/rand/v2"
)

// shuffleStream approximately shuffles a stream through a bounded
// reservoir.
//
// The reservoir fills from upstream on first use. Each Next picks a
// uniformly random slot, emits its sample and refills the slot from
// upstream; at upstream EOS the last filled slot is swapped in and the fill
// count shrinks, draining the remainder in random order. Every upstream
// sample is emitted exactly once, and a reservoir larger than the upstream
// yields an exact uniform permutation.
type shuffleStream struct {
	inner  streamImpl
	size   int
	rng    *rand.Rand
	buf    []Sample
	filled bool
	eof    bool
}

func (s *shuffleStream) Next(ctx context.Context) (Sample, error) {
	if !s.filled {
		if err := s.fill(ctx); err != nil {
			return nil, err
		}
	}
	if len(s.buf) == 0 {
		return nil, io.EOF
	}
	r := s.rng.IntN(len(s.buf))
	out := s.buf[r]
	if !s.eof {
		nxt, err := s.inner.Next(ctx)
		switch {
		case err == io.EOF:
			s.eof = true
		case err != nil:
			return nil, err
		default:
			s.buf[r] = nxt
			return out, nil
		}
	}
	last := len(s.buf) - 1
	s.buf[r] = s.buf[last]
	s.buf[last] = nil
	s.buf = s.buf[:last]
	return out, nil
}

func (s *shuffleStream) fill(ctx context.Context) error {
	s.buf = make([]Sample, 0, s.size)
	for len(s.buf) < s.size {
		smp, err := s.inner.Next(ctx)
		if err == io.EOF {
			s.eof = true
			break
		}
		if err != nil {
			return err
		}
		s.buf = append(s.buf, smp)
	}
	s.filled = true
	return nil
}

func (s *shuffleStream) Close() error { return s.inner.Close() }

func (s *shuffleStream) Reset() error {
	if err := s.inner.Reset(); err != nil {
		return err
	}
	s.buf, s.filled, s.eof = nil, false, false
	return nil
}
