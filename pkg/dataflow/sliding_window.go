package dataflow

import "context"

// slidingWindowStream expands each upstream sample into windows over the
// array at key: offsets 0, stride, 2*stride, ... for ceil((L-size)/stride)+1
// windows, the last possibly truncated. Inputs shorter than size yield no
// windows. Other keys are copied into every window sample.
type slidingWindowStream struct {
	inner   streamImpl
	key     string
	size    int
	stride  int
	pending []Sample
}

func (w *slidingWindowStream) Next(ctx context.Context) (Sample, error) {
	for {
		if len(w.pending) > 0 {
			out := w.pending[0]
			w.pending = w.pending[1:]
			return out, nil
		}
		s, err := w.inner.Next(ctx)
		if err != nil {
			return nil, err
		}
		a, present := s[w.key]
		if !present {
			return nil, Errorf(KindShape, "sliding window key %q missing from sample", w.key)
		}
		if a.Rank() < 1 {
			return nil, Errorf(KindShape, "sliding window key %q holds a rank-0 array", w.key)
		}
		l := a.Dim(0)
		if l < w.size {
			continue
		}
		count := (l-w.size+w.stride-1)/w.stride + 1
		for i := 0; i < count; i++ {
			off := i * w.stride
			win, err := a.Slice(0, off, min(off+w.size, l))
			if err != nil {
				return nil, err
			}
			out := s.Clone()
			out[w.key] = win
			w.pending = append(w.pending, out)
		}
	}
}

func (w *slidingWindowStream) Close() error { return w.inner.Close() }

func (w *slidingWindowStream) Reset() error {
	if err := w.inner.Reset(); err != nil {
		return err
	}
	w.pending = nil
	return nil
}
