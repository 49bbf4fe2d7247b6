package dataflow

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// prefetchStream decouples the consumer from the pipeline with a pool of
// worker goroutines and a bounded handoff queue.
//
// Workers pull the next upstream sample under a single input-side mutex, run
// the fused per-sample transforms outside the lock, and hand the result to
// the consumer. Backpressure comes from the queue capacity; cancellation
// from Close. Per-sample transform failures drop the sample; an upstream
// failure poisons the stream and the next consumer Next returns a
// StreamAborted error.
//
// In ordered mode every pulled sample claims a promise slot in arrival order
// while the input mutex is still held, so delivery order equals upstream
// order regardless of which worker finishes first.
type prefetchStream struct {
	base       streamImpl
	transforms []Transform
	size       int
	workers    int
	ordered    bool
	streamID   string

	startOnce sync.Once
	cancel    context.CancelFunc

	inMu    sync.Mutex
	baseEOF bool

	out   chan Sample       // unordered handoff
	ord   chan chan ordItem // ordered promise queue
	fatal atomic.Pointer[fatalErr]
	done  chan struct{} // closed once all workers exited and queues are closed
}

type ordItem struct {
	sample Sample
	skip   bool
}

type fatalErr struct{ err error }

// newPrefetchStream peels the run of stateless transform stages off the
// upstream so they execute on the workers instead of under the input mutex.
func newPrefetchStream(inner streamImpl, size, workers int, ordered bool, streamID string) *prefetchStream {
	var transforms []Transform
	base := inner
	for {
		ts, ok := base.(*transformStream)
		if !ok {
			break
		}
		transforms = append([]Transform{ts.t}, transforms...)
		base = ts.inner
	}
	return &prefetchStream{
		base:       base,
		transforms: transforms,
		size:       size,
		workers:    workers,
		ordered:    ordered,
		streamID:   streamID,
	}
}

func (p *prefetchStream) start() {
	p.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		ctx = WithStreamID(ctx, p.streamID)
		p.cancel = cancel
		p.done = make(chan struct{})
		if p.ordered {
			p.ord = make(chan chan ordItem, p.size)
		} else {
			p.out = make(chan Sample, p.size)
		}

		var wg sync.WaitGroup
		for i := 0; i < p.workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.work(ctx)
			}()
		}
		go func() {
			wg.Wait()
			if p.ordered {
				close(p.ord)
			} else {
				close(p.out)
			}
			close(p.done)
		}()
	})
}

// work is the per-worker loop. Cancellation is polled between samples; an
// in-flight sample is always finished, never interrupted.
func (p *prefetchStream) work(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.inMu.Lock()
		if p.baseEOF {
			p.inMu.Unlock()
			return
		}
		smp, err := p.base.Next(ctx)
		if err == io.EOF {
			p.baseEOF = true
			p.inMu.Unlock()
			return
		}
		if err != nil {
			p.baseEOF = true
			p.inMu.Unlock()
			p.abort(err)
			return
		}

		if p.ordered {
			// Claim the delivery slot before releasing the input mutex so
			// slot order equals upstream order. Blocking here while the
			// promise queue is full is the backpressure path.
			promise := make(chan ordItem, 1)
			select {
			case p.ord <- promise:
			case <-ctx.Done():
				p.inMu.Unlock()
				return
			}
			p.inMu.Unlock()

			out, ok := p.runTransforms(ctx, smp)
			promise <- ordItem{sample: out, skip: !ok}
			continue
		}

		p.inMu.Unlock()
		out, ok := p.runTransforms(ctx, smp)
		if !ok {
			continue
		}
		select {
		case p.out <- out:
		case <-ctx.Done():
			return
		}
	}
}

func (p *prefetchStream) runTransforms(ctx context.Context, s Sample) (Sample, bool) {
	out := s
	for _, t := range p.transforms {
		var ok bool
		out, ok = applyTransform(ctx, t, out)
		if !ok {
			return nil, false
		}
	}
	return out, true
}

// abort poisons the stream: queued samples are discarded and the next
// consumer Next surfaces a StreamAborted error.
func (p *prefetchStream) abort(err error) {
	f := &fatalErr{err: WrapErr(KindStreamAborted, err, "prefetch worker failed")}
	if p.fatal.CompareAndSwap(nil, f) {
		p.cancel()
	}
}

func (p *prefetchStream) Next(ctx context.Context) (Sample, error) {
	p.start()
	for {
		if f := p.fatal.Load(); f != nil {
			return nil, f.err
		}
		if p.ordered {
			select {
			case promise, ok := <-p.ord:
				if !ok {
					return nil, p.eofOrFatal()
				}
				item := <-promise
				if item.skip {
					continue
				}
				return item.sample, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		select {
		case smp, ok := <-p.out:
			if !ok {
				return nil, p.eofOrFatal()
			}
			return smp, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *prefetchStream) eofOrFatal() error {
	if f := p.fatal.Load(); f != nil {
		return f.err
	}
	return io.EOF
}

// Close signals the workers, waits for them to finish their in-flight
// samples, and closes the upstream.
func (p *prefetchStream) Close() error {
	p.start()
	p.cancel()
	p.drain()
	<-p.done
	return p.base.Close()
}

// drain unblocks workers stuck on a full handoff queue during shutdown.
func (p *prefetchStream) drain() {
	if p.ordered {
		for range p.ord {
		}
		return
	}
	for range p.out {
	}
}

// Reset is unsupported: worker state and queued samples cannot be rewound.
func (p *prefetchStream) Reset() error {
	return NewErr(KindInvalidArgument, "prefetch streams are not restartable")
}
