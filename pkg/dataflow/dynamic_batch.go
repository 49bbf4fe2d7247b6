package dataflow

import (
	"context"
	"io"
	"sort"
	"sync"
)

// dynamicBatchConfig carries the optional knobs shared by the buffer and
// stream variants.
type dynamicBatchConfig struct {
	minDataSize int
	padValue    float64
	padKeys     map[string]float64
}

// DynamicBatchOption configures DynamicBatch on buffers and streams.
type DynamicBatchOption func(*dynamicBatchConfig)

// WithMinDataSize sets a floor on the padded data size of emitted batches.
// The operator prefers waiting for more samples over emitting an
// under-floor batch; at end of stream the final batch is emitted anyway.
func WithMinDataSize(n int) DynamicBatchOption {
	return func(c *dynamicBatchConfig) { c.minDataSize = n }
}

// WithPadValue sets the fill value used when padding the batch key to the
// longest sample in the batch. Defaults to 0.
func WithPadValue(v float64) DynamicBatchOption {
	return func(c *dynamicBatchConfig) { c.padValue = v }
}

// WithPadKey marks an additional key to be padded (with its own fill value)
// to the batch maximum instead of requiring exactly matching shapes.
func WithPadKey(key string, v float64) DynamicBatchOption {
	return func(c *dynamicBatchConfig) {
		if c.padKeys == nil {
			c.padKeys = make(map[string]float64)
		}
		c.padKeys[key] = v
	}
}

func newDynamicBatchConfig(opts []DynamicBatchOption) dynamicBatchConfig {
	var cfg dynamicBatchConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// primaryLength reads the dim-0 length of the batch key.
func primaryLength(s Sample, key string) (int, error) {
	a, present := s[key]
	if !present {
		return 0, Errorf(KindShape, "dynamic batch key %q missing from sample", key)
	}
	if a.Rank() < 1 {
		return 0, Errorf(KindShape, "dynamic batch key %q holds a rank-0 array", key)
	}
	return a.Dim(0), nil
}

// planBatches walks lengths sorted ascending and cuts greedy runs: a batch
// grows while (n+1)*L stays within the cap, and closes early once the floor
// is met. Returns groups of positions into the sorted order.
//
// Scanning the sorted sequence keeps batch members near-equal in length,
// which is what bounds the padding ratio; the batch maximum is always the
// last-added (longest) member.
func planBatches(sorted []int, lengths []int, maxData, minData int) [][]int {
	var groups [][]int
	var cur []int
	for _, idx := range sorted {
		l := lengths[idx]
		if len(cur) > 0 && (len(cur)+1)*l > maxData {
			groups = append(groups, cur)
			cur = nil
		}
		cur = append(cur, idx)
		if minData > 0 && len(cur)*l >= minData {
			groups = append(groups, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// underFloor reports whether the group's padded size misses the configured
// floor.
func underFloor(group []int, lengths []int, minData int) bool {
	if minData <= 0 {
		return false
	}
	maxLen := 0
	for _, idx := range group {
		maxLen = max(maxLen, lengths[idx])
	}
	return len(group)*maxLen < minData
}

// stackBatch pads the primary key along dim 0 to the batch maximum, applies
// per-key pad values, and stacks everything else strictly.
func stackBatch(batch []Sample, key string, cfg dynamicBatchConfig) (Sample, error) {
	if len(batch) == 0 {
		return nil, NewErr(KindInvalidArgument, "batch of zero samples")
	}
	out := make(Sample, len(batch[0]))
	arrays := make([]*Array, len(batch))
	for _, k := range batch[0].Keys() {
		shared := true
		for i, s := range batch {
			a, present := s[k]
			if !present {
				shared = false
				break
			}
			arrays[i] = a
		}
		if !shared {
			continue
		}
		var stacked *Array
		var err error
		padVal, isPadKey := cfg.padKeys[k]
		switch {
		case k == key:
			stacked, err = stackPadded(arrays, 0, cfg.padValue)
		case isPadKey:
			stacked, err = stackPadded(arrays, 0, padVal)
		default:
			stacked, err = Stack(arrays)
		}
		if err != nil {
			return nil, WrapErr(KindShape, err, "dynamic batching key "+k)
		}
		out[k] = stacked
	}
	return out, nil
}

// dynamicBatchStream is the windowed variant: it fills a window of at most
// bufferSize samples, sorts it by primary length, emits the planned batches
// and refills. An under-floor trailing run is pushed back into the window
// until upstream ends.
type dynamicBatchStream struct {
	inner      streamImpl
	bufferSize int
	key        string
	maxData    int
	cfg        dynamicBatchConfig

	window []Sample
	queued [][]Sample
	eof    bool
}

func newDynamicBatchStream(inner streamImpl, bufferSize int, key string, maxData int, opts []DynamicBatchOption) *dynamicBatchStream {
	return &dynamicBatchStream{
		inner:      inner,
		bufferSize: bufferSize,
		key:        key,
		maxData:    maxData,
		cfg:        newDynamicBatchConfig(opts),
	}
}

func (d *dynamicBatchStream) Next(ctx context.Context) (Sample, error) {
	for {
		if len(d.queued) > 0 {
			batch := d.queued[0]
			d.queued = d.queued[1:]
			return stackBatch(batch, d.key, d.cfg)
		}
		if d.eof && len(d.window) == 0 {
			return nil, io.EOF
		}
		if err := d.fill(ctx, d.bufferSize); err != nil {
			return nil, err
		}
		if err := d.plan(ctx); err != nil {
			return nil, err
		}
	}
}

// fill pulls upstream samples until the window holds target samples or the
// upstream ends.
func (d *dynamicBatchStream) fill(ctx context.Context, target int) error {
	for !d.eof && len(d.window) < target {
		s, err := d.inner.Next(ctx)
		if err == io.EOF {
			d.eof = true
			return nil
		}
		if err != nil {
			return err
		}
		d.window = append(d.window, s)
	}
	return nil
}

// plan sorts the window, cuts batches, and retains an under-floor trailing
// run for the next round. When the floor cannot be met from a full window,
// the window grows past its nominal capacity rather than emit early.
func (d *dynamicBatchStream) plan(ctx context.Context) error {
	if len(d.window) == 0 {
		return nil
	}
	lengths := make([]int, len(d.window))
	for i, s := range d.window {
		l, err := primaryLength(s, d.key)
		if err != nil {
			return err
		}
		lengths[i] = l
	}
	sorted := make([]int, len(d.window))
	for i := range sorted {
		sorted[i] = i
	}
	sort.SliceStable(sorted, func(a, b int) bool { return lengths[sorted[a]] < lengths[sorted[b]] })

	groups := planBatches(sorted, lengths, d.maxData, d.cfg.minDataSize)

	var keep []Sample
	if !d.eof && len(groups) > 0 {
		last := groups[len(groups)-1]
		if underFloor(last, lengths, d.cfg.minDataSize) {
			groups = groups[:len(groups)-1]
			keep = make([]Sample, 0, len(last))
			for _, idx := range last {
				keep = append(keep, d.window[idx])
			}
		}
	}
	for _, g := range groups {
		batch := make([]Sample, 0, len(g))
		for _, idx := range g {
			batch = append(batch, d.window[idx])
		}
		d.queued = append(d.queued, batch)
	}
	d.window = keep

	// Nothing emitted and upstream still open: the retained run cannot meet
	// the floor from this window, so wait for more samples.
	if len(d.queued) == 0 && !d.eof {
		return d.fill(ctx, len(d.window)+d.bufferSize)
	}
	return nil
}

func (d *dynamicBatchStream) Close() error { return d.inner.Close() }

func (d *dynamicBatchStream) Reset() error {
	if err := d.inner.Reset(); err != nil {
		return err
	}
	d.window, d.queued, d.eof = nil, nil, false
	return nil
}

// dynamicBatchBuffer is the random-access variant: the whole buffer is
// measured and sorted once, lazily, and batch i materializes group i.
type dynamicBatchBuffer struct {
	inner   bufferImpl
	key     string
	maxData int
	cfg     dynamicBatchConfig

	planOnce sync.Once
	groups   [][]int
	planErr  error
}

func newDynamicBatchBuffer(inner bufferImpl, key string, maxData int, opts []DynamicBatchOption) *dynamicBatchBuffer {
	return &dynamicBatchBuffer{
		inner:   inner,
		key:     key,
		maxData: maxData,
		cfg:     newDynamicBatchConfig(opts),
	}
}

func (d *dynamicBatchBuffer) plan(ctx context.Context) {
	d.planOnce.Do(func() {
		n := d.inner.Len()
		lengths := make([]int, n)
		for i := 0; i < n; i++ {
			s, err := d.inner.Get(ctx, i)
			if err != nil {
				d.planErr = err
				return
			}
			l, err := primaryLength(s, d.key)
			if err != nil {
				d.planErr = err
				return
			}
			lengths[i] = l
		}
		sorted := make([]int, n)
		for i := range sorted {
			sorted[i] = i
		}
		sort.SliceStable(sorted, func(a, b int) bool { return lengths[sorted[a]] < lengths[sorted[b]] })
		d.groups = planBatches(sorted, lengths, d.maxData, d.cfg.minDataSize)
	})
}

func (d *dynamicBatchBuffer) Len() int {
	d.plan(context.Background())
	return len(d.groups)
}

func (d *dynamicBatchBuffer) Get(ctx context.Context, i int) (Sample, error) {
	d.plan(ctx)
	if d.planErr != nil {
		return nil, d.planErr
	}
	group := d.groups[i]
	batch := make([]Sample, 0, len(group))
	for _, idx := range group {
		s, err := d.inner.Get(ctx, idx)
		if err != nil {
			return nil, err
		}
		batch = append(batch, s)
	}
	return stackBatch(batch, d.key, d.cfg)
}
