package dataflow

import "sort"

// Sample is the unit of transport in a pipeline: a mapping from short string
// keys to array values.
//
// Iteration order over the map is unspecified; operators that need a
// deterministic order (batching, hashing) use Keys. Operators never mutate a
// sample in place — they clone the key map before adding or removing entries,
// so a sample handed to the consumer never aliases pipeline-internal state.
type Sample map[string]*Array

// Clone returns a shallow copy of the sample: a fresh key map sharing the
// (immutable) array values.
func (s Sample) Clone() Sample {
	out := make(Sample, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Keys returns the sample's keys in sorted order.
func (s Sample) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
