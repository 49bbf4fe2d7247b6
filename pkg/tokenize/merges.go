package tokenize

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// mergePair keys the merge table on the byte strings of the two adjacent
// tokens.
type mergePair struct {
	Left  string
	Right string
}

// MergeEntry is the result of one merge rule: the id of the merged token
// and the rule's rank. Smaller rank means higher priority.
type MergeEntry struct {
	MergedID int64
	Rank     int
}

// BPEMerges is an ordered table of adjacent-token rewrites. Ranks follow
// insertion order, so rules added first win during merging. The table also
// remembers the byte strings its merges produce, letting later rules refer
// to earlier outputs (e.g. merging "b" with the product "cd").
//
// A merge table is mutable during construction and must not be modified
// once handed to a tokenizer.
type BPEMerges struct {
	table   *orderedmap.OrderedMap[mergePair, MergeEntry]
	outputs map[string]int64
}

// NewBPEMerges returns an empty merge table.
func NewBPEMerges() *BPEMerges {
	return &BPEMerges{
		table:   orderedmap.New[mergePair, MergeEntry](),
		outputs: make(map[string]int64),
	}
}

// Add appends the rewrite (left, right) -> mergedID with the next rank.
// Re-adding an existing pair keeps the original entry.
func (m *BPEMerges) Add(left, right string, mergedID int64) {
	pair := mergePair{Left: left, Right: right}
	if _, ok := m.table.Get(pair); ok {
		return
	}
	m.table.Set(pair, MergeEntry{MergedID: mergedID, Rank: m.table.Len()})
	m.outputs[left+right] = mergedID
}

// Len returns the number of merge rules.
func (m *BPEMerges) Len() int { return m.table.Len() }

// Lookup returns the entry for an adjacent pair of token byte strings.
func (m *BPEMerges) Lookup(left, right string) (MergeEntry, bool) {
	return m.table.Get(mergePair{Left: left, Right: right})
}

// Output returns the id assigned to the merged byte string produced by some
// rule, letting rules reference earlier merge products.
func (m *BPEMerges) Output(merged string) (int64, bool) {
	id, ok := m.outputs[merged]
	return id, ok
}

// Walk visits the rules in rank order. Returning false from fn stops the
// walk.
func (m *BPEMerges) Walk(fn func(left, right string, e MergeEntry) bool) {
	for pair := m.table.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key.Left, pair.Key.Right, pair.Value) {
			return
		}
	}
}
