package tokenize

import (
	"github.com/calque-ai/go-dataflow/pkg/dataflow"
)

// pairMerge is a resolved merge rule over token ids.
type pairMerge struct {
	id   int64
	rank int
}

// BPETokenizer tokenizes byte strings by greedy symbol matching followed by
// byte-pair merging.
//
// Pre-tokenization walks the input left to right taking the longest symbol
// the trie knows at each position; a position no symbol covers is a
// Coverage error. The merge loop then repeatedly rewrites the adjacent pair
// with the lowest rank (leftmost on ties) until no pair has a rule.
//
// The tokenizer is immutable and safe for concurrent use.
type BPETokenizer struct {
	symbols  *CharTrie
	pairRank map[[2]int64]pairMerge
}

// NewBPETokenizer resolves the merge table against the symbol vocabulary.
// Every merge side must name either a trie symbol or the output of an
// earlier merge; anything else is an InvalidArgument error.
func NewBPETokenizer(symbols *CharTrie, merges *BPEMerges) (*BPETokenizer, error) {
	resolve := func(token string) (int64, bool) {
		if id, ok := symbols.SearchString(token); ok {
			return id, true
		}
		return merges.Output(token)
	}

	pairRank := make(map[[2]int64]pairMerge, merges.Len())
	var resolveErr error
	merges.Walk(func(left, right string, e MergeEntry) bool {
		l, ok := resolve(left)
		if !ok {
			resolveErr = dataflow.Errorf(dataflow.KindInvalidArgument,
				"merge side %q is neither a symbol nor a merge output", left)
			return false
		}
		r, ok := resolve(right)
		if !ok {
			resolveErr = dataflow.Errorf(dataflow.KindInvalidArgument,
				"merge side %q is neither a symbol nor a merge output", right)
			return false
		}
		pairRank[[2]int64{l, r}] = pairMerge{id: e.MergedID, rank: e.Rank}
		return true
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return &BPETokenizer{symbols: symbols, pairRank: pairRank}, nil
}

// Tokenize returns the token id sequence for text. Tokenizing a string
// whose atoms are all present as symbols is idempotent with respect to the
// merge rules: running the result back through produces the same ids.
func (t *BPETokenizer) Tokenize(text []byte) ([]int64, error) {
	ids, err := t.pretokenize(text)
	if err != nil {
		return nil, err
	}
	return t.merge(ids), nil
}

// TokenizeString is Tokenize for string input.
func (t *BPETokenizer) TokenizeString(text string) ([]int64, error) {
	return t.Tokenize([]byte(text))
}

func (t *BPETokenizer) pretokenize(text []byte) ([]int64, error) {
	ids := make([]int64, 0, len(text))
	for pos := 0; pos < len(text); {
		id, length, ok := t.symbols.LongestPrefix(text, pos)
		if !ok {
			return nil, dataflow.Errorf(dataflow.KindCoverage,
				"no symbol covers input at byte %d", pos)
		}
		ids = append(ids, id)
		pos += length
	}
	return ids, nil
}

func (t *BPETokenizer) merge(ids []int64) []int64 {
	for len(ids) > 1 {
		bestPos := -1
		var best pairMerge
		for i := 0; i+1 < len(ids); i++ {
			e, ok := t.pairRank[[2]int64{ids[i], ids[i+1]}]
			if !ok {
				continue
			}
			if bestPos < 0 || e.rank < best.rank {
				bestPos, best = i, e
			}
		}
		if bestPos < 0 {
			break
		}
		ids[bestPos] = best.id
		ids = append(ids[:bestPos+1], ids[bestPos+2:]...)
	}
	return ids
}
