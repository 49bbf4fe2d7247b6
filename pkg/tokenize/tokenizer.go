package tokenize

import (
	"github.com/calque-ai/go-dataflow/pkg/dataflow"
)

// Tokenizer segments byte strings into trie tokens by dynamic programming
// over per-token negative log-likelihood scores.
//
// D[i] is the best cost of tokenizing the first i bytes; every trie token
// ending at i relaxes it. Ties on cost prefer the segmentation with fewer
// tokens, then the lower incoming token id. Without scores every token
// costs 1, which yields the shortest tokenization.
//
// Input a trie path cannot cover is a Coverage error in strict mode, or
// falls back to a configured byte-level unknown token.
//
// The tokenizer is immutable and safe for concurrent use.
type Tokenizer struct {
	trie      *CharTrie
	scores    []float64
	unknownID int64
}

// TokenizerOption configures NewTokenizer.
type TokenizerOption func(*Tokenizer)

// WithScores supplies per-token negative log-likelihood scores indexed by
// token id. Tokens beyond the slice cost 0.
func WithScores(scores []float64) TokenizerOption {
	return func(t *Tokenizer) { t.scores = scores }
}

// WithUnknownID switches coverage failures from errors to a byte-level
// fallback: every byte no token covers becomes one unknown token.
func WithUnknownID(id int64) TokenizerOption {
	return func(t *Tokenizer) { t.unknownID = id }
}

// NewTokenizer builds a maximum-likelihood tokenizer over the trie.
func NewTokenizer(trie *CharTrie, opts ...TokenizerOption) (*Tokenizer, error) {
	if trie == nil || trie.NumKeys() == 0 {
		return nil, dataflow.NewErr(dataflow.KindInvalidArgument, "tokenizer needs a non-empty trie")
	}
	t := &Tokenizer{trie: trie, unknownID: noID}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Tokenizer) score(id int64) float64 {
	if id >= 0 && int(id) < len(t.scores) {
		return t.scores[id]
	}
	if t.scores == nil {
		return 1
	}
	return 0
}

type dpCell struct {
	cost    float64
	count   int
	prev    int
	tokenID int64
	reached bool
}

// better reports whether the candidate (cost, count, id) beats the cell.
func (c *dpCell) better(cost float64, count int, id int64) bool {
	if !c.reached {
		return true
	}
	if cost != c.cost {
		return cost < c.cost
	}
	if count != c.count {
		return count < c.count
	}
	return id < c.tokenID
}

// Tokenize returns the minimum-cost token id sequence covering text.
func (t *Tokenizer) Tokenize(text []byte) ([]int64, error) {
	n := len(text)
	cells := make([]dpCell, n+1)
	cells[0] = dpCell{reached: true, prev: -1, tokenID: noID}

	relax := func(from, to int, id int64, cost float64) {
		cand := cells[from].cost + cost
		count := cells[from].count + 1
		if cells[to].better(cand, count, id) {
			cells[to] = dpCell{cost: cand, count: count, prev: from, tokenID: id, reached: true}
		}
	}

	for i := 0; i < n; i++ {
		if !cells[i].reached {
			continue
		}
		cur := int32(0)
		for j := i; j < n; j++ {
			child, ok := t.trie.nodes[cur].children[text[j]]
			if !ok {
				break
			}
			cur = child
			if id := t.trie.nodes[cur].id; id != noID {
				relax(i, j+1, id, t.score(id))
			}
		}
		if t.unknownID != noID {
			relax(i, i+1, t.unknownID, t.score(t.unknownID))
		}
	}

	if !cells[n].reached {
		pos := n
		for pos > 0 && !cells[pos].reached {
			pos--
		}
		return nil, dataflow.Errorf(dataflow.KindCoverage,
			"no tokenization covers input past byte %d", pos)
	}

	out := make([]int64, 0, cells[n].count)
	for pos := n; pos > 0; pos = cells[pos].prev {
		out = append(out, cells[pos].tokenID)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// TokenizeString is Tokenize for string input.
func (t *Tokenizer) TokenizeString(text string) ([]int64, error) {
	return t.Tokenize([]byte(text))
}

// TokenizeShortest ignores scores and returns a tokenization with the
// fewest tokens.
func (t *Tokenizer) TokenizeShortest(text []byte) ([]int64, error) {
	flat := Tokenizer{trie: t.trie, unknownID: t.unknownID}
	return flat.Tokenize(text)
}
