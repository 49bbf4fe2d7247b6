package tokenize

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/calque-ai/go-dataflow/pkg/dataflow"
)

// ReadTrieFromVocab builds a trie from a file holding one token per line.
// Token ids follow line order starting at 0. Blank lines are skipped.
func ReadTrieFromVocab(r io.Reader) (*CharTrie, error) {
	trie := NewCharTrie()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		token := bytes.TrimRight(sc.Bytes(), "\r\n")
		if len(token) == 0 {
			continue
		}
		trie.Insert(token)
	}
	if err := sc.Err(); err != nil {
		return nil, dataflow.WrapErr(dataflow.KindIO, err, "reading vocabulary")
	}
	return trie, nil
}

var hexByteToken = regexp.MustCompile(`^<0x(..)>$`)

// ReadTrieFromSPMVocab builds a trie plus a score vector from a
// sentencepiece-style vocabulary export: one "token\tscore" line per token,
// ids in line order.
//
// Tokens of the form <0xNN> are unescaped into their raw byte. When the
// same byte string appears twice the occurrence with the lower raw score
// (the earlier one on a tie) keeps the plain spelling and the other one is
// stored under its <0x..> hex spelling,
// preserving the original ids. Scores are converted into negative
// log-likelihood form via s' = -min(s) - s, so the best token costs the
// least.
func ReadTrieFromSPMVocab(r io.Reader) (*CharTrie, []float64, error) {
	type entry struct {
		token []byte
		score float64
	}
	var entries []entry
	tokenIndex := make(map[string]int)

	toSpecial := func(token []byte) []byte {
		return []byte(fmt.Sprintf("<0x%s>", hex.EncodeToString(token)))
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimRight(sc.Bytes(), "\r\n")
		if len(line) == 0 {
			continue
		}
		token, scoreText, ok := bytes.Cut(line, []byte("\t"))
		if !ok {
			return nil, nil, dataflow.Errorf(dataflow.KindType,
				"vocabulary line %d has no tab separator", len(entries)+1)
		}
		score, err := strconv.ParseFloat(string(scoreText), 64)
		if err != nil {
			return nil, nil, dataflow.WrapErr(dataflow.KindType, err, "parsing vocabulary score")
		}
		if m := hexByteToken.FindSubmatch(token); m != nil {
			raw, err := hex.DecodeString(string(m[1]))
			if err == nil {
				token = raw
			}
		}

		token = append([]byte(nil), token...)
		if prev, seen := tokenIndex[string(token)]; seen {
			// Keep the lower-scoring occurrence under the plain spelling
			// and push the other one to its hex spelling, so ids stay
			// aligned with the source file.
			if score < entries[prev].score {
				entries[prev].token = toSpecial(entries[prev].token)
				entries = append(entries, entry{token: token, score: score})
				tokenIndex[string(token)] = len(entries) - 1
			} else {
				entries = append(entries, entry{token: toSpecial(token), score: score})
			}
			continue
		}
		entries = append(entries, entry{token: token, score: score})
		tokenIndex[string(token)] = len(entries) - 1
	}
	if err := sc.Err(); err != nil {
		return nil, nil, dataflow.WrapErr(dataflow.KindIO, err, "reading vocabulary")
	}
	if len(entries) == 0 {
		return nil, nil, dataflow.NewErr(dataflow.KindInvalidArgument, "empty vocabulary")
	}

	minScore := entries[0].score
	for _, e := range entries[1:] {
		minScore = min(minScore, e.score)
	}
	scores := make([]float64, len(entries))
	trie := NewCharTrie()
	for i, e := range entries {
		scores[i] = -minScore - e.score
		if _, fresh := trie.InsertWithID(e.token, int64(i)); !fresh {
			return nil, nil, dataflow.Errorf(dataflow.KindInvalidArgument,
				"token %q appears twice in vocabulary", e.token)
		}
	}
	return trie, scores, nil
}

// ReadMerges builds a merge table from lines of "left right" pairs, ranks
// in line order. Merged token ids are assigned sequentially from nextID.
// Lines starting with '#' are skipped.
func ReadMerges(r io.Reader, nextID int64) (*BPEMerges, error) {
	merges := NewBPEMerges()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		left, right, ok := bytes.Cut(line, []byte(" "))
		if !ok {
			return nil, dataflow.Errorf(dataflow.KindType, "merge line %q has no separator", line)
		}
		merges.Add(string(left), string(right), nextID)
		nextID++
	}
	if err := sc.Err(); err != nil {
		return nil, dataflow.WrapErr(dataflow.KindIO, err, "reading merges")
	}
	return merges, nil
}
