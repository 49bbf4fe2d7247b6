package tokenize

import (
	"context"
	"strings"
	"testing"

	"github.com/calque-ai/go-dataflow/pkg/dataflow"
)

func TestReadTrieFromVocab(t *testing.T) {
	trie, err := ReadTrieFromVocab(strings.NewReader("hello\nworld\n\nhi\n"))
	if err != nil {
		t.Fatal(err)
	}
	if trie.NumKeys() != 3 {
		t.Fatalf("NumKeys = %d, want 3", trie.NumKeys())
	}
	if id, ok := trie.SearchString("world"); !ok || id != 1 {
		t.Errorf("world = (%d, %v), want (1, true)", id, ok)
	}
	if id, ok := trie.SearchString("hi"); !ok || id != 2 {
		t.Errorf("hi = (%d, %v), want (2, true)", id, ok)
	}
}

func TestReadTrieFromSPMVocab(t *testing.T) {
	vocab := "<s>\t0\n" +
		"<0x41>\t-1\n" + // the byte 'A'
		"hello\t-2.5\n" +
		"world\t-3\n"
	trie, scores, err := ReadTrieFromSPMVocab(strings.NewReader(vocab))
	if err != nil {
		t.Fatal(err)
	}
	if trie.NumKeys() != 4 {
		t.Fatalf("NumKeys = %d, want 4", trie.NumKeys())
	}
	if id, ok := trie.SearchString("A"); !ok || id != 1 {
		t.Errorf("hex byte token = (%d, %v), want (1, true)", id, ok)
	}
	// Scores are flipped into cost form: s' = -min(s) - s.
	if len(scores) != 4 {
		t.Fatalf("scores = %d entries, want 4", len(scores))
	}
	want := []float64{3, 4, 5.5, 6}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("scores[%d] = %v, want %v", i, scores[i], want[i])
		}
	}
}

func TestReadTrieFromSPMVocabDuplicates(t *testing.T) {
	// "tok" appears twice; the second occurrence has the lower score and
	// keeps the plain spelling while the first moves to its hex spelling.
	vocab := "tok\t-5\n" +
		"tok\t-9\n"
	trie, scores, err := ReadTrieFromSPMVocab(strings.NewReader(vocab))
	if err != nil {
		t.Fatal(err)
	}
	if trie.NumKeys() != 2 {
		t.Fatalf("NumKeys = %d, want 2", trie.NumKeys())
	}
	id, ok := trie.SearchString("tok")
	if !ok || id != 1 {
		t.Errorf("plain spelling = (%d, %v), want (1, true)", id, ok)
	}
	if _, ok := trie.SearchString("<0x746f6b>"); !ok {
		t.Error("displaced occurrence missing its hex spelling")
	}
	if scores[0] != 14 || scores[1] != 18 {
		t.Errorf("scores = %v, want [14 18]", scores)
	}
}

func TestReadMerges(t *testing.T) {
	merges, err := ReadMerges(strings.NewReader("# header\na b\nc d\n"), 54)
	if err != nil {
		t.Fatal(err)
	}
	if merges.Len() != 2 {
		t.Fatalf("Len = %d, want 2", merges.Len())
	}
	if e, ok := merges.Lookup("a", "b"); !ok || e.MergedID != 54 || e.Rank != 0 {
		t.Errorf("first merge = %+v, %v", e, ok)
	}
	if e, ok := merges.Lookup("c", "d"); !ok || e.MergedID != 55 || e.Rank != 1 {
		t.Errorf("second merge = %+v, %v", e, ok)
	}
}

func TestTokenizeKeyTransform(t *testing.T) {
	tok, err := NewBPETokenizer(letterSymbols(), NewBPEMerges())
	if err != nil {
		t.Fatal(err)
	}
	tr := TokenizeKey(tok, "text", "tokens")
	out, err := tr.Apply(context.Background(), dataflow.Sample{"text": dataflow.FromString("ab")})
	if err != nil {
		t.Fatal(err)
	}
	ids, err := dataflow.Values[int64](out["tokens"])
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, ids, []int64{1, 2})
	if _, ok := out["text"]; !ok {
		t.Error("source key removed")
	}

	// Uncovered input follows the drop policy: the error propagates out of
	// the transform for the stream stage to swallow.
	if _, err := tr.Apply(context.Background(), dataflow.Sample{"text": dataflow.FromString("!!")}); !dataflow.IsKind(err, dataflow.KindCoverage) {
		t.Errorf("uncovered input: kind = %v, want coverage", dataflow.KindOf(err))
	}
}
