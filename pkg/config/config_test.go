package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calque-ai/go-dataflow/pkg/dataflow"
)

func TestBuildLinePipeline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.txt")
	if err := os.WriteFile(path, []byte("aa\nbb\ncc\ndd\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	doc := `
source:
  type: lines
  path: ` + path + `
  key: text
ops:
  - op: replace
    key: text
    old: a
    new: x
  - op: batch
    n: 2
`
	st, err := Build([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	got, err := st.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("collected %d batches, want 2", len(got))
	}
	if got[0]["text"].Dim(0) != 2 {
		t.Errorf("batch size = %d, want 2", got[0]["text"].Dim(0))
	}
}

func TestBuildUnknownOpSuggests(t *testing.T) {
	doc := `
source:
  type: lines
  path: /dev/null
ops:
  - op: bacth
    n: 2
`
	_, err := Build([]byte(doc))
	if !dataflow.IsKind(err, dataflow.KindInvalidArgument) {
		t.Fatalf("kind = %v, want invalid-argument", dataflow.KindOf(err))
	}
	if !strings.Contains(err.Error(), "did you mean") || !strings.Contains(err.Error(), "batch") {
		t.Errorf("error %q carries no suggestion", err)
	}
}

func TestBuildRejectsMissingSource(t *testing.T) {
	if _, err := Build([]byte("ops: []")); !dataflow.IsKind(err, dataflow.KindInvalidArgument) {
		t.Errorf("kind = %v, want invalid-argument", dataflow.KindOf(err))
	}
}

func TestBuildPropagatesOperatorValidation(t *testing.T) {
	doc := `
source:
  type: lines
  path: /dev/null
ops:
  - op: batch
    n: 0
`
	if _, err := Build([]byte(doc)); !dataflow.IsKind(err, dataflow.KindInvalidArgument) {
		t.Errorf("kind = %v, want invalid-argument", dataflow.KindOf(err))
	}
}

func TestSchema(t *testing.T) {
	schema, err := Schema()
	if err != nil {
		t.Fatal(err)
	}
	for _, fragment := range []string{"source", "ops", "max_data_size"} {
		if !strings.Contains(string(schema), fragment) {
			t.Errorf("schema missing %q", fragment)
		}
	}
}
