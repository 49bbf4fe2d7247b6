package tokenize

import (
	"context"

	"github.com/calque-ai/go-dataflow/pkg/dataflow"
)

// TextTokenizer is implemented by both tokenizers in this package.
type TextTokenizer interface {
	Tokenize(text []byte) ([]int64, error)
}

// TokenizeKey returns a per-sample transform that tokenizes the u8 array at
// key and stores the token ids under outKey as a rank-1 i64 array.
//
// The transform is stateless over immutable tokenizer data, so it can run
// inside prefetch workers. Coverage failures follow the usual drop policy.
//
// Example:
//
//	st := lines.ToStream().
//		Apply(tokenize.TokenizeKey(tok, "text", "tokens")).
//		Prefetch(16, 4)
func TokenizeKey(tok TextTokenizer, key, outKey string) dataflow.Transform {
	return dataflow.KeyTransformTo(key, outKey, func(_ context.Context, a *dataflow.Array) (*dataflow.Array, error) {
		if a.DType() != dataflow.UInt8 || a.Rank() != 1 {
			return nil, dataflow.Errorf(dataflow.KindType,
				"tokenize key %q holds a rank-%d %s array", key, a.Rank(), a.DType())
		}
		ids, err := tok.Tokenize(a.Bytes())
		if err != nil {
			return nil, err
		}
		return dataflow.FromSlice(ids), nil
	})
}
