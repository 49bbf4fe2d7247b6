package cache

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/calque-ai/go-dataflow/pkg/dataflow"
)

// Config tunes a cached transform.
type Config struct {
	// TTL bounds the lifetime of cached outputs; <= 0 caches forever.
	TTL time.Duration
}

// Transform wraps inner with content-addressed caching: the cache key is
// the xxhash of the input sample's canonical encoding salted with name, the
// value the encoded output sample.
//
// name must uniquely identify the inner transform's behavior; two different
// transforms sharing a name will poison each other's entries. Filtered
// samples (empty output) and failures are never cached. Cache backend
// errors fall through to the inner transform, so a broken store degrades to
// a cold cache.
//
// Example:
//
//	store, _ := cache.NewBadgerStore(dir)
//	st := lines.Apply(cache.Transform(store, "bpe-v1", tokenize.TokenizeKey(tok, "text", "tokens")))
func Transform(store Store, name string, inner dataflow.Transform) dataflow.Transform {
	return TransformWithConfig(store, name, inner, Config{})
}

// TransformWithConfig is Transform with an explicit Config.
func TransformWithConfig(store Store, name string, inner dataflow.Transform, cfg Config) dataflow.Transform {
	return dataflow.TransformFunc(func(ctx context.Context, s dataflow.Sample) (dataflow.Sample, error) {
		key := sampleKey(name, s)

		if cached, err := store.Get(key); err == nil && cached != nil {
			out, err := dataflow.DecodeSample(cached)
			if err == nil {
				return out, nil
			}
			// Corrupt entry: drop it and recompute.
			_ = store.Delete(key)
		} else if err != nil {
			dataflow.LogWarn(ctx, "cache lookup failed", "key", key, "error", err)
		}

		out, err := inner.Apply(ctx, s)
		if err != nil || len(out) == 0 {
			return out, err
		}
		if err := store.Set(key, dataflow.EncodeSample(out), cfg.TTL); err != nil {
			dataflow.LogWarn(ctx, "cache write failed", "key", key, "error", err)
		}
		return out, nil
	})
}

// sampleKey hashes the transform name and the sample's canonical encoding.
func sampleKey(name string, s dataflow.Sample) string {
	h := xxhash.New()
	h.WriteString(name)
	h.Write([]byte{0})
	h.Write(dataflow.EncodeSample(s))
	return name + ":" + hex.EncodeToString(h.Sum(nil))
}
