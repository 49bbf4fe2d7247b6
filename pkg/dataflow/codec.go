package dataflow

import (
	"encoding/binary"
	"fmt"
)

// The canonical sample encoding backs the transform-output cache: keys in
// sorted order, each followed by its array's dtype, shape and raw bytes.
// The format is versioned but deliberately minimal; it is a cache key and
// value format, not an interchange format.

const codecMagic = "DFS1"

// EncodeSample serializes a sample into the canonical binary form.
func EncodeSample(s Sample) []byte {
	out := make([]byte, 0, 64)
	out = append(out, codecMagic...)
	out = binary.AppendUvarint(out, uint64(len(s)))
	for _, key := range s.Keys() {
		a := s[key]
		out = binary.AppendUvarint(out, uint64(len(key)))
		out = append(out, key...)
		out = append(out, byte(a.DType()))
		out = binary.AppendUvarint(out, uint64(a.Rank()))
		for _, d := range a.shape {
			out = binary.AppendUvarint(out, uint64(d))
		}
		out = binary.AppendUvarint(out, uint64(len(a.data)))
		out = append(out, a.data...)
	}
	return out
}

// DecodeSample parses the canonical binary form back into a sample.
func DecodeSample(data []byte) (Sample, error) {
	if len(data) < len(codecMagic) || string(data[:len(codecMagic)]) != codecMagic {
		return nil, NewErr(KindType, "not an encoded sample")
	}
	pos := len(codecMagic)

	uvarint := func() (uint64, error) {
		v, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return 0, NewErr(KindType, "truncated sample encoding")
		}
		pos += n
		return v, nil
	}
	take := func(n uint64) ([]byte, error) {
		if uint64(len(data)-pos) < n {
			return nil, NewErr(KindType, "truncated sample encoding")
		}
		out := data[pos : pos+int(n)]
		pos += int(n)
		return out, nil
	}

	numKeys, err := uvarint()
	if err != nil {
		return nil, err
	}
	s := make(Sample, numKeys)
	for i := uint64(0); i < numKeys; i++ {
		keyLen, err := uvarint()
		if err != nil {
			return nil, err
		}
		key, err := take(keyLen)
		if err != nil {
			return nil, err
		}
		dt, err := take(1)
		if err != nil {
			return nil, err
		}
		rank, err := uvarint()
		if err != nil {
			return nil, err
		}
		shape := make([]int, rank)
		for d := range shape {
			dim, err := uvarint()
			if err != nil {
				return nil, err
			}
			shape[d] = int(dim)
		}
		size, err := uvarint()
		if err != nil {
			return nil, err
		}
		raw, err := take(size)
		if err != nil {
			return nil, err
		}
		a, err := NewArray(DType(dt[0]), shape, append([]byte(nil), raw...))
		if err != nil {
			return nil, WrapErr(KindType, err, fmt.Sprintf("decoding key %q", key))
		}
		s[string(key)] = a
	}
	return s, nil
}
