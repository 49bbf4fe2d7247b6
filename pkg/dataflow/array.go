package dataflow

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Array is a typed, multi-dimensional, row-major dense buffer.
//
// An array owns its byte storage. The element type and shape are fixed for
// the lifetime of the value; all mutating operations return new arrays.
// Scalars are rank-0 arrays, byte strings are rank-1 UInt8 arrays.
//
// Invariant: product(shape) * dtype.Size() == len(data).
type Array struct {
	dtype DType
	shape []int
	data  []byte
}

// NewArray builds an array from a dtype, shape and raw row-major bytes.
//
// The byte slice is used directly without copying; callers hand over
// ownership. Returns an InvalidArgument error when the dtype is unknown, a
// dimension is negative, or the byte length does not match the shape.
func NewArray(dtype DType, shape []int, data []byte) (*Array, error) {
	if !dtype.valid() {
		return nil, Errorf(KindInvalidArgument, "unknown dtype %d", uint8(dtype))
	}
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, Errorf(KindInvalidArgument, "negative dimension %d in shape %v", d, shape)
		}
		n *= d
	}
	if n*dtype.Size() != len(data) {
		return nil, Errorf(KindInvalidArgument,
			"shape %v with dtype %s needs %d bytes, got %d", shape, dtype, n*dtype.Size(), len(data))
	}
	return &Array{dtype: dtype, shape: append([]int(nil), shape...), data: data}, nil
}

// FromBytes returns a rank-1 UInt8 array holding a copy of b.
func FromBytes(b []byte) *Array {
	data := append([]byte(nil), b...)
	return &Array{dtype: UInt8, shape: []int{len(data)}, data: data}
}

// FromString returns a rank-1 UInt8 array holding the bytes of s.
func FromString(s string) *Array {
	return FromBytes([]byte(s))
}

// Scalar returns a rank-0 array holding a single value.
func Scalar[T Element](v T) *Array {
	dt := dtypeOf[T]()
	data := make([]byte, dt.Size())
	putElement(data, dt, v)
	return &Array{dtype: dt, shape: nil, data: data}
}

// FromSlice returns a rank-1 array holding a copy of v.
func FromSlice[T Element](v []T) *Array {
	dt := dtypeOf[T]()
	data := make([]byte, len(v)*dt.Size())
	for i, e := range v {
		putElement(data[i*dt.Size():], dt, e)
	}
	return &Array{dtype: dt, shape: []int{len(v)}, data: data}
}

// FromSliceShape returns an array of the given shape holding a copy of v.
func FromSliceShape[T Element](v []T, shape []int) (*Array, error) {
	a := FromSlice(v)
	return a.Reshape(shape)
}

// DType returns the element type.
func (a *Array) DType() DType { return a.dtype }

// Rank returns the number of dimensions.
func (a *Array) Rank() int { return len(a.shape) }

// Shape returns a copy of the dimension sizes.
func (a *Array) Shape() []int { return append([]int(nil), a.shape...) }

// Dim returns the size of dimension i. Negative i counts from the end.
// Panics when i is out of range, mirroring slice indexing.
func (a *Array) Dim(i int) int {
	if i < 0 {
		i += len(a.shape)
	}
	return a.shape[i]
}

// Size returns the number of elements.
func (a *Array) Size() int {
	n := 1
	for _, d := range a.shape {
		n *= d
	}
	return n
}

// NumBytes returns the length of the underlying storage in bytes.
func (a *Array) NumBytes() int { return len(a.data) }

// Bytes returns the underlying row-major storage. The returned slice must be
// treated as read-only; use Clone first when mutation is needed.
func (a *Array) Bytes() []byte { return a.data }

// Clone returns a deep copy of the array.
func (a *Array) Clone() *Array {
	return &Array{
		dtype: a.dtype,
		shape: append([]int(nil), a.shape...),
		data:  append([]byte(nil), a.data...),
	}
}

// Equal reports whether two arrays have the same dtype, shape and contents.
func (a *Array) Equal(b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.dtype != b.dtype || len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return bytes.Equal(a.data, b.data)
}

// Values decodes the array contents into a freshly allocated slice.
// Returns a Type error when T does not match the array dtype.
func Values[T Element](a *Array) ([]T, error) {
	if dtypeOf[T]() != a.dtype {
		return nil, Errorf(KindType, "array holds %s elements", a.dtype)
	}
	es := a.dtype.Size()
	out := make([]T, a.Size())
	for i := range out {
		out[i] = getElement[T](a.data[i*es:], a.dtype)
	}
	return out, nil
}

// Item decodes a single-element array (rank 0 or size 1) into a value.
func Item[T Element](a *Array) (T, error) {
	var z T
	if a.Size() != 1 {
		return z, Errorf(KindShape, "array of size %d is not a scalar", a.Size())
	}
	if dtypeOf[T]() != a.dtype {
		return z, Errorf(KindType, "array holds %s elements", a.dtype)
	}
	return getElement[T](a.data, a.dtype), nil
}

// Reshape returns an array with a new shape of equal element count that
// shares its underlying storage with a; no bytes are copied.
func (a *Array) Reshape(shape []int) (*Array, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, Errorf(KindInvalidArgument, "negative dimension %d in shape %v", d, shape)
		}
		n *= d
	}
	if n != a.Size() {
		return nil, Errorf(KindShape, "cannot reshape %v into %v", a.shape, shape)
	}
	return &Array{dtype: a.dtype, shape: append([]int(nil), shape...), data: a.data}, nil
}

// Squeeze removes dimensions of size 1. With no arguments every unit
// dimension is removed; with explicit dims only those are removed and a
// Shape error is returned when one of them is not of size 1.
func (a *Array) Squeeze(dims ...int) (*Array, error) {
	drop := make(map[int]bool, len(dims))
	for _, d := range dims {
		if d < 0 {
			d += len(a.shape)
		}
		if d < 0 || d >= len(a.shape) {
			return nil, Errorf(KindRange, "squeeze dim %d out of range for rank %d", d, len(a.shape))
		}
		if a.shape[d] != 1 {
			return nil, Errorf(KindShape, "squeeze dim %d has size %d", d, a.shape[d])
		}
		drop[d] = true
	}
	shape := make([]int, 0, len(a.shape))
	for i, d := range a.shape {
		if len(dims) == 0 && d == 1 {
			continue
		}
		if drop[i] {
			continue
		}
		shape = append(shape, d)
	}
	return &Array{dtype: a.dtype, shape: shape, data: a.data}, nil
}

// Slice returns a copy restricted to [start, end) along one dimension.
// Negative start/end wrap around the dimension size; the range is clamped.
func (a *Array) Slice(dim, start, end int) (*Array, error) {
	return a.SliceDims([]int{dim}, []int{start}, []int{end})
}

// SliceDims returns a copy restricted along several dimensions at once.
// dims, starts and ends must have equal lengths.
func (a *Array) SliceDims(dims, starts, ends []int) (*Array, error) {
	if len(dims) != len(starts) || len(dims) != len(ends) {
		return nil, Errorf(KindInvalidArgument,
			"slice dims/starts/ends lengths differ: %d/%d/%d", len(dims), len(starts), len(ends))
	}
	rank := len(a.shape)
	lo := make([]int, rank)
	hi := make([]int, rank)
	for i := range a.shape {
		hi[i] = a.shape[i]
	}
	for i, d := range dims {
		if d < 0 {
			d += rank
		}
		if d < 0 || d >= rank {
			return nil, Errorf(KindRange, "slice dim %d out of range for rank %d", dims[i], rank)
		}
		s, e := starts[i], ends[i]
		n := a.shape[d]
		if s < 0 {
			s += n
		}
		if e < 0 {
			e += n
		}
		s = max(0, min(s, n))
		e = max(s, min(e, n))
		lo[d], hi[d] = s, e
	}

	outShape := make([]int, rank)
	for i := range outShape {
		outShape[i] = hi[i] - lo[i]
	}
	es := a.dtype.Size()
	strides := elemStrides(a.shape)
	out := make([]byte, sizeOf(outShape)*es)
	if len(out) == 0 {
		return &Array{dtype: a.dtype, shape: outShape, data: out}, nil
	}

	// Copy the innermost contiguous run per outer index tuple.
	innerLen := 1
	innerDim := rank
	for innerDim > 0 && lo[innerDim-1] == 0 && hi[innerDim-1] == a.shape[innerDim-1] {
		innerDim--
		innerLen *= a.shape[innerDim]
	}
	if innerDim == 0 {
		copy(out, a.data)
		return &Array{dtype: a.dtype, shape: outShape, data: out}, nil
	}
	// innerDim-1 is the last partially-sliced dimension; runs below it are
	// contiguous in both source and destination.
	runElems := (hi[innerDim-1] - lo[innerDim-1]) * innerLen
	runBytes := runElems * es

	idx := make([]int, innerDim-1)
	dst := 0
	for {
		src := 0
		for d := 0; d < innerDim-1; d++ {
			src += (lo[d] + idx[d]) * strides[d]
		}
		src += lo[innerDim-1] * strides[innerDim-1]
		copy(out[dst:dst+runBytes], a.data[src*es:src*es+runBytes])
		dst += runBytes

		// Advance the outer index tuple.
		d := innerDim - 2
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < hi[d]-lo[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			break
		}
	}
	return &Array{dtype: a.dtype, shape: outShape, data: out}, nil
}

// Pad returns a copy padded with value along one dimension.
func (a *Array) Pad(dim, lpad, rpad int, value float64) (*Array, error) {
	rank := len(a.shape)
	if dim < 0 {
		dim += rank
	}
	if dim < 0 || dim >= rank {
		return nil, Errorf(KindRange, "pad dim %d out of range for rank %d", dim, rank)
	}
	if lpad < 0 || rpad < 0 {
		return nil, Errorf(KindInvalidArgument, "negative padding %d/%d", lpad, rpad)
	}
	es := a.dtype.Size()
	outer := 1
	for _, d := range a.shape[:dim] {
		outer *= d
	}
	inner := es
	for _, d := range a.shape[dim+1:] {
		inner *= d
	}
	row := a.shape[dim] * inner

	fill := encodeScalar(a.dtype, value)
	lfill := repeatFill(fill, lpad*inner)
	rfill := repeatFill(fill, rpad*inner)

	outShape := a.Shape()
	outShape[dim] += lpad + rpad
	out := make([]byte, 0, sizeOf(outShape)*es)
	for o := 0; o < outer; o++ {
		out = append(out, lfill...)
		out = append(out, a.data[o*row:(o+1)*row]...)
		out = append(out, rfill...)
	}
	return &Array{dtype: a.dtype, shape: outShape, data: out}, nil
}

// Stack concatenates arrays along a new leading dimension.
//
// All arrays must agree on dtype and shape; scalars stack into a rank-1
// array. Returns a Type error on a dtype mismatch and a Shape error on a
// shape mismatch.
func Stack(arrays []*Array) (*Array, error) {
	if len(arrays) == 0 {
		return nil, NewErr(KindInvalidArgument, "stack of zero arrays")
	}
	first := arrays[0]
	for _, a := range arrays[1:] {
		if a.dtype != first.dtype {
			return nil, Errorf(KindType, "stack dtype mismatch: %s vs %s", first.dtype, a.dtype)
		}
		if !shapeEqual(a.shape, first.shape) {
			return nil, Errorf(KindShape, "stack shape mismatch: %v vs %v", first.shape, a.shape)
		}
	}
	outShape := append([]int{len(arrays)}, first.shape...)
	out := make([]byte, 0, len(arrays)*len(first.data))
	for _, a := range arrays {
		out = append(out, a.data...)
	}
	return &Array{dtype: first.dtype, shape: outShape, data: out}, nil
}

// stackPadded pads every array with value along dim up to the largest size
// seen, then stacks. Used by dynamic batching.
func stackPadded(arrays []*Array, dim int, value float64) (*Array, error) {
	maxDim := 0
	for _, a := range arrays {
		if dim >= a.Rank() {
			return nil, Errorf(KindShape, "pad dim %d out of range for rank %d", dim, a.Rank())
		}
		maxDim = max(maxDim, a.shape[dim])
	}
	padded := make([]*Array, len(arrays))
	for i, a := range arrays {
		if a.shape[dim] == maxDim {
			padded[i] = a
			continue
		}
		p, err := a.Pad(dim, 0, maxDim-a.shape[dim], value)
		if err != nil {
			return nil, err
		}
		padded[i] = p
	}
	return Stack(padded)
}

// replaceBytes substitutes up to maxCount leftmost occurrences of old with
// new inside a rank-1 UInt8 array. maxCount < 0 replaces all.
func replaceBytes(a *Array, old, repl []byte, maxCount int) (*Array, error) {
	if a.dtype != UInt8 || a.Rank() != 1 {
		return nil, Errorf(KindType, "replace needs a rank-1 u8 array, got rank-%d %s", a.Rank(), a.dtype)
	}
	if len(old) == 0 {
		return nil, NewErr(KindInvalidArgument, "replace with empty search bytes")
	}
	if maxCount < 0 {
		maxCount = bytes.Count(a.data, old)
	}
	out := bytes.Replace(a.data, old, repl, maxCount)
	return &Array{dtype: UInt8, shape: []int{len(out)}, data: out}, nil
}

// shapeArray returns the shape of a as a rank-1 Int64 array.
func shapeArray(a *Array) *Array {
	dims := make([]int64, a.Rank())
	for i, d := range a.shape {
		dims[i] = int64(d)
	}
	return FromSlice(dims)
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sizeOf(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// elemStrides returns per-dimension strides in elements.
func elemStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return strides
}

func repeatFill(fill []byte, n int) []byte {
	if n == 0 {
		return nil
	}
	out := make([]byte, 0, n)
	for len(out) < n {
		out = append(out, fill...)
	}
	return out[:n]
}

// encodeScalar converts a float64 fill value into the byte representation of
// one element of the given dtype.
func encodeScalar(dt DType, v float64) []byte {
	out := make([]byte, dt.Size())
	switch dt {
	case UInt8:
		out[0] = uint8(v)
	case Int8:
		out[0] = uint8(int8(v))
	case UInt16:
		binary.LittleEndian.PutUint16(out, uint16(v))
	case Int16:
		binary.LittleEndian.PutUint16(out, uint16(int16(v)))
	case UInt32:
		binary.LittleEndian.PutUint32(out, uint32(v))
	case Int32:
		binary.LittleEndian.PutUint32(out, uint32(int32(v)))
	case UInt64:
		binary.LittleEndian.PutUint64(out, uint64(v))
	case Int64:
		binary.LittleEndian.PutUint64(out, uint64(int64(v)))
	case Float32:
		binary.LittleEndian.PutUint32(out, math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(out, math.Float64bits(v))
	}
	return out
}

func putElement[T Element](dst []byte, dt DType, v T) {
	switch dt {
	case UInt8:
		dst[0] = byte(any(v).(uint8))
	case Int8:
		dst[0] = byte(any(v).(int8))
	case UInt16:
		binary.LittleEndian.PutUint16(dst, any(v).(uint16))
	case Int16:
		binary.LittleEndian.PutUint16(dst, uint16(any(v).(int16)))
	case UInt32:
		binary.LittleEndian.PutUint32(dst, any(v).(uint32))
	case Int32:
		binary.LittleEndian.PutUint32(dst, uint32(any(v).(int32)))
	case UInt64:
		binary.LittleEndian.PutUint64(dst, any(v).(uint64))
	case Int64:
		binary.LittleEndian.PutUint64(dst, uint64(any(v).(int64)))
	case Float32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(any(v).(float32)))
	case Float64:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(any(v).(float64)))
	}
}

func getElement[T Element](src []byte, dt DType) T {
	var out any
	switch dt {
	case UInt8:
		out = src[0]
	case Int8:
		out = int8(src[0])
	case UInt16:
		out = binary.LittleEndian.Uint16(src)
	case Int16:
		out = int16(binary.LittleEndian.Uint16(src))
	case UInt32:
		out = binary.LittleEndian.Uint32(src)
	case Int32:
		out = int32(binary.LittleEndian.Uint32(src))
	case UInt64:
		out = binary.LittleEndian.Uint64(src)
	case Int64:
		out = int64(binary.LittleEndian.Uint64(src))
	case Float32:
		out = math.Float32frombits(binary.LittleEndian.Uint32(src))
	case Float64:
		out = math.Float64frombits(binary.LittleEndian.Uint64(src))
	}
	return out.(T)
}
