package dataflow

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// memberRange locates a tar member's data inside the archive file.
type memberRange struct {
	offset int64
	size   int64
}

// TarIndex maps member names of a tar archive to byte ranges, so members
// can be read directly with a section reader instead of rescanning the
// archive. An index is immutable once built and safe for concurrent reads.
type TarIndex struct {
	path    string
	members map[string]memberRange
	names   []string
}

// tarOptions configures IndexTar and FilesFromTar.
type tarOptions struct {
	nested     bool
	numThreads int
}

// TarOption configures tar indexing.
type TarOption func(*tarOptions)

// WithNested also indexes members of inner .tar archives, naming them
// "outer.tar/inner". Inner archives are indexed in parallel.
func WithNested(nested bool) TarOption {
	return func(o *tarOptions) { o.nested = nested }
}

// WithNumThreads bounds the parallelism of nested indexing. Defaults to 1.
func WithNumThreads(n int) TarOption {
	return func(o *tarOptions) { o.numThreads = n }
}

// countingReader tracks the absolute offset consumed from the underlying
// reader; the tar reader's position after a header read is the member's
// data offset.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// IndexTar scans the archive at path once and returns a member index.
func IndexTar(path string, opts ...TarOption) (*TarIndex, error) {
	var o tarOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.numThreads < 1 {
		o.numThreads = 1
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, WrapErr(KindIO, err, "opening tar "+path)
	}
	defer f.Close()

	ix := &TarIndex{path: path, members: make(map[string]memberRange)}
	if err := scanTar(&countingReader{r: f}, 0, "", ix, nil); err != nil {
		return nil, err
	}

	if o.nested {
		if err := ix.indexNested(o.numThreads); err != nil {
			return nil, err
		}
	}

	ix.names = make([]string, 0, len(ix.members))
	for name := range ix.members {
		ix.names = append(ix.names, name)
	}
	sort.Strings(ix.names)
	return ix, nil
}

// scanTar walks one archive recording regular members. base shifts offsets
// for archives embedded at base bytes into the file; prefix namespaces the
// member names. mu guards concurrent writes during nested indexing.
func scanTar(cr *countingReader, base int64, prefix string, ix *TarIndex, mu *sync.Mutex) error {
	tr := tar.NewReader(cr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return WrapErr(KindIO, err, "scanning tar "+ix.path)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		rng := memberRange{offset: base + cr.n, size: hdr.Size}
		name := prefix + hdr.Name
		if mu != nil {
			mu.Lock()
		}
		ix.members[name] = rng
		if mu != nil {
			mu.Unlock()
		}
	}
}

// indexNested scans inner .tar members in parallel and merges their
// members into the index under "outer/inner" names.
func (ix *TarIndex) indexNested(numThreads int) error {
	type innerTar struct {
		name string
		rng  memberRange
	}
	inner := make([]innerTar, 0)
	for name, rng := range ix.members {
		if strings.HasSuffix(name, ".tar") {
			inner = append(inner, innerTar{name: name, rng: rng})
		}
	}
	sort.Slice(inner, func(a, b int) bool { return inner[a].name < inner[b].name })

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(numThreads)
	for _, it := range inner {
		name, rng := it.name, it.rng
		g.Go(func() error {
			f, err := os.Open(ix.path)
			if err != nil {
				return WrapErr(KindIO, err, "opening tar "+ix.path)
			}
			defer f.Close()
			sec := io.NewSectionReader(f, rng.offset, rng.size)
			return scanTar(&countingReader{r: sec}, rng.offset, name+"/", ix, &mu)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, it := range inner {
		delete(ix.members, it.name)
	}
	return nil
}

// Len returns the number of indexed members.
func (ix *TarIndex) Len() int { return len(ix.names) }

// Names returns the sorted member names.
func (ix *TarIndex) Names() []string { return ix.names }

// ReadMember reads the full contents of one member.
func (ix *TarIndex) ReadMember(name string) ([]byte, error) {
	rng, ok := ix.members[name]
	if !ok {
		return nil, Errorf(KindRange, "tar member %q not in index", name)
	}
	f, err := os.Open(ix.path)
	if err != nil {
		return nil, WrapErr(KindIO, err, "opening tar "+ix.path)
	}
	defer f.Close()
	out := make([]byte, rng.size)
	if _, err := io.ReadFull(io.NewSectionReader(f, rng.offset, rng.size), out); err != nil {
		return nil, WrapErr(KindIO, err, "reading tar member "+name)
	}
	return out, nil
}

// tarFilesBuffer yields {file: member-name-bytes} samples.
type tarFilesBuffer struct {
	ix *TarIndex
}

func (b *tarFilesBuffer) Len() int { return b.ix.Len() }

func (b *tarFilesBuffer) Get(_ context.Context, i int) (Sample, error) {
	return Sample{"file": FromString(b.ix.names[i])}, nil
}

// Files returns a buffer with one {file: member-name-bytes} sample per
// indexed member, in sorted name order. Pair it with ReadFromTar to load
// contents lazily.
func (ix *TarIndex) Files() *Buffer {
	return &Buffer{impl: &tarFilesBuffer{ix: ix}}
}

// FilesFromTar indexes the archive at path and returns its member-name
// buffer. Index errors are carried as the buffer's sticky error.
func FilesFromTar(path string, opts ...TarOption) *Buffer {
	ix, err := IndexTar(path, opts...)
	if err != nil {
		return errBuffer(err)
	}
	return ix.Files()
}

// ReadFromTar resolves the member name held at inKey against the index and
// stores the member's bytes under outKey. Missing members drop the sample.
func ReadFromTar(ix *TarIndex, inKey, outKey string) Transform {
	return named("read_from_tar", TransformFunc(func(_ context.Context, s Sample) (Sample, error) {
		a, present := s[inKey]
		if !present {
			return s, nil
		}
		if a.DType() != UInt8 || a.Rank() != 1 {
			return nil, Errorf(KindType, "tar member key %q holds a rank-%d %s array", inKey, a.Rank(), a.DType())
		}
		data, err := ix.ReadMember(string(a.Bytes()))
		if err != nil {
			return nil, err
		}
		res := s.Clone()
		res[outKey] = FromBytes(data)
		return res, nil
	}))
}
