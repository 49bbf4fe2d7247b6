package dataflow

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// lineReaderStream yields one sample {outKey: line bytes} per line of a
// reader. Lines are split on '\n'; a trailing '\r' is stripped and a final
// unterminated line is still emitted. File-backed readers are restartable.
type lineReaderStream struct {
	outKey string
	open   func() (io.ReadCloser, error) // nil for one-shot readers

	rc io.ReadCloser
	br *bufio.Reader
}

// readCloserPair closes a decompressor together with its underlying file.
type readCloserPair struct {
	io.Reader
	closers []io.Closer
}

func (p *readCloserPair) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// StreamLineReader reads path line by line, yielding {outKey: line bytes}
// samples. Files ending in .gz or .zst are decompressed transparently. The
// stream is restartable: Reset reopens the file.
func StreamLineReader(path, outKey string) *Stream {
	if outKey == "" {
		return errStream(NewErr(KindInvalidArgument, "line reader needs an output key"))
	}
	lr := &lineReaderStream{
		outKey: outKey,
		open: func() (io.ReadCloser, error) {
			f, err := os.Open(path)
			if err != nil {
				return nil, WrapErr(KindIO, err, "opening "+path)
			}
			return f, nil
		},
	}
	lr.decompressFor(path)
	return &Stream{impl: lr, id: newStreamID()}
}

// StreamLineReaderFrom reads r line by line; not restartable.
func StreamLineReaderFrom(r io.Reader, outKey string) *Stream {
	if outKey == "" {
		return errStream(NewErr(KindInvalidArgument, "line reader needs an output key"))
	}
	lr := &lineReaderStream{outKey: outKey}
	lr.rc = io.NopCloser(r)
	lr.br = bufio.NewReader(r)
	return &Stream{impl: lr, id: newStreamID()}
}

// decompressFor arranges transparent decompression based on the path
// suffix.
func (l *lineReaderStream) decompressFor(path string) {
	inner := l.open
	switch {
	case strings.HasSuffix(path, ".gz"):
		l.open = func() (io.ReadCloser, error) {
			rc, err := inner()
			if err != nil {
				return nil, err
			}
			zr, err := gzip.NewReader(rc)
			if err != nil {
				rc.Close()
				return nil, WrapErr(KindIO, err, "opening gzip stream "+path)
			}
			return &readCloserPair{Reader: zr, closers: []io.Closer{zr, rc}}, nil
		}
	case strings.HasSuffix(path, ".zst"):
		l.open = func() (io.ReadCloser, error) {
			rc, err := inner()
			if err != nil {
				return nil, err
			}
			zr, err := zstd.NewReader(rc)
			if err != nil {
				rc.Close()
				return nil, WrapErr(KindIO, err, "opening zstd stream "+path)
			}
			zrc := zr.IOReadCloser()
			return &readCloserPair{Reader: zrc, closers: []io.Closer{zrc, rc}}, nil
		}
	}
}

func (l *lineReaderStream) ensureOpen() error {
	if l.br != nil {
		return nil
	}
	if l.open == nil {
		return NewErr(KindInvalidArgument, "line reader source is exhausted")
	}
	rc, err := l.open()
	if err != nil {
		return err
	}
	l.rc = rc
	l.br = bufio.NewReader(rc)
	return nil
}

func (l *lineReaderStream) Next(_ context.Context) (Sample, error) {
	if err := l.ensureOpen(); err != nil {
		return nil, err
	}
	line, err := l.br.ReadBytes('\n')
	if err == io.EOF {
		if len(line) == 0 {
			return nil, io.EOF
		}
	} else if err != nil {
		return nil, WrapErr(KindIO, err, "reading line")
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return Sample{l.outKey: FromBytes(line)}, nil
}

func (l *lineReaderStream) Close() error {
	if l.rc == nil {
		return nil
	}
	err := l.rc.Close()
	l.rc, l.br = nil, nil
	return err
}

func (l *lineReaderStream) Reset() error {
	if l.open == nil {
		return NewErr(KindInvalidArgument, "line reader over a plain reader is not restartable")
	}
	if err := l.Close(); err != nil {
		return WrapErr(KindIO, err, "closing line reader source")
	}
	return l.ensureOpen()
}

// lineExpandStream splits the u8 array at key into one sample per line,
// written under outKey; the remaining keys are carried along unchanged.
type lineExpandStream struct {
	inner   streamImpl
	key     string
	outKey  string
	pending []Sample
}

func (l *lineExpandStream) Next(ctx context.Context) (Sample, error) {
	for {
		if len(l.pending) > 0 {
			out := l.pending[0]
			l.pending = l.pending[1:]
			return out, nil
		}
		s, err := l.inner.Next(ctx)
		if err != nil {
			return nil, err
		}
		a, present := s[l.key]
		if !present {
			continue
		}
		if a.DType() != UInt8 || a.Rank() != 1 {
			notifyDrop(ctx, "line_reader_from_key",
				Errorf(KindType, "key %q holds a rank-%d %s array", l.key, a.Rank(), a.DType()))
			continue
		}
		for line := range bytes.Lines(a.Bytes()) {
			line = bytes.TrimSuffix(line, []byte("\n"))
			line = bytes.TrimSuffix(line, []byte("\r"))
			out := s.Clone()
			delete(out, l.key)
			out[l.outKey] = FromBytes(line)
			l.pending = append(l.pending, out)
		}
	}
}

func (l *lineExpandStream) Close() error { return l.inner.Close() }

func (l *lineExpandStream) Reset() error {
	if err := l.inner.Reset(); err != nil {
		return err
	}
	l.pending = nil
	return nil
}
