// Package config builds dataflow pipelines from declarative YAML
// descriptions, so loader layouts can live next to dataset definitions
// instead of in code.
//
// A description names a source and an ordered operator list:
//
//	source:
//	  type: lines
//	  path: corpus.txt.gz
//	  key: text
//	ops:
//	  - op: replace
//	    key: text
//	    old: "\t"
//	    new: " "
//	  - op: shuffle
//	    buffer_size: 1024
//	  - op: batch
//	    n: 16
//	  - op: ordered_prefetch
//	    size: 16
//	    threads: 8
package config

import (
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/hbollon/go-edlib"

	"github.com/calque-ai/go-dataflow/pkg/dataflow"
	"github.com/calque-ai/go-dataflow/pkg/helpers"
)

// Pipeline is the top-level YAML document.
type Pipeline struct {
	Source Source `yaml:"source" json:"source"`
	Ops    []Op   `yaml:"ops" json:"ops,omitempty"`
}

// Source describes where samples come from.
type Source struct {
	// Type is "lines" (a text file, one sample per line) or "tar" (an
	// archive, one sample per member name).
	Type string `yaml:"type" json:"type"`

	// Path of the file to read. Line sources decompress .gz and .zst.
	Path string `yaml:"path" json:"path"`

	// Key receives the line bytes for line sources. Defaults to "line".
	Key string `yaml:"key,omitempty" json:"key,omitempty"`

	// Nested also indexes inner tar archives of a tar source.
	Nested bool `yaml:"nested,omitempty" json:"nested,omitempty"`

	// NumThreads bounds nested tar indexing parallelism.
	NumThreads int `yaml:"num_threads,omitempty" json:"num_threads,omitempty"`
}

// Op is one operator application. Op selects the operator; the remaining
// fields parameterize it and unused ones are ignored by each operator.
type Op struct {
	Op string `yaml:"op" json:"op"`

	Key    string `yaml:"key,omitempty" json:"key,omitempty"`
	OutKey string `yaml:"out_key,omitempty" json:"out_key,omitempty"`
	From   string `yaml:"from,omitempty" json:"from,omitempty"`
	To     string `yaml:"to,omitempty" json:"to,omitempty"`
	Old    string `yaml:"old,omitempty" json:"old,omitempty"`
	New    string `yaml:"new,omitempty" json:"new,omitempty"`
	Remove bool   `yaml:"remove,omitempty" json:"remove,omitempty"`

	Dim      int      `yaml:"dim,omitempty" json:"dim,omitempty"`
	Start    int      `yaml:"start,omitempty" json:"start,omitempty"`
	End      int      `yaml:"end,omitempty" json:"end,omitempty"`
	Size     int      `yaml:"size,omitempty" json:"size,omitempty"`
	Stride   int      `yaml:"stride,omitempty" json:"stride,omitempty"`
	N        int      `yaml:"n,omitempty" json:"n,omitempty"`
	MaxCount *int     `yaml:"max_count,omitempty" json:"max_count,omitempty"`
	LeftPad  int      `yaml:"left_pad,omitempty" json:"left_pad,omitempty"`
	RightPad int      `yaml:"right_pad,omitempty" json:"right_pad,omitempty"`
	Value    float64  `yaml:"value,omitempty" json:"value,omitempty"`
	Seed     []uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`

	BufferSize  int `yaml:"buffer_size,omitempty" json:"buffer_size,omitempty"`
	MaxDataSize int `yaml:"max_data_size,omitempty" json:"max_data_size,omitempty"`
	MinDataSize int `yaml:"min_data_size,omitempty" json:"min_data_size,omitempty"`
	Threads     int `yaml:"threads,omitempty" json:"threads,omitempty"`
}

// knownOps lists every operator Build understands, for validation and
// fuzzy suggestions.
var knownOps = []string{
	"rename", "filter_key", "slice", "random_slice", "replace", "squeeze",
	"shape", "pad", "line_reader_from_key", "batch", "dynamic_batch",
	"sliding_window", "shuffle", "repeat", "prefetch", "ordered_prefetch",
}

// Parse decodes a YAML pipeline description.
func Parse(doc []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(doc, &p); err != nil {
		return nil, dataflow.WrapErr(dataflow.KindInvalidArgument, err, "parsing pipeline description")
	}
	return &p, nil
}

// Build parses a YAML pipeline description and constructs the stream.
//
// Environment defaults apply where the description leaves fields zero:
// DATAFLOW_NUM_THREADS for prefetch workers, DATAFLOW_PREFETCH_SIZE for
// queue sizes.
func Build(doc []byte) (*dataflow.Stream, error) {
	p, err := Parse(doc)
	if err != nil {
		return nil, err
	}
	return p.Build()
}

// Build constructs the stream described by the document.
func (p *Pipeline) Build() (*dataflow.Stream, error) {
	st, err := p.Source.stream()
	if err != nil {
		return nil, err
	}
	for i, op := range p.Ops {
		st, err = applyOp(st, op)
		if err != nil {
			return nil, dataflow.WrapErr(dataflow.KindInvalidArgument, err,
				fmt.Sprintf("building op %d", i))
		}
	}
	if st.Err() != nil {
		return nil, st.Err()
	}
	return st, nil
}

func (s *Source) stream() (*dataflow.Stream, error) {
	switch s.Type {
	case "lines":
		key := s.Key
		if key == "" {
			key = "line"
		}
		st := dataflow.StreamLineReader(s.Path, key)
		return st, st.Err()
	case "tar":
		opts := []dataflow.TarOption{dataflow.WithNested(s.Nested)}
		if s.NumThreads > 0 {
			opts = append(opts, dataflow.WithNumThreads(s.NumThreads))
		}
		buf := dataflow.FilesFromTar(s.Path, opts...)
		if buf.Err() != nil {
			return nil, buf.Err()
		}
		return buf.ToStream(), nil
	case "":
		return nil, dataflow.NewErr(dataflow.KindInvalidArgument, "pipeline description has no source type")
	default:
		return nil, dataflow.Errorf(dataflow.KindInvalidArgument,
			"unknown source type %q (want lines or tar)", s.Type)
	}
}

func applyOp(st *dataflow.Stream, op Op) (*dataflow.Stream, error) {
	switch op.Op {
	case "rename":
		return st.Rename(op.From, op.To), nil
	case "filter_key":
		return st.FilterKey(op.Key, op.Remove), nil
	case "slice":
		return st.Slice(op.Key, op.Dim, op.Start, op.End), nil
	case "random_slice":
		return st.RandomSlice(op.Key, op.Dim, op.Size, op.Seed...), nil
	case "replace":
		maxCount := -1
		if op.MaxCount != nil {
			maxCount = *op.MaxCount
		}
		return st.Replace(op.Key, op.Old, op.New, maxCount), nil
	case "squeeze":
		return st.Squeeze(op.Key), nil
	case "shape":
		outKey := op.OutKey
		if outKey == "" {
			outKey = op.Key + "_shape"
		}
		return st.Shape(op.Key, outKey), nil
	case "pad":
		return st.Pad(op.Key, op.Dim, op.LeftPad, op.RightPad, op.Value), nil
	case "line_reader_from_key":
		outKey := op.OutKey
		if outKey == "" {
			outKey = op.Key
		}
		return st.LineReaderFromKey(op.Key, outKey), nil
	case "batch":
		return st.Batch(op.N), nil
	case "dynamic_batch":
		var opts []dataflow.DynamicBatchOption
		if op.MinDataSize > 0 {
			opts = append(opts, dataflow.WithMinDataSize(op.MinDataSize))
		}
		if op.Value != 0 {
			opts = append(opts, dataflow.WithPadValue(op.Value))
		}
		return st.DynamicBatch(op.BufferSize, op.Key, op.MaxDataSize, opts...), nil
	case "sliding_window":
		return st.SlidingWindow(op.Key, op.Size, op.Stride), nil
	case "shuffle":
		return st.Shuffle(op.BufferSize, op.Seed...), nil
	case "repeat":
		return st.Repeat(op.N), nil
	case "prefetch":
		size, threads := prefetchDefaults(op)
		return st.Prefetch(size, threads), nil
	case "ordered_prefetch":
		size, threads := prefetchDefaults(op)
		return st.OrderedPrefetch(size, threads), nil
	case "":
		return nil, dataflow.NewErr(dataflow.KindInvalidArgument, "operator entry has no op name")
	default:
		return nil, unknownOpErr(op.Op)
	}
}

func prefetchDefaults(op Op) (size, threads int) {
	size = op.Size
	if size == 0 {
		size = helpers.GetIntFromEnv("DATAFLOW_PREFETCH_SIZE", 16)
	}
	threads = op.Threads
	if threads == 0 {
		threads = helpers.GetIntFromEnv("DATAFLOW_NUM_THREADS", 4)
	}
	return size, threads
}

// unknownOpErr builds the error for an unknown operator name, with a fuzzy
// "did you mean" suggestion when one is close enough.
func unknownOpErr(name string) error {
	msg := fmt.Sprintf("unknown operator %q", name)
	if suggestion, err := edlib.FuzzySearch(strings.ToLower(name), knownOps, edlib.Levenshtein); err == nil && suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	return dataflow.NewErr(dataflow.KindInvalidArgument, msg)
}
