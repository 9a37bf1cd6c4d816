package gorilla

import (
	"github.com/gorillaseg/gorillaseg/block"
	"github.com/gorillaseg/gorillaseg/collector"
	"github.com/gorillaseg/gorillaseg/metrics"
	"github.com/gorillaseg/gorillaseg/segment"
)

// defaultSegmentSeconds is the window length (two hours at one-second
// granularity) readAndDedupe's buffer must match unless overridden.
const defaultSegmentSeconds = 7200

// FactoryOption configures a Factory at construction time.
type FactoryOption func(*Factory)

// WithLossy enables lossy (mantissa-truncated) value encoding for every
// encoder the factory produces.
func WithLossy(lossy bool) FactoryOption {
	return func(f *Factory) { f.lossy = lossy }
}

// WithSegmentSeconds overrides the window length ReadAndDedupe's buffer
// must match. The default is 7200 (a two-hour, one-second-granularity
// segment).
func WithSegmentSeconds(n int) FactoryOption {
	return func(f *Factory) { f.segmentSeconds = n }
}

// WithCollector injects a shared retirement queue. Without one,
// CollectSegment frees its argument immediately instead of deferring it.
func WithCollector(q *collector.Queue) FactoryOption {
	return func(f *Factory) { f.collector = q }
}

// WithMetricSink injects the sink CollectMetrics reports to. The default is
// metrics.Noop.
func WithMetricSink(sink metrics.Sink) FactoryOption {
	return func(f *Factory) { f.sink = sink }
}

// Factory constructs Encoders bound to a shared allocator, lossy-mode
// setting, retirement queue, and metric sink — the same four collaborators
// the original system's segment-encoder factory wired together.
type Factory struct {
	alloc          *block.Allocator
	lossy          bool
	segmentSeconds int
	collector      *collector.Queue
	sink           metrics.Sink
}

// NewFactory creates a Factory that allocates segments from alloc.
func NewFactory(alloc *block.Allocator, opts ...FactoryOption) *Factory {
	f := &Factory{
		alloc:          alloc,
		segmentSeconds: defaultSegmentSeconds,
		sink:           metrics.Noop,
	}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Create allocates a new segment for segmentTime and returns an Encoder
// bound to it.
func (f *Factory) Create(segmentTime int32) (*Encoder, error) {
	seg, err := segment.CreateSegment(f.alloc, segmentTime)
	if err != nil {
		return nil, err
	}

	return f.wrap(seg), nil
}

// Open binds a new Encoder to a previously created segment, restoring its
// cursor and dirty/out-of-order flags from the header.
func (f *Factory) Open(addr block.Address) (*Encoder, error) {
	seg, err := segment.OpenSegment(f.alloc, addr)
	if err != nil {
		return nil, err
	}

	return f.wrap(seg), nil
}

func (f *Factory) wrap(seg *segment.Segment) *Encoder {
	return &Encoder{
		alloc:          f.alloc,
		seg:            seg,
		lossy:          f.lossy,
		segmentSeconds: f.segmentSeconds,
		collector:      f.collector,
		sink:           f.sink,
	}
}
