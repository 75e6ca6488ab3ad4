package lode

import (
	"context"
	"io"

	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/search"
	"github.com/pithecene-io/sluice/types"
)

// InstrumentedPublisher wraps a Publisher and records storage write
// metrics. Each write call increments the storage success or failure
// counter on the operation's collector.
type InstrumentedPublisher struct {
	inner     Publisher
	collector *metrics.Collector
}

// NewInstrumentedPublisher wraps a publisher with metrics instrumentation.
func NewInstrumentedPublisher(inner Publisher, collector *metrics.Collector) *InstrumentedPublisher {
	return &InstrumentedPublisher{inner: inner, collector: collector}
}

func (p *InstrumentedPublisher) record(err error) {
	if err != nil {
		p.collector.IncStorageWriteFailure()
	} else {
		p.collector.IncStorageWriteSuccess()
	}
}

// PutArtifact delegates to the inner publisher and records success or failure.
func (p *InstrumentedPublisher) PutArtifact(ctx context.Context, meta *types.OperationMeta, name string, r io.Reader) (string, error) {
	path, err := p.inner.PutArtifact(ctx, meta, name, r)
	p.record(err)
	return path, err
}

// WriteMatches delegates to the inner publisher and records success or failure.
func (p *InstrumentedPublisher) WriteMatches(ctx context.Context, meta *types.OperationMeta, matches []search.ExtractedMatchValue) error {
	err := p.inner.WriteMatches(ctx, meta, matches)
	p.record(err)
	return err
}

// WriteSummary delegates to the inner publisher and records success or failure.
func (p *InstrumentedPublisher) WriteSummary(ctx context.Context, s Summary) error {
	err := p.inner.WriteSummary(ctx, s)
	p.record(err)
	return err
}

// Close delegates to the inner publisher.
func (p *InstrumentedPublisher) Close() error {
	return p.inner.Close()
}

// Verify InstrumentedPublisher implements Publisher.
var _ Publisher = (*InstrumentedPublisher)(nil)
