// Package producer drives a byte source and a parser into an ordered,
// cancellable sequence of stream items.
//
// Consumers pull entries with Next. Every sequence ends with exactly one
// ItemDone entry, after which Next returns io.EOF. A failure (cancellation,
// transport, parser) is returned as a *producer.Error and also ends the
// sequence.
package producer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/parser"
	"github.com/pithecene-io/sluice/source"
)

// ItemKind discriminates a StreamItem.
type ItemKind int

const (
	// ItemMessage carries one parser yield.
	ItemMessage ItemKind = iota
	// ItemSkipped reports bytes dropped as garbage by the parser or transport.
	ItemSkipped
	// ItemIncomplete reports trailing bytes that never formed a message.
	ItemIncomplete
	// ItemDone is terminal.
	ItemDone
)

func (k ItemKind) String() string {
	switch k {
	case ItemMessage:
		return "message"
	case ItemSkipped:
		return "skipped"
	case ItemIncomplete:
		return "incomplete"
	case ItemDone:
		return "done"
	default:
		return fmt.Sprintf("ItemKind(%d)", int(k))
	}
}

// StreamItem is one element of a producer sequence. Yield is set only for
// ItemMessage.
type StreamItem[T parser.LogMessage] struct {
	Kind  ItemKind
	Yield parser.ParseYield[T]
}

// Entry pairs an item with the stream byte offset reached once the item was
// produced (consumed bytes plus transport-skipped bytes).
type Entry[T parser.LogMessage] struct {
	Offset int
	Item   StreamItem[T]
}

// Stream is a pull-based sequence of entries.
type Stream[T parser.LogMessage] interface {
	// Next returns the next entry, io.EOF once the sequence has ended, or
	// a *producer.Error.
	Next(ctx context.Context) (Entry[T], error)
}

// ErrorKind classifies producer failures.
type ErrorKind int

const (
	// ErrorCanceled indicates a cooperative stop.
	ErrorCanceled ErrorKind = iota
	// ErrorParse indicates a fatal parser error.
	ErrorParse
	// ErrorSource indicates an unrecoverable transport error.
	ErrorSource
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorCanceled:
		return "canceled"
	case ErrorParse:
		return "parse"
	case ErrorSource:
		return "source"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is a terminal producer failure.
type Error struct {
	Kind ErrorKind
	// Offset is the stream offset reached when the failure occurred.
	Offset int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("producer %s error at offset %d: %v", e.Kind, e.Offset, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func isKind(err error, kind ErrorKind) bool {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Kind == kind
	}
	return false
}

// IsCanceled returns true if err is a producer cancellation.
func IsCanceled(err error) bool { return isKind(err, ErrorCanceled) }

// IsParse returns true if err is a producer parse failure.
func IsParse(err error) bool { return isKind(err, ErrorParse) }

// IsSource returns true if err is a producer transport failure.
func IsSource(err error) bool { return isKind(err, ErrorSource) }

type options struct {
	filter    *source.Filter
	logger    *log.Logger
	collector *metrics.Collector
}

// Option configures a MessageProducer.
type Option func(*options)

// WithFilter passes a transport filter to every reload.
func WithFilter(f *source.Filter) Option {
	return func(o *options) { o.filter = f }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l.With("producer") }
}

// WithCollector records reloads and items into c.
func WithCollector(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// MessageProducer is a single-use Stream over one source and one parser.
// It is not safe for concurrent use.
type MessageProducer[T parser.LogMessage] struct {
	parser parser.Parser[T]
	source source.ByteSource
	opts   options

	offset  int
	lastTs  *int64
	stalled int
	done    bool
}

// New creates a producer.
func New[T parser.LogMessage](p parser.Parser[T], s source.ByteSource, opts ...Option) *MessageProducer[T] {
	o := options{logger: log.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &MessageProducer[T]{
		parser:  p,
		source:  s,
		opts:    o,
		stalled: -1,
	}
}

// Offset returns the stream offset reached so far.
func (p *MessageProducer[T]) Offset() int { return p.offset }

// Next implements Stream.
func (p *MessageProducer[T]) Next(ctx context.Context) (Entry[T], error) {
	if p.done {
		return Entry[T]{}, io.EOF
	}

	for {
		if err := ctx.Err(); err != nil {
			return p.fail(ErrorCanceled, err)
		}

		// Re-parse only when the buffer changed since the parser last asked
		// for more data.
		if n := p.source.Len(); n > 0 && n != p.stalled {
			consumed, yield, err := p.parser.Parse(p.source.CurrentSlice(), p.lastTs)
			switch {
			case errors.Is(err, parser.ErrNeedMoreData):
				p.stalled = n
			case err != nil:
				p.opts.collector.IncParseFailures()
				return p.fail(ErrorParse, err)
			case consumed > 0:
				return p.emitParsed(consumed, yield), nil
			default:
				p.stalled = n
			}
		}

		if err := ctx.Err(); err != nil {
			return p.fail(ErrorCanceled, err)
		}

		info, err := p.source.Reload(ctx, p.opts.filter)
		if err != nil {
			if ctx.Err() != nil {
				return p.fail(ErrorCanceled, ctx.Err())
			}
			p.opts.collector.IncSourceErrors()
			return p.fail(ErrorSource, err)
		}
		if info == nil {
			return p.exhausted()
		}

		p.opts.collector.ObserveReload(info.NewlyLoadedBytes, info.SkippedBytes)
		if info.LastKnownTimestamp != nil {
			p.lastTs = info.LastKnownTimestamp
		}
		if info.SkippedBytes > 0 {
			p.offset += info.SkippedBytes
			p.opts.collector.IncItemsSkipped()
			return p.entry(ItemSkipped, nil), nil
		}
	}
}

func (p *MessageProducer[T]) emitParsed(n int, yield *parser.ParseYield[T]) Entry[T] {
	p.source.Consume(n)
	p.offset += n
	p.stalled = -1

	if yield == nil {
		p.opts.collector.IncItemsSkipped()
		return p.entry(ItemSkipped, nil)
	}
	p.opts.collector.IncItemsProduced()
	return p.entry(ItemMessage, yield)
}

// exhausted handles a source that will never deliver more bytes.
func (p *MessageProducer[T]) exhausted() (Entry[T], error) {
	remaining := p.source.Len()
	if remaining == 0 {
		p.done = true
		p.opts.logger.Debug("stream done", map[string]any{"offset": p.offset})
		return p.entry(ItemDone, nil), nil
	}

	if f, ok := p.parser.(parser.Finalizer[T]); ok {
		consumed, yield, err := f.Finalize(p.source.CurrentSlice())
		if err != nil {
			p.opts.collector.IncParseFailures()
			return p.fail(ErrorParse, err)
		}
		if consumed > 0 {
			return p.emitParsed(consumed, yield), nil
		}
	}

	p.source.Consume(remaining)
	p.offset += remaining
	p.stalled = -1
	p.opts.collector.IncItemsIncomplete()
	p.opts.logger.Warn("trailing bytes did not form a message", map[string]any{
		"bytes":  remaining,
		"offset": p.offset,
	})
	return p.entry(ItemIncomplete, nil), nil
}

func (p *MessageProducer[T]) entry(kind ItemKind, yield *parser.ParseYield[T]) Entry[T] {
	e := Entry[T]{Offset: p.offset, Item: StreamItem[T]{Kind: kind}}
	if yield != nil {
		e.Item.Yield = *yield
	}
	return e
}

func (p *MessageProducer[T]) fail(kind ErrorKind, err error) (Entry[T], error) {
	p.done = true
	if kind != ErrorCanceled {
		p.opts.logger.Error("producer failed", map[string]any{
			"kind":   kind.String(),
			"offset": p.offset,
			"error":  err.Error(),
		})
	}
	return Entry[T]{}, &Error{Kind: kind, Offset: p.offset, Err: err}
}
