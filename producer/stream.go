package producer

import (
	"context"
	"errors"
	"io"

	"github.com/pithecene-io/sluice/parser"
)

// Chain joins streams end to end, forwarding every member's ItemDone.
// A consumer that stops at the first Done leaves the rest of the chain
// available to a later call. Offsets accumulate across members.
func Chain[T parser.LogMessage](streams ...Stream[T]) Stream[T] {
	return &chain[T]{streams: streams, forwardDone: true}
}

// Concat joins streams into one logical sequence with a single final
// ItemDone. Offsets accumulate across members.
func Concat[T parser.LogMessage](streams ...Stream[T]) Stream[T] {
	return &chain[T]{streams: streams}
}

type chain[T parser.LogMessage] struct {
	streams     []Stream[T]
	forwardDone bool
	base        int
	last        int
}

func (c *chain[T]) Next(ctx context.Context) (Entry[T], error) {
	for len(c.streams) > 0 {
		e, err := c.streams[0].Next(ctx)
		if errors.Is(err, io.EOF) {
			c.advance()
			continue
		}
		if err != nil {
			return Entry[T]{}, err
		}

		c.last = e.Offset
		e.Offset += c.base
		if e.Item.Kind != ItemDone {
			return e, nil
		}

		c.advance()
		if c.forwardDone || len(c.streams) == 0 {
			return e, nil
		}
	}
	return Entry[T]{}, io.EOF
}

func (c *chain[T]) advance() {
	c.streams = c.streams[1:]
	c.base += c.last
	c.last = 0
}

type result[T parser.LogMessage] struct {
	entry Entry[T]
	err   error
}

// Buffered runs s in its own goroutine, keeping up to size entries ahead of
// the consumer. The goroutine stops when s ends, ctx is done or Stop is
// called.
func Buffered[T parser.LogMessage](ctx context.Context, s Stream[T], size int) *BufferedStream[T] {
	ctx, cancel := context.WithCancel(ctx)
	b := &BufferedStream[T]{
		ch:     make(chan result[T], size),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go b.run(ctx, s)
	return b
}

// BufferedStream is the Stream returned by Buffered.
type BufferedStream[T parser.LogMessage] struct {
	ch     chan result[T]
	done   chan struct{}
	cancel context.CancelFunc
	final  error
}

// Stop cancels the reader goroutine and waits for it to return. After Stop
// the wrapped stream is no longer touched, so its sources may be closed.
// Stop is idempotent.
func (b *BufferedStream[T]) Stop() {
	b.cancel()
	<-b.done
}

func (b *BufferedStream[T]) run(ctx context.Context, s Stream[T]) {
	defer close(b.done)
	defer close(b.ch)
	for {
		e, err := s.Next(ctx)
		select {
		case b.ch <- result[T]{entry: e, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// Next implements Stream.
func (b *BufferedStream[T]) Next(ctx context.Context) (Entry[T], error) {
	if b.final != nil {
		return Entry[T]{}, b.final
	}
	select {
	case <-ctx.Done():
		return Entry[T]{}, &Error{Kind: ErrorCanceled, Err: ctx.Err()}
	case r, ok := <-b.ch:
		if !ok {
			b.final = &Error{Kind: ErrorCanceled, Err: context.Canceled}
			return Entry[T]{}, b.final
		}
		if r.err != nil {
			b.final = r.err
		}
		return r.entry, r.err
	}
}
