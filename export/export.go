// Package export writes selected messages of a stream to a destination file.
package export

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/parser"
	"github.com/pithecene-io/sluice/producer"
	"github.com/pithecene-io/sluice/section"
)

// Result describes a completed export.
type Result struct {
	// Count is the value Raw returns: Written when no sections were given,
	// Drained otherwise.
	Count int
	// Written is the number of messages written to the destination.
	Written int
	// Observed is the number of message items seen before the first Done.
	Observed int
	// Drained is the number of message items counted after Done when
	// readToEnd was set.
	Drained int
	// Bytes is the number of bytes appended to the destination.
	Bytes int64
	// Digest is the xxhash64 of the appended bytes.
	Digest uint64
}

type options struct {
	logger    *log.Logger
	collector *metrics.Collector
}

// Option configures an export call.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l.With("export") }
}

// WithCollector records written and drained messages into c.
func WithCollector(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// Raw appends messages from s to destination, creating it if needed.
//
// With no sections every writable message up to the first Done is written
// and the written count is returned. With sections, a message is written
// only while its index falls in a section; after Done, if readToEnd is set,
// the stream is drained (counted, not written) up to the next Done or its
// end. In that mode the return value is the drain count, which reports
// stream position rather than export volume, and is zero when readToEnd is
// false. Use RawWithStats to get the written count as well.
//
// In text mode every written message is followed by '\n'. Sections are
// validated before the destination is opened. On cancellation or failure,
// bytes already written stay in the destination.
func Raw[T parser.LogMessage](
	ctx context.Context,
	s producer.Stream[T],
	destination string,
	sections []section.IndexSection,
	readToEnd, textFile bool,
	opts ...Option,
) (int, error) {
	res, err := RawWithStats(ctx, s, destination, sections, readToEnd, textFile, opts...)
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// RawWithStats is Raw with the full Result.
func RawWithStats[T parser.LogMessage](
	ctx context.Context,
	s producer.Stream[T],
	destination string,
	sections []section.IndexSection,
	readToEnd, textFile bool,
	opts ...Option,
) (*Result, error) {
	o := options{logger: log.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	if destination == "" {
		return nil, &Error{Kind: ErrorConfig, Msg: "destination path is empty"}
	}
	if err := section.Validate(sections); err != nil {
		return nil, &Error{Kind: ErrorConfig, Msg: "invalid sections", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: ErrorCanceled, Msg: "canceled before start", Err: err}
	}

	f, err := os.OpenFile(destination, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &Error{Kind: ErrorIO, Msg: "could not open destination", Err: err}
	}

	hasher := xxhash.New()
	buffered := bufio.NewWriter(f)
	sink := &iox.CountingWriter{W: io.MultiWriter(buffered, hasher)}

	e := &exporter[T]{
		ctx:      ctx,
		stream:   s,
		sink:     sink,
		textFile: textFile,
		opts:     o,
	}

	o.logger.Debug("export started", map[string]any{
		"destination": destination,
		"sections":    len(sections),
		"read_to_end": readToEnd,
		"text":        textFile,
	})

	runErr := e.run(sections, readToEnd)

	// Partial output is kept: flush even on failure.
	if err := buffered.Flush(); err != nil && runErr == nil {
		runErr = &Error{Kind: ErrorIO, Msg: "could not flush destination", Err: err}
	}
	if err := f.Close(); err != nil && runErr == nil {
		runErr = &Error{Kind: ErrorIO, Msg: "could not close destination", Err: err}
	}

	o.collector.AddMessagesWritten(e.res.Written)
	o.collector.AddMessagesRead(e.res.Observed + e.res.Drained)

	if runErr != nil {
		o.logger.Warn("export stopped", map[string]any{
			"destination": destination,
			"written":     e.res.Written,
			"error":       runErr.Error(),
		})
		return nil, runErr
	}

	res := e.res
	res.Bytes = sink.N
	res.Digest = hasher.Sum64()
	if len(sections) == 0 {
		res.Count = res.Written
	} else {
		res.Count = res.Drained
	}

	o.logger.Info("export finished", map[string]any{
		"destination": destination,
		"written":     res.Written,
		"observed":    res.Observed,
		"drained":     res.Drained,
		"bytes":       res.Bytes,
	})
	return &res, nil
}

type exporter[T parser.LogMessage] struct {
	ctx      context.Context
	stream   producer.Stream[T]
	sink     io.Writer
	textFile bool
	opts     options
	res      Result
}

func (e *exporter[T]) run(sections []section.IndexSection, readToEnd bool) error {
	var tracker *section.Tracker
	if len(sections) > 0 {
		tracker = section.NewTracker(sections)
	}

	for {
		entry, ended, err := e.next()
		if err != nil {
			return err
		}
		if ended || entry.Item.Kind == producer.ItemDone {
			break
		}
		if entry.Item.Kind != producer.ItemMessage {
			continue
		}

		e.res.Observed++
		if tracker == nil || tracker.Inside() {
			if err := e.write(entry.Item.Yield); err != nil {
				return err
			}
		}
		if tracker != nil {
			tracker.Advance()
		}
	}

	if tracker == nil || !readToEnd {
		return nil
	}

	for {
		entry, ended, err := e.next()
		if err != nil {
			return err
		}
		if ended || entry.Item.Kind == producer.ItemDone {
			return nil
		}
		if entry.Item.Kind == producer.ItemMessage {
			e.res.Drained++
		}
	}
}

// next pulls one entry. ended is true when the stream has no more entries.
// Cancellation is reported in preference to any other failure.
func (e *exporter[T]) next() (producer.Entry[T], bool, error) {
	if err := e.ctx.Err(); err != nil {
		return producer.Entry[T]{}, false, &Error{Kind: ErrorCanceled, Msg: "export canceled", Err: err}
	}

	entry, err := e.stream.Next(e.ctx)
	if ctxErr := e.ctx.Err(); ctxErr != nil {
		return producer.Entry[T]{}, false, &Error{Kind: ErrorCanceled, Msg: "export canceled", Err: ctxErr}
	}
	switch {
	case err == nil:
		return entry, false, nil
	case errors.Is(err, io.EOF):
		return entry, true, nil
	case producer.IsCanceled(err):
		return entry, false, &Error{Kind: ErrorCanceled, Msg: "export canceled", Err: err}
	case producer.IsParse(err):
		return entry, false, &Error{Kind: ErrorParse, Msg: "stream parse failure", Err: err}
	default:
		return entry, false, &Error{Kind: ErrorIO, Msg: "stream read failure", Err: err}
	}
}

func (e *exporter[T]) write(y parser.ParseYield[T]) error {
	if !y.Writable() {
		return nil
	}
	if _, err := y.Message.WriteTo(e.sink); err != nil {
		return e.writeErr(err)
	}
	if e.textFile {
		if _, err := io.WriteString(e.sink, "\n"); err != nil {
			return e.writeErr(err)
		}
	}
	e.res.Written++
	return nil
}

func (e *exporter[T]) writeErr(err error) error {
	if ctxErr := e.ctx.Err(); ctxErr != nil {
		return &Error{Kind: ErrorCanceled, Msg: "export canceled", Err: ctxErr}
	}
	return &Error{Kind: ErrorIO, Msg: "could not write message", Err: err}
}
