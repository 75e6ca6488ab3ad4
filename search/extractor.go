package search

import (
	"context"
	"errors"
	"io"
	"regexp"

	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/parser"
	"github.com/pithecene-io/sluice/parser/text"
	"github.com/pithecene-io/sluice/producer"
	"github.com/pithecene-io/sluice/section"
	"github.com/pithecene-io/sluice/source"
)

// FilterMatches holds the values one filter extracted from one message.
type FilterMatches struct {
	// Filter is the position of the filter in the extractor's list.
	Filter int      `json:"filter" msgpack:"filter"`
	Values []string `json:"values" msgpack:"values"`
}

// ExtractedMatchValue is every match found in one message.
type ExtractedMatchValue struct {
	// Index is the message ordinal in the stream.
	Index  int             `json:"index" msgpack:"index"`
	Values []FilterMatches `json:"values" msgpack:"values"`
}

type options struct {
	logger    *log.Logger
	collector *metrics.Collector
}

// Option configures an Extractor.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l.With("search") }
}

// WithCollector records read messages and matches into c.
func WithCollector(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// Extractor applies a fixed list of compiled filters to messages.
// It is safe for concurrent use.
type Extractor struct {
	filters  []Filter
	compiled []*regexp.Regexp
	opts     options
}

// NewExtractor compiles filters. An empty list is a configuration error.
func NewExtractor(filters []Filter, opts ...Option) (*Extractor, error) {
	if len(filters) == 0 {
		return nil, &Error{Kind: ErrorConfig, Msg: "no filters given"}
	}

	o := options{logger: log.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	compiled := make([]*regexp.Regexp, len(filters))
	for i, f := range filters {
		re, err := f.Compile()
		if err != nil {
			return nil, err
		}
		compiled[i] = re
	}
	return &Extractor{filters: filters, compiled: compiled, opts: o}, nil
}

// Filters returns the filter list.
func (x *Extractor) Filters() []Filter { return x.filters }

// Match returns the values every filter extracts from s. A filter with
// capture groups contributes the non-empty groups of each match; a filter
// without groups contributes each whole match. Filters that do not match
// are omitted.
func (x *Extractor) Match(s string) []FilterMatches {
	var out []FilterMatches
	for i, re := range x.compiled {
		all := re.FindAllStringSubmatch(s, -1)
		if len(all) == 0 {
			continue
		}
		fm := FilterMatches{Filter: i}
		for _, m := range all {
			if len(m) == 1 {
				fm.Values = append(fm.Values, m[0])
				continue
			}
			for _, g := range m[1:] {
				if g != "" {
					fm.Values = append(fm.Values, g)
				}
			}
		}
		out = append(out, fm)
	}
	return out
}

// Extract consumes s up to its first Done and returns matches in stream
// order. Message ordinals count every message item, including those that
// carry no searchable message.
func Extract[T parser.LogMessage](ctx context.Context, x *Extractor, s producer.Stream[T]) ([]ExtractedMatchValue, error) {
	var (
		out   []ExtractedMatchValue
		index int
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Kind: ErrorCanceled, Msg: "search canceled", Err: err}
		}

		entry, err := s.Next(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Error{Kind: ErrorCanceled, Msg: "search canceled", Err: ctxErr}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, classify(err)
		}

		if entry.Item.Kind == producer.ItemDone {
			break
		}
		if entry.Item.Kind != producer.ItemMessage {
			continue
		}

		if y := entry.Item.Yield; y.Writable() {
			if matches := x.Match(y.Message.String()); len(matches) > 0 {
				out = append(out, ExtractedMatchValue{Index: index, Values: matches})
			}
		}
		index++
	}

	x.opts.collector.AddMessagesRead(index)
	x.opts.collector.AddMatches(len(out))
	x.opts.logger.Debug("search finished", map[string]any{
		"messages": index,
		"matches":  len(out),
	})
	return out, nil
}

// ExtractFile searches a text file, transparently decompressed.
func (x *Extractor) ExtractFile(ctx context.Context, path string) ([]ExtractedMatchValue, error) {
	src, err := source.OpenFile(path, 0)
	if err != nil {
		return nil, &Error{Kind: ErrorIO, Msg: "could not open target", Err: err}
	}
	defer iox.DiscardClose(src)

	p := producer.New[text.Line](text.New(), src,
		producer.WithLogger(x.opts.logger),
		producer.WithCollector(x.opts.collector),
	)
	return Extract(ctx, x, p)
}

func classify(err error) error {
	switch {
	case producer.IsCanceled(err):
		return &Error{Kind: ErrorCanceled, Msg: "search canceled", Err: err}
	case producer.IsParse(err):
		return &Error{Kind: ErrorParse, Msg: "stream parse failure", Err: err}
	default:
		return &Error{Kind: ErrorIO, Msg: "stream read failure", Err: err}
	}
}

// ToSections folds the matched message ordinals into a minimal sorted list
// of sections, merging consecutive indices. The result can be passed to
// export.Raw to export only matching messages.
func ToSections(matches []ExtractedMatchValue) []section.IndexSection {
	var out []section.IndexSection
	for _, m := range matches {
		if n := len(out); n > 0 && out[n-1].LastLine+1 >= m.Index {
			if m.Index > out[n-1].LastLine {
				out[n-1].LastLine = m.Index
			}
			continue
		}
		out = append(out, section.IndexSection{FirstLine: m.Index, LastLine: m.Index})
	}
	return out
}
