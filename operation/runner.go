// Package operation runs export and extract operations end to end.
//
// A Runner opens the requested byte sources, builds one message producer
// per source with the requested parser, concatenates them and hands the
// stream to the export or extraction engine. When configured it publishes
// the result to a Lode store and notifies downstream adapters.
package operation

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/sluice/adapter"
	"github.com/pithecene-io/sluice/export"
	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/lode"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/parser"
	"github.com/pithecene-io/sluice/parser/frame"
	"github.com/pithecene-io/sluice/parser/text"
	"github.com/pithecene-io/sluice/producer"
	"github.com/pithecene-io/sluice/search"
	"github.com/pithecene-io/sluice/section"
	"github.com/pithecene-io/sluice/source"
	"github.com/pithecene-io/sluice/types"
)

// finishTimeout bounds summary and notification delivery after the
// operation context is gone.
const finishTimeout = 30 * time.Second

// ParserKind names a message parser.
type ParserKind string

const (
	// ParserText splits the stream into newline-terminated lines.
	ParserText ParserKind = "text"
	// ParserFrame decodes length-prefixed msgpack records.
	ParserFrame ParserKind = "frame"
)

// ExportRequest configures one export.
type ExportRequest struct {
	Session     string
	Sources     []SourceSpec
	Parser      ParserKind
	Destination string
	Sections    []section.IndexSection
	// ReadToEnd, with sections and several sources, selects from the first
	// source only and counts the messages of the remaining sources without
	// writing them. The drain count is then the export's Count.
	ReadToEnd bool
	// Text appends a newline after every written message.
	Text bool
	// MaxLineLength bounds text lines. Zero means unbounded.
	MaxLineLength int
	// Buffer, when positive, decouples parsing from writing through a
	// channel of that many entries.
	Buffer int
}

// ExtractRequest configures one extraction.
type ExtractRequest struct {
	Session       string
	Sources       []SourceSpec
	Parser        ParserKind
	Filters       []search.Filter
	MaxLineLength int
	Buffer        int
}

// ExportResult describes a finished export.
type ExportResult struct {
	Meta    *types.OperationMeta
	Outcome types.Outcome
	// Count is the engine return value (see export.Raw).
	Count int
	// Stats is nil when the export failed.
	Stats        *export.Result
	ArtifactPath string
	Metrics      metrics.Snapshot
	Duration     time.Duration
}

// ExtractResult describes a finished extraction.
type ExtractResult struct {
	Meta     *types.OperationMeta
	Outcome  types.Outcome
	Matches  []search.ExtractedMatchValue
	Metrics  metrics.Snapshot
	Duration time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithPublisher publishes artifacts, matches and summaries to p.
func WithPublisher(p lode.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithAdapter sends completion notifications to a.
// Repeated use notifies every adapter.
func WithAdapter(a adapter.Adapter) Option {
	return func(r *Runner) {
		switch cur := r.adapter.(type) {
		case nil:
			r.adapter = a
		case adapter.Multi:
			r.adapter = append(cur, a)
		default:
			r.adapter = adapter.Multi{cur, a}
		}
	}
}

// WithLogOutput sets where operation logs go and the minimum level.
func WithLogOutput(w io.Writer, level string) Option {
	return func(r *Runner) { r.logOutput, r.logLevel = w, level }
}

// WithSourceName sets the source name carried by notifications.
func WithSourceName(name string) Option {
	return func(r *Runner) { r.sourceName = name }
}

// WithIDFunc overrides operation ID generation.
func WithIDFunc(fn func() string) Option {
	return func(r *Runner) { r.newID = fn }
}

// Runner executes operations. It is safe for concurrent use; exports to
// the same destination are serialized.
type Runner struct {
	publisher  lode.Publisher
	adapter    adapter.Adapter
	logOutput  io.Writer
	logLevel   string
	sourceName string
	newID      func() string
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*destinationLock
}

// NewRunner creates a runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logOutput:  os.Stderr,
		logLevel:   "info",
		sourceName: "local",
		newID:      uuid.NewString,
		now:        time.Now,
		locks:      make(map[string]*destinationLock),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// operation is the per-invocation state shared by Export and Extract.
type operation struct {
	meta      *types.OperationMeta
	logger    *log.Logger
	collector *metrics.Collector
	publisher lode.Publisher
	started   time.Time
}

func (r *Runner) begin(kind types.OperationKind, session string, pk ParserKind, specs []SourceSpec) *operation {
	started := r.now()
	meta := &types.OperationMeta{ID: r.newID(), Kind: kind, Session: session, StartedAt: started}
	op := &operation{
		meta:      meta,
		logger:    log.NewLoggerWithLevel(meta, r.logOutput, r.logLevel),
		collector: metrics.NewCollector(string(kind), string(pk), sourceKindLabel(specs), meta.ID),
		started:   started,
	}
	if r.publisher != nil {
		op.publisher = lode.NewInstrumentedPublisher(r.publisher, op.collector)
	}
	op.collector.IncOperationStarted()
	op.logger.Info("operation started", map[string]any{
		"parser":  string(pk),
		"sources": len(specs),
	})
	return op
}

// Export runs an export. The returned result is never nil; the error is
// the one the outcome was derived from.
func (r *Runner) Export(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	if req.Parser == "" {
		req.Parser = ParserText
	}
	op := r.begin(types.OperationExport, req.Session, req.Parser, req.Sources)
	res := &ExportResult{Meta: op.meta}

	err := r.export(ctx, op, req, res)
	if err == nil && op.publisher != nil {
		res.ArtifactPath, err = publishArtifact(ctx, op, req.Destination)
	}

	res.Outcome = DetermineOutcome(err)
	summary := lode.Summary{
		Meta:         op.meta,
		Outcome:      res.Outcome,
		Count:        res.Count,
		Destination:  req.Destination,
		ArtifactPath: res.ArtifactPath,
	}
	event := r.event(op, res.Outcome)
	event.Count = res.Count
	event.Destination = req.Destination
	event.StoragePath = res.ArtifactPath
	if res.Stats != nil {
		summary.Digest = res.Stats.Digest
		event.BytesWritten = res.Stats.Bytes
		event.Digest = fmt.Sprintf("%016x", res.Stats.Digest)
	}

	res.Metrics, res.Duration = r.finish(ctx, op, summary, event)
	return res, err
}

func (r *Runner) export(ctx context.Context, op *operation, req ExportRequest, res *ExportResult) error {
	if req.Destination == "" {
		return invalidf("destination path is empty")
	}
	if err := section.Validate(req.Sections); err != nil {
		return invalidf("%v", err)
	}

	unlock := r.lockDestination(req.Destination)
	defer unlock()

	sources, filters, closers, err := openAll(ctx, req.Sources)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(closers)

	popts := []producer.Option{producer.WithLogger(op.logger), producer.WithCollector(op.collector)}
	eopts := []export.Option{export.WithLogger(op.logger), export.WithCollector(op.collector)}
	drainTail := req.ReadToEnd && len(req.Sections) > 0

	var stats *export.Result
	switch req.Parser {
	case ParserText:
		tok := &text.Tokenizer{MaxLineLength: req.MaxLineLength}
		s, stop := buildStream(ctx, sources, filters, func() parser.Parser[text.Line] { return tok }, req.Buffer, drainTail, popts)
		defer stop()
		stats, err = export.RawWithStats(ctx, s, req.Destination, req.Sections, req.ReadToEnd, req.Text, eopts...)
	case ParserFrame:
		s, stop := buildStream(ctx, sources, filters, func() parser.Parser[*frame.Record] { return frame.NewParser() }, req.Buffer, drainTail, popts)
		defer stop()
		stats, err = export.RawWithStats(ctx, s, req.Destination, req.Sections, req.ReadToEnd, req.Text, eopts...)
	default:
		return invalidf("unknown parser %q", req.Parser)
	}
	if err != nil {
		return err
	}
	res.Stats = stats
	res.Count = stats.Count
	return nil
}

// Extract runs an extraction. The returned result is never nil.
func (r *Runner) Extract(ctx context.Context, req ExtractRequest) (*ExtractResult, error) {
	if req.Parser == "" {
		req.Parser = ParserText
	}
	op := r.begin(types.OperationExtract, req.Session, req.Parser, req.Sources)
	res := &ExtractResult{Meta: op.meta}

	err := r.extract(ctx, op, req, res)
	if err == nil && op.publisher != nil {
		err = op.publisher.WriteMatches(ctx, op.meta, res.Matches)
	}

	res.Outcome = DetermineOutcome(err)
	event := r.event(op, res.Outcome)
	event.Count = len(res.Matches)
	summary := lode.Summary{Meta: op.meta, Outcome: res.Outcome, Count: len(res.Matches)}

	res.Metrics, res.Duration = r.finish(ctx, op, summary, event)
	return res, err
}

func (r *Runner) extract(ctx context.Context, op *operation, req ExtractRequest, res *ExtractResult) error {
	x, err := search.NewExtractor(req.Filters, search.WithLogger(op.logger), search.WithCollector(op.collector))
	if err != nil {
		return err
	}

	sources, filters, closers, err := openAll(ctx, req.Sources)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(closers)

	popts := []producer.Option{producer.WithLogger(op.logger), producer.WithCollector(op.collector)}

	switch req.Parser {
	case ParserText:
		tok := &text.Tokenizer{MaxLineLength: req.MaxLineLength}
		s, stop := buildStream(ctx, sources, filters, func() parser.Parser[text.Line] { return tok }, req.Buffer, false, popts)
		defer stop()
		res.Matches, err = search.Extract(ctx, x, s)
	case ParserFrame:
		s, stop := buildStream(ctx, sources, filters, func() parser.Parser[*frame.Record] { return frame.NewParser() }, req.Buffer, false, popts)
		defer stop()
		res.Matches, err = search.Extract(ctx, x, s)
	default:
		return invalidf("unknown parser %q", req.Parser)
	}
	return err
}

// buildStream creates one producer per source and joins them. Normally the
// sources read as one stream with a single final Done. With drainTail the
// first source ends in its own Done and the rest follow as one stream, which
// is what an export with read_to_end drains.
//
// The returned stop must run before the sources are closed: it halts the
// buffering goroutine, if any, and waits for it.
func buildStream[T parser.LogMessage](
	ctx context.Context,
	sources []openedSource,
	filters []*source.Filter,
	newParser func() parser.Parser[T],
	buffer int,
	drainTail bool,
	opts []producer.Option,
) (producer.Stream[T], func()) {
	streams := make([]producer.Stream[T], len(sources))
	for i, src := range sources {
		o := append([]producer.Option{producer.WithFilter(filters[i])}, opts...)
		streams[i] = producer.New(newParser(), src, o...)
	}

	var s producer.Stream[T]
	switch {
	case len(streams) == 1:
		s = streams[0]
	case drainTail:
		s = producer.Chain(streams[0], producer.Concat(streams[1:]...))
	default:
		s = producer.Concat(streams...)
	}
	if buffer > 0 {
		b := producer.Buffered(ctx, s, buffer)
		return b, b.Stop
	}
	return s, func() {}
}

func publishArtifact(ctx context.Context, op *operation, destination string) (string, error) {
	f, err := os.Open(destination)
	if err != nil {
		return "", fmt.Errorf("reopen destination for upload: %w", err)
	}
	defer iox.DiscardClose(f)

	path, err := op.publisher.PutArtifact(ctx, op.meta, filepath.Base(destination), f)
	if err != nil {
		return "", fmt.Errorf("upload destination: %w", err)
	}
	op.logger.Info("artifact published", map[string]any{"path": path})
	return path, nil
}

func (r *Runner) event(op *operation, outcome types.Outcome) *adapter.OperationCompletedEvent {
	return &adapter.OperationCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       adapter.EventTypeOperationCompleted,
		OperationID:     op.meta.ID,
		Kind:            string(op.meta.Kind),
		Session:         op.meta.Session,
		Source:          r.sourceName,
		Outcome:         string(outcome.Status),
		Message:         outcome.Message,
	}
}

// finish records the terminal counters, writes the summary and sends the
// notification. Delivery failures are logged, never returned: the outcome
// is already decided.
func (r *Runner) finish(ctx context.Context, op *operation, summary lode.Summary, event *adapter.OperationCompletedEvent) (metrics.Snapshot, time.Duration) {
	switch summary.Outcome.Status {
	case types.OutcomeSuccess:
		op.collector.IncOperationCompleted()
	case types.OutcomeCanceled:
		op.collector.IncOperationCanceled()
	default:
		op.collector.IncOperationFailed()
	}

	completed := r.now()
	duration := completed.Sub(op.started)

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if op.publisher != nil {
		summary.Metrics = op.collector.Snapshot()
		summary.CompletedAt = completed
		if err := op.publisher.WriteSummary(finishCtx, summary); err != nil {
			op.logger.Warn("summary write failed", map[string]any{"error": err.Error()})
		}
	}

	if r.adapter != nil {
		event.Timestamp = completed.UTC().Format(time.RFC3339)
		event.DurationMs = duration.Milliseconds()
		if err := r.adapter.Publish(finishCtx, event); err != nil {
			op.logger.Warn("notification failed", map[string]any{"error": err.Error()})
		}
	}

	op.logger.Info("operation finished", map[string]any{
		"outcome":  string(summary.Outcome.Status),
		"count":    summary.Count,
		"duration": duration.String(),
	})
	return op.collector.Snapshot(), duration
}

// destinationLock is a per-path mutex shared by the exports waiting on it.
type destinationLock struct {
	sync.Mutex
	refs int
}

// lockDestination serializes exports writing to the same file. The entry is
// dropped once the last holder unlocks.
func (r *Runner) lockDestination(path string) func() {
	key, err := filepath.Abs(path)
	if err != nil {
		key = filepath.Clean(path)
	}

	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &destinationLock{}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, key)
		}
		r.mu.Unlock()
	}
}
