// Package metrics provides per-operation counters for the streaming pipeline.
//
// The Collector accumulates counters during a single export or extract
// operation. It is a leaf package with no internal dependencies so that
// sources, producers and engines can all record into the same instance.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Operation lifecycle
	OperationsStarted   int64
	OperationsCompleted int64
	OperationsFailed    int64
	OperationsCanceled  int64

	// Byte source
	Reloads       int64
	ZeroReloads   int64
	BytesLoaded   int64
	BytesSkipped  int64
	SourceErrors  int64
	ParseFailures int64

	// Producer
	ItemsProduced   int64
	ItemsSkipped    int64
	ItemsIncomplete int64

	// Engines
	MessagesWritten int64
	MessagesRead    int64
	Matches         int64

	// Storage
	StorageWriteSuccess int64
	StorageWriteFailure int64

	// Dimensions (informational, set at construction)
	Kind        string
	Parser      string
	SourceKind  string
	OperationID string
}

// Collector accumulates counters during a single operation.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe, so
// components can be handed a nil collector when metrics are not wanted.
type Collector struct {
	mu sync.Mutex

	s Snapshot
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(kind, parser, sourceKind, operationID string) *Collector {
	return &Collector{
		s: Snapshot{
			Kind:        kind,
			Parser:      parser,
			SourceKind:  sourceKind,
			OperationID: operationID,
		},
	}
}

func (c *Collector) add(fn func(s *Snapshot)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	fn(&c.s)
	c.mu.Unlock()
}

// --- Operation lifecycle ---

// IncOperationStarted records an accepted operation.
func (c *Collector) IncOperationStarted() { c.add(func(s *Snapshot) { s.OperationsStarted++ }) }

// IncOperationCompleted records an operation that consumed its stream to completion.
func (c *Collector) IncOperationCompleted() { c.add(func(s *Snapshot) { s.OperationsCompleted++ }) }

// IncOperationFailed records an operation that ended with a config, I/O or parse error.
func (c *Collector) IncOperationFailed() { c.add(func(s *Snapshot) { s.OperationsFailed++ }) }

// IncOperationCanceled records a cooperative stop.
func (c *Collector) IncOperationCanceled() { c.add(func(s *Snapshot) { s.OperationsCanceled++ }) }

// --- Byte source ---

// ObserveReload records one reload attempt. A reload that delivered no new
// bytes is counted as a zero reload (steady-state timeout on slow transports).
func (c *Collector) ObserveReload(loaded, skipped int) {
	c.add(func(s *Snapshot) {
		s.Reloads++
		if loaded == 0 && skipped == 0 {
			s.ZeroReloads++
		}
		s.BytesLoaded += int64(loaded)
		s.BytesSkipped += int64(skipped)
	})
}

// IncSourceErrors records an unrecoverable transport failure.
func (c *Collector) IncSourceErrors() { c.add(func(s *Snapshot) { s.SourceErrors++ }) }

// IncParseFailures records a fatal parser error.
func (c *Collector) IncParseFailures() { c.add(func(s *Snapshot) { s.ParseFailures++ }) }

// --- Producer ---

// IncItemsProduced records a message item emitted by a producer.
func (c *Collector) IncItemsProduced() { c.add(func(s *Snapshot) { s.ItemsProduced++ }) }

// IncItemsSkipped records a skipped item (garbage bytes).
func (c *Collector) IncItemsSkipped() { c.add(func(s *Snapshot) { s.ItemsSkipped++ }) }

// IncItemsIncomplete records trailing bytes that never formed a message.
func (c *Collector) IncItemsIncomplete() { c.add(func(s *Snapshot) { s.ItemsIncomplete++ }) }

// --- Engines ---

// AddMessagesWritten records messages persisted by the export engine.
func (c *Collector) AddMessagesWritten(n int) {
	c.add(func(s *Snapshot) { s.MessagesWritten += int64(n) })
}

// AddMessagesRead records messages observed without being written.
func (c *Collector) AddMessagesRead(n int) {
	c.add(func(s *Snapshot) { s.MessagesRead += int64(n) })
}

// AddMatches records messages that matched at least one search filter.
func (c *Collector) AddMatches(n int) {
	c.add(func(s *Snapshot) { s.Matches += int64(n) })
}

// --- Storage ---
// Storage counters are per-call, not per-record.

// IncStorageWriteSuccess records a successful storage write.
func (c *Collector) IncStorageWriteSuccess() { c.add(func(s *Snapshot) { s.StorageWriteSuccess++ }) }

// IncStorageWriteFailure records a failed storage write.
func (c *Collector) IncStorageWriteFailure() { c.add(func(s *Snapshot) { s.StorageWriteFailure++ }) }

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
