package operation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/sluice/adapter"
	"github.com/pithecene-io/sluice/lode"
	"github.com/pithecene-io/sluice/parser/frame"
	"github.com/pithecene-io/sluice/search"
	"github.com/pithecene-io/sluice/section"
	"github.com/pithecene-io/sluice/types"
)

type recordingAdapter struct {
	mu     sync.Mutex
	events []*adapter.OperationCompletedEvent
}

func (r *recordingAdapter) Publish(_ context.Context, e *adapter.OperationCompletedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAdapter) Close() error { return nil }

func (r *recordingAdapter) last(t *testing.T) *adapter.OperationCompletedEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		t.Fatal("no event published")
	}
	return r.events[len(r.events)-1]
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func fileSpec(path string) SourceSpec { return SourceSpec{Kind: SourceFile, Path: path} }

func newTestRunner(opts ...Option) *Runner {
	var ids atomic.Int32
	base := []Option{
		WithLogOutput(io.Discard, "debug"),
		WithIDFunc(func() string { return fmt.Sprintf("op-%d", ids.Add(1)) }),
	}
	return NewRunner(append(base, opts...)...)
}

func TestRunner_ExportConcatenatesSources(t *testing.T) {
	pub := lode.NewStubPublisher()
	notify := &recordingAdapter{}
	r := newTestRunner(WithPublisher(pub), WithAdapter(notify), WithSourceName("bench"))

	a := writeFile(t, "a.log", "a0\na1\n")
	b := writeFile(t, "b.log", "b0\nb1\nb2\n")
	dest := filepath.Join(t.TempDir(), "out.log")

	res, err := r.Export(t.Context(), ExportRequest{
		Sources:     []SourceSpec{fileSpec(a), fileSpec(b)},
		Destination: dest,
		Sections:    []section.IndexSection{{FirstLine: 1, LastLine: 3}},
		Text:        true,
	})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	got, _ := os.ReadFile(dest)
	if string(got) != "a1\nb0\nb1\n" {
		t.Errorf("destination = %q", got)
	}
	if res.Outcome.Status != types.OutcomeSuccess || res.Stats.Written != 3 {
		t.Errorf("outcome = %+v, written = %d", res.Outcome, res.Stats.Written)
	}
	if res.Meta.ID != "op-1" || res.Meta.Kind != types.OperationExport {
		t.Errorf("meta = %+v", res.Meta)
	}

	if string(pub.Artifacts["out.log"]) != "a1\nb0\nb1\n" {
		t.Errorf("artifact = %q", pub.Artifacts["out.log"])
	}
	if len(pub.Summaries) != 1 || pub.Summaries[0].Digest != res.Stats.Digest {
		t.Errorf("summaries = %+v", pub.Summaries)
	}
	if res.Metrics.StorageWriteSuccess != 2 || res.Metrics.OperationsCompleted != 1 {
		t.Errorf("metrics = %+v", res.Metrics)
	}
	if res.Metrics.SourceKind != "file" || res.Metrics.Parser != "text" {
		t.Errorf("dimensions = %q, %q", res.Metrics.SourceKind, res.Metrics.Parser)
	}

	ev := notify.last(t)
	if ev.OperationID != "op-1" || ev.Outcome != "success" || ev.Source != "bench" || ev.BytesWritten != 9 {
		t.Errorf("event = %+v", ev)
	}
	if ev.StoragePath != "files/out.log" || ev.Digest == "" {
		t.Errorf("event storage = %q, digest = %q", ev.StoragePath, ev.Digest)
	}
}

func TestRunner_ExportInvalidSectionsIsConfigError(t *testing.T) {
	notify := &recordingAdapter{}
	r := newTestRunner(WithAdapter(notify))
	dest := filepath.Join(t.TempDir(), "out.log")

	res, err := r.Export(t.Context(), ExportRequest{
		// The source does not exist: config errors win before any open.
		Sources:     []SourceSpec{fileSpec(filepath.Join(t.TempDir(), "missing.log"))},
		Destination: dest,
		Sections:    []section.IndexSection{{FirstLine: 5, LastLine: 2}},
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if res.Outcome.Status != types.OutcomeConfigError || ExitCode(res.Outcome.Status) != ExitCodeConfigError {
		t.Errorf("outcome = %+v", res.Outcome)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Errorf("destination should not exist, stat err = %v", statErr)
	}
	if ev := notify.last(t); ev.Outcome != "config_error" {
		t.Errorf("event outcome = %q", ev.Outcome)
	}
}

func TestRunner_NotifiesEveryAdapter(t *testing.T) {
	first, second, third := &recordingAdapter{}, &recordingAdapter{}, &recordingAdapter{}
	r := newTestRunner(WithAdapter(first), WithAdapter(second), WithAdapter(third))
	src := writeFile(t, "in.log", "x\n")

	if _, err := r.Extract(t.Context(), ExtractRequest{
		Sources: []SourceSpec{fileSpec(src)},
		Filters: []search.Filter{{Value: "x"}},
	}); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for i, a := range []*recordingAdapter{first, second, third} {
		if ev := a.last(t); ev.Count != 1 {
			t.Errorf("adapter %d event = %+v", i, ev)
		}
	}
}

func TestRunner_ExportMissingSourceIsIOError(t *testing.T) {
	r := newTestRunner()
	res, err := r.Export(t.Context(), ExportRequest{
		Sources:     []SourceSpec{fileSpec(filepath.Join(t.TempDir(), "missing.log"))},
		Destination: filepath.Join(t.TempDir(), "out.log"),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Outcome.Status != types.OutcomeIOError || res.Metrics.OperationsFailed != 1 {
		t.Errorf("outcome = %+v, failed = %d", res.Outcome, res.Metrics.OperationsFailed)
	}
}

func TestRunner_ExportCanceled(t *testing.T) {
	r := newTestRunner()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	res, _ := r.Export(ctx, ExportRequest{
		Sources:     []SourceSpec{fileSpec(writeFile(t, "a.log", "x\n"))},
		Destination: filepath.Join(t.TempDir(), "out.log"),
	})
	if res.Outcome.Status != types.OutcomeCanceled || ExitCode(res.Outcome.Status) != ExitCodeCanceled {
		t.Errorf("outcome = %+v", res.Outcome)
	}
	if res.Metrics.OperationsCanceled != 1 {
		t.Errorf("canceled counter = %d", res.Metrics.OperationsCanceled)
	}
}

func TestRunner_ExportUnknownParser(t *testing.T) {
	r := newTestRunner()
	res, _ := r.Export(t.Context(), ExportRequest{
		Sources:     []SourceSpec{fileSpec(writeFile(t, "a.log", "x\n"))},
		Parser:      "csv",
		Destination: filepath.Join(t.TempDir(), "out.log"),
	})
	if res.Outcome.Status != types.OutcomeConfigError {
		t.Errorf("outcome = %+v", res.Outcome)
	}
}

func TestRunner_ExportBufferedTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write([]byte("boot\nready\n"))
		_ = conn.Close()
	}()

	r := newTestRunner()
	dest := filepath.Join(t.TempDir(), "out.log")
	res, err := r.Export(t.Context(), ExportRequest{
		Sources:     []SourceSpec{{Kind: SourceTCP, Address: ln.Addr().String(), Timeout: 50 * time.Millisecond}},
		Destination: dest,
		Text:        true,
		Buffer:      4,
	})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "boot\nready\n" || res.Count != 2 {
		t.Errorf("destination = %q, count = %d", got, res.Count)
	}
}

func TestRunner_ExportsToSameDestinationDoNotInterleave(t *testing.T) {
	r := newTestRunner()
	dest := filepath.Join(t.TempDir(), "out.log")
	a := writeFile(t, "a.log", strings.Repeat("aaaaaaaa\n", 5000))
	b := writeFile(t, "b.log", strings.Repeat("bbbbbbbb\n", 5000))

	var wg sync.WaitGroup
	for _, src := range []string{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Export(t.Context(), ExportRequest{
				Sources:     []SourceSpec{fileSpec(src)},
				Destination: dest,
				Text:        true,
			}); err != nil {
				t.Errorf("Export failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := os.ReadFile(dest)
	blockA := strings.Repeat("aaaaaaaa\n", 5000)
	blockB := strings.Repeat("bbbbbbbb\n", 5000)
	if string(got) != blockA+blockB && string(got) != blockB+blockA {
		t.Error("concurrent exports interleaved")
	}
}

func TestRunner_DestinationLocksAreReleased(t *testing.T) {
	r := newTestRunner()
	src := writeFile(t, "a.log", "x\n")
	dir := t.TempDir()
	for i := range 3 {
		if _, err := r.Export(t.Context(), ExportRequest{
			Sources:     []SourceSpec{fileSpec(src)},
			Destination: filepath.Join(dir, fmt.Sprintf("out-%d.log", i)),
		}); err != nil {
			t.Fatalf("Export failed: %v", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.locks) != 0 {
		t.Errorf("destination locks retained: %d", len(r.locks))
	}
}

func TestRunner_ReadToEndDrainsRemainingSources(t *testing.T) {
	r := newTestRunner()
	a := writeFile(t, "a.log", "a0\na1\na2\n")
	b := writeFile(t, "b.log", "b0\nb1\nb2\n")
	c := writeFile(t, "c.log", "c0\n")
	dest := filepath.Join(t.TempDir(), "out.log")

	res, err := r.Export(t.Context(), ExportRequest{
		Sources:     []SourceSpec{fileSpec(a), fileSpec(b), fileSpec(c)},
		Destination: dest,
		Sections:    []section.IndexSection{{FirstLine: 0, LastLine: 0}, {FirstLine: 2, LastLine: 2}},
		ReadToEnd:   true,
		Text:        true,
	})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	got, _ := os.ReadFile(dest)
	if string(got) != "a0\na2\n" {
		t.Errorf("destination = %q", got)
	}
	if res.Count != 4 || res.Stats.Drained != 4 || res.Stats.Written != 2 || res.Stats.Observed != 3 {
		t.Errorf("count = %d, stats = %+v", res.Count, res.Stats)
	}
}

func TestRunner_ReadToEndWithoutSectionsExportsEverySource(t *testing.T) {
	r := newTestRunner()
	a := writeFile(t, "a.log", "a0\n")
	b := writeFile(t, "b.log", "b0\n")
	dest := filepath.Join(t.TempDir(), "out.log")

	res, err := r.Export(t.Context(), ExportRequest{
		Sources:     []SourceSpec{fileSpec(a), fileSpec(b)},
		Destination: dest,
		ReadToEnd:   true,
		Text:        true,
	})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "a0\nb0\n" || res.Count != 2 {
		t.Errorf("destination = %q, count = %d", got, res.Count)
	}
}

func TestRunner_BufferedExportFailureStopsReader(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("no /dev/full on this system")
	}
	src := writeFile(t, "big.log", strings.Repeat(strings.Repeat("x", 200)+"\n", 20000))
	r := newTestRunner()

	before := runtime.NumGoroutine()
	res, err := r.Export(context.Background(), ExportRequest{
		Sources:     []SourceSpec{fileSpec(src)},
		Destination: "/dev/full",
		Text:        true,
		Buffer:      1,
	})
	if err == nil || res.Outcome.Status != types.OutcomeIOError {
		t.Fatalf("expected io_error, got %+v (%v)", res.Outcome, err)
	}

	deadline := time.Now().Add(time.Second)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if after := runtime.NumGoroutine(); after > before {
		t.Errorf("goroutines before = %d, after = %d", before, after)
	}
}

func TestRunner_ExtractFrames(t *testing.T) {
	var buf bytes.Buffer
	for _, rec := range []*frame.Record{
		{Ts: 1, Level: "info", Message: "boot ok"},
		{Ts: 2, Level: "error", Message: "sensor timeout", Fields: map[string]any{"id": "s7"}},
		{Ts: 3, Level: "info", Message: "idle"},
	} {
		if _, err := rec.WriteTo(&buf); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	path := writeFile(t, "capture.bin", buf.String())

	pub := lode.NewStubPublisher()
	r := newTestRunner(WithPublisher(pub))
	res, err := r.Extract(t.Context(), ExtractRequest{
		Sources: []SourceSpec{fileSpec(path)},
		Parser:  ParserFrame,
		Filters: []search.Filter{{Value: `id=(\w+)`, IsRegex: true}},
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(res.Matches) != 1 || res.Matches[0].Index != 1 || res.Matches[0].Values[0].Values[0] != "s7" {
		t.Errorf("matches = %+v", res.Matches)
	}
	if len(pub.Matches) != 1 || len(pub.Summaries) != 1 || pub.Summaries[0].Count != 1 {
		t.Errorf("published matches = %d, summaries = %+v", len(pub.Matches), pub.Summaries)
	}
	if res.Meta.Kind != types.OperationExtract || res.Metrics.Matches != 1 {
		t.Errorf("kind = %q, matches metric = %d", res.Meta.Kind, res.Metrics.Matches)
	}
}

func TestRunner_ExtractBadFilterIsConfigError(t *testing.T) {
	r := newTestRunner()
	res, err := r.Extract(t.Context(), ExtractRequest{
		Sources: []SourceSpec{fileSpec(writeFile(t, "a.log", "x\n"))},
		Filters: []search.Filter{{Value: "([", IsRegex: true}},
	})
	if !search.IsConfig(err) || res.Outcome.Status != types.OutcomeConfigError {
		t.Errorf("err = %v, outcome = %+v", err, res.Outcome)
	}
}

func TestRunner_PublishFailureIsIOError(t *testing.T) {
	pub := lode.NewStubPublisher()
	pub.Err = errors.New("bucket unavailable")
	r := newTestRunner(WithPublisher(pub))

	res, err := r.Export(t.Context(), ExportRequest{
		Sources:     []SourceSpec{fileSpec(writeFile(t, "a.log", "x\n"))},
		Destination: filepath.Join(t.TempDir(), "out.log"),
	})
	if err == nil || res.Outcome.Status != types.OutcomeIOError {
		t.Errorf("err = %v, outcome = %+v", err, res.Outcome)
	}
	if res.Stats == nil || res.Stats.Written != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
	if res.Metrics.StorageWriteFailure != 2 {
		t.Errorf("storage failures = %d, want 2 (artifact + summary)", res.Metrics.StorageWriteFailure)
	}
}
