package search

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/parser/text"
	"github.com/pithecene-io/sluice/producer"
	"github.com/pithecene-io/sluice/section"
	"github.com/pithecene-io/sluice/source"
)

func lines(content string) producer.Stream[text.Line] {
	return producer.New[text.Line](text.New(), source.NewReaderSource(strings.NewReader(content), 0))
}

func TestFilter_Pattern(t *testing.T) {
	tests := []struct {
		filter Filter
		want   string
	}{
		{Filter{Value: "a.b"}, `a\.b`},
		{Filter{Value: "a.b", IsRegex: true}, `a.b`},
		{Filter{Value: "err", IsWord: true}, `\b(?:err)\b`},
		{Filter{Value: "err", IgnoreCase: true, IsWord: true}, `(?i)\b(?:err)\b`},
	}
	for _, tt := range tests {
		if got := tt.filter.Pattern(); got != tt.want {
			t.Errorf("Pattern(%+v) = %q, want %q", tt.filter, got, tt.want)
		}
	}
}

func TestNewExtractor_RejectsBadFilters(t *testing.T) {
	tests := []struct {
		name    string
		filters []Filter
	}{
		{"no filters", nil},
		{"empty value", []Filter{{Value: ""}}},
		{"bad regex", []Filter{{Value: "([", IsRegex: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewExtractor(tt.filters); !IsConfig(err) {
				t.Fatalf("expected config error, got %v", err)
			}
		})
	}
}

func TestExtractor_Match(t *testing.T) {
	x, err := NewExtractor([]Filter{
		{Value: `cpu=(\d+)`, IsRegex: true},
		{Value: "WARN", IgnoreCase: true},
		{Value: "id", IsWord: true},
	})
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}

	got := x.Match("warn cpu=91 cpu=88 ident")
	want := []FilterMatches{
		{Filter: 0, Values: []string{"91", "88"}},
		{Filter: 1, Values: []string{"warn"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Match = %+v, want %+v", got, want)
	}

	if got := x.Match("nothing here"); got != nil {
		t.Errorf("Match(no hit) = %+v, want nil", got)
	}
}

func TestExtract_OrderedWithIndices(t *testing.T) {
	x, err := NewExtractor([]Filter{{Value: `temp=(\d+)`, IsRegex: true}})
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}

	input := "boot\ntemp=40\nidle\ntemp=42\n"
	got, err := Extract(context.Background(), x, lines(input))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	want := []ExtractedMatchValue{
		{Index: 1, Values: []FilterMatches{{Filter: 0, Values: []string{"40"}}}},
		{Index: 3, Values: []FilterMatches{{Filter: 0, Values: []string{"42"}}}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %+v, want %+v", got, want)
	}
}

func TestExtract_Canceled(t *testing.T) {
	x, _ := NewExtractor([]Filter{{Value: "a"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Extract(ctx, x, lines("a\n")); !IsCanceled(err) {
		t.Fatalf("expected canceled error, got %v", err)
	}
}

func TestExtract_ParseFailure(t *testing.T) {
	x, _ := NewExtractor([]Filter{{Value: "a"}})
	tok := &text.Tokenizer{MaxLineLength: 2}
	stream := producer.New[text.Line](tok, source.NewReaderSource(strings.NewReader("a\nabcdef"), 0))

	if _, err := Extract(context.Background(), x, stream); !IsParse(err) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestExtractor_ExtractFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.log.zst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	_, _ = enc.Write([]byte("ok\nERROR disk\nok\nerror net\n"))
	_ = enc.Close()
	_ = f.Close()

	c := metrics.NewCollector("extract", "text", "file", "op")
	x, err := NewExtractor([]Filter{{Value: "error", IgnoreCase: true}}, WithCollector(c))
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}

	got, err := x.ExtractFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ExtractFile failed: %v", err)
	}
	if len(got) != 2 || got[0].Index != 1 || got[1].Index != 3 {
		t.Errorf("ExtractFile = %+v", got)
	}
	if snap := c.Snapshot(); snap.Matches != 2 || snap.MessagesRead != 4 {
		t.Errorf("Matches = %d, MessagesRead = %d; want 2, 4", snap.Matches, snap.MessagesRead)
	}
}

func TestExtractor_ExtractFileMissing(t *testing.T) {
	x, _ := NewExtractor([]Filter{{Value: "a"}})
	if _, err := x.ExtractFile(context.Background(), filepath.Join(t.TempDir(), "none")); !IsIO(err) {
		t.Fatalf("expected io error, got %v", err)
	}
}

func TestExtractedMatchValue_Encodings(t *testing.T) {
	v := []ExtractedMatchValue{{Index: 7, Values: []FilterMatches{{Filter: 1, Values: []string{"x"}}}}}

	js, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if string(js) != `[{"index":7,"values":[{"filter":1,"values":["x"]}]}]` {
		t.Errorf("json = %s", js)
	}

	mp, err := msgpack.Marshal(v)
	if err != nil {
		t.Fatalf("msgpack: %v", err)
	}
	var back []ExtractedMatchValue
	if err := msgpack.Unmarshal(mp, &back); err != nil {
		t.Fatalf("msgpack decode: %v", err)
	}
	if !reflect.DeepEqual(back, v) {
		t.Errorf("msgpack round trip = %+v", back)
	}
}

func TestToSections(t *testing.T) {
	matches := []ExtractedMatchValue{{Index: 1}, {Index: 2}, {Index: 3}, {Index: 7}, {Index: 9}, {Index: 10}}
	got := ToSections(matches)
	want := []section.IndexSection{
		{FirstLine: 1, LastLine: 3},
		{FirstLine: 7, LastLine: 7},
		{FirstLine: 9, LastLine: 10},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ToSections = %+v, want %+v", got, want)
	}
	if err := section.Validate(got); err != nil {
		t.Errorf("ToSections produced invalid sections: %v", err)
	}
}
