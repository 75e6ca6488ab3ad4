// Package render writes command results to stdout as json, yaml, msgpack
// or an aligned table. Without --format, a terminal gets a table and
// anything else gets json; msgpack is only ever chosen explicitly.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/sluice/cli/tui"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON    Format = "json"
	FormatTable   Format = "table"
	FormatYAML    Format = "yaml"
	FormatMsgpack Format = "msgpack"
)

var formats = []Format{FormatJSON, FormatTable, FormatYAML, FormatMsgpack}

// ParseFormat parses a --format value. The empty string is returned as the
// empty Format so the caller can pick a default.
func ParseFormat(s string) (Format, error) {
	want := Format(strings.ToLower(s))
	if want == "" {
		return "", nil
	}
	for _, f := range formats {
		if f == want {
			return f, nil
		}
	}
	return "", fmt.Errorf("invalid format: %q (must be json, table, yaml, or msgpack)", s)
}

// Renderer writes values in one output format.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer creates a renderer from the --format and --no-color flags,
// writing to the app writer.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stdout
	if c.App != nil && c.App.Writer != nil {
		out = c.App.Writer
	}
	if format == "" {
		format = FormatJSON
		if isTerminal(out) {
			format = FormatTable
		}
	}
	return NewRendererWithWriter(format, c.Bool("no-color"), out), nil
}

// NewRendererWithWriter creates a renderer with a custom writer.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, noColor: noColor, out: out}
}

// Format returns the selected output format.
func (r *Renderer) Format() Format { return r.format }

// Render writes data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		return enc.Encode(data)
	case FormatMsgpack:
		enc := msgpack.NewEncoder(r.out)
		enc.SetCustomStructTag("json")
		return enc.Encode(data)
	case FormatTable:
		return r.renderTable(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI hands data to the interactive viewer for viewType.
func (r *Renderer) RenderTUI(viewType string, data any) error {
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}
	return tui.Run(viewType, data)
}

func (r *Renderer) renderTable(data any) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	v := indirect(reflect.ValueOf(data))

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			fmt.Fprintln(r.out, "(no results)")
			return nil
		}
		writeRows(w, v)
	case reflect.Struct:
		for _, col := range structColumns(v.Type()) {
			fmt.Fprintf(w, "%s:\t%s\n", col.name, cell(v.Field(col.index)))
		}
	case reflect.Map:
		for _, e := range entries(v) {
			fmt.Fprintf(w, "%s:\t%s\n", e.key, cell(e.val))
		}
	default:
		fmt.Fprintf(w, "%v\n", data)
	}
	return w.Flush()
}

// writeRows prints one header line and one line per element. Struct
// columns tagged omitempty are dropped when no row has a value for them.
func writeRows(w io.Writer, v reflect.Value) {
	first := indirect(v.Index(0))
	switch first.Kind() {
	case reflect.Struct:
		var cols []column
		for _, col := range structColumns(first.Type()) {
			if col.omitEmpty && allZero(v, col.index) {
				continue
			}
			cols = append(cols, col)
		}
		names := make([]string, len(cols))
		for i, col := range cols {
			names[i] = col.name
		}
		fmt.Fprintln(w, strings.Join(names, "\t"))
		for i := 0; i < v.Len(); i++ {
			row := indirect(v.Index(i))
			cells := make([]string, len(cols))
			for j, col := range cols {
				if row.IsValid() {
					cells[j] = cell(row.Field(col.index))
				}
			}
			fmt.Fprintln(w, strings.Join(cells, "\t"))
		}
	case reflect.Map:
		header := entries(first)
		keys := make([]string, len(header))
		for i, e := range header {
			keys[i] = e.key
		}
		fmt.Fprintln(w, strings.Join(keys, "\t"))
		for i := 0; i < v.Len(); i++ {
			byKey := map[string]reflect.Value{}
			if row := indirect(v.Index(i)); row.Kind() == reflect.Map {
				for _, e := range entries(row) {
					byKey[e.key] = e.val
				}
			}
			cells := make([]string, len(keys))
			for j, k := range keys {
				cells[j] = cell(byKey[k])
			}
			fmt.Fprintln(w, strings.Join(cells, "\t"))
		}
	default:
		for i := 0; i < v.Len(); i++ {
			fmt.Fprintln(w, cell(v.Index(i)))
		}
	}
}

type column struct {
	name      string
	index     int
	omitEmpty bool
}

// structColumns lists the exported fields of t under their json names.
func structColumns(t reflect.Type) []column {
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		cols = append(cols, column{name: name, index: i, omitEmpty: strings.Contains(opts, "omitempty")})
	}
	return cols
}

func allZero(rows reflect.Value, field int) bool {
	for i := 0; i < rows.Len(); i++ {
		row := indirect(rows.Index(i))
		if row.IsValid() && !row.Field(field).IsZero() {
			return false
		}
	}
	return true
}

type entry struct {
	key string
	val reflect.Value
}

// entries returns the pairs of map m ordered by formatted key.
func entries(m reflect.Value) []entry {
	out := make([]entry, 0, m.Len())
	iter := m.MapRange()
	for iter.Next() {
		out = append(out, entry{key: fmt.Sprint(iter.Key().Interface()), val: iter.Value()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

var timeType = reflect.TypeOf(time.Time{})

// cell formats one value for a table column.
func cell(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return ""
	}
	if v.Type() == timeType {
		return v.Interface().(time.Time).Format(time.RFC3339Nano)
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Sprintf("[%d items]", v.Len())
		}
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = v.Index(i).String()
		}
		return strings.Join(parts, ",")
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		pairs := make([]string, 0, v.Len())
		for _, e := range entries(v) {
			pairs = append(pairs, e.key+"="+cell(e.val))
		}
		return strings.Join(pairs, " ")
	case reflect.Struct:
		return "{...}"
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// indirect unwraps pointers and interfaces. A nil pointer yields the zero
// Value.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
