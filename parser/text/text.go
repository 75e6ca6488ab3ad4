// Package text implements a newline-delimited line parser.
package text

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pithecene-io/sluice/parser"
)

// Line is one line of text without its terminator.
type Line struct {
	Text string
	// Timestamp is the transport receive time when the source supplied one.
	Timestamp *int64
}

// String returns the line text.
func (l Line) String() string { return l.Text }

// WriteTo writes the line text without a terminator.
func (l Line) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, l.Text)
	return int64(n), err
}

// Tokenizer splits input on '\n' and strips a trailing '\r'.
type Tokenizer struct {
	// MaxLineLength bounds an unterminated line. Zero means unbounded.
	MaxLineLength int
}

// New creates a tokenizer with no line-length bound.
func New() *Tokenizer {
	return &Tokenizer{}
}

// Parse implements parser.Parser.
func (t *Tokenizer) Parse(input []byte, timestamp *int64) (int, *parser.ParseYield[Line], error) {
	i := bytes.IndexByte(input, '\n')
	if i < 0 {
		if t.MaxLineLength > 0 && len(input) > t.MaxLineLength {
			return 0, nil, &parser.Error{
				Parser: "text",
				Msg:    fmt.Sprintf("line exceeds %d bytes without a terminator", t.MaxLineLength),
			}
		}
		return 0, nil, parser.ErrNeedMoreData
	}
	return i + 1, parser.Message(newLine(input[:i], timestamp)), nil
}

// Finalize turns a trailing unterminated line into a message.
func (t *Tokenizer) Finalize(input []byte) (int, *parser.ParseYield[Line], error) {
	if len(input) == 0 {
		return 0, nil, nil
	}
	return len(input), parser.Message(newLine(input, nil)), nil
}

func newLine(b []byte, timestamp *int64) Line {
	b = bytes.TrimSuffix(b, []byte{'\r'})
	return Line{Text: string(b), Timestamp: timestamp}
}
