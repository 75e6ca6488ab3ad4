// Package frame implements length-prefixed msgpack log records.
//
// Wire format: a 4-byte big-endian payload length followed by a msgpack
// map with keys ts, level, message, fields and attachment.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/sluice/parser"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// ErrorKind classifies frame errors.
type ErrorKind int

const (
	// ErrorPartial indicates a truncated frame at end of stream.
	ErrorPartial ErrorKind = iota
	// ErrorTooLarge indicates a frame exceeding MaxFrameSize.
	ErrorTooLarge
	// ErrorDecode indicates a msgpack decoding error.
	ErrorDecode
)

// Error represents a frame decoding error.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the stream cannot continue past this error.
// Oversized and truncated frames are fatal; decode errors are not, because
// the length prefix still delimits the bad payload.
func (e *Error) IsFatal() bool {
	return e.Kind == ErrorPartial || e.Kind == ErrorTooLarge
}

// IsFatalError returns true if err is a fatal frame error.
func IsFatalError(err error) bool {
	var frameErr *Error
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// Record is one structured log record.
type Record struct {
	// Ts is the record time in unix milliseconds. Zero means unknown.
	Ts         int64              `msgpack:"ts"`
	Level      string             `msgpack:"level"`
	Message    string             `msgpack:"message"`
	Fields     map[string]any     `msgpack:"fields,omitempty"`
	Attachment *parser.Attachment `msgpack:"attachment,omitempty"`
}

// String renders the record as a single human-readable line with fields
// in key order.
func (r *Record) String() string {
	var sb strings.Builder
	if r.Ts != 0 {
		sb.WriteString(time.UnixMilli(r.Ts).UTC().Format(time.RFC3339Nano))
		sb.WriteByte(' ')
	}
	if r.Level != "" {
		sb.WriteString("[" + r.Level + "] ")
	}
	sb.WriteString(r.Message)

	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, r.Fields[k])
	}
	return sb.String()
}

// WriteTo writes the record as one encoded frame.
func (r *Record) WriteTo(w io.Writer) (int64, error) {
	b, err := Encode(r)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

// Encode returns r as a length-prefixed frame. Map keys are sorted so the
// encoding is deterministic.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(make([]byte, LengthPrefixSize))

	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(r); err != nil {
		return nil, &Error{Kind: ErrorDecode, Msg: "failed to encode record", Err: err}
	}

	b := buf.Bytes()
	payloadSize := len(b) - LengthPrefixSize
	if payloadSize > MaxPayloadSize {
		return nil, &Error{
			Kind: ErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}
	binary.BigEndian.PutUint32(b[:LengthPrefixSize], uint32(payloadSize))
	return b, nil
}

// Decode decodes a single payload (without its length prefix).
func Decode(payload []byte) (*Record, error) {
	var rec Record
	if err := msgpack.Unmarshal(payload, &rec); err != nil {
		return nil, &Error{Kind: ErrorDecode, Msg: "failed to decode record", Err: err}
	}
	return &rec, nil
}

// Parser implements parser.Parser for framed records.
// Undecodable payloads are skipped; oversized frames are fatal.
type Parser struct{}

// NewParser creates a frame parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse implements parser.Parser.
func (p *Parser) Parse(input []byte, timestamp *int64) (int, *parser.ParseYield[*Record], error) {
	if len(input) < LengthPrefixSize {
		return 0, nil, parser.ErrNeedMoreData
	}

	payloadSize := binary.BigEndian.Uint32(input[:LengthPrefixSize])
	if payloadSize > MaxPayloadSize {
		return 0, nil, &Error{
			Kind: ErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	total := LengthPrefixSize + int(payloadSize)
	if len(input) < total {
		return 0, nil, parser.ErrNeedMoreData
	}

	rec, err := Decode(input[LengthPrefixSize:total])
	if err != nil {
		return total, nil, nil
	}
	if rec.Ts == 0 && timestamp != nil {
		rec.Ts = *timestamp
	}

	switch {
	case rec.Attachment != nil && rec.Message == "":
		return total, parser.AttachmentOnly[*Record](rec.Attachment), nil
	case rec.Attachment != nil:
		return total, parser.MessageAndAttachment(rec, rec.Attachment), nil
	default:
		return total, parser.Message(rec), nil
	}
}

// Decoder reads records from a frame stream, such as a binary export.
type Decoder struct {
	reader io.Reader
}

// NewDecoder creates a new frame decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: r}
}

// ReadRecord reads a single record from the stream.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *Error with Kind=ErrorPartial: incomplete frame (fatal)
//   - *Error with Kind=ErrorTooLarge: frame exceeds limit (fatal)
//   - *Error with Kind=ErrorDecode: payload is not a record
func (d *Decoder) ReadRecord() (*Record, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.reader, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &Error{Kind: ErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &Error{
			Kind: ErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &Error{Kind: ErrorPartial, Msg: "failed to read payload", Err: err}
	}
	return Decode(payload)
}
