// Package parser defines the contract between byte sources and message
// producers.
//
// A Parser turns a prefix of a byte slice into at most one message per call
// and reports how many bytes it used:
//
//	n > 0, yield != nil, nil   one message (or attachment) was decoded
//	n > 0, yield == nil, nil   n bytes of garbage were skipped
//	0, nil, ErrNeedMoreData    the prefix is incomplete; reload and retry
//	_, _, other error          unrecoverable parse failure
package parser

import (
	"errors"
	"fmt"
	"io"
)

// ErrNeedMoreData is returned when the input holds only part of a message.
var ErrNeedMoreData = errors.New("need more data")

// LogMessage is a parsed message. WriteTo must produce a deterministic byte
// form; the export engine writes it verbatim. String is used for searching.
type LogMessage interface {
	fmt.Stringer
	io.WriterTo
}

// YieldKind discriminates a ParseYield.
type YieldKind int

const (
	// YieldMessage carries a message only.
	YieldMessage YieldKind = iota
	// YieldMessageAndAttachment carries a message and its attachment.
	YieldMessageAndAttachment
	// YieldAttachment carries an attachment with no message. It counts as an
	// observed item but is never exported or searched.
	YieldAttachment
)

func (k YieldKind) String() string {
	switch k {
	case YieldMessage:
		return "message"
	case YieldMessageAndAttachment:
		return "message_and_attachment"
	case YieldAttachment:
		return "attachment"
	default:
		return fmt.Sprintf("YieldKind(%d)", int(k))
	}
}

// Attachment is a named binary blob that travelled alongside a message.
type Attachment struct {
	Name string `msgpack:"name" json:"name"`
	Data []byte `msgpack:"data" json:"data"`
}

// ParseYield is one successful parse result.
type ParseYield[T LogMessage] struct {
	Kind       YieldKind
	Message    T
	Attachment *Attachment
}

// Writable reports whether the yield carries an exportable message.
func (y ParseYield[T]) Writable() bool {
	return y.Kind == YieldMessage || y.Kind == YieldMessageAndAttachment
}

// Message builds a message-only yield.
func Message[T LogMessage](m T) *ParseYield[T] {
	return &ParseYield[T]{Kind: YieldMessage, Message: m}
}

// MessageAndAttachment builds a yield carrying both.
func MessageAndAttachment[T LogMessage](m T, a *Attachment) *ParseYield[T] {
	return &ParseYield[T]{Kind: YieldMessageAndAttachment, Message: m, Attachment: a}
}

// AttachmentOnly builds an attachment-only yield.
func AttachmentOnly[T LogMessage](a *Attachment) *ParseYield[T] {
	return &ParseYield[T]{Kind: YieldAttachment, Attachment: a}
}

// Parser decodes messages from a byte prefix. timestamp is the last
// transport-supplied receive time, if any.
type Parser[T LogMessage] interface {
	Parse(input []byte, timestamp *int64) (consumed int, yield *ParseYield[T], err error)
}

// Finalizer is implemented by parsers that can turn the trailing bytes of
// an exhausted source into a final message (e.g. a last unterminated line).
// Returning (0, nil, nil) declines; the bytes are then reported incomplete.
type Finalizer[T LogMessage] interface {
	Finalize(input []byte) (consumed int, yield *ParseYield[T], err error)
}

// Func adapts a function to the Parser interface.
type Func[T LogMessage] func(input []byte, timestamp *int64) (int, *ParseYield[T], error)

// Parse calls f.
func (f Func[T]) Parse(input []byte, timestamp *int64) (int, *ParseYield[T], error) {
	return f(input, timestamp)
}

// Error wraps a fatal parser failure with the parser's name.
type Error struct {
	Parser string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s parser: %s: %v", e.Parser, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s parser: %s", e.Parser, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}
