// Package source defines the byte-source contract and its transport drivers.
//
// A ByteSource owns a read buffer. Reload pulls more raw bytes from the
// underlying transport; CurrentSlice exposes the unconsumed bytes; Consume
// releases bytes the caller has fully processed. Bytes that are not consumed
// stay in the buffer for the next parse attempt, which is how partial frames
// are reassembled across reloads.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout is the reload window for transports that can stall
// (serial links, sockets). A reload that sees no data within the window
// returns a zero ReloadInfo rather than an error.
const DefaultTimeout = 100 * time.Millisecond

// DefaultChunkSize is the number of bytes requested from stream transports
// per reload.
const DefaultChunkSize = 64 * 1024

// ReloadInfo is the result of one successful reload.
type ReloadInfo struct {
	// NewlyLoadedBytes is the number of bytes read from the transport.
	NewlyLoadedBytes int
	// AvailableBytes is the number of unconsumed bytes now buffered.
	AvailableBytes int
	// SkippedBytes is the number of bytes the transport discarded (e.g. filtered datagrams).
	SkippedBytes int
	// LastKnownTimestamp is an optional transport-supplied receive time (unix millis).
	LastKnownTimestamp *int64
}

// IsZero reports whether the reload made no progress (a timeout).
func (r *ReloadInfo) IsZero() bool {
	return r.NewlyLoadedBytes == 0 && r.SkippedBytes == 0
}

// Filter is a transport-level filter passed through Reload.
// Transports that cannot apply it ignore it.
type Filter struct {
	// Ports restricts datagram transports to these sender ports.
	// Empty means accept everything.
	Ports []uint16
}

// allowsPort reports whether the filter accepts a sender port.
func (f *Filter) allowsPort(port int) bool {
	if f == nil || len(f.Ports) == 0 {
		return true
	}
	for _, p := range f.Ports {
		if int(p) == port {
			return true
		}
	}
	return false
}

// ByteSource is the capability interface every transport implements.
//
// Reload contract:
//   - (*ReloadInfo, nil): bytes were loaded, skipped, or the window timed out (zero info)
//   - (nil, nil): the transport is exhausted and will never deliver more bytes
//   - (nil, error): unrecoverable transport failure, or ctx ended while waiting
//
// The slice returned by CurrentSlice is valid until the next Reload.
// Consume must only be called with bytes the caller has processed; values
// larger than Len are clamped.
type ByteSource interface {
	Reload(ctx context.Context, filter *Filter) (*ReloadInfo, error)
	CurrentSlice() []byte
	Consume(offset int)
	Len() int
	IsEmpty() bool
}

// ErrorKind classifies source errors.
type ErrorKind int

const (
	// ErrorSetup indicates the transport could not be opened.
	ErrorSetup ErrorKind = iota
	// ErrorUnrecoverable indicates a read failure; the source is terminated.
	ErrorUnrecoverable
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorSetup:
		return "setup"
	case ErrorUnrecoverable:
		return "unrecoverable"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error represents a transport failure.
type Error struct {
	Kind ErrorKind
	// Transport names the driver (file, serial, tcp, udp, ws).
	Transport string
	Msg       string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s error: %s: %v", e.Transport, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s %s error: %s", e.Transport, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsUnrecoverable returns true if err is a transport read failure.
func IsUnrecoverable(err error) bool {
	var srcErr *Error
	if errors.As(err, &srcErr) {
		return srcErr.Kind == ErrorUnrecoverable
	}
	return false
}

// IsSetup returns true if err is a transport open failure.
func IsSetup(err error) bool {
	var srcErr *Error
	if errors.As(err, &srcErr) {
		return srcErr.Kind == ErrorSetup
	}
	return false
}

func unrecoverable(transport, msg string, err error) error {
	return &Error{Kind: ErrorUnrecoverable, Transport: transport, Msg: msg, Err: err}
}

func setupFailed(transport, msg string, err error) error {
	return &Error{Kind: ErrorSetup, Transport: transport, Msg: msg, Err: err}
}

func nowMillis() *int64 {
	ts := time.Now().UnixMilli()
	return &ts
}
