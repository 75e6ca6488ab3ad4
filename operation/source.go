package operation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/source"
)

// SourceKind names a transport.
type SourceKind string

const (
	SourceFile      SourceKind = "file"
	SourceSerial    SourceKind = "serial"
	SourceTCP       SourceKind = "tcp"
	SourceUDP       SourceKind = "udp"
	SourceWebSocket SourceKind = "ws"
)

// SourceSpec describes one byte source of an operation.
type SourceSpec struct {
	Kind SourceKind `json:"kind"`
	// Path is the file path (file) or device path (serial).
	Path string `json:"path,omitempty"`
	// Address is host:port (tcp, udp) or a ws:// URL (ws).
	Address string `json:"address,omitempty"`
	// BaudRate applies to serial sources. Zero selects source.DefaultBaudRate.
	BaudRate int `json:"baud_rate,omitempty"`
	// Ports restricts UDP senders by source port. Empty accepts all.
	Ports []uint16 `json:"ports,omitempty"`
	// Timeout is the reload window of live transports.
	Timeout time.Duration `json:"timeout,omitempty"`
	// ChunkSize is the read size of file sources.
	ChunkSize int `json:"chunk_size,omitempty"`
	// Headers are sent with the WebSocket handshake.
	Headers map[string]string `json:"headers,omitempty"`
}

// String renders the spec as kind:target.
func (s SourceSpec) String() string {
	return string(s.Kind) + ":" + s.target()
}

func (s SourceSpec) target() string {
	if s.Path != "" {
		return s.Path
	}
	return s.Address
}

// Validate checks that the fields the kind needs are present.
func (s SourceSpec) Validate() error {
	switch s.Kind {
	case SourceFile, SourceSerial:
		if s.Path == "" {
			return invalidf("%s source requires a path", s.Kind)
		}
	case SourceTCP, SourceUDP:
		if s.Address == "" {
			return invalidf("%s source requires an address", s.Kind)
		}
	case SourceWebSocket:
		if !strings.HasPrefix(s.Address, "ws://") && !strings.HasPrefix(s.Address, "wss://") {
			return invalidf("ws source requires a ws:// or wss:// address, got %q", s.Address)
		}
	default:
		return invalidf("unknown source kind %q", s.Kind)
	}
	if len(s.Ports) > 0 && s.Kind != SourceUDP {
		return invalidf("port filter only applies to udp sources")
	}
	return nil
}

// ParseSourceSpec parses the compact CLI form kind:target, such as
// file:/var/log/a.log.gz, serial:/dev/ttyUSB0, tcp:10.0.0.2:5000,
// udp::9000 or ws://host/logs. A bare path is a file source.
func ParseSourceSpec(s string) (SourceSpec, error) {
	if strings.HasPrefix(s, "ws://") || strings.HasPrefix(s, "wss://") {
		return SourceSpec{Kind: SourceWebSocket, Address: s}, nil
	}
	kind, target, ok := strings.Cut(s, ":")
	if !ok {
		return SourceSpec{Kind: SourceFile, Path: s}, nil
	}

	var spec SourceSpec
	switch SourceKind(kind) {
	case SourceFile, SourceSerial:
		spec = SourceSpec{Kind: SourceKind(kind), Path: target}
	case SourceTCP, SourceUDP:
		spec = SourceSpec{Kind: SourceKind(kind), Address: target}
	default:
		// Not a known kind; treat the whole thing as a file path.
		return SourceSpec{Kind: SourceFile, Path: s}, nil
	}
	return spec, spec.Validate()
}

// openedSource is a byte source that owns a resource.
type openedSource interface {
	source.ByteSource
	io.Closer
}

// open connects the source. Failures are transport errors, except invalid
// specs which are request errors.
func (s SourceSpec) open(ctx context.Context) (openedSource, *source.Filter, error) {
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}

	var (
		src    openedSource
		filter *source.Filter
		err    error
	)
	switch s.Kind {
	case SourceFile:
		src, err = source.OpenFile(s.Path, s.ChunkSize)
	case SourceSerial:
		src, err = source.OpenSerial(source.SerialConfig{Path: s.Path, BaudRate: s.BaudRate, Timeout: s.Timeout})
	case SourceTCP:
		src, err = source.DialTCP(ctx, s.Address, s.Timeout)
	case SourceUDP:
		src, err = source.ListenUDP(s.Address, s.Timeout)
		if len(s.Ports) > 0 {
			filter = &source.Filter{Ports: s.Ports}
		}
	case SourceWebSocket:
		header := http.Header{}
		for k, v := range s.Headers {
			header.Set(k, v)
		}
		src, err = source.DialWebSocket(ctx, s.Address, header, s.Timeout)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", s, err)
	}
	return src, filter, nil
}

// openAll opens every spec. On failure the ones already open are closed.
func openAll(ctx context.Context, specs []SourceSpec) ([]openedSource, []*source.Filter, iox.MultiCloser, error) {
	if len(specs) == 0 {
		return nil, nil, nil, invalidf("no sources given")
	}

	var (
		sources []openedSource
		filters []*source.Filter
		closers iox.MultiCloser
	)
	for _, spec := range specs {
		src, filter, err := spec.open(ctx)
		if err != nil {
			_ = closers.Close()
			return nil, nil, nil, err
		}
		sources = append(sources, src)
		filters = append(filters, filter)
		closers = append(closers, src)
	}
	return sources, filters, closers, nil
}

// sourceKindLabel is the metrics dimension for a source list.
func sourceKindLabel(specs []SourceSpec) string {
	if len(specs) == 0 {
		return ""
	}
	kind := specs[0].Kind
	for _, s := range specs[1:] {
		if s.Kind != kind {
			return "mixed"
		}
	}
	return string(kind)
}
