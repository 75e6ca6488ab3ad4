package source

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
)

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// TCPSource reads a byte stream from a TCP connection.
// A read deadline bounds each reload; a clean remote close exhausts the source.
type TCPSource struct {
	conn    net.Conn
	buffer  *Buffer
	timeout time.Duration
	chunk   int
	eof     bool
}

// DialTCP connects to address. timeout <= 0 selects DefaultTimeout.
func DialTCP(ctx context.Context, address string, timeout time.Duration) (*TCPSource, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, setupFailed("tcp", "could not connect to "+address, err)
	}
	return NewConnSource(conn, timeout), nil
}

// NewConnSource wraps an established stream connection.
func NewConnSource(conn net.Conn, timeout time.Duration) *TCPSource {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TCPSource{
		conn:    conn,
		buffer:  NewBuffer(DefaultChunkSize),
		timeout: timeout,
		chunk:   DefaultChunkSize,
	}
}

// Reload performs one deadline-bounded read.
func (s *TCPSource) Reload(ctx context.Context, _ *Filter) (*ReloadInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.eof {
		return nil, nil
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		return nil, unrecoverable("tcp", "set deadline", err)
	}

	tail := s.buffer.Reserve(s.chunk)
	n, err := s.conn.Read(tail[:s.chunk])
	s.buffer.Commit(n)
	switch {
	case err == nil:
	case isTimeout(err):
	case errors.Is(err, io.EOF):
		s.eof = true
		if n == 0 {
			return nil, nil
		}
	default:
		return nil, unrecoverable("tcp", "read failed", err)
	}

	return &ReloadInfo{
		NewlyLoadedBytes:   n,
		AvailableBytes:     s.buffer.Len(),
		LastKnownTimestamp: receivedAt(n),
	}, nil
}

// CurrentSlice returns the unconsumed bytes.
func (s *TCPSource) CurrentSlice() []byte { return s.buffer.Bytes() }

// Consume releases processed bytes.
func (s *TCPSource) Consume(offset int) { s.buffer.Consume(offset) }

// Len returns the number of unconsumed bytes.
func (s *TCPSource) Len() int { return s.buffer.Len() }

// IsEmpty reports whether no unconsumed bytes are buffered.
func (s *TCPSource) IsEmpty() bool { return s.buffer.Len() == 0 }

// Close closes the connection.
func (s *TCPSource) Close() error { return s.conn.Close() }

// maxDatagram is the largest UDP payload.
const maxDatagram = 65535

// UDPSource receives datagrams and appends their payloads to the buffer.
// Datagrams from senders outside Filter.Ports are dropped and reported as
// skipped bytes. A UDP source is never exhausted.
type UDPSource struct {
	conn     net.PacketConn
	buffer   *Buffer
	timeout  time.Duration
	datagram []byte
}

// ListenUDP binds address. timeout <= 0 selects DefaultTimeout.
func ListenUDP(address string, timeout time.Duration) (*UDPSource, error) {
	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, setupFailed("udp", "could not bind "+address, err)
	}
	return NewPacketSource(conn, timeout), nil
}

// NewPacketSource wraps a bound packet connection.
func NewPacketSource(conn net.PacketConn, timeout time.Duration) *UDPSource {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &UDPSource{
		conn:     conn,
		buffer:   NewBuffer(DefaultChunkSize),
		timeout:  timeout,
		datagram: make([]byte, maxDatagram),
	}
}

// LocalAddr returns the bound address.
func (s *UDPSource) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Reload receives at most one datagram.
func (s *UDPSource) Reload(ctx context.Context, filter *Filter) (*ReloadInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		return nil, unrecoverable("udp", "set deadline", err)
	}

	n, addr, err := s.conn.ReadFrom(s.datagram)
	if err != nil {
		if isTimeout(err) {
			return &ReloadInfo{AvailableBytes: s.buffer.Len()}, nil
		}
		return nil, unrecoverable("udp", "receive failed", err)
	}

	if ua, ok := addr.(*net.UDPAddr); ok && !filter.allowsPort(ua.Port) {
		return &ReloadInfo{
			SkippedBytes:   n,
			AvailableBytes: s.buffer.Len(),
		}, nil
	}

	_, _ = s.buffer.Write(s.datagram[:n])
	return &ReloadInfo{
		NewlyLoadedBytes:   n,
		AvailableBytes:     s.buffer.Len(),
		LastKnownTimestamp: receivedAt(n),
	}, nil
}

// CurrentSlice returns the unconsumed bytes.
func (s *UDPSource) CurrentSlice() []byte { return s.buffer.Bytes() }

// Consume releases processed bytes.
func (s *UDPSource) Consume(offset int) { s.buffer.Consume(offset) }

// Len returns the number of unconsumed bytes.
func (s *UDPSource) Len() int { return s.buffer.Len() }

// IsEmpty reports whether no unconsumed bytes are buffered.
func (s *UDPSource) IsEmpty() bool { return s.buffer.Len() == 0 }

// Close closes the socket.
func (s *UDPSource) Close() error { return s.conn.Close() }

func receivedAt(n int) *int64 {
	if n == 0 {
		return nil
	}
	return nowMillis()
}
