package source

import (
	"context"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is used when a serial config leaves BaudRate unset.
const DefaultBaudRate = 115200

// serialPollInterval bounds a single blocking read so the collection loop
// can notice its window elapsing.
const serialPollInterval = 10 * time.Millisecond

// Port is the subset of a serial port the source needs.
// serial.Port satisfies it. A Read that returns (0, nil) means the port's
// read timeout expired with no data.
type Port interface {
	Read(p []byte) (int, error)
	Close() error
}

// SerialConfig configures a serial source.
type SerialConfig struct {
	Path     string
	BaudRate int
	// Timeout is the reload window. Zero selects DefaultTimeout.
	Timeout time.Duration
}

// SerialSource reads a byte stream from a serial port.
//
// Each reload collects bytes one at a time until the line goes idle or the
// window elapses. A window that elapses returns a zero ReloadInfo even if
// bytes were collected; those bytes stay buffered and are visible to the
// next parse.
type SerialSource struct {
	port    Port
	buffer  *Buffer
	timeout time.Duration
	one     [1]byte
}

// OpenSerial opens the configured port.
func OpenSerial(cfg SerialConfig) (*SerialSource, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}

	port, err := serial.Open(cfg.Path, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, setupFailed("serial", "could not open "+cfg.Path, err)
	}
	if err := port.SetReadTimeout(serialPollInterval); err != nil {
		_ = port.Close()
		return nil, setupFailed("serial", "could not set read timeout", err)
	}

	return NewSerialSource(port, cfg.Timeout), nil
}

// NewSerialSource wraps an already-open port.
func NewSerialSource(port Port, timeout time.Duration) *SerialSource {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SerialSource{
		port:    port,
		buffer:  NewBuffer(DefaultChunkSize),
		timeout: timeout,
	}
}

// Reload collects one burst from the port.
func (s *SerialSource) Reload(ctx context.Context, _ *Filter) (*ReloadInfo, error) {
	deadline := time.Now().Add(s.timeout)
	collected := 0

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := s.port.Read(s.one[:])
		if err != nil {
			return nil, unrecoverable("serial", "read failed", err)
		}
		if n == 0 {
			if collected > 0 {
				return &ReloadInfo{
					NewlyLoadedBytes: collected,
					AvailableBytes:   s.buffer.Len(),
				}, nil
			}
			continue
		}

		_ = s.buffer.WriteByte(s.one[0])
		collected++
	}

	return &ReloadInfo{}, nil
}

// CurrentSlice returns the unconsumed bytes.
func (s *SerialSource) CurrentSlice() []byte { return s.buffer.Bytes() }

// Consume releases processed bytes.
func (s *SerialSource) Consume(offset int) { s.buffer.Consume(offset) }

// Len returns the number of unconsumed bytes.
func (s *SerialSource) Len() int { return s.buffer.Len() }

// IsEmpty reports whether no unconsumed bytes are buffered.
func (s *SerialSource) IsEmpty() bool { return s.buffer.Len() == 0 }

// Close closes the port.
func (s *SerialSource) Close() error { return s.port.Close() }

// ListSerialPorts returns the names of serial ports present on the host.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, setupFailed("serial", "could not enumerate ports", err)
	}
	return ports, nil
}
