package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/pithecene-io/sluice/iox"
)

// Compression identifies a compressed container around a recorded stream.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// DetectCompression sniffs a compression container from the leading bytes.
func DetectCompression(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(head, lz4Magic):
		return CompressionLZ4
	case bytes.HasPrefix(head, gzipMagic):
		return CompressionGzip
	default:
		return CompressionNone
	}
}

// ReaderSource adapts a finite io.Reader to the ByteSource contract.
// io.EOF from the reader marks the source exhausted.
type ReaderSource struct {
	transport string
	r         io.Reader
	closer    io.Closer
	buffer    *Buffer
	chunk     int
	eof       bool
}

// NewReaderSource wraps r. chunk <= 0 selects DefaultChunkSize.
func NewReaderSource(r io.Reader, chunk int) *ReaderSource {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	return &ReaderSource{
		transport: "reader",
		r:         r,
		buffer:    NewBuffer(chunk),
		chunk:     chunk,
	}
}

// Reload reads at most one chunk from the reader.
func (s *ReaderSource) Reload(ctx context.Context, _ *Filter) (*ReloadInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.eof {
		return nil, nil
	}

	tail := s.buffer.Reserve(s.chunk)
	n, err := s.r.Read(tail[:s.chunk])
	s.buffer.Commit(n)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return nil, unrecoverable(s.transport, "read failed", err)
		}
		s.eof = true
		if n == 0 {
			return nil, nil
		}
	}

	return &ReloadInfo{
		NewlyLoadedBytes: n,
		AvailableBytes:   s.buffer.Len(),
	}, nil
}

// CurrentSlice returns the unconsumed bytes.
func (s *ReaderSource) CurrentSlice() []byte { return s.buffer.Bytes() }

// Consume releases processed bytes.
func (s *ReaderSource) Consume(offset int) { s.buffer.Consume(offset) }

// Len returns the number of unconsumed bytes.
func (s *ReaderSource) Len() int { return s.buffer.Len() }

// IsEmpty reports whether no unconsumed bytes are buffered.
func (s *ReaderSource) IsEmpty() bool { return s.buffer.Len() == 0 }

// Close releases the underlying reader, if it is closable.
func (s *ReaderSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// FileSource reads a recorded stream from disk, transparently
// decompressing gzip, zstd and lz4 containers.
type FileSource struct {
	*ReaderSource
	Path        string
	Compression Compression
}

// OpenFile opens path as a byte source. chunk <= 0 selects DefaultChunkSize.
func OpenFile(path string, chunk int) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, setupFailed("file", "could not open "+path, err)
	}

	br := bufio.NewReader(f)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		_ = f.Close()
		return nil, setupFailed("file", "could not read header of "+path, err)
	}

	compression := DetectCompression(head)
	r, closers, err := decompressor(compression, br)
	if err != nil {
		_ = f.Close()
		return nil, setupFailed("file", "could not open "+string(compression)+" stream", err)
	}

	rs := NewReaderSource(r, chunk)
	rs.transport = "file"
	rs.closer = append(closers, f)

	return &FileSource{
		ReaderSource: rs,
		Path:         path,
		Compression:  compression,
	}, nil
}

func decompressor(c Compression, r io.Reader) (io.Reader, iox.MultiCloser, error) {
	switch c {
	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, iox.MultiCloser{zr}, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		rc := dec.IOReadCloser()
		return rc, iox.MultiCloser{rc}, nil
	case CompressionLZ4:
		return lz4.NewReader(r), nil, nil
	default:
		return r, nil, nil
	}
}
