// Package bytesource provides the uniform streaming byte source the rest of
// the engine reads from: transparent decompression by file extension or
// magic bytes, and an optional progress-reporting capability.
package bytesource

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// ProgressFunc receives the cumulative number of bytes read after each
// successful read.
type ProgressFunc func(totalBytesRead uint64)

// Codec identifies the detected/declared compression of a stream.
type Codec int

const (
	None Codec = iota
	Gzip
	Zstd
	Bzip2
	Xz
)

// CodecForExtension maps a file extension (as returned by filepath.Ext,
// including the leading dot) to a Codec, or None if unrecognized.
func CodecForExtension(ext string) Codec {
	switch strings.ToLower(ext) {
	case ".gz":
		return Gzip
	case ".zst":
		return Zstd
	case ".bz2":
		return Bzip2
	case ".xz":
		return Xz
	default:
		return None
	}
}

// SniffCodec inspects up to the first 6 bytes of buf for a known magic
// number, used when the file extension doesn't indicate compression.
func SniffCodec(buf []byte) Codec {
	switch {
	case len(buf) >= 2 && buf[0] == 0x1f && buf[1] == 0x8b:
		return Gzip
	case len(buf) >= 4 && buf[0] == 0x28 && buf[1] == 0xb5 && buf[2] == 0x2f && buf[3] == 0xfd:
		return Zstd
	case len(buf) >= 3 && buf[0] == 0x42 && buf[1] == 0x5a && buf[2] == 0x68:
		return Bzip2
	case len(buf) >= 6 && buf[0] == 0xfd && buf[1] == 0x37 && buf[2] == 0x7a && buf[3] == 0x58 && buf[4] == 0x5a && buf[5] == 0x00:
		return Xz
	default:
		return None
	}
}

// Source wraps a raw byte stream with optional decompression and progress
// metering. The scanner only ever calls Read; it never seeks.
type Source struct {
	r        io.Reader
	progress ProgressFunc
	total    uint64
	closer   io.Closer
}

// Option configures a Source.
type Option func(*Source)

// WithProgress registers a callback invoked with the cumulative byte count
// after every successful Read.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Source) { s.progress = fn }
}

// Open opens path, detects compression from its extension (falling back to
// magic-byte sniffing when the extension is unrecognized), and returns a
// ready-to-scan Source.
func Open(path string, opts ...Option) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bytesource: open %s: %w", path, err)
	}

	codec := CodecForExtension(filepath.Ext(path))
	br := bufio.NewReaderSize(f, 64*1024)

	if codec == None {
		peek, _ := br.Peek(6)
		codec = SniffCodec(peek)
	}

	src, err := FromReader(br, codec)
	if err != nil {
		f.Close()
		return nil, err
	}
	src.closer = f
	for _, opt := range opts {
		opt(src)
	}
	return src, nil
}

// FromReader wraps an already-open reader with decompression for the given
// codec, without performing any file-extension or magic-byte detection.
func FromReader(r io.Reader, codec Codec) (*Source, error) {
	var decoded io.Reader
	switch codec {
	case None:
		decoded = r
	case Gzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("bytesource: gzip: %w", err)
		}
		decoded = gz
	case Bzip2:
		decoded = bzip2.NewReader(r)
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("bytesource: zstd: %w", err)
		}
		decoded = zr.IOReadCloser()
	case Xz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("bytesource: xz: %w", err)
		}
		decoded = xr
	default:
		return nil, fmt.Errorf("bytesource: unknown codec %d", codec)
	}
	return &Source{r: decoded}, nil
}

// Read implements io.Reader, reporting cumulative bytes read through the
// progress callback (if any) after each successful read.
func (s *Source) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.total += uint64(n)
		if s.progress != nil {
			s.progress(s.total)
		}
	}
	return n, err
}

// Close releases the underlying file handle, if any. Decompressors that
// themselves implement io.Closer (gzip, zstd) are closed first.
func (s *Source) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		_ = c.Close()
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
