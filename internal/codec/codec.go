// Package codec provides the named compression codecs used for audit
// payloads.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Name identifies a codec.
type Name string

const (
	None   Name = "none"
	Gzip   Name = "gzip"
	Zstd   Name = "zstd"
	Snappy Name = "snappy"
	LZ4    Name = "lz4"
)

// Names lists every supported codec.
var Names = []Name{None, Gzip, Zstd, Snappy, LZ4}

// Parse resolves a codec name. The empty string means None.
func Parse(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	if n == "" {
		return None, nil
	}
	for _, known := range Names {
		if n == known {
			return n, nil
		}
	}
	return "", fmt.Errorf("codec: unknown codec %q", s)
}

// Extension returns the file suffix for compressed payloads, including the
// leading dot, or "" for None.
func (n Name) Extension() string {
	switch n {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	case Snappy:
		return ".snappy"
	case LZ4:
		return ".lz4"
	default:
		return ""
	}
}

// ContentEncoding returns the HTTP content encoding for n, if any.
func (n Name) ContentEncoding() string {
	switch n {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return ""
	}
}

// Encode compresses data.
func Encode(n Name, data []byte) ([]byte, error) {
	switch n {
	case None, "":
		return data, nil

	case Gzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("gzip writer: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip writer: %w", err)
		}
		return buf.Bytes(), nil

	case Snappy:
		return snappy.Encode(nil, data), nil

	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 writer: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 writer: %w", err)
		}
		return buf.Bytes(), nil

	case Zstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil

	default:
		return nil, fmt.Errorf("codec: unsupported codec %q", n)
	}
}

// Decode decompresses data.
func Decode(n Name, data []byte) ([]byte, error) {
	switch n {
	case None, "":
		return data, nil

	case Gzip:
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer reader.Close()
		return io.ReadAll(reader)

	case Snappy:
		return snappy.Decode(nil, data)

	case LZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))

	case Zstd:
		decoder, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer decoder.Close()
		return io.ReadAll(decoder)

	default:
		return nil, fmt.Errorf("codec: unsupported codec %q", n)
	}
}
