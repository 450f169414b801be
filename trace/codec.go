package trace

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/smalloc/internal/conv"
)

// Compression defines the block compression algorithm.
type Compression uint8

const (
	// CompressionNone stores blocks raw.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD (better ratio).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("%w: unknown compression %q", ErrInvalidTrace, s)
	}
}

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxBlockSize), zstd.WithDecoderConcurrency(1))
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

const (
	blockHeaderSize = 8
	maxBlockSize    = 16 << 20
)

// appendBlock appends data as one block to dst. Blocks that do not shrink
// below 90% of their size are stored raw.
func appendBlock(dst, data []byte, c Compression) ([]byte, error) {
	var compressed []byte

	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		putZstdEncoder(enc)
	}

	if len(data) > maxBlockSize {
		return nil, fmt.Errorf("%w: block of %d bytes exceeds limit", ErrInvalidTrace, len(data))
	}
	rawSize, err := conv.IntToUint32(len(data))
	if err != nil {
		return nil, err
	}

	var hdr [blockHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], rawSize)

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		// 0 = raw
		dst = append(dst, hdr[:]...)
		return append(dst, data...), nil
	}

	packedSize, err := conv.IntToUint32(len(compressed))
	if err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint32(hdr[4:], packedSize)
	dst = append(dst, hdr[:]...)
	return append(dst, compressed...), nil
}

// readBlock reads and decompresses the next block from r into buf.
// It returns io.EOF when r is exhausted at a block boundary.
func readBlock(r io.Reader, c Compression, buf []byte) ([]byte, error) {
	var hdr [blockHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated block header", ErrInvalidTrace)
		}
		return nil, err
	}

	uncompressedSize, err := conv.Uint32ToInt(binary.LittleEndian.Uint32(hdr[0:]))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTrace, err)
	}
	compressedSize, err := conv.Uint32ToInt(binary.LittleEndian.Uint32(hdr[4:]))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTrace, err)
	}
	if uncompressedSize > maxBlockSize || compressedSize > maxBlockSize {
		return nil, fmt.Errorf("%w: block of %d bytes exceeds limit", ErrInvalidTrace, max(uncompressedSize, compressedSize))
	}

	if cap(buf) < uncompressedSize {
		buf = make([]byte, uncompressedSize)
	}
	buf = buf[:uncompressedSize]

	if compressedSize == 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: truncated block: %w", ErrInvalidTrace, err)
		}
		return buf, nil
	}

	compressed := make([]byte, compressedSize)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, fmt.Errorf("%w: truncated block: %w", ErrInvalidTrace, err)
	}

	switch c {
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)

		decoded, err := dec.DecodeAll(compressed, buf[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTrace, err)
		}
		if len(decoded) != uncompressedSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrInvalidTrace)
		}
		return decoded, nil

	case CompressionLZ4:
		n, err := lz4.UncompressBlock(compressed, buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTrace, err)
		}
		if n != uncompressedSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrInvalidTrace)
		}
		return buf, nil

	default:
		return nil, fmt.Errorf("%w: compressed block in %s trace", ErrInvalidTrace, c)
	}
}
