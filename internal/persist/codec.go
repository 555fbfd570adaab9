package persist

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// Stored blobs start with one header byte naming the encoding.
const (
	blobRaw byte = 0
	blobLZ4 byte = 1
)

// Streams below this size are stored raw; the lz4 frame header would eat
// the gain.
const compressThreshold = 64

var ErrBadBlob = errors.New("persist: unknown blob encoding")

var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// EncodeBlob wraps a saved property stream for storage, lz4-compressing it
// when compress is set and the stream is large enough to profit.
func EncodeBlob(stream []byte, compress bool) ([]byte, error) {
	if !compress || len(stream) < compressThreshold {
		out := make([]byte, 1+len(stream))
		out[0] = blobRaw
		copy(out[1:], stream)
		return out, nil
	}

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	buf.WriteByte(blobLZ4)
	zw := lz4.NewWriter(buf)
	if _, err := zw.Write(stream); err != nil {
		return nil, fmt.Errorf("lz4 write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("lz4 close: %w", err)
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// DecodeBlob returns the property stream stored by EncodeBlob.
func DecodeBlob(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrBadBlob)
	}
	switch blob[0] {
	case blobRaw:
		out := make([]byte, len(blob)-1)
		copy(out, blob[1:])
		return out, nil
	case blobLZ4:
		buf := bufferPool.Get().(*bytes.Buffer)
		buf.Reset()
		defer bufferPool.Put(buf)

		zr := lz4.NewReader(bytes.NewReader(blob[1:]))
		if _, err := io.Copy(buf, zr); err != nil {
			return nil, fmt.Errorf("lz4 read: %w", err)
		}
		out := make([]byte, buf.Len())
		copy(out, buf.Bytes())
		return out, nil
	default:
		return nil, fmt.Errorf("%w: header 0x%02X", ErrBadBlob, blob[0])
	}
}
