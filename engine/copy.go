package engine

import (
	"errors"
	"fmt"
	"hash"
	"hash/crc64"
	"io"
	"sync"
)

// DefaultBufferSize is the size of the buffers used to stream one item.
const DefaultBufferSize = 1 * 1024 * 1024

var crcTable = crc64.MakeTable(crc64.ISO)

// BufferPool recycles copy buffers between items.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates a pool of size byte buffers, DefaultBufferSize if size <= 0.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

// Get retrieves a buffer. Return it with Put when the copy is done.
func (bp *BufferPool) Get() *[]byte {
	return bp.pool.Get().(*[]byte)
}

// Put hands a buffer back to the pool.
func (bp *BufferPool) Put(b *[]byte) {
	if b != nil {
		bp.pool.Put(b)
	}
}

// hashingReader computes a CRC64 over everything read through it.
type hashingReader struct {
	r    io.Reader
	hash hash.Hash64
}

func (h *hashingReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		h.hash.Write(p[:n])
	}
	return n, err
}

// ErrChecksumMismatch is wrapped by item errors when verification fails.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// copyStream copies src to dst through buf and returns the CRC64 of the bytes read.
func copyStream(dst io.Writer, src io.Reader, buf []byte) (int64, uint64, error) {
	hr := &hashingReader{r: src, hash: crc64.New(crcTable)}
	n, err := io.CopyBuffer(dst, hr, buf)
	return n, hr.hash.Sum64(), err
}

// checksumOf reads r to the end and returns its CRC64 and length.
func checksumOf(r io.Reader, buf []byte) (uint64, int64, error) {
	h := crc64.New(crcTable)
	n, err := io.CopyBuffer(h, r, buf)
	return h.Sum64(), n, err
}

// verifyWritten compares what landed at the target with the source checksum.
func verifyWritten(written io.Reader, want uint64, wantLen int64, buf []byte) error {
	got, n, err := checksumOf(written, buf)
	if err != nil {
		return fmt.Errorf("failed to read back target: %w", err)
	}
	if n != wantLen || got != want {
		return fmt.Errorf("%w: source %x (%d bytes), target %x (%d bytes)", ErrChecksumMismatch, want, wantLen, got, n)
	}
	return nil
}
