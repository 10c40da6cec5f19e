package kfmt

import (
	"io"
	"sync"
)

// earlyBufferSize is the number of bytes of early log output retained before
// an output sink is attached. Once full, the oldest bytes are overwritten.
const earlyBufferSize = 4096

// earlyBuffer is a fixed-size circular byte buffer.
type earlyBuffer struct {
	mu sync.Mutex

	data  [earlyBufferSize]byte
	start int
	size  int
}

// Write appends p to the buffer, discarding the oldest bytes if needed.
func (b *earlyBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range p {
		end := (b.start + b.size) % earlyBufferSize
		b.data[end] = c
		if b.size == earlyBufferSize {
			b.start = (b.start + 1) % earlyBufferSize
		} else {
			b.size++
		}
	}
	return len(p), nil
}

// Len returns the number of buffered bytes.
func (b *earlyBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// WriteTo drains the buffered bytes into w in the order they were written.
func (b *earlyBuffer) WriteTo(w io.Writer) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var written int64
	for b.size > 0 {
		chunk := b.size
		if b.start+chunk > earlyBufferSize {
			chunk = earlyBufferSize - b.start
		}

		n, err := w.Write(b.data[b.start : b.start+chunk])
		written += int64(n)
		b.start = (b.start + n) % earlyBufferSize
		b.size -= n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	b.start = 0
	return written, nil
}
