package loader

import (
	"encoding/binary"
	"sv39os/kernel"
)

var (
	// ErrBadTable is returned when an application table is malformed.
	ErrBadTable = &kernel.Error{Module: "loader", Message: "malformed application table"}
)

// Table is a parsed application table.
//
// The table is laid out as a little-endian 64-bit application count n,
// followed by n+1 64-bit offsets and the application images. Image i spans
// [offset[i], offset[i+1]); offsets are relative to the start of the table.
type Table struct {
	images [][]byte
}

// Link builds an application table containing images.
func Link(images [][]byte) []byte {
	hdrLen := 8 * (len(images) + 2)

	size := hdrLen
	for _, img := range images {
		size += len(img)
	}

	blob := make([]byte, 0, size)
	blob = binary.LittleEndian.AppendUint64(blob, uint64(len(images)))

	off := uint64(hdrLen)
	blob = binary.LittleEndian.AppendUint64(blob, off)
	for _, img := range images {
		off += uint64(len(img))
		blob = binary.LittleEndian.AppendUint64(blob, off)
	}

	for _, img := range images {
		blob = append(blob, img...)
	}
	return blob
}

// ParseTable validates blob and returns the table it describes. The returned
// table references blob.
func ParseTable(blob []byte) (*Table, *kernel.Error) {
	if len(blob) < 8 {
		return nil, ErrBadTable
	}

	n := binary.LittleEndian.Uint64(blob)
	if n > uint64(len(blob))/8 {
		return nil, ErrBadTable
	}

	hdrLen := 8 * (n + 2)
	if hdrLen > uint64(len(blob)) {
		return nil, ErrBadTable
	}

	images := make([][]byte, n)
	prev := hdrLen
	for i := uint64(0); i <= n; i++ {
		off := binary.LittleEndian.Uint64(blob[8*(i+1):])
		if off < prev || off > uint64(len(blob)) || (i == 0 && off != hdrLen) {
			return nil, ErrBadTable
		}
		if i > 0 {
			images[i-1] = blob[prev:off:off]
		}
		prev = off
	}

	return &Table{images: images}, nil
}

// NumApp returns the number of applications in the table.
func (t *Table) NumApp() int { return len(t.images) }

// Image returns the image of application i.
func (t *Table) Image(i int) []byte { return t.images[i] }
