// Package trap implements the boundary between the kernel and applications:
// the trap frame layout, the trampoline that enters an application and the
// system calls applications use to reach back into the kernel.
package trap

import (
	"encoding/binary"
	"sv39os/kernel"
)

const (
	// ContextSize is the size of an encoded trap frame: 32 general purpose
	// registers followed by sstatus and sepc.
	ContextSize = (32 + 2) * 8

	// SstatusSPP is the sstatus bit recording the privilege level the hart
	// trapped from. It is clear for traps taken from user mode.
	SstatusSPP uint64 = 1 << 8

	// SstatusSPIE is the sstatus bit holding the interrupt-enable state to
	// restore on return.
	SstatusSPIE uint64 = 1 << 5

	regSP = 2
	regA0 = 10
	regA1 = 11
	regA2 = 12
	regA7 = 17
)

var errShortFrame = &kernel.Error{Module: "trap", Message: "trap frame truncated"}

// Context is the register state saved when the hart traps into the kernel
// and restored when it returns to the application.
type Context struct {
	X       [32]uint64
	Sstatus uint64
	Sepc    uint64
}

// AppInitContext returns the trap frame that starts an application at entry
// in user mode with its stack pointer set to sp.
func AppInitContext(entry, sp uint64) Context {
	var ctx Context
	ctx.X[regSP] = sp
	ctx.Sstatus = SstatusSPIE &^ SstatusSPP
	ctx.Sepc = entry
	return ctx
}

// SP returns the saved stack pointer.
func (c *Context) SP() uint64 { return c.X[regSP] }

// UserMode returns true if the frame returns to user mode.
func (c *Context) UserMode() bool { return c.Sstatus&SstatusSPP == 0 }

// Encode returns the in-memory representation of the frame: ContextSize
// bytes of little-endian words in the order x0..x31, sstatus, sepc.
func (c *Context) Encode() []byte {
	buf := make([]byte, 0, ContextSize)
	for _, x := range c.X {
		buf = binary.LittleEndian.AppendUint64(buf, x)
	}
	buf = binary.LittleEndian.AppendUint64(buf, c.Sstatus)
	return binary.LittleEndian.AppendUint64(buf, c.Sepc)
}

// DecodeContext parses a frame produced by Encode.
func DecodeContext(buf []byte) (Context, *kernel.Error) {
	var ctx Context
	if len(buf) < ContextSize {
		return ctx, errShortFrame
	}

	for i := range ctx.X {
		ctx.X[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	ctx.Sstatus = binary.LittleEndian.Uint64(buf[32*8:])
	ctx.Sepc = binary.LittleEndian.Uint64(buf[33*8:])
	return ctx, nil
}
