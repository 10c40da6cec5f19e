package mm

import "fmt"

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// Pages returns the number of pages needed to hold a block of this size.
func (s Size) Pages() uint64 {
	return (uint64(s) + pageOffsetMask) >> PageShift
}

// String returns a human-readable representation of the size using the
// largest unit that divides it exactly.
func (s Size) String() string {
	switch {
	case s >= Gb && s%Gb == 0:
		return fmt.Sprintf("%dGb", uint64(s/Gb))
	case s >= Mb && s%Mb == 0:
		return fmt.Sprintf("%dMb", uint64(s/Mb))
	case s >= Kb && s%Kb == 0:
		return fmt.Sprintf("%dKb", uint64(s/Kb))
	default:
		return fmt.Sprintf("%d bytes", uint64(s))
	}
}
