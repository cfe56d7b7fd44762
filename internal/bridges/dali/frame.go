package dali

import (
	"fmt"
	"time"
)

// Frame bit lengths. DALI defines three frame classes: 8-bit backward
// (reply) frames, 16-bit forward frames addressing control gear, and
// 24-bit forward frames addressing control devices.
const (
	// LengthBackward is the bit length of a backward (reply) frame.
	LengthBackward uint8 = 8

	// LengthForward is the bit length of a forward frame to control gear.
	LengthForward uint8 = 16

	// LengthForward24 is the bit length of a forward frame to control
	// devices (DALI-2 input devices, application controllers).
	LengthForward24 uint8 = 24
)

// Transmission priority bounds. The bus arbitrates between masters using
// settling-time priorities; the dongle accepts a single priority digit.
const (
	// DefaultPriority is the priority used when a frame does not set one.
	DefaultPriority uint8 = 2

	// MaxPriority is the highest priority digit accepted by transports.
	MaxPriority uint8 = 7
)

// Frame is one DALI frame plus the status describing how it was produced.
//
// Frames are immutable value types: they are created at transmit time
// (outbound) or at transport receive time (inbound) and never modified
// afterwards. A frame always carries exactly one Status.
//
// Invariant: all 8-bit frames are backward frames regardless of
// construction context. This is a protocol-level normalization rule, not
// a transport detail.
type Frame struct {
	// Timestamp is the monotonic capture time, set when the frame is
	// produced (transport receive) or constructed for transmission.
	Timestamp time.Time

	// Length is the frame bit length: 8, 16, or 24.
	Length uint8

	// Data holds the frame bits, right-aligned.
	Data uint32

	// Priority is the transmission priority digit (0 is highest).
	// Only meaningful for outbound forward frames.
	Priority uint8

	// SendTwice requests back-to-back double transmission, required for
	// DALI configuration commands.
	SendTwice bool

	// Status describes how this frame was produced or why an operation
	// failed. Never absent.
	Status Status

	// Message is a human-readable elaboration of Status, primarily for
	// logs and diagnostics.
	Message string
}

// NewForwardFrame creates a 16-bit forward frame from an address byte and
// an opcode byte, ready for transmission.
func NewForwardFrame(address, opcode byte) Frame {
	return Frame{
		Timestamp: time.Now(),
		Length:    LengthForward,
		Data:      uint32(address)<<8 | uint32(opcode),
		Priority:  DefaultPriority,
		Status:    StatusOK,
		Message:   "ok",
	}
}

// NewDeviceFrame creates a 24-bit forward frame for DALI-2 control
// devices. Only the low 24 bits of data are used.
func NewDeviceFrame(data uint32) Frame {
	return Frame{
		Timestamp: time.Now(),
		Length:    LengthForward24,
		Data:      data & 0xFFFFFF,
		Priority:  DefaultPriority,
		Status:    StatusOK,
		Message:   "ok",
	}
}

// NewBackwardFrame creates an 8-bit backward frame carrying a reply value.
func NewBackwardFrame(value byte) Frame {
	return Frame{
		Timestamp: time.Now(),
		Length:    LengthBackward,
		Data:      uint32(value),
		Status:    StatusOK,
		Message:   "ok",
	}
}

// FromRaw builds a Frame from transport-level length and data, applying
// the backward-frame normalization: an 8-bit frame is a backward frame no
// matter what direction the transport reported. Transports use this when
// decoding inbound traffic.
func FromRaw(bits uint8, data uint32, status Status, message string) Frame {
	return Frame{
		Timestamp: time.Now(),
		Length:    bits,
		Data:      data,
		Status:    status,
		Message:   message,
	}
}

// IsBackward returns true for 8-bit (reply) frames. Direction is derived
// from the length class alone.
func (f Frame) IsBackward() bool {
	return f.Length == LengthBackward
}

// IsForward returns true for 16- and 24-bit (command) frames.
func (f Frame) IsForward() bool {
	return f.Length == LengthForward || f.Length == LengthForward24
}

// AddressByte returns the address field of a forward frame: the most
// significant byte of the frame data. Backward frames carry no address
// field and return zero.
func (f Frame) AddressByte() byte {
	switch f.Length {
	case LengthForward:
		return byte(f.Data >> 8)
	case LengthForward24:
		return byte(f.Data >> 16)
	default:
		return 0
	}
}

// ShortAddress extracts the 6-bit short address from a forward frame's
// address byte. The second return value is false for group/broadcast
// addressing and for backward frames.
//
// Address byte layout: 0AAAAAAS — bit 7 clear selects short addressing,
// bits 6..1 carry the address, bit 0 selects command vs. level.
func (f Frame) ShortAddress() (uint8, bool) {
	if !f.IsForward() {
		return 0, false
	}
	ab := f.AddressByte()
	if ab&0x80 != 0 {
		return 0, false
	}
	return (ab >> 1) & 0x3F, true
}

// String returns a compact human-readable representation, used in logs.
func (f Frame) String() string {
	if !f.Status.IsData() {
		return fmt.Sprintf("<Frame %s>", f.Status)
	}
	var data string
	switch f.Length {
	case LengthBackward:
		data = fmt.Sprintf("0x%02X", f.Data)
	case LengthForward:
		data = fmt.Sprintf("0x%04X", f.Data)
	case LengthForward24:
		data = fmt.Sprintf("0x%06X", f.Data)
	default:
		data = fmt.Sprintf("0x%08X (%d bits)", f.Data, f.Length)
	}
	if f.SendTwice {
		data += " send-twice"
	}
	return fmt.Sprintf("<Frame %s %s>", data, f.Status)
}

// sentinelFrame builds a data-less frame used to report an outcome
// in-band (timeout, halt, busy). Sentinels never carry meaningful bits.
func sentinelFrame(status Status, message string) Frame {
	return Frame{
		Timestamp: time.Now(),
		Status:    status,
		Message:   message,
	}
}

// validateFrame checks that a frame is well-formed for transmission.
// It fails fast with ErrInvalidRequest before any I/O is attempted.
func validateFrame(f Frame) error {
	switch f.Length {
	case LengthBackward, LengthForward, LengthForward24:
	default:
		return fmt.Errorf("%w: unsupported frame length %d", ErrInvalidRequest, f.Length)
	}
	if f.Data >= 1<<uint32(f.Length) {
		return fmt.Errorf("%w: data 0x%X does not fit %d bits", ErrInvalidRequest, f.Data, f.Length)
	}
	if f.Priority > MaxPriority {
		return fmt.Errorf("%w: priority %d exceeds maximum %d", ErrInvalidRequest, f.Priority, MaxPriority)
	}
	return nil
}
