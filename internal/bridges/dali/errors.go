package dali

import "errors"

// Domain errors for the DALI bridge package.
//
// Only caller-contract violations surface as errors; bus-level anomalies
// are reported in-band through frame statuses.
var (
	// ErrBusy is returned when a QueryReply call finds another query
	// already outstanding on the same interface. The bus protocol is
	// half-duplex per exchange; the second call fails rather than
	// interleaving.
	ErrBusy = errors.New("dali: query already outstanding")

	// ErrInvalidRequest is returned for malformed frames. The check runs
	// before any I/O is attempted.
	ErrInvalidRequest = errors.New("dali: invalid request frame")

	// ErrUnsupported is returned when the bound transport lacks a
	// requested capability (currently: power supply control).
	ErrUnsupported = errors.New("dali: capability not supported by transport")

	// ErrHalted is returned when an operation is attempted on, or
	// interrupted by, a torn-down interface.
	ErrHalted = errors.New("dali: interface halted")

	// ErrTransmitFailed is returned when the transport could not send a
	// frame or could not confirm transmission completion.
	ErrTransmitFailed = errors.New("dali: transmit failed")
)
