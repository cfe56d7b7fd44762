// Package dali implements the DALI protocol bridge for Lux Grid.
//
// DALI (Digital Addressable Lighting Interface) is a two-wire lighting
// control bus. This package provides a hardware-independent control and
// transport layer: a common frame representation, a status taxonomy, a
// bounded receive queue, and the query/reply correlation protocol that
// pairs an outbound request with its asynchronous backward-frame answer.
//
// # Architecture
//
// The package separates the protocol core from the hardware drivers:
//
//	┌─────────────────┐          ┌─────────────────┐
//	│    Lux Grid     │   MQTT   │   DALI Bridge   │   Transport
//	│      Core       │◄────────►│   (this pkg)    │◄──────────► DALI Bus
//	└─────────────────┘          └─────────────────┘  (serial/mock)
//
// An Interface is bound to exactly one Transport (a vendor dongle driver).
// The transport delivers every inbound frame through a callback; the
// Interface owns the receive queue and all blocking/timeout semantics.
// Callers consume frames via Get or run request/response exchanges via
// QueryReply.
//
// # Frames
//
// A Frame carries 8, 16, or 24 data bits. All 8-bit frames are backward
// (reply) frames regardless of how they were produced; 16- and 24-bit
// frames are forward (command) frames. Every frame carries exactly one
// Status describing how it was produced or why an operation failed.
//
// Bus-level anomalies (timeouts, collisions, framing errors) are data,
// not errors: they are reported as status-tagged frames because they are
// expected, frequent, and must not unwind caller logic. Only caller
// contract violations (ErrBusy, ErrInvalidRequest, ErrUnsupported,
// ErrHalted) surface as Go errors.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
// At most one QueryReply exchange may be outstanding per Interface; a
// concurrent call fails immediately with ErrBusy.
package dali
