package dali

// Status describes how a frame was produced or why an operation failed.
//
// Every Frame carries exactly one Status. Bus-level anomalies (timeout,
// collision, bad bit timing) are reported in-band through frame statuses
// rather than as errors, since they are expected and frequent on a live
// bus.
type Status uint8

// Status taxonomy. The values are a closed set; StatusUndefined is the
// catch-all for dongle status codes this package does not know.
const (
	// StatusOK marks a well-formed frame ready for transmission, or a
	// successfully correlated query reply.
	StatusOK Status = iota

	// StatusLoopback marks the echo of this interface's own transmission,
	// observed back on the bus. Loopback frames confirm transmission
	// completion and are never query replies.
	StatusLoopback

	// StatusFrame marks a normal frame received from the bus.
	StatusFrame

	// StatusTimeout marks a sentinel frame returned by an operation that
	// waited and found nothing. It never carries meaningful data bits.
	StatusTimeout

	// StatusTiming marks a physical-layer bit timing violation (bad start
	// bit or data bit timing, settling time violation).
	StatusTiming

	// StatusCollision marks a detected bus collision.
	StatusCollision

	// StatusInterface marks a dongle-level command error (bad command,
	// bad argument, dongle queue overflow).
	StatusInterface

	// StatusFailure marks a bus power failure.
	StatusFailure

	// StatusRecover marks bus recovery after a failure.
	StatusRecover

	// StatusQueueFull marks a frame evicted from a full receive queue.
	StatusQueueFull

	// StatusBusy marks the sentinel returned when a query is already
	// outstanding on the interface.
	StatusBusy

	// StatusInvalidRequest marks the sentinel returned for a malformed
	// request frame. No transmission is attempted.
	StatusInvalidRequest

	// StatusUnsupported marks the sentinel for a capability the bound
	// transport does not provide.
	StatusUnsupported

	// StatusHalted marks the sentinel returned to callers blocked on an
	// interface that was torn down.
	StatusHalted

	// StatusUndefined marks a record the interface could not interpret.
	StatusUndefined
)

// String returns the canonical lower-snake name of the status, as used in
// logs and MQTT payloads.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusLoopback:
		return "loopback"
	case StatusFrame:
		return "frame"
	case StatusTimeout:
		return "timeout"
	case StatusTiming:
		return "timing"
	case StatusCollision:
		return "collision"
	case StatusInterface:
		return "interface"
	case StatusFailure:
		return "failure"
	case StatusRecover:
		return "recover"
	case StatusQueueFull:
		return "queue_full"
	case StatusBusy:
		return "busy"
	case StatusInvalidRequest:
		return "invalid_request"
	case StatusUnsupported:
		return "unsupported"
	case StatusHalted:
		return "halted"
	case StatusUndefined:
		return "undefined"
	default:
		return "unknown"
	}
}

// IsData returns true if the frame status indicates real bus data
// (a received frame or a loopback echo) rather than a sentinel or a
// bus anomaly report.
func (s Status) IsData() bool {
	return s == StatusOK || s == StatusFrame || s == StatusLoopback
}
