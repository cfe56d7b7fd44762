package dali

import "sync"

// Transport is the capability contract every hardware driver must satisfy.
//
// A transport maps Frames to its own device encoding (USB HID reports,
// serial line records); the core never assumes a specific wire layout.
// The driver delivers every inbound frame — data frames and bus status
// events alike — through the callback registered with SetOnFrame; the
// core treats this as the sole inbound source and owns all queueing.
type Transport interface {
	// Send transmits a frame. With block set, Send returns only after
	// the transport confirms transmission completion (or fails with a
	// transport error). Send never waits for a reply.
	Send(frame Frame, block bool) error

	// SetOnFrame registers the inbound frame callback. The driver must
	// not block in-line on the callback's behalf; delivery order must
	// match arrival order.
	SetOnFrame(callback func(Frame))

	// SupportsPower reports whether the driver can switch the bus power
	// supply. Queried once at bind time.
	SupportsPower() bool

	// SetPower switches the bus power supply on or off.
	SetPower(on bool) error

	// Close releases the underlying device. After Close the driver must
	// not invoke the frame callback.
	Close() error
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}
