package dali

import (
	"sync"
	"time"
)

// scriptedReply pairs a request predicate with the frames the mock bus
// emits when the predicate matches.
type scriptedReply struct {
	match  func(Frame) bool
	frames []Frame
	delay  time.Duration
}

// MockTransport is an in-memory Transport simulating a DALI bus: sent
// frames are recorded, loopback echoes are generated, and scripted
// replies answer matching forward frames after an optional delay.
//
// Unlike the serial dongle it claims power control, so the full
// capability surface is exercisable without hardware.
type MockTransport struct {
	mu      sync.Mutex
	sent    []Frame
	scripts []scriptedReply
	powered bool
	noPower bool
	noEcho  bool

	onFrame func(Frame)
	cbMu    sync.RWMutex

	done *closeOnce
	wg   sync.WaitGroup
}

// NewMockTransport creates a simulated bus with power control enabled
// and loopback echoing on.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		powered: true,
		done:    newCloseOnce(),
	}
}

// DisablePower makes the mock report no power capability, mirroring
// transports without a built-in supply.
func (m *MockTransport) DisablePower() {
	m.mu.Lock()
	m.noPower = true
	m.mu.Unlock()
}

// DisableLoopback suppresses the echo normally generated for each sent
// frame.
func (m *MockTransport) DisableLoopback() {
	m.mu.Lock()
	m.noEcho = true
	m.mu.Unlock()
}

// ScriptReply registers frames to emit whenever a sent frame satisfies
// the predicate. The frames are delivered through the receive callback
// after the given delay, simulating bus round-trip time.
func (m *MockTransport) ScriptReply(match func(Frame) bool, delay time.Duration, frames ...Frame) {
	m.mu.Lock()
	m.scripts = append(m.scripts, scriptedReply{match: match, frames: frames, delay: delay})
	m.mu.Unlock()
}

// Send records the frame, echoes it back as loopback, and fires any
// matching scripted replies.
func (m *MockTransport) Send(frame Frame, block bool) error {
	if m.isClosed() {
		return ErrHalted
	}

	m.mu.Lock()
	m.sent = append(m.sent, frame)
	noEcho := m.noEcho
	var matched []scriptedReply
	for _, s := range m.scripts {
		if s.match(frame) {
			matched = append(matched, s)
		}
	}
	m.mu.Unlock()

	if !noEcho {
		echo := FromRaw(frame.Length, frame.Data, StatusLoopback, "loopback frame")
		m.deliver(echo)
	}

	for _, s := range matched {
		s := s
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if s.delay > 0 {
				select {
				case <-time.After(s.delay):
				case <-m.done.Done():
					return
				}
			}
			for _, f := range s.frames {
				m.deliver(f)
			}
		}()
	}
	return nil
}

// Emit injects a frame as if it arrived from the bus, for simulating
// unsolicited traffic and status events.
func (m *MockTransport) Emit(frame Frame) {
	if m.isClosed() {
		return
	}
	m.deliver(frame)
}

// Sent returns a copy of all frames sent so far, in order.
func (m *MockTransport) Sent() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Frame, len(m.sent))
	copy(out, m.sent)
	return out
}

// deliver hands a frame to the registered callback, if any.
func (m *MockTransport) deliver(frame Frame) {
	m.cbMu.RLock()
	callback := m.onFrame
	m.cbMu.RUnlock()
	if callback != nil {
		callback(frame)
	}
}

// SetOnFrame registers the inbound frame callback.
func (m *MockTransport) SetOnFrame(callback func(Frame)) {
	m.cbMu.Lock()
	m.onFrame = callback
	m.cbMu.Unlock()
}

// SupportsPower reports true unless DisablePower was called.
func (m *MockTransport) SupportsPower() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.noPower
}

// SetPower records the simulated supply state.
func (m *MockTransport) SetPower(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.noPower {
		return ErrUnsupported
	}
	m.powered = on
	return nil
}

// Powered returns the simulated supply state.
func (m *MockTransport) Powered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.powered
}

// Close stops scripted deliveries. Safe to call multiple times.
func (m *MockTransport) Close() error {
	m.done.Close()
	m.wg.Wait()
	return nil
}

// isClosed returns true if the transport has been closed.
func (m *MockTransport) isClosed() bool {
	select {
	case <-m.done.Done():
		return true
	default:
		return false
	}
}

// Ensure MockTransport implements Transport.
var _ Transport = (*MockTransport)(nil)
