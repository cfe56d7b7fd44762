package dali

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultReplyWindow bounds a QueryReply wait. The bus allows a backward
// frame to start within 22 half-bit times of the forward frame; the
// window is padded generously to cover dongle round-trip latency. The
// window is protocol-level, not caller-configurable per call.
const DefaultReplyWindow = time.Second

// Logger is the optional structured logging interface, compatible with
// logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Stats holds operational counters for a bound interface.
type Stats struct {
	FramesTx      uint64
	FramesRx      uint64
	FramesDropped uint64 // Frames evicted from a full receive queue
	Queries       uint64
	QueryTimeouts uint64
	LastActivity  time.Time
}

// ReplyMatcher decides whether a received frame answers an outstanding
// request. The default matcher accepts the first backward data frame,
// since DALI backward frames carry no address bits and the bus is
// half-duplex per exchange. Installations that need stricter pairing
// (for instance, gateways that annotate replies) can supply their own.
type ReplyMatcher func(request, candidate Frame) bool

// MatchAnyBackward is the default ReplyMatcher: any backward data frame
// answers the outstanding query. Loopback echoes and status events are
// rejected.
func MatchAnyBackward(_, candidate Frame) bool {
	return candidate.IsBackward() && candidate.Status == StatusFrame
}

// Option configures an Interface at bind time.
type Option func(*Interface)

// WithQueueCapacity sets the receive queue depth.
func WithQueueCapacity(n int) Option {
	return func(i *Interface) { i.queueCapacity = n }
}

// WithReplyWindow overrides the query reply window. Intended for
// transports with unusual latency, not for per-call tuning.
func WithReplyWindow(d time.Duration) Option {
	return func(i *Interface) {
		if d > 0 {
			i.replyWindow = d
		}
	}
}

// WithReplyMatcher installs a custom reply matching predicate.
func WithReplyMatcher(m ReplyMatcher) Option {
	return func(i *Interface) {
		if m != nil {
			i.matcher = m
		}
	}
}

// Interface is the public surface over one bound Transport: transmit,
// receive, query/reply correlation, and bus power control.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - At most one QueryReply is outstanding at a time; a concurrent call
//     fails with ErrBusy.
type Interface struct {
	transport Transport
	queue     *frameQueue
	canPower  bool

	matcher       ReplyMatcher
	replyWindow   time.Duration
	queueCapacity int

	// querying enforces the one-outstanding-correlation invariant.
	querying atomic.Bool

	// Shutdown coordination
	done *closeOnce

	// Passive observer invoked for every received frame before it is
	// queued (bridge publishing, recording). Never consumes.
	onFrame func(Frame)
	obsMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	framesTx      atomic.Uint64
	framesRx      atomic.Uint64
	queries       atomic.Uint64
	queryTimeouts atomic.Uint64
	lastActivity  atomic.Int64 // Unix nanoseconds
}

// Bind composes an Interface over a transport and starts the receive
// path. The power capability is queried once, here.
func Bind(t Transport, opts ...Option) *Interface {
	i := &Interface{
		transport:   t,
		matcher:     MatchAnyBackward,
		replyWindow: DefaultReplyWindow,
		done:        newCloseOnce(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.queue = newFrameQueue(i.queueCapacity, nil)
	i.canPower = t.SupportsPower()
	t.SetOnFrame(i.receive)
	return i
}

// receive is the transport's inbound callback: stamp, count, observe,
// enqueue. It never blocks on a full queue; the queue evicts instead.
func (i *Interface) receive(f Frame) {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	i.framesRx.Add(1)
	i.lastActivity.Store(time.Now().UnixNano())

	i.obsMu.RLock()
	observer := i.onFrame
	i.obsMu.RUnlock()
	if observer != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					i.logError("frame observer panic", fmt.Errorf("%v", r))
				}
			}()
			observer(f)
		}()
	}

	i.queue.Enqueue(f)
}

// Transmit validates a frame and forwards it to the transport. With
// block set it waits for the transmission-complete acknowledgement; it
// never waits for a reply (that is QueryReply's job).
func (i *Interface) Transmit(frame Frame, block bool) error {
	if i.isClosed() {
		return ErrHalted
	}
	if err := validateFrame(frame); err != nil {
		return err
	}
	if err := i.transport.Send(frame, block); err != nil {
		return err
	}
	i.framesTx.Add(1)
	i.lastActivity.Store(time.Now().UnixNano())
	return nil
}

// Get returns the next frame from the receive queue, blocking until one
// is available or the timeout elapses. Pass Forever to block until the
// interface is torn down, in which case a StatusHalted sentinel is
// returned rather than blocking forever. An empty timed wait returns a
// StatusTimeout sentinel.
func (i *Interface) Get(timeout time.Duration) Frame {
	return i.queue.Dequeue(timeout)
}

// Flush discards all frames currently queued.
func (i *Interface) Flush() {
	i.queue.Flush()
}

// QueryReply transmits a request frame and waits for the matching
// backward frame within the fixed reply window.
//
// The exchange:
//  1. Transmit the request, blocking until transmission completes.
//  2. Consume the receive queue from the moment transmission completes;
//     traffic captured earlier — queued before the call or parsed while
//     the request was still on the wire — cannot be its reply and is
//     discarded.
//  3. Return the first frame accepted by the reply matcher with
//     StatusOK. Unrelated frames are discarded without extending the
//     deadline. If the window closes empty, a StatusTimeout sentinel is
//     returned with a nil error — a missing reply is an expected bus
//     outcome, not a failure.
//
// A second concurrent call fails immediately with ErrBusy.
func (i *Interface) QueryReply(request Frame) (Frame, error) {
	if i.isClosed() {
		return sentinelFrame(StatusHalted, "interface halted"), ErrHalted
	}
	if err := validateFrame(request); err != nil {
		return sentinelFrame(StatusInvalidRequest, err.Error()), err
	}
	if !request.IsForward() {
		err := fmt.Errorf("%w: query must be a forward frame", ErrInvalidRequest)
		return sentinelFrame(StatusInvalidRequest, err.Error()), err
	}
	if !i.querying.CompareAndSwap(false, true) {
		return sentinelFrame(StatusBusy, "query already outstanding"), ErrBusy
	}
	defer i.querying.Store(false)

	i.queries.Add(1)

	// Frames already queued predate the request and cannot answer it.
	i.queue.Flush()

	if err := i.transport.Send(request, true); err != nil {
		return sentinelFrame(StatusFailure, err.Error()),
			fmt.Errorf("%w: %w", ErrTransmitFailed, err)
	}
	// The reply window opens when transmission completes. Frames
	// captured during the blocking send are still pre-request traffic.
	sent := time.Now()
	i.framesTx.Add(1)
	i.lastActivity.Store(sent.UnixNano())

	deadline := sent.Add(i.replyWindow)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		f := i.queue.Dequeue(remaining)
		switch f.Status {
		case StatusTimeout:
			i.queryTimeouts.Add(1)
			return sentinelFrame(StatusTimeout, "no reply within reply window"), nil
		case StatusHalted:
			return f, ErrHalted
		}
		if f.Timestamp.Before(sent) {
			continue // captured before transmission completed
		}
		if i.matcher(request, f) {
			f.Status = StatusOK
			f.Message = "reply"
			return f, nil
		}
		i.logDebug("discarding unrelated frame during query", "frame", f.String())
	}
	i.queryTimeouts.Add(1)
	return sentinelFrame(StatusTimeout, "no reply within reply window"), nil
}

// Power switches the bus power supply through the transport. Fails with
// ErrUnsupported if the bound transport lacks the capability.
func (i *Interface) Power(on bool) error {
	if i.isClosed() {
		return ErrHalted
	}
	if !i.canPower {
		return ErrUnsupported
	}
	return i.transport.SetPower(on)
}

// SupportsPower reports the power capability captured at bind time.
func (i *Interface) SupportsPower() bool {
	return i.canPower
}

// SetOnFrame registers a passive observer invoked for every received
// frame before it is queued. Observers must not block; panics are
// recovered and logged.
func (i *Interface) SetOnFrame(callback func(Frame)) {
	i.obsMu.Lock()
	i.onFrame = callback
	i.obsMu.Unlock()
}

// SetLogger sets the logger for this interface.
func (i *Interface) SetLogger(logger Logger) {
	i.loggerMu.Lock()
	i.logger = logger
	i.loggerMu.Unlock()
}

// Stats returns current operational statistics.
func (i *Interface) Stats() Stats {
	return Stats{
		FramesTx:      i.framesTx.Load(),
		FramesRx:      i.framesRx.Load(),
		FramesDropped: i.queue.Dropped(),
		Queries:       i.queries.Load(),
		QueryTimeouts: i.queryTimeouts.Load(),
		LastActivity:  time.Unix(0, i.lastActivity.Load()),
	}
}

// Close tears down the interface: the receive queue is halted (waking
// every blocked Get and QueryReply with StatusHalted) and the transport
// is closed. Safe to call multiple times.
func (i *Interface) Close() error {
	// Signal shutdown (safe to call multiple times via sync.Once)
	i.done.Close()

	// Wake all blocked Get/QueryReply callers
	i.queue.Halt()

	err := i.transport.Close()
	i.logInfo("interface closed")
	return err
}

// isClosed returns true if the interface has been torn down.
func (i *Interface) isClosed() bool {
	select {
	case <-i.done.Done():
		return true
	default:
		return false
	}
}

// logInfo logs an info message if a logger is set.
func (i *Interface) logInfo(msg string, keysAndValues ...any) {
	i.loggerMu.RLock()
	logger := i.logger
	i.loggerMu.RUnlock()
	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logDebug logs a debug message if a logger is set.
func (i *Interface) logDebug(msg string, keysAndValues ...any) {
	i.loggerMu.RLock()
	logger := i.logger
	i.loggerMu.RUnlock()
	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// logError logs an error if a logger is set.
func (i *Interface) logError(msg string, err error) {
	i.loggerMu.RLock()
	logger := i.logger
	i.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
