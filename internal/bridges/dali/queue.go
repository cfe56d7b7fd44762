package dali

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueueCapacity is the receive queue depth used when no capacity
// option is given. Sized for a busy bus burst; a full queue evicts the
// oldest frame rather than blocking the transport's receive path.
const DefaultQueueCapacity = 40

// Forever blocks a dequeue until a frame arrives or the queue is halted.
const Forever time.Duration = -1

// frameQueue is a bounded FIFO of inbound frames, the single shared
// mutable structure between the transport's receive path and caller
// threads.
//
// Enqueue never blocks: when full, the oldest frame is evicted, tagged
// StatusQueueFull, counted, and handed to the optional drop callback.
// Dequeue blocks with a deadline; Halt wakes every waiter with a
// StatusHalted sentinel.
type frameQueue struct {
	mu       sync.Mutex
	frames   []Frame
	capacity int
	halted   bool

	// wake is closed and replaced on every state change; waiters grab
	// the current channel under the lock and select on it.
	wake chan struct{}

	dropped atomic.Uint64
	onDrop  func(Frame)
}

func newFrameQueue(capacity int, onDrop func(Frame)) *frameQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &frameQueue{
		frames:   make([]Frame, 0, capacity),
		capacity: capacity,
		wake:     make(chan struct{}),
		onDrop:   onDrop,
	}
}

// Enqueue appends a frame in arrival order. If the queue is full the
// oldest frame is evicted first; the eviction is observable through the
// drop counter and the drop callback, never silently.
func (q *frameQueue) Enqueue(f Frame) {
	q.mu.Lock()
	if q.halted {
		q.mu.Unlock()
		return
	}
	var evicted *Frame
	if len(q.frames) >= q.capacity {
		ev := q.frames[0]
		copy(q.frames, q.frames[1:])
		q.frames = q.frames[:len(q.frames)-1]
		ev.Status = StatusQueueFull
		ev.Message = "evicted from full receive queue"
		evicted = &ev
	}
	q.frames = append(q.frames, f)
	q.notifyLocked()
	q.mu.Unlock()

	if evicted != nil {
		q.dropped.Add(1)
		if q.onDrop != nil {
			q.onDrop(*evicted)
		}
	}
}

// Dequeue removes and returns the oldest frame.
//
// timeout semantics: Forever (negative) blocks until a frame arrives or
// the queue is halted; zero polls without blocking; positive waits at
// most that long. An empty wait is reported in-band with a StatusTimeout
// sentinel, a halt with StatusHalted.
func (q *frameQueue) Dequeue(timeout time.Duration) Frame {
	var expire <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}

	for {
		q.mu.Lock()
		if len(q.frames) > 0 {
			f := q.frames[0]
			copy(q.frames, q.frames[1:])
			q.frames = q.frames[:len(q.frames)-1]
			q.mu.Unlock()
			return f
		}
		if q.halted {
			q.mu.Unlock()
			return sentinelFrame(StatusHalted, "interface halted")
		}
		if timeout == 0 {
			q.mu.Unlock()
			return sentinelFrame(StatusTimeout, "receive queue empty")
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-wake:
		case <-expire:
			return sentinelFrame(StatusTimeout, "no frame within timeout")
		}
	}
}

// Flush discards all queued frames. Flushed frames are not counted as
// drops; the caller chose to discard them.
func (q *frameQueue) Flush() {
	q.mu.Lock()
	q.frames = q.frames[:0]
	q.mu.Unlock()
}

// Halt permanently stops the queue and wakes every blocked Dequeue with a
// StatusHalted sentinel. Subsequent enqueues are discarded.
func (q *frameQueue) Halt() {
	q.mu.Lock()
	q.halted = true
	q.notifyLocked()
	q.mu.Unlock()
}

// Len returns the number of queued frames.
func (q *frameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Dropped returns the total number of frames evicted since creation.
func (q *frameQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// notifyLocked wakes all current waiters. Callers must hold q.mu.
func (q *frameQueue) notifyLocked() {
	close(q.wake)
	q.wake = make(chan struct{})
}
