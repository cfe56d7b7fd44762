package dali

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// Serial transport defaults for the SevenLab USB-serial dongle.
const (
	// DefaultBaudRate is the dongle's fixed line speed.
	DefaultBaudRate = 500000

	// defaultSerialReadTimeout bounds a single port read so the receive
	// loop can observe shutdown.
	defaultSerialReadTimeout = 200 * time.Millisecond

	// loopbackTimeout bounds the wait for the dongle to echo our own
	// transmission back, which is how transmission completion is
	// acknowledged.
	loopbackTimeout = time.Second

	// loopbackChanSize buffers loopback echoes between the receive loop
	// and a blocking Send.
	loopbackChanSize = 4
)

// Dongle record codes. A record's length field either carries a bit
// count (a real frame) or one of these status codes.
// See the dongle firmware's message format documentation.
const (
	maxBitLength uint64 = 32 // dongle can report up to 32-bit test frames

	codeTimeout             uint64 = 0x81
	codeBadStartBitTiming   uint64 = 0x82
	codeBadDataBitTiming    uint64 = 0x83
	codeCollisionLoopback   uint64 = 0x84
	codeCollisionNoChange   uint64 = 0x85
	codeCollisionWrongState uint64 = 0x86
	codeSettlingTime        uint64 = 0x87
	codeSystemIdle          uint64 = 0x90
	codeSystemFailure       uint64 = 0x91
	codeSystemRecovered     uint64 = 0x92
	codeCommandNotProcessed uint64 = 0xA0
	codeCommandBadArgument  uint64 = 0xA1
	codeQueueIsFull         uint64 = 0xA2
	codeCommandBad          uint64 = 0xA3
	codeBufferOverflow      uint64 = 0xA4
)

// SerialConfig holds connection settings for the serial dongle.
type SerialConfig struct {
	// Port is the device path (e.g., "/dev/ttyUSB0").
	Port string

	// Baud is the line speed. Default: 500000.
	Baud int

	// ReadTimeout bounds individual port reads.
	// Default: 200 milliseconds.
	ReadTimeout time.Duration
}

// SerialTransport drives the SevenLab USB-serial DALI dongle.
//
// The dongle speaks a line protocol: each inbound record is one line
// containing "{tttttttt[> ]ll dddddddd}" (hex tick, loopback marker, bit
// length or status code, data). Outbound commands are short ASCII lines
// ("S"/"Q" for forward frames, "Y" for backward frames).
//
// The dongle has no built-in bus power supply, so SupportsPower reports
// false.
type SerialTransport struct {
	port io.ReadWriteCloser

	onFrame func(Frame)
	cbMu    sync.RWMutex

	// loopback carries echoes of our own transmissions to a blocking Send.
	loopback chan Frame

	done *closeOnce
	wg   sync.WaitGroup

	writeMu sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex
}

// OpenSerial opens the serial port and starts the receive loop.
func OpenSerial(cfg SerialConfig) (*SerialTransport, error) {
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaudRate
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultSerialReadTimeout
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("dali: opening serial port %s: %w", cfg.Port, err)
	}

	return newSerialTransport(port), nil
}

// newSerialTransport wires a transport over an already-open port.
// Split from OpenSerial so tests can substitute an in-memory pipe.
func newSerialTransport(port io.ReadWriteCloser) *SerialTransport {
	t := &SerialTransport{
		port:     port,
		loopback: make(chan Frame, loopbackChanSize),
		done:     newCloseOnce(),
	}
	t.wg.Add(1)
	go t.readLoop()
	return t
}

// readLoop reads dongle records line by line and delivers the decoded
// frames. Read timeouts surface as io.EOF with a partial line; the
// partial input is kept and completed on the next read.
func (t *SerialTransport) readLoop() {
	defer t.wg.Done()

	var pending strings.Builder
	buf := make([]byte, 256)

	for {
		if t.isClosed() {
			return
		}
		n, err := t.port.Read(buf)
		if n > 0 {
			pending.Write(buf[:n])
		}
		if err != nil {
			if t.isClosed() {
				return
			}
			if errors.Is(err, io.EOF) {
				// Read timeout; keep any partial line and poll again.
				t.flushLines(&pending)
				continue
			}
			t.logError("serial read failed", err)
			return
		}
		t.flushLines(&pending)
	}
}

// flushLines parses every complete line accumulated so far, keeping any
// trailing partial line for the next read.
func (t *SerialTransport) flushLines(pending *strings.Builder) {
	s := pending.String()
	for {
		idx := strings.IndexByte(s, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(s[:idx])
		s = s[idx+1:]
		if line == "" {
			continue
		}
		t.handleLine(line)
	}
	pending.Reset()
	pending.WriteString(s)
}

// handleLine decodes one record and routes it: every frame goes to the
// registered callback, loopback echoes additionally feed the blocking
// Send path.
func (t *SerialTransport) handleLine(line string) {
	frame := ParseLine(line)
	if frame.Status == StatusLoopback {
		select {
		case t.loopback <- frame:
		default:
			// Stale echoes are harmless; drop rather than block the
			// receive path.
		}
	}
	t.cbMu.RLock()
	callback := t.onFrame
	t.cbMu.RUnlock()
	if callback != nil {
		callback(frame)
	}
}

// ParseLine decodes one dongle record into a Frame.
//
// Record layout inside curly braces: 8 hex digits of dongle tick time,
// one direction marker ('>' for loopback), 2 hex digits of bit length or
// status code, a space, and 8 hex digits of frame data. 8-bit frames are
// normalized to the backward class regardless of the direction marker.
func ParseLine(line string) Frame {
	start := strings.IndexByte(line, '{')
	end := strings.IndexByte(line, '}')
	if start < 0 || end <= start {
		return FromRaw(0, 0, StatusUndefined, "unframed record")
	}
	payload := line[start+1 : end]
	if len(payload) < 20 {
		return FromRaw(0, 0, StatusUndefined, "short record")
	}

	loopback := payload[8] == '>'
	lengthField, err := strconv.ParseUint(payload[9:11], 16, 16)
	if err != nil {
		return FromRaw(0, 0, StatusUndefined, "bad length field")
	}
	data, err := strconv.ParseUint(payload[12:20], 16, 32)
	if err != nil {
		return FromRaw(0, 0, StatusUndefined, "bad data field")
	}

	status, message := classifyRecord(lengthField, uint32(data), loopback)

	bits := uint8(0)
	if lengthField <= maxBitLength {
		bits = uint8(lengthField)
	}
	return FromRaw(bits, uint32(data), status, message)
}

// classifyRecord maps a record's length field to a frame status. Length
// fields up to 32 are real frames; higher values are dongle status codes.
func classifyRecord(lengthField uint64, data uint32, loopback bool) (Status, string) {
	if lengthField <= maxBitLength {
		if loopback {
			return StatusLoopback, "loopback frame"
		}
		return StatusFrame, "bus frame"
	}
	switch lengthField {
	case codeTimeout:
		return StatusTimeout, "timeout"
	case codeBadStartBitTiming:
		bit := data & 0xFF
		timerUS := (data >> 8) & 0xFFFFF
		return StatusTiming, fmt.Sprintf("start bit timing: bit %d at %d us", bit, timerUS)
	case codeBadDataBitTiming:
		bit := data & 0xFF
		timerUS := (data >> 8) & 0xFFFFF
		return StatusTiming, fmt.Sprintf("data bit timing: bit %d at %d us", bit, timerUS)
	case codeCollisionLoopback, codeCollisionNoChange, codeCollisionWrongState:
		return StatusCollision, "collision detected"
	case codeSettlingTime:
		return StatusTiming, "settling time violation"
	case codeSystemIdle:
		return StatusOK, "system idle"
	case codeSystemFailure:
		return StatusFailure, "bus power failure"
	case codeSystemRecovered:
		return StatusRecover, "bus power recovered"
	case codeCommandNotProcessed, codeCommandBadArgument, codeQueueIsFull, codeCommandBad, codeBufferOverflow:
		return StatusInterface, fmt.Sprintf("interface error 0x%02X", lengthField)
	default:
		return StatusUndefined, fmt.Sprintf("unknown code 0x%02X", lengthField)
	}
}

// BuildCommand renders a frame as a dongle command line. Backward frames
// use the "Y" form; forward frames use "S" (send) or "Q" (query with
// dongle-side reply tracking — the core correlator owns reply pairing,
// so Send always uses the "S" form).
func BuildCommand(frame Frame, isQuery bool) string {
	if frame.Length == LengthBackward {
		return fmt.Sprintf("Y%X\r", frame.Data)
	}
	command := "S"
	if isQuery {
		command = "Q"
	}
	twice := " "
	if frame.SendTwice {
		twice = "+"
	}
	return fmt.Sprintf("%s%d %X%s%X\r", command, frame.Priority, frame.Length, twice, frame.Data)
}

// Send writes the frame's command line to the dongle. With block set it
// waits for the dongle to echo the transmission back (twice for
// send-twice frames), which acknowledges transmission completion.
func (t *SerialTransport) Send(frame Frame, block bool) error {
	if t.isClosed() {
		return ErrHalted
	}

	command := BuildCommand(frame, false)
	t.writeMu.Lock()
	_, err := io.WriteString(t.port, command)
	t.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: serial write: %w", ErrTransmitFailed, err)
	}
	if !block {
		return nil
	}

	if err := t.awaitLoopback(frame); err != nil {
		return err
	}
	if frame.SendTwice {
		return t.awaitLoopback(frame)
	}
	return nil
}

// awaitLoopback waits for the dongle's echo of the given frame. Stale
// echoes from earlier traffic are skipped.
func (t *SerialTransport) awaitLoopback(frame Frame) error {
	timer := time.NewTimer(loopbackTimeout)
	defer timer.Stop()

	for {
		select {
		case echo := <-t.loopback:
			if echo.Data == frame.Data && echo.Length == frame.Length {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("%w: no loopback for frame 0x%X", ErrTransmitFailed, frame.Data)
		case <-t.done.Done():
			return ErrHalted
		}
	}
}

// SetOnFrame registers the inbound frame callback.
func (t *SerialTransport) SetOnFrame(callback func(Frame)) {
	t.cbMu.Lock()
	t.onFrame = callback
	t.cbMu.Unlock()
}

// SupportsPower reports false: the serial dongle has no built-in bus
// power supply.
func (t *SerialTransport) SupportsPower() bool {
	return false
}

// SetPower always fails: see SupportsPower.
func (t *SerialTransport) SetPower(bool) error {
	return ErrUnsupported
}

// SetLogger sets the logger for this transport.
func (t *SerialTransport) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	t.logger = logger
	t.loggerMu.Unlock()
}

// Close stops the receive loop and closes the port. Safe to call
// multiple times.
func (t *SerialTransport) Close() error {
	t.done.Close()
	err := t.port.Close()
	t.wg.Wait()
	return err
}

// isClosed returns true if the transport has been closed.
func (t *SerialTransport) isClosed() bool {
	select {
	case <-t.done.Done():
		return true
	default:
		return false
	}
}

// logError logs an error if a logger is set.
func (t *SerialTransport) logError(msg string, err error) {
	t.loggerMu.RLock()
	logger := t.logger
	t.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

// Ensure SerialTransport implements Transport.
var _ Transport = (*SerialTransport)(nil)
