package dali

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Bridge operation constants.
const (
	// minTopicParts is the minimum number of parts in a valid MQTT topic.
	minTopicParts = 4

	// defaultHealthInterval is the default health publishing cadence.
	defaultHealthInterval = 30 * time.Second
)

// Bridge orchestrates bidirectional translation between the DALI bus
// and MQTT. It handles:
//   - Receiving send/query/power commands from Core via MQTT and running
//     them on the bus interface
//   - Publishing every observed bus frame to MQTT
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	bus      string
	version  string
	mqtt     MQTTClient
	iface    BusInterface
	recorder FrameRecorder // Optional frame recorder for passive discovery

	healthInterval time.Duration
	startTime      time.Time

	// Shutdown coordination
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// BusInterface is the bus operations surface the bridge drives.
// Satisfied by *Interface; narrowed for mocking in tests.
type BusInterface interface {
	// Transmit sends a frame on the bus.
	Transmit(frame Frame, block bool) error

	// QueryReply runs a query/reply exchange.
	QueryReply(request Frame) (Frame, error)

	// Power switches the bus power supply.
	Power(on bool) error

	// SupportsPower reports the power capability.
	SupportsPower() bool

	// SetOnFrame registers a passive observer for received frames.
	SetOnFrame(callback func(Frame))

	// Stats returns operational counters.
	Stats() Stats
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool

	// Disconnect closes the connection gracefully.
	Disconnect(quiesce uint)
}

// FrameRecorder persists frames seen on the bus for passive discovery.
// This is optional - if nil, the bridge operates without recording.
type FrameRecorder interface {
	// RecordFrame records one observed frame.
	RecordFrame(f Frame)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Bus is the bus identifier used in topics ("main" if empty).
	Bus string

	// Version is the bridge software version reported in health.
	Version string

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Interface is the bound bus interface.
	Interface BusInterface

	// HealthInterval overrides the health publishing cadence.
	HealthInterval time.Duration

	// Logger is optional structured logger.
	Logger Logger

	// Recorder is optional frame recorder for passive discovery.
	// If nil, the bridge operates without recording seen frames.
	Recorder FrameRecorder
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Interface == nil {
		return nil, fmt.Errorf("bus interface is required")
	}
	if opts.Bus == "" {
		opts.Bus = "main"
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = defaultHealthInterval
	}

	return &Bridge{
		bus:            opts.Bus,
		version:        opts.Version,
		mqtt:           opts.MQTTClient,
		iface:          opts.Interface,
		recorder:       opts.Recorder, // May be nil (optional)
		healthInterval: opts.HealthInterval,
		done:           make(chan struct{}),
		logger:         opts.Logger,
	}, nil
}

// Start begins bridge operation.
// This subscribes to MQTT topics, sets up the bus frame observer, and
// starts health reporting.
func (b *Bridge) Start() error {
	b.startTime = time.Now()

	// Publish starting status
	b.publishHealth(HealthStarting, "")

	// Observe every bus frame
	b.iface.SetOnFrame(b.handleFrame)

	// Subscribe to command topic
	commandTopic := CommandTopic(b.bus)
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	// Subscribe to query topics
	queryTopic := QuerySubscribeTopic(b.bus)
	if err := b.mqtt.Subscribe(queryTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to queries: %w", err)
	}
	b.logInfo("subscribed to queries", "topic", queryTopic)

	// Subscribe to power topic
	powerTopic := PowerTopic(b.bus)
	if err := b.mqtt.Subscribe(powerTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to power commands: %w", err)
	}
	b.logInfo("subscribed to power commands", "topic", powerTopic)

	// Start periodic health reporting
	b.wg.Add(1)
	go b.healthLoop()

	// Publish initial healthy status
	b.publishHealth(HealthHealthy, "")

	b.logInfo("bridge started", "bus", b.bus)
	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		// Publish stopping status before the connection goes away
		b.publishHealth(HealthStopping, "shutdown")

		// Wait for pending operations
		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// healthLoop publishes health status on a fixed cadence until Stop.
func (b *Bridge) healthLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status := HealthHealthy
			reason := ""
			if !b.mqtt.IsConnected() {
				status = HealthDegraded
				reason = "mqtt_disconnected"
			}
			b.publishHealth(status, reason)
		case <-b.done:
			return
		}
	}
}

// publishHealth publishes a retained health message.
func (b *Bridge) publishHealth(status HealthStatus, reason string) {
	msg := NewHealthMessage(b.bus, b.version, status, b.iface.Stats(), b.iface.SupportsPower(), b.startTime)
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal health", err)
		return
	}
	if err := b.mqtt.Publish(HealthTopic(b.bus), payload, 1, true); err != nil {
		b.logError("failed to publish health", err)
	}
}

// handleMQTTMessage routes incoming MQTT messages to appropriate handlers.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	// Parse topic to determine message type
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		b.logError("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	messageType := parts[1] // command, query, power

	switch messageType {
	case "command":
		b.handleCommand(payload)
	case "query":
		b.handleQuery(payload)
	case "power":
		b.handlePower(payload)
	default:
		b.logError("unknown message type", fmt.Errorf("type: %s", messageType))
	}
}

// handleCommand processes a SendCommand from Core: transmit the frame
// and acknowledge.
func (b *Bridge) handleCommand(payload []byte) {
	var cmd SendCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		return
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"length", cmd.Length,
		"data", fmt.Sprintf("0x%X", cmd.Data))

	ack := AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Status:    AckAccepted,
	}
	if err := b.iface.Transmit(cmd.Frame(), true); err != nil {
		ack.Status = AckFailed
		ack.Error = err.Error()
		b.logError("transmit failed", err)
	}
	b.publishAck(ack)
}

// handleQuery processes a QueryRequest from Core. The exchange can
// block for the full reply window, so it runs off the MQTT handler
// thread; a busy interface surfaces in the response rather than
// stalling the broker connection.
func (b *Bridge) handleQuery(payload []byte) {
	var req QueryRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logError("failed to parse query request", err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	b.logInfo("received query",
		"request_id", req.RequestID,
		"data", fmt.Sprintf("0x%X", req.Data))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		reply, err := b.iface.QueryReply(req.Frame())

		resp := QueryResponse{
			RequestID: req.RequestID,
			Timestamp: time.Now().UTC(),
			Status:    reply.Status.String(),
		}
		switch {
		case err != nil:
			resp.Error = err.Error()
		case reply.Status == StatusOK:
			value := uint8(reply.Data)
			resp.Value = &value
		}

		respPayload, err := json.Marshal(resp)
		if err != nil {
			b.logError("failed to marshal query response", err)
			return
		}
		topic := ReplyTopic(b.bus, req.RequestID)
		if err := b.mqtt.Publish(topic, respPayload, 1, false); err != nil {
			b.logError("failed to publish query response", err)
		}
	}()
}

// handlePower processes a PowerCommand from Core.
func (b *Bridge) handlePower(payload []byte) {
	var cmd PowerCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse power command", err)
		return
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	ack := AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Status:    AckAccepted,
	}
	if err := b.iface.Power(cmd.On); err != nil {
		ack.Status = AckFailed
		ack.Error = err.Error()
		b.logError("power command failed", err)
	}
	b.publishAck(ack)
}

// publishAck publishes a command acknowledgment.
func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(AckTopic(b.bus), payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// handleFrame processes one frame observed on the bus: record it for
// passive discovery and publish it to MQTT. Called from the interface's
// receive path, so it must not block.
func (b *Bridge) handleFrame(f Frame) {
	// Record frame for passive discovery (before any early returns)
	if b.recorder != nil {
		b.recorder.RecordFrame(f)
	}

	msg := NewFrameMessage(b.bus, f)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal frame", err)
		return
	}
	if err := b.mqtt.Publish(FrameTopic(b.bus), payload, 0, false); err != nil {
		b.logError("failed to publish frame", err)
	}
}

// BridgeMetrics contains metrics data for telemetry reporting.
type BridgeMetrics struct {
	Connected     bool
	Status        string
	FramesTx      uint64
	FramesRx      uint64
	FramesDropped uint64
	Queries       uint64
	QueryTimeouts uint64
}

// GetMetrics returns current bridge metrics for telemetry reporting.
func (b *Bridge) GetMetrics() BridgeMetrics {
	stats := b.iface.Stats()
	connected := b.mqtt.IsConnected()
	status := "degraded"
	if connected {
		status = "healthy"
	}
	return BridgeMetrics{
		Connected:     connected,
		Status:        status,
		FramesTx:      stats.FramesTx,
		FramesRx:      stats.FramesRx,
		FramesDropped: stats.FramesDropped,
		Queries:       stats.Queries,
		QueryTimeouts: stats.QueryTimeouts,
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
