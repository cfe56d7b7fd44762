package dali

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []string
	connected     bool
	handlers      map[string]func(topic string, payload []byte)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, topic)
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) Disconnect(quiesce uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

func (m *MockMQTTClient) GetSubscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.subscriptions))
	copy(out, m.subscriptions)
	return out
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// SimulateMessage simulates receiving an MQTT message on a topic.
// Wildcard subscriptions match by prefix.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	var handler func(string, []byte)
	for sub, h := range m.handlers {
		if sub == topic || (strings.HasSuffix(sub, "/#") && strings.HasPrefix(topic, strings.TrimSuffix(sub, "#"))) {
			handler = h
			break
		}
	}
	m.mu.Unlock()
	if handler != nil {
		handler(topic, payload)
	}
}

// waitForPublish polls until a message on the given topic appears.
func waitForPublish(t *testing.T, m *MockMQTTClient, topic string) mockPublish {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, p := range m.GetPublished() {
			if p.Topic == topic {
				return p
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no message published on %s", topic)
	return mockPublish{}
}

func newTestBridge(t *testing.T) (*Bridge, *MockMQTTClient, *MockTransport, *Interface) {
	t.Helper()

	mqttClient := NewMockMQTTClient()
	transport := NewMockTransport()
	iface := Bind(transport, WithReplyWindow(100*time.Millisecond))

	bridge, err := NewBridge(BridgeOptions{
		Bus:        "main",
		Version:    "1.0.0",
		MQTTClient: mqttClient,
		Interface:  iface,
	})
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}

	t.Cleanup(func() {
		bridge.Stop()
		iface.Close()
	})

	if err := bridge.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	return bridge, mqttClient, transport, iface
}

func TestBridgeStartSubscribes(t *testing.T) {
	_, mqttClient, _, _ := newTestBridge(t)

	subs := mqttClient.GetSubscriptions()
	want := []string{
		CommandTopic("main"),
		QuerySubscribeTopic("main"),
		PowerTopic("main"),
	}
	for _, w := range want {
		found := false
		for _, s := range subs {
			if s == w {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing subscription %s (got %v)", w, subs)
		}
	}

	// Health is published retained on startup.
	health := waitForPublish(t, mqttClient, HealthTopic("main"))
	if !health.Retained {
		t.Error("health message must be retained")
	}
	var msg HealthMessage
	if err := json.Unmarshal(health.Payload, &msg); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if msg.Bridge != "dali" || msg.Bus != "main" {
		t.Errorf("health identifies %s/%s, want dali/main", msg.Bridge, msg.Bus)
	}
}

func TestBridgeHandlesSendCommand(t *testing.T) {
	_, mqttClient, transport, _ := newTestBridge(t)
	mqttClient.ClearPublished()

	cmd := SendCommand{
		ID:        "cmd-1",
		Timestamp: time.Now().UTC(),
		Length:    16,
		Data:      0xFF05,
		Priority:  2,
	}
	payload, _ := json.Marshal(cmd)
	mqttClient.SimulateMessage(CommandTopic("main"), payload)

	ack := waitForPublish(t, mqttClient, AckTopic("main"))
	var ackMsg AckMessage
	if err := json.Unmarshal(ack.Payload, &ackMsg); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ackMsg.CommandID != "cmd-1" {
		t.Errorf("ack CommandID = %s, want cmd-1", ackMsg.CommandID)
	}
	if ackMsg.Status != AckAccepted {
		t.Errorf("ack Status = %s, want accepted", ackMsg.Status)
	}

	sent := transport.Sent()
	if len(sent) != 1 || sent[0].Data != 0xFF05 {
		t.Fatalf("transport saw %v, want one frame 0xFF05", sent)
	}
}

func TestBridgeRejectsMalformedCommand(t *testing.T) {
	_, mqttClient, transport, _ := newTestBridge(t)
	mqttClient.ClearPublished()

	cmd := SendCommand{ID: "cmd-bad", Length: 16, Data: 0x12345} // too wide
	payload, _ := json.Marshal(cmd)
	mqttClient.SimulateMessage(CommandTopic("main"), payload)

	ack := waitForPublish(t, mqttClient, AckTopic("main"))
	var ackMsg AckMessage
	if err := json.Unmarshal(ack.Payload, &ackMsg); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ackMsg.Status != AckFailed {
		t.Errorf("ack Status = %s, want failed", ackMsg.Status)
	}
	if ackMsg.Error == "" {
		t.Error("failed ack should carry an error")
	}
	if len(transport.Sent()) != 0 {
		t.Error("malformed frame must not reach the transport")
	}
}

func TestBridgeHandlesQuery(t *testing.T) {
	_, mqttClient, transport, _ := newTestBridge(t)

	transport.ScriptReply(func(f Frame) bool { return f.IsForward() },
		10*time.Millisecond,
		FromRaw(8, 0xC8, StatusFrame, "bus frame"))
	mqttClient.ClearPublished()

	req := QueryRequest{
		RequestID: "req-1",
		Timestamp: time.Now().UTC(),
		Length:    16,
		Data:      0x0BA0,
	}
	payload, _ := json.Marshal(req)
	mqttClient.SimulateMessage(QueryTopic("main", "req-1"), payload)

	resp := waitForPublish(t, mqttClient, ReplyTopic("main", "req-1"))
	var respMsg QueryResponse
	if err := json.Unmarshal(resp.Payload, &respMsg); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if respMsg.Status != "ok" {
		t.Fatalf("response status = %s, want ok (%s)", respMsg.Status, respMsg.Error)
	}
	if respMsg.Value == nil || *respMsg.Value != 0xC8 {
		t.Errorf("response Value = %v, want 0xC8", respMsg.Value)
	}
}

func TestBridgeQueryTimeout(t *testing.T) {
	_, mqttClient, _, _ := newTestBridge(t)
	mqttClient.ClearPublished()

	req := QueryRequest{RequestID: "req-2", Length: 16, Data: 0x0BA0}
	payload, _ := json.Marshal(req)
	mqttClient.SimulateMessage(QueryTopic("main", "req-2"), payload)

	resp := waitForPublish(t, mqttClient, ReplyTopic("main", "req-2"))
	var respMsg QueryResponse
	if err := json.Unmarshal(resp.Payload, &respMsg); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	// No reply on the bus is a successful exchange with status timeout.
	if respMsg.Status != "timeout" {
		t.Errorf("response status = %s, want timeout", respMsg.Status)
	}
	if respMsg.Value != nil {
		t.Error("timeout response must not carry a value")
	}
	if respMsg.Error != "" {
		t.Errorf("timeout response Error = %q, want empty", respMsg.Error)
	}
}

func TestBridgePowerCommandUnsupported(t *testing.T) {
	mqttClient := NewMockMQTTClient()
	transport := NewMockTransport()
	transport.DisablePower()
	iface := Bind(transport)

	bridge, err := NewBridge(BridgeOptions{
		Bus:        "main",
		MQTTClient: mqttClient,
		Interface:  iface,
	})
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	t.Cleanup(func() {
		bridge.Stop()
		iface.Close()
	})
	if err := bridge.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	mqttClient.ClearPublished()

	cmd := PowerCommand{ID: "pwr-1", On: true}
	payload, _ := json.Marshal(cmd)
	mqttClient.SimulateMessage(PowerTopic("main"), payload)

	ack := waitForPublish(t, mqttClient, AckTopic("main"))
	var ackMsg AckMessage
	if err := json.Unmarshal(ack.Payload, &ackMsg); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ackMsg.Status != AckFailed {
		t.Errorf("ack Status = %s, want failed for unsupported power", ackMsg.Status)
	}
}

func TestBridgePublishesObservedFrames(t *testing.T) {
	_, mqttClient, transport, _ := newTestBridge(t)
	mqttClient.ClearPublished()

	// A forward frame with short address 5 observed on the bus.
	transport.Emit(FromRaw(16, uint32(5<<1|1)<<8|0x90, StatusFrame, "bus frame"))

	pub := waitForPublish(t, mqttClient, FrameTopic("main"))
	var msg FrameMessage
	if err := json.Unmarshal(pub.Payload, &msg); err != nil {
		t.Fatalf("unmarshal frame message: %v", err)
	}
	if msg.Status != "frame" {
		t.Errorf("frame status = %s, want frame", msg.Status)
	}
	if msg.ShortAddress == nil || *msg.ShortAddress != 5 {
		t.Errorf("ShortAddress = %v, want 5", msg.ShortAddress)
	}
}

func TestBridgeRecordsFrames(t *testing.T) {
	mqttClient := NewMockMQTTClient()
	transport := NewMockTransport()
	iface := Bind(transport)

	var recorded []Frame
	var mu sync.Mutex
	bridge, err := NewBridge(BridgeOptions{
		Bus:        "main",
		MQTTClient: mqttClient,
		Interface:  iface,
		Recorder: recorderFunc(func(f Frame) {
			mu.Lock()
			recorded = append(recorded, f)
			mu.Unlock()
		}),
	})
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	t.Cleanup(func() {
		bridge.Stop()
		iface.Close()
	})
	if err := bridge.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	transport.Emit(FromRaw(8, 0x2A, StatusFrame, "bus frame"))

	mu.Lock()
	defer mu.Unlock()
	if len(recorded) != 1 || recorded[0].Data != 0x2A {
		t.Fatalf("recorder saw %v, want one frame 0x2A", recorded)
	}
}

// recorderFunc adapts a function to the FrameRecorder interface.
type recorderFunc func(Frame)

func (f recorderFunc) RecordFrame(fr Frame) { f(fr) }

func TestBridgeMetrics(t *testing.T) {
	bridge, _, transport, iface := newTestBridge(t)

	if err := iface.Transmit(NewForwardFrame(0xFF, 0x05), false); err != nil {
		t.Fatalf("Transmit() error: %v", err)
	}
	transport.Emit(FromRaw(8, 0x01, StatusFrame, "bus frame"))

	metrics := bridge.GetMetrics()
	if !metrics.Connected {
		t.Error("Connected = false, want true")
	}
	if metrics.FramesTx != 1 {
		t.Errorf("FramesTx = %d, want 1", metrics.FramesTx)
	}
	if metrics.FramesRx < 1 {
		t.Errorf("FramesRx = %d, want at least 1", metrics.FramesRx)
	}
}
