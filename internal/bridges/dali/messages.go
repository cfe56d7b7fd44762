package dali

import (
	"fmt"
	"time"
)

// MQTT message types for communication between Lux Grid Core and the
// DALI Bridge.

// FrameMessage is published by the Bridge for every frame observed on
// the bus, data frames and status events alike.
// Topic: luxgrid/frame/dali/{bus}
type FrameMessage struct {
	// Timestamp is when the frame was captured (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Bus is the bus identifier this bridge serves.
	Bus string `json:"bus"`

	// Length is the frame bit length: 8, 16, or 24. Zero for sentinel
	// and status records that carry no data.
	Length uint8 `json:"length"`

	// Data holds the frame bits, right-aligned.
	Data uint32 `json:"data"`

	// Status is the frame status name (e.g., "frame", "loopback",
	// "collision").
	Status string `json:"status"`

	// Message elaborates on Status for diagnostics.
	Message string `json:"message,omitempty"`

	// ShortAddress is the decoded 6-bit short address for forward
	// frames using short addressing; absent otherwise.
	ShortAddress *uint8 `json:"short_address,omitempty"`
}

// SendCommand is sent from Core to Bridge to transmit a frame.
// Topic: luxgrid/command/dali/{bus}
type SendCommand struct {
	// ID uniquely identifies this command for correlation with
	// acknowledgments.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Length is the frame bit length: 8, 16, or 24.
	Length uint8 `json:"length"`

	// Data holds the frame bits, right-aligned.
	Data uint32 `json:"data"`

	// Priority is the transmission priority digit (0 is highest).
	Priority uint8 `json:"priority,omitempty"`

	// SendTwice requests back-to-back double transmission, required
	// for DALI configuration commands.
	SendTwice bool `json:"send_twice,omitempty"`
}

// Frame converts the command payload into a bus frame.
func (c SendCommand) Frame() Frame {
	return Frame{
		Timestamp: time.Now(),
		Length:    c.Length,
		Data:      c.Data,
		Priority:  c.Priority,
		SendTwice: c.SendTwice,
		Status:    StatusOK,
		Message:   "ok",
	}
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the frame was transmitted on the bus.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the frame could not be transmitted.
	AckFailed AckStatus = "failed"
)

// AckMessage is sent from Bridge to Core to acknowledge a SendCommand.
// Topic: luxgrid/ack/dali/{bus}
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgment was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the acknowledgment status.
	Status AckStatus `json:"status"`

	// Error contains details if status is "failed".
	Error string `json:"error,omitempty"`
}

// QueryRequest is sent from Core to Bridge to run a query/reply
// exchange on the bus.
// Topic: luxgrid/query/dali/{bus}/{request_id}
type QueryRequest struct {
	// RequestID uniquely identifies this request for correlation.
	RequestID string `json:"request_id"`

	// Timestamp is when the request was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Length is the request frame bit length: 16 or 24.
	Length uint8 `json:"length"`

	// Data holds the request frame bits, right-aligned.
	Data uint32 `json:"data"`

	// Priority is the transmission priority digit (0 is highest).
	Priority uint8 `json:"priority,omitempty"`
}

// Frame converts the request payload into a bus frame.
func (q QueryRequest) Frame() Frame {
	return Frame{
		Timestamp: time.Now(),
		Length:    q.Length,
		Data:      q.Data,
		Priority:  q.Priority,
		Status:    StatusOK,
		Message:   "ok",
	}
}

// QueryResponse is sent from Bridge to Core with the exchange outcome.
// Topic: luxgrid/reply/dali/{bus}/{request_id}
//
// A missing reply is a successful exchange with status "timeout": on a
// live bus, silence is an answer (for instance, "no device at this
// address").
type QueryResponse struct {
	// RequestID is the ID from the original request.
	RequestID string `json:"request_id"`

	// Timestamp is when the response was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status is the outcome status name ("ok", "timeout", "busy",
	// "invalid_request").
	Status string `json:"status"`

	// Value is the reply byte, present only when Status is "ok".
	Value *uint8 `json:"value,omitempty"`

	// Error contains details for contract violations (busy, invalid
	// request, transport failure).
	Error string `json:"error,omitempty"`
}

// PowerCommand is sent from Core to Bridge to switch the bus power
// supply.
// Topic: luxgrid/power/dali/{bus}
type PowerCommand struct {
	// ID uniquely identifies this command.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// On requests the supply on (true) or off (false).
	On bool `json:"on"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline indicates the bridge is not connected (from LWT).
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is sent from Bridge to Core to report operational status.
// Topic: luxgrid/health/dali/{bus}
// QoS: 1, Retained: Yes
type HealthMessage struct {
	// Bridge is the bridge identifier ("dali").
	Bridge string `json:"bridge"`

	// Bus is the bus identifier this bridge serves.
	Bus string `json:"bus"`

	// Timestamp is when the health status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the bridge software version.
	Version string `json:"version"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// SupportsPower reports whether the bound transport can switch the
	// bus power supply.
	SupportsPower bool `json:"supports_power"`

	// Statistics contains operational metrics.
	Statistics *BridgeStatistics `json:"statistics,omitempty"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// BridgeStatistics contains operational metrics.
type BridgeStatistics struct {
	// FramesReceived is the total number of frames received from the bus.
	FramesReceived uint64 `json:"frames_received"`

	// FramesSent is the total number of frames transmitted.
	FramesSent uint64 `json:"frames_sent"`

	// FramesDropped is the total number of frames evicted from a full
	// receive queue.
	FramesDropped uint64 `json:"frames_dropped"`

	// Queries is the total number of query/reply exchanges run.
	Queries uint64 `json:"queries"`

	// QueryTimeouts is the number of exchanges that closed without a
	// reply.
	QueryTimeouts uint64 `json:"query_timeouts"`
}

// NewFrameMessage builds the publishable record for an observed frame.
func NewFrameMessage(bus string, f Frame) FrameMessage {
	msg := FrameMessage{
		Timestamp: f.Timestamp.UTC(),
		Bus:       bus,
		Length:    f.Length,
		Data:      f.Data,
		Status:    f.Status.String(),
		Message:   f.Message,
	}
	if addr, ok := f.ShortAddress(); ok {
		msg.ShortAddress = &addr
	}
	return msg
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bus, version string, status HealthStatus, stats Stats, supportsPower bool, startTime time.Time) HealthMessage {
	return HealthMessage{
		Bridge:        "dali",
		Bus:           bus,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		SupportsPower: supportsPower,
		Statistics: &BridgeStatistics{
			FramesReceived: stats.FramesRx,
			FramesSent:     stats.FramesTx,
			FramesDropped:  stats.FramesDropped,
			Queries:        stats.Queries,
			QueryTimeouts:  stats.QueryTimeouts,
		},
	}
}

// NewLWTMessage creates a Last Will and Testament message for MQTT.
// This message is published by the broker if the bridge disconnects
// unexpectedly.
func NewLWTMessage(bus string) HealthMessage {
	return HealthMessage{
		Bridge:    "dali",
		Bus:       bus,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// Topic helpers

const (
	// TopicPrefix is the base topic for all Lux Grid messages.
	TopicPrefix = "luxgrid"
)

// FrameTopic returns the MQTT topic for observed frames.
// Example: luxgrid/frame/dali/main
func FrameTopic(bus string) string {
	return fmt.Sprintf("%s/frame/dali/%s", TopicPrefix, bus)
}

// CommandTopic returns the MQTT topic for send commands.
// Example: luxgrid/command/dali/main
func CommandTopic(bus string) string {
	return fmt.Sprintf("%s/command/dali/%s", TopicPrefix, bus)
}

// AckTopic returns the MQTT topic for command acknowledgments.
// Example: luxgrid/ack/dali/main
func AckTopic(bus string) string {
	return fmt.Sprintf("%s/ack/dali/%s", TopicPrefix, bus)
}

// QueryTopic returns the MQTT topic for a query request.
// Example: luxgrid/query/dali/main/req-123
func QueryTopic(bus, requestID string) string {
	return fmt.Sprintf("%s/query/dali/%s/%s", TopicPrefix, bus, requestID)
}

// ReplyTopic returns the MQTT topic for a query response.
// Example: luxgrid/reply/dali/main/req-123
func ReplyTopic(bus, requestID string) string {
	return fmt.Sprintf("%s/reply/dali/%s/%s", TopicPrefix, bus, requestID)
}

// PowerTopic returns the MQTT topic for power commands.
// Example: luxgrid/power/dali/main
func PowerTopic(bus string) string {
	return fmt.Sprintf("%s/power/dali/%s", TopicPrefix, bus)
}

// HealthTopic returns the MQTT topic for health status.
// Example: luxgrid/health/dali/main
func HealthTopic(bus string) string {
	return fmt.Sprintf("%s/health/dali/%s", TopicPrefix, bus)
}

// QuerySubscribeTopic returns the subscription pattern for all query
// requests on a bus.
// Example: luxgrid/query/dali/main/#
func QuerySubscribeTopic(bus string) string {
	return fmt.Sprintf("%s/query/dali/%s/#", TopicPrefix, bus)
}
