package mqtt

import "fmt"

// Topic prefixes for the Lux Grid MQTT namespace.
//
// All bridge topics use the flat scheme: luxgrid/{category}/{protocol}/{bus}
// This matches the DALI bridge's messages.go and all runtime subscribers.
const (
	// TopicPrefixBridge is the base for all bridge topics.
	// Flat scheme: luxgrid/{category}/{protocol}/{bus_or_id}
	TopicPrefixBridge = "luxgrid"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "luxgrid/system"
)

// Topics provides builders for Lux Grid MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Bridge topics use the flat scheme matching the DALI bridge's messages.go:
//
//	topics := mqtt.Topics{}
//	frameTopic := topics.BridgeFrame("dali", "main")
//	// Returns: "luxgrid/frame/dali/main"
type Topics struct{}

// =============================================================================
// Bridge Topics
// =============================================================================

// BridgeFrame returns the topic for raw frame traffic from a bridge.
//
// Example: luxgrid/frame/dali/main
func (Topics) BridgeFrame(protocol, bus string) string {
	return fmt.Sprintf("%s/frame/%s/%s", TopicPrefixBridge, protocol, bus)
}

// BridgeCommand returns the topic for commands to a bridge.
//
// Example: luxgrid/command/dali/main
func (Topics) BridgeCommand(protocol, bus string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixBridge, protocol, bus)
}

// BridgeAck returns the topic for command acknowledgements from a bridge.
//
// Example: luxgrid/ack/dali/main
func (Topics) BridgeAck(protocol, bus string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefixBridge, protocol, bus)
}

// BridgeQuery returns the topic for query requests to a bridge.
//
// Example: luxgrid/query/dali/main/req-abc123
func (Topics) BridgeQuery(protocol, bus, requestID string) string {
	return fmt.Sprintf("%s/query/%s/%s/%s", TopicPrefixBridge, protocol, bus, requestID)
}

// BridgeReply returns the topic for query replies from a bridge.
//
// Example: luxgrid/reply/dali/main/req-abc123
func (Topics) BridgeReply(protocol, bus, requestID string) string {
	return fmt.Sprintf("%s/reply/%s/%s/%s", TopicPrefixBridge, protocol, bus, requestID)
}

// BridgePower returns the topic for bus power commands to a bridge.
//
// Example: luxgrid/power/dali/main
func (Topics) BridgePower(protocol, bus string) string {
	return fmt.Sprintf("%s/power/%s/%s", TopicPrefixBridge, protocol, bus)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: luxgrid/health/dali/main
func (Topics) BridgeHealth(protocol, bus string) string {
	return fmt.Sprintf("%s/health/%s/%s", TopicPrefixBridge, protocol, bus)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
//
// Example: luxgrid/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: luxgrid/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllBridgeFrames returns a pattern matching all bridge frame traffic.
//
// Pattern: luxgrid/frame/+/+
func (Topics) AllBridgeFrames() string {
	return fmt.Sprintf("%s/frame/+/+", TopicPrefixBridge)
}

// AllBridgeCommands returns a pattern matching all commands to bridges.
//
// Pattern: luxgrid/command/+/+
func (Topics) AllBridgeCommands() string {
	return fmt.Sprintf("%s/command/+/+", TopicPrefixBridge)
}

// AllBridgeAcks returns a pattern matching all bridge acknowledgements.
//
// Pattern: luxgrid/ack/+/+
func (Topics) AllBridgeAcks() string {
	return fmt.Sprintf("%s/ack/+/+", TopicPrefixBridge)
}

// AllBridgeHealth returns a pattern matching all bridge health updates.
//
// Pattern: luxgrid/health/+/+
func (Topics) AllBridgeHealth() string {
	return fmt.Sprintf("%s/health/+/+", TopicPrefixBridge)
}

// AllBridgeQueries returns a pattern matching all bridge query topics.
//
// Pattern: luxgrid/query/+/+/+
func (Topics) AllBridgeQueries() string {
	return fmt.Sprintf("%s/query/+/+/+", TopicPrefixBridge)
}

// AllBridgeReplies returns a pattern matching all bridge reply topics.
//
// Pattern: luxgrid/reply/+/+/+
func (Topics) AllBridgeReplies() string {
	return fmt.Sprintf("%s/reply/+/+/+", TopicPrefixBridge)
}

// AllTopics returns a pattern matching all Lux Grid topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: luxgrid/#
func (Topics) AllTopics() string {
	return "luxgrid/#"
}
