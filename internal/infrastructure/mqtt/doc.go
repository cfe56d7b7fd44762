// Package mqtt provides MQTT client connectivity for the DALI bridge.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Lux Grid uses MQTT as the message bus connecting protocol bridges
// to the rest of the system. The broker (Mosquitto) decouples
// consumers from protocol-specific implementations.
//
//	Consumers ↔ MQTT Broker ↔ DALI Bridge ↔ DALI Bus
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all bridge frame traffic
//	err = client.Subscribe(mqtt.Topics{}.AllBridgeFrames(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a command
//	topic := mqtt.Topics{}.BridgeCommand("dali", "main")
//	client.Publish(topic, []byte(`{"length":16,"data":65029}`), 1, false)
package mqtt
