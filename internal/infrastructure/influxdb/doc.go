// Package influxdb provides InfluxDB connectivity for the DALI bridge.
//
// It wraps the official influxdb-client-go v2 library with bridge-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Bus interface counters (frames sent/received/dropped, queries)
//   - Bus anomaly events (collisions, timing violations, power failures)
//   - Query round-trip latency
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "luxgrid",
//	    Bucket: "dali",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Write bus counters
//	stats := iface.Stats()
//	client.WriteBusStats("main", stats.FramesTx, stats.FramesRx,
//	    stats.FramesDropped, stats.Queries, stats.QueryTimeouts)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
