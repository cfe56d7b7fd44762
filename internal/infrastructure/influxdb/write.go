package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteBusStats writes a snapshot of bus interface counters to InfluxDB.
//
// This is the primary method for recording bridge telemetry. The write
// is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - bus: Bus identifier (e.g., "main")
//   - framesTx, framesRx, framesDropped: Cumulative frame counters
//   - queries, queryTimeouts: Cumulative query exchange counters
//
// Example:
//
//	stats := iface.Stats()
//	client.WriteBusStats("main", stats.FramesTx, stats.FramesRx,
//	    stats.FramesDropped, stats.Queries, stats.QueryTimeouts)
func (c *Client) WriteBusStats(bus string, framesTx, framesRx, framesDropped, queries, queryTimeouts uint64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"dali_bus_stats",
		map[string]string{
			"bus": bus,
		},
		map[string]interface{}{
			"frames_tx":      int64(framesTx),
			"frames_rx":      int64(framesRx),
			"frames_dropped": int64(framesDropped),
			"queries":        int64(queries),
			"query_timeouts": int64(queryTimeouts),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteBusEvent records a bus anomaly event (collision, timing
// violation, power failure) for alerting and long-term diagnostics.
//
// Parameters:
//   - bus: Bus identifier
//   - status: The anomaly status name (e.g., "collision", "failure")
func (c *Client) WriteBusEvent(bus, status string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"dali_bus_events",
		map[string]string{
			"bus":    bus,
			"status": status,
		},
		map[string]interface{}{
			"count": int64(1),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteQueryLatency records the round-trip time of one query/reply
// exchange. Timed-out exchanges are not recorded here; they show up in
// the query_timeouts counter of WriteBusStats.
//
// Parameters:
//   - bus: Bus identifier
//   - latency: Time between request transmission and matched reply
func (c *Client) WriteQueryLatency(bus string, latency time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"dali_query_latency",
		map[string]string{
			"bus": bus,
		},
		map[string]interface{}{
			"latency_ms": float64(latency.Microseconds()) / 1000.0,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "bridge-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
