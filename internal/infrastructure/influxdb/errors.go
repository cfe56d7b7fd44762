package influxdb

import "errors"

// Sentinel errors for telemetry operations, checked with errors.Is.
// Telemetry is best-effort: callers log these and carry on rather than
// failing the bus path.
var (
	// ErrNotConnected indicates no live InfluxDB connection.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial connect failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed indicates a synchronous write failed. Batched
	// writes report their errors through the error callback instead.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled indicates telemetry is switched off in configuration.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
