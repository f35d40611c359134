package metrics

import "time"

// MetricsCollector defines the interface for collecting bridge metrics.
//
// Implementations:
//   - PrometheusMetrics: client_golang counters exposed on /metrics
//   - NullMetrics: no-op implementation when metrics are disabled
type MetricsCollector interface {
	// IncrementFramesPublished counts a query frame handed to the broker
	IncrementFramesPublished(query string)

	// IncrementPublishErrors counts a query frame the broker refused
	IncrementPublishErrors(query string)

	// IncrementMessagesReceived counts an inbound message taken off the queue
	IncrementMessagesReceived()

	// IncrementInboundDropped counts an inbound message dropped because the queue was full
	IncrementInboundDropped()

	// RecordError counts a handled error by kind (crc_mismatch, persistence_failure, ...)
	RecordError(kind string)

	// IncrementReadingsStored counts a reading appended to the sink
	IncrementReadingsStored(kind string)

	// SetTransportConnected sets the broker connection gauge
	SetTransportConnected(connected bool)

	// ObserveAppendDuration records how long a sink append took
	ObserveAppendDuration(duration time.Duration)
}

// Compile-time verification
var (
	_ MetricsCollector = (*PrometheusMetrics)(nil)
	_ MetricsCollector = (*NullMetrics)(nil)
)
