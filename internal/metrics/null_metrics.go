package metrics

import "time"

// NullMetrics is a no-op MetricsCollector used when metrics are disabled
type NullMetrics struct{}

// NewNullMetrics creates a new no-op metrics collector
func NewNullMetrics() *NullMetrics {
	return &NullMetrics{}
}

func (n *NullMetrics) IncrementFramesPublished(string)     {}
func (n *NullMetrics) IncrementPublishErrors(string)       {}
func (n *NullMetrics) IncrementMessagesReceived()          {}
func (n *NullMetrics) IncrementInboundDropped()            {}
func (n *NullMetrics) RecordError(string)                  {}
func (n *NullMetrics) IncrementReadingsStored(string)      {}
func (n *NullMetrics) SetTransportConnected(bool)          {}
func (n *NullMetrics) ObserveAppendDuration(time.Duration) {}
