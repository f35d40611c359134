package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "heating_bridge"

// PrometheusMetrics tracks bridge metrics on its own registry
type PrometheusMetrics struct {
	registry *prometheus.Registry

	framesPublished  *prometheus.CounterVec
	publishErrors    *prometheus.CounterVec
	messagesReceived prometheus.Counter
	inboundDropped   prometheus.Counter
	errors           *prometheus.CounterVec
	readingsStored   *prometheus.CounterVec
	connected        prometheus.Gauge
	appendDuration   prometheus.Histogram
}

// NewPrometheusMetrics creates a collector with all series registered
func NewPrometheusMetrics() *PrometheusMetrics {
	pm := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		framesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_published_total",
			Help:      "Modbus query frames published to the device topic.",
		}, []string{"query"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Modbus query frames that could not be published.",
		}, []string{"query"}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound messages consumed by the response router.",
		}),
		inboundDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_dropped_total",
			Help:      "Inbound messages dropped because the router queue was full.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Handled errors by kind.",
		}, []string{"kind"}),
		readingsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_stored_total",
			Help:      "Sensor readings appended to the store.",
		}, []string{"kind"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transport_connected",
			Help:      "1 when the MQTT client is connected, 0 otherwise.",
		}),
		appendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "append_duration_seconds",
			Help:      "Duration of sink append calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	pm.registry.MustRegister(
		pm.framesPublished,
		pm.publishErrors,
		pm.messagesReceived,
		pm.inboundDropped,
		pm.errors,
		pm.readingsStored,
		pm.connected,
		pm.appendDuration,
	)
	return pm
}

// Registry exposes the private registry so callers can add collectors
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// Handler returns the /metrics HTTP handler
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

func (pm *PrometheusMetrics) IncrementFramesPublished(query string) {
	pm.framesPublished.WithLabelValues(query).Inc()
}

func (pm *PrometheusMetrics) IncrementPublishErrors(query string) {
	pm.publishErrors.WithLabelValues(query).Inc()
}

func (pm *PrometheusMetrics) IncrementMessagesReceived() {
	pm.messagesReceived.Inc()
}

func (pm *PrometheusMetrics) IncrementInboundDropped() {
	pm.inboundDropped.Inc()
}

func (pm *PrometheusMetrics) RecordError(kind string) {
	pm.errors.WithLabelValues(kind).Inc()
}

func (pm *PrometheusMetrics) IncrementReadingsStored(kind string) {
	pm.readingsStored.WithLabelValues(kind).Inc()
}

// SetTransportConnected sets the connection gauge (1 = connected, 0 = disconnected)
func (pm *PrometheusMetrics) SetTransportConnected(connected bool) {
	if connected {
		pm.connected.Set(1)
	} else {
		pm.connected.Set(0)
	}
}

func (pm *PrometheusMetrics) ObserveAppendDuration(duration time.Duration) {
	pm.appendDuration.Observe(duration.Seconds())
}
