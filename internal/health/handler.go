package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Status values
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Uptime      string    `json:"uptime"`
	Connected   bool      `json:"transport_connected"`
	LastPublish string    `json:"last_publish"`
	LastReading string    `json:"last_reading"`
	Version     string    `json:"version,omitempty"`
}

// Checker provides the live state the health endpoint reports on
type Checker interface {
	IsConnected() bool
	LastPublish() time.Time
	LastReading() time.Time
}

// HealthHandler provides HTTP health check endpoint
type HealthHandler struct {
	startTime  time.Time
	checker    Checker
	staleAfter time.Duration
	version    string
	now        func() time.Time
}

// NewHealthHandler creates a health handler. A bridge that has stored no
// reading for staleAfter is reported degraded.
func NewHealthHandler(checker Checker, staleAfter time.Duration, version string) *HealthHandler {
	return &HealthHandler{
		startTime:  time.Now(),
		checker:    checker,
		staleAfter: staleAfter,
		version:    version,
		now:        time.Now,
	}
}

// ServeHTTP implements http.Handler interface for /health endpoint
func (hh *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := hh.Status()

	w.Header().Set("Content-Type", "application/json")
	statusCode := http.StatusOK
	if status.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	w.WriteHeader(statusCode)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(status); err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode health status: %v", err), http.StatusInternalServerError)
	}
}

// Status determines current health status
func (hh *HealthHandler) Status() HealthStatus {
	now := hh.now()
	uptime := now.Sub(hh.startTime)

	connected := hh.checker.IsConnected()
	lastPublish := hh.checker.LastPublish()
	lastReading := hh.checker.LastReading()

	status := StatusHealthy
	switch {
	case !connected:
		status = StatusUnhealthy
	case hh.staleAfter > 0 && lastReading.IsZero() && uptime > hh.staleAfter:
		status = StatusDegraded
	case hh.staleAfter > 0 && !lastReading.IsZero() && now.Sub(lastReading) > hh.staleAfter:
		status = StatusDegraded
	}

	return HealthStatus{
		Status:      status,
		Timestamp:   now,
		Uptime:      formatDuration(uptime),
		Connected:   connected,
		LastPublish: formatAgo(now, lastPublish),
		LastReading: formatAgo(now, lastReading),
		Version:     hh.version,
	}
}

func formatAgo(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	since := now.Sub(t)
	switch {
	case since < time.Minute:
		return fmt.Sprintf("%d seconds ago", int(since.Seconds()))
	case since < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(since.Minutes()))
	default:
		return fmt.Sprintf("%d hours ago", int(since.Hours()))
	}
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours %d minutes", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%d days %d hours", int(d.Hours())/24, int(d.Hours())%24)
	}
}
