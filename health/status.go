// Package health provides health monitoring functionality for the subscription
// client and the services around it
package health

import (
	"regexp"
	"strings"
	"time"
)

// Status levels
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Pre-compiled regexes for error message sanitization
var (
	httpURLRegex     = regexp.MustCompile(`https?://[^\s]+`)
	natsURLRegex     = regexp.MustCompile(`nats://[^\s]+`)
	wsURLRegex       = regexp.MustCompile(`wss?://[^\s]+`)
	postgresURLRegex = regexp.MustCompile(`postgres(ql)?://[^\s]+`)
	redisURLRegex    = regexp.MustCompile(`rediss?://[^\s]+`)
	unixPathRegex    = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	ipAddrRegex      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex        = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex  = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status represents the health state of a component or system
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related figures of a connection
type Metrics struct {
	Uptime         time.Duration `json:"uptime"`
	Reconnects     int64         `json:"reconnects"`
	FramesReceived int64         `json:"frames_received,omitempty"`
	LastActivity   time.Time     `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StatusHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StatusDegraded
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StatusUnhealthy
}

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus adds a sub-status and returns a copy
func (s Status) WithSubStatus(subStatus Status) Status {
	newSubStatuses := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(newSubStatuses, s.SubStatuses)
	s.SubStatuses = append(newSubStatuses, subStatus)
	return s
}

// sanitizeErrorMessage strips endpoints, paths, addresses and credentials from
// error text before it leaves the process in a health response.
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}

	sanitized := err

	// URLs before paths, as they contain paths
	for _, re := range []*regexp.Regexp{httpURLRegex, natsURLRegex, wsURLRegex, postgresURLRegex, redisURLRegex} {
		sanitized = re.ReplaceAllString(sanitized, "[URL]")
	}

	sanitized = unixPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")

	lower := strings.ToLower(sanitized)
	for _, word := range []string{"password", "token", "key", "secret", "credential"} {
		if strings.Contains(lower, word) {
			sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
			break
		}
	}

	return sanitized
}

// Connection is a point-in-time view of a websocket connection, enough to
// derive its health.
type Connection struct {
	Phase      string
	Open       bool
	Connecting bool
	Endpoint   string
	LastError  string
	Since      time.Time
	LastFrame  time.Time
	Reconnects int64
	Frames     int64
}

// FromConnection maps a connection snapshot to a status: open is healthy,
// connecting or reconnecting is degraded, anything else is unhealthy.
func FromConnection(name string, c Connection) Status {
	var status Status
	switch {
	case c.Open:
		status = NewHealthy(name, "Connected")
	case c.Connecting:
		status = NewDegraded(name, "Connecting ("+c.Phase+")")
	default:
		status = NewUnhealthy(name, "Not connected ("+c.Phase+")")
	}

	if c.LastError != "" && !c.Open {
		status.Message += ": " + sanitizeErrorMessage(c.LastError)
	}

	metrics := &Metrics{
		Reconnects:     c.Reconnects,
		FramesReceived: c.Frames,
		LastActivity:   c.LastFrame,
	}
	if !c.Since.IsZero() {
		metrics.Uptime = status.Timestamp.Sub(c.Since)
	}
	return status.WithMetrics(metrics)
}
