// Package health reports whether the subscription client and its companion
// services are working.
//
// A Status has one of three levels: healthy, degraded (working with reduced
// function, such as a client that is reconnecting) and unhealthy. Status
// messages built from errors are sanitized so endpoints, paths and credentials
// never reach a health response.
//
// FromConnection derives a Status from a connection snapshot. Monitor collects
// statuses from many components, either pushed with Update or pulled through a
// registered Probe, and AggregateHealth folds them into one:
//
//	monitor := health.NewMonitor()
//	monitor.Register("websocket", c.Health)
//	monitor.UpdateHealthy("nats", "Connected")
//
//	system := monitor.AggregateHealth("symbolws")
//	if system.IsUnhealthy() {
//	    // serve 503
//	}
package health
