package messaging

import (
	"context"
	"fmt"
	"time"
)

// HealthStatus represents the health state of a messaging connection.
type HealthStatus struct {
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
}

// Healthy reports whether the connection is usable.
func (s HealthStatus) Healthy() bool {
	return s.Connected && s.Error == ""
}

// CheckClientHealth verifies the client is connected and can reach the
// broker. A missing responder still counts as healthy.
func CheckClientHealth(ctx context.Context, client Client) HealthStatus {
	status := HealthStatus{}

	if client == nil {
		status.Error = "client is nil"
		return status
	}

	status.Connected = client.IsConnected()
	if !status.Connected {
		status.Error = "not connected to message broker"
		return status
	}

	start := time.Now()
	_, err := client.Request(ctx, "_HEALTH.ping", []byte("ping"), 2*time.Second)
	status.Latency = time.Since(start)

	if err != nil && !client.IsConnected() {
		status.Connected = false
		status.Error = fmt.Sprintf("health check failed: %v", err)
	}

	return status
}
