package domain

import "time"

// Log levels attached to build output lines.
const (
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// LogEvent is one line of build output. Append-only; ordering is defined by
// Timestamp, not arrival order, and duplicates are possible under redelivery.
type LogEvent struct {
	DeploymentID string    `json:"deployment_id"`
	Timestamp    time.Time `json:"timestamp"`
	Level        string    `json:"level"`
	Text         string    `json:"text"`
}

// StatusEvent is a transient lifecycle transition message. Only its effect on
// the Deployment record is persisted.
type StatusEvent struct {
	DeploymentID string    `json:"deployment_id"`
	Status       string    `json:"status"`
	URL          string    `json:"url,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
