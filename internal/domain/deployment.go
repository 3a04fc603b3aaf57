package domain

import "time"

// Deployment statuses as they appear on the wire and in the metadata store.
const (
	StatusQueued     = "QUEUED"
	StatusInProgress = "IN_PROGRESS"
	StatusReady      = "READY"
	StatusFail       = "FAIL"
)

// Deployment tracks one build-and-publish attempt for a project.
type Deployment struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Status    string    `json:"status"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusRank orders deployment statuses along the lifecycle. A transition is
// applied only when the incoming status ranks strictly above the stored one,
// which makes terminal states immutable and duplicate deliveries no-ops.
func StatusRank(status string) int {
	switch status {
	case StatusQueued:
		return 0
	case StatusInProgress:
		return 1
	case StatusReady, StatusFail:
		return 2
	default:
		return -1
	}
}

// ValidStatus reports whether the value is one of the wire-level statuses.
func ValidStatus(status string) bool {
	return StatusRank(status) >= 0
}
