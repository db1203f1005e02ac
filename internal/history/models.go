package history

import "time"

// Status is the lifecycle state of a delivery.
type Status string

const (
	StatusSynced     Status = "synced"      // synchronized, no command configured
	StatusSyncFailed Status = "sync_failed" // git fetch or reset failed
	StatusRunning    Status = "running"     // command dispatched
	StatusSucceeded  Status = "succeeded"   // command exited 0
	StatusFailed     Status = "failed"      // command failed to start or exited non-zero
)

// Terminal reports whether no further update is expected for the delivery.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// DeliveryRecord represents a single webhook delivery that reached synchronization
type DeliveryRecord struct {
	ID              int64      `json:"id"`
	Repo            string     `json:"repo"`
	Event           string     `json:"event"`
	DeliveryID      string     `json:"delivery_id,omitempty"`
	Branch          string     `json:"branch"`
	CommitSHA       *string    `json:"commit_sha,omitempty"`
	Status          Status     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	ExitCode        *int       `json:"exit_code,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
}

// RepoStatus is the latest delivery of a repository plus its recent history
type RepoStatus struct {
	Repo           string           `json:"repo"`
	LatestDelivery *DeliveryRecord  `json:"latest_delivery,omitempty"`
	RecentHistory  []DeliveryRecord `json:"recent_history"`
}
