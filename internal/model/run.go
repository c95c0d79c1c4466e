package model

import "time"

// RunStatus is the lifecycle state of a batch run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one batch invocation of the engine over a set of clusters.
type Run struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Status    RunStatus `json:"status"`
	Stats     RunStats  `json:"stats"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunStats counts the outcome of a run.
type RunStats struct {
	Clusters  int `json:"clusters"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Features  int `json:"features"`
}

// ClusterFailure records a cluster skipped by a run.
type ClusterFailure struct {
	RunID     string `json:"run_id"`
	ClusterID int64  `json:"cluster_id"`
	Reason    string `json:"reason"`
}
