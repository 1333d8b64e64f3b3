package jobregistry

import "time"

// JobState is the lifecycle state of a managed download job.
//
// NOTE: These values are persisted in job.json and are part of the stable
// on-disk contract.
type JobState string

const (
	JobStateQueued   JobState = "queued"
	JobStateRunning  JobState = "running"
	JobStateStopping JobState = "stopping"
	JobStateStopped  JobState = "stopped"
	JobStateSuccess  JobState = "success"
	JobStatePartial  JobState = "partial"
	JobStateFailed   JobState = "failed"
	JobStateUnknown  JobState = "unknown"
)

// EffectiveIdentity is a minimal identity summary captured for operator clarity.
//
// This is intentionally shallow and string-only so the job registry stays
// stable even if deeper identity schemas evolve.
type EffectiveIdentity struct {
	Region       string `json:"region,omitempty"`
	EndpointHost string `json:"endpoint_host,omitempty"`
	NoSignRequest bool  `json:"no_sign_request,omitempty"`
}

// JobRecord is the persistent record written to job.json for one `dl` run.
//
// The schema is designed for backward-compatible extension (additive fields).
type JobRecord struct {
	JobID     string   `json:"job_id"`
	Name      string   `json:"name,omitempty"`
	State     JobState `json:"state"`
	Pattern   string   `json:"pattern"`
	Dest      string   `json:"dest"`
	PathMode  string   `json:"path_mode,omitempty"`
	RunID     string   `json:"run_id,omitempty"`
	PID       int      `json:"pid,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	StartedAt     *time.Time         `json:"started_at,omitempty"`
	EndedAt       *time.Time         `json:"ended_at,omitempty"`
	LastHeartbeat *time.Time         `json:"last_heartbeat,omitempty"`
	Identity      *EffectiveIdentity `json:"effective_identity,omitempty"`
	StdoutPath    string             `json:"stdout_path,omitempty"`
	StderrPath    string             `json:"stderr_path,omitempty"`

	ObjectsDownloaded int64 `json:"objects_downloaded,omitempty"`
	BytesDownloaded   int64 `json:"bytes_downloaded,omitempty"`
	Errors            int64 `json:"errors,omitempty"`
}
