package event

import (
	"time"

	"github.com/DHARPA-Project/kiara-sub003/hashing"
	"github.com/google/uuid"
)

// Value lifecycle events (C3).

// ValueCreated is published when RegisterData mints a new Value (not
// when a fingerprint hit returns an existing one).
type ValueCreated struct {
	ValueID    uuid.UUID
	SchemaType string
	DataHash   hashing.CID
}

// ValuePreStore is published before a value is written to an archive.
type ValuePreStore struct {
	ValueID uuid.UUID
	Archive string
}

// ValueStored is published after a value is durably written.
type ValueStored struct {
	ValueID uuid.UUID
	Archive string
}

// AliasPreStore is published before an alias binding is durably
// recorded.
type AliasPreStore struct {
	Alias   string
	ValueID uuid.UUID
}

// AliasStored is published whenever an alias is (re)bound.
type AliasStored struct {
	Alias   string
	ValueID uuid.UUID
}

// Pipeline lifecycle events (C5/C6).

// StepStateChanged is published whenever a step transitions in the
// STALE -> INPUTS_READY -> RUNNING -> RESULTS_READY/FAILED machine.
type StepStateChanged struct {
	PipelineInstanceID uuid.UUID
	StepID             string
	From               string
	To                  string
	Timestamp          time.Time
}

// StepInputChanged is published when an upstream value change
// invalidates a downstream step's inputs, forcing it back to STALE.
type StepInputChanged struct {
	PipelineInstanceID uuid.UUID
	StepID             string
	FieldName          string
}

// PipelineStageCompleted is published once every step in a stratified
// stage has reached a terminal state.
type PipelineStageCompleted struct {
	PipelineInstanceID uuid.UUID
	StageIndex         int
}

// PipelineInputChanged is published when SetInput binds a pipeline-level
// input field to a Value.
type PipelineInputChanged struct {
	PipelineInstanceID uuid.UUID
	FieldName          string
	ValueID            uuid.UUID
}

// StepOutputChanged is published when a step's Process call produces a
// new output value for one of its output fields.
type StepOutputChanged struct {
	PipelineInstanceID uuid.UUID
	StepID             string
	FieldName          string
	ValueID            uuid.UUID
}

// PipelineOutputChanged is published when a value newly satisfies a
// pipeline-level output link.
type PipelineOutputChanged struct {
	PipelineInstanceID uuid.UUID
	FieldName          string
	ValueID            uuid.UUID
}

// Job lifecycle events (C7).

// JobCreated is published when the scheduler accepts a new job.
type JobCreated struct {
	JobID      uuid.UUID
	ModuleType string
	CacheKey   string
}

// JobStarted is published when a worker begins executing a job.
type JobStarted struct {
	JobID uuid.UUID
}

// JobSucceeded is published when a job finishes successfully.
type JobSucceeded struct {
	JobID    uuid.UUID
	Duration time.Duration
	Cached   bool
}

// JobFailed is published when a job terminates in error.
type JobFailed struct {
	JobID    uuid.UUID
	Duration time.Duration
	Err      string
}

// JobCancelled is published when cooperative cancellation is observed.
type JobCancelled struct {
	JobID uuid.UUID
}

// JobRecordPreStore is published before a completed job's Record is
// written to the job archive.
type JobRecordPreStore struct {
	JobID uuid.UUID
}

// JobRecordStored is published after a job's Record has been durably
// written to the job archive. For a single job_id, events are globally
// ordered JobCreated < JobStarted < (JobSucceeded | JobFailed) <
// JobRecordStored.
type JobRecordStored struct {
	JobID   uuid.UUID
	Archive string
}
