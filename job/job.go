// Package job implements the Job Scheduler (C7): job configuration and
// records, cache-strategy lookups that can short-circuit execution, the
// at-most-one-evaluation-per-fingerprint guarantee, and both sequential
// and pooled processors. Grounded on scheduler.CronScheduler's job-map
// plus per-job execution-history bookkeeping
// (_examples/GoCodeAlone-workflow/scheduler/scheduler.go), generalized
// from cron-triggered to on-demand, cache-aware dispatch.
package job

import (
	"time"

	"github.com/DHARPA-Project/kiara-sub003/hashing"
	"github.com/DHARPA-Project/kiara-sub003/manifest"
	"github.com/google/uuid"
)

// CacheStrategy controls how a job's result may be reused across calls
// with equivalent inputs (spec §7).
type CacheStrategy string

const (
	// CacheNone always (re)executes the module.
	CacheNone CacheStrategy = "no_cache"
	// CacheByValueID reuses a prior result when every input ValueID
	// matches exactly (identity-based cache).
	CacheByValueID CacheStrategy = "value_id"
	// CacheByDataHash reuses a prior result when every input's data hash
	// matches, regardless of ValueID (content-based cache, survives
	// re-registration of equivalent data under a new ID).
	CacheByDataHash CacheStrategy = "data_hash"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Reason further qualifies a terminal FAILED/CANCELLED Record (spec §5's
// Open Question: "reason ∈ {TIMEOUT, CANCELLED}"). It is empty for an
// ordinary module-error failure or a successful job.
type Reason string

const (
	ReasonTimeout   Reason = "TIMEOUT"
	ReasonCancelled Reason = "CANCELLED"
)

// Config describes one unit of dispatchable work: a manifest to
// construct a module instance from, and the resolved input ValueIDs to
// invoke Process with. Timeout, if positive, bounds how long Execute
// waits for a terminal state before failing the job with
// Reason=TIMEOUT; zero means no deadline.
type Config struct {
	Manifest    manifest.Manifest
	Inputs      map[string]uuid.UUID
	InputHashes map[string]hashing.CID // populated by the caller for CacheByDataHash
	Cache       CacheStrategy
	Timeout     time.Duration
}

// fingerprint returns the cache key for cfg under its declared strategy.
// Empty string means "never matches anything" (CacheNone).
func (c Config) fingerprint() (string, error) {
	manifestHash, err := c.Manifest.Hash()
	if err != nil {
		return "", err
	}

	switch c.Cache {
	case CacheByValueID:
		return hashKeyFor(string(manifestHash), idMap(c.Inputs))
	case CacheByDataHash:
		return hashKeyFor(string(manifestHash), hashMap(c.InputHashes))
	default:
		return "", nil
	}
}

func idMap(m map[string]uuid.UUID) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.String()
	}
	return out
}

func hashMap(m map[string]hashing.CID) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = string(v)
	}
	return out
}

func hashKeyFor(manifestHash string, inputs map[string]any) (string, error) {
	cid, err := hashing.Compute(map[string]any{
		"manifest_hash": manifestHash,
		"inputs":        inputs,
	})
	if err != nil {
		return "", err
	}
	return string(cid), nil
}

// Record is the durable bookkeeping entry for one job submission,
// analogous to scheduler.ExecutionRecord but keyed by content fingerprint
// rather than cron schedule.
type Record struct {
	ID          uuid.UUID
	Config      Config
	Status      Status
	Reason      Reason
	Fingerprint string
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Outputs     map[string]uuid.UUID
	Err         string
	Cached      bool
}

// Duration returns how long the job ran, zero if it never started.
func (r Record) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	end := r.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(r.StartedAt)
}
