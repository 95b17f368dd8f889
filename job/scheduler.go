package job

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DHARPA-Project/kiara-sub003/archive"
	"github.com/DHARPA-Project/kiara-sub003/event"
	"github.com/DHARPA-Project/kiara-sub003/kerr"
	"github.com/DHARPA-Project/kiara-sub003/manifest"
	"github.com/DHARPA-Project/kiara-sub003/value"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Scheduler dispatches jobs against module instances, deduplicating
// concurrent equivalent submissions via singleflight and serving cached
// results when a job's CacheStrategy allows it. Grounded on
// scheduler.CronScheduler's map-behind-one-mutex job bookkeeping
// (_examples/GoCodeAlone-workflow/scheduler/scheduler.go), with
// golang.org/x/sync/singleflight supplying the literal
// at-most-one-evaluation-per-fingerprint mechanism spec §5 calls for.
type Scheduler struct {
	modules *manifest.Registry
	values  *value.Registry
	emit    event.Emitter
	metrics *Metrics

	mu            sync.RWMutex
	records       map[uuid.UUID]*Record
	byFingerprint map[string]uuid.UUID
	cancelFlags   map[uuid.UUID]*atomic.Bool
	jobArchive    archive.Store

	sf singleflight.Group
}

// NewScheduler creates a Scheduler bound to the given module and value
// registries. emit and metrics may be nil.
func NewScheduler(modules *manifest.Registry, values *value.Registry, emit event.Emitter, metrics *Metrics) *Scheduler {
	return &Scheduler{
		modules:       modules,
		values:        values,
		emit:          emit,
		metrics:       metrics,
		records:       make(map[uuid.UUID]*Record),
		byFingerprint: make(map[string]uuid.UUID),
		cancelFlags:   make(map[uuid.UUID]*atomic.Bool),
	}
}

// MountJobArchive attaches the archive that completed job Records are
// written to (spec §5's "constructs a JobRecord; writes it to the job
// archive"). Without one, JobRecordPreStore/JobRecordStored are never
// emitted and Records only ever live in the in-memory index.
func (s *Scheduler) MountJobArchive(a archive.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobArchive = a
}

// Execute submits cfg for evaluation. If cfg.Cache permits reuse and an
// equivalent job has already completed successfully, the cached Record
// is returned without re-invoking the module. Concurrent calls sharing
// the same fingerprint are coalesced into a single evaluation.
func (s *Scheduler) Execute(ctx context.Context, cfg Config) (*Record, error) {
	fingerprint, err := cfg.fingerprint()
	if err != nil {
		return nil, kerr.Wrap(kerr.KindInvalidManifest, "failed to compute job fingerprint", err)
	}

	if fingerprint != "" {
		s.mu.RLock()
		if id, ok := s.byFingerprint[fingerprint]; ok {
			if rec, ok := s.records[id]; ok && rec.Status == StatusSucceeded {
				s.mu.RUnlock()
				cached := *rec
				cached.Cached = true
				s.recordMetrics(cfg.Manifest.ModuleType, cached)
				return &cached, nil
			}
		}
		s.mu.RUnlock()
	}

	sfKey := fingerprint
	if sfKey == "" {
		sfKey = uuid.NewString()
	}

	result, err, _ := s.sf.Do(sfKey, func() (any, error) {
		return s.run(ctx, cfg, fingerprint)
	})
	if err != nil {
		return nil, err
	}
	rec := result.(*Record)
	cp := *rec
	return &cp, nil
}

func (s *Scheduler) run(ctx context.Context, cfg Config, fingerprint string) (*Record, error) {
	rec := &Record{
		ID:          uuid.New(),
		Config:      cfg,
		Status:      StatusQueued,
		Fingerprint: fingerprint,
		SubmittedAt: time.Now(),
	}
	flag := &atomic.Bool{}

	s.mu.Lock()
	s.records[rec.ID] = rec
	s.cancelFlags[rec.ID] = flag
	s.mu.Unlock()

	if s.emit != nil {
		s.emit.Publish(event.JobCreated{JobID: rec.ID, ModuleType: cfg.Manifest.ModuleType, CacheKey: fingerprint})
	}

	if flag.Load() {
		s.setStatus(rec.ID, StatusCancelled, ReasonCancelled, "")
		if s.emit != nil {
			s.emit.Publish(event.JobCancelled{JobID: rec.ID})
		}
		return s.getRecord(rec.ID), nil
	}

	ctx, span := startSpan(ctx, cfg.Manifest.ModuleType)
	defer span.End()

	startedAt := time.Now()
	s.mu.Lock()
	rec.Status = StatusRunning
	rec.StartedAt = startedAt
	s.mu.Unlock()
	if s.emit != nil {
		s.emit.Publish(event.JobStarted{JobID: rec.ID})
	}

	outputs, err, reason := s.executeWithDeadline(ctx, cfg, flag)

	s.mu.Lock()
	rec.FinishedAt = time.Now()
	if err != nil {
		rec.Status = StatusFailed
		rec.Reason = reason
		rec.Err = err.Error()
	} else {
		rec.Status = StatusSucceeded
		rec.Outputs = outputs
		if fingerprint != "" {
			s.byFingerprint[fingerprint] = rec.ID
		}
	}
	result := *rec
	s.mu.Unlock()

	s.recordMetrics(cfg.Manifest.ModuleType, result)

	if err != nil {
		if s.emit != nil {
			s.emit.Publish(event.JobFailed{JobID: rec.ID, Duration: result.Duration(), Err: err.Error()})
		}
		return nil, err
	}
	if s.emit != nil {
		s.emit.Publish(event.JobSucceeded{JobID: rec.ID, Duration: result.Duration()})
	}
	s.storeRecord(ctx, result)
	return &result, nil
}

// storeRecord writes a finished job's Record to the mounted job archive,
// if any, emitting JobRecordPreStore then JobRecordStored around the
// write (spec §5's event sequence, terminating in JobRecordStored).
func (s *Scheduler) storeRecord(ctx context.Context, rec Record) {
	s.mu.RLock()
	a := s.jobArchive
	s.mu.RUnlock()
	if a == nil {
		return
	}

	if s.emit != nil {
		s.emit.Publish(event.JobRecordPreStore{JobID: rec.ID})
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := a.Put(ctx, rec.ID.String(), payload); err != nil {
		return
	}

	if s.emit != nil {
		s.emit.Publish(event.JobRecordStored{JobID: rec.ID, Archive: a.ArchiveName()})
	}
}

// executeWithDeadline runs execute to completion, racing it against
// cfg.Timeout when one is set. There is no hard kill: on deadline
// expiry the launched module evaluation keeps running in the
// background (its eventual result is simply never read), and flag is
// set so any cooperative check the module performs still observes
// cancellation (spec §5: "timeout triggers FAILED(reason=TIMEOUT),
// never a hard interrupt").
func (s *Scheduler) executeWithDeadline(ctx context.Context, cfg Config, flag *atomic.Bool) (map[string]uuid.UUID, error, Reason) {
	if cfg.Timeout <= 0 {
		outputs, err := s.execute(ctx, cfg)
		return outputs, err, ""
	}

	type result struct {
		outputs map[string]uuid.UUID
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outputs, err := s.execute(ctx, cfg)
		done <- result{outputs, err}
	}()

	timer := time.NewTimer(cfg.Timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.outputs, res.err, ""
	case <-timer.C:
		flag.Store(true)
		err := kerr.New(kerr.KindJobTimeout, "job exceeded its deadline").
			WithDetail("module_type", cfg.Manifest.ModuleType).
			WithDetail("timeout", cfg.Timeout.String())
		return nil, err, ReasonTimeout
	}
}

func (s *Scheduler) execute(ctx context.Context, cfg Config) (map[string]uuid.UUID, error) {
	instance, err := s.modules.GetOrCreate(cfg.Manifest)
	if err != nil {
		return nil, err
	}

	rawInputs := make(map[string]any, len(cfg.Inputs))
	for field, id := range cfg.Inputs {
		v, err := s.values.Get(id)
		if err != nil {
			return nil, kerr.Wrap(kerr.KindNotFound, "job input "+field, err)
		}
		rawInputs[field] = v.Data
	}

	rawOutputs, err := instance.Process(rawInputs)
	if err != nil {
		return nil, kerr.Wrap(kerr.KindJobFailed, "module execution failed", err)
	}

	manifestHash, err := cfg.Manifest.Hash()
	if err != nil {
		return nil, err
	}

	outSchema := map[string]manifest.FieldSchema{}
	if class, err := s.modules.Class(cfg.Manifest.ModuleType); err == nil {
		outSchema = class.OutputsSchema()
	}

	outputIDs := make(map[string]uuid.UUID, len(rawOutputs))
	for field, raw := range rawOutputs {
		fieldSchema, ok := outSchema[field]
		if !ok {
			fieldSchema = manifest.FieldSchema{TypeName: "any"}
		}
		pedigree := value.Pedigree{
			Manifest:    value.ManifestRef{ModuleType: cfg.Manifest.ModuleType, ManifestHash: manifestHash},
			Inputs:      cfg.Inputs,
			OutputField: field,
		}
		v, err := s.values.RegisterData(value.Schema{TypeName: fieldSchema.TypeName, TypeConfig: fieldSchema.TypeConfig}, raw, &pedigree)
		if err != nil {
			return nil, err
		}
		outputIDs[field] = v.ID
	}
	return outputIDs, nil
}

func (s *Scheduler) setStatus(id uuid.UUID, status Status, reason Reason, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.Status = status
		rec.Reason = reason
		if errMsg != "" {
			rec.Err = errMsg
		}
	}
}

func (s *Scheduler) getRecord(id uuid.UUID) *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[id]; ok {
		cp := *rec
		return &cp
	}
	return nil
}

// Status returns the current Record for a job.
func (s *Scheduler) Status(id uuid.UUID) (*Record, error) {
	rec := s.getRecord(id)
	if rec == nil {
		return nil, kerr.New(kerr.KindNotFound, "no such job").WithDetail("job_id", id.String())
	}
	return rec, nil
}

// Results returns the output ValueIDs of a succeeded job.
func (s *Scheduler) Results(id uuid.UUID) (map[string]uuid.UUID, error) {
	rec, err := s.Status(id)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusSucceeded {
		return nil, kerr.New(kerr.KindJobFailed, "job has not succeeded").WithDetail("status", string(rec.Status))
	}
	return rec.Outputs, nil
}

// Cancel requests cooperative cancellation of a queued job. It never
// interrupts a job that has already started running (spec §7: "never a
// hard interrupt"); once RUNNING, a job always runs to completion.
func (s *Scheduler) Cancel(id uuid.UUID) error {
	s.mu.RLock()
	flag, ok := s.cancelFlags[id]
	s.mu.RUnlock()
	if !ok {
		return kerr.New(kerr.KindNotFound, "no such job").WithDetail("job_id", id.String())
	}
	flag.Store(true)
	return nil
}
