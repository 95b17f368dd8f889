package pipeline

import (
	"context"
	"time"

	"github.com/DHARPA-Project/kiara-sub003/event"
	"github.com/DHARPA-Project/kiara-sub003/hashing"
	"github.com/DHARPA-Project/kiara-sub003/job"
	"github.com/DHARPA-Project/kiara-sub003/kerr"
	"github.com/DHARPA-Project/kiara-sub003/value"
	"github.com/google/uuid"
)

// StepState is one node's position in the per-instance state machine
// (spec §6: "STALE -> INPUTS_READY -> RUNNING -> RESULTS_READY/FAILED").
type StepState string

const (
	StepStale        StepState = "STALE"
	StepInputsReady  StepState = "INPUTS_READY"
	StepRunning      StepState = "RUNNING"
	StepResultsReady StepState = "RESULTS_READY"
	StepFailed       StepState = "FAILED"
)

// Runtime executes one live instance of a Structure against a value
// Registry and a job Scheduler, propagating state-machine transitions
// and emitting events as steps progress. Grounded on
// module.Pipeline.Execute's metadata-merge-then-walk shape
// (_examples/GoCodeAlone-workflow/module/pipeline_executor.go),
// generalized to a DAG and re-entrant per-step execution.
type Runtime struct {
	id        uuid.UUID
	structure *Structure
	jobs      *job.Scheduler
	values    *value.Registry
	emit      event.Emitter
	cache     job.CacheStrategy

	states map[string]StepState
	// slots holds each step's resolved input fields, populated lazily as
	// upstream values become available.
	slots map[string]map[string]*value.Value
	// outputs holds each step's produced output values once RESULTS_READY.
	outputs map[string]map[string]*value.Value

	inputValues map[string]*value.Value // pipeline-level input bindings
}

// NewRuntime creates a fresh Runtime instance over structure. Every step
// starts STALE. Each step's module is dispatched through jobs rather
// than invoked directly, so pipeline execution goes through the
// scheduler's cache lookup, singleflight coalescing, metrics, and
// archive-write machinery exactly as an ad hoc job submission would
// (spec §4.6: "per step, waits for INPUTS_READY before dispatching to
// job.Scheduler"). cache selects the CacheStrategy used for every step's
// job.Config.
func NewRuntime(structure *Structure, jobs *job.Scheduler, values *value.Registry, emit event.Emitter, cache job.CacheStrategy) *Runtime {
	r := &Runtime{
		id:          uuid.New(),
		structure:   structure,
		jobs:        jobs,
		values:      values,
		emit:        emit,
		cache:       cache,
		states:      make(map[string]StepState),
		slots:       make(map[string]map[string]*value.Value),
		outputs:     make(map[string]map[string]*value.Value),
		inputValues: make(map[string]*value.Value),
	}
	for _, step := range structure.Blueprint.Steps {
		r.states[step.StepID] = StepStale
	}
	return r
}

// InstanceID identifies this Runtime for event correlation.
func (r *Runtime) InstanceID() uuid.UUID { return r.id }

// State returns the current state of a step.
func (r *Runtime) State(stepID string) StepState {
	return r.states[stepID]
}

// SetInput binds a pipeline-level input field to a resolved Value,
// invalidating (back to STALE) any step that already consumed the
// previous binding for that field (spec §6's input-change propagation).
func (r *Runtime) SetInput(field string, v *value.Value) {
	r.inputValues[field] = v
	if r.emit != nil {
		r.emit.Publish(event.PipelineInputChanged{PipelineInstanceID: r.id, FieldName: field, ValueID: v.ID})
	}
	for _, step := range r.structure.Blueprint.Steps {
		for inputField, link := range step.Inputs {
			if link.Kind == LinkFromInput && link.PipelineInputField == field {
				r.invalidate(step.StepID)
				if r.emit != nil {
					r.emit.Publish(event.StepInputChanged{
						PipelineInstanceID: r.id, StepID: step.StepID, FieldName: inputField,
					})
				}
			}
		}
	}
}

func (r *Runtime) invalidate(stepID string) {
	if r.states[stepID] == StepStale {
		return
	}
	r.transition(stepID, StepStale)
	delete(r.outputs, stepID)
	delete(r.slots, stepID)
	for _, step := range r.structure.Blueprint.Steps {
		for _, link := range step.Inputs {
			if link.Kind == LinkFromStep && link.SourceStepID == stepID {
				r.invalidate(step.StepID)
			}
		}
	}
}

func (r *Runtime) transition(stepID string, to StepState) {
	from := r.states[stepID]
	r.states[stepID] = to
	if r.emit != nil {
		r.emit.Publish(event.StepStateChanged{
			PipelineInstanceID: r.id, StepID: stepID,
			From: string(from), To: string(to), Timestamp: time.Now(),
		})
	}
}

// Run drives every stage of the structure to completion in order,
// executing each STALE/INPUTS_READY step's module once its inputs
// resolve. It stops at the first step that fails.
func (r *Runtime) Run(ctx context.Context) error {
	for stageIdx, stage := range r.structure.Stages {
		for _, stepID := range stage {
			if r.states[stepID] == StepResultsReady {
				continue
			}
			if err := r.runStep(ctx, stepID); err != nil {
				return err
			}
		}
		if r.emit != nil {
			r.emit.Publish(event.PipelineStageCompleted{PipelineInstanceID: r.id, StageIndex: stageIdx})
		}
	}
	return nil
}

func (r *Runtime) runStep(ctx context.Context, stepID string) error {
	step, _ := r.structure.Step(stepID)
	class, _ := r.structure.Class(stepID)

	inputsSchema := class.InputsSchema()
	resolved := make(map[string]*value.Value, len(step.Inputs))
	for fieldName, link := range step.Inputs {
		var (
			v   *value.Value
			err error
		)
		if link.Kind == LinkConstant {
			fieldSchema := inputsSchema[fieldName]
			v, err = r.values.RegisterData(
				value.Schema{TypeName: fieldSchema.TypeName, TypeConfig: fieldSchema.TypeConfig},
				link.ConstantValue, nil)
		} else {
			v, err = r.resolveLink(link)
		}
		if err != nil {
			r.transition(stepID, StepFailed)
			return kerr.Wrap(kerr.KindUnresolvedLink, "step "+stepID+" input "+fieldName, err)
		}
		resolved[fieldName] = v
	}
	r.slots[stepID] = resolved
	r.transition(stepID, StepInputsReady)

	cfg := job.Config{
		Manifest: step.Manifest,
		Inputs:   inputIDsByField(resolved),
		Cache:    r.cache,
	}
	if r.cache == job.CacheByDataHash {
		cfg.InputHashes = inputHashesByField(resolved)
	}

	r.transition(stepID, StepRunning)
	rec, err := r.jobs.Execute(ctx, cfg)
	if err != nil {
		r.transition(stepID, StepFailed)
		return kerr.Wrap(kerr.KindJobFailed, "step "+stepID+" failed", err)
	}

	outputs := make(map[string]*value.Value, len(rec.Outputs))
	for field, id := range rec.Outputs {
		v, err := r.values.Get(id)
		if err != nil {
			r.transition(stepID, StepFailed)
			return err
		}
		outputs[field] = v
		if r.emit != nil {
			r.emit.Publish(event.StepOutputChanged{PipelineInstanceID: r.id, StepID: stepID, FieldName: field, ValueID: v.ID})
		}
	}
	r.outputs[stepID] = outputs
	r.transition(stepID, StepResultsReady)
	r.publishPipelineOutputs(stepID, outputs)
	return nil
}

// publishPipelineOutputs emits PipelineOutputChanged for every
// blueprint-level output whose link now resolves to a value produced by
// stepID.
func (r *Runtime) publishPipelineOutputs(stepID string, outputs map[string]*value.Value) {
	if r.emit == nil {
		return
	}
	for name, link := range r.structure.Blueprint.Outputs {
		if link.Kind != LinkFromStep || link.SourceStepID != stepID {
			continue
		}
		if v, ok := outputs[link.SourceField]; ok {
			r.emit.Publish(event.PipelineOutputChanged{PipelineInstanceID: r.id, FieldName: name, ValueID: v.ID})
		}
	}
}

func inputIDsByField(resolved map[string]*value.Value) map[string]uuid.UUID {
	out := make(map[string]uuid.UUID, len(resolved))
	for field, v := range resolved {
		out[field] = v.ID
	}
	return out
}

func inputHashesByField(resolved map[string]*value.Value) map[string]hashing.CID {
	out := make(map[string]hashing.CID, len(resolved))
	for field, v := range resolved {
		out[field] = v.DataHash
	}
	return out
}

func (r *Runtime) resolveLink(link Link) (*value.Value, error) {
	switch link.Kind {
	case LinkFromInput:
		v, ok := r.inputValues[link.PipelineInputField]
		if !ok {
			return nil, kerr.New(kerr.KindUnresolvedLink, "pipeline input not set: "+link.PipelineInputField)
		}
		return v, nil
	case LinkFromStep:
		outputs, ok := r.outputs[link.SourceStepID]
		if !ok {
			return nil, kerr.New(kerr.KindUnresolvedLink, "upstream step has no results yet: "+link.SourceStepID)
		}
		v, ok := outputs[link.SourceField]
		if !ok {
			return nil, kerr.New(kerr.KindUnresolvedLink, "upstream step produced no such output: "+link.SourceField)
		}
		return v, nil
	case LinkConstant:
		return nil, kerr.New(kerr.KindInvalidBlueprint, "constant links must be pre-registered as values")
	default:
		return nil, kerr.New(kerr.KindInvalidBlueprint, "unknown link kind")
	}
}

// PipelineOutput resolves one of the blueprint's declared pipeline-level
// outputs. Constant pipeline outputs are not supported since they carry
// no field schema to register a value under.
func (r *Runtime) PipelineOutput(name string) (*value.Value, error) {
	link, ok := r.structure.Blueprint.Outputs[name]
	if !ok {
		return nil, kerr.New(kerr.KindNotFound, "no such pipeline output: "+name)
	}
	return r.resolveLink(link)
}

// Output returns the resolved output value for a step's field, once the
// step has reached RESULTS_READY.
func (r *Runtime) Output(stepID, field string) (*value.Value, error) {
	outputs, ok := r.outputs[stepID]
	if !ok {
		return nil, kerr.New(kerr.KindNotFound, "step has no results: "+stepID)
	}
	v, ok := outputs[field]
	if !ok {
		return nil, kerr.New(kerr.KindNotFound, "no such output field: "+field)
	}
	return v, nil
}
