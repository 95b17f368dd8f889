// Package pipeline implements Pipeline Structure (C5) and Pipeline
// Runtime (C6): building a step DAG from a Blueprint, stratifying it
// into stages, validating links, and driving the per-step state machine
// (STALE -> INPUTS_READY -> RUNNING -> RESULTS_READY/FAILED) as values
// become available. Grounded on module.Pipeline's ordered-step executor
// (_examples/GoCodeAlone-workflow/module/pipeline_executor.go) — kept
// are its metadata-merge-then-walk shape and its nil-safe event
// recording — generalized from a single ordered list to a stratified
// DAG, and on orchestration/saga.go's named-step bookkeeping shape for
// per-step state tracking.
package pipeline

import (
	"github.com/DHARPA-Project/kiara-sub003/manifest"
)

// LinkKind distinguishes where a step input's value comes from.
type LinkKind string

const (
	// LinkFromInput binds a step input to a pipeline-level input field.
	LinkFromInput LinkKind = "pipeline_input"
	// LinkFromStep binds a step input to another step's output field.
	LinkFromStep LinkKind = "step_output"
	// LinkConstant binds a step input to a literal value baked into the
	// blueprint, bypassing both pipeline inputs and upstream steps.
	LinkConstant LinkKind = "constant"
)

// Link describes the source of one step input field.
type Link struct {
	Kind LinkKind

	// Populated when Kind == LinkFromInput.
	PipelineInputField string

	// Populated when Kind == LinkFromStep.
	SourceStepID    string
	SourceField     string

	// Populated when Kind == LinkConstant.
	ConstantValue any
}

// StepSpec declares one node of a pipeline blueprint: the module it
// instantiates and how each of its input fields is sourced.
type StepSpec struct {
	StepID   string
	Manifest manifest.Manifest
	Inputs   map[string]Link // keyed by the module's input field name
}

// Blueprint is the declarative, serializable description of a pipeline
// (spec §5: "a blueprint names its steps and how their inputs connect").
type Blueprint struct {
	Name    string
	Inputs  map[string]manifest.FieldSchema // pipeline-level input contract
	Outputs map[string]Link                 // pipeline-level outputs, sourced like step inputs
	Steps   []StepSpec
}
