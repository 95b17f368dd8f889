package pipeline

import (
	"fmt"

	"github.com/DHARPA-Project/kiara-sub003/kerr"
	"github.com/DHARPA-Project/kiara-sub003/manifest"
	"github.com/DHARPA-Project/kiara-sub003/types"
	"github.com/hashicorp/go-multierror"
)

// Structure is the validated, stratified form of a Blueprint: a DAG of
// steps grouped into stages such that every step's dependencies lie in
// an earlier stage (spec §5's "structural build" phase, kept separate
// from Runtime's "execute with live values" phase).
type Structure struct {
	Blueprint Blueprint
	Stages    [][]string // stage index -> ordered step IDs
	stepByID  map[string]StepSpec
	classes   map[string]manifest.ModuleClass
}

// Build validates bp against registry (for module type + schema lookup)
// and typeRegistry (for input/output type compatibility), and stratifies
// its step DAG into dependency-ordered stages. All validation failures
// are aggregated and returned together via go-multierror, per spec §5
// ("report every structural problem in one pass, not just the first").
func Build(bp Blueprint, registry *manifest.Registry, typeRegistry *types.Registry) (*Structure, error) {
	var errs *multierror.Error

	stepByID := make(map[string]StepSpec, len(bp.Steps))
	classes := make(map[string]manifest.ModuleClass, len(bp.Steps))
	for _, step := range bp.Steps {
		if _, dup := stepByID[step.StepID]; dup {
			errs = multierror.Append(errs, kerr.New(kerr.KindInvalidBlueprint, "duplicate step id: "+step.StepID))
			continue
		}
		stepByID[step.StepID] = step

		class, err := registry.Class(step.Manifest.ModuleType)
		if err != nil {
			errs = multierror.Append(errs, kerr.Wrap(kerr.KindNoSuchModule, "step "+step.StepID, err))
			continue
		}
		classes[step.StepID] = class
	}

	for _, step := range bp.Steps {
		class, ok := classes[step.StepID]
		if !ok {
			continue // module lookup already failed above
		}
		validateStepLinks(step, class, bp, stepByID, classes, typeRegistry, &errs)
	}

	for name, link := range bp.Outputs {
		validateLink(fmt.Sprintf("pipeline output %q", name), link, bp, stepByID, &errs)
	}

	if errs != nil && errs.Len() > 0 {
		return nil, errs.ErrorOrNil()
	}

	stages, err := stratify(bp, stepByID)
	if err != nil {
		return nil, err
	}

	return &Structure{Blueprint: bp, Stages: stages, stepByID: stepByID, classes: classes}, nil
}

func validateStepLinks(
	step StepSpec,
	class manifest.ModuleClass,
	bp Blueprint,
	stepByID map[string]StepSpec,
	classes map[string]manifest.ModuleClass,
	typeRegistry *types.Registry,
	errs **multierror.Error,
) {
	inputsSchema := class.InputsSchema()

	for fieldName, schema := range inputsSchema {
		link, ok := step.Inputs[fieldName]
		if !ok {
			if !schema.Optional {
				*errs = multierror.Append(*errs, kerr.New(kerr.KindUnresolvedLink,
					fmt.Sprintf("step %q: required input %q is not linked", step.StepID, fieldName)))
			}
			continue
		}
		validateLink(fmt.Sprintf("step %q input %q", step.StepID, fieldName), link, bp, stepByID, errs)

		if link.Kind == LinkFromStep {
			srcStep, ok := stepByID[link.SourceStepID]
			if !ok {
				continue // already reported by validateLink
			}
			srcClass, ok := classes[link.SourceStepID]
			if !ok {
				continue
			}
			outSchema, ok := srcClass.OutputsSchema()[link.SourceField]
			if !ok {
				*errs = multierror.Append(*errs, kerr.New(kerr.KindUnresolvedLink,
					fmt.Sprintf("step %q input %q references unknown output %q of step %q",
						step.StepID, fieldName, link.SourceField, srcStep.StepID)))
				continue
			}
			if ok, err := typeRegistry.IsSubtype(outSchema.TypeName, schema.TypeName); err != nil || !ok {
				*errs = multierror.Append(*errs, kerr.New(kerr.KindSchemaMismatch,
					fmt.Sprintf("step %q input %q expects %q, upstream step %q output %q produces %q",
						step.StepID, fieldName, schema.TypeName, link.SourceStepID, link.SourceField, outSchema.TypeName)))
			}
		}
	}

	for fieldName := range step.Inputs {
		if _, declared := inputsSchema[fieldName]; !declared {
			*errs = multierror.Append(*errs, kerr.New(kerr.KindInvalidBlueprint,
				fmt.Sprintf("step %q links undeclared input %q", step.StepID, fieldName)))
		}
	}
}

func validateLink(context string, link Link, bp Blueprint, stepByID map[string]StepSpec, errs **multierror.Error) {
	switch link.Kind {
	case LinkFromInput:
		if _, ok := bp.Inputs[link.PipelineInputField]; !ok {
			*errs = multierror.Append(*errs, kerr.New(kerr.KindUnresolvedLink,
				context+" references undeclared pipeline input "+link.PipelineInputField))
		}
	case LinkFromStep:
		if _, ok := stepByID[link.SourceStepID]; !ok {
			*errs = multierror.Append(*errs, kerr.New(kerr.KindUnresolvedLink,
				context+" references unknown step "+link.SourceStepID))
		}
	case LinkConstant:
		// always resolvable
	default:
		*errs = multierror.Append(*errs, kerr.New(kerr.KindInvalidBlueprint, context+" has unknown link kind"))
	}
}

// stratify groups steps into dependency-ordered stages using Kahn's
// algorithm: each stage consists of every not-yet-placed step whose
// step-to-step dependencies are all already placed in an earlier stage.
// A non-empty remainder after the loop indicates a cycle.
func stratify(bp Blueprint, stepByID map[string]StepSpec) ([][]string, error) {
	deps := make(map[string]map[string]struct{}, len(bp.Steps))
	for _, step := range bp.Steps {
		depSet := make(map[string]struct{})
		for _, link := range step.Inputs {
			if link.Kind == LinkFromStep {
				depSet[link.SourceStepID] = struct{}{}
			}
		}
		deps[step.StepID] = depSet
	}

	placed := make(map[string]bool, len(bp.Steps))
	var stages [][]string

	for len(placed) < len(bp.Steps) {
		var stage []string
		for _, step := range bp.Steps {
			if placed[step.StepID] {
				continue
			}
			ready := true
			for dep := range deps[step.StepID] {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				stage = append(stage, step.StepID)
			}
		}
		if len(stage) == 0 {
			return nil, kerr.New(kerr.KindPipelineCycle, "pipeline contains a dependency cycle")
		}
		for _, id := range stage {
			placed[id] = true
		}
		stages = append(stages, stage)
	}

	return stages, nil
}

// Step returns the StepSpec registered under id.
func (s *Structure) Step(id string) (StepSpec, bool) {
	step, ok := s.stepByID[id]
	return step, ok
}

// Class returns the ModuleClass resolved for step id during Build.
func (s *Structure) Class(id string) (manifest.ModuleClass, bool) {
	c, ok := s.classes[id]
	return c, ok
}
