// Blueprint loading implements spec §6's external pipeline blueprint
// format: a strict-schema YAML/JSON document that is parsed into a
// pipeline.Blueprint plus the input/output alias maps it declares,
// which are returned to the caller as parsed. Grounded on config.FileSource's
// load-then-validate shape (_examples/GoCodeAlone-workflow/config),
// generalized from a flat config struct to a nested, strict blueprint
// document.
package kiara

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/DHARPA-Project/kiara-sub003/kerr"
	"github.com/DHARPA-Project/kiara-sub003/manifest"
	"github.com/DHARPA-Project/kiara-sub003/pipeline"
	"github.com/DHARPA-Project/kiara-sub003/types"
	"gopkg.in/yaml.v3"
)

// rawStep mirrors one entry of the wire blueprint's `steps` list.
type rawStep struct {
	StepID       string         `yaml:"step_id"`
	ModuleType   string         `yaml:"module_type"`
	ModuleConfig map[string]any `yaml:"module_config"`
	InputLinks   map[string]any `yaml:"input_links"`
}

// rawBlueprint mirrors spec §6's pipeline blueprint wire format
// verbatim. Unknown keys at any nesting level are rejected by decoding
// with yaml.Decoder.KnownFields(true).
type rawBlueprint struct {
	PipelineName  string            `yaml:"pipeline_name"`
	Doc           string            `yaml:"doc"`
	Steps         []rawStep         `yaml:"steps"`
	InputAliases  map[string]string `yaml:"input_aliases"`
	OutputAliases map[string]string `yaml:"output_aliases"`
}

// AliasBindings names the step-field -> alias mappings a blueprint
// declares for its inputs and outputs.
type AliasBindings struct {
	Inputs  map[string]string // "step_id.field" -> alias
	Outputs map[string]string // "step_id.field" -> alias
}

// ParseBlueprint decodes a YAML or JSON blueprint document (the formats
// are structurally identical per spec §6) into a pipeline.Blueprint and
// its alias bindings, rejecting unknown keys.
func ParseBlueprint(data []byte) (pipeline.Blueprint, AliasBindings, error) {
	var raw rawBlueprint
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return pipeline.Blueprint{}, AliasBindings{}, kerr.Wrap(kerr.KindInvalidBlueprint, "decode blueprint", err)
	}

	if raw.PipelineName == "" {
		return pipeline.Blueprint{}, AliasBindings{}, kerr.New(kerr.KindInvalidBlueprint, "pipeline_name is required")
	}

	steps := make([]pipeline.StepSpec, 0, len(raw.Steps))
	seenIDs := make(map[string]struct{}, len(raw.Steps))
	for _, rs := range raw.Steps {
		if rs.StepID == "" {
			return pipeline.Blueprint{}, AliasBindings{}, kerr.New(kerr.KindInvalidBlueprint, "step_id is required")
		}
		if _, dup := seenIDs[rs.StepID]; dup {
			return pipeline.Blueprint{}, AliasBindings{}, kerr.New(kerr.KindInvalidBlueprint, "duplicate step_id: "+rs.StepID).
				WithDetail("step_id", rs.StepID)
		}
		seenIDs[rs.StepID] = struct{}{}

		inputs := make(map[string]pipeline.Link, len(rs.InputLinks))
		for field, ref := range rs.InputLinks {
			link, err := parseLink(ref)
			if err != nil {
				return pipeline.Blueprint{}, AliasBindings{}, kerr.New(kerr.KindInvalidBlueprint, "step "+rs.StepID+" field "+field+": "+err.Error()).
					WithDetail("step_id", rs.StepID).
					WithDetail("field_name", field)
			}
			inputs[field] = link
		}

		steps = append(steps, pipeline.StepSpec{
			StepID:   rs.StepID,
			Manifest: manifest.Manifest{ModuleType: rs.ModuleType, ModuleConfig: types.Config(rs.ModuleConfig)},
			Inputs:   inputs,
		})
	}

	bp := pipeline.Blueprint{
		Name:  raw.PipelineName,
		Steps: steps,
	}
	aliases := AliasBindings{Inputs: raw.InputAliases, Outputs: raw.OutputAliases}
	return bp, aliases, nil
}

// parseLink classifies one input_links entry. A string containing a dot
// is a "step_id.field" step-output reference; a string without a dot is
// a pipeline-level input field name; any other scalar or map value is
// taken as a literal constant baked into the blueprint. Fan-in lists of
// refs are not supported (every step input binds to exactly one
// source per spec §4.5), so a YAML sequence is rejected.
func parseLink(ref any) (pipeline.Link, error) {
	switch v := ref.(type) {
	case string:
		if stepID, field, ok := strings.Cut(v, "."); ok && stepID != "" && field != "" {
			return pipeline.Link{Kind: pipeline.LinkFromStep, SourceStepID: stepID, SourceField: field}, nil
		}
		return pipeline.Link{Kind: pipeline.LinkFromInput, PipelineInputField: v}, nil
	case []any:
		return pipeline.Link{}, fmt.Errorf("fan-in input_links lists are not supported")
	default:
		return pipeline.Link{Kind: pipeline.LinkConstant, ConstantValue: v}, nil
	}
}
