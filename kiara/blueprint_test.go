package kiara

import (
	"testing"

	"github.com/DHARPA-Project/kiara-sub003/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBlueprintStepOutputLink(t *testing.T) {
	t.Parallel()
	doc := []byte(`
pipeline_name: p
steps:
  - step_id: a
    module_type: echo
    input_links:
      text: other.field
`)
	bp, _, err := ParseBlueprint(doc)
	require.NoError(t, err)
	require.Len(t, bp.Steps, 1)
	link := bp.Steps[0].Inputs["text"]
	assert.Equal(t, pipeline.LinkFromStep, link.Kind)
	assert.Equal(t, "other", link.SourceStepID)
	assert.Equal(t, "field", link.SourceField)
}

func TestParseBlueprintRejectsFanInList(t *testing.T) {
	t.Parallel()
	doc := []byte(`
pipeline_name: p
steps:
  - step_id: a
    module_type: echo
    input_links:
      text: [other.field, third.field]
`)
	_, _, err := ParseBlueprint(doc)
	require.Error(t, err)
}

func TestParseBlueprintRequiresPipelineName(t *testing.T) {
	t.Parallel()
	_, _, err := ParseBlueprint([]byte("steps: []\n"))
	require.Error(t, err)
}

func TestParseBlueprintInputAliasesAndOutputAliases(t *testing.T) {
	t.Parallel()
	doc := []byte(`
pipeline_name: p
steps:
  - step_id: a
    module_type: echo
input_aliases:
  "a.text": "greeting_in"
output_aliases:
  "a.text": "greeting_out"
`)
	_, aliases, err := ParseBlueprint(doc)
	require.NoError(t, err)
	assert.Equal(t, "greeting_in", aliases.Inputs["a.text"])
	assert.Equal(t, "greeting_out", aliases.Outputs["a.text"])
}
