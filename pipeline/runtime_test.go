package pipeline

import (
	"context"
	"testing"

	"github.com/DHARPA-Project/kiara-sub003/event"
	"github.com/DHARPA-Project/kiara-sub003/job"
	"github.com/DHARPA-Project/kiara-sub003/manifest"
	"github.com/DHARPA-Project/kiara-sub003/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeRunLinearPipeline(t *testing.T) {
	t.Parallel()
	modules, typeRegistry := newTestEnv(t)
	vregistry := value.NewRegistry(typeRegistry)
	bus := event.NewBus()

	bp := Blueprint{
		Name:   "linear",
		Inputs: map[string]manifest.FieldSchema{"text": {TypeName: "string"}},
		Steps: []StepSpec{
			{
				StepID:   "first",
				Manifest: manifest.Manifest{ModuleType: "echo"},
				Inputs:   map[string]Link{"text": {Kind: LinkFromInput, PipelineInputField: "text"}},
			},
			{
				StepID:   "second",
				Manifest: manifest.Manifest{ModuleType: "echo"},
				Inputs:   map[string]Link{"text": {Kind: LinkFromStep, SourceStepID: "first", SourceField: "text"}},
			},
		},
		Outputs: map[string]Link{
			"result": {Kind: LinkFromStep, SourceStepID: "second", SourceField: "text"},
		},
	}

	structure, err := Build(bp, modules, typeRegistry)
	require.NoError(t, err)

	scheduler := job.NewScheduler(modules, vregistry, bus, job.NewMetrics())
	runtime := NewRuntime(structure, scheduler, vregistry, bus, job.CacheNone)

	inputValue, err := vregistry.RegisterData(value.Schema{TypeName: "string"}, "hello", nil)
	require.NoError(t, err)
	runtime.SetInput("text", inputValue)

	require.NoError(t, runtime.Run(context.Background()))

	assert.Equal(t, StepResultsReady, runtime.State("first"))
	assert.Equal(t, StepResultsReady, runtime.State("second"))

	out, err := runtime.PipelineOutput("result")
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Data)
}

func TestRuntimeSetInputInvalidatesDownstream(t *testing.T) {
	t.Parallel()
	modules, typeRegistry := newTestEnv(t)
	vregistry := value.NewRegistry(typeRegistry)

	bp := Blueprint{
		Name:   "linear",
		Inputs: map[string]manifest.FieldSchema{"text": {TypeName: "string"}},
		Steps: []StepSpec{
			{
				StepID:   "first",
				Manifest: manifest.Manifest{ModuleType: "echo"},
				Inputs:   map[string]Link{"text": {Kind: LinkFromInput, PipelineInputField: "text"}},
			},
			{
				StepID:   "second",
				Manifest: manifest.Manifest{ModuleType: "echo"},
				Inputs:   map[string]Link{"text": {Kind: LinkFromStep, SourceStepID: "first", SourceField: "text"}},
			},
		},
	}
	structure, err := Build(bp, modules, typeRegistry)
	require.NoError(t, err)
	scheduler := job.NewScheduler(modules, vregistry, nil, job.NewMetrics())
	runtime := NewRuntime(structure, scheduler, vregistry, nil, job.CacheNone)

	v1, err := vregistry.RegisterData(value.Schema{TypeName: "string"}, "hello", nil)
	require.NoError(t, err)
	runtime.SetInput("text", v1)
	require.NoError(t, runtime.Run(context.Background()))
	assert.Equal(t, StepResultsReady, runtime.State("second"))

	v2, err := vregistry.RegisterData(value.Schema{TypeName: "string"}, "world", nil)
	require.NoError(t, err)
	runtime.SetInput("text", v2)

	assert.Equal(t, StepStale, runtime.State("first"))
	assert.Equal(t, StepStale, runtime.State("second"))
}

func TestRuntimeRunsConstantLinkStep(t *testing.T) {
	t.Parallel()
	modules, typeRegistry := newTestEnv(t)
	vregistry := value.NewRegistry(typeRegistry)

	bp := Blueprint{
		Name:   "missing-input",
		Inputs: map[string]manifest.FieldSchema{},
		Steps: []StepSpec{
			{
				StepID:   "only",
				Manifest: manifest.Manifest{ModuleType: "echo"},
				Inputs:   map[string]Link{"text": {Kind: LinkConstant, ConstantValue: "x"}},
			},
		},
	}
	// Build requires the "text" field be declared somewhere resolvable;
	// a constant link is always resolvable so Build should succeed.
	structure, err := Build(bp, modules, typeRegistry)
	require.NoError(t, err)

	scheduler := job.NewScheduler(modules, vregistry, nil, job.NewMetrics())
	runtime := NewRuntime(structure, scheduler, vregistry, nil, job.CacheNone)
	require.NoError(t, runtime.Run(context.Background()))
	assert.Equal(t, StepResultsReady, runtime.State("only"))
}
