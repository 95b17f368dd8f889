package kiara

import (
	"context"
	"testing"

	"github.com/DHARPA-Project/kiara-sub003/archive"
	"github.com/DHARPA-Project/kiara-sub003/hashing"
	"github.com/DHARPA-Project/kiara-sub003/job"
	"github.com/DHARPA-Project/kiara-sub003/manifest"
	"github.com/DHARPA-Project/kiara-sub003/types"
	"github.com/DHARPA-Project/kiara-sub003/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoInstance struct{ m manifest.Manifest }

func (e *echoInstance) Manifest() manifest.Manifest { return e.m }
func (e *echoInstance) Process(inputs map[string]any) (map[string]any, error) {
	return map[string]any{"text": inputs["text"]}, nil
}

type echoClass struct{ typeName string }

func (c *echoClass) ModuleType() string { return c.typeName }
func (c *echoClass) InputsSchema() map[string]manifest.FieldSchema {
	return map[string]manifest.FieldSchema{"text": {TypeName: "string"}}
}
func (c *echoClass) OutputsSchema() map[string]manifest.FieldSchema {
	return map[string]manifest.FieldSchema{"text": {TypeName: "string"}}
}
func (c *echoClass) Characteristics() manifest.Characteristics {
	return manifest.Characteristics{Pure: true}
}
func (c *echoClass) CreateInstance(cfg types.Config) (manifest.ModuleInstance, error) {
	return &echoInstance{m: manifest.Manifest{ModuleType: c.typeName, ModuleConfig: cfg}}, nil
}

type stringHandler struct{}

func (stringHandler) TypeName() string { return "string" }
func (stringHandler) Parent() string   { return types.RootType }
func (stringHandler) Validate(types.Config, any) error { return nil }
func (stringHandler) CalculateSize(types.Config, any) (uint64, error) { return 0, nil }
func (stringHandler) CalculateHash(_ types.Config, payload any) (hashing.CID, error) {
	return hashing.Compute(payload)
}
func (stringHandler) Parse(_ types.Config, raw any) (any, error) { return raw, nil }

func newTestContext(t *testing.T) *Context {
	t.Helper()
	c := New(DefaultEnvironment())
	require.NoError(t, c.Types.Register(stringHandler{}))
	require.NoError(t, c.Modules.RegisterClass(&echoClass{typeName: "echo"}))
	return c
}

func TestNewContextHasUniqueID(t *testing.T) {
	t.Parallel()
	c1 := New(DefaultEnvironment())
	c2 := New(DefaultEnvironment())
	assert.NotEqual(t, c1.ID, c2.ID)
	assert.NotSame(t, c1.Values, c2.Values)
}

func TestMountArchiveAttachesToValueRegistry(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)
	a := archive.NewInMemory("data", []string{"value"})
	require.NoError(t, c.MountArchive(a))

	got, ok := c.Archive("data")
	require.True(t, ok)
	assert.Equal(t, a.ArchiveID(), got.ArchiveID())
}

func TestMountArchiveNamedJobsWiresJobScheduler(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)
	jobsArchive := archive.NewInMemory("jobs", []string{"job_record"})
	require.NoError(t, c.MountArchive(jobsArchive))

	rec, err := c.Jobs.Execute(context.Background(), job.Config{
		Manifest: manifest.Manifest{ModuleType: "echo"},
		Cache:    job.CacheNone,
	})
	require.NoError(t, err)

	payload, ok, err := jobsArchive.Get(context.Background(), rec.ID.String())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(payload), rec.ID.String())
}

func TestMountArchiveRejectedOnLockedContext(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)
	c.Lock()
	err := c.MountArchive(archive.NewInMemory("data", nil))
	require.Error(t, err)
}

func TestBuildPipelineAndRunFromBlueprintDocument(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)

	doc := []byte(`
pipeline_name: greet
steps:
  - step_id: first
    module_type: echo
    input_links:
      text: text
  - step_id: second
    module_type: echo
    input_links:
      text: first.text
output_aliases:
  "second.text": greeting
`)

	structure, aliases, err := c.BuildPipeline(doc)
	require.NoError(t, err)
	require.Len(t, structure.Stages, 2)
	assert.Equal(t, "greeting", aliases.Outputs["second.text"])

	runtime := c.NewRuntime(structure)
	inputValue, err := c.Values.RegisterData(value.Schema{TypeName: "string"}, "hello", nil)
	require.NoError(t, err)
	runtime.SetInput("text", inputValue)

	require.NoError(t, runtime.Run(context.Background()))
	out, err := runtime.Output("second", "text")
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Data)
}

func TestBuildPipelineRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)
	doc := []byte(`
pipeline_name: bad
not_a_real_field: true
steps: []
`)
	_, _, err := c.BuildPipeline(doc)
	require.Error(t, err)
}

func TestBuildPipelineRejectsDuplicateStepID(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)
	doc := []byte(`
pipeline_name: dup
steps:
  - step_id: only
    module_type: echo
  - step_id: only
    module_type: echo
`)
	_, _, err := c.BuildPipeline(doc)
	require.Error(t, err)
}

func TestParseLinkConstantValue(t *testing.T) {
	t.Parallel()
	c := newTestContext(t)
	doc := []byte(`
pipeline_name: const
steps:
  - step_id: only
    module_type: echo
    input_links:
      text: 42
`)
	structure, _, err := c.BuildPipeline(doc)
	require.NoError(t, err)
	step, ok := structure.Step("only")
	require.True(t, ok)
	assert.Equal(t, 42, step.Inputs["text"].ConstantValue)
}
