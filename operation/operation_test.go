package operation

import (
	"testing"

	"github.com/DHARPA-Project/kiara-sub003/hashing"
	"github.com/DHARPA-Project/kiara-sub003/manifest"
	"github.com/DHARPA-Project/kiara-sub003/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type renderInstance struct{ m manifest.Manifest }

func (r *renderInstance) Manifest() manifest.Manifest { return r.m }
func (r *renderInstance) Process(inputs map[string]any) (map[string]any, error) {
	return inputs, nil
}

type renderClass struct {
	typeName   string
	sourceType string
	targetType string
}

func (c *renderClass) ModuleType() string { return c.typeName }
func (c *renderClass) InputsSchema() map[string]manifest.FieldSchema {
	return map[string]manifest.FieldSchema{"value": {TypeName: c.sourceType}}
}
func (c *renderClass) OutputsSchema() map[string]manifest.FieldSchema {
	return map[string]manifest.FieldSchema{"rendered": {TypeName: c.targetType}}
}
func (c *renderClass) Characteristics() manifest.Characteristics { return manifest.Characteristics{} }
func (c *renderClass) CreateInstance(cfg types.Config) (manifest.ModuleInstance, error) {
	return &renderInstance{m: manifest.Manifest{ModuleType: c.typeName, ModuleConfig: cfg}}, nil
}

// renderValueType classifies any module whose inputs/outputs schema
// shape matches a one-field "render" signature.
type renderValueType struct {
	included []manifest.Manifest
}

func (renderValueType) Name() string { return "render_value" }
func (t renderValueType) Matches(class manifest.ModuleClass, m manifest.Manifest) (Details, bool) {
	rc, ok := class.(*renderClass)
	if !ok {
		return Details{}, false
	}
	return Details{SourceType: rc.sourceType, TargetType: rc.targetType}, true
}
func (t renderValueType) IncludedConfigs() []manifest.Manifest { return t.included }

func newTestTypeRegistry(t *testing.T) *types.Registry {
	t.Helper()
	reg := types.NewRegistry()
	require.NoError(t, reg.Register(genericHandler{name: "table"}))
	require.NoError(t, reg.Register(genericHandlerWithParent{name: "csv_table", parent: "table"}))
	require.NoError(t, reg.Register(genericHandler{name: "terminal"}))
	return reg
}

type genericHandler struct{ name string }

func (h genericHandler) TypeName() string { return h.name }
func (h genericHandler) Parent() string   { return types.RootType }
func (h genericHandler) Validate(types.Config, any) error { return nil }
func (h genericHandler) CalculateSize(types.Config, any) (uint64, error) { return 0, nil }
func (h genericHandler) CalculateHash(_ types.Config, payload any) (hashing.CID, error) {
	return hashing.Compute(payload)
}
func (h genericHandler) Parse(_ types.Config, raw any) (any, error) { return raw, nil }

type genericHandlerWithParent struct {
	name   string
	parent string
}

func (h genericHandlerWithParent) TypeName() string { return h.name }
func (h genericHandlerWithParent) Parent() string   { return h.parent }
func (h genericHandlerWithParent) Validate(types.Config, any) error { return nil }
func (h genericHandlerWithParent) CalculateSize(types.Config, any) (uint64, error) { return 0, nil }
func (h genericHandlerWithParent) CalculateHash(_ types.Config, payload any) (hashing.CID, error) {
	return hashing.Compute(payload)
}
func (h genericHandlerWithParent) Parse(_ types.Config, raw any) (any, error) { return raw, nil }

func newTestOperationRegistry(t *testing.T) (*Registry, *manifest.Registry, *types.Registry) {
	t.Helper()
	typeRegistry := newTestTypeRegistry(t)
	moduleRegistry := manifest.NewRegistry()
	require.NoError(t, moduleRegistry.RegisterClass(&renderClass{typeName: "render.table_to_terminal", sourceType: "table", targetType: "terminal"}))

	opRegistry := NewRegistry(moduleRegistry, typeRegistry)
	return opRegistry, moduleRegistry, typeRegistry
}

func TestClassifyModuleIndexesMatchingOperation(t *testing.T) {
	t.Parallel()
	opRegistry, _, _ := newTestOperationRegistry(t)
	require.NoError(t, opRegistry.RegisterType(renderValueType{}))

	m := manifest.Manifest{ModuleType: "render.table_to_terminal"}
	require.NoError(t, opRegistry.ClassifyModule(m))

	ops := opRegistry.OperationsByType("render_value")
	require.Len(t, ops, 1)
	assert.Equal(t, "table", ops[0].Details.SourceType)
	assert.Equal(t, "terminal", ops[0].Details.TargetType)
}

func TestFindMatchesRegisteredSubtype(t *testing.T) {
	t.Parallel()
	opRegistry, moduleRegistry, _ := newTestOperationRegistry(t)
	require.NoError(t, moduleRegistry.RegisterClass(&renderClass{typeName: "render.csv_table_to_terminal", sourceType: "csv_table", targetType: "terminal"}))
	require.NoError(t, opRegistry.RegisterType(renderValueType{}))
	require.NoError(t, opRegistry.ClassifyModule(manifest.Manifest{ModuleType: "render.csv_table_to_terminal"}))

	found := opRegistry.Find(Query{SourceType: "table", TargetType: "terminal"})
	require.Len(t, found, 1)
	assert.Equal(t, "csv_table", found[0].Details.SourceType)
}

func TestOperationByIDNotFound(t *testing.T) {
	t.Parallel()
	opRegistry, _, _ := newTestOperationRegistry(t)
	_, err := opRegistry.OperationByID(uuid.Nil)
	require.Error(t, err)
}

func TestIncludedConfigsPreloadedOnRegisterType(t *testing.T) {
	t.Parallel()
	opRegistry, _, _ := newTestOperationRegistry(t)
	preload := renderValueType{included: []manifest.Manifest{{ModuleType: "render.table_to_terminal"}}}
	require.NoError(t, opRegistry.RegisterType(preload))

	ops := opRegistry.OperationsByType("render_value")
	require.Len(t, ops, 1)
}
