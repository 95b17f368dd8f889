// Package manifest implements the Manifest & Module Registry (C4): the
// content-addressed Manifest{ModuleType, ModuleConfig}, the ModuleClass/
// ModuleInstance contract modules implement, and a Registry that caches
// one instance per distinct manifest hash. Grounded on engine.Engine's
// moduleFactories map[string]ModuleFactory lookup
// (_examples/GoCodeAlone-workflow/engine.go), repurposed from "build a
// modular.Module by type+raw config" to "build a ModuleInstance by type,
// keyed and deduplicated by the manifest's content hash".
package manifest

import (
	"github.com/DHARPA-Project/kiara-sub003/hashing"
	"github.com/DHARPA-Project/kiara-sub003/types"
)

// Manifest identifies a module configuration: the module's type name and
// its declared config (spec §4: "a manifest is the (module_type,
// module_config) pair that deterministically identifies a module
// instance").
type Manifest struct {
	ModuleType   string
	ModuleConfig types.Config
}

// Hash returns the content-addressed CID of this manifest. Two manifests
// with the same type and config hash identically regardless of map key
// order, since hashing.Compute canonicalizes before hashing.
func (m Manifest) Hash() (hashing.CID, error) {
	cfg := m.ModuleConfig
	if cfg == nil {
		cfg = types.Config{}
	}
	return hashing.Compute(map[string]any{
		"module_type":   m.ModuleType,
		"module_config": map[string]any(cfg),
	})
}

// Characteristics describes static properties of a module class that the
// pipeline builder needs before any instance exists (spec §4: "is_pure",
// "is_idempotent" and similar per-class facts).
type Characteristics struct {
	Pure        bool
	Idempotent  bool
	Description string
}

// FieldSchema describes one entry of a module class's input/output
// contract. Declared here rather than reusing value.Schema to avoid a
// manifest<->value import cycle (value.Registry.Store already depends
// on archive, and the pipeline runtime is the layer that bridges
// manifest field schemas to value.Schema).
type FieldSchema struct {
	TypeName   string
	TypeConfig types.Config
	Optional   bool
}

// ModuleClass is the static definition of a module type: its declared
// input/output contract, characteristics, and the means to instantiate
// it from a manifest's config.
type ModuleClass interface {
	ModuleType() string
	InputsSchema() map[string]FieldSchema
	OutputsSchema() map[string]FieldSchema
	Characteristics() Characteristics
	// CreateInstance builds a ModuleInstance from validated config.
	CreateInstance(cfg types.Config) (ModuleInstance, error)
}

// ModuleInstance is a constructed, runnable module (spec §4: "Process
// receives resolved inputs and returns outputs or an error").
type ModuleInstance interface {
	Manifest() Manifest
	Process(inputs map[string]any) (map[string]any, error)
}
