// Package operation implements the Operation Registry (C9): indexing
// modules by operation type (extract_metadata, render_value, pipeline,
// custom_module, ...) so callers can discover ready-to-run module
// instantiations by what they do rather than by their raw module type
// name. Grounded on schema.ModuleSchemaRegistry's map-of-handlers shape
// (_examples/GoCodeAlone-workflow/schema/module_schema.go), generalized
// from "validate a module's declared config schema" to "classify a
// module instance against a named operation type and index the result".
package operation

import (
	"sync"

	"github.com/DHARPA-Project/kiara-sub003/kerr"
	"github.com/DHARPA-Project/kiara-sub003/manifest"
	"github.com/DHARPA-Project/kiara-sub003/types"
	"github.com/google/uuid"
)

// Details carries the operation-type-specific facts the registry indexes
// an Operation under, most importantly the source/target data types used
// by type-driven Find queries (spec §4.9: "render table as terminal").
type Details struct {
	SourceType string
	TargetType string
	Doc        string
	Metadata   map[string]string
}

// Type defines one operation classification (spec §4.9): a test that
// decides whether a module class+manifest qualifies, plus an optional
// set of manifests the registry should eagerly instantiate and index as
// operations of this type.
type Type interface {
	// Name is this operation type's registered name (e.g. "render_value").
	Name() string
	// Matches classifies a module class under the given manifest. It
	// returns (details, true) if the module qualifies as an operation of
	// this type, or (zero, false) otherwise.
	Matches(class manifest.ModuleClass, m manifest.Manifest) (Details, bool)
	// IncludedConfigs returns manifests this operation type wants
	// preloaded and indexed automatically, e.g. well-known built-in
	// operations that don't need to be discovered from an existing
	// pipeline or module registration.
	IncludedConfigs() []manifest.Manifest
}

// Operation is one indexed (module, operation-type) pairing.
type Operation struct {
	ID            uuid.UUID
	OperationType string
	Manifest      manifest.Manifest
	Details       Details
}

// Registry indexes operations by type and supports type-driven discovery
// queries. One RWMutex guards all indices, following the same
// map-behind-one-lock shape as types.Registry and manifest.Registry.
type Registry struct {
	modules *manifest.Registry
	types   *types.Registry

	mu       sync.RWMutex
	opTypes  map[string]Type
	byID     map[uuid.UUID]Operation
	byOpType map[string][]uuid.UUID
}

// NewRegistry creates an empty operation registry bound to the module
// and data-type registries it classifies against.
func NewRegistry(modules *manifest.Registry, typeRegistry *types.Registry) *Registry {
	return &Registry{
		modules:  modules,
		types:    typeRegistry,
		opTypes:  make(map[string]Type),
		byID:     make(map[uuid.UUID]Operation),
		byOpType: make(map[string][]uuid.UUID),
	}
}

// RegisterType adds an operation Type and immediately indexes every
// manifest it declares via IncludedConfigs.
func (r *Registry) RegisterType(t Type) error {
	name := t.Name()
	if name == "" {
		return kerr.New(kerr.KindInvalidManifest, "operation type must declare a non-empty Name")
	}

	r.mu.Lock()
	if _, exists := r.opTypes[name]; exists {
		r.mu.Unlock()
		return kerr.New(kerr.KindDuplicateType, "operation type already registered: "+name).
			WithDetail("operation_type", name)
	}
	r.opTypes[name] = t
	r.mu.Unlock()

	for _, m := range t.IncludedConfigs() {
		if err := r.indexManifest(name, t, m); err != nil {
			return err
		}
	}
	return nil
}

// ClassifyModule tests m against every registered operation Type and
// indexes it under every type that matches. A module may be indexed
// under more than one operation type (e.g. a module that is both a
// "render_value" and a "custom_module").
func (r *Registry) ClassifyModule(m manifest.Manifest) error {
	class, err := r.modules.Class(m.ModuleType)
	if err != nil {
		return err
	}

	r.mu.RLock()
	opTypes := make([]Type, 0, len(r.opTypes))
	for _, t := range r.opTypes {
		opTypes = append(opTypes, t)
	}
	r.mu.RUnlock()

	for _, t := range opTypes {
		details, ok := t.Matches(class, m)
		if !ok {
			continue
		}
		if err := r.index(t.Name(), m, details); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) indexManifest(typeName string, t Type, m manifest.Manifest) error {
	class, err := r.modules.Class(m.ModuleType)
	if err != nil {
		return err
	}
	details, ok := t.Matches(class, m)
	if !ok {
		return nil
	}
	return r.index(typeName, m, details)
}

func (r *Registry) index(typeName string, m manifest.Manifest, details Details) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	op := Operation{ID: uuid.New(), OperationType: typeName, Manifest: m, Details: details}
	r.byID[op.ID] = op
	r.byOpType[typeName] = append(r.byOpType[typeName], op.ID)
	return nil
}

// OperationsByType returns every operation indexed under typeName.
func (r *Registry) OperationsByType(typeName string) []Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byOpType[typeName]
	out := make([]Operation, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out
}

// OperationByID returns the operation registered under id.
func (r *Registry) OperationByID(id uuid.UUID) (Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.byID[id]
	if !ok {
		return Operation{}, kerr.New(kerr.KindNotFound, "no such operation").WithDetail("operation_id", id.String())
	}
	return op, nil
}

// Query narrows a Find call. Empty fields are wildcards.
type Query struct {
	OperationType string
	SourceType    string
	TargetType    string
}

// Find returns every operation matching q. SourceType/TargetType match
// an operation's Details.SourceType/TargetType or any of their
// registered subtypes, via types.Registry.IsSubtype, so a query for
// source_type="table" also matches an operation declared against a more
// specific registered subtype of "table" (spec §4.9's "render table as
// terminal" example).
func (r *Registry) Find(q Query) []Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []Operation
	if q.OperationType != "" {
		for _, id := range r.byOpType[q.OperationType] {
			candidates = append(candidates, r.byID[id])
		}
	} else {
		for _, op := range r.byID {
			candidates = append(candidates, op)
		}
	}

	var out []Operation
	for _, op := range candidates {
		if q.SourceType != "" && !r.typeMatches(op.Details.SourceType, q.SourceType) {
			continue
		}
		if q.TargetType != "" && !r.typeMatches(op.Details.TargetType, q.TargetType) {
			continue
		}
		out = append(out, op)
	}
	return out
}

// typeMatches reports whether actual equals queried or is one of its
// registered subtypes.
func (r *Registry) typeMatches(actual, queried string) bool {
	if actual == queried {
		return true
	}
	if ok, err := r.types.IsSubtype(actual, queried); err == nil && ok {
		return true
	}
	return false
}
