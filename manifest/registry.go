package manifest

import (
	"sync"

	"github.com/DHARPA-Project/kiara-sub003/hashing"
	"github.com/DHARPA-Project/kiara-sub003/kerr"
)

// Registry maps module type names to their ModuleClass and caches one
// ModuleInstance per distinct manifest hash, so that two pipeline steps
// sharing identical (module_type, module_config) reuse the same
// instance (spec §5: "a mutex protects the instance cache; construction
// happens at most once per manifest hash"). Grounded on engine.Engine's
// moduleFactories map[string]ModuleFactory lookup pattern
// (_examples/GoCodeAlone-workflow/engine.go), with the factory call
// itself replaced by ModuleClass.CreateInstance and keyed by manifest
// hash rather than by raw type+name.
type Registry struct {
	mu        sync.Mutex
	classes   map[string]ModuleClass
	instances map[hashing.CID]ModuleInstance
}

// NewRegistry creates an empty module registry.
func NewRegistry() *Registry {
	return &Registry{
		classes:   make(map[string]ModuleClass),
		instances: make(map[hashing.CID]ModuleInstance),
	}
}

// RegisterClass adds a ModuleClass under its own ModuleType().
func (r *Registry) RegisterClass(c ModuleClass) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.ModuleType()
	if name == "" {
		return kerr.New(kerr.KindInvalidManifest, "module class must declare a non-empty ModuleType")
	}
	if _, exists := r.classes[name]; exists {
		return kerr.New(kerr.KindDuplicateType, "module type already registered: "+name).
			WithDetail("module_type", name)
	}
	r.classes[name] = c
	return nil
}

// Class returns the registered ModuleClass for a module type.
func (r *Registry) Class(moduleType string) (ModuleClass, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[moduleType]
	if !ok {
		return nil, kerr.New(kerr.KindNoSuchModule, "no such module type: "+moduleType).
			WithDetail("module_type", moduleType)
	}
	return c, nil
}

// GetOrCreate returns the cached instance for m's hash, constructing one
// via its ModuleClass if none exists yet. Construction is serialized by
// the registry's single mutex, so concurrent callers requesting the same
// manifest race to build it at most once (spec §5).
func (r *Registry) GetOrCreate(m Manifest) (ModuleInstance, error) {
	h, err := m.Hash()
	if err != nil {
		return nil, kerr.Wrap(kerr.KindInvalidManifest, "failed to hash manifest", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if inst, ok := r.instances[h]; ok {
		return inst, nil
	}

	class, ok := r.classes[m.ModuleType]
	if !ok {
		return nil, kerr.New(kerr.KindNoSuchModule, "no such module type: "+m.ModuleType).
			WithDetail("module_type", m.ModuleType)
	}

	inst, err := class.CreateInstance(m.ModuleConfig)
	if err != nil {
		return nil, kerr.Wrap(kerr.KindInvalidManifest, "failed to construct module instance", err).
			WithDetail("module_type", m.ModuleType)
	}
	r.instances[h] = inst
	return inst, nil
}

// Peek returns the already-cached instance for m's hash, if any, without
// constructing one.
func (r *Registry) Peek(m Manifest) (ModuleInstance, bool, error) {
	h, err := m.Hash()
	if err != nil {
		return nil, false, kerr.Wrap(kerr.KindInvalidManifest, "failed to hash manifest", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[h]
	return inst, ok, nil
}
