// Package types implements the Data Type Registry (C2): a map of
// type-name to type handler, a type lineage graph rooted at "any", and
// the validate/parse operations every other component reduces payloads
// through. Grounded on schema.ModuleSchemaRegistry's map-of-handlers
// shape (_examples/GoCodeAlone-workflow/schema/module_schema.go),
// generalized from config-field schemas to data-type handlers, and on
// spec §5's read-write-lock requirement for this kind of registry.
package types

import (
	"sync"

	"github.com/DHARPA-Project/kiara-sub003/hashing"
	"github.com/DHARPA-Project/kiara-sub003/kerr"
)

// RootType is the name of the root of every lineage.
const RootType = "any"

// Config is an arbitrary, structurally-hashable type configuration.
// It must only contain nil/bool/numeric/string/[]any/map[string]any
// values so hashing.Canonicalize can reduce it deterministically.
type Config map[string]any

// Hash returns the canonical CID of the config, treating a nil map the
// same as an empty one so two handlers with no meaningful config agree.
func (c Config) Hash() (hashing.CID, error) {
	if c == nil {
		c = Config{}
	}
	return hashing.Compute(map[string]any(c))
}

// Handler implements the four operations a DataType defines over
// payloads of its associated native representation (spec §3/§4.2).
type Handler interface {
	// TypeName returns the registered name of this type.
	TypeName() string
	// Parent returns the name of the type this type's lineage extends,
	// or "" if this handler defines the "any" root itself.
	Parent() string
	// Validate reports whether payload is a legal value of this type
	// under cfg.
	Validate(cfg Config, payload any) error
	// CalculateSize returns payload's size in bytes under cfg.
	CalculateSize(cfg Config, payload any) (uint64, error)
	// CalculateHash returns payload's content hash under cfg.
	CalculateHash(cfg Config, payload any) (hashing.CID, error)
	// Parse coerces a raw, language-native input into the canonical
	// representation this handler expects as `payload` in the other
	// three methods.
	Parse(cfg Config, raw any) (any, error)
}

// Registry is the Data Type Registry. The zero value is not usable; use
// NewRegistry, which pre-registers the "any" root type.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// anyHandler is the built-in root of every lineage. It accepts anything,
// reports a zero size, and hashes the payload's canonical encoding
// directly — any more specific type is expected to override this with
// a format-aware implementation.
type anyHandler struct{}

func (anyHandler) TypeName() string { return RootType }
func (anyHandler) Parent() string   { return "" }
func (anyHandler) Validate(Config, any) error { return nil }
func (anyHandler) CalculateSize(Config, any) (uint64, error) { return 0, nil }
func (anyHandler) CalculateHash(_ Config, payload any) (hashing.CID, error) {
	return hashing.Compute(payload)
}
func (anyHandler) Parse(_ Config, raw any) (any, error) { return raw, nil }

// NewRegistry creates an empty Data Type Registry with the "any" root
// type pre-registered.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	r.handlers[RootType] = anyHandler{}
	return r
}

// Register adds a handler under its own TypeName(). It fails with
// kerr.KindDuplicateType if a handler is already registered under that
// name, and with kerr.KindInvalidManifest if the handler's declared
// parent is not itself already registered (lineage must be built
// bottom-up from "any").
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := h.TypeName()
	if name == "" {
		return kerr.New(kerr.KindInvalidManifest, "type handler must declare a non-empty TypeName")
	}
	if _, exists := r.handlers[name]; exists {
		return kerr.New(kerr.KindDuplicateType, "type already registered: "+name).WithDetail("type_name", name)
	}
	if name != RootType {
		if _, ok := r.handlers[h.Parent()]; !ok {
			return kerr.New(kerr.KindInvalidManifest, "parent type not registered: "+h.Parent()).
				WithDetail("type_name", name).WithDetail("parent", h.Parent())
		}
	}
	r.handlers[name] = h
	return nil
}

// Get returns the handler registered under typeName.
func (r *Registry) Get(typeName string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[typeName]
	if !ok {
		return nil, kerr.New(kerr.KindNotFound, "no such type: "+typeName).WithDetail("type_name", typeName)
	}
	return h, nil
}

// Lineage returns the ordered chain from typeName up to and including
// "any".
func (r *Registry) Lineage(typeName string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := make([]string, 0, 4)
	current := typeName
	seen := make(map[string]bool)
	for {
		if seen[current] {
			return nil, kerr.New(kerr.KindInvalidManifest, "cyclic type lineage detected at "+current)
		}
		seen[current] = true
		h, ok := r.handlers[current]
		if !ok {
			return nil, kerr.New(kerr.KindNotFound, "no such type: "+current).WithDetail("type_name", current)
		}
		chain = append(chain, current)
		if current == RootType {
			return chain, nil
		}
		current = h.Parent()
	}
}

// IsSubtype reports whether parent appears in child's lineage.
func (r *Registry) IsSubtype(child, parent string) (bool, error) {
	lineage, err := r.Lineage(child)
	if err != nil {
		return false, err
	}
	for _, t := range lineage {
		if t == parent {
			return true, nil
		}
	}
	return false, nil
}

// Subtypes returns the names of every registered type whose lineage
// passes through parent (inclusive of direct children and further
// descendants, exclusive of parent itself). Supplements spec §4.2 with
// the inverse of Lineage, grounded on the original Python
// implementation's lineage walking (SPEC_FULL.md §3a). The operation
// registry's Find does not call it; it checks IsSubtype per operation.
func (r *Registry) Subtypes(parent string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for name := range r.handlers {
		if name == parent {
			continue
		}
		if ok, err := r.IsSubtype(name, parent); err == nil && ok {
			out = append(out, name)
		}
	}
	return out
}

// Validate dispatches to the named type's handler.
func (r *Registry) Validate(typeName string, cfg Config, payload any) error {
	h, err := r.Get(typeName)
	if err != nil {
		return err
	}
	if err := h.Validate(cfg, payload); err != nil {
		return kerr.Wrap(kerr.KindTypeMismatch, "payload does not satisfy type "+typeName, err).
			WithDetail("type_name", typeName)
	}
	return nil
}

// Parse dispatches to the named type's handler.
func (r *Registry) Parse(typeName string, cfg Config, raw any) (any, error) {
	h, err := r.Get(typeName)
	if err != nil {
		return nil, err
	}
	payload, err := h.Parse(cfg, raw)
	if err != nil {
		return nil, kerr.Wrap(kerr.KindInvalidPayload, "failed to parse payload as "+typeName, err).
			WithDetail("type_name", typeName)
	}
	return payload, nil
}
