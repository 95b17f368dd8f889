// Package value implements the Value Model & Data Registry (C3): the
// immutable Value object, content-addressed deduplication, the alias
// table, and pedigree resolution. Grounded on
// store.InMemoryIdempotencyStore's dedup-by-key-behind-one-mutex shape
// (_examples/GoCodeAlone-workflow/store/idempotency.go) and
// config/diff.go's append-only version history shape for aliases.
package value

import (
	"github.com/DHARPA-Project/kiara-sub003/hashing"
	"github.com/DHARPA-Project/kiara-sub003/types"
)

// Schema describes the expected shape of a Value (spec §3 ValueSchema).
type Schema struct {
	TypeName   string
	TypeConfig types.Config
	Optional   bool
	Default    any
	Doc        string
}

// Equivalent reports whether two schemas describe the same type,
// config, and optionality (spec: "Two schemas are equivalent iff type,
// config, and optionality match").
func (s Schema) Equivalent(other Schema) bool {
	if s.TypeName != other.TypeName || s.Optional != other.Optional {
		return false
	}
	ha, err1 := s.TypeConfig.Hash()
	hb, err2 := other.TypeConfig.Hash()
	if err1 != nil || err2 != nil {
		return false
	}
	return ha == hb
}

// Hash returns a CID over the schema's shape, used to key the dedup
// fingerprint alongside the payload's data hash.
func (s Schema) Hash() (hashing.CID, error) {
	cfgHash, err := s.TypeConfig.Hash()
	if err != nil {
		return "", err
	}
	return hashing.Compute(map[string]any{
		"type_name":   s.TypeName,
		"type_config": string(cfgHash),
		"optional":    s.Optional,
	})
}

// IsSatisfiedBy reports whether value's type is a sub-type of s's type
// and the configs are compatible (spec: "A schema is satisfied by a
// value iff the value's type is a sub-type of the schema's type and
// config is compatible"). Compatibility of config is delegated to an
// exact-match on the declared TypeConfig; a handler-aware compatibility
// check belongs to types.Handler.Validate, which callers should also
// run against the raw payload.
func (s Schema) IsSatisfiedBy(registry *types.Registry, v *Value) (bool, error) {
	if v == nil {
		return false, nil
	}
	ok, err := registry.IsSubtype(v.Schema.TypeName, s.TypeName)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	sh, err := s.TypeConfig.Hash()
	if err != nil {
		return false, err
	}
	vh, err := v.Schema.TypeConfig.Hash()
	if err != nil {
		return false, err
	}
	return sh == vh, nil
}
