package value

import (
	"github.com/DHARPA-Project/kiara-sub003/hashing"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a Value (spec §3).
type Status string

const (
	StatusUnset   Status = "UNSET"
	StatusNotSet  Status = "NOT_SET"
	StatusNone    Status = "NONE"
	StatusDefault Status = "DEFAULT"
	StatusSet     Status = "SET"
)

// ManifestRef identifies the manifest that produced a pedigreed value,
// by hash rather than by embedded object, per spec §9's cyclic-reference
// guidance (Value -> Pedigree -> Manifest -> Value, represented by ID).
type ManifestRef struct {
	ModuleType   string
	ManifestHash hashing.CID
}

// Pedigree records the manifest and input ValueIDs that produced a
// given output value (spec §3). A zero Pedigree with Orphan=true
// represents an externally registered value with no production history.
type Pedigree struct {
	Orphan       bool
	Manifest     ManifestRef
	Inputs       map[string]uuid.UUID
	OutputField  string
}

// OrphanPedigree is the canonical pedigree for externally-registered
// values.
func OrphanPedigree() Pedigree {
	return Pedigree{Orphan: true}
}

// Value is an immutable value object (spec §3). Once constructed,
// callers must not mutate Data directly; "updates" are represented by
// registering a new Value with a new ID.
type Value struct {
	ID       uuid.UUID
	Schema   Schema
	Status   Status
	DataHash hashing.CID // empty for NOT_SET/NONE/UNSET
	Size     uint64
	Pedigree Pedigree
	Data     any // opaque; nil unless Status == StatusSet or StatusDefault
}

// fingerprintKey identifies values for deduplication: same schema, same
// data hash, same object (spec: "Two values with the same schema and
// data_hash are equivalent; the registry may return either").
type fingerprintKey struct {
	schemaHash hashing.CID
	dataHash   hashing.CID
}
