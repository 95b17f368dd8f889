package value

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/DHARPA-Project/kiara-sub003/archive"
	"github.com/DHARPA-Project/kiara-sub003/event"
	"github.com/DHARPA-Project/kiara-sub003/hashing"
	"github.com/DHARPA-Project/kiara-sub003/kerr"
	"github.com/DHARPA-Project/kiara-sub003/types"
	"github.com/google/uuid"
)

// RegistryOption configures a Registry at construction time.
type RegistryOption func(*Registry)

// WithAliasReverseIndex controls whether find_aliases keeps returning an
// alias after it has been rebound to point elsewhere. Pins the Open
// Question from spec §9 (SPEC_FULL.md §3a); default true.
func WithAliasReverseIndex(enabled bool) RegistryOption {
	return func(r *Registry) { r.aliasReverseIndex = enabled }
}

// WithEventEmitter wires an event.Emitter so value lifecycle events are
// published through it. Events carry no producer or context ID stamp.
func WithEventEmitter(e event.Emitter) RegistryOption {
	return func(r *Registry) { r.emit = e }
}

// Registry is the Value Model & Data Registry (C3). It deduplicates by
// (schema, data_hash), persists values to mounted archives on Store, and
// maintains a versioned alias table. One RWMutex guards the dedup and
// by-ID maps, per spec §5 ("a read-write lock protects the map"),
// grounded on store.InMemoryIdempotencyStore
// (_examples/GoCodeAlone-workflow/store/idempotency.go).
type Registry struct {
	types *types.Registry

	mu            sync.RWMutex
	byID          map[uuid.UUID]*Value
	byFingerprint map[fingerprintKey]uuid.UUID
	storable      map[uuid.UUID]bool // orphans must opt in to be storable

	aliases           *AliasTable
	aliasReverseIndex bool

	archives map[string]archive.Store
	emit     event.Emitter
}

// NewRegistry creates an empty Data Registry bound to the given type
// registry (used to validate schemas and compute hashes via handlers).
func NewRegistry(typeRegistry *types.Registry, opts ...RegistryOption) *Registry {
	r := &Registry{
		types:             typeRegistry,
		byID:              make(map[uuid.UUID]*Value),
		byFingerprint:     make(map[fingerprintKey]uuid.UUID),
		storable:          make(map[uuid.UUID]bool),
		aliases:           newAliasTable(),
		aliasReverseIndex: true,
		archives:          make(map[string]archive.Store),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MountArchive attaches an archive under name for use by Store.
func (r *Registry) MountArchive(name string, a archive.Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archives[name] = a
}

func fingerprint(schemaHash, dataHash hashing.CID) fingerprintKey {
	return fingerprintKey{schemaHash: schemaHash, dataHash: dataHash}
}

// RegisterData creates a Value from a raw payload under schema,
// deduplicating against any existing equivalent value (spec §4.3).
// pedigree defaults to OrphanPedigree() when nil.
func (r *Registry) RegisterData(schema Schema, payload any, pedigree *Pedigree) (*Value, error) {
	if err := r.types.Validate(schema.TypeName, schema.TypeConfig, payload); err != nil {
		return nil, kerr.Wrap(kerr.KindSchemaViolation, "payload does not satisfy schema", err)
	}

	handler, err := r.types.Get(schema.TypeName)
	if err != nil {
		return nil, err
	}
	dataHash, err := handler.CalculateHash(schema.TypeConfig, payload)
	if err != nil {
		return nil, kerr.Wrap(kerr.KindInvalidPayload, "failed to hash payload", err)
	}
	size, err := handler.CalculateSize(schema.TypeConfig, payload)
	if err != nil {
		return nil, kerr.Wrap(kerr.KindInvalidPayload, "failed to size payload", err)
	}
	schemaHash, err := schema.Hash()
	if err != nil {
		return nil, err
	}

	ped := OrphanPedigree()
	if pedigree != nil {
		ped = *pedigree
	}

	fp := fingerprint(schemaHash, dataHash)

	r.mu.Lock()
	if existingID, ok := r.byFingerprint[fp]; ok {
		existing := r.byID[existingID]
		r.mu.Unlock()
		return existing, nil
	}

	v := &Value{
		ID:       hashing.NewID(),
		Schema:   schema,
		Status:   StatusSet,
		DataHash: dataHash,
		Size:     size,
		Pedigree: ped,
		Data:     payload,
	}
	r.byID[v.ID] = v
	r.byFingerprint[fp] = v.ID
	r.storable[v.ID] = !ped.Orphan
	r.mu.Unlock()

	if r.emit != nil {
		r.emit.Publish(event.ValueCreated{ValueID: v.ID, SchemaType: schema.TypeName, DataHash: dataHash})
	}
	return v, nil
}

// MarkStorable allows an orphan value to be persisted despite having no
// production pedigree (spec §4.3: "Orphan values may be registered but
// cannot be stored unless explicitly marked storable").
func (r *Registry) MarkStorable(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return kerr.New(kerr.KindNotFound, "no such value").WithDetail("value_id", id.String())
	}
	r.storable[id] = true
	return nil
}

// Get returns the value registered under id.
func (r *Registry) Get(id uuid.UUID) (*Value, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byID[id]
	if !ok {
		return nil, kerr.New(kerr.KindNotFound, "no such value").WithDetail("value_id", id.String())
	}
	return v, nil
}

// GetByAlias resolves alias to its current value.
func (r *Registry) GetByAlias(alias string) (*Value, error) {
	id, err := r.aliases.Resolve(alias)
	if err != nil {
		return nil, err
	}
	return r.Get(id)
}

// valueEnvelope is the archive-persisted representation of a Value.
// Data is stored as-is only when it is already JSON-marshalable; callers
// storing exotic payload types are expected to have parsed them down to
// JSON-compatible shapes via their DataType's Parse, consistent with the
// "opaque but structurally hashable" contract of spec §3.
type valueEnvelope struct {
	ID         uuid.UUID      `json:"id"`
	TypeName   string         `json:"type_name"`
	TypeConfig types.Config   `json:"type_config"`
	Status     Status         `json:"status"`
	DataHash   hashing.CID    `json:"data_hash"`
	Size       uint64         `json:"size"`
	Orphan     bool           `json:"orphan"`
	Data       any            `json:"data"`
}

// Store promotes an in-memory value into the named archive, storing its
// pedigree inputs first (transitively), per spec §4.3's reproducibility
// invariant. Idempotent per (value_id, archive).
func (r *Registry) Store(ctx context.Context, id uuid.UUID, archiveName string) error {
	v, err := r.Get(id)
	if err != nil {
		return err
	}

	r.mu.RLock()
	storable := r.storable[id]
	a, hasArchive := r.archives[archiveName]
	r.mu.RUnlock()

	if !storable {
		return kerr.New(kerr.KindArchiveWriteFailed, "orphan value is not marked storable").
			WithDetail("value_id", id.String())
	}
	if !hasArchive {
		return kerr.New(kerr.KindNotFound, "no such archive: "+archiveName)
	}

	if !v.Pedigree.Orphan {
		for _, inputID := range v.Pedigree.Inputs {
			if err := r.Store(ctx, inputID, archiveName); err != nil {
				return err
			}
		}
	}

	if r.emit != nil {
		r.emit.Publish(event.ValuePreStore{ValueID: id, Archive: archiveName})
	}

	env := valueEnvelope{
		ID: v.ID, TypeName: v.Schema.TypeName, TypeConfig: v.Schema.TypeConfig,
		Status: v.Status, DataHash: v.DataHash, Size: v.Size,
		Orphan: v.Pedigree.Orphan, Data: v.Data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return kerr.Wrap(kerr.KindArchiveWriteFailed, "failed to encode value", err)
	}
	if err := a.Put(ctx, id.String(), payload); err != nil {
		return kerr.Wrap(kerr.KindArchiveWriteFailed, "archive write failed", err).
			WithDetail("archive", archiveName).WithDetail("value_id", id.String())
	}

	if r.emit != nil {
		r.emit.Publish(event.ValueStored{ValueID: id, Archive: archiveName})
	}
	return nil
}

// SetAlias atomically rebinds alias to point at valueID, retaining the
// previous binding as an older, still-retrievable version (spec §4.3).
func (r *Registry) SetAlias(alias string, valueID uuid.UUID) error {
	if _, err := r.Get(valueID); err != nil {
		return err
	}
	prevID, hadPrev := r.aliases.Peek(alias)
	if r.emit != nil {
		r.emit.Publish(event.AliasPreStore{Alias: alias, ValueID: valueID})
	}
	if err := r.aliases.Bind(alias, valueID); err != nil {
		return err
	}
	if r.aliasReverseIndex {
		r.aliases.addReverse(alias, valueID)
	} else {
		r.aliases.clearReverse(alias)
		r.aliases.addReverse(alias, valueID)
		if hadPrev {
			_ = prevID // previous reverse mapping intentionally dropped
		}
	}
	if r.emit != nil {
		r.emit.Publish(event.AliasStored{Alias: alias, ValueID: valueID})
	}
	return nil
}

// FindAliases returns the set of aliases currently pointing at valueID.
// Behavior after a rebind depends on the AliasReverseIndex option (spec
// §9 Open Question, pinned in SPEC_FULL.md §3a).
func (r *Registry) FindAliases(valueID uuid.UUID) map[string]struct{} {
	return r.aliases.ReverseLookup(valueID)
}

// PedigreeNode is one entry in a resolved pedigree DAG.
type PedigreeNode struct {
	Value    *Value
	Manifest ManifestRef
}

// ResolvePedigree walks valueID's ancestry (via Pedigree.Inputs) and
// returns every ancestor value plus the manifest that produced it.
func (r *Registry) ResolvePedigree(valueID uuid.UUID) ([]PedigreeNode, error) {
	v, err := r.Get(valueID)
	if err != nil {
		return nil, err
	}
	if v.Pedigree.Orphan {
		return nil, kerr.New(kerr.KindPedigreeMissing, "value has no pedigree (orphan)").
			WithDetail("value_id", valueID.String())
	}

	var nodes []PedigreeNode
	visited := make(map[uuid.UUID]bool)
	var walk func(uuid.UUID) error
	walk = func(id uuid.UUID) error {
		if visited[id] {
			return nil
		}
		visited[id] = true
		cur, err := r.Get(id)
		if err != nil {
			return err
		}
		nodes = append(nodes, PedigreeNode{Value: cur, Manifest: cur.Pedigree.Manifest})
		if cur.Pedigree.Orphan {
			return nil
		}
		for _, inputID := range cur.Pedigree.Inputs {
			if err := walk(inputID); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(valueID); err != nil {
		return nil, err
	}
	return nodes, nil
}
