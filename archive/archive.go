// Package archive defines the pluggable persistence contract (spec §6)
// used for the data, alias, job, and metadata stores. The orchestration
// core knows only this contract; concrete backends (filesystem, sqlite,
// ...) are out of scope per spec §1 and are supplied by a host
// application. InMemory below is a reference implementation that
// exercises the contract for tests only, grounded on
// store.InMemoryIdempotencyStore's map-behind-a-mutex shape
// (_examples/GoCodeAlone-workflow/store/idempotency.go).
package archive

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store is the archive contract every mount point implements.
type Store interface {
	// ArchiveID is a stable identity for this mounted archive.
	ArchiveID() uuid.UUID
	// ArchiveName is the human-readable mount name (e.g. "data", "jobs").
	ArchiveName() string
	// IsWritable reports whether Put is expected to succeed.
	IsWritable() bool
	// SupportedItemTypes enumerates the kinds of keys this archive
	// accepts (e.g. "value", "job_record", "alias", "metadata").
	SupportedItemTypes() []string

	// Put writes payload under key. Returns an error wrapping
	// kerr.KindArchiveWriteFailed on failure, kerr.KindArchiveReadOnly
	// if IsWritable() is false.
	Put(ctx context.Context, key string, payload []byte) error
	// Get reads the payload stored under key. ok is false if the key is
	// absent (not an error).
	Get(ctx context.Context, key string) (payload []byte, ok bool, err error)
	// List returns every key with the given prefix, in no particular
	// order beyond what the implementation finds convenient.
	List(ctx context.Context, prefix string) ([]string, error)
}

// OnMounter is optionally implemented by a Store to run setup logic the
// first time it is mounted into a Context (spec §6: "register(context)
// called once at mount time"). It intentionally does not take the
// Context type itself to avoid a dependency cycle between this package
// and the kiara package; a Store that needs context-wide state should
// accept it via its own constructor instead.
type OnMounter interface {
	OnMount() error
}

// InMemory is a thread-safe, in-process reference Store implementation.
// It is not a "concrete archive backend" in the sense excluded by spec
// §1 (filesystem/sqlite) — it exists purely so the core's own tests can
// exercise the Store contract without a host application.
type InMemory struct {
	id        uuid.UUID
	name      string
	writable  bool
	itemTypes []string

	mu   sync.RWMutex
	data map[string][]byte
}

// NewInMemory creates an InMemory archive mounted under name.
func NewInMemory(name string, itemTypes []string) *InMemory {
	return &InMemory{
		id:        uuid.New(),
		name:      name,
		writable:  true,
		itemTypes: itemTypes,
		data:      make(map[string][]byte),
	}
}

func (m *InMemory) ArchiveID() uuid.UUID         { return m.id }
func (m *InMemory) ArchiveName() string          { return m.name }
func (m *InMemory) IsWritable() bool             { return m.writable }
func (m *InMemory) SupportedItemTypes() []string { return m.itemTypes }

func (m *InMemory) Put(_ context.Context, key string, payload []byte) error {
	if !m.writable {
		return ErrReadOnly
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.data[key] = cp
	return nil
}

func (m *InMemory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (m *InMemory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// SetReadOnly flips the archive into read-only mode, for testing the
// ArchiveReadOnly failure path of Put.
func (m *InMemory) SetReadOnly(ro bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writable = !ro
}
