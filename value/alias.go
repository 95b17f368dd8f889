package value

import (
	"strconv"
	"strings"
	"sync"

	"github.com/DHARPA-Project/kiara-sub003/kerr"
	"github.com/google/uuid"
)

// AliasTable is an append-only, versioned mapping of alias names to
// ValueIDs (spec §4.3: "set_alias never overwrites history; rebinding
// an alias creates a new version"). Grounded on config/diff.go's
// append-only version history shape.
type AliasTable struct {
	mu sync.RWMutex
	// versions holds every binding ever made for an alias, oldest first.
	versions map[string][]uuid.UUID
	// reverse maps a ValueID to the set of alias names currently
	// pointing at it (kept in sync per RegistryOption).
	reverse map[uuid.UUID]map[string]struct{}
}

func newAliasTable() *AliasTable {
	return &AliasTable{
		versions: make(map[string][]uuid.UUID),
		reverse:  make(map[uuid.UUID]map[string]struct{}),
	}
}

// validAliasName rejects names containing "@" (reserved for version
// suffixes) or "." (reserved for hierarchical aliases, not yet
// supported), per spec §9.
func validAliasName(name string) error {
	if name == "" {
		return kerr.New(kerr.KindInvalidAlias, "alias name must not be empty")
	}
	if strings.ContainsAny(name, "@.") {
		return kerr.New(kerr.KindInvalidAlias, "alias name must not contain '@' or '.'").
			WithDetail("alias", name)
	}
	return nil
}

// Bind appends a new version of alias pointing at id.
func (t *AliasTable) Bind(alias string, id uuid.UUID) error {
	if err := validAliasName(alias); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.versions[alias] = append(t.versions[alias], id)
	return nil
}

// Peek returns the current (latest) binding for alias, if any.
func (t *AliasTable) Peek(alias string) (uuid.UUID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	vs := t.versions[alias]
	if len(vs) == 0 {
		return uuid.UUID{}, false
	}
	return vs[len(vs)-1], true
}

// Resolve looks up alias, which may carry a "@N" version suffix
// (1-indexed) to retrieve an older binding; with no suffix, the latest
// binding is returned.
func (t *AliasTable) Resolve(alias string) (uuid.UUID, error) {
	name, version, hasVersion := strings.Cut(alias, "@")

	t.mu.RLock()
	defer t.mu.RUnlock()
	vs := t.versions[name]
	if len(vs) == 0 {
		return uuid.UUID{}, kerr.New(kerr.KindNotFound, "no such alias").WithDetail("alias", name)
	}
	if !hasVersion {
		return vs[len(vs)-1], nil
	}
	n, err := strconv.Atoi(version)
	if err != nil || n < 1 || n > len(vs) {
		return uuid.UUID{}, kerr.New(kerr.KindInvalidAlias, "no such alias version").
			WithDetail("alias", alias)
	}
	return vs[n-1], nil
}

func (t *AliasTable) addReverse(alias string, id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reverse[id] == nil {
		t.reverse[id] = make(map[string]struct{})
	}
	t.reverse[id][alias] = struct{}{}
}

// clearReverse removes alias from every value's reverse index, used when
// the registry is configured to forget stale reverse bindings on rebind.
func (t *AliasTable) clearReverse(alias string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, names := range t.reverse {
		delete(names, alias)
		if len(names) == 0 {
			delete(t.reverse, id)
		}
	}
}

// ReverseLookup returns every alias name currently indexed against id.
func (t *AliasTable) ReverseLookup(id uuid.UUID) map[string]struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]struct{}, len(t.reverse[id]))
	for name := range t.reverse[id] {
		out[name] = struct{}{}
	}
	return out
}
