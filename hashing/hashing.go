// Package hashing provides the single canonical content-addressing
// primitive used across the orchestration core: a deterministic hash
// (CID) over the structural shape null|bool|int|string|bytes|list|map,
// plus UUID generation for identities that do or do not need to be
// reproducible.
package hashing

import (
	"crypto/sha256"
	"encoding/base32"
	"errors"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// CID is a content identifier: a multibase-encoded cryptographic digest
// over a canonically-encoded structural value.
type CID string

// ErrFloatNotAllowed is returned when a value to be hashed contains a
// float anywhere in its structure. Spec: "floats are forbidden at the
// hashing layer; values that contain floats must pre-serialize to
// strings with a fixed representation".
var ErrFloatNotAllowed = errors.New("hashing: float values are not allowed, pre-serialize to a string")

// multibaseBase32Prefix is the multibase prefix byte for lowercase,
// no-padding base32 ("b" in the multibase table).
const multibaseBase32Prefix = "b"

var canonicalEncMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("hashing: failed to build canonical CBOR encoder: %v", err))
	}
	canonicalEncMode = mode
}

// Canonicalize walks v (which must be built only from
// nil/bool/int*/uint*/string/[]byte/[]any/map[string]any, or a type
// implementing encoding via struct tags) and returns its canonical
// DAG-CBOR encoding: map keys are sorted, integers use the smallest
// encoding that round-trips, and floats are rejected outright.
func Canonicalize(v any) ([]byte, error) {
	if err := rejectFloats(v); err != nil {
		return nil, err
	}
	b, err := canonicalEncMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("hashing: canonicalize: %w", err)
	}
	return b, nil
}

// rejectFloats recursively walks common dynamic shapes (map[string]any,
// []any, and their already-decoded variants) looking for float32/float64
// values. Struct values are encoded directly by cbor and are not walked
// here; callers that hash structs containing floats must pre-serialize
// those fields to strings themselves, per spec §6.
func rejectFloats(v any) error {
	switch t := v.(type) {
	case float32, float64:
		return ErrFloatNotAllowed
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := rejectFloats(t[k]); err != nil {
				return err
			}
		}
	case []any:
		for _, e := range t {
			if err := rejectFloats(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// Compute computes the content identifier for v: SHA-256 over the canonical
// encoding of v, multibase-encoded as lowercase base32.
func Compute(v any) (CID, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return CID(multibaseBase32Prefix + enc.EncodeToString(sum[:])), nil
}

// MustCompute is like Compute but panics on error. Intended for call
// sites that hash a value already validated to be float-free (e.g.
// internal bookkeeping structs assembled by this module itself).
func MustCompute(v any) CID {
	c, err := Compute(v)
	if err != nil {
		panic(err)
	}
	return c
}

// NewID returns a new random (v4) UUID, suitable for identities that
// must be globally unique but need not be reproducible (ValueID, JobID,
// pipeline instance ID).
func NewID() uuid.UUID {
	return uuid.New()
}

// kiaraNamespace is the fixed namespace UUID used to derive deterministic
// (v5) identities. It has no meaning beyond providing a stable seed.
var kiaraNamespace = uuid.MustParse("8f14e45f-ceea-4d20-b96c-99cc3a4d0c3a")

// NewDeterministicID derives a stable v5 UUID from a CID, for cases where
// a reproducible identity is required (spec §4.1). ns, when provided,
// further scopes the derivation (e.g. per-context namespacing); the zero
// UUID falls back to the package-wide namespace.
func NewDeterministicID(ns uuid.UUID, cid CID) uuid.UUID {
	if ns == uuid.Nil {
		ns = kiaraNamespace
	}
	return uuid.NewSHA1(ns, []byte(cid))
}
