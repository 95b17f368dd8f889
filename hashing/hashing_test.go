package hashing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDeterministic(t *testing.T) {
	t.Parallel()

	a := map[string]any{"b": 2, "a": 1, "nested": map[string]any{"z": "1", "y": "2"}}
	b := map[string]any{"a": 1, "nested": map[string]any{"y": "2", "z": "1"}, "b": 2}

	ha, err := Compute(a)
	require.NoError(t, err)
	hb, err := Compute(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb, "map key order must not affect the CID")
	assert.NotEmpty(t, ha)
}

func TestComputeDiffersOnContent(t *testing.T) {
	t.Parallel()

	ha, err := Compute(map[string]any{"a": 1})
	require.NoError(t, err)
	hb, err := Compute(map[string]any{"a": 2})
	require.NoError(t, err)

	assert.NotEqual(t, ha, hb)
}

func TestComputeRejectsFloats(t *testing.T) {
	t.Parallel()

	_, err := Compute(map[string]any{"a": 1.5})
	assert.ErrorIs(t, err, ErrFloatNotAllowed)
}

func TestNewIDUnique(t *testing.T) {
	t.Parallel()

	a := NewID()
	b := NewID()
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, uuid.Nil, a)
}

func TestNewDeterministicIDStable(t *testing.T) {
	t.Parallel()

	cid := CID("bsomefixedvalue")
	a := NewDeterministicID(uuid.Nil, cid)
	b := NewDeterministicID(uuid.Nil, cid)
	assert.Equal(t, a, b)

	c := NewDeterministicID(uuid.Nil, CID("bdifferent"))
	assert.NotEqual(t, a, c)
}
