package value

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAliasTableBindAndResolve(t *testing.T) {
	t.Parallel()
	tbl := newAliasTable()
	id1, id2 := uuid.New(), uuid.New()

	require.NoError(t, tbl.Bind("x", id1))
	require.NoError(t, tbl.Bind("x", id2))

	latest, err := tbl.Resolve("x")
	require.NoError(t, err)
	assert.Equal(t, id2, latest)

	v1, err := tbl.Resolve("x@1")
	require.NoError(t, err)
	assert.Equal(t, id1, v1)

	v2, err := tbl.Resolve("x@2")
	require.NoError(t, err)
	assert.Equal(t, id2, v2)
}

func TestAliasTableRejectsReservedCharacters(t *testing.T) {
	t.Parallel()
	tbl := newAliasTable()
	require.Error(t, tbl.Bind("has.dot", uuid.New()))
	require.Error(t, tbl.Bind("has@at", uuid.New()))
	require.Error(t, tbl.Bind("", uuid.New()))
}

func TestAliasTableResolveUnknown(t *testing.T) {
	t.Parallel()
	tbl := newAliasTable()
	_, err := tbl.Resolve("nope")
	require.Error(t, err)

	require.NoError(t, tbl.Bind("x", uuid.New()))
	_, err = tbl.Resolve("x@99")
	require.Error(t, err)
}

func TestAliasTableReverseLookup(t *testing.T) {
	t.Parallel()
	tbl := newAliasTable()
	id := uuid.New()
	require.NoError(t, tbl.Bind("a", id))
	require.NoError(t, tbl.Bind("b", id))
	tbl.addReverse("a", id)
	tbl.addReverse("b", id)

	names := tbl.ReverseLookup(id)
	assert.Len(t, names, 2)
	assert.Contains(t, names, "a")
	assert.Contains(t, names, "b")
}
