package chunkmap

import (
	"testing"

	"pkg.world.dev/bazaar/assert"
	"pkg.world.dev/bazaar/types"
)

func chunk(world string, x, z int) types.ChunkPos {
	return types.ChunkPos{World: world, X: x, Z: z}
}

func TestInsertAndLookup(t *testing.T) {
	m := New()
	c := chunk("w", 0, 0)

	assert.NilError(t, m.Insert(1, c))
	assert.NilError(t, m.Insert(2, c))
	assert.NilError(t, m.Insert(3, chunk("w", 1, 0)))

	assert.ElementsMatch(t, []types.ShopkeeperID{1, 2}, m.IDs(c))
	assert.ElementsMatch(t, []types.ShopkeeperID{3}, m.IDs(chunk("w", 1, 0)))
	assert.Equal(t, 3, m.Count())
	assert.Equal(t, 2, m.ChunkCount())

	got, ok := m.ChunkOf(2)
	assert.True(t, ok)
	assert.Equal(t, c, got)
}

func TestInsertTwiceFails(t *testing.T) {
	m := New()
	assert.NilError(t, m.Insert(1, chunk("w", 0, 0)))

	err := m.Insert(1, chunk("w", 0, 0))
	assert.ErrorIs(t, err, ErrAlreadyIndexed)

	// Same id under a different chunk is just as much of a caller bug.
	err = m.Insert(1, chunk("w", 9, 9))
	assert.ErrorIs(t, err, ErrAlreadyIndexed)
}

func TestRemove(t *testing.T) {
	m := New()
	c := chunk("w", 0, 0)
	assert.NilError(t, m.Insert(1, c))
	assert.NilError(t, m.Insert(2, c))

	assert.NilError(t, m.Remove(1, c))
	assert.ElementsMatch(t, []types.ShopkeeperID{2}, m.IDs(c))
	assert.Equal(t, 1, m.Count())

	_, ok := m.ChunkOf(1)
	assert.False(t, ok)
}

func TestRemoveFromWrongChunkFails(t *testing.T) {
	m := New()
	assert.NilError(t, m.Insert(1, chunk("w", 0, 0)))

	err := m.Remove(1, chunk("w", 5, 5))
	assert.ErrorIs(t, err, ErrNotIndexed)

	err = m.Remove(42, chunk("w", 0, 0))
	assert.ErrorIs(t, err, ErrNotIndexed)

	// The failed removals must not have disturbed the index.
	assert.True(t, m.Contains(1, chunk("w", 0, 0)))
	assert.Equal(t, 1, m.Count())
}

func TestMove(t *testing.T) {
	m := New()
	from, to := chunk("w", 0, 0), chunk("w", 5, 5)
	assert.NilError(t, m.Insert(1, from))

	assert.NilError(t, m.Move(1, from, to))
	assert.False(t, m.Contains(1, from))
	assert.True(t, m.Contains(1, to))
	assert.Len(t, m.IDs(from), 0)
	assert.ElementsMatch(t, []types.ShopkeeperID{1}, m.IDs(to))
}

func TestMoveSameChunkIsNoop(t *testing.T) {
	m := New()
	c := chunk("w", 0, 0)
	assert.NilError(t, m.Insert(1, c))
	assert.NilError(t, m.Move(1, c, c))
	assert.True(t, m.Contains(1, c))
}

func TestMoveUnindexedFails(t *testing.T) {
	m := New()
	err := m.Move(1, chunk("w", 0, 0), chunk("w", 1, 1))
	assert.ErrorIs(t, err, ErrNotIndexed)
}

func TestEmptyChunksAreDropped(t *testing.T) {
	m := New()
	c := chunk("w", 0, 0)
	assert.NilError(t, m.Insert(1, c))
	assert.NilError(t, m.Remove(1, c))
	assert.Equal(t, 0, m.ChunkCount())
	assert.Len(t, m.IDs(c), 0)
}

func TestIDsReturnsACopy(t *testing.T) {
	m := New()
	c := chunk("w", 0, 0)
	assert.NilError(t, m.Insert(1, c))
	assert.NilError(t, m.Insert(2, c))

	ids := m.IDs(c)
	ids[0] = 99
	assert.ElementsMatch(t, []types.ShopkeeperID{1, 2}, m.IDs(c))
}
