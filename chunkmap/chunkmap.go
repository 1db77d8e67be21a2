package chunkmap

import (
	"github.com/rotisserie/eris"

	"pkg.world.dev/bazaar/types"
)

var (
	ErrNotIndexed     = eris.New("shopkeeper is not indexed under the expected chunk")
	ErrAlreadyIndexed = eris.New("shopkeeper is already indexed")
)

// Map indexes shopkeepers by the chunk that contains them. For every indexed shopkeeper
// exactly one chunk's set contains its id. Mutations that disagree with the index, such
// as removing an id from a chunk it was never inserted under, return an error instead of
// silently repairing: they indicate the caller lost track of a shopkeeper's last indexed
// chunk, which is a bug, not a runtime condition.
//
// Map is not safe for concurrent use. All mutations happen on the control goroutine
// that owns the registry.
type Map struct {
	chunks map[types.ChunkPos]*bucket
	byID   map[types.ShopkeeperID]types.ChunkPos
}

// bucket holds one chunk's ids. Removal swaps with the last element to stay O(1);
// iteration order is unspecified but stable between mutations.
type bucket struct {
	ids   []types.ShopkeeperID
	index map[types.ShopkeeperID]int
}

func New() *Map {
	return &Map{
		chunks: make(map[types.ChunkPos]*bucket),
		byID:   make(map[types.ShopkeeperID]types.ChunkPos),
	}
}

func (m *Map) Insert(id types.ShopkeeperID, chunk types.ChunkPos) error {
	if indexed, ok := m.byID[id]; ok {
		return eris.Wrapf(ErrAlreadyIndexed, "shopkeeper %d is indexed under %s", id, indexed)
	}
	b, ok := m.chunks[chunk]
	if !ok {
		b = &bucket{index: make(map[types.ShopkeeperID]int)}
		m.chunks[chunk] = b
	}
	b.index[id] = len(b.ids)
	b.ids = append(b.ids, id)
	m.byID[id] = chunk
	return nil
}

func (m *Map) Remove(id types.ShopkeeperID, chunk types.ChunkPos) error {
	indexed, ok := m.byID[id]
	if !ok || indexed != chunk {
		return eris.Wrapf(ErrNotIndexed, "shopkeeper %d is not indexed under %s", id, chunk)
	}
	b := m.chunks[chunk]
	i := b.index[id]
	last := len(b.ids) - 1
	b.ids[i] = b.ids[last]
	b.index[b.ids[i]] = i
	b.ids = b.ids[:last]
	delete(b.index, id)
	if len(b.ids) == 0 {
		delete(m.chunks, chunk)
	}
	delete(m.byID, id)
	return nil
}

// Move reindexes id from one chunk to another. Moving within the same chunk is a no-op.
func (m *Map) Move(id types.ShopkeeperID, from, to types.ChunkPos) error {
	if from == to {
		return nil
	}
	if err := m.Remove(id, from); err != nil {
		return err
	}
	return m.Insert(id, to)
}

// IDs returns a copy of the ids indexed under the given chunk.
func (m *Map) IDs(chunk types.ChunkPos) []types.ShopkeeperID {
	b, ok := m.chunks[chunk]
	if !ok {
		return nil
	}
	ids := make([]types.ShopkeeperID, len(b.ids))
	copy(ids, b.ids)
	return ids
}

// ChunkOf reports the chunk id is currently indexed under.
func (m *Map) ChunkOf(id types.ShopkeeperID) (types.ChunkPos, bool) {
	chunk, ok := m.byID[id]
	return chunk, ok
}

func (m *Map) Contains(id types.ShopkeeperID, chunk types.ChunkPos) bool {
	indexed, ok := m.byID[id]
	return ok && indexed == chunk
}

// Count returns the number of indexed shopkeepers across all chunks.
func (m *Map) Count() int {
	return len(m.byID)
}

// ChunkCount returns the number of chunks with at least one shopkeeper.
func (m *Map) ChunkCount() int {
	return len(m.chunks)
}
