package bazaar

import (
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"pkg.world.dev/bazaar/statsd"
	"pkg.world.dev/bazaar/storage"
	"pkg.world.dev/bazaar/types"
)

// saveCoordinator tracks which records have unsaved changes and owns the save
// barrier bookkeeping. The dirty map is the only state shared with the storage
// worker; everything else is touched on the control thread only.
type saveCoordinator struct {
	store storage.Store

	mu sync.Mutex
	// dirty maps a record id to the generation of its newest snapshot. A save
	// completion only clears the flag when its generation still matches, so a save
	// that raced with a newer mutation leaves the record dirty.
	dirty      map[types.ShopkeeperID]uint64
	generation uint64

	// barrierDepth counts nested barrier acquisitions. Control thread only.
	barrierDepth int
}

func newSaveCoordinator(store storage.Store) *saveCoordinator {
	return &saveCoordinator{
		store: store,
		dirty: map[types.ShopkeeperID]uint64{},
	}
}

// markDirty snapshots the record and hands it to storage. Each call advances the
// record's dirty generation. Invalid records are ignored.
func (c *saveCoordinator) markDirty(s *Shopkeeper) {
	if !s.valid {
		return
	}
	record, err := s.toRecord()
	if err != nil {
		// Stay dirty with no request; the periodic save net retries the snapshot.
		s.log.Error().Err(err).Msg("failed to snapshot shopkeeper for saving")
		c.mu.Lock()
		c.generation++
		c.dirty[s.id] = c.generation
		c.mu.Unlock()
		return
	}
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.dirty[s.id] = gen
	c.mu.Unlock()
	c.store.RequestSave(storage.Request{Record: record, Generation: gen})
}

// onSaved is the storage collaborator's completion callback. It runs on the
// storage worker.
func (c *saveCoordinator) onSaved(id types.ShopkeeperID, generation uint64) {
	c.mu.Lock()
	if current, ok := c.dirty[id]; ok && current == generation {
		delete(c.dirty, id)
	}
	c.mu.Unlock()
}

// forget drops the dirty flag of a deleted record.
func (c *saveCoordinator) forget(id types.ShopkeeperID) {
	c.mu.Lock()
	delete(c.dirty, id)
	c.mu.Unlock()
}

func (c *saveCoordinator) isDirty(id types.ShopkeeperID) bool {
	c.mu.Lock()
	_, ok := c.dirty[id]
	c.mu.Unlock()
	return ok
}

func (c *saveCoordinator) dirtyCount() int {
	c.mu.Lock()
	n := len(c.dirty)
	c.mu.Unlock()
	return n
}

func (c *saveCoordinator) dirtyIDs() []types.ShopkeeperID {
	c.mu.Lock()
	ids := make([]types.ShopkeeperID, 0, len(c.dirty))
	for id := range c.dirty {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// beginBarrier reports whether this call acquired the barrier rather than nesting
// into an already held one.
func (c *saveCoordinator) beginBarrier() bool {
	c.barrierDepth++
	return c.barrierDepth == 1
}

// endBarrier reports whether this call released the barrier. Underflow means the
// host released a barrier it never acquired.
func (c *saveCoordinator) endBarrier() (released bool, underflow bool) {
	if c.barrierDepth == 0 {
		return false, true
	}
	c.barrierDepth--
	return c.barrierDepth == 0, false
}

func (c *saveCoordinator) barrierHeld() bool {
	return c.barrierDepth > 0
}

// BeginSaveBarrier is called by the host right before it walks live actor state for
// its own save snapshot. Every live shopkeeper is torn down so the walk can never
// observe an actor mid construction or mid teardown; the records respawn when the
// barrier is released. Nested acquisitions are counted and only the outermost pair
// has any effect.
func (r *Registry) BeginSaveBarrier() {
	if !r.IsRunning() {
		r.log.Warn().Msg("ignoring a save barrier on a registry that is not running")
		return
	}
	if !r.saves.beginBarrier() {
		return
	}
	tornDown := 0
	for _, s := range r.records {
		if s.state != types.StateLive {
			continue
		}
		s.object.Despawn()
		s.state = types.StatePendingSaveDespawn
		s.lastResult = types.ResultDespawnedAwaitingSaveRespawn
		statsd.EmitSpawnStat(string(types.ResultDespawnedAwaitingSaveRespawn))
		tornDown++
	}
	r.log.Debug().Int("torn_down", tornDown).Msg("save barrier acquired")
}

// EndSaveBarrier releases the save barrier. On the outermost release every record
// waiting on the barrier is spawned again, in chunk activation order so no chunk's
// shopkeepers are starved behind a busier chunk.
func (r *Registry) EndSaveBarrier() {
	if !r.IsRunning() {
		r.log.Warn().Msg("ignoring a save barrier on a registry that is not running")
		return
	}
	released, underflow := r.saves.endBarrier()
	if underflow {
		r.fault(eris.New("save barrier released more times than it was acquired"))
		return
	}
	if !released {
		return
	}

	pending := make([]*Shopkeeper, 0)
	for _, s := range r.records {
		if s.state == types.StatePendingSaveDespawn || s.state == types.StatePendingSaveRespawn {
			pending = append(pending, s)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		si, sj := r.activationSeq(pending[i]), r.activationSeq(pending[j])
		if si != sj {
			return si < sj
		}
		return pending[i].id < pending[j].id
	})

	respawned := 0
	for _, s := range pending {
		if r.spawn(s) == types.ResultSpawned {
			respawned++
		}
	}
	r.log.Debug().Int("respawned", respawned).Msg("save barrier released")
}

// activationSeq orders records by when their chunk was activated. Records outside
// any active chunk sort last.
func (r *Registry) activationSeq(s *Shopkeeper) uint64 {
	if s.IsVirtual() {
		return ^uint64(0)
	}
	if cs, ok := r.chunks[s.Chunk()]; ok {
		return cs.seq
	}
	return ^uint64(0)
}

// resendDirtyRecords takes a fresh snapshot of every record that is still dirty
// and hands it to storage again. It catches records whose save request was lost to
// a snapshot failure or a storage error.
func (r *Registry) resendDirtyRecords() int {
	sent := 0
	for _, id := range r.saves.dirtyIDs() {
		s, ok := r.records[id]
		if !ok {
			// The record was deleted; its delete request superseded the save.
			r.saves.forget(id)
			continue
		}
		r.saves.markDirty(s)
		sent++
	}
	return sent
}
