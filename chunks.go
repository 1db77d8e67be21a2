package bazaar

import (
	"sort"

	"github.com/rotisserie/eris"

	bzlog "pkg.world.dev/bazaar/log"
	"pkg.world.dev/bazaar/types"
)

// chunkState is the registry side bookkeeping of one active chunk.
type chunkState struct {
	// seq is the chunk's activation order. It decides the respawn order after a
	// save barrier and the delivery order of pending activation batches.
	seq uint64

	// pending is true until the chunk's activation batch is delivered. Spawn
	// requests during that window return a queued outcome.
	pending bool

	// dueTick is the tick that delivers the batch.
	dueTick uint64
}

// OnChunkActivated is called by the host after it finished loading a chunk.
// Shopkeepers in the chunk spawn after the configured activation delay, or during
// this call when the delay is zero.
func (r *Registry) OnChunkActivated(chunk types.ChunkPos) {
	if !r.IsRunning() {
		r.log.Warn().Str("chunk", chunk.String()).
			Msg("ignoring a chunk activation on a registry that is not running")
		return
	}
	if _, ok := r.chunks[chunk]; ok {
		r.log.Warn().Str("chunk", chunk.String()).Msg("chunk is already active")
		return
	}
	r.chunkSeq++
	cs := &chunkState{seq: r.chunkSeq}
	r.chunks[chunk] = cs
	if r.activationDelay == 0 {
		r.deliverChunk(chunk)
		return
	}
	cs.pending = true
	cs.dueTick = r.scheduler.CurrentTick() + uint64(r.activationDelay)
}

// OnChunkDeactivated is called by the host right before it unloads a chunk. Every
// shopkeeper in the chunk is torn down, including ones waiting on a save barrier.
func (r *Registry) OnChunkDeactivated(chunk types.ChunkPos) {
	if !r.IsRunning() {
		r.log.Warn().Str("chunk", chunk.String()).
			Msg("ignoring a chunk deactivation on a registry that is not running")
		return
	}
	if _, ok := r.chunks[chunk]; !ok {
		r.log.Warn().Str("chunk", chunk.String()).Msg("chunk is not active")
		return
	}
	delete(r.chunks, chunk)
	for _, id := range r.chunkIDs(chunk) {
		s, ok := r.records[id]
		if !ok {
			r.fault(eris.Wrapf(ErrIndexDiverged,
				"chunk %s indexes shopkeeper %d which has no record", chunk, id))
			continue
		}
		r.despawn(s)
	}
}

// deliverChunk spawns every shopkeeper indexed in the chunk and marks the chunk's
// activation batch as delivered.
func (r *Registry) deliverChunk(chunk types.ChunkPos) {
	cs, ok := r.chunks[chunk]
	if !ok {
		return
	}
	cs.pending = false
	logger := bzlog.CreateChunkLogger(&r.log, chunk)
	ids := r.chunkIDs(chunk)
	for _, id := range ids {
		s, ok := r.records[id]
		if !ok {
			r.fault(eris.Wrapf(ErrIndexDiverged,
				"chunk %s indexes shopkeeper %d which has no record", chunk, id))
			continue
		}
		r.spawn(s)
	}
	if len(ids) > 0 {
		logger.Debug().Int("shopkeepers", len(ids)).Msg("activation batch delivered")
	}
}

// processDueActivations delivers every pending activation batch whose delay has
// elapsed, oldest activation first.
func (r *Registry) processDueActivations() {
	now := r.scheduler.CurrentTick()
	due := make([]types.ChunkPos, 0)
	for chunk, cs := range r.chunks {
		if cs.pending && cs.dueTick <= now {
			due = append(due, chunk)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return r.chunks[due[i]].seq < r.chunks[due[j]].seq
	})
	for _, chunk := range due {
		r.deliverChunk(chunk)
	}
}

// chunkIDs returns the ids indexed in the chunk in ascending order.
func (r *Registry) chunkIDs(chunk types.ChunkPos) []types.ShopkeeperID {
	ids := r.chunkIndex.IDs(chunk)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
