package bazaar

import (
	"pkg.world.dev/bazaar/statsd"
	"pkg.world.dev/bazaar/types"
)

// spawn drives one record toward having a live actor and returns the outcome. The
// outcome is recorded on the record so SpawnOutcome can answer later. Spawning
// never blocks: when a live actor cannot exist right now the outcome says why and
// the next qualifying event (chunk activation, barrier release, periodic check)
// picks the record up again.
func (r *Registry) spawn(s *Shopkeeper) types.SpawnResult {
	result := r.decideSpawn(s)
	s.lastResult = result
	statsd.EmitSpawnStat(string(result))
	return result
}

func (r *Registry) decideSpawn(s *Shopkeeper) types.SpawnResult {
	if !s.valid || s.IsVirtual() {
		return types.ResultIgnored
	}
	if s.state == types.StateLive {
		// Never reconstruct a live actor.
		return types.ResultAlreadySpawned
	}
	if r.saves.barrierHeld() {
		// The record respawns when the barrier is released. A record torn down by
		// the barrier keeps its despawn state; anything else parks as a pending
		// respawn.
		if s.state != types.StatePendingSaveDespawn {
			s.state = types.StatePendingSaveRespawn
		}
		return types.ResultAwaitingSaveRespawn
	}
	cs, ok := r.chunks[s.Chunk()]
	if !ok {
		s.state = types.StateDormant
		return types.ResultIgnoredInactive
	}
	if cs.pending {
		// The chunk's activation batch has not been delivered yet.
		s.state = types.StateDormant
		return types.ResultQueued
	}
	if err := s.object.Spawn(); err != nil {
		s.state = types.StateDormant
		s.log.Warn().Err(err).Msg("failed to spawn shopkeeper")
		return types.ResultSpawnFailed
	}
	s.state = types.StateLive
	return types.ResultSpawned
}

// despawn tears down the record's live actor if there is one. Despawning a dormant
// record is a no-op. A record waiting on a save barrier drops out of the pending
// set, so it will not respawn at release. Plain despawns do not touch the last
// spawn outcome.
func (r *Registry) despawn(s *Shopkeeper) {
	if s.state == types.StateLive {
		s.object.Despawn()
	}
	s.state = types.StateDormant
}

// despawnAll tears down every live actor. Used during shutdown.
func (r *Registry) despawnAll() {
	tornDown := 0
	for _, s := range r.records {
		if s.state == types.StateLive {
			tornDown++
		}
		r.despawn(s)
	}
	r.log.Info().Int("despawned", tornDown).Msg("despawned all shopkeepers")
}
