package types

// SpawnResult reports the outcome of a single spawn or despawn request. Every request
// yields exactly one of these values; callers are expected to handle all of them and
// never assume success.
type SpawnResult string

const (
	// ResultIgnored is returned when spawning is a no-op by policy, for example for
	// virtual shopkeepers that never have a live actor.
	ResultIgnored SpawnResult = "ignored"

	// ResultIgnoredInactive is returned when the shopkeeper's chunk is not active.
	ResultIgnoredInactive SpawnResult = "ignored-inactive"

	// ResultSpawned is returned when a live actor was created.
	ResultSpawned SpawnResult = "spawned"

	// ResultAlreadySpawned is returned when the shopkeeper already has a live actor.
	// The existing actor is kept as is, never reconstructed.
	ResultAlreadySpawned SpawnResult = "already-spawned"

	// ResultSpawnFailed is returned when constructing the live actor failed. The
	// shopkeeper stays dormant and is retried on the next qualifying event.
	ResultSpawnFailed SpawnResult = "spawn-failed"

	// ResultQueued is returned when the spawn was deferred because the shopkeeper's
	// chunk activation has not completed yet. It is retried once the activation batch
	// is processed.
	ResultQueued SpawnResult = "queued"

	// ResultAwaitingSaveRespawn is returned when the spawn was deferred behind a save
	// barrier. The shopkeeper spawns once the barrier is released.
	ResultAwaitingSaveRespawn SpawnResult = "awaiting-save-respawn"

	// ResultDespawnedAwaitingSaveRespawn is returned when a live shopkeeper was torn
	// down to protect a pending world save. It respawns once the barrier is released.
	ResultDespawnedAwaitingSaveRespawn SpawnResult = "despawned-awaiting-save-respawn"
)

// SpawnState is the lifecycle state of a shopkeeper's live actor.
type SpawnState string

const (
	StateDormant            SpawnState = "dormant"
	StateLive               SpawnState = "live"
	StatePendingSaveDespawn SpawnState = "pending-save-despawn"
	StatePendingSaveRespawn SpawnState = "pending-save-respawn"
)
