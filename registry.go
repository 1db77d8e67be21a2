package bazaar

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"pkg.world.dev/bazaar/chunkmap"
	bzlog "pkg.world.dev/bazaar/log"
	"pkg.world.dev/bazaar/shopobject"
	"pkg.world.dev/bazaar/stage"
	"pkg.world.dev/bazaar/statsd"
	"pkg.world.dev/bazaar/storage"
	"pkg.world.dev/bazaar/telemetry"
	"pkg.world.dev/bazaar/tick"
	"pkg.world.dev/bazaar/types"
)

const RedisDialTimeOut = 15

var _ bzlog.Loggable = (*Registry)(nil)

// Registry owns every shopkeeper record and is the only entry point for user
// operations and host callbacks alike. The host delivers callbacks, and users call
// operations, on a single control thread; the registry does no locking of its own
// beyond the dirty set it shares with the storage worker, so its methods must
// never be called concurrently.
type Registry struct {
	namespace Namespace
	mode      RunMode

	objectTypes  *shopobject.Registry
	actorBackend shopobject.Backend
	records      map[types.ShopkeeperID]*Shopkeeper
	byUID        map[uuid.UUID]types.ShopkeeperID

	chunkIndex *chunkmap.Map
	chunks     map[types.ChunkPos]*chunkState
	chunkSeq   uint64

	scheduler *tick.Scheduler
	stage     *stage.Manager

	store storage.Store
	saves *saveCoordinator

	activationDelay int
	saveInterval    int
	drainTimeout    time.Duration

	// currentTicking names the record inside its periodic check, for panic reports.
	currentTicking types.ShopkeeperID

	telemetry *telemetry.Manager
	tracer    trace.Tracer

	log zerolog.Logger
}

// New creates a registry configured from environment variables.
func New(opts ...RegistryOption) (*Registry, error) {
	// Load config. Fallback value is used if it's not set.
	cfg, err := loadConfig()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load registry config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "registry config is invalid")
	}

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, eris.Wrap(err, "")
	}
	zerolog.SetGlobalLevel(level)

	log.Info().Msgf("Creating a new registry in %s mode", cfg.Mode)

	scheduler, err := tick.NewScheduler(cfg.TickingGroups)
	if err != nil {
		return nil, eris.Wrap(err, "")
	}

	r := &Registry{
		namespace:       Namespace(cfg.Namespace),
		mode:            cfg.Mode,
		objectTypes:     shopobject.NewRegistry(),
		records:         make(map[types.ShopkeeperID]*Shopkeeper),
		byUID:           make(map[uuid.UUID]types.ShopkeeperID),
		chunkIndex:      chunkmap.New(),
		chunks:          make(map[types.ChunkPos]*chunkState),
		scheduler:       scheduler,
		stage:           stage.NewManager(),
		activationDelay: cfg.ActivationDelayTicks,
		saveInterval:    cfg.SaveIntervalTicks,
		drainTimeout:    time.Duration(cfg.DrainTimeoutSeconds) * time.Second,
		tracer:          otel.Tracer("bazaar"),
		log:             log.Logger,
	}

	// The virtual object type is always available.
	if err := r.objectTypes.Register(shopobject.VirtualType{}); err != nil {
		return nil, eris.Wrap(err, "")
	}

	// Apply options
	for _, opt := range opts {
		opt(r)
	}

	if r.actorBackend != nil {
		if err := r.objectTypes.Register(shopobject.NewActorType(r.actorBackend)); err != nil {
			return nil, eris.Wrap(err, "")
		}
	}

	if r.store == nil {
		redisStore := storage.NewRedisStore(storage.Options{
			Addr:        cfg.RedisAddress,
			Password:    cfg.RedisPassword, // make sure to set this in prod
			DB:          0,                 // use default DB
			DialTimeout: RedisDialTimeOut * time.Second,
		}, cfg.Namespace)
		redisStore.Log = r.log
		r.store = redisStore
	}
	r.saves = newSaveCoordinator(r.store)

	var metricTags []string
	if cfg.Mode != "" {
		metricTags = append(metricTags, string("bazaar_mode:"+cfg.Mode))
	}
	if cfg.Namespace != "" {
		metricTags = append(metricTags, "bazaar_namespace:"+cfg.Namespace)
	}

	if cfg.StatsdAddress != "" || cfg.TraceAddress != "" {
		if err := statsd.Init(cfg.StatsdAddress, cfg.TraceAddress, metricTags); err != nil {
			return nil, eris.Wrap(err, "failed to init statsd")
		}
	} else {
		log.Warn().Msg("statsd is disabled")
	}

	if cfg.TraceAddress != "" || cfg.ProfilerEnabled {
		r.telemetry, err = telemetry.New(cfg.TraceAddress != "", cfg.ProfilerEnabled)
		if err != nil {
			return nil, eris.Wrap(err, "failed to create telemetry manager")
		}
	}

	return r, nil
}

// Start loads the persisted population and begins accepting host callbacks and
// user operations. It must be called exactly once.
func (r *Registry) Start(ctx context.Context) error {
	ok := r.stage.CompareAndSwap(stage.Init, stage.Loading)
	if !ok {
		return eris.Wrap(ErrRegistryStarted, "")
	}
	r.log.Info().Msg("Loading shopkeepers from storage")

	r.store.Start(r.saves.onSaved)

	records, err := r.store.LoadAll(ctx)
	if err != nil {
		return eris.Wrap(err, "failed to load shopkeepers")
	}
	loaded := 0
	for _, record := range records {
		if err := r.registerLoaded(record); err != nil {
			r.log.Error().Err(err).Uint64("shopkeeper", uint64(record.ID)).
				Msg("skipping an unloadable shopkeeper record")
			continue
		}
		loaded++
	}

	bzlog.Registry(&r.log, r, zerolog.InfoLevel)
	r.log.Info().Int("loaded", loaded).Msg("Registry is ready")
	r.stage.Store(stage.Running)
	return nil
}

// registerLoaded registers one stored record. All loaded records start dormant;
// their chunks cannot be active before the registry is running.
func (r *Registry) registerLoaded(record storage.Record) error {
	typ, ok := r.objectTypes.Get(record.ObjectType)
	if !ok {
		return eris.Wrapf(ErrUnknownObjectType, "object type %q", record.ObjectType)
	}
	pos := record.Position()
	if typ.IsVirtual() != pos.IsVirtual() {
		return eris.Wrapf(ErrInvalidPosition, "object type %q at %s", typ.ID(), pos)
	}
	if _, ok := r.records[record.ID]; ok {
		return eris.Errorf("storage holds shopkeeper id %d twice", record.ID)
	}

	lastResult := types.ResultIgnoredInactive
	if typ.IsVirtual() {
		lastResult = types.ResultIgnored
	}
	s := &Shopkeeper{
		id:         record.ID,
		uid:        record.UID,
		name:       record.Name,
		pos:        pos,
		group:      r.scheduler.AssignGroup(),
		state:      types.StateDormant,
		lastResult: lastResult,
		valid:      true,
		log:        *bzlog.CreateShopkeeperLogger(&r.log, record.ID),
	}
	obj, err := typ.New(s)
	if err != nil {
		return eris.Wrap(err, "failed to construct the shop object")
	}
	if record.Object != nil {
		if err := obj.UnmarshalState(record.Object); err != nil {
			return eris.Wrap(err, "failed to restore the shop object state")
		}
	}
	s.object = obj

	if s.uid == uuid.Nil {
		s.uid = uuid.New()
	}
	if existing, ok := r.byUID[s.uid]; ok {
		return eris.Errorf("shopkeeper %d reuses the uid of shopkeeper %d", s.id, existing)
	}

	r.records[s.id] = s
	r.byUID[s.uid] = s.id
	if !pos.IsVirtual() {
		if err := r.chunkIndex.Insert(s.id, pos.Chunk()); err != nil {
			delete(r.records, s.id)
			delete(r.byUID, s.uid)
			return eris.Wrap(err, "")
		}
	}
	if record.UID == uuid.Nil {
		s.log.Debug().Msg("assigned a uid to a shopkeeper record that had none")
		r.saves.markDirty(s)
	}
	return nil
}

// Shutdown drains outstanding saves, tears down every live actor and releases
// storage. Shutting down an already shut down registry is a no-op.
func (r *Registry) Shutdown() error {
	log.Info().Msg("Shutting down the registry")
	ok := r.stage.CompareAndSwap(stage.Running, stage.ShuttingDown)
	if !ok {
		switch r.stage.Current() {
		case stage.ShutDown:
			return nil
		default:
			return eris.Errorf("shutdown attempted while the registry is %s", r.stage.Current())
		}
	}

	r.drainSaves()
	r.despawnAll()

	ctx, cancel := context.WithTimeout(context.Background(), r.drainTimeout)
	defer cancel()
	if err := r.store.Close(ctx); err != nil {
		r.log.Error().Err(err).Msg("failed to close storage")
	}

	if r.telemetry != nil {
		if err := r.telemetry.Shutdown(); err != nil {
			r.log.Error().Err(err).Msg("failed to shut down telemetry")
		}
	}

	r.stage.Store(stage.ShutDown)
	log.Info().Msg("Successfully shut down the registry")
	return nil
}

// drainSaves flushes storage until the dirty set is empty or the drain timeout
// expires. An expiry means recent shopkeeper changes may not have been written.
func (r *Registry) drainSaves() {
	deadline := time.Now().Add(r.drainTimeout)
	for {
		if r.saves.dirtyCount() == 0 {
			return
		}
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		err := r.store.Flush(ctx)
		cancel()
		if err != nil {
			r.log.Warn().Err(err).Msg("flush failed while draining saves")
		}
		if r.saves.dirtyCount() == 0 {
			return
		}
		if time.Now().After(deadline) {
			r.log.Error().Int("dirty", r.saves.dirtyCount()).
				Msg("timed out draining saves, unsaved shopkeeper data may be lost")
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// CreationSpec describes one shopkeeper to create.
type CreationSpec struct {
	// Name is the display name. It may be empty.
	Name string

	// ObjectType picks the shop object type, by id or alias.
	ObjectType string

	// Position is the shopkeeper's location. Use types.VirtualPosition for
	// shopkeepers with no world presence.
	Position types.Position

	// UID pins the stable identity of the shopkeeper. Leave it zero to get a
	// fresh one.
	UID uuid.UUID
}

// Create registers a new shopkeeper and immediately tries to spawn it. The outcome
// of that attempt is available on the returned record via LastSpawnResult. The
// record stays owned by the registry.
func (r *Registry) Create(spec CreationSpec) (*Shopkeeper, error) {
	if !r.IsRunning() {
		return nil, eris.Wrap(ErrRegistryNotRunning, "")
	}
	typ, ok := r.objectTypes.Match(spec.ObjectType)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownObjectType, "object type %q", spec.ObjectType)
	}
	if typ.IsVirtual() != spec.Position.IsVirtual() {
		return nil, eris.Wrapf(ErrInvalidPosition, "object type %q at %s",
			typ.ID(), spec.Position)
	}
	uid := spec.UID
	if uid == uuid.Nil {
		uid = uuid.New()
	}
	if existing, ok := r.byUID[uid]; ok {
		return nil, eris.Errorf("uid %s already belongs to shopkeeper %d", uid, existing)
	}

	id := r.nextFreeID()
	s := &Shopkeeper{
		id:    id,
		uid:   uid,
		pos:   spec.Position,
		group: r.scheduler.AssignGroup(),
		state: types.StateDormant,
		valid: true,
		log:   *bzlog.CreateShopkeeperLogger(&r.log, id),
	}
	obj, err := typ.New(s)
	if err != nil {
		return nil, eris.Wrap(err, "failed to construct the shop object")
	}
	s.object = obj
	s.setName(spec.Name)

	r.records[id] = s
	r.byUID[uid] = id
	if !spec.Position.IsVirtual() {
		if err := r.chunkIndex.Insert(id, s.Chunk()); err != nil {
			delete(r.records, id)
			delete(r.byUID, uid)
			return nil, eris.Wrap(err, "")
		}
	}

	r.saves.markDirty(s)
	r.spawn(s)
	s.log.Info().
		Str("name", s.name).
		Str("object_type", typ.ID()).
		Str("position", s.pos.String()).
		Str("result", string(s.lastResult)).
		Msg("created shopkeeper")
	return s, nil
}

// Delete unregisters a shopkeeper, tears down its live actor and removes its
// stored record. The numeric id becomes free for reuse; the uid never is.
func (r *Registry) Delete(id types.ShopkeeperID) error {
	if !r.IsRunning() {
		return eris.Wrap(ErrRegistryNotRunning, "")
	}
	s, ok := r.records[id]
	if !ok {
		return eris.Wrapf(ErrShopkeeperNotFound, "shopkeeper %d", id)
	}
	r.despawn(s)
	if !s.pos.IsVirtual() {
		if err := r.chunkIndex.Remove(id, s.Chunk()); err != nil {
			r.fault(eris.Wrap(err, ""))
		}
	}
	s.valid = false
	delete(r.records, id)
	delete(r.byUID, s.uid)
	r.saves.forget(id)
	r.store.RequestDelete(id)
	s.log.Info().Msg("deleted shopkeeper")
	return nil
}

// Move relocates a shopkeeper. Moving never touches the live actor: an actor left
// at the old location stays there until something despawns it, and none appears at
// the new location until the next spawn request. Moves between the virtual
// position and a world position are rejected.
func (r *Registry) Move(id types.ShopkeeperID, pos types.Position) error {
	if !r.IsRunning() {
		return eris.Wrap(ErrRegistryNotRunning, "")
	}
	s, ok := r.records[id]
	if !ok {
		return eris.Wrapf(ErrShopkeeperNotFound, "shopkeeper %d", id)
	}
	if s.pos.IsVirtual() != pos.IsVirtual() {
		return eris.Wrapf(ErrInvalidPosition, "object type %q at %s", s.ObjectType(), pos)
	}
	if !pos.IsVirtual() {
		if err := r.chunkIndex.Move(id, s.Chunk(), pos.Chunk()); err != nil {
			r.fault(eris.Wrap(err, ""))
			return eris.Wrap(err, "")
		}
	}
	s.pos = pos
	r.saves.markDirty(s)
	return nil
}

// RequestSpawn asks for the shopkeeper to have a live actor and reports the
// outcome. It never blocks; outcomes other than spawned say why there is no live
// actor yet.
func (r *Registry) RequestSpawn(id types.ShopkeeperID) (types.SpawnResult, error) {
	if !r.IsRunning() {
		return "", eris.Wrap(ErrRegistryNotRunning, "")
	}
	s, ok := r.records[id]
	if !ok {
		return "", eris.Wrapf(ErrShopkeeperNotFound, "shopkeeper %d", id)
	}
	return r.spawn(s), nil
}

// RequestDespawn tears down the shopkeeper's live actor if it has one.
func (r *Registry) RequestDespawn(id types.ShopkeeperID) error {
	if !r.IsRunning() {
		return eris.Wrap(ErrRegistryNotRunning, "")
	}
	s, ok := r.records[id]
	if !ok {
		return eris.Wrapf(ErrShopkeeperNotFound, "shopkeeper %d", id)
	}
	r.despawn(s)
	return nil
}

// SpawnOutcome returns the outcome of the shopkeeper's most recent spawn affecting
// event.
func (r *Registry) SpawnOutcome(id types.ShopkeeperID) (types.SpawnResult, error) {
	s, ok := r.records[id]
	if !ok {
		return "", eris.Wrapf(ErrShopkeeperNotFound, "shopkeeper %d", id)
	}
	return s.lastResult, nil
}

// SetName renames a shopkeeper. A live actor picks the new name up right away.
func (r *Registry) SetName(id types.ShopkeeperID, name string) error {
	if !r.IsRunning() {
		return eris.Wrap(ErrRegistryNotRunning, "")
	}
	s, ok := r.records[id]
	if !ok {
		return eris.Wrapf(ErrShopkeeperNotFound, "shopkeeper %d", id)
	}
	if s.setName(name) {
		r.saves.markDirty(s)
	}
	return nil
}

// SaveNow takes a fresh snapshot of every dirty shopkeeper and blocks until storage
// has written everything queued. Normal operation never needs this; it backs explicit
// save commands on the host side.
func (r *Registry) SaveNow(ctx context.Context) error {
	if !r.IsRunning() {
		return eris.Wrap(ErrRegistryNotRunning, "")
	}
	r.resendDirtyRecords()
	if err := r.store.Flush(ctx); err != nil {
		return eris.Wrap(err, "failed to flush shopkeeper saves")
	}
	return nil
}

// ShopkeepersInChunk returns the ids of the shopkeepers located in the chunk, in
// ascending id order. The chunk does not have to be active.
func (r *Registry) ShopkeepersInChunk(chunk types.ChunkPos) []types.ShopkeeperID {
	return r.chunkIDs(chunk)
}

// Shopkeeper returns the record registered under the given id.
func (r *Registry) Shopkeeper(id types.ShopkeeperID) (*Shopkeeper, bool) {
	s, ok := r.records[id]
	return s, ok
}

// ShopkeeperByUID returns the record with the given stable identity.
func (r *Registry) ShopkeeperByUID(uid uuid.UUID) (*Shopkeeper, bool) {
	id, ok := r.byUID[uid]
	if !ok {
		return nil, false
	}
	return r.records[id], true
}

// All returns every registered shopkeeper in ascending id order.
func (r *Registry) All() []*Shopkeeper {
	all := make([]*Shopkeeper, 0, len(r.records))
	for _, s := range r.records {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].id < all[j].id })
	return all
}

// Count returns the number of registered shopkeepers.
func (r *Registry) Count() int {
	return len(r.records)
}

// VirtualCount returns the number of registered shopkeepers without a world presence.
func (r *Registry) VirtualCount() int {
	n := 0
	for _, s := range r.records {
		if s.IsVirtual() {
			n++
		}
	}
	return n
}

// ActiveChunks returns the active chunks in activation order. Chunks whose
// activation batch is still pending are included.
func (r *Registry) ActiveChunks() []types.ChunkPos {
	chunks := make([]types.ChunkPos, 0, len(r.chunks))
	for chunk := range r.chunks {
		chunks = append(chunks, chunk)
	}
	sort.Slice(chunks, func(i, j int) bool {
		return r.chunks[chunks[i]].seq < r.chunks[chunks[j]].seq
	})
	return chunks
}

// RegisterObjectType adds a shop object type. Registration closes once the
// registry starts, so every stored record can resolve its type during loading.
func (r *Registry) RegisterObjectType(t shopobject.Type) error {
	if r.stage.Current() != stage.Init {
		return eris.Wrap(ErrRegistryStarted, "")
	}
	return r.objectTypes.Register(t)
}

// IsRunning reports whether the registry accepts host callbacks and user
// operations.
func (r *Registry) IsRunning() bool {
	return r.stage.Current() == stage.Running
}

// CurrentTick returns the number of host ticks processed so far.
func (r *Registry) CurrentTick() uint64 {
	return r.scheduler.CurrentTick()
}

func (r *Registry) Namespace() string {
	return string(r.namespace)
}

// GetRegisteredObjectTypes returns the ids of the registered shop object types.
func (r *Registry) GetRegisteredObjectTypes() []string {
	return r.objectTypes.IDs()
}

// GetShopkeeperCount returns the number of registered shopkeepers.
func (r *Registry) GetShopkeeperCount() int {
	return len(r.records)
}

// GetActiveChunkCount returns the number of currently active chunks.
func (r *Registry) GetActiveChunkCount() int {
	return len(r.chunks)
}

// fault reports an invariant violation. Development mode fails fast so bugs
// surface in tests; production logs the violation and keeps the registry running.
func (r *Registry) fault(err error) {
	if r.mode == RunModeProd {
		r.log.Error().Str("error", eris.ToString(err, true)).Msg("invariant violation")
		return
	}
	panic(eris.ToString(err, true))
}

// nextFreeID returns the lowest id not currently registered. Ids of deleted
// shopkeepers are reused.
func (r *Registry) nextFreeID() types.ShopkeeperID {
	id := types.ShopkeeperID(1)
	for {
		if _, ok := r.records[id]; !ok {
			return id
		}
		id++
	}
}
