package bazaar

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rotisserie/eris"

	"pkg.world.dev/bazaar/assert"
	"pkg.world.dev/bazaar/shopobject"
	"pkg.world.dev/bazaar/storage"
	"pkg.world.dev/bazaar/types"
)

// testFixture manages a registry wired to a fake host backend and a miniredis
// backed store. It cleans up its resources at the end of the test.
type testFixture struct {
	testing.TB
	Registry *Registry
	Redis    *miniredis.Miniredis
	Backend  *fakeBackend

	startOnce *sync.Once
}

// newTestFixture creates a registry for tests. A nil redis starts a fresh
// miniredis; passing one in lets a test restart a registry on the same data.
func newTestFixture(t testing.TB, redis *miniredis.Miniredis, opts ...RegistryOption) *testFixture {
	if redis == nil {
		redis = miniredis.RunT(t)
	}

	t.Setenv("BAZAAR_MODE", "development")
	t.Setenv("REDIS_ADDRESS", redis.Addr())

	backend := newFakeBackend()
	defaultOpts := []RegistryOption{
		WithActorBackend(backend),
	}

	// Default options go first so that any test supplied options overwrite the defaults.
	r, err := New(append(defaultOpts, opts...)...)
	assert.NilError(t, err)

	return &testFixture{
		TB:        t,
		Registry:  r,
		Redis:     redis,
		Backend:   backend,
		startOnce: &sync.Once{},
	}
}

// Start starts the registry and registers a cleanup that shuts it down at the end
// of the test. Object types must be registered before the first call.
func (f *testFixture) Start() {
	f.startOnce.Do(func() {
		assert.NilError(f, f.Registry.Start(context.Background()))
		f.Cleanup(func() {
			assert.NilError(f, f.Registry.Shutdown())
		})
	})
}

// Tick starts the registry if needed and runs one host tick.
func (f *testFixture) Tick() {
	f.Start()
	f.Registry.OnTick()
}

// TickFullCycle runs one tick per ticking group, so every live shopkeeper gets
// exactly one periodic check.
func (f *testFixture) TickFullCycle() {
	for i := 0; i < f.Registry.scheduler.Groups(); i++ {
		f.Tick()
	}
}

// ActivateChunk activates the chunk and runs the tick that delivers its
// activation batch.
func (f *testFixture) ActivateChunk(chunk types.ChunkPos) {
	f.Start()
	f.Registry.OnChunkActivated(chunk)
	f.Tick()
}

// CreateActor creates an actor backed shopkeeper at the given position.
func (f *testFixture) CreateActor(name string, pos types.Position) *Shopkeeper {
	f.Start()
	s, err := f.Registry.Create(CreationSpec{
		Name:       name,
		ObjectType: shopobject.ActorTypeID,
		Position:   pos,
	})
	assert.NilError(f, err)
	return s
}

// fakeBackend stands in for the host simulation. Tests can make upcoming spawns
// fail or drop live actors the way a host does when it reloads part of its world.
type fakeBackend struct {
	failNext int
	spawned  int
	order    []types.ShopkeeperID
	actors   map[types.ShopkeeperID]*fakeActor
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{actors: map[types.ShopkeeperID]*fakeActor{}}
}

func (b *fakeBackend) SpawnActor(keeper shopobject.Keeper) (shopobject.Actor, error) {
	if b.failNext > 0 {
		b.failNext--
		return nil, eris.New("host refused the actor")
	}
	a := &fakeActor{name: keeper.Name(), exists: true}
	b.actors[keeper.ID()] = a
	b.spawned++
	b.order = append(b.order, keeper.ID())
	return a, nil
}

// Actor returns the most recent actor spawned for the shopkeeper.
func (b *fakeBackend) Actor(id types.ShopkeeperID) *fakeActor {
	return b.actors[id]
}

// Drop makes the host forget the shopkeeper's live actor without telling the
// registry, the way a host side reload does.
func (b *fakeBackend) Drop(id types.ShopkeeperID) {
	b.actors[id].exists = false
}

type fakeActor struct {
	name        string
	exists      bool
	removed     bool
	existsCalls int
}

func (a *fakeActor) Exists() bool {
	a.existsCalls++
	return a.exists
}

func (a *fakeActor) SetName(name string) { a.name = name }

func (a *fakeActor) Remove() {
	a.exists = false
	a.removed = true
}

var _ storage.Store = (*memStore)(nil)

// memStore is an in-memory storage.Store. Saves are only acknowledged on Flush, so
// tests control exactly when dirty records become clean.
type memStore struct {
	onSaved storage.SavedFunc
	records map[types.ShopkeeperID]storage.Record
	pending []storage.Request
	deletes []types.ShopkeeperID
	closed  bool
}

func newMemStore() *memStore {
	return &memStore{records: map[types.ShopkeeperID]storage.Record{}}
}

func (m *memStore) Start(onSaved storage.SavedFunc) {
	m.onSaved = onSaved
}

func (m *memStore) LoadAll(context.Context) ([]storage.Record, error) {
	records := make([]storage.Record, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (m *memStore) RequestSave(requests ...storage.Request) {
	m.pending = append(m.pending, requests...)
}

func (m *memStore) RequestDelete(ids ...types.ShopkeeperID) {
	for _, id := range ids {
		delete(m.records, id)
		m.deletes = append(m.deletes, id)
	}
}

func (m *memStore) Flush(context.Context) error {
	for _, request := range m.pending {
		m.records[request.Record.ID] = request.Record
		m.onSaved(request.Record.ID, request.Generation)
	}
	m.pending = nil
	return nil
}

func (m *memStore) Close(context.Context) error {
	m.closed = true
	return m.Flush(context.Background())
}
