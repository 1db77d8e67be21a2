package bazaar

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"pkg.world.dev/bazaar/assert"
	"pkg.world.dev/bazaar/shopobject"
	"pkg.world.dev/bazaar/types"
)

type stubType struct{ id string }

func (t stubType) ID() string        { return t.id }
func (t stubType) Aliases() []string { return nil }
func (t stubType) IsVirtual() bool   { return false }
func (t stubType) New(shopobject.Keeper) (shopobject.ShopObject, error) {
	return nil, eris.New("stub objects cannot be constructed")
}

func TestCreateAndLookup(t *testing.T) {
	fx := newTestFixture(t, nil)
	pos := types.NewPosition("overworld", 5, 64, 5)
	fx.ActivateChunk(pos.Chunk())

	s := fx.CreateActor("Ada", pos)

	assert.Equal(t, types.ShopkeeperID(1), s.ID())
	assert.Equal(t, types.StateLive, s.State())
	assert.Equal(t, types.ResultSpawned, s.LastSpawnResult())
	assert.Assert(t, s.IsSpawned())

	got, ok := fx.Registry.Shopkeeper(s.ID())
	assert.Assert(t, ok)
	assert.Equal(t, s, got)

	byUID, ok := fx.Registry.ShopkeeperByUID(s.UID())
	assert.Assert(t, ok)
	assert.Equal(t, s, byUID)

	assert.Equal(t, 1, fx.Registry.Count())
	assert.DeepEqual(t, []types.ShopkeeperID{1}, fx.Registry.ShopkeepersInChunk(pos.Chunk()))

	outcome, err := fx.Registry.SpawnOutcome(s.ID())
	assert.NilError(t, err)
	assert.Equal(t, types.ResultSpawned, outcome)
}

func TestCreateOutsideActiveChunksStaysDormant(t *testing.T) {
	fx := newTestFixture(t, nil)
	s := fx.CreateActor("Ada", types.NewPosition("overworld", 5, 64, 5))

	assert.Equal(t, types.StateDormant, s.State())
	assert.Equal(t, types.ResultIgnoredInactive, s.LastSpawnResult())
	assert.Assert(t, !s.IsSpawned())
	assert.Equal(t, 0, fx.Backend.spawned)
}

func TestCreateVirtualShopkeeper(t *testing.T) {
	fx := newTestFixture(t, nil)
	fx.Start()

	s, err := fx.Registry.Create(CreationSpec{
		Name:       "Held Items",
		ObjectType: "admin", // the virtual type's alias
		Position:   types.VirtualPosition(),
	})
	assert.NilError(t, err)

	assert.Assert(t, s.IsVirtual())
	assert.Equal(t, shopobject.VirtualTypeID, s.ObjectType())
	assert.Equal(t, types.ResultIgnored, s.LastSpawnResult())
	assert.Assert(t, !s.IsSpawned())
	assert.Equal(t, 1, fx.Registry.VirtualCount())

	// Spawning a virtual shopkeeper is a no-op by policy, not an error.
	result, err := fx.Registry.RequestSpawn(s.ID())
	assert.NilError(t, err)
	assert.Equal(t, types.ResultIgnored, result)
}

func TestCreateRejectsBadSpecs(t *testing.T) {
	fx := newTestFixture(t, nil)
	fx.Start()
	pos := types.NewPosition("overworld", 5, 64, 5)

	_, err := fx.Registry.Create(CreationSpec{ObjectType: "golem", Position: pos})
	assert.ErrorIs(t, err, ErrUnknownObjectType)

	_, err = fx.Registry.Create(CreationSpec{
		ObjectType: shopobject.ActorTypeID,
		Position:   types.VirtualPosition(),
	})
	assert.ErrorIs(t, err, ErrInvalidPosition)

	_, err = fx.Registry.Create(CreationSpec{
		ObjectType: shopobject.VirtualTypeID,
		Position:   pos,
	})
	assert.ErrorIs(t, err, ErrInvalidPosition)
}

func TestCreateWithPinnedUID(t *testing.T) {
	fx := newTestFixture(t, nil)
	fx.Start()
	uid := uuid.New()

	s, err := fx.Registry.Create(CreationSpec{
		Name:       "Ada",
		ObjectType: shopobject.ActorTypeID,
		Position:   types.NewPosition("overworld", 5, 64, 5),
		UID:        uid,
	})
	assert.NilError(t, err)
	assert.Equal(t, uid, s.UID())

	_, err = fx.Registry.Create(CreationSpec{
		Name:       "Imposter",
		ObjectType: shopobject.ActorTypeID,
		Position:   types.NewPosition("overworld", 6, 64, 5),
		UID:        uid,
	})
	assert.ErrorContains(t, err, "already belongs")
}

func TestDeleteFreesTheNumericID(t *testing.T) {
	fx := newTestFixture(t, nil)
	pos := types.NewPosition("overworld", 5, 64, 5)
	fx.ActivateChunk(pos.Chunk())

	a := fx.CreateActor("Ada", pos)
	b := fx.CreateActor("Bea", types.NewPosition("overworld", 6, 64, 5))
	assert.Equal(t, types.ShopkeeperID(1), a.ID())
	assert.Equal(t, types.ShopkeeperID(2), b.ID())
	uid := a.UID()

	assert.NilError(t, fx.Registry.Delete(a.ID()))
	assert.Assert(t, fx.Backend.Actor(1).removed)
	assert.Assert(t, !a.Valid())
	_, ok := fx.Registry.Shopkeeper(1)
	assert.Assert(t, !ok)
	_, ok = fx.Registry.ShopkeeperByUID(uid)
	assert.Assert(t, !ok)

	// The numeric id is reused, the uid is not.
	c := fx.CreateActor("Cid", pos)
	assert.Equal(t, types.ShopkeeperID(1), c.ID())
	assert.Assert(t, c.UID() != uid)

	assert.ErrorIs(t, fx.Registry.Delete(99), ErrShopkeeperNotFound)
}

func TestMoveNeverTouchesTheLiveActor(t *testing.T) {
	fx := newTestFixture(t, nil)
	posA := types.NewPosition("overworld", 5, 64, 5)
	posB := types.NewPosition("overworld", 40, 64, 5)
	fx.ActivateChunk(posA.Chunk())

	s := fx.CreateActor("Ada", posA)
	actor := fx.Backend.Actor(s.ID())

	// Move into a chunk that is not active. The actor lingers at the old spot
	// until something explicitly despawns it.
	assert.NilError(t, fx.Registry.Move(s.ID(), posB))
	assert.Equal(t, posB, s.Position())
	assert.Equal(t, types.StateLive, s.State())
	assert.Assert(t, actor.exists)
	assert.Equal(t, 0, len(fx.Registry.ShopkeepersInChunk(posA.Chunk())))
	assert.DeepEqual(t, []types.ShopkeeperID{s.ID()}, fx.Registry.ShopkeepersInChunk(posB.Chunk()))

	assert.NilError(t, fx.Registry.RequestDespawn(s.ID()))
	assert.Assert(t, !actor.exists)

	// And nothing spawns at the new spot while its chunk stays inactive.
	result, err := fx.Registry.RequestSpawn(s.ID())
	assert.NilError(t, err)
	assert.Equal(t, types.ResultIgnoredInactive, result)
}

func TestMoveBetweenWorldAndVirtualIsRejected(t *testing.T) {
	fx := newTestFixture(t, nil)
	fx.Start()
	pos := types.NewPosition("overworld", 5, 64, 5)

	s := fx.CreateActor("Ada", pos)
	assert.ErrorIs(t, fx.Registry.Move(s.ID(), types.VirtualPosition()), ErrInvalidPosition)

	v, err := fx.Registry.Create(CreationSpec{
		ObjectType: shopobject.VirtualTypeID,
		Position:   types.VirtualPosition(),
	})
	assert.NilError(t, err)
	assert.ErrorIs(t, fx.Registry.Move(v.ID(), pos), ErrInvalidPosition)
}

func TestSetNameReachesTheLiveActor(t *testing.T) {
	fx := newTestFixture(t, nil)
	pos := types.NewPosition("overworld", 5, 64, 5)
	fx.ActivateChunk(pos.Chunk())

	s := fx.CreateActor("Ada", pos)
	assert.NilError(t, fx.Registry.SetName(s.ID(), "Bea"))
	assert.Equal(t, "Bea", s.Name())
	assert.Equal(t, "Bea", fx.Backend.Actor(s.ID()).name)

	assert.NilError(t, fx.Registry.SetName(s.ID(), strings.Repeat("x", 200)))
	assert.Equal(t, MaxNameLength, len(s.Name()))
}

func TestOperationsRequireARunningRegistry(t *testing.T) {
	fx := newTestFixture(t, nil)
	pos := types.NewPosition("overworld", 5, 64, 5)

	_, err := fx.Registry.Create(CreationSpec{ObjectType: shopobject.ActorTypeID, Position: pos})
	assert.ErrorIs(t, err, ErrRegistryNotRunning)
	assert.ErrorIs(t, fx.Registry.Delete(1), ErrRegistryNotRunning)
	assert.ErrorIs(t, fx.Registry.Move(1, pos), ErrRegistryNotRunning)
	_, err = fx.Registry.RequestSpawn(1)
	assert.ErrorIs(t, err, ErrRegistryNotRunning)
	assert.ErrorIs(t, fx.Registry.SaveNow(context.Background()), ErrRegistryNotRunning)

	// Host callbacks are ignored instead of erroring.
	fx.Registry.OnChunkActivated(pos.Chunk())
	fx.Registry.OnTick()
	assert.Equal(t, uint64(0), fx.Registry.CurrentTick())

	assert.ErrorContains(t, fx.Registry.Shutdown(), "shutdown attempted")
}

func TestRegistrationClosesOnceStarted(t *testing.T) {
	fx := newTestFixture(t, nil)
	assert.NilError(t, fx.Registry.RegisterObjectType(stubType{id: "sign"}))

	fx.Start()
	assert.ErrorIs(t, fx.Registry.RegisterObjectType(stubType{id: "board"}), ErrRegistryStarted)
}

func TestStartTwiceFails(t *testing.T) {
	fx := newTestFixture(t, nil)
	fx.Start()
	assert.ErrorIs(t, fx.Registry.Start(context.Background()), ErrRegistryStarted)
}

func TestRestartLoadsPersistedShopkeepers(t *testing.T) {
	fx := newTestFixture(t, nil)
	pos := types.NewPosition("overworld", 5, 64, 5)
	fx.ActivateChunk(pos.Chunk())

	a := fx.CreateActor("Ada", pos)
	v, err := fx.Registry.Create(CreationSpec{
		Name:       "Held Items",
		ObjectType: shopobject.VirtualTypeID,
		Position:   types.VirtualPosition(),
	})
	assert.NilError(t, err)
	uidA, uidV := a.UID(), v.UID()

	// Shutdown drains the queued saves into redis.
	assert.NilError(t, fx.Registry.Shutdown())

	fx2 := newTestFixture(t, fx.Redis)
	fx2.Start()
	assert.Equal(t, 2, fx2.Registry.Count())

	gotA, ok := fx2.Registry.ShopkeeperByUID(uidA)
	assert.Assert(t, ok)
	assert.Equal(t, "Ada", gotA.Name())
	assert.Equal(t, pos, gotA.Position())
	assert.Equal(t, types.StateDormant, gotA.State())
	assert.Equal(t, types.ResultIgnoredInactive, gotA.LastSpawnResult())

	gotV, ok := fx2.Registry.ShopkeeperByUID(uidV)
	assert.Assert(t, ok)
	assert.Assert(t, gotV.IsVirtual())
	assert.Equal(t, "Held Items", gotV.Name())
	assert.Equal(t, types.ResultIgnored, gotV.LastSpawnResult())
}

func TestAllReturnsInIDOrder(t *testing.T) {
	fx := newTestFixture(t, nil)
	fx.Start()
	fx.CreateActor("Ada", types.NewPosition("overworld", 5, 64, 5))
	fx.CreateActor("Bea", types.NewPosition("overworld", 25, 64, 5))
	fx.CreateActor("Cid", types.NewPosition("nether", 5, 64, 5))

	all := fx.Registry.All()
	ids := make([]types.ShopkeeperID, 0, len(all))
	for _, s := range all {
		ids = append(ids, s.ID())
	}
	assert.DeepEqual(t, []types.ShopkeeperID{1, 2, 3}, ids)
}

func TestNamespace(t *testing.T) {
	fx := newTestFixture(t, nil)
	assert.Equal(t, "bazaar", fx.Registry.Namespace())
}
