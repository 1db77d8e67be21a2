package shopobject

import (
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"pkg.world.dev/bazaar/statsd"
)

// ActorTypeID is the id of the built-in actor object type.
const ActorTypeID = "actor"

// Backend is implemented by the host simulation. It owns the live actors that shop
// objects create and may drop them on its own, for example when it reloads parts of
// the world.
type Backend interface {
	SpawnActor(keeper Keeper) (Actor, error)
}

// Actor is one live actor owned by the host.
type Actor interface {
	// Exists reports whether the host still knows this actor.
	Exists() bool

	SetName(name string)

	// Remove tears the actor down inside the host.
	Remove()
}

// ActorType produces shop objects backed by a live actor in the host simulation.
type ActorType struct {
	backend Backend
}

var _ Type = (*ActorType)(nil)

func NewActorType(backend Backend) *ActorType {
	return &ActorType{backend: backend}
}

func (*ActorType) ID() string        { return ActorTypeID }
func (*ActorType) Aliases() []string { return []string{"npc"} }
func (*ActorType) IsVirtual() bool   { return false }

func (t *ActorType) New(keeper Keeper) (ShopObject, error) {
	if t.backend == nil {
		return nil, eris.New("actor object type has no backend")
	}
	return &actorObject{typ: t, keeper: keeper}, nil
}

// actorObject keeps at most one live actor with the host.
type actorObject struct {
	typ    *ActorType
	keeper Keeper
	actor  Actor
}

var _ ShopObject = (*actorObject)(nil)
var _ LiveNamer = (*actorObject)(nil)

func (o *actorObject) Type() Type { return o.typ }

func (o *actorObject) Spawn() error {
	if o.actor != nil {
		return eris.New("shop object is already spawned")
	}
	actor, err := o.typ.backend.SpawnActor(o.keeper)
	if err != nil {
		return eris.Wrap(err, "failed to spawn actor")
	}
	if actor == nil {
		return eris.New("backend returned no actor")
	}
	o.actor = actor
	return nil
}

func (o *actorObject) Despawn() {
	if o.actor == nil {
		return
	}
	o.actor.Remove()
	o.actor = nil
}

func (o *actorObject) IsSpawned() bool { return o.actor != nil }

// Tick verifies the live actor is still known to the host and brings it back when it
// is missing. Only objects that are supposed to be live get ticked, so an unspawned
// object here means the host dropped the actor or an earlier respawn failed.
func (o *actorObject) Tick() {
	if o.actor != nil && o.actor.Exists() {
		return
	}
	lost := o.actor != nil
	o.actor = nil
	if err := o.Spawn(); err != nil {
		log.Warn().Err(err).
			Uint64("shopkeeper", uint64(o.keeper.ID())).
			Msg("failed to respawn actor lost by the host")
		return
	}
	if lost {
		statsd.EmitRespawnStat()
	}
}

func (o *actorObject) SetLiveName(name string) {
	if o.actor == nil {
		return
	}
	o.actor.SetName(name)
}

func (o *actorObject) MarshalState() (json.RawMessage, error) { return nil, nil }

func (o *actorObject) UnmarshalState(json.RawMessage) error { return nil }
