// Package shopobject defines the live-actor side of a shopkeeper. A shopkeeper record
// owns exactly one ShopObject; the object owns at most one live actor inside the host
// simulation. The registry drives objects exclusively through the ShopObject interface
// and never inspects their internals.
package shopobject

import (
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"pkg.world.dev/bazaar/types"
)

// Keeper is the narrow view of a shopkeeper record that shop objects may read. Objects
// must not hold on to position or name values across calls; they are read fresh when
// needed.
type Keeper interface {
	ID() types.ShopkeeperID
	UID() uuid.UUID
	Name() string
	Position() types.Position
}

// ShopObject is the capability set of one shopkeeper's live actor.
type ShopObject interface {
	// Type returns the object type that produced this object.
	Type() Type

	// Spawn constructs the live actor. A nil error means the actor is live.
	Spawn() error

	// Despawn tears down the live actor. Despawning an object that has none is a no-op.
	Despawn()

	// IsSpawned reports whether a live actor currently exists.
	IsSpawned() bool

	// Tick runs the object's periodic check.
	Tick()

	// MarshalState returns the variant specific state stored in the durable blob.
	MarshalState() (json.RawMessage, error)

	// UnmarshalState restores variant specific state from the durable blob.
	UnmarshalState(bz json.RawMessage) error
}

// LiveNamer is implemented by shop objects whose live actor displays the shopkeeper
// name. The registry forwards name changes through it while the object is spawned.
type LiveNamer interface {
	SetLiveName(name string)
}

// Type produces shop objects of one kind. The type id is persisted with every
// shopkeeper, so it must stay stable across releases.
type Type interface {
	ID() string

	// Aliases are alternative names accepted when matching user input against types.
	Aliases() []string

	// IsVirtual reports whether objects of this type exist outside any world. A
	// shopkeeper's position is the virtual sentinel exactly when its object type is
	// virtual.
	IsVirtual() bool

	// New creates the object for the given shopkeeper record.
	New(keeper Keeper) (ShopObject, error)
}
