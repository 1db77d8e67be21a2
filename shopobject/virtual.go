package shopobject

import (
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// VirtualTypeID is the id of the built-in virtual object type.
const VirtualTypeID = "virtual"

// VirtualType produces shop objects that exist outside any world. Virtual
// shopkeepers are never spatially indexed and never spawn a live actor.
type VirtualType struct{}

var _ Type = VirtualType{}

func (VirtualType) ID() string        { return VirtualTypeID }
func (VirtualType) Aliases() []string { return []string{"admin"} }
func (VirtualType) IsVirtual() bool   { return true }

func (VirtualType) New(Keeper) (ShopObject, error) {
	return &virtualObject{}, nil
}

type virtualObject struct{}

var _ ShopObject = (*virtualObject)(nil)

func (*virtualObject) Type() Type { return VirtualType{} }

// Spawn fails. Virtual shopkeepers have no live actor, and the lifecycle layer must
// never ask for one.
func (*virtualObject) Spawn() error {
	return eris.New("virtual shop objects cannot spawn")
}

func (*virtualObject) Despawn()        {}
func (*virtualObject) IsSpawned() bool { return false }
func (*virtualObject) Tick()           {}

func (*virtualObject) MarshalState() (json.RawMessage, error) { return nil, nil }
func (*virtualObject) UnmarshalState(json.RawMessage) error   { return nil }
