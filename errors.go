package bazaar

import (
	"github.com/rotisserie/eris"
)

var (
	ErrShopkeeperNotFound  = eris.New("shopkeeper does not exist")
	ErrUnknownObjectType   = eris.New("object type is not registered")
	ErrInvalidPosition     = eris.New("position does not match the object type")
	ErrRegistryNotRunning  = eris.New("registry is not running")
	ErrRegistryStarted     = eris.New("registry has already been started")
	ErrInvalidRecordAccess = eris.New("invalid shopkeeper record access")

	// ErrIndexDiverged is returned when the spatial index and the shopkeeper records
	// disagree. The two are updated together, so a divergence means lost track of a
	// shopkeeper somewhere.
	ErrIndexDiverged = eris.New("spatial index diverged from shopkeeper records")
)
