// Package storage persists shopkeeper records. The registry never blocks on
// persistence during normal operation: it hands snapshots to a Store and the Store
// decides when and how to write them.
package storage

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"pkg.world.dev/bazaar/types"
)

// Record is the durable snapshot of one shopkeeper.
type Record struct {
	ID         types.ShopkeeperID `json:"id"`
	UID        uuid.UUID          `json:"uid"`
	Name       string             `json:"name"`
	ObjectType string             `json:"objectType"`
	World      string             `json:"world,omitempty"`
	X          int                `json:"x"`
	Y          int                `json:"y"`
	Z          int                `json:"z"`

	// Object is the object type specific state blob. The store does not interpret it.
	Object json.RawMessage `json:"object,omitempty"`
}

// Position returns the record's position, or the virtual sentinel when the record
// has no world.
func (r Record) Position() types.Position {
	if r.World == "" {
		return types.VirtualPosition()
	}
	return types.NewPosition(r.World, r.X, r.Y, r.Z)
}

// Request pairs a record snapshot with the dirty generation the snapshot was taken
// at. The generation is echoed back through the saved callback so a stale completion
// can be told apart from the completion of the latest snapshot.
type Request struct {
	Record     Record
	Generation uint64
}

// SavedFunc is called by the store after a record snapshot is durably written. Calls
// may come from the store's own goroutine.
type SavedFunc func(id types.ShopkeeperID, generation uint64)

// Store is the persistence boundary of the registry.
type Store interface {
	// Start hands the store its saved callback and begins any background work.
	Start(onSaved SavedFunc)

	// LoadAll returns every stored record.
	LoadAll(ctx context.Context) ([]Record, error)

	// RequestSave queues snapshots for writing. It does not block on I/O; the store
	// owns write timing and batching. A newer request for the same id supersedes an
	// older queued one.
	RequestSave(requests ...Request)

	// RequestDelete queues deletions. A deletion supersedes a queued save of the
	// same id and vice versa.
	RequestDelete(ids ...types.ShopkeeperID)

	// Flush writes everything queued so far and returns once it is durable.
	Flush(ctx context.Context) error

	// Close flushes outstanding work and releases resources.
	Close(ctx context.Context) error
}
