package types

// ShopkeeperID is the process-local numeric id of a shopkeeper. IDs are assigned when a
// shopkeeper is created or loaded, stay stable for the lifetime of the process, and are
// only handed out again after their previous owner has been deleted.
type ShopkeeperID uint64
