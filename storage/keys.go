package storage

import (
	"fmt"

	"pkg.world.dev/bazaar/types"
)

// shopkeeperKey is the key that stores the durable snapshot of one shopkeeper.
func shopkeeperKey(namespace string, id types.ShopkeeperID) string {
	return fmt.Sprintf("%s:SHOPKEEPER:%d", namespace, id)
}

// shopkeeperKeyPattern matches the snapshot keys of every shopkeeper in the
// namespace.
func shopkeeperKeyPattern(namespace string) string {
	return namespace + ":SHOPKEEPER:*"
}
