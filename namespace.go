package bazaar

// Namespace is a unique identifier for a registry instance. It is prefixed to every
// storage key so multiple instances can share one redis.
type Namespace string

func (n Namespace) String() string {
	return string(n)
}
