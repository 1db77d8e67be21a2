package bazaar

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pkg.world.dev/bazaar/shopobject"
	"pkg.world.dev/bazaar/storage"
)

// RegistryOption represents an option that can be used to augment how the Registry
// will be run.
type RegistryOption func(r *Registry)

// WithActorBackend registers the actor object type, backed by the given host
// backend. Without it only virtual shopkeepers can be created, plus whatever types
// are registered via RegisterObjectType.
func WithActorBackend(backend shopobject.Backend) RegistryOption {
	return func(r *Registry) {
		r.actorBackend = backend
	}
}

// WithStore replaces the default redis backed store. Tests use this to drive
// persistence through an in-memory store.
func WithStore(store storage.Store) RegistryOption {
	return func(r *Registry) {
		r.store = store
	}
}

// WithLogger overrides the registry's logger.
func WithLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.log = logger
	}
}

// WithPrettyLog enables human readable console output instead of JSON. This should
// only be used for local development.
func WithPrettyLog() RegistryOption {
	return func(r *Registry) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
		r.log = log.Logger
	}
}
