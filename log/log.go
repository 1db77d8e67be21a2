package log

import (
	"sort"

	"github.com/rs/zerolog"

	"pkg.world.dev/bazaar/types"
)

type Loggable interface {
	GetRegisteredObjectTypes() []string
	GetShopkeeperCount() int
	GetActiveChunkCount() int
}

func loadObjectTypesToEvent(zeroLoggerEvent *zerolog.Event, target Loggable) *zerolog.Event {
	objectTypes := target.GetRegisteredObjectTypes()
	sort.Strings(objectTypes)
	zeroLoggerEvent.Int("total_object_types", len(objectTypes))
	arrayLogger := zerolog.Arr()
	for _, typeID := range objectTypes {
		arrayLogger = arrayLogger.Str(typeID)
	}
	return zeroLoggerEvent.Array("object_types", arrayLogger)
}

func loadPopulationToEvent(zeroLoggerEvent *zerolog.Event, target Loggable) *zerolog.Event {
	zeroLoggerEvent.Int("total_shopkeepers", target.GetShopkeeperCount())
	return zeroLoggerEvent.Int("active_chunks", target.GetActiveChunkCount())
}

// ObjectTypes logs the shop object types registered with the registry.
func ObjectTypes(logger *zerolog.Logger, target Loggable, level zerolog.Level) {
	zeroLoggerEvent := logger.WithLevel(level)
	zeroLoggerEvent = loadObjectTypesToEvent(zeroLoggerEvent, target)
	zeroLoggerEvent.Send()
}

// Population logs the current shopkeeper and active chunk counts.
func Population(logger *zerolog.Logger, target Loggable, level zerolog.Level) {
	zeroLoggerEvent := logger.WithLevel(level)
	zeroLoggerEvent = loadPopulationToEvent(zeroLoggerEvent, target)
	zeroLoggerEvent.Send()
}

// Registry logs everything about the registry (object types and population).
func Registry(logger *zerolog.Logger, target Loggable, level zerolog.Level) {
	zeroLoggerEvent := logger.WithLevel(level)
	zeroLoggerEvent = loadObjectTypesToEvent(zeroLoggerEvent, target)
	zeroLoggerEvent = loadPopulationToEvent(zeroLoggerEvent, target)
	zeroLoggerEvent.Send()
}

// CreateShopkeeperLogger creates a sub logger with the entry {"shopkeeper": id}.
func CreateShopkeeperLogger(logger *zerolog.Logger, id types.ShopkeeperID) *zerolog.Logger {
	newLogger := logger.With().Uint64("shopkeeper", uint64(id)).Logger()
	return &newLogger
}

// CreateChunkLogger creates a sub logger with the entry {"chunk": chunk}.
func CreateChunkLogger(logger *zerolog.Logger, chunk types.ChunkPos) *zerolog.Logger {
	newLogger := logger.With().Str("chunk", chunk.String()).Logger()
	return &newLogger
}
