package log_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"pkg.world.dev/bazaar/log"
	"pkg.world.dev/bazaar/types"
)

type fakeRegistry struct {
	objectTypes  []string
	shopkeepers  int
	activeChunks int
}

func (f *fakeRegistry) GetRegisteredObjectTypes() []string { return f.objectTypes }
func (f *fakeRegistry) GetShopkeeperCount() int            { return f.shopkeepers }
func (f *fakeRegistry) GetActiveChunkCount() int           { return f.activeChunks }

func TestRegistryLogger(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var buf bytes.Buffer
	bufLogger := zerolog.New(&buf)

	target := &fakeRegistry{
		objectTypes:  []string{"virtual", "actor"},
		shopkeepers:  3,
		activeChunks: 2,
	}

	log.Registry(&bufLogger, target, zerolog.InfoLevel)
	require.JSONEq(t, `
		{
			"level":"info",
			"total_object_types":2,
			"object_types":["actor","virtual"],
			"total_shopkeepers":3,
			"active_chunks":2
		}`, buf.String(),
	)

	buf.Reset()
	log.Population(&bufLogger, target, zerolog.DebugLevel)
	require.JSONEq(t, `
		{
			"level":"debug",
			"total_shopkeepers":3,
			"active_chunks":2
		}`, buf.String(),
	)
}

func TestSubLoggers(t *testing.T) {
	var buf bytes.Buffer
	bufLogger := zerolog.New(&buf)

	skLogger := log.CreateShopkeeperLogger(&bufLogger, types.ShopkeeperID(7))
	skLogger.Info().Msg("spawned")
	require.JSONEq(t, `{"level":"info","shopkeeper":7,"message":"spawned"}`, buf.String())

	buf.Reset()
	chunkLogger := log.CreateChunkLogger(&bufLogger, types.ChunkPos{World: "overworld", X: -1, Z: 4})
	chunkLogger.Info().Msg("activated")
	require.True(t, strings.Contains(buf.String(), `"chunk":"overworld[-1,4]"`))
}
