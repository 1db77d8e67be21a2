// Package statsd is a helper package that wraps some common statsd methods.
// It hides the datadog dependency so if we decide to migrate away from datadog in the future, we only need to
// edit this single file. For example, the https://pkg.go.dev/github.com/cactus/go-statsd-client/statsd package roughly
// implements datadog's ClientInterface interface.
package statsd

import (
	"strings"
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

var client ddstatsd.ClientInterface = &ddstatsd.NoOpClient{}

func Client() ddstatsd.ClientInterface {
	return client
}

// EmitTickStat emits the duration of one named phase of the current tick.
func EmitTickStat(start time.Time, stage string) {
	duration := time.Since(start)
	err := Client().Timing("tick", duration, []string{stage}, 1)
	if err != nil {
		log.Logger.Warn().Msgf("failed to emit tick stat: %v", err)
	}
}

// EmitSpawnStat counts one spawn request outcome.
func EmitSpawnStat(result string) {
	err := Client().Count("spawn_result", 1, []string{"result:" + result}, 1)
	if err != nil {
		log.Logger.Warn().Msgf("failed to emit spawn stat: %v", err)
	}
}

// EmitRespawnStat counts live actors respawned after the host lost them.
func EmitRespawnStat() {
	err := Client().Count("actor_respawns", 1, nil, 1)
	if err != nil {
		log.Logger.Warn().Msgf("failed to emit respawn stat: %v", err)
	}
}

// EmitSaveStat emits the duration and record count of one storage flush.
func EmitSaveStat(start time.Time, records int) {
	duration := time.Since(start)
	if err := Client().Timing("save_flush", duration, nil, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit save flush stat: %v", err)
	}
	if err := Client().Count("saved_records", int64(records), nil, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit saved records stat: %v", err)
	}
}

func Init(statsdAddress string, traceAddress string, tags []string) error {
	if statsdAddress == "" && traceAddress == "" {
		return eris.New("at least one of the statsd address and trace address must be set")
	}

	if statsdAddress != "" {
		opts := []ddstatsd.Option{
			// The statsd namespace is the prefix of all metrics
			ddstatsd.WithNamespace("bazaar"),
		}
		if len(tags) > 0 {
			opts = append(opts, ddstatsd.WithTags(tags))
		}

		newClient, err := ddstatsd.New(statsdAddress, opts...)
		if err != nil {
			return eris.Wrap(err, "")
		}
		// Success! replace the global client
		client = newClient
	}

	if traceAddress != "" {
		startOpts := []tracer.StartOption{
			tracer.WithAgentAddr(traceAddress),
		}
		for _, tag := range tags {
			key, value := tagToTraceTag(tag)
			startOpts = append(startOpts, tracer.WithGlobalTag(key, value))
		}
		tracer.Start(startOpts...)
	}

	return nil
}

// tagToTraceTag converts a statsd style "key:value" tag to the key and value pair the
// tracer wants. A tag with no value maps to a nil value.
func tagToTraceTag(tag string) (string, any) {
	key, value, found := strings.Cut(tag, ":")
	if key == "" {
		if value == "" {
			return "", nil
		}
		return value, nil
	}
	if !found || value == "" {
		return key, nil
	}
	return key, value
}
