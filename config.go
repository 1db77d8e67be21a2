package bazaar

import (
	"github.com/JeremyLoy/config"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"pkg.world.dev/bazaar/tick"
)

const (
	DefaultLogLevel      = "info"
	DefaultStatsdAddress = "localhost:8125"
)

var defaultConfig = Config{
	RedisAddress:         "localhost:6379",
	RedisPassword:        "",
	Namespace:            "bazaar",
	Mode:                 RunModeDev,
	LogLevel:             DefaultLogLevel,
	LogPretty:            false,
	StatsdAddress:        DefaultStatsdAddress,
	TraceAddress:         "",
	ProfilerEnabled:      false,
	TickingGroups:        tick.DefaultGroups,
	ActivationDelayTicks: 1,
	SaveIntervalTicks:    6000,
	DrainTimeoutSeconds:  10,
}

// RunMode decides how invariant violations are handled. In development mode the
// registry fails fast; in production it logs and keeps going.
type RunMode string

const (
	RunModeProd RunMode = "production"
	RunModeDev  RunMode = "development"
)

type Config struct {
	// RedisAddress is the address of the redis server holding shopkeeper records.
	RedisAddress string `config:"REDIS_ADDRESS"`

	// RedisPassword is the redis password. Make sure to set this in production.
	RedisPassword string `config:"REDIS_PASSWORD"`

	// Namespace is a unique identifier prefixed to this instance's storage keys.
	Namespace string `config:"BAZAAR_NAMESPACE"`

	// Mode is the registry's run mode: production or development.
	Mode RunMode `config:"BAZAAR_MODE"`

	// LogLevel must be one of (debug, info, warn, error, fatal, panic, disabled, trace).
	LogLevel string `config:"BAZAAR_LOG_LEVEL"`

	// LogPretty enables human readable console logging instead of JSON.
	LogPretty bool `config:"BAZAAR_LOG_PRETTY"`

	// StatsdAddress is the address of a statsd agent, or empty to disable metrics.
	StatsdAddress string `config:"STATSD_ADDRESS"`

	// TraceAddress is the address of an agent accepting traces, or empty to
	// disable tracing.
	TraceAddress string `config:"TRACE_ADDRESS"`

	// ProfilerEnabled turns on continuous CPU and heap profiling.
	ProfilerEnabled bool `config:"BAZAAR_PROFILER_ENABLED"`

	// TickingGroups is the number of groups shopkeepers are spread across for
	// periodic object checks. Each host tick runs one group.
	TickingGroups int `config:"BAZAAR_TICKING_GROUPS"`

	// ActivationDelayTicks is how many ticks a freshly activated chunk waits before
	// its shopkeepers spawn. Zero spawns them during the activation callback.
	ActivationDelayTicks int `config:"BAZAAR_ACTIVATION_DELAY_TICKS"`

	// SaveIntervalTicks is how often still dirty records are re-requested from
	// storage. Zero disables the periodic net.
	SaveIntervalTicks int `config:"BAZAAR_SAVE_INTERVAL_TICKS"`

	// DrainTimeoutSeconds bounds how long shutdown waits for outstanding saves.
	DrainTimeoutSeconds int `config:"BAZAAR_DRAIN_TIMEOUT_SECONDS"`
}

// loadConfig loads the registry configuration from environment variables. Fields
// without a matching environment variable keep their default value.
func loadConfig() (*Config, error) {
	cfg := defaultConfig
	if err := config.FromEnv().To(&cfg); err != nil {
		return nil, eris.Wrap(err, "")
	}
	return &cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.Mode != RunModeProd && cfg.Mode != RunModeDev {
		return eris.Errorf("BAZAAR_MODE must be %q or %q, got %q",
			RunModeProd, RunModeDev, cfg.Mode)
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return eris.Wrap(err, "BAZAAR_LOG_LEVEL is invalid")
	}
	if cfg.Namespace == "" {
		return eris.New("BAZAAR_NAMESPACE must not be empty")
	}
	if cfg.TickingGroups < 1 || cfg.TickingGroups > tick.MaxGroups {
		return eris.Errorf("BAZAAR_TICKING_GROUPS must be between 1 and %d", tick.MaxGroups)
	}
	if cfg.ActivationDelayTicks < 0 {
		return eris.New("BAZAAR_ACTIVATION_DELAY_TICKS must not be negative")
	}
	if cfg.SaveIntervalTicks < 0 {
		return eris.New("BAZAAR_SAVE_INTERVAL_TICKS must not be negative")
	}
	if cfg.DrainTimeoutSeconds < 0 {
		return eris.New("BAZAAR_DRAIN_TIMEOUT_SECONDS must not be negative")
	}
	if cfg.Mode == RunModeProd && cfg.RedisPassword == "" {
		return eris.New("REDIS_PASSWORD must be set in production mode")
	}
	return nil
}
