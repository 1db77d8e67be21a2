// Package telemetry owns the process wide tracing and profiling setup. The
// registry's internal spans are created through the OpenTelemetry API, so without
// a manager they are no-ops; the manager installs the bridge that routes them to
// the trace agent, and optionally starts the continuous profiler.
package telemetry

import (
	"errors"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	ddotel "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/opentelemetry"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
	"gopkg.in/DataDog/dd-trace-go.v1/profiler"
)

type Manager struct {
	tracerShutdown func() error
	profilerStop   func()
}

func New(enableTrace bool, enableProfiler bool) (*Manager, error) {
	tm := &Manager{}

	// Trace context propagates over both the W3C and baggage headers.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if enableTrace {
		tm.startTrace()
	}

	if enableProfiler {
		if err := tm.startProfiler(); err != nil {
			return nil, errors.Join(err, tm.Shutdown())
		}
	}

	return tm, nil
}

// Shutdown stops whatever New started. It is safe to call more than once.
func (tm *Manager) Shutdown() error {
	if tm.profilerStop != nil {
		tm.profilerStop()
		tm.profilerStop = nil
	}

	if tm.tracerShutdown != nil {
		shutdown := tm.tracerShutdown
		tm.tracerShutdown = nil
		if err := shutdown(); err != nil {
			return eris.Wrap(err, "failed to shut down the tracer provider")
		}
	}

	return nil
}

func (tm *Manager) startTrace() {
	provider := ddotel.NewTracerProvider(tracer.WithRuntimeMetrics())
	tm.tracerShutdown = provider.Shutdown
	otel.SetTracerProvider(provider)
}

func (tm *Manager) startProfiler() error {
	err := profiler.Start(
		profiler.WithProfileTypes(
			profiler.CPUProfile,
			profiler.HeapProfile,
			// The profiles below are disabled by default to keep overhead
			// low, but can be enabled as needed.
			// profiler.BlockProfile,
			// profiler.MutexProfile,
			// profiler.GoroutineProfile,
		),
	)
	if err != nil {
		return eris.Wrap(err, "failed to start the profiler")
	}

	tm.profilerStop = profiler.Stop

	return nil
}
