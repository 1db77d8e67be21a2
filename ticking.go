package bazaar

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/codes"
	ddotel "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/opentelemetry"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"pkg.world.dev/bazaar/statsd"
	"pkg.world.dev/bazaar/types"
)

// OnTick is called by the host once per simulation tick. It delivers activation
// batches that have come due, runs the periodic check of one ticking group, and
// periodically re-requests saves for records that are still dirty.
func (r *Registry) OnTick() {
	if !r.IsRunning() {
		r.log.Warn().Msg("ignoring a tick on a registry that is not running")
		return
	}
	startTime := time.Now()

	// This defer is here to catch any panics that occur during the tick. It will log
	// the current tick and the shopkeeper that was being checked.
	defer r.handleTickPanic()

	var span tracer.Span
	var ctx context.Context
	span, ctx = tracer.StartSpanFromContext(context.Background(), "bazaar.span.tick")
	defer func() {
		span.Finish()
	}()

	group := r.scheduler.Advance()
	r.log.Debug().Uint64("tick", r.scheduler.CurrentTick()).Int("group", group).
		Msg("tick started")

	activationsStart := time.Now()
	r.processDueActivations()
	statsd.EmitTickStat(activationsStart, "activations")

	groupStart := time.Now()
	r.tickGroup(ctx, group)
	statsd.EmitTickStat(groupStart, "group_checks")

	if r.saveInterval > 0 && r.scheduler.CurrentTick()%uint64(r.saveInterval) == 0 {
		saveStart := time.Now()
		if n := r.resendDirtyRecords(); n > 0 {
			r.log.Debug().Int("records", n).Msg("re-requested saves for dirty shopkeepers")
		}
		statsd.EmitTickStat(saveStart, "save_net")
	}

	statsd.EmitTickStat(startTime, "full_tick")
}

// tickGroup runs the periodic check of every live shopkeeper in the group. Chunks
// are visited in activation order and records in id order, so a given population
// always ticks in the same sequence.
func (r *Registry) tickGroup(ctx context.Context, group int) {
	_, span := r.tracer.Start(ddotel.ContextWithStartOptions(ctx, tracer.Measured()),
		"registry.tick_group")
	defer span.End()

	ordered := make([]types.ChunkPos, 0, len(r.chunks))
	for chunk, cs := range r.chunks {
		if cs.pending {
			continue
		}
		ordered = append(ordered, chunk)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return r.chunks[ordered[i]].seq < r.chunks[ordered[j]].seq
	})

	for _, chunk := range ordered {
		for _, id := range r.chunkIDs(chunk) {
			s, ok := r.records[id]
			if !ok {
				err := eris.Wrapf(ErrIndexDiverged,
					"chunk %s indexes shopkeeper %d which has no record", chunk, id)
				span.SetStatus(codes.Error, eris.ToString(err, true))
				span.RecordError(err)
				r.fault(err)
				continue
			}
			if !s.valid || s.state != types.StateLive || s.group != group {
				continue
			}
			r.currentTicking = s.id
			r.checkRecord(s)
		}
	}
	r.currentTicking = 0
}

// checkRecord runs one record's periodic check. A panic in one record's check is
// contained so it cannot take down the checks of its siblings.
func (r *Registry) checkRecord(s *Shopkeeper) {
	defer func() {
		if rec := recover(); rec != nil {
			r.fault(eris.Errorf("shopkeeper %d panicked during its periodic check: %v",
				s.id, rec))
		}
	}()
	s.object.Tick()
}

func (r *Registry) handleTickPanic() {
	if rec := recover(); rec != nil {
		r.log.Error().Msgf(
			"Tick: %d, Current shopkeeper: %d",
			r.scheduler.CurrentTick(),
			r.currentTicking,
		)
		panic(rec)
	}
}
