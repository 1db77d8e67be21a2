package storage

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	ddotel "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/opentelemetry"
	ddtracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"pkg.world.dev/bazaar/codec"
	"pkg.world.dev/bazaar/statsd"
	"pkg.world.dev/bazaar/types"
)

type Options = redis.Options

// DefaultBatchDelay is how long the background worker waits after the first queued
// request before writing, so a burst of dirty records lands in one pipeline.
const DefaultBatchDelay = 500 * time.Millisecond

var _ Store = (*RedisStore)(nil)

// RedisStore persists shopkeeper records in redis. Saves and deletes are queued and
// written in batches by a background worker started by Start. Start and Close bracket
// the store's lifetime; both are called from the registry's control thread.
type RedisStore struct {
	Namespace  string
	Client     *redis.Client
	Log        zerolog.Logger
	BatchDelay time.Duration

	tracer  trace.Tracer
	onSaved SavedFunc

	mu      sync.Mutex
	pending map[types.ShopkeeperID]pendingWrite
	order   []types.ShopkeeperID

	wake       chan struct{}
	quit       chan struct{}
	workerDone chan struct{}
	stopOnce   sync.Once
	started    bool
}

// pendingWrite is the newest queued operation for one id. A later save or delete of
// the same id replaces it in place.
type pendingWrite struct {
	request Request
	delete  bool
}

func NewRedisStore(options Options, namespace string) *RedisStore {
	return &RedisStore{
		Namespace:  namespace,
		Client:     redis.NewClient(&options),
		Log:        zerolog.New(os.Stdout),
		BatchDelay: DefaultBatchDelay,
		tracer:     otel.Tracer("storage"),
		pending:    map[types.ShopkeeperID]pendingWrite{},
		wake:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		workerDone: make(chan struct{}),
	}
}

func (s *RedisStore) Start(onSaved SavedFunc) {
	s.onSaved = onSaved
	s.started = true
	go s.worker()
}

func (s *RedisStore) worker() {
	defer close(s.workerDone)
	for {
		select {
		case <-s.quit:
			return
		case <-s.wake:
		}
		if s.BatchDelay > 0 {
			timer := time.NewTimer(s.BatchDelay)
			select {
			case <-s.quit:
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		if err := s.Flush(context.Background()); err != nil {
			s.Log.Error().Err(err).Msg("failed to flush shopkeeper records")
		}
	}
}

// LoadAll returns every stored record ordered by id. A record that fails to decode
// is skipped and logged rather than taking the whole load down with it.
func (s *RedisStore) LoadAll(ctx context.Context) ([]Record, error) {
	keys, err := s.Client.Keys(ctx, shopkeeperKeyPattern(s.Namespace)).Result()
	if err != nil {
		return nil, eris.Wrap(err, "")
	}
	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		bz, err := s.Client.Get(ctx, key).Bytes()
		if err != nil {
			if eris.Is(eris.Cause(err), redis.Nil) {
				continue
			}
			return nil, eris.Wrap(err, "")
		}
		record, err := codec.Decode[Record](bz)
		if err != nil {
			s.Log.Error().Err(err).Str("key", key).
				Msg("skipping corrupt shopkeeper record")
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (s *RedisStore) RequestSave(requests ...Request) {
	if len(requests) == 0 {
		return
	}
	s.mu.Lock()
	for _, req := range requests {
		s.enqueue(req.Record.ID, pendingWrite{request: req})
	}
	s.mu.Unlock()
	s.signal()
}

func (s *RedisStore) RequestDelete(ids ...types.ShopkeeperID) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range ids {
		s.enqueue(id, pendingWrite{
			request: Request{Record: Record{ID: id}},
			delete:  true,
		})
	}
	s.mu.Unlock()
	s.signal()
}

// enqueue requires s.mu to be held.
func (s *RedisStore) enqueue(id types.ShopkeeperID, write pendingWrite) {
	if _, ok := s.pending[id]; !ok {
		s.order = append(s.order, id)
	}
	s.pending[id] = write
}

func (s *RedisStore) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Flush writes everything queued so far in one transaction pipeline. On failure the
// batch is requeued for the next attempt, except ids that picked up a newer request
// while the flush was in flight.
func (s *RedisStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.order) == 0 {
		s.mu.Unlock()
		return nil
	}
	ids := s.order
	batch := make([]pendingWrite, 0, len(ids))
	for _, id := range ids {
		batch = append(batch, s.pending[id])
	}
	s.pending = map[types.ShopkeeperID]pendingWrite{}
	s.order = nil
	s.mu.Unlock()

	start := time.Now()
	ctx, span := s.tracer.Start(
		ddotel.ContextWithStartOptions(ctx, ddtracer.Measured()), "storage.flush")
	defer span.End()

	pipe := s.Client.TxPipeline()
	acks := make([]Request, 0, len(batch))
	for _, write := range batch {
		key := shopkeeperKey(s.Namespace, write.request.Record.ID)
		if write.delete {
			pipe.Del(ctx, key)
			continue
		}
		bz, err := codec.Encode(write.request.Record)
		if err != nil {
			// Never acknowledged, so the record stays dirty at the caller and a
			// later save request retries it.
			s.Log.Error().Err(err).
				Uint64("shopkeeper", uint64(write.request.Record.ID)).
				Msg("failed to encode shopkeeper record")
			continue
		}
		pipe.Set(ctx, key, bz, 0)
		acks = append(acks, write.request)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		s.requeue(ids, batch)
		span.SetStatus(codes.Error, eris.ToString(err, true))
		span.RecordError(err)
		return eris.Wrap(err, "failed to write shopkeeper batch")
	}

	statsd.EmitSaveStat(start, len(acks))
	if s.onSaved != nil {
		for _, req := range acks {
			s.onSaved(req.Record.ID, req.Generation)
		}
	}
	return nil
}

// requeue puts a failed batch back, keeping any newer request that arrived for the
// same id while the flush was running.
func (s *RedisStore) requeue(ids []types.ShopkeeperID, batch []pendingWrite) {
	s.mu.Lock()
	for i, id := range ids {
		if _, ok := s.pending[id]; ok {
			continue
		}
		s.pending[id] = batch[i]
		s.order = append(s.order, id)
	}
	s.mu.Unlock()
	s.signal()
}

// Close stops the worker, writes anything still queued, and closes the redis client.
func (s *RedisStore) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.quit) })
	if s.started {
		select {
		case <-s.workerDone:
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "timed out waiting for the storage worker")
		}
	}
	flushErr := s.Flush(ctx)
	s.Log.Info().Msg("closing storage connection")
	if err := s.Client.Close(); err != nil {
		return eris.Wrap(err, "")
	}
	return flushErr
}
