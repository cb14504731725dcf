package service

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shop-api/internal/domain"
	"shop-api/internal/repository"
)

// AuditConfig controla el buffer y el paralelismo del registro de auditoria.
type AuditConfig struct {
	BufferSize int
	Workers    int
	DropIfFull bool
	// WriteTimeout acota cada insercion en el sink.
	WriteTimeout time.Duration
}

// AuditRecorder escribe entradas de auditoria en segundo plano. Las entradas
// de una misma cuenta van siempre a la misma cola, asi que se persisten en el
// orden en que se registraron. Un fallo del sink se loguea y se descarta.
type AuditRecorder struct {
	logger  *zap.Logger
	sink    repository.AuditRepository
	clock   Clock
	cfg     AuditConfig
	shards  []chan domain.AuditEntry
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	closed  atomic.Bool
	once    sync.Once
}

func NewAuditRecorder(logger *zap.Logger, sink repository.AuditRepository, clock Clock, cfg AuditConfig) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = repository.NewMemoryAuditRepository()
	}
	if clock == nil {
		clock = SystemClock()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	r := &AuditRecorder{
		logger: logger,
		sink:   sink,
		clock:  clock,
		cfg:    cfg,
		shards: make([]chan domain.AuditEntry, cfg.Workers),
		done:   make(chan struct{}),
	}
	for i := range r.shards {
		r.shards[i] = make(chan domain.AuditEntry, cfg.BufferSize)
		r.wg.Add(1)
		go r.run(r.shards[i])
	}
	return r
}

func (r *AuditRecorder) run(ch chan domain.AuditEntry) {
	defer r.wg.Done()

	for {
		select {
		case entry := <-ch:
			r.write(entry)
		case <-r.done:
			for {
				select {
				case entry := <-ch:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *AuditRecorder) write(entry domain.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()

	if err := r.sink.Insert(ctx, entry); err != nil {
		r.logger.Warn("audit write failed",
			zap.String("actor_id", entry.ActorID),
			zap.String("operation", string(entry.Operation)),
			zap.String("collection", entry.CollectionName),
			zap.Error(err),
		)
	}
}

// Record encola una entrada. No devuelve error: la operacion que la origina
// no depende de la auditoria.
func (r *AuditRecorder) Record(ctx context.Context, actorID string, op domain.AuditOperation, collection string, documentID *string, oldValue, newValue map[string]any) {
	if r == nil || r.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if actorID == "" {
		actorID = domain.SystemActor
	}
	entry := domain.AuditEntry{
		ID:             uuid.NewString(),
		ActorID:        actorID,
		Operation:      op,
		CollectionName: collection,
		DocumentID:     documentID,
		OldValue:       oldValue,
		NewValue:       newValue,
		Timestamp:      r.clock.Now(),
	}

	key := actorID
	if documentID != nil && *documentID != "" {
		key = *documentID
	}
	ch := r.shards[r.shardFor(key)]

	if r.cfg.DropIfFull {
		select {
		case ch <- entry:
		case <-r.done:
		default:
			r.dropped.Add(1)
			r.logger.Warn("audit queue full, entry dropped", zap.String("operation", string(op)))
		}
		return
	}

	select {
	case ch <- entry:
	case <-ctx.Done():
		r.dropped.Add(1)
	case <-r.done:
	}
}

func (r *AuditRecorder) shardFor(key string) int {
	if len(r.shards) == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(r.shards)))
}

// Close deja de aceptar entradas y espera a que se vacien las colas.
func (r *AuditRecorder) Close() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.done)
		r.wg.Wait()
	})
}

func (r *AuditRecorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}
