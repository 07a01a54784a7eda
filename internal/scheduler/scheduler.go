package scheduler

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fentz26/icad/internal/inspection"
	"go.uber.org/zap"
)

// ErrPoolStopped is returned by Submit once Stop has been called.
var ErrPoolStopped = errors.New("scheduler: pool stopped")

type job struct {
	ctx  context.Context
	ev   inspection.Event
	send inspection.ReplySender
}

// Pool hands events to a fixed set of shard workers. Events for the same
// cassette always land on the same shard, so they are processed in the
// order they were submitted.
type Pool struct {
	proc   inspection.Processor
	config *Config
	logger *zap.Logger

	shards []chan job

	// mu guards sends on shards against Stop closing them.
	mu       sync.RWMutex
	started  bool
	stopped  bool
	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup

	inFlight  atomic.Int64
	processed atomic.Int64
	panics    atomic.Int64
}

// New creates a pool over proc. Call Start before submitting.
func New(proc inspection.Processor, cfg *Config, logger *zap.Logger) *Pool {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.normalize()

	shards := make([]chan job, cfg.Workers)
	for i := range shards {
		shards[i] = make(chan job, cfg.QueueSize)
	}
	return &Pool{
		proc:   proc,
		config: cfg,
		logger: logger.Named("scheduler"),
		shards: shards,
		quit:   make(chan struct{}),
	}
}

// Start launches one worker per shard.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for i, ch := range p.shards {
		p.wg.Add(1)
		go p.worker(i, ch)
	}
	p.logger.Info("scheduler started", zap.Int("workers", len(p.shards)), zap.Int("queue_size", p.config.QueueSize))
}

// Stop refuses new events, drains what is queued and waits for the
// workers to finish.
func (p *Pool) Stop() {
	p.quitOnce.Do(func() { close(p.quit) })

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, ch := range p.shards {
		close(ch)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("scheduler stopped", zap.Int64("processed", p.processed.Load()))
}

// Submit queues ev for processing. send receives the reply from the
// worker goroutine. Submit blocks while the shard queue is full.
func (p *Pool) Submit(ctx context.Context, ev inspection.Event, send inspection.ReplySender) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	if !p.started {
		return fmt.Errorf("scheduler: pool not started")
	}

	j := job{ctx: ctx, ev: ev, send: send}
	select {
	case p.shards[p.shardFor(ev.CassetteID)] <- j:
		return nil
	case <-p.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call submits ev and waits for its reply. Dispatch may still be running
// on the worker when Call returns.
func (p *Pool) Call(ctx context.Context, ev inspection.Event) (inspection.Reply, error) {
	replies := make(chan inspection.Reply, 1)
	send := func(_ context.Context, r inspection.Reply) error {
		select {
		case replies <- r:
		default:
		}
		return nil
	}
	if err := p.Submit(ctx, ev, send); err != nil {
		return inspection.Reply{}, err
	}

	select {
	case r := <-replies:
		return r, nil
	case <-ctx.Done():
		return inspection.Reply{}, ctx.Err()
	}
}

func (p *Pool) worker(id int, ch <-chan job) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("shard", id))

	for j := range ch {
		p.run(log, j)
	}
}

func (p *Pool) run(log *zap.Logger, j job) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	defer func() {
		if rec := recover(); rec != nil {
			p.panics.Add(1)
			log.Error("event processing panicked", zap.String("tid", j.ev.TID), zap.String("cst_id", j.ev.CassetteID), zap.Any("panic", rec))
		}
	}()

	// An accepted event runs to the end even if the submitter goes away.
	ctx := context.WithoutCancel(j.ctx)
	res := p.proc.Process(ctx, j.ev, j.send)
	p.processed.Add(1)
	log.Debug("event done", zap.String("tid", j.ev.TID), zap.String("state", string(res.State)))
}

func (p *Pool) shardFor(cstID string) int {
	h := fnv.New32a()
	h.Write([]byte(strings.ToUpper(strings.TrimSpace(cstID))))
	return int(h.Sum32() % uint32(len(p.shards)))
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers   int   `json:"workers"`
	QueueSize int   `json:"queue_size"`
	Queued    int   `json:"queued"`
	InFlight  int64 `json:"in_flight"`
	Processed int64 `json:"processed"`
	Panics    int64 `json:"panics"`
	Stopped   bool  `json:"stopped"`
}

// GetStats returns current pool statistics.
func (p *Pool) GetStats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	queued := 0
	for _, ch := range p.shards {
		queued += len(ch)
	}
	return Stats{
		Workers:   len(p.shards),
		QueueSize: p.config.QueueSize,
		Queued:    queued,
		InFlight:  p.inFlight.Load(),
		Processed: p.processed.Load(),
		Panics:    p.panics.Load(),
		Stopped:   p.stopped,
	}
}
