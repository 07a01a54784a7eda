package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/icad/internal/inspection"
	"go.uber.org/zap/zaptest"
)

// recordingProcessor replies OK and records the tids it saw per cassette.
type recordingProcessor struct {
	mu    sync.Mutex
	seen  map[string][]string
	delay time.Duration
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{seen: make(map[string][]string)}
}

func (r *recordingProcessor) Process(ctx context.Context, ev inspection.Event, send inspection.ReplySender) inspection.Result {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.seen[ev.CassetteID] = append(r.seen[ev.CassetteID], ev.TID)
	r.mu.Unlock()

	reply := inspection.Reply{TID: ev.TID, Action: inspection.ActionICAResult, ReturnCode: inspection.CodeOK, ReturnMsg: "Success"}
	if send != nil {
		send(ctx, reply)
	}
	return inspection.Result{State: inspection.StateCompleted, Reply: reply}
}

func (r *recordingProcessor) tids(cst string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen[cst]...)
}

func newTestPool(t *testing.T, proc inspection.Processor, cfg *Config) *Pool {
	t.Helper()
	p := New(proc, cfg, zaptest.NewLogger(t))
	p.Start()
	t.Cleanup(p.Stop)
	return p
}

func TestCallReturnsReply(t *testing.T) {
	p := newTestPool(t, newRecordingProcessor(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := p.Call(ctx, inspection.Event{TID: "T1", CassetteID: "C100", ICAResult: "OK"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if reply.TID != "T1" || !reply.ReturnCode.OK() {
		t.Errorf("Unexpected reply: %+v", reply)
	}
}

func TestPerCassetteOrdering(t *testing.T) {
	proc := newRecordingProcessor()
	p := New(proc, &Config{Workers: 4, QueueSize: 8}, zaptest.NewLogger(t))
	p.Start()

	const n = 40
	for i := 0; i < n; i++ {
		for _, cst := range []string{"C1", "C2", "C3"} {
			ev := inspection.Event{TID: fmt.Sprintf("%s-%02d", cst, i), CassetteID: cst, ICAResult: "OK"}
			if err := p.Submit(context.Background(), ev, nil); err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
		}
	}
	p.Stop()

	for _, cst := range []string{"C1", "C2", "C3"} {
		got := proc.tids(cst)
		if len(got) != n {
			t.Fatalf("Expected %d events for %s, got %d", n, cst, len(got))
		}
		for i, tid := range got {
			if want := fmt.Sprintf("%s-%02d", cst, i); tid != want {
				t.Errorf("Event %d for %s = %s, want %s", i, cst, tid, want)
				break
			}
		}
	}
}

func TestStopDrainsQueue(t *testing.T) {
	proc := newRecordingProcessor()
	proc.delay = 2 * time.Millisecond
	p := New(proc, &Config{Workers: 2, QueueSize: 32}, zaptest.NewLogger(t))
	p.Start()

	for i := 0; i < 20; i++ {
		if err := p.Submit(context.Background(), inspection.Event{TID: fmt.Sprint(i), CassetteID: "C9"}, nil); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	p.Stop()

	if got := p.GetStats().Processed; got != 20 {
		t.Errorf("Expected 20 processed events after Stop, got %d", got)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	p := New(newRecordingProcessor(), nil, zaptest.NewLogger(t))
	p.Start()
	p.Stop()
	p.Stop()

	err := p.Submit(context.Background(), inspection.Event{TID: "T1", CassetteID: "C1"}, nil)
	if !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Expected ErrPoolStopped, got %v", err)
	}
	if !p.GetStats().Stopped {
		t.Error("Expected stats to report stopped")
	}
}

func TestSubmitBeforeStart(t *testing.T) {
	p := New(newRecordingProcessor(), nil, nil)
	if err := p.Submit(context.Background(), inspection.Event{TID: "T1"}, nil); err == nil {
		t.Error("Expected error submitting to an unstarted pool")
	}
}

func TestSubmitHonorsContextWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	proc := processorFunc(func(ctx context.Context, ev inspection.Event, send inspection.ReplySender) inspection.Result {
		<-block
		return inspection.Result{}
	})
	p := newTestPool(t, proc, &Config{Workers: 1, QueueSize: 0})
	defer close(block)

	// The first event occupies the worker.
	if err := p.Submit(context.Background(), inspection.Event{TID: "T1", CassetteID: "C1"}, nil); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, inspection.Event{TID: "T2", CassetteID: "C1"}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestPanicDoesNotKillShard(t *testing.T) {
	var calls int
	var mu sync.Mutex
	proc := processorFunc(func(ctx context.Context, ev inspection.Event, send inspection.ReplySender) inspection.Result {
		mu.Lock()
		calls++
		mu.Unlock()
		if ev.TID == "boom" {
			panic("boom")
		}
		return inspection.Result{}
	})
	p := New(proc, &Config{Workers: 1, QueueSize: 4}, zaptest.NewLogger(t))
	p.Start()
	p.Submit(context.Background(), inspection.Event{TID: "boom", CassetteID: "C1"}, nil)
	p.Submit(context.Background(), inspection.Event{TID: "after", CassetteID: "C1"}, nil)
	p.Stop()

	if calls != 2 {
		t.Errorf("Expected both events to run, got %d", calls)
	}
	stats := p.GetStats()
	if stats.Panics != 1 || stats.Processed != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestShardForIgnoresCaseAndSpace(t *testing.T) {
	p := New(newRecordingProcessor(), &Config{Workers: 8}, nil)
	if p.shardFor("c100") != p.shardFor(" C100 ") {
		t.Error("Expected the same shard for equivalent cassette ids")
	}
	for i := 0; i < 100; i++ {
		if s := p.shardFor(fmt.Sprintf("C%d", i)); s < 0 || s >= 8 {
			t.Fatalf("Shard %d out of range", s)
		}
	}
}

func TestDefaultConfigNormalized(t *testing.T) {
	p := New(newRecordingProcessor(), &Config{Workers: 0, QueueSize: -1}, nil)
	stats := p.GetStats()
	if stats.Workers != 1 || stats.QueueSize != 0 {
		t.Errorf("Unexpected normalized config: %+v", stats)
	}

	def := DefaultConfig()
	if def.Workers != 4 || def.QueueSize != 64 {
		t.Errorf("Unexpected defaults: %+v", def)
	}
}

type processorFunc func(ctx context.Context, ev inspection.Event, send inspection.ReplySender) inspection.Result

func (f processorFunc) Process(ctx context.Context, ev inspection.Event, send inspection.ReplySender) inspection.Result {
	return f(ctx, ev, send)
}
