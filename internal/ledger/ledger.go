// Package ledger remembers the replies of accepted events so that a
// redelivered event is answered without running the workflow again.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fentz26/icad/internal/inspection"
	"go.uber.org/zap"
)

const keyPrefix = "tid/"

// DefaultTTL is how long an accepted reply is remembered.
const DefaultTTL = 72 * time.Hour

// Ledger is a badger-backed map of tid to reply.
type Ledger struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens the ledger at path. An empty path keeps it in memory, and
// then deduplication does not survive a restart.
func Open(path string, ttl time.Duration, logger *zap.Logger) (*Ledger, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{logger.Named("ledger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &Ledger{db: db, ttl: ttl}, nil
}

// Close closes the ledger.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Lookup returns the reply recorded for tid.
func (l *Ledger) Lookup(tid string) (inspection.Reply, bool, error) {
	var reply inspection.Reply
	found := false

	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + tid))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &reply)
		})
	})
	if err != nil {
		return inspection.Reply{}, false, fmt.Errorf("lookup %s: %w", tid, err)
	}
	return reply, found, nil
}

// Record stores reply under tid until the ledger TTL expires.
func (l *Ledger) Record(tid string, reply inspection.Reply) error {
	val, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(keyPrefix+tid), val).WithTTL(l.ttl))
	})
}

// Guard wraps next so that redelivered tids get their original reply.
func (l *Ledger) Guard(next inspection.Processor, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{ledger: l, next: next, logger: logger.Named("ledger")}
}

// Guard is an inspection.Processor that deduplicates by tid. A reply is
// recorded only once the workflow has returned with an accepted code, so
// an event whose processing was cut short before the move was attempted
// runs again on redelivery. Rejected events caused no mutation and may be
// resubmitted under the same tid.
type Guard struct {
	ledger *Ledger
	next   inspection.Processor
	logger *zap.Logger
}

// Process answers a known tid from the ledger, else runs next. A duplicate
// is still audited when next implements inspection.DuplicateAuditor.
func (g *Guard) Process(ctx context.Context, ev inspection.Event, send inspection.ReplySender) inspection.Result {
	if ev.TID == "" {
		return g.next.Process(ctx, ev, send)
	}

	reply, found, err := g.ledger.Lookup(ev.TID)
	if err != nil {
		g.logger.Error("ledger lookup failed", zap.String("tid", ev.TID), zap.Error(err))
	}
	if found {
		g.logger.Info("duplicate event answered from ledger", zap.String("tid", ev.TID), zap.String("cst_id", ev.CassetteID))
		if auditor, ok := g.next.(inspection.DuplicateAuditor); ok {
			auditor.AuditDuplicate(ctx, ev, reply)
		}
		if send != nil {
			if err := send(ctx, reply); err != nil {
				g.logger.Error("send reply failed", zap.String("tid", ev.TID), zap.Error(err))
			}
		}
		return inspection.Result{State: inspection.StateReceived, Reply: reply, Duplicate: true}
	}

	res := g.next.Process(ctx, ev, send)
	if res.Reply.ReturnCode.OK() {
		if err := g.ledger.Record(ev.TID, res.Reply); err != nil {
			g.logger.Error("ledger record failed", zap.String("tid", ev.TID), zap.Error(err))
		}
	}
	return res
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (b badgerLogger) Errorf(f string, v ...interface{})   { b.s.Errorf(f, v...) }
func (b badgerLogger) Warningf(f string, v ...interface{}) { b.s.Warnf(f, v...) }
func (b badgerLogger) Infof(f string, v ...interface{})    { b.s.Debugf(f, v...) }
func (b badgerLogger) Debugf(f string, v ...interface{})   { b.s.Debugf(f, v...) }
