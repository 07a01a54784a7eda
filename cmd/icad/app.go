package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fentz26/icad/internal/alarm"
	"github.com/fentz26/icad/internal/audit"
	"github.com/fentz26/icad/internal/config"
	"github.com/fentz26/icad/internal/connectors/mcs"
	"github.com/fentz26/icad/internal/connectors/mes"
	"github.com/fentz26/icad/internal/eventbus"
	"github.com/fentz26/icad/internal/inspection"
	"github.com/fentz26/icad/internal/ledger"
	"github.com/fentz26/icad/internal/modegate"
	"github.com/fentz26/icad/internal/observability"
	"github.com/fentz26/icad/internal/store"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// app holds the components shared by serve and replay.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	tp     *sdktrace.TracerProvider

	store  *store.Store
	modes  *modegate.Gate
	ledger *ledger.Ledger

	// proc is the orchestrator behind the tid ledger.
	proc inspection.Processor

	closers []func(context.Context) error
}

// buildApp opens storage and wires the workflow. The caller must close it.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	tp, otelShutdown, err := observability.Setup(ctx, cfg.OTel)
	a.tp = tp
	a.logger = observability.NewLogger(cfg.OTel)
	a.closers = append(a.closers, otelShutdown)
	a.closers = append(a.closers, func(context.Context) error {
		a.logger.Sync()
		return nil
	})
	if err != nil {
		a.logger.Error("failed to setup OpenTelemetry", zap.Error(err))
	}

	a.logger.Info("opening database", zap.String("driver", cfg.Database.Driver))
	a.store, err = store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return a.store.Close() })

	a.ledger, err = ledger.Open(cfg.Ledger.Path, cfg.Ledger.TTL, a.logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.ledger.Close() })

	var publisher mcs.Publisher = mcs.LogPublisher{Logger: a.logger.Named("mcs")}
	if cfg.Kafka.Enabled() {
		w, err := eventbus.NewWriter(cfg.Kafka, cfg.Kafka.MoveTopic, a.tracerProvider())
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("open move writer: %w", err)
		}
		publisher = w
		a.closers = append(a.closers, func(context.Context) error { return w.Close() })
	}

	a.modes = modegate.New(a.store)
	orch := inspection.New(cfg.Inspection, inspection.Deps{
		Store:  a.store,
		Modes:  a.modes,
		Alarms: alarm.NewSink(a.store, a.logger),
		MES:    mes.New(cfg.MES, a.logger),
		Mover:  mcs.New(publisher, cfg.Routes, a.logger),
		Audit:  audit.NewLog(a.store),
		Logger: a.logger,
	})
	a.proc = a.ledger.Guard(orch, a.logger)
	return a, nil
}

// tracerProvider returns the exporting provider, or the global one when
// export is disabled.
func (a *app) tracerProvider() trace.TracerProvider {
	if a.tp == nil {
		return otel.GetTracerProvider()
	}
	return a.tp
}

// close releases everything in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = errors.Join(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errs
}
