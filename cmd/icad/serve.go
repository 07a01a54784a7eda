package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fentz26/icad/internal/controlplane"
	"github.com/fentz26/icad/internal/eventbus"
	"github.com/fentz26/icad/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the icad daemon",
	Long:  `Starts the icad daemon which accepts ICA results over HTTP and Kafka.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:7466", "Listen address for the API server")
	if err := settings.BindPFlag("http.listen", serveCmd.Flags().Lookup("listen")); err != nil {
		panic(err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	log := a.logger
	log.Info("starting icad daemon", zap.String("version", version))

	pool := scheduler.New(a.proc, &cfg.Scheduler, log)
	pool.Start()

	service := controlplane.NewService(a.store, a.modes, pool, log)
	server := controlplane.NewServer(service, cfg.HTTP.Listen, log)

	// Channel to receive server errors
	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	var consumerWG sync.WaitGroup
	consumerCtx, cancelConsumer := context.WithCancel(ctx)
	defer cancelConsumer()
	if cfg.Kafka.Enabled() {
		if err := startConsumer(consumerCtx, a, pool, &consumerWG); err != nil {
			log.Error("kafka consumer not started", zap.Error(err))
		}
	} else {
		log.Info("no kafka brokers configured, HTTP intake only")
	}

	// Wait for shutdown signal or server error
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received signal, initiating graceful shutdown")
	case err := <-serverErr:
		if err != nil {
			log.Error("server error", zap.Error(err))
			runErr = err
		}
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info("shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("stopping kafka consumer")
	cancelConsumer()
	consumerWG.Wait()

	log.Info("draining event queue")
	pool.Stop()

	log.Info("closing resources")
	if err := a.close(shutdownCtx); err != nil {
		log.Error("close error", zap.Error(err))
	}

	log.Info("shutdown complete")
	return runErr
}

// startConsumer runs the Kafka intake until ctx is done.
func startConsumer(ctx context.Context, a *app, pool *scheduler.Pool, wg *sync.WaitGroup) error {
	cfg := a.cfg.Kafka
	reader, err := eventbus.NewReader(cfg)
	if err != nil {
		return err
	}
	replies, err := eventbus.NewWriter(cfg, cfg.ReplyTopic, a.tracerProvider())
	if err != nil {
		reader.Close()
		return err
	}

	svc := eventbus.NewConsumerService(reader, pool, replies, a.logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := svc.Start(ctx); err != nil {
			a.logger.Error("kafka intake stopped", zap.Error(err))
		}
		if err := reader.Close(); err != nil {
			a.logger.Error("failed to close kafka reader", zap.Error(err))
		}
		// Replies may still be sent by queued events; close after the pool drains.
		a.closers = append(a.closers, func(context.Context) error { return replies.Close() })
	}()
	return nil
}
