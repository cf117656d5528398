package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/brackethq/calcutta/go/internal/auction/gateway"
	"github.com/brackethq/calcutta/go/internal/auction/orchestrator"
	"github.com/brackethq/calcutta/go/internal/auction/outbox"
	"github.com/brackethq/calcutta/go/internal/payout"
	"github.com/brackethq/calcutta/go/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("calcutta exited with error")
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		return err
	}

	client, err := setupDatabase(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	services, err := setupServices(client, config)
	if err != nil {
		return err
	}

	// Outbox publishing: NATS JetStream behind a LISTEN/NOTIFY wakeup with
	// a slow polling fallback.
	nc, err := nats.Connect(config.NATS.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return err
	}
	defer nc.Close()

	slogger := slog.Default()
	publisher, err := outbox.NewNATSPublisher(nc, slogger)
	if err != nil {
		return err
	}

	worker := outbox.NewWorker(services.Runner, services.OutboxRepo, publisher, outbox.DefaultConfig(), slogger)

	listenerCfg := outbox.DefaultListenerConfig()
	listenerCfg.DatabaseURL = store.NewConfigFromEnv().DSN()
	listener, err := outbox.NewListener(services.OutboxRepo, publisher, listenerCfg)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(config.NATS.URL, services.Engine, clockwork.NewRealClock())
	if err != nil {
		return err
	}

	gwCfg := gateway.DefaultConfig()
	gwCfg.JetStreamConfig.URL = config.NATS.URL
	gw, err := gateway.NewService(gwCfg, services.Engine)
	if err != nil {
		return err
	}

	server := setupServer(services, gw)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := worker.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return worker.Stop()
	})

	g.Go(func() error {
		return listener.Start(ctx)
	})

	g.Go(func() error {
		return orch.Run(ctx)
	})

	g.Go(func() error {
		return gw.Start(ctx)
	})

	if config.ScoreFeed.Enabled {
		consumer := payout.NewConsumer(config.NATS.URL, services.Payouts)
		g.Go(func() error {
			return consumer.Run(ctx)
		})
	}

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.Info().Msg("calcutta started")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("calcutta stopped")
	return nil
}
