package main

import (
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/brackethq/calcutta/go/internal/auction/engine"
	"github.com/brackethq/calcutta/go/internal/auction/item"
	"github.com/brackethq/calcutta/go/internal/auction/outbox"
	"github.com/brackethq/calcutta/go/internal/auction/pool"
	"github.com/brackethq/calcutta/go/internal/ledger"
	"github.com/brackethq/calcutta/go/internal/market"
	"github.com/brackethq/calcutta/go/internal/notify"
	"github.com/brackethq/calcutta/go/internal/payout"
	"github.com/brackethq/calcutta/go/internal/store"
)

type Services struct {
	Engine  *engine.Engine
	Pools   *pool.App
	Market  *market.App
	Ledger  *ledger.App
	Payouts *payout.App

	Items      *item.Repository
	OutboxRepo *outbox.Repository
	Runner     store.Runner
}

func setupServices(client *store.Client, config *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → App layer → Engine
	pgPool := client.Pool()
	runner := store.NewRunner(pgPool)

	poolRepo := pool.NewRepository(pgPool)
	itemRepo := item.NewRepository(pgPool)
	marketRepo := market.NewRepository(pgPool)
	ledgerRepo := ledger.NewRepository(pgPool)
	outboxRepo := outbox.NewRepository(pgPool)
	payoutRepo := payout.NewRepository(pgPool)
	outboxApp := outbox.NewApp(outboxRepo)

	poolApp := pool.NewApp(poolRepo)
	marketApp := market.NewApp(marketRepo, runner)
	ledgerApp := ledger.NewApp(ledgerRepo, ledger.NoopGateway{})

	senders := []notify.Sender{notify.LogSender{}}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" && config.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(token, config.Notify.TelegramChatID))
	}
	notifier := notify.NewDispatcher(senders...)

	engCfg, err := engineConfig(config)
	if err != nil {
		return nil, err
	}

	pgStores := engine.NewPGStores(runner, poolRepo, itemRepo, marketRepo, ledgerRepo, outboxApp)
	eng := engine.New(pgStores, ledgerApp, notifier, clockwork.NewRealClock(), engCfg)

	payoutApp := payout.NewApp(runner, payoutRepo, poolRepo, marketRepo, ledgerRepo, outboxApp)

	return &Services{
		Engine:     eng,
		Pools:      poolApp,
		Market:     marketApp,
		Ledger:     ledgerApp,
		Payouts:    payoutApp,
		Items:      itemRepo,
		OutboxRepo: outboxRepo,
		Runner:     runner,
	}, nil
}
