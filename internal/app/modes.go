package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/outcomebet/paribet/internal/domain"
	"github.com/outcomebet/paribet/internal/server"
	"github.com/outcomebet/paribet/internal/server/handler"
	"github.com/outcomebet/paribet/internal/server/ws"
)

// ServeMode runs the HTTP/WebSocket API until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.logger),
		Markets: handler.NewMarketHandler(deps.Service, a.logger),
		Bets:    handler.NewBetHandler(deps.Service, a.logger),
		Settle:  handler.NewSettleHandler(deps.Service, a.logger),
		Admin:   handler.NewAdminHandler(deps.Service, adminExporter(deps), deps.Streams, a.logger),
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	if hub != nil {
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if err == context.Canceled || err == http.ErrServerClosed {
		return nil
	}
	return err
}

// adminExporter returns the journal exporter when S3 is wired, or nil so the
// export endpoint reports 501.
func adminExporter(deps *Dependencies) handler.LedgerExporter {
	if deps.Archiver == nil {
		return nil
	}
	return deps.Archiver
}

// DemoMode runs a scripted market lifecycle against the in-memory bank and
// prints every step: open two markets, stake both sides, resolve one, cancel
// the other, withdraw, and sweep fees. It exits when the script finishes.
func (a *App) DemoMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting demo mode")

	if deps.Bank == nil {
		return fmt.Errorf("app: demo mode requires the bank custody backend")
	}

	const (
		alice  = "alice"
		bob    = "bob"
		carol  = "carol"
		oracle = "oracle"
	)
	admin := a.cfg.Ledger.Admin
	svc := deps.Service

	if err := svc.AddAuthority(ctx, admin, oracle); err != nil {
		return fmt.Errorf("app: demo: add authority: %w", err)
	}

	step := func(name string) {
		a.logger.InfoContext(ctx, "demo step", slog.String("step", name))
	}

	// Market 1: resolved YES.
	step("create market")
	duration := a.cfg.Ledger.MinDuration
	m1, err := svc.CreateMarket(ctx, alice, "Will it rain in Rotterdam tomorrow?", "Settled against KNMI data.", duration, 300)
	if err != nil {
		return fmt.Errorf("app: demo: create market: %w", err)
	}

	step("place bets")
	if _, err := svc.PlaceBet(ctx, alice, m1.ID, domain.SideYes, 1_000); err != nil {
		return fmt.Errorf("app: demo: bet: %w", err)
	}
	if _, err := svc.PlaceBet(ctx, bob, m1.ID, domain.SideNo, 3_000); err != nil {
		return fmt.Errorf("app: demo: bet: %w", err)
	}
	if _, err := svc.PlaceBet(ctx, carol, m1.ID, domain.SideYes, 1_000); err != nil {
		return fmt.Errorf("app: demo: bet: %w", err)
	}

	odds, err := svc.GetOdds(m1.ID)
	if err != nil {
		return fmt.Errorf("app: demo: odds: %w", err)
	}
	a.logger.InfoContext(ctx, "demo odds",
		slog.Int64("yes_bps", odds.YesBps),
		slog.Int64("no_bps", odds.NoBps),
	)

	// Market 2: cancelled before its deadline.
	m2, err := svc.CreateMarket(ctx, bob, "Will the ferry strike end this week?", "", duration, 0)
	if err != nil {
		return fmt.Errorf("app: demo: create market: %w", err)
	}
	if _, err := svc.PlaceBet(ctx, alice, m2.ID, domain.SideNo, 500); err != nil {
		return fmt.Errorf("app: demo: bet: %w", err)
	}

	step("cancel market")
	report, err := svc.Cancel(ctx, oracle, m2.ID, "proposition became unverifiable")
	if err != nil {
		return fmt.Errorf("app: demo: cancel: %w", err)
	}
	a.logger.InfoContext(ctx, "demo refunds issued", slog.Int("refunded", report.Refunded))

	step("wait for deadline")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(duration + time.Second):
	}

	step("resolve market")
	if _, err := svc.Resolve(ctx, oracle, m1.ID, domain.OutcomeYes); err != nil {
		return fmt.Errorf("app: demo: resolve: %w", err)
	}

	step("withdraw winnings")
	for _, account := range []string{alice, carol} {
		amount, err := svc.Withdraw(ctx, account, m1.ID)
		if err != nil {
			return fmt.Errorf("app: demo: withdraw %s: %w", account, err)
		}
		a.logger.InfoContext(ctx, "demo payout",
			slog.String("account", account),
			slog.Int64("amount", amount),
		)
	}

	step("sweep fees")
	if err := svc.SweepFees(ctx, admin, m1.ID); err != nil {
		return fmt.Errorf("app: demo: sweep fees: %w", err)
	}

	for _, account := range []string{alice, bob, carol, a.cfg.Ledger.FeeRecipient} {
		if account == "" {
			continue
		}
		a.logger.InfoContext(ctx, "demo balance",
			slog.String("account", account),
			slog.Int64("balance", deps.Bank.Balance(account)),
		)
	}
	a.logger.InfoContext(ctx, "demo custody remaining",
		slog.Int64("custody", deps.Bank.Custody()),
	)

	step("done")
	return nil
}
