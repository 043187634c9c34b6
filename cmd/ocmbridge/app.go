package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/delivery"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/discovery"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/invites"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/notifications"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/outgoing"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/peertrust"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/provider"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/provider/inbox"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/shares"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/transport"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/cache"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/config"
	httpclient "github.com/MahdiBaghbani/ocmbridge/internal/platform/http/client"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/http/ratelimit"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/http/server"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/lock"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/store"
	"github.com/MahdiBaghbani/ocmbridge/internal/services"
)

// backend is what every store driver provides.
type backend interface {
	store.Driver
	delivery.Queue
	invites.TokenStore
	outgoing.Store
}

// app is one fully wired server: the HTTP server and the delivery worker
// that retries its queued shares.
type app struct {
	server  *server.Server
	worker  *delivery.Worker
	closers []func() error
}

// newApp opens the backends named in cfg and wires every component on top
// of them. Close releases the backends.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	drv, err := store.New(&store.DriverConfig{Driver: cfg.Store.Driver, DataDir: cfg.Store.DataDir})
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	db, ok := drv.(backend)
	if !ok {
		return nil, fmt.Errorf("store driver %s does not provide a queue, token and share store", drv.Name())
	}
	if err := db.Init(ctx); err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	locker, err := lock.New(&lock.DriverConfig{Driver: cfg.Lock.Driver, Options: cfg.Lock.Options()})
	if err != nil {
		return nil, fmt.Errorf("create lock: %w", err)
	}
	a.closers = append(a.closers, locker.Close)

	discoveryCache, err := cache.New(cfg.Cache.Driver, cfg.Cache.Options())
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	a.closers = append(a.closers, discoveryCache.Close)

	logger.Info("backends ready", "store", drv.Name(), "lock", cfg.Lock.Driver, "cache", cfg.Cache.Driver)

	httpClient := httpclient.New(&cfg.OutboundHTTP, logger)
	discoveryClient := discovery.NewClient(httpClient, discoveryCache, logger)
	ocmTransport := transport.New(httpClient, discoveryClient, logger)

	executor := delivery.NewExecutor(delivery.Config{
		MaxTry:   cfg.Delivery.MaxTry,
		Interval: cfg.Delivery.Interval(),
		ClaimTTL: cfg.Delivery.ClaimTTL(),
	}, db, ocmTransport, locker, logger)
	submitter := delivery.NewSubmitter(db, ocmTransport, logger)
	a.worker = delivery.NewWorker(delivery.WorkerConfig{
		Tick:      cfg.Delivery.Tick(),
		BatchSize: cfg.Delivery.BatchSize,
	}, executor.Config().Interval, db, executor, logger)

	trust := peertrust.NewPolicyEngine(peertrust.PolicyConfig{
		GlobalEnforce: cfg.PeerTrust.Policy.GlobalEnforce,
		AllowList:     cfg.PeerTrust.Policy.AllowList,
		DenyList:      cfg.PeerTrust.Policy.DenyList,
		ExemptList:    cfg.PeerTrust.Policy.ExemptList,
	}, logger)
	workflow := invites.NewWorkflow(db, trust, locker, logger)
	ledger := outgoing.NewLedger(db, logger)

	registry := provider.NewMapRegistry()
	inboxes := make(map[string]*inbox.Inbox)
	for rt, shareTypes := range cfg.ShareTypeTable() {
		box := inbox.New(shareTypes, logger.With("resource_type", rt), inbox.WithSentShares(ledger))
		registry.Register(rt, box)
		inboxes[rt] = box
	}

	deps := &services.Deps{
		Config:     cfg,
		Builder:    shares.NewBuilder(shares.NewStaticShareTypes(cfg.ShareTypeTable())),
		Providers:  registry,
		Dispatcher: notifications.NewDispatcher(registry, logger),
		Submitter:  submitter,
		Invites:    workflow,
		Outgoing:   ledger,
		Notifier:   ocmTransport,
		Discovery:  discoveryClient,
		Inboxes:    inboxes,
	}
	if cfg.RateLimit.Enabled {
		counter, ok := discoveryCache.(cache.Counter)
		if !ok {
			return nil, fmt.Errorf("cache driver %q cannot back the rate limiter", cfg.Cache.Driver)
		}
		deps.RateLimit = ratelimit.New(counter, cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window(), logger).Wrap
	}

	svcs, err := services.Build(services.CoreServices, deps, logger)
	if err != nil {
		return nil, err
	}
	a.server, err = server.New(cfg, logger, svcs)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases the backends in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
